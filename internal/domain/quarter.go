package domain

import (
	"fmt"
	"time"
)

// Quarter is a calendar quarter, the pipeline's rebalance unit.
type Quarter struct {
	Year int
	Q    int
}

func QuarterOf(t time.Time) Quarter {
	return Quarter{Year: t.Year(), Q: (int(t.Month())-1)/3 + 1}
}

func (q Quarter) String() string {
	return fmt.Sprintf("%dQ%d", q.Year, q.Q)
}

// Start returns the first calendar day of the quarter.
func (q Quarter) Start() time.Time {
	return time.Date(q.Year, time.Month((q.Q-1)*3+1), 1, 0, 0, 0, 0, time.UTC)
}

func (q Quarter) Next() Quarter {
	if q.Q == 4 {
		return Quarter{Year: q.Year + 1, Q: 1}
	}
	return Quarter{Year: q.Year, Q: q.Q + 1}
}

// QuartersBetween lists quarter starts from the quarter containing start
// through the quarter containing end, inclusive.
func QuartersBetween(start, end time.Time) []Quarter {
	if end.Before(start) {
		return nil
	}
	var out []Quarter
	last := QuarterOf(end)
	for q := QuarterOf(start); ; q = q.Next() {
		out = append(out, q)
		if q == last {
			break
		}
	}
	return out
}
