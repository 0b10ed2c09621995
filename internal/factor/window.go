package factor

import (
	"math"
	"sort"
	"time"

	"github.com/quantfan/asharescan/internal/domain"
)

// Window is the per-quarter analysis input: one averaged value per base
// indicator per security, with fully-observed rows only.
type Window struct {
	Securities []domain.Security
	Indicators []string
	Data       [][]float64
}

// BuildWindow assembles the factor-analysis window for a rebalance date.
// Financial reports publish with a lag, so the window covers report periods
// ending between nine months before t2 and t2 itself, where t2 trails the
// rebalance date by six months. Per-period columns of the same base
// indicator are averaged; securities missing any averaged indicator are
// dropped.
func BuildWindow(t *domain.IndicatorTable, rebalance time.Time) *Window {
	t2 := rebalance.AddDate(0, -6, 0)
	t5 := t2.AddDate(0, -9, 0)

	inWindow := func(c domain.IndicatorColumn) bool {
		if !c.HasPer {
			return false
		}
		end := c.Period.EndDate()
		return !end.Before(t5) && !end.After(t2)
	}

	byBase := make(map[string][]int)
	for j, col := range t.Columns {
		if inWindow(col) {
			byBase[col.Base] = append(byBase[col.Base], j)
		}
	}
	indicators := make([]string, 0, len(byBase))
	for base := range byBase {
		indicators = append(indicators, base)
	}
	sort.Strings(indicators)

	w := &Window{Indicators: indicators}
	for i, sec := range t.Securities {
		row := make([]float64, len(indicators))
		complete := true
		for k, base := range indicators {
			sum, n := 0.0, 0
			for _, j := range byBase[base] {
				v := t.Values[i][j]
				if !math.IsNaN(v) {
					sum += v
					n++
				}
			}
			if n == 0 {
				complete = false
				break
			}
			row[k] = sum / float64(n)
		}
		if complete {
			w.Securities = append(w.Securities, sec)
			w.Data = append(w.Data, row)
		}
	}
	return w
}
