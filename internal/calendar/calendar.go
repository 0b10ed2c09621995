// Package calendar resolves calendar dates against the exchange trade
// calendar. Quarter-end report dates frequently fall on weekends or
// holidays; every fetch and rebalance uses the latest open day at or
// before the requested date.
package calendar

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrNoPriorTradeDate is returned when a date precedes the loaded calendar.
var ErrNoPriorTradeDate = errors.New("no trading day at or before date")

// TradeCalendar holds the open trading days of one exchange, ascending.
type TradeCalendar struct {
	days []time.Time
}

// New builds a calendar from open-day dates in any order.
func New(days []time.Time) *TradeCalendar {
	sorted := make([]time.Time, len(days))
	for i, d := range days {
		sorted[i] = time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })
	return &TradeCalendar{days: sorted}
}

// Resolve returns the latest trading day at or before target.
func (c *TradeCalendar) Resolve(target time.Time) (time.Time, error) {
	target = time.Date(target.Year(), target.Month(), target.Day(), 0, 0, 0, 0, time.UTC)
	i := sort.Search(len(c.days), func(i int) bool { return c.days[i].After(target) })
	if i == 0 {
		return time.Time{}, fmt.Errorf("%w: %s", ErrNoPriorTradeDate, target.Format("2006-01-02"))
	}
	return c.days[i-1], nil
}

// ResolveAll maps each target date to its trading day, preserving order.
func (c *TradeCalendar) ResolveAll(targets []time.Time) ([]time.Time, error) {
	out := make([]time.Time, 0, len(targets))
	for _, t := range targets {
		d, err := c.Resolve(t)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// Len returns the number of open days loaded.
func (c *TradeCalendar) Len() int { return len(c.days) }
