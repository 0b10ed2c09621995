package domain

import (
	"math"
	"time"
)

// Security identifies one A-share listing. Code is the exchange-qualified
// ts_code form (e.g. "600941.SH"); Name is the Chinese short name used as
// the join key across fundamental and price tables.
type Security struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Quote is one daily bar for a security, tagged with the industry the
// fetch run grouped it under.
type Quote struct {
	Code     string    `json:"code" db:"code"`
	Name     string    `json:"name" db:"name"`
	Industry string    `json:"industry" db:"industry"`
	Date     time.Time `json:"date" db:"trade_date"`
	Open     float64   `json:"open" db:"open"`
	High     float64   `json:"high" db:"high"`
	Low      float64   `json:"low" db:"low"`
	Close    float64   `json:"close" db:"close"`
	Volume   float64   `json:"volume" db:"volume"`
	Amount   float64   `json:"amount" db:"amount"`
}

// Ranking is a security with its composite factor score for one quarter.
type Ranking struct {
	Security Security `json:"security"`
	Score    float64  `json:"score"`
}

// PriceSeries is a wide date-by-stock close price matrix. Dates are
// ascending; Close[i][j] is the close of Names[j] on Dates[i], NaN when the
// stock did not trade that day.
type PriceSeries struct {
	Dates []time.Time
	Names []string
	Close [][]float64

	nameIdx map[string]int
}

// NewPriceSeries builds a series and its name index. The close matrix must
// be len(dates) x len(names).
func NewPriceSeries(dates []time.Time, names []string, close [][]float64) *PriceSeries {
	idx := make(map[string]int, len(names))
	for j, n := range names {
		idx[n] = j
	}
	return &PriceSeries{Dates: dates, Names: names, Close: close, nameIdx: idx}
}

// RowAtOrAfter returns the index of the first row dated at or after t.
func (ps *PriceSeries) RowAtOrAfter(t time.Time) (int, bool) {
	for i, d := range ps.Dates {
		if !d.Before(t) {
			return i, true
		}
	}
	return 0, false
}

// PriceAt returns the close of name on row i. The second return is false
// for unknown names and for missing or non-positive prices, which the
// backtest treats as untradable.
func (ps *PriceSeries) PriceAt(i int, name string) (float64, bool) {
	j, ok := ps.nameIdx[name]
	if !ok {
		return 0, false
	}
	p := ps.Close[i][j]
	if math.IsNaN(p) || p <= 0 {
		return 0, false
	}
	return p, true
}

// Len returns the number of rows.
func (ps *PriceSeries) Len() int { return len(ps.Dates) }
