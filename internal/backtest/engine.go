// Package backtest runs the quarterly rebalance simulation: at each
// quarter start the portfolio is marked to market and fully liquidated,
// the factor model re-ranks the industry on the trailing fundamental
// window, and the cash is split equally across the tradable top-N picks.
package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/quantfan/asharescan/internal/domain"
	"github.com/quantfan/asharescan/internal/factor"
)

// Config sets the simulation window and selection parameters.
type Config struct {
	Start          time.Time
	End            time.Time
	InitialCapital decimal.Decimal
	TopN           int
	Factor         factor.Options
}

// QuarterRecord is the ledger entry for one rebalance.
type QuarterRecord struct {
	Quarter     string          `json:"quarter"`
	StartAssets decimal.Decimal `json:"start_assets"`
	EndAssets   decimal.Decimal `json:"end_assets,omitempty"`
	ReturnPct   float64         `json:"return_pct"`
	Picks       []domain.Ranking `json:"picks"`
	Skipped     bool            `json:"skipped,omitempty"`
	SkipReason  string          `json:"skip_reason,omitempty"`
}

// NAVPoint is one point of the net-value curve, normalized to 1.0 at start.
type NAVPoint struct {
	Quarter string  `json:"quarter"`
	NAV     float64 `json:"nav"`
}

// Result is one industry's completed simulation.
type Result struct {
	RunID       string                    `json:"run_id"`
	Industry    string                    `json:"industry"`
	Quarters    []QuarterRecord           `json:"quarters"`
	Loadings    map[string]*factor.Result `json:"-"`
	FinalAssets decimal.Decimal           `json:"final_assets"`
	NAV         []NAVPoint                `json:"nav"`
}

// TotalReturnPct is the whole-run return relative to initial capital.
func (r *Result) TotalReturnPct(initial decimal.Decimal) float64 {
	if initial.IsZero() {
		return 0
	}
	ratio, _ := r.FinalAssets.Div(initial).Float64()
	return (ratio - 1) * 100
}

// Engine runs simulations over fundamentals and a price series.
type Engine struct {
	cfg Config
}

func New(cfg Config) (*Engine, error) {
	if !cfg.Start.Before(cfg.End) {
		return nil, fmt.Errorf("backtest window %s..%s is empty",
			cfg.Start.Format("2006-01-02"), cfg.End.Format("2006-01-02"))
	}
	if cfg.TopN < 1 {
		return nil, fmt.Errorf("top-n must be >= 1, got %d", cfg.TopN)
	}
	if cfg.InitialCapital.Sign() <= 0 {
		return nil, fmt.Errorf("initial capital must be positive")
	}
	return &Engine{cfg: cfg}, nil
}

// rebalanceDates lists quarter starts inside the window, matching the
// convention that a window opening mid-quarter first trades at the next
// quarter boundary.
func (e *Engine) rebalanceDates() []time.Time {
	var out []time.Time
	for _, q := range domain.QuartersBetween(e.cfg.Start, e.cfg.End) {
		s := q.Start()
		if !s.Before(e.cfg.Start) && !s.After(e.cfg.End) {
			out = append(out, s)
		}
	}
	return out
}

// Run simulates one industry.
func (e *Engine) Run(ctx context.Context, industry string, fundamentals *domain.IndicatorTable, prices *domain.PriceSeries) (*Result, error) {
	if prices == nil || prices.Len() == 0 {
		return nil, fmt.Errorf("industry %s: no price series", industry)
	}

	res := &Result{
		RunID:    uuid.NewString(),
		Industry: industry,
		Loadings: make(map[string]*factor.Result),
	}

	dates := e.rebalanceDates()
	cash := e.cfg.InitialCapital
	holdings := map[string]decimal.Decimal{} // name -> shares

	var prevStart decimal.Decimal
	for i, rebalance := range dates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		label := domain.QuarterOf(rebalance).String()

		row, ok := prices.RowAtOrAfter(rebalance)
		if !ok {
			log.Warn().Str("industry", industry).Str("quarter", label).
				Msg("no price row at or after rebalance date, carrying positions")
			continue
		}

		// Mark to market and liquidate.
		start := cash
		for name, shares := range holdings {
			if p, ok := prices.PriceAt(row, name); ok {
				start = start.Add(shares.Mul(decimal.NewFromFloat(p)))
			}
		}
		if i == 0 {
			start = e.cfg.InitialCapital
		}
		cash = start
		holdings = map[string]decimal.Decimal{}

		rec := QuarterRecord{Quarter: label, StartAssets: start}
		if !prevStart.IsZero() {
			ret, _ := start.Sub(prevStart).Div(prevStart).Float64()
			rec.ReturnPct = ret * 100
		}
		prevStart = start

		// Rank on the trailing fundamental window.
		window := factor.BuildWindow(fundamentals, rebalance)
		model, err := factor.Analyze(window, e.cfg.Factor)
		if err != nil {
			log.Warn().Err(err).Str("industry", industry).Str("quarter", label).
				Msg("factor analysis failed, staying in cash")
			rec.Skipped = true
			rec.SkipReason = err.Error()
			res.Quarters = append(res.Quarters, rec)
			continue
		}
		res.Loadings[label] = model

		picks := model.Rankings
		if len(picks) > e.cfg.TopN {
			picks = picks[:e.cfg.TopN]
		}
		rec.Picks = append([]domain.Ranking(nil), picks...)
		res.Quarters = append(res.Quarters, rec)

		// No buys on the final rebalance; it only values the book.
		if i == len(dates)-1 {
			continue
		}

		type tradable struct {
			name  string
			price decimal.Decimal
		}
		var buys []tradable
		for _, pk := range picks {
			if p, ok := prices.PriceAt(row, pk.Security.Name); ok {
				buys = append(buys, tradable{name: pk.Security.Name, price: decimal.NewFromFloat(p)})
			}
		}
		if len(buys) == 0 {
			log.Warn().Str("industry", industry).Str("quarter", label).
				Msg("no tradable picks, staying in cash")
			continue
		}

		per := cash.Div(decimal.NewFromInt(int64(len(buys))))
		for _, b := range buys {
			holdings[b.name] = per.Div(b.price)
			cash = cash.Sub(per)
		}
	}

	// Final liquidation at the last available price row.
	final := cash
	last := prices.Len() - 1
	for name, shares := range holdings {
		if p, ok := prices.PriceAt(last, name); ok {
			final = final.Add(shares.Mul(decimal.NewFromFloat(p)))
		}
	}
	res.FinalAssets = final
	if n := len(res.Quarters); n > 0 {
		res.Quarters[n-1].EndAssets = final
	}

	for _, q := range res.Quarters {
		nav, _ := q.StartAssets.Div(e.cfg.InitialCapital).Float64()
		res.NAV = append(res.NAV, NAVPoint{Quarter: q.Quarter, NAV: nav})
	}
	if n := len(res.Quarters); n > 0 && !res.Quarters[n-1].EndAssets.IsZero() {
		nav, _ := final.Div(e.cfg.InitialCapital).Float64()
		res.NAV = append(res.NAV, NAVPoint{Quarter: res.Quarters[n-1].Quarter + "末", NAV: nav})
	}

	log.Info().Str("industry", industry).Str("run_id", res.RunID).
		Str("final_assets", final.StringFixed(2)).
		Float64("total_return_pct", res.TotalReturnPct(e.cfg.InitialCapital)).
		Msg("backtest complete")
	return res, nil
}
