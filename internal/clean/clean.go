// Package clean applies the fundamental-table hygiene rules: ST stocks are
// excluded outright, indicators that are missing across most of the
// industry are dropped whole, and stocks left with mostly-missing rows are
// removed afterwards.
package clean

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/quantfan/asharescan/internal/domain"
)

// Options are the cleaning thresholds. Both rates are strict: a block or
// row is dropped only when its missing rate exceeds the threshold.
type Options struct {
	IndicatorDropThreshold float64
	StockDropThreshold     float64
}

// Report summarizes what one cleaning pass removed.
type Report struct {
	Industry          string
	STRemoved         int
	IndicatorsDropped []string
	ColumnsDropped    int
	StocksDropped     int
	RowsKept          int
	ColsKept          int
}

// Run cleans one industry table. Column drops happen before row drops so a
// stock is judged only on indicators the industry actually reports.
func Run(t *domain.IndicatorTable, opts Options) (*domain.IndicatorTable, *Report, error) {
	if opts.IndicatorDropThreshold <= 0 || opts.IndicatorDropThreshold > 1 {
		return nil, nil, fmt.Errorf("indicator drop threshold %.2f out of (0,1]", opts.IndicatorDropThreshold)
	}
	if opts.StockDropThreshold <= 0 || opts.StockDropThreshold > 1 {
		return nil, nil, fmt.Errorf("stock drop threshold %.2f out of (0,1]", opts.StockDropThreshold)
	}

	report := &Report{Industry: t.Industry}

	// 1. ST exclusion.
	var keepRows []int
	for i, sec := range t.Securities {
		if strings.Contains(sec.Name, "ST") {
			report.STRemoved++
			continue
		}
		keepRows = append(keepRows, i)
	}
	t = t.SelectRows(keepRows)

	// 2. Industry-wide sparse indicators.
	byBase := make(map[string][]int)
	for j, col := range t.Columns {
		byBase[col.Base] = append(byBase[col.Base], j)
	}
	bases := make([]string, 0, len(byBase))
	for b := range byBase {
		bases = append(bases, b)
	}
	sort.Strings(bases)

	dropCol := make(map[int]bool)
	for _, base := range bases {
		cols := byBase[base]
		total, missing := 0, 0
		for _, j := range cols {
			for i := range t.Securities {
				total++
				if math.IsNaN(t.Values[i][j]) {
					missing++
				}
			}
		}
		if total == 0 {
			continue
		}
		rate := float64(missing) / float64(total)
		if rate > opts.IndicatorDropThreshold {
			log.Debug().Str("industry", t.Industry).Str("indicator", base).
				Float64("missing_rate", rate).Msg("dropping sparse indicator")
			report.IndicatorsDropped = append(report.IndicatorsDropped, base)
			for _, j := range cols {
				dropCol[j] = true
			}
		}
	}
	var keepCols []int
	for j := range t.Columns {
		if !dropCol[j] {
			keepCols = append(keepCols, j)
		}
	}
	report.ColumnsDropped = len(t.Columns) - len(keepCols)
	t = t.SelectColumns(keepCols)

	// 3. Stocks with mostly-missing residual rows.
	keepRows = keepRows[:0]
	if len(t.Columns) > 0 {
		for i := range t.Securities {
			missing := 0
			for j := range t.Columns {
				if math.IsNaN(t.Values[i][j]) {
					missing++
				}
			}
			rate := float64(missing) / float64(len(t.Columns))
			if rate > opts.StockDropThreshold {
				report.StocksDropped++
				continue
			}
			keepRows = append(keepRows, i)
		}
		t = t.SelectRows(keepRows)
	}

	report.RowsKept = len(t.Securities)
	report.ColsKept = len(t.Columns)
	return t, report, nil
}
