package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/quantfan/asharescan/internal/backtest"
	"github.com/quantfan/asharescan/internal/factor"
	"github.com/quantfan/asharescan/internal/universe"
)

// Writer renders every artifact of a backtest run into one directory.
type Writer struct {
	Dir string
}

// NewWriter ensures the output directory exists.
func NewWriter(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir %s: %w", dir, err)
	}
	return &Writer{Dir: dir}, nil
}

// WriteIndustry renders the per-industry artifacts: NAV curve, pick
// JSON, pick grid, per-year loadings heatmaps and the detail workbook.
func (w *Writer) WriteIndustry(res *backtest.Result, totalReturnPct float64) error {
	if err := w.WritePicksJSON(res); err != nil {
		return err
	}
	if err := NAVChart(res, totalReturnPct, w.path(res.Industry+"_净值.png")); err != nil {
		return err
	}
	if err := PicksTableChart(res, w.path(res.Industry+"_选股.png")); err != nil {
		return err
	}
	for _, g := range groupQuartersByYear(res.Loadings) {
		models := make([]*factor.Result, len(g.quarters))
		for i, q := range g.quarters {
			models[i] = res.Loadings[q]
		}
		path := w.path(fmt.Sprintf("%s_%s_因子载荷.png", res.Industry, g.year))
		if err := YearLoadingsFigure(g.quarters, models, path); err != nil {
			return err
		}
	}
	if err := w.BacktestWorkbook(res); err != nil {
		return err
	}
	log.Info().Str("industry", res.Industry).Str("dir", w.Dir).Msg("industry report written")
	return nil
}

// WriteComparison renders the cross-industry NAV overlay and the
// frequency artifacts.
func (w *Writer) WriteComparison(results []*backtest.Result, freqs []universe.Frequency) error {
	if len(results) > 1 {
		if err := ComparisonChart(results, w.path("行业净值对比.png")); err != nil {
			return err
		}
	}
	if len(freqs) == 0 {
		return nil
	}
	if err := FrequencyChart(freqs, 30, w.path("入选次数.png")); err != nil {
		return err
	}
	return w.FrequencyWorkbook(freqs)
}

// WriteIndustryFrequency renders one industry's own pick frequency
// chart and workbook.
func (w *Writer) WriteIndustryFrequency(industry string, freqs []universe.Frequency) error {
	if len(freqs) == 0 {
		return nil
	}
	if err := FrequencyChart(freqs, 30, w.path(industry+"_入选次数.png")); err != nil {
		return err
	}
	return frequencyWorkbook(w.path(industry+"_涉及的股票.xlsx"), freqs)
}

// WritePicksJSON stores the quarterly ledger as the JSON file the
// monitor server serves for this industry.
func (w *Writer) WritePicksJSON(res *backtest.Result) error {
	b, err := json.MarshalIndent(res.Quarters, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal picks for %s: %w", res.Industry, err)
	}
	path := w.path(res.Industry + "_picks.json")
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// PicksTableChart draws the quarter-by-rank pick grid as an image.
func PicksTableChart(res *backtest.Result, path string) error {
	p := plot.New()
	p.Title.Text = res.Industry + " 季度选股"
	p.HideAxes()

	var labels plotter.XYLabels
	maxRank := 0
	for row, q := range res.Quarters {
		y := float64(len(res.Quarters) - row)
		labels.XYs = append(labels.XYs, plotter.XY{X: 0, Y: y})
		labels.Labels = append(labels.Labels, q.Quarter)
		for col, pk := range q.Picks {
			labels.XYs = append(labels.XYs, plotter.XY{X: float64(col + 1), Y: y})
			labels.Labels = append(labels.Labels, pk.Security.Name)
			if col+1 > maxRank {
				maxRank = col + 1
			}
		}
		if q.Skipped {
			labels.XYs = append(labels.XYs, plotter.XY{X: 1, Y: y})
			labels.Labels = append(labels.Labels, "空仓")
		}
	}

	l, err := plotter.NewLabels(labels)
	if err != nil {
		return fmt.Errorf("pick grid for %s: %w", res.Industry, err)
	}
	p.Add(l)
	p.X.Min, p.X.Max = -0.5, float64(maxRank)+1
	p.Y.Min, p.Y.Max = 0, float64(len(res.Quarters))+1

	return p.Save(10*vg.Inch, vg.Length(len(res.Quarters)+2)*vg.Inch/2, path)
}

func (w *Writer) path(name string) string {
	return filepath.Join(w.Dir, name)
}
