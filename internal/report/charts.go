// Package report renders backtest artifacts: PNG charts through
// gonum/plot and XLSX workbooks through excelize, plus the JSON pick
// files the monitor server reads.
package report

import (
	"fmt"
	"os"
	"sort"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/quantfan/asharescan/internal/backtest"
	"github.com/quantfan/asharescan/internal/factor"
	"github.com/quantfan/asharescan/internal/universe"
)

// NAVChart draws one industry's net-value curve with the total return in
// the title.
func NAVChart(res *backtest.Result, totalReturnPct float64, path string) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s 组合净值 (总收益 %.2f%%)", res.Industry, totalReturnPct)
	p.Y.Label.Text = "净值"
	p.Add(plotter.NewGrid())

	line, err := plotter.NewLine(navXYs(res.NAV))
	if err != nil {
		return fmt.Errorf("nav line for %s: %w", res.Industry, err)
	}
	line.Width = vg.Points(1.5)
	p.Add(line)
	p.X.Tick.Marker = quarterTicks(res.NAV)

	return p.Save(9*vg.Inch, 5*vg.Inch, path)
}

// ComparisonChart overlays the net-value curves of several industries.
func ComparisonChart(results []*backtest.Result, path string) error {
	p := plot.New()
	p.Title.Text = "行业组合净值对比"
	p.Y.Label.Text = "净值"
	p.Add(plotter.NewGrid())
	p.Legend.Top = true

	var longest []backtest.NAVPoint
	for i, res := range results {
		line, err := plotter.NewLine(navXYs(res.NAV))
		if err != nil {
			return fmt.Errorf("nav line for %s: %w", res.Industry, err)
		}
		line.Width = vg.Points(1.5)
		line.Color = plotutil.Color(i)
		p.Add(line)
		p.Legend.Add(res.Industry, line)
		if len(res.NAV) > len(longest) {
			longest = res.NAV
		}
	}
	p.X.Tick.Marker = quarterTicks(longest)

	return p.Save(9*vg.Inch, 5*vg.Inch, path)
}

// LoadingsHeatmap draws one rotated loadings matrix, indicators on Y and
// factors on X.
func LoadingsHeatmap(model *factor.Result, title, path string) error {
	p := loadingsPlot(model, title)
	return p.Save(7*vg.Inch, 8*vg.Inch, path)
}

// YearLoadingsFigure tiles the rotated loadings of every quarter in one
// year side by side into a single figure.
func YearLoadingsFigure(quarters []string, models []*factor.Result, path string) error {
	if len(quarters) == 0 || len(quarters) != len(models) {
		return fmt.Errorf("year figure needs matching quarters and models, got %d/%d",
			len(quarters), len(models))
	}

	plots := make([][]*plot.Plot, 1)
	for i, q := range quarters {
		plots[0] = append(plots[0], loadingsPlot(models[i], q))
	}

	img := vgimg.New(vg.Length(len(quarters))*6*vg.Inch, 7*vg.Inch)
	dc := draw.New(img)
	tiles := draw.Tiles{
		Rows: 1,
		Cols: len(quarters),
		PadX: vg.Millimeter * 2,
		PadY: vg.Millimeter * 2,
	}
	canvases := plot.Align(plots, tiles, dc)
	for i, p := range plots[0] {
		p.Draw(canvases[0][i])
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	png := vgimg.PngCanvas{Canvas: img}
	if _, err := png.WriteTo(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func loadingsPlot(model *factor.Result, title string) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "因子"

	grid := loadingsGrid{model: model}
	p.Add(plotter.NewHeatMap(grid, palette.Heat(12, 1)))

	var xt []plot.Tick
	for j := 0; j < model.Factors; j++ {
		xt = append(xt, plot.Tick{Value: float64(j), Label: fmt.Sprintf("F%d", j+1)})
	}
	var yt []plot.Tick
	for i, name := range model.Indicators {
		yt = append(yt, plot.Tick{Value: float64(i), Label: name})
	}
	p.X.Tick.Marker = plot.ConstantTicks(xt)
	p.Y.Tick.Marker = plot.ConstantTicks(yt)
	return p
}

// FrequencyChart draws the most frequently picked stocks as a bar chart,
// limited to the top limit entries.
func FrequencyChart(freqs []universe.Frequency, limit int, path string) error {
	if len(freqs) > limit {
		freqs = freqs[:limit]
	}

	vals := make(plotter.Values, len(freqs))
	names := make([]string, len(freqs))
	for i, f := range freqs {
		vals[i] = float64(f.Count)
		names[i] = f.Name
	}

	bars, err := plotter.NewBarChart(vals, vg.Points(12))
	if err != nil {
		return fmt.Errorf("frequency bars: %w", err)
	}
	bars.Color = plotutil.Color(0)

	p := plot.New()
	p.Title.Text = "入选次数排名"
	p.Y.Label.Text = "次数"
	p.Add(bars)
	p.NominalX(names...)
	p.X.Tick.Label.Rotation = -1.2
	p.X.Tick.Label.YAlign = -0.4

	return p.Save(11*vg.Inch, 5*vg.Inch, path)
}

func navXYs(nav []backtest.NAVPoint) plotter.XYs {
	xys := make(plotter.XYs, len(nav))
	for i, pt := range nav {
		xys[i].X = float64(i)
		xys[i].Y = pt.NAV
	}
	return xys
}

func quarterTicks(nav []backtest.NAVPoint) plot.ConstantTicks {
	ticks := make([]plot.Tick, len(nav))
	for i, pt := range nav {
		ticks[i] = plot.Tick{Value: float64(i), Label: pt.Quarter}
	}
	return plot.ConstantTicks(ticks)
}

// loadingsGrid adapts a loadings matrix to the heatmap grid interface.
type loadingsGrid struct {
	model *factor.Result
}

func (g loadingsGrid) Dims() (int, int) { return g.model.Factors, len(g.model.Indicators) }
func (g loadingsGrid) X(c int) float64  { return float64(c) }
func (g loadingsGrid) Y(r int) float64  { return float64(r) }
func (g loadingsGrid) Z(c, r int) float64 {
	return g.model.Loadings.At(r, c)
}

// yearGroup is the ordered quarter labels of one calendar year.
type yearGroup struct {
	year     string
	quarters []string
}

// groupQuartersByYear orders the modeled quarters and buckets them by
// calendar year.
func groupQuartersByYear(loadings map[string]*factor.Result) []yearGroup {
	labels := make([]string, 0, len(loadings))
	for l := range loadings {
		labels = append(labels, l)
	}
	sort.Strings(labels)

	var out []yearGroup
	for _, l := range labels {
		if len(l) < 4 {
			continue
		}
		year := l[:4]
		if n := len(out); n == 0 || out[n-1].year != year {
			out = append(out, yearGroup{year: year})
		}
		out[len(out)-1].quarters = append(out[len(out)-1].quarters, l)
	}
	return out
}
