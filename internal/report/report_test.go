package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"gonum.org/v1/gonum/mat"

	"github.com/quantfan/asharescan/internal/backtest"
	"github.com/quantfan/asharescan/internal/domain"
	"github.com/quantfan/asharescan/internal/factor"
	"github.com/quantfan/asharescan/internal/universe"
)

func sampleResult() *backtest.Result {
	return &backtest.Result{
		RunID:    "test-run",
		Industry: "银行",
		Quarters: []backtest.QuarterRecord{
			{
				Quarter:     "2021Q1",
				StartAssets: decimal.NewFromInt(1000000),
				Picks: []domain.Ranking{
					{Security: domain.Security{Code: "601398.SH", Name: "工商银行"}, Score: 1.2},
					{Security: domain.Security{Code: "601939.SH", Name: "建设银行"}, Score: 0.8},
				},
			},
			{
				Quarter:     "2021Q2",
				StartAssets: decimal.NewFromInt(1100000),
				EndAssets:   decimal.NewFromInt(1100000),
				ReturnPct:   10,
				Skipped:     true,
				SkipReason:  "insufficient data",
			},
		},
		FinalAssets: decimal.NewFromInt(1100000),
		NAV: []backtest.NAVPoint{
			{Quarter: "2021Q1", NAV: 1},
			{Quarter: "2021Q2", NAV: 1.1},
			{Quarter: "2021Q2末", NAV: 1.1},
		},
	}
}

func TestWritePicksJSON(t *testing.T) {
	w, err := NewWriter(t.TempDir())
	require.NoError(t, err)

	res := sampleResult()
	require.NoError(t, w.WritePicksJSON(res))

	b, err := os.ReadFile(filepath.Join(w.Dir, "银行_picks.json"))
	require.NoError(t, err)

	var quarters []backtest.QuarterRecord
	require.NoError(t, json.Unmarshal(b, &quarters))
	require.Len(t, quarters, 2)
	assert.Equal(t, "2021Q1", quarters[0].Quarter)
	assert.Equal(t, "工商银行", quarters[0].Picks[0].Security.Name)
	assert.True(t, quarters[1].Skipped)
}

func TestBacktestWorkbook(t *testing.T) {
	w, err := NewWriter(t.TempDir())
	require.NoError(t, err)

	res := sampleResult()
	require.NoError(t, w.BacktestWorkbook(res))

	f, err := excelize.OpenFile(filepath.Join(w.Dir, "银行_回测.xlsx"))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("回测明细")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "季度", rows[0][0])
	assert.Equal(t, "2021Q1", rows[1][0])
	assert.Equal(t, "1000000.00", rows[1][1])
	assert.Equal(t, "1100000.00", rows[2][2])

	picks, err := f.GetRows("季度选股")
	require.NoError(t, err)
	assert.Equal(t, "第1名", picks[0][1])
	assert.Equal(t, "工商银行", picks[1][1])
	assert.Equal(t, "空仓", picks[2][1])
}

func TestFrequencyWorkbook(t *testing.T) {
	w, err := NewWriter(t.TempDir())
	require.NoError(t, err)

	freqs := []universe.Frequency{
		{Name: "工商银行", Count: 8},
		{Name: "建设银行", Count: 5},
	}
	require.NoError(t, w.FrequencyWorkbook(freqs))

	f, err := excelize.OpenFile(filepath.Join(w.Dir, "入选次数.xlsx"))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("入选次数")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "工商银行", rows[1][0])
	assert.Equal(t, "8", rows[1][1])
}

func TestNAVChartWritesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nav.png")

	res := sampleResult()
	require.NoError(t, NAVChart(res, 10, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func sampleModel() *factor.Result {
	return &factor.Result{
		Indicators: []string{"净资产收益率", "每股收益"},
		Factors:    2,
		Loadings:   mat.NewDense(2, 2, []float64{0.9, 0.1, 0.2, 0.8}),
		Weights:    []float64{0.6, 0.4},
	}
}

func TestGroupQuartersByYear(t *testing.T) {
	loadings := map[string]*factor.Result{
		"2021Q3": sampleModel(),
		"2021Q1": sampleModel(),
		"2022Q2": sampleModel(),
	}

	groups := groupQuartersByYear(loadings)
	require.Len(t, groups, 2)
	assert.Equal(t, "2021", groups[0].year)
	assert.Equal(t, []string{"2021Q1", "2021Q3"}, groups[0].quarters)
	assert.Equal(t, []string{"2022Q2"}, groups[1].quarters)
}

func TestYearLoadingsFigureRendersAllQuarters(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "loadings.png")

	quarters := []string{"2021Q1", "2021Q2", "2021Q3"}
	models := []*factor.Result{sampleModel(), sampleModel(), sampleModel()}
	require.NoError(t, YearLoadingsFigure(quarters, models, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	err = YearLoadingsFigure([]string{"2021Q1"}, nil, filepath.Join(dir, "bad.png"))
	require.Error(t, err)
}

func TestLoadingsHeatmapWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "single.png")
	require.NoError(t, LoadingsHeatmap(sampleModel(), "2021Q1", path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestWriteIndustryFrequency(t *testing.T) {
	w, err := NewWriter(t.TempDir())
	require.NoError(t, err)

	freqs := []universe.Frequency{
		{Name: "工商银行", Count: 8},
		{Name: "建设银行", Count: 5},
	}
	require.NoError(t, w.WriteIndustryFrequency("银行", freqs))

	_, err = os.Stat(filepath.Join(w.Dir, "银行_入选次数.png"))
	require.NoError(t, err)

	f, err := excelize.OpenFile(filepath.Join(w.Dir, "银行_涉及的股票.xlsx"))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("入选次数")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "工商银行", rows[1][0])

	assert.NoError(t, w.WriteIndustryFrequency("证券", nil), "no picks writes nothing")
	_, err = os.Stat(filepath.Join(w.Dir, "证券_入选次数.png"))
	assert.True(t, os.IsNotExist(err))
}

func TestFrequencyChartLimitsEntries(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "freq.png")

	var freqs []universe.Frequency
	for i := 0; i < 40; i++ {
		freqs = append(freqs, universe.Frequency{Name: string(rune('A' + i%26)), Count: 40 - i})
	}
	require.NoError(t, FrequencyChart(freqs, 30, path))

	_, err := os.Stat(path)
	require.NoError(t, err)
}
