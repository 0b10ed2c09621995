package backtest

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfan/asharescan/internal/domain"
	"github.com/quantfan/asharescan/internal/factor"
)

func testConfig() Config {
	return Config{
		Start:          time.Date(2021, 3, 31, 0, 0, 0, 0, time.UTC),
		End:            time.Date(2021, 9, 30, 0, 0, 0, 0, time.UTC),
		InitialCapital: decimal.NewFromInt(1_000_000),
		TopN:           2,
		Factor:         factor.Options{MinCumVar: 0.8, MaxFactors: 10},
	}
}

// Fundamentals with report periods arranged so both rebalances (2021Q2 and
// 2021Q3) see a complete two-indicator window.
func testFundamentals() *domain.IndicatorTable {
	return &domain.IndicatorTable{
		Industry: "银行",
		Securities: []domain.Security{
			{Name: "工商银行"}, {Name: "招商银行"},
		},
		Columns: []domain.IndicatorColumn{
			domain.NewIndicatorColumn("净资产收益率ROE\n[报告期] 2020一季"),
			domain.NewIndicatorColumn("净资产收益率ROE\n[报告期] 2020年报"),
			domain.NewIndicatorColumn("资产负债率\n[报告期] 2020一季"),
			domain.NewIndicatorColumn("资产负债率\n[报告期] 2020年报"),
		},
		Values: [][]float64{
			{12.0, 13.0, 60.0, 61.0},
			{8.0, 9.0, 70.0, 71.0},
		},
	}
}

func testPrices() *domain.PriceSeries {
	return domain.NewPriceSeries(
		[]time.Time{
			time.Date(2021, 4, 1, 0, 0, 0, 0, time.UTC),
			time.Date(2021, 7, 1, 0, 0, 0, 0, time.UTC),
		},
		[]string{"工商银行", "招商银行"},
		[][]float64{
			{10.0, 20.0},
			{11.0, 22.0},
		},
	)
}

func TestRunEqualWeightRebalance(t *testing.T) {
	eng, err := New(testConfig())
	require.NoError(t, err)

	res, err := eng.Run(context.Background(), "银行", testFundamentals(), testPrices())
	require.NoError(t, err)

	// Window 2021-03-31..2021-09-30 trades at 2021-04-01 and 2021-07-01.
	require.Len(t, res.Quarters, 2)
	assert.Equal(t, "2021Q2", res.Quarters[0].Quarter)
	assert.Equal(t, "2021Q3", res.Quarters[1].Quarter)

	// Q2: 1M split evenly across both names at 10 and 20. Both rise 10%
	// by Q3, so the Q3 mark is exactly 1.1M.
	assert.True(t, res.Quarters[0].StartAssets.Equal(decimal.NewFromInt(1_000_000)),
		"got %s", res.Quarters[0].StartAssets)
	assert.True(t, res.Quarters[1].StartAssets.Equal(decimal.NewFromInt(1_100_000)),
		"got %s", res.Quarters[1].StartAssets)
	assert.InDelta(t, 10.0, res.Quarters[1].ReturnPct, 1e-9)

	// Final rebalance only values the book; no new positions.
	assert.True(t, res.FinalAssets.Equal(decimal.NewFromInt(1_100_000)),
		"got %s", res.FinalAssets)
	assert.True(t, res.Quarters[1].EndAssets.Equal(res.FinalAssets))
	assert.InDelta(t, 10.0, res.TotalReturnPct(decimal.NewFromInt(1_000_000)), 1e-9)

	// With top-n covering the whole industry, both names are picked.
	require.Len(t, res.Quarters[0].Picks, 2)
	assert.NotEmpty(t, res.RunID)
	require.NotEmpty(t, res.NAV)
	assert.InDelta(t, 1.0, res.NAV[0].NAV, 1e-9)
	assert.InDelta(t, 1.1, res.NAV[len(res.NAV)-1].NAV, 1e-9)

	// Loadings recorded per traded quarter.
	assert.Contains(t, res.Loadings, "2021Q2")
}

func TestRunStaysInCashWhenWindowEmpty(t *testing.T) {
	// Fundamentals whose report periods all predate the windows: every
	// quarter fails analysis and the run ends flat.
	fund := &domain.IndicatorTable{
		Industry:   "银行",
		Securities: []domain.Security{{Name: "工商银行"}, {Name: "招商银行"}},
		Columns: []domain.IndicatorColumn{
			domain.NewIndicatorColumn("净资产收益率ROE\n[报告期] 2015一季"),
			domain.NewIndicatorColumn("资产负债率\n[报告期] 2015一季"),
		},
		Values: [][]float64{{12, 60}, {8, 70}},
	}

	eng, err := New(testConfig())
	require.NoError(t, err)
	res, err := eng.Run(context.Background(), "银行", fund, testPrices())
	require.NoError(t, err)

	require.Len(t, res.Quarters, 2)
	for _, q := range res.Quarters {
		assert.True(t, q.Skipped)
		assert.True(t, q.StartAssets.Equal(decimal.NewFromInt(1_000_000)))
	}
	assert.True(t, res.FinalAssets.Equal(decimal.NewFromInt(1_000_000)))
}

func TestRunSkipsUntradablePick(t *testing.T) {
	// 招商银行 has no valid price on the first rebalance, so all cash goes
	// into 工商银行 alone.
	prices := domain.NewPriceSeries(
		[]time.Time{
			time.Date(2021, 4, 1, 0, 0, 0, 0, time.UTC),
			time.Date(2021, 7, 1, 0, 0, 0, 0, time.UTC),
		},
		[]string{"工商银行", "招商银行"},
		[][]float64{
			{10.0, math.NaN()},
			{12.0, 22.0},
		},
	)

	eng, err := New(testConfig())
	require.NoError(t, err)
	res, err := eng.Run(context.Background(), "银行", testFundamentals(), prices)
	require.NoError(t, err)

	// 100k shares at 10, marked at 12 on the final rebalance.
	assert.True(t, res.FinalAssets.Equal(decimal.NewFromInt(1_200_000)),
		"got %s", res.FinalAssets)
}

func TestNewValidation(t *testing.T) {
	cfg := testConfig()
	cfg.End = cfg.Start
	_, err := New(cfg)
	require.Error(t, err)

	cfg = testConfig()
	cfg.TopN = 0
	_, err = New(cfg)
	require.Error(t, err)

	cfg = testConfig()
	cfg.InitialCapital = decimal.Zero
	_, err = New(cfg)
	require.Error(t, err)
}

func TestRunRequiresPrices(t *testing.T) {
	eng, err := New(testConfig())
	require.NoError(t, err)
	_, err = eng.Run(context.Background(), "银行", testFundamentals(), nil)
	require.Error(t, err)
}
