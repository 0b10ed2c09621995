package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBaseIndicatorName(t *testing.T) {
	cases := map[string]string{
		"净资产收益率ROE\n[报告期] 2020一季\n[单位] %": "净资产收益率ROE",
		"总资产报酬率\n[报告期] 2021年报":            "总资产报酬率",
		"营业收入\n同比增长率":                    "营业收入",
		"证券名称":                           "证券名称",
	}
	for raw, want := range cases {
		assert.Equal(t, want, BaseIndicatorName(raw), "header %q", raw)
	}
}

func TestParseReportPeriod(t *testing.T) {
	rp, ok := ParseReportPeriod("净资产收益率ROE\n[报告期] 2020一季\n[单位] %")
	require.True(t, ok)
	assert.Equal(t, 2020, rp.Year)
	assert.Equal(t, ReportQ1, rp.Type)
	assert.Equal(t, time.Date(2020, 3, 31, 0, 0, 0, 0, time.UTC), rp.EndDate())

	rp, ok = ParseReportPeriod("销售毛利率\n[报告期] 2023中报")
	require.True(t, ok)
	assert.Equal(t, time.Date(2023, 6, 30, 0, 0, 0, 0, time.UTC), rp.EndDate())

	rp, ok = ParseReportPeriod("资产负债率 2022年报")
	require.True(t, ok)
	assert.Equal(t, time.Date(2022, 12, 31, 0, 0, 0, 0, time.UTC), rp.EndDate())

	_, ok = ParseReportPeriod("证券名称")
	assert.False(t, ok)
}

func TestQuartersBetween(t *testing.T) {
	start := time.Date(2021, 3, 31, 0, 0, 0, 0, time.UTC)
	end := time.Date(2022, 1, 15, 0, 0, 0, 0, time.UTC)

	qs := QuartersBetween(start, end)
	require.Len(t, qs, 5)
	assert.Equal(t, "2021Q1", qs[0].String())
	assert.Equal(t, "2022Q1", qs[4].String())
	assert.Equal(t, time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC), qs[0].Start())
	assert.Equal(t, time.Date(2021, 10, 1, 0, 0, 0, 0, time.UTC), qs[3].Start())

	assert.Nil(t, QuartersBetween(end, start))
}

func TestPriceSeriesLookup(t *testing.T) {
	dates := []time.Time{
		time.Date(2021, 1, 4, 0, 0, 0, 0, time.UTC),
		time.Date(2021, 1, 5, 0, 0, 0, 0, time.UTC),
	}
	ps := NewPriceSeries(dates, []string{"中国移动", "贵州茅台"}, [][]float64{
		{10.0, 2000.0},
		{10.5, nan()},
	})

	i, ok := ps.RowAtOrAfter(time.Date(2021, 1, 5, 0, 0, 0, 0, time.UTC))
	require.True(t, ok)
	assert.Equal(t, 1, i)

	p, ok := ps.PriceAt(0, "中国移动")
	require.True(t, ok)
	assert.Equal(t, 10.0, p)

	_, ok = ps.PriceAt(1, "贵州茅台")
	assert.False(t, ok, "NaN close must be untradable")

	_, ok = ps.PriceAt(0, "不存在")
	assert.False(t, ok)

	_, ok = ps.RowAtOrAfter(time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC))
	assert.False(t, ok)
}

func nan() float64 { var z float64; return z / z }
