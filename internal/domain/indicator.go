package domain

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ReportType is the A-share periodic report cycle a fundamental column
// belongs to.
type ReportType int

const (
	ReportQ1 ReportType = iota + 1 // 一季
	ReportH1                       // 中报
	ReportQ3                       // 三季
	ReportFY                       // 年报
)

// Month returns the calendar month the report period ends in.
func (rt ReportType) Month() time.Month {
	switch rt {
	case ReportQ1:
		return time.March
	case ReportH1:
		return time.June
	case ReportQ3:
		return time.September
	default:
		return time.December
	}
}

func (rt ReportType) String() string {
	switch rt {
	case ReportQ1:
		return "一季"
	case ReportH1:
		return "中报"
	case ReportQ3:
		return "三季"
	default:
		return "年报"
	}
}

// ReportPeriod is a concrete reporting period (e.g. 2021 中报).
type ReportPeriod struct {
	Year int
	Type ReportType
}

// EndDate is the last day of the reporting period.
func (rp ReportPeriod) EndDate() time.Time {
	m := rp.Type.Month()
	firstNext := time.Date(rp.Year, m+1, 1, 0, 0, 0, 0, time.UTC)
	return firstNext.AddDate(0, 0, -1)
}

var periodRe = regexp.MustCompile(`(\d{4}).*?(一季|中报|三季|年报)`)

// ParseReportPeriod extracts the reporting period from a raw column header.
// Headers come from data-terminal exports and look like
// "净资产收益率ROE\n[报告期] 2020一季\n[单位] %".
func ParseReportPeriod(header string) (ReportPeriod, bool) {
	flat := strings.ReplaceAll(header, "\n", " ")
	m := periodRe.FindStringSubmatch(flat)
	if m == nil {
		return ReportPeriod{}, false
	}
	year, err := strconv.Atoi(m[1])
	if err != nil {
		return ReportPeriod{}, false
	}
	var rt ReportType
	switch m[2] {
	case "一季":
		rt = ReportQ1
	case "中报":
		rt = ReportH1
	case "三季":
		rt = ReportQ3
	case "年报":
		rt = ReportFY
	}
	return ReportPeriod{Year: year, Type: rt}, true
}

var (
	bracketRe = regexp.MustCompile(`(?s)\n\[.*?\]`)
	tailRe    = regexp.MustCompile(`(?s)\n.*`)
)

// BaseIndicatorName reduces a raw column header to its indicator name by
// stripping bracketed annotations and everything after the first line.
func BaseIndicatorName(header string) string {
	s := bracketRe.ReplaceAllString(header, "")
	s = tailRe.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// IndicatorColumn is one fundamental data column with its parsed metadata.
type IndicatorColumn struct {
	Raw    string
	Base   string
	Period ReportPeriod
	HasPer bool
}

// NewIndicatorColumn parses a raw header into a column descriptor.
func NewIndicatorColumn(raw string) IndicatorColumn {
	period, ok := ParseReportPeriod(raw)
	return IndicatorColumn{
		Raw:    raw,
		Base:   BaseIndicatorName(raw),
		Period: period,
		HasPer: ok,
	}
}

// IndicatorTable is one industry's fundamental panel: securities down the
// rows, per-period indicator columns across. Values uses NaN for missing.
type IndicatorTable struct {
	Industry   string
	Securities []Security
	Columns    []IndicatorColumn
	Values     [][]float64
}

// SelectColumns returns a copy of the table restricted to the given column
// indices, preserving order.
func (t *IndicatorTable) SelectColumns(idx []int) *IndicatorTable {
	out := &IndicatorTable{
		Industry:   t.Industry,
		Securities: append([]Security(nil), t.Securities...),
		Columns:    make([]IndicatorColumn, len(idx)),
		Values:     make([][]float64, len(t.Securities)),
	}
	for k, j := range idx {
		out.Columns[k] = t.Columns[j]
	}
	for i := range t.Securities {
		row := make([]float64, len(idx))
		for k, j := range idx {
			row[k] = t.Values[i][j]
		}
		out.Values[i] = row
	}
	return out
}

// SelectRows returns a copy of the table restricted to the given row
// indices, preserving order.
func (t *IndicatorTable) SelectRows(idx []int) *IndicatorTable {
	out := &IndicatorTable{
		Industry:   t.Industry,
		Securities: make([]Security, len(idx)),
		Columns:    append([]IndicatorColumn(nil), t.Columns...),
		Values:     make([][]float64, len(idx)),
	}
	for k, i := range idx {
		out.Securities[k] = t.Securities[i]
		out.Values[k] = append([]float64(nil), t.Values[i]...)
	}
	return out
}
