// Package dataset reads and writes the pipeline's on-disk tables. CSV is
// the interchange format between stages; XLSX is supported for terminal
// exports on the way in and report workbooks on the way out.
package dataset

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/quantfan/asharescan/internal/domain"
)

// Fundamental tables lead with code and name columns; everything after is
// per-period indicator data.
const fundamentalLeadCols = 2

// parseCell converts one data cell. Terminal exports use "--" for missing.
func parseCell(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" || s == "--" {
		return math.NaN()
	}
	s = strings.ReplaceAll(s, ",", "")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

func formatCell(v float64) string {
	if math.IsNaN(v) {
		return "--"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// tableFromRows builds an IndicatorTable from header+data rows.
func tableFromRows(industry string, rows [][]string) (*domain.IndicatorTable, error) {
	if len(rows) < 1 {
		return nil, fmt.Errorf("industry %s: empty table", industry)
	}
	header := rows[0]
	if len(header) < fundamentalLeadCols {
		return nil, fmt.Errorf("industry %s: header needs code and name columns", industry)
	}

	t := &domain.IndicatorTable{Industry: industry}
	for _, raw := range header[fundamentalLeadCols:] {
		t.Columns = append(t.Columns, domain.NewIndicatorColumn(raw))
	}
	for i, row := range rows[1:] {
		if len(row) == 0 || (len(row) == 1 && strings.TrimSpace(row[0]) == "") {
			continue
		}
		if len(row) < fundamentalLeadCols {
			return nil, fmt.Errorf("industry %s: row %d too short", industry, i+2)
		}
		t.Securities = append(t.Securities, domain.Security{
			Code: strings.TrimSpace(row[0]),
			Name: strings.TrimSpace(row[1]),
		})
		vals := make([]float64, len(t.Columns))
		for j := range t.Columns {
			cell := ""
			if fundamentalLeadCols+j < len(row) {
				cell = row[fundamentalLeadCols+j]
			}
			vals[j] = parseCell(cell)
		}
		t.Values = append(t.Values, vals)
	}
	return t, nil
}

// ReadFundamentalCSV loads one industry's fundamental panel.
func ReadFundamentalCSV(path, industry string) (*domain.IndicatorTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open fundamental table: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return tableFromRows(industry, rows)
}

// WriteFundamentalCSV persists a (typically cleaned) fundamental panel.
func WriteFundamentalCSV(t *domain.IndicatorTable, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create fundamental table: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{"证券代码", "证券名称"}
	for _, c := range t.Columns {
		header = append(header, c.Raw)
	}
	if err := w.Write(header); err != nil {
		return err
	}
	for i, sec := range t.Securities {
		row := []string{sec.Code, sec.Name}
		for j := range t.Columns {
			row = append(row, formatCell(t.Values[i][j]))
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
