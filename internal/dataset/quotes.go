package dataset

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"sort"
	"time"

	"github.com/quantfan/asharescan/internal/domain"
)

var quoteHeader = []string{"code", "name", "industry", "trade_date", "open", "high", "low", "close", "volume", "amount"}

// WriteQuotesCSV dumps long-form daily bars as fetched.
func WriteQuotesCSV(quotes []domain.Quote, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create quotes file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(quoteHeader); err != nil {
		return err
	}
	for _, q := range quotes {
		row := []string{
			q.Code, q.Name, q.Industry, q.Date.Format("2006-01-02"),
			formatCell(q.Open), formatCell(q.High), formatCell(q.Low), formatCell(q.Close),
			formatCell(q.Volume), formatCell(q.Amount),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// ReadQuotesCSV loads a long-form quote dump.
func ReadQuotesCSV(path string) ([]domain.Quote, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open quotes file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(rows) < 1 {
		return nil, fmt.Errorf("%s: empty quotes file", path)
	}

	var out []domain.Quote
	for i, row := range rows[1:] {
		if len(row) < len(quoteHeader) {
			return nil, fmt.Errorf("%s: row %d has %d fields, want %d", path, i+2, len(row), len(quoteHeader))
		}
		date, err := time.Parse("2006-01-02", row[3])
		if err != nil {
			return nil, fmt.Errorf("%s: row %d trade_date: %w", path, i+2, err)
		}
		out = append(out, domain.Quote{
			Code: row[0], Name: row[1], Industry: row[2], Date: date,
			Open: parseCell(row[4]), High: parseCell(row[5]), Low: parseCell(row[6]),
			Close: parseCell(row[7]), Volume: parseCell(row[8]), Amount: parseCell(row[9]),
		})
	}
	return out, nil
}

// Pivot reshapes long-form quotes into the wide close-price series: dates
// ascending, columns sorted by stock name, first close wins on duplicates.
func Pivot(quotes []domain.Quote) *domain.PriceSeries {
	nameSet := map[string]bool{}
	dateSet := map[time.Time]bool{}
	for _, q := range quotes {
		nameSet[q.Name] = true
		dateSet[q.Date] = true
	}

	names := make([]string, 0, len(nameSet))
	for n := range nameSet {
		names = append(names, n)
	}
	sort.Strings(names)

	dates := make([]time.Time, 0, len(dateSet))
	for d := range dateSet {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	nameIdx := make(map[string]int, len(names))
	for j, n := range names {
		nameIdx[n] = j
	}
	dateIdx := make(map[time.Time]int, len(dates))
	for i, d := range dates {
		dateIdx[d] = i
	}

	close := make([][]float64, len(dates))
	for i := range close {
		row := make([]float64, len(names))
		for j := range row {
			row[j] = math.NaN()
		}
		close[i] = row
	}
	for _, q := range quotes {
		i, j := dateIdx[q.Date], nameIdx[q.Name]
		if math.IsNaN(close[i][j]) {
			close[i][j] = q.Close
		}
	}
	return domain.NewPriceSeries(dates, names, close)
}

// WritePriceSeriesCSV exports the wide series newest-first, the layout the
// research workbooks expect.
func WritePriceSeriesCSV(ps *domain.PriceSeries, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create price series: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := append([]string{"日期"}, ps.Names...)
	if err := w.Write(header); err != nil {
		return err
	}
	for i := ps.Len() - 1; i >= 0; i-- {
		row := make([]string, 0, len(header))
		row = append(row, ps.Dates[i].Format("2006-01-02"))
		for j := range ps.Names {
			row = append(row, formatCell(ps.Close[i][j]))
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// ReadPriceSeriesCSV loads a wide series in either date order and returns
// it ascending.
func ReadPriceSeriesCSV(path string) (*domain.PriceSeries, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open price series: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(rows) < 1 || len(rows[0]) < 2 {
		return nil, fmt.Errorf("%s: malformed price series", path)
	}

	names := rows[0][1:]
	type entry struct {
		date time.Time
		vals []float64
	}
	entries := make([]entry, 0, len(rows)-1)
	for i, row := range rows[1:] {
		date, err := time.Parse("2006-01-02", row[0])
		if err != nil {
			return nil, fmt.Errorf("%s: row %d date: %w", path, i+2, err)
		}
		vals := make([]float64, len(names))
		for j := range names {
			cell := ""
			if 1+j < len(row) {
				cell = row[1+j]
			}
			vals[j] = parseCell(cell)
		}
		entries = append(entries, entry{date: date, vals: vals})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].date.Before(entries[j].date) })

	dates := make([]time.Time, len(entries))
	close := make([][]float64, len(entries))
	for i, e := range entries {
		dates[i] = e.date
		close[i] = e.vals
	}
	return domain.NewPriceSeries(dates, names, close), nil
}
