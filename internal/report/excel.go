package report

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/quantfan/asharescan/internal/backtest"
	"github.com/quantfan/asharescan/internal/universe"
)

// BacktestWorkbook writes the detail workbook for one industry: a ledger
// sheet with per-quarter assets and returns, and a pick sheet.
func (w *Writer) BacktestWorkbook(res *backtest.Result) error {
	f := excelize.NewFile()
	defer f.Close()

	const ledger = "回测明细"
	if err := f.SetSheetName("Sheet1", ledger); err != nil {
		return fmt.Errorf("rename ledger sheet: %w", err)
	}

	rows := [][]interface{}{{"季度", "期初资产", "期末资产", "季度收益率%"}}
	for _, q := range res.Quarters {
		end := ""
		if !q.EndAssets.IsZero() {
			end = q.EndAssets.StringFixed(2)
		}
		rows = append(rows, []interface{}{q.Quarter, q.StartAssets.StringFixed(2), end, q.ReturnPct})
	}
	if err := writeRows(f, ledger, rows); err != nil {
		return err
	}

	const picks = "季度选股"
	if _, err := f.NewSheet(picks); err != nil {
		return fmt.Errorf("create pick sheet: %w", err)
	}
	maxRank := 0
	for _, q := range res.Quarters {
		if len(q.Picks) > maxRank {
			maxRank = len(q.Picks)
		}
	}
	header := []interface{}{"季度"}
	for i := 0; i < maxRank; i++ {
		header = append(header, fmt.Sprintf("第%d名", i+1))
	}
	rows = [][]interface{}{header}
	for _, q := range res.Quarters {
		row := []interface{}{q.Quarter}
		for _, pk := range q.Picks {
			row = append(row, pk.Security.Name)
		}
		if q.Skipped {
			row = append(row, "空仓")
		}
		rows = append(rows, row)
	}
	if err := writeRows(f, picks, rows); err != nil {
		return err
	}

	path := w.path(res.Industry + "_回测.xlsx")
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

// FrequencyWorkbook writes the cross-industry pick frequency counts.
func (w *Writer) FrequencyWorkbook(freqs []universe.Frequency) error {
	return frequencyWorkbook(w.path("入选次数.xlsx"), freqs)
}

func frequencyWorkbook(path string, freqs []universe.Frequency) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "入选次数"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	rows := [][]interface{}{{"证券名称", "入选次数"}}
	for _, fr := range freqs {
		rows = append(rows, []interface{}{fr.Name, fr.Count})
	}
	if err := writeRows(f, sheet, rows); err != nil {
		return err
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("%s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}
