package dataset

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/quantfan/asharescan/internal/domain"
)

// ReadFundamentalXLSX loads an industry panel from a terminal XLSX export,
// first sheet only.
func ReadFundamentalXLSX(path, industry string) (*domain.IndicatorTable, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%s: no sheets", path)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%s: read rows: %w", path, err)
	}
	return tableFromRows(industry, rows)
}

// WriteSheetXLSX writes one sheet of string rows to a new workbook.
func WriteSheetXLSX(path, sheet string, rows [][]interface{}) error {
	f := excelize.NewFile()
	defer f.Close()

	if sheet != "Sheet1" {
		idx, err := f.NewSheet(sheet)
		if err != nil {
			return fmt.Errorf("create sheet: %w", err)
		}
		f.SetActiveSheet(idx)
		if err := f.DeleteSheet("Sheet1"); err != nil {
			return fmt.Errorf("drop default sheet: %w", err)
		}
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}
