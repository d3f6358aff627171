package workbook

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/sawpanic/marketsheet/internal/market"
)

// ReadSheet returns the raw cell values of one sheet.
func ReadSheet(path, sheet string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", market.ErrPersistence, path, err)
	}
	defer f.Close()

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("%w: read sheet %q: %w", market.ErrPersistence, sheet, err)
	}
	return rows, nil
}

// SheetNames lists the sheets of the workbook at path in workbook order.
func SheetNames(path string) ([]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", market.ErrPersistence, path, err)
	}
	defer f.Close()

	return f.GetSheetList(), nil
}
