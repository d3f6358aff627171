// Package workbook persists the live-data table and its summary into an xlsx workbook.
//
// A write reads the existing workbook (if any), replaces the "Live Data" and "Analysis"
// sheets and leaves every other sheet as it was. The result is written to a temp file and
// renamed over the target, so a failed write never leaves a partial workbook behind.
package workbook

import (
	"errors"
	"fmt"
	stdio "io"
	"io/fs"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"

	"github.com/sawpanic/marketsheet/internal/analysis"
	xio "github.com/sawpanic/marketsheet/internal/io"
	"github.com/sawpanic/marketsheet/internal/market"
)

const (
	LiveDataSheet = "Live Data"
	AnalysisSheet = "Analysis"

	defaultSheet   = "Sheet1"
	pendingSuffix  = " (new)"
	metricColWidth = 22
	valueColWidth  = 60
)

// Analysis sheet labels in row order.
const (
	MetricTopByMarketCap = "Top 5 by Market Cap"
	MetricAveragePrice   = "Average Price"
	MetricHighestChange  = "Highest 24h Change"
	MetricLowestChange   = "Lowest 24h Change"
)

// Writer writes cycles into a workbook file.
type Writer struct{}

// NewWriter returns a Writer.
func NewWriter() *Writer {
	return &Writer{}
}

// Write replaces both managed sheets of the workbook at path. All failures match
// market.ErrPersistence.
func (w *Writer) Write(path string, table analysis.Table, summary analysis.Summary) (err error) {
	f, created, err := openOrCreate(path)
	if err != nil {
		return fmt.Errorf("%w: open %s: %w", market.ErrPersistence, path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("%w: close %s: %w", market.ErrPersistence, path, cerr)
		}
	}()

	if err := replaceSheet(f, LiveDataSheet, func(sheet string) error {
		return writeLiveData(f, sheet, table)
	}); err != nil {
		return fmt.Errorf("%w: sheet %q: %w", market.ErrPersistence, LiveDataSheet, err)
	}

	if err := replaceSheet(f, AnalysisSheet, func(sheet string) error {
		return writeAnalysis(f, sheet, summary)
	}); err != nil {
		return fmt.Errorf("%w: sheet %q: %w", market.ErrPersistence, AnalysisSheet, err)
	}

	if created {
		if err := f.DeleteSheet(defaultSheet); err != nil {
			return fmt.Errorf("%w: drop default sheet: %w", market.ErrPersistence, err)
		}
	}

	if idx, err := f.GetSheetIndex(LiveDataSheet); err == nil && idx >= 0 {
		f.SetActiveSheet(idx)
	}

	if err := xio.ReplaceAtomic(path, func(out stdio.Writer) error {
		return f.Write(out)
	}); err != nil {
		return fmt.Errorf("%w: save %s: %w", market.ErrPersistence, path, err)
	}

	log.Debug().
		Str("path", path).
		Bool("created", created).
		Int("rows", len(table.Rows)).
		Msg("Workbook written")

	return nil
}

func openOrCreate(path string) (*excelize.File, bool, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return excelize.NewFile(), true, nil
		}
		return nil, false, err
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, false, err
	}
	return f, false, nil
}

// replaceSheet builds the new content under a free staging name, then swaps it in for name.
// Only name itself and the staging sheet created here are ever deleted.
func replaceSheet(f *excelize.File, name string, fill func(sheet string) error) error {
	pending, err := stagingName(f, name)
	if err != nil {
		return err
	}

	if _, err := f.NewSheet(pending); err != nil {
		return err
	}
	if err := fill(pending); err != nil {
		return err
	}

	idx, err := f.GetSheetIndex(name)
	if err != nil {
		return err
	}
	if idx >= 0 {
		if err := f.DeleteSheet(name); err != nil {
			return err
		}
	}

	return f.SetSheetName(pending, name)
}

// stagingName returns "<name> (new)", or "<name> (new N)" when that sheet already exists.
func stagingName(f *excelize.File, name string) (string, error) {
	candidate := name + pendingSuffix
	for n := 2; ; n++ {
		idx, err := f.GetSheetIndex(candidate)
		if err != nil {
			return "", err
		}
		if idx < 0 {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s (new %d)", name, n)
	}
}

func writeLiveData(f *excelize.File, sheet string, table analysis.Table) error {
	header := make([]interface{}, len(table.Columns))
	for i, col := range table.Columns {
		header[i] = col
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}

	for i, row := range table.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}

		values := make([]interface{}, len(row))
		for j, v := range row {
			values[j] = cellValue(v)
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return err
		}
	}

	return nil
}

func cellValue(v analysis.Value) interface{} {
	if !v.Numeric {
		return v.Str
	}
	if !v.Num.Valid {
		return nil
	}
	return v.Num.Decimal.InexactFloat64()
}

func writeAnalysis(f *excelize.File, sheet string, summary analysis.Summary) error {
	rows := [][]interface{}{
		{"Metric", "Value"},
		{MetricTopByMarketCap, summary.TopByMarketCapText()},
		{MetricAveragePrice, summary.AveragePrice.InexactFloat64()},
		{MetricHighestChange, summary.HighestChangeText()},
		{MetricLowestChange, summary.LowestChangeText()},
	}

	for i := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &rows[i]); err != nil {
			return err
		}
	}

	wrap, err := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"},
	})
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "B2", fmt.Sprintf("B%d", len(rows)), wrap); err != nil {
		return err
	}

	if err := f.SetColWidth(sheet, "A", "A", metricColWidth); err != nil {
		return err
	}
	return f.SetColWidth(sheet, "B", "B", valueColWidth)
}
