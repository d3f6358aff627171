package workbook

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/sawpanic/marketsheet/internal/analysis"
	"github.com/sawpanic/marketsheet/internal/market"
)

func num(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func sampleSnapshot() market.Snapshot {
	return market.Snapshot{Records: []market.AssetRecord{
		{Name: "Bitcoin", Symbol: "btc", CurrentPrice: num("50000"), MarketCap: num("1000000"), TotalVolume: num("25000"), PriceChangePerc24h: num("2.5")},
		{Name: "Ether", Symbol: "eth", CurrentPrice: num("3000"), MarketCap: num("500000"), TotalVolume: num("12000.75"), PriceChangePerc24h: num("-1")},
		{Name: "Newcoin", Symbol: "new", CurrentPrice: num("0.0001234"), MarketCap: num("42"), TotalVolume: num("10")},
	}}
}

func analyzed(t *testing.T, snapshot market.Snapshot) (analysis.Table, analysis.Summary) {
	t.Helper()
	table, summary, err := analysis.Analyze(snapshot)
	require.NoError(t, err)
	return table, summary
}

func expectedRows(table analysis.Table) [][]string {
	rows := [][]string{append([]string(nil), table.Columns...)}
	for _, row := range table.Rows {
		out := make([]string, 0, len(row))
		for _, v := range row {
			switch {
			case !v.Numeric:
				out = append(out, v.Str)
			case v.Num.Valid:
				out = append(out, strconv.FormatFloat(v.Num.Decimal.InexactFloat64(), 'f', -1, 64))
			default:
				out = append(out, "")
			}
		}
		// GetRows drops trailing empty cells
		for len(out) > 0 && out[len(out)-1] == "" {
			out = out[:len(out)-1]
		}
		rows = append(rows, out)
	}
	return rows
}

func TestWrite_NewWorkbookRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crypto_data.xlsx")
	table, summary := analyzed(t, sampleSnapshot())

	require.NoError(t, NewWriter().Write(path, table, summary))

	names, err := SheetNames(path)
	require.NoError(t, err)
	assert.Equal(t, []string{LiveDataSheet, AnalysisSheet}, names)

	rows, err := ReadSheet(path, LiveDataSheet)
	require.NoError(t, err)
	assert.Equal(t, expectedRows(table), rows)
	assert.Equal(t, []string{"Bitcoin", "btc", "50000", "1000000", "25000", "2.5"}, rows[1])
	assert.Equal(t, []string{"Newcoin", "new", "0.0001234", "42", "10"}, rows[3])
}

func TestWrite_AnalysisSheet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crypto_data.xlsx")
	table, summary := analyzed(t, sampleSnapshot())

	require.NoError(t, NewWriter().Write(path, table, summary))

	rows, err := ReadSheet(path, AnalysisSheet)
	require.NoError(t, err)
	require.Len(t, rows, 5)

	assert.Equal(t, []string{"Metric", "Value"}, rows[0])
	assert.Equal(t, []string{MetricTopByMarketCap, summary.TopByMarketCapText()}, rows[1])
	assert.Equal(t, MetricAveragePrice, rows[2][0])
	avg, err := strconv.ParseFloat(rows[2][1], 64)
	require.NoError(t, err)
	assert.InDelta(t, (50000+3000+0.0001234)/3, avg, 1e-6)
	assert.Equal(t, []string{MetricHighestChange, summary.HighestChangeText()}, rows[3])
	assert.Equal(t, []string{MetricLowestChange, summary.LowestChangeText()}, rows[4])

	assert.Contains(t, rows[1][1], "\n", "top block is multi-line")
}

func TestWrite_OverwritesAndPreservesOtherSheets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crypto_data.xlsx")

	// a pre-existing workbook with a user sheet and stale managed sheets
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetName("Sheet1", "Notes"))
	require.NoError(t, f.SetCellValue("Notes", "A1", "keep me"))
	_, err := f.NewSheet(LiveDataSheet)
	require.NoError(t, err)
	for i := 1; i <= 100; i++ {
		require.NoError(t, f.SetCellValue(LiveDataSheet, "A"+strconv.Itoa(i), "stale"))
	}
	_, err = f.NewSheet(AnalysisSheet)
	require.NoError(t, err)
	require.NoError(t, f.SetCellValue(AnalysisSheet, "C9", "stale"))
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	table, summary := analyzed(t, sampleSnapshot())
	require.NoError(t, NewWriter().Write(path, table, summary))

	notes, err := ReadSheet(path, "Notes")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"keep me"}}, notes)

	live, err := ReadSheet(path, LiveDataSheet)
	require.NoError(t, err)
	assert.Equal(t, expectedRows(table), live, "stale rows are gone")

	result, err := ReadSheet(path, AnalysisSheet)
	require.NoError(t, err)
	assert.Len(t, result, 5)
	for _, row := range result {
		assert.LessOrEqual(t, len(row), 2, "stale cells are gone")
	}

	names, err := SheetNames(path)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Notes", LiveDataSheet, AnalysisSheet}, names)
}

func TestWrite_KeepsUserSheetsNamedLikeStagingSheets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crypto_data.xlsx")

	f := excelize.NewFile()
	require.NoError(t, f.SetSheetName("Sheet1", LiveDataSheet+pendingSuffix))
	require.NoError(t, f.SetCellValue(LiveDataSheet+pendingSuffix, "A1", "user data"))
	_, err := f.NewSheet(AnalysisSheet + " (new 2)")
	require.NoError(t, err)
	_, err = f.NewSheet(AnalysisSheet + pendingSuffix)
	require.NoError(t, err)
	require.NoError(t, f.SetCellValue(AnalysisSheet+pendingSuffix, "A1", "more user data"))
	_, err = f.NewSheet("Summary")
	require.NoError(t, err)
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	table, summary := analyzed(t, sampleSnapshot())
	require.NoError(t, NewWriter().Write(path, table, summary))

	names, err := SheetNames(path)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		LiveDataSheet + pendingSuffix,
		AnalysisSheet + " (new 2)",
		AnalysisSheet + pendingSuffix,
		"Summary",
		LiveDataSheet,
		AnalysisSheet,
	}, names)

	kept, err := ReadSheet(path, LiveDataSheet+pendingSuffix)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"user data"}}, kept)

	kept, err = ReadSheet(path, AnalysisSheet+pendingSuffix)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"more user data"}}, kept)

	live, err := ReadSheet(path, LiveDataSheet)
	require.NoError(t, err)
	assert.Equal(t, expectedRows(table), live)
}

func TestWrite_SecondCycleReplacesFirst(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crypto_data.xlsx")
	writer := NewWriter()

	table, summary := analyzed(t, sampleSnapshot())
	require.NoError(t, writer.Write(path, table, summary))

	smaller := market.Snapshot{Records: sampleSnapshot().Records[1:2]}
	table2, summary2 := analyzed(t, smaller)
	require.NoError(t, writer.Write(path, table2, summary2))

	live, err := ReadSheet(path, LiveDataSheet)
	require.NoError(t, err)
	assert.Equal(t, expectedRows(table2), live)

	names, err := SheetNames(path)
	require.NoError(t, err)
	assert.Equal(t, []string{LiveDataSheet, AnalysisSheet}, names)
}

func TestWrite_InvalidWorkbookIsPersistenceError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crypto_data.xlsx")
	require.NoError(t, os.WriteFile(path, []byte("not a workbook"), 0644))

	table, summary := analyzed(t, sampleSnapshot())
	err := NewWriter().Write(path, table, summary)
	require.Error(t, err)
	assert.ErrorIs(t, err, market.ErrPersistence)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "not a workbook", string(data), "file is left untouched")
}

func TestWrite_UnwritableLocationIsPersistenceError(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	table, summary := analyzed(t, sampleSnapshot())
	err := NewWriter().Write(filepath.Join(blocker, "crypto_data.xlsx"), table, summary)
	require.Error(t, err)
	assert.ErrorIs(t, err, market.ErrPersistence)
}

func TestReadSheet_Errors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crypto_data.xlsx")

	_, err := ReadSheet(path, LiveDataSheet)
	assert.ErrorIs(t, err, market.ErrPersistence)

	table, summary := analyzed(t, sampleSnapshot())
	require.NoError(t, NewWriter().Write(path, table, summary))

	_, err = ReadSheet(path, "Missing")
	assert.ErrorIs(t, err, market.ErrPersistence)
}
