// Package analysis turns a market snapshot into the live-data table and its summary metrics.
//
// All selections are stable with respect to upstream order: among records with equal market
// caps the one listed first upstream ranks first, and the earliest record holding the maximum
// or minimum 24h change wins.
package analysis

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/sawpanic/marketsheet/internal/market"
)

// TopN is the number of assets listed by market cap.
const TopN = 5

// Value is a single table cell. Numeric cells with an invalid Num are empty.
type Value struct {
	Str     string
	Num     decimal.NullDecimal
	Numeric bool
}

// Row is one table row in column order.
type Row []Value

// Table is the projected snapshot in upstream order.
type Table struct {
	Columns []string
	Rows    []Row
}

// AssetValue pairs an asset name with one of its metrics.
type AssetValue struct {
	Name  string
	Value decimal.Decimal
}

// Summary holds the derived metrics of one snapshot.
type Summary struct {
	TopByMarketCap []AssetValue
	AveragePrice   decimal.Decimal
	HighestChange  AssetValue
	LowestChange   AssetValue
}

// Analyze projects the snapshot into a table and computes its summary. It fails with
// market.ErrEmptySnapshot when there are no records, or when no record carries a value for a
// field a metric is computed from.
func Analyze(snapshot market.Snapshot) (Table, Summary, error) {
	if snapshot.Len() == 0 {
		return Table{}, Summary{}, fmt.Errorf("%w: snapshot has no records", market.ErrEmptySnapshot)
	}

	top, err := topByMarketCap(snapshot.Records, TopN)
	if err != nil {
		return Table{}, Summary{}, err
	}
	avg, err := averagePrice(snapshot.Records)
	if err != nil {
		return Table{}, Summary{}, err
	}
	highest, lowest, err := changeExtremes(snapshot.Records)
	if err != nil {
		return Table{}, Summary{}, err
	}

	summary := Summary{
		TopByMarketCap: top,
		AveragePrice:   avg,
		HighestChange:  highest,
		LowestChange:   lowest,
	}

	return BuildTable(snapshot.Records), summary, nil
}

// BuildTable projects records into the fixed column order without reordering them.
func BuildTable(records []market.AssetRecord) Table {
	table := Table{
		Columns: append([]string(nil), market.Fields...),
		Rows:    make([]Row, 0, len(records)),
	}

	for _, r := range records {
		table.Rows = append(table.Rows, Row{
			{Str: r.Name},
			{Str: r.Symbol},
			{Num: r.CurrentPrice, Numeric: true},
			{Num: r.MarketCap, Numeric: true},
			{Num: r.TotalVolume, Numeric: true},
			{Num: r.PriceChangePerc24h, Numeric: true},
		})
	}

	return table
}

func topByMarketCap(records []market.AssetRecord, n int) ([]AssetValue, error) {
	ranked := make([]AssetValue, 0, len(records))
	for _, r := range records {
		if r.MarketCap.Valid {
			ranked = append(ranked, AssetValue{Name: r.Name, Value: r.MarketCap.Decimal})
		}
	}
	if len(ranked) == 0 {
		return nil, fmt.Errorf("%w: no record has %s", market.ErrEmptySnapshot, market.FieldMarketCap)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Value.GreaterThan(ranked[j].Value)
	})

	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked, nil
}

func averagePrice(records []market.AssetRecord) (decimal.Decimal, error) {
	sum := decimal.Zero
	count := int64(0)
	for _, r := range records {
		if r.CurrentPrice.Valid {
			sum = sum.Add(r.CurrentPrice.Decimal)
			count++
		}
	}
	if count == 0 {
		return decimal.Zero, fmt.Errorf("%w: no record has %s", market.ErrEmptySnapshot, market.FieldCurrentPrice)
	}
	return sum.Div(decimal.NewFromInt(count)), nil
}

func changeExtremes(records []market.AssetRecord) (AssetValue, AssetValue, error) {
	var highest, lowest AssetValue
	found := false

	for _, r := range records {
		if !r.PriceChangePerc24h.Valid {
			continue
		}
		v := AssetValue{Name: r.Name, Value: r.PriceChangePerc24h.Decimal}
		if !found {
			highest, lowest, found = v, v, true
			continue
		}
		// strict comparisons keep the earliest record on ties
		if v.Value.GreaterThan(highest.Value) {
			highest = v
		}
		if v.Value.LessThan(lowest.Value) {
			lowest = v
		}
	}

	if !found {
		return AssetValue{}, AssetValue{}, fmt.Errorf("%w: no record has %s", market.ErrEmptySnapshot, market.FieldPriceChangePerc24)
	}
	return highest, lowest, nil
}
