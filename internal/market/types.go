package market

import (
	"time"

	"github.com/shopspring/decimal"
)

// Field names as they appear in the upstream response and in the workbook header.
const (
	FieldName              = "name"
	FieldSymbol            = "symbol"
	FieldCurrentPrice      = "current_price"
	FieldMarketCap         = "market_cap"
	FieldTotalVolume       = "total_volume"
	FieldPriceChangePerc24 = "price_change_percentage_24h"
)

// Fields lists the retained record fields in table order.
var Fields = []string{
	FieldName,
	FieldSymbol,
	FieldCurrentPrice,
	FieldMarketCap,
	FieldTotalVolume,
	FieldPriceChangePerc24,
}

// AssetRecord is one row of market data for a single asset at fetch time.
// Numeric fields are invalid when the upstream value was null or absent.
type AssetRecord struct {
	Name               string
	Symbol             string
	CurrentPrice       decimal.NullDecimal
	MarketCap          decimal.NullDecimal
	TotalVolume        decimal.NullDecimal
	PriceChangePerc24h decimal.NullDecimal
}

// Snapshot is the ordered list of records returned by one fetch.
type Snapshot struct {
	Records   []AssetRecord
	FetchedAt time.Time
}

// Len returns the number of records in the snapshot.
func (s Snapshot) Len() int {
	return len(s.Records)
}
