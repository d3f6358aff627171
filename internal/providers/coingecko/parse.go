package coingecko

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"github.com/sawpanic/marketsheet/internal/market"
)

// ParseMarkets decodes a /coins/markets body into records, keeping only the retained fields.
// Missing or null values on individual records are tolerated; a field missing from every
// record, a non-list body or a mistyped value is a market.ErrSchema.
func ParseMarkets(body []byte) ([]market.AssetRecord, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: body is not valid JSON", market.ErrSchema)
	}

	root := gjson.ParseBytes(body)
	if !root.IsArray() {
		return nil, fmt.Errorf("%w: body is not a list", market.ErrSchema)
	}

	items := root.Array()
	present := make(map[string]int, len(market.Fields))
	records := make([]market.AssetRecord, 0, len(items))

	for i, item := range items {
		if !item.IsObject() {
			return nil, fmt.Errorf("%w: element %d is not an object", market.ErrSchema, i)
		}

		for _, field := range market.Fields {
			if item.Get(field).Exists() {
				present[field]++
			}
		}

		record, err := parseRecord(item)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		records = append(records, record)
	}

	if len(items) > 0 {
		for _, field := range market.Fields {
			if present[field] == 0 {
				return nil, fmt.Errorf("%w: field %q absent on every record", market.ErrSchema, field)
			}
		}
	}

	return records, nil
}

func parseRecord(item gjson.Result) (market.AssetRecord, error) {
	var (
		record market.AssetRecord
		err    error
	)

	if record.Name, err = stringField(item, market.FieldName); err != nil {
		return record, err
	}
	if record.Symbol, err = stringField(item, market.FieldSymbol); err != nil {
		return record, err
	}
	if record.CurrentPrice, err = decimalField(item, market.FieldCurrentPrice); err != nil {
		return record, err
	}
	if record.MarketCap, err = decimalField(item, market.FieldMarketCap); err != nil {
		return record, err
	}
	if record.TotalVolume, err = decimalField(item, market.FieldTotalVolume); err != nil {
		return record, err
	}
	if record.PriceChangePerc24h, err = decimalField(item, market.FieldPriceChangePerc24); err != nil {
		return record, err
	}

	return record, nil
}

func stringField(item gjson.Result, field string) (string, error) {
	value := item.Get(field)
	switch value.Type {
	case gjson.Null:
		return "", nil
	case gjson.String:
		return value.Str, nil
	default:
		return "", fmt.Errorf("%w: field %q is not a string: %s", market.ErrSchema, field, value.Raw)
	}
}

func decimalField(item gjson.Result, field string) (decimal.NullDecimal, error) {
	value := item.Get(field)

	var raw string
	switch value.Type {
	case gjson.Null:
		return decimal.NullDecimal{}, nil
	case gjson.Number:
		raw = value.Raw
	case gjson.String:
		raw = value.Str
	default:
		return decimal.NullDecimal{}, fmt.Errorf("%w: field %q is not a number: %s", market.ErrSchema, field, value.Raw)
	}

	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("%w: field %q: %w", market.ErrSchema, field, err)
	}
	return decimal.NewNullDecimal(d), nil
}
