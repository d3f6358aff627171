package analysis

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// TopByMarketCapText renders the top assets as a right-aligned name/market_cap block.
func (s Summary) TopByMarketCapText() string {
	return renderBlock("market_cap", s.TopByMarketCap)
}

// HighestChangeText renders the highest 24h change as a one-row block.
func (s Summary) HighestChangeText() string {
	return renderBlock("price_change_percentage_24h", []AssetValue{s.HighestChange})
}

// LowestChangeText renders the lowest 24h change as a one-row block.
func (s Summary) LowestChangeText() string {
	return renderBlock("price_change_percentage_24h", []AssetValue{s.LowestChange})
}

func renderBlock(valueHeader string, entries []AssetValue) string {
	nameWidth := len("name")
	valueWidth := len(valueHeader)

	values := make([]string, len(entries))
	for i, e := range entries {
		values[i] = e.Value.String()
		nameWidth = max(nameWidth, utf8.RuneCountInString(e.Name))
		valueWidth = max(valueWidth, len(values[i]))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%*s %*s", nameWidth, "name", valueWidth, valueHeader)
	for i, e := range entries {
		fmt.Fprintf(&b, "\n%*s %*s", nameWidth, e.Name, valueWidth, values[i])
	}
	return b.String()
}
