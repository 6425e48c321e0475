package models

import (
	"fmt"
	"strings"
	"time"
)

// SplitEvent is a corporate split. Ratio multiplies share counts dated strictly
// before Date (2 means 2-for-1); prices before Date are divided by it.
type SplitEvent struct {
	Symbol string    `json:"symbol"`
	Date   time.Time `json:"split_date"`
	Ratio  float64   `json:"ratio"`
}

// PriceBar is a single daily close from a market data provider.
type PriceBar struct {
	Date  time.Time `json:"date"`
	Close float64   `json:"close"`
}

// ListingSymbol returns the provider lookup key for a symbol traded in
// currency. Reporting-currency symbols and currencies without a configured
// suffix are returned unchanged.
func ListingSymbol(symbol, currency, reporting string, suffixes map[string]string) string {
	if strings.EqualFold(currency, reporting) {
		return symbol
	}
	suffix := suffixes[strings.ToUpper(currency)]
	if suffix == "" || strings.HasSuffix(symbol, suffix) {
		return symbol
	}
	return symbol + suffix
}

// FXPairTicker returns the quote ticker for units of reporting currency per
// unit of currency, e.g. "SGDUSD=X".
func FXPairTicker(currency, reporting string) string {
	return fmt.Sprintf("%s%s=X", strings.ToUpper(currency), strings.ToUpper(reporting))
}

// IsFXPairTicker reports whether ticker is an FX pair quote key.
func IsFXPairTicker(ticker string) bool {
	return strings.HasSuffix(ticker, "=X")
}
