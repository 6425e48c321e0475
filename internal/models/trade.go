// Package models defines data structures for the Vire analyzer
package models

import "time"

// Trade is one executed transaction from the broker ledger. Quantity is signed
// (positive buys, negative sells); UnitPrice and Fee are in the trade currency.
// The reporting fields are zero until the trade passes currency conversion.
type Trade struct {
	Symbol        string    `json:"symbol"`
	Currency      string    `json:"currency"`
	Date          time.Time `json:"trade_date"`
	Quantity      float64   `json:"quantity"`
	UnitPrice     float64   `json:"unit_price"`
	Fee           float64   `json:"fee"`
	LocalCashflow float64   `json:"local_cashflow"`
	SourceFile    string    `json:"source_file,omitempty"`

	FXRate                 float64 `json:"fx_rate,omitempty"`
	UnitPriceReporting     float64 `json:"unit_price_reporting,omitempty"`
	TotalCashflowReporting float64 `json:"total_cashflow_reporting,omitempty"`
	FXFallback             bool    `json:"fx_fallback,omitempty"` // rate came from the fixed fallback table
}

// ComputeLocalCashflow returns -(quantity * unit_price) - fee.
// Buys produce outflows (negative), sells inflows (positive).
func (t Trade) ComputeLocalCashflow() float64 {
	return -(t.Quantity * t.UnitPrice) - t.Fee
}

// Holding is a unique (symbol, currency) pair drawn from the ledger.
type Holding struct {
	Symbol   string `json:"symbol"`
	Currency string `json:"currency"`
}

// CloneTrades returns a copy of the ledger so later stages never mutate their input.
func CloneTrades(trades []Trade) []Trade {
	out := make([]Trade, len(trades))
	copy(out, trades)
	return out
}

// TradeWindow returns the first and last trade dates, truncated to the day.
func TradeWindow(trades []Trade) (first, last time.Time) {
	for i, t := range trades {
		d := Day(t.Date)
		if i == 0 || d.Before(first) {
			first = d
		}
		if i == 0 || d.After(last) {
			last = d
		}
	}
	return first, last
}
