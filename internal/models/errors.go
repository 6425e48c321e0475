package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNoTradeData means the ledger is absent or holds no usable trades.
	ErrNoTradeData = errors.New("no trade data")
	// ErrProviderUnavailable wraps network and API failures from a market data provider.
	ErrProviderUnavailable = errors.New("market data provider unavailable")
	// ErrSymbolNotFound means the provider has no data for a ticker.
	ErrSymbolNotFound = errors.New("symbol not found")
)

// CorruptRow identifies one row holding a NaN in a computed column.
type CorruptRow struct {
	Date   time.Time `json:"date"`
	Symbol string    `json:"symbol"`
	Detail string    `json:"detail,omitempty"`
}

// NumericCorruptionError stops a run when a computed cashflow or value column
// contains NaN. Rows lists every offending entry.
type NumericCorruptionError struct {
	Stage  string
	Column string
	Rows   []CorruptRow
}

func (e *NumericCorruptionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "numeric corruption in %s (%s): %d row(s)", e.Stage, e.Column, len(e.Rows))
	const maxShown = 5
	for i, r := range e.Rows {
		if i == maxShown {
			fmt.Fprintf(&b, "; and %d more", len(e.Rows)-maxShown)
			break
		}
		fmt.Fprintf(&b, "; %s %s", r.Date.Format("2006-01-02"), r.Symbol)
		if r.Detail != "" {
			fmt.Fprintf(&b, " (%s)", r.Detail)
		}
	}
	return b.String()
}

// Symbols returns the distinct symbols named by the corrupt rows, in order.
func (e *NumericCorruptionError) Symbols() []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range e.Rows {
		if !seen[r.Symbol] {
			seen[r.Symbol] = true
			out = append(out, r.Symbol)
		}
	}
	return out
}
