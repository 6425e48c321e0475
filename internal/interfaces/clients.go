// Package interfaces defines service contracts for the Vire analyzer
package interfaces

import (
	"context"
	"time"

	"github.com/bobmcallan/vire-analyzer/internal/models"
)

// MarketDataProvider supplies split events and daily closes for listing keys.
// Tickers use the listing form ("D05.SI", "AAPL") or the FX pair form
// ("SGDUSD=X"). Implementations translate to their own conventions.
type MarketDataProvider interface {
	// Name identifies the provider in logs and cache keys
	Name() string

	// GetSplits returns split events for ticker, in any order
	GetSplits(ctx context.Context, ticker string, from, to time.Time) ([]models.SplitEvent, error)

	// GetDailyCloses returns sparse daily closes in [from, to)
	GetDailyCloses(ctx context.Context, ticker string, from, to time.Time) ([]models.PriceBar, error)

	// GetRecentCloses returns closes from a short trailing window ending today
	GetRecentCloses(ctx context.Context, ticker string) ([]models.PriceBar, error)
}
