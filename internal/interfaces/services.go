package interfaces

import (
	"context"
	"time"

	"github.com/bobmcallan/vire-analyzer/internal/models"
)

// PortfolioService runs the valuation and return pipeline over a trade ledger
type PortfolioService interface {
	// Analyze runs every stage and returns the full result set
	Analyze(ctx context.Context, trades []models.Trade, asOf time.Time) (*models.Analysis, error)

	// Accessors over the most recent analysis
	Holdings() []models.Holding
	DailyValueSeries() *models.PortfolioValueSeries
	CurrentHoldingsSnapshot() []models.HoldingSnapshot
	TotalInvestment() float64
	XIRRByHolding() map[string]models.XIRRResult
}
