// Package portfolio runs the valuation and return pipeline over a trade ledger
package portfolio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bobmcallan/vire-analyzer/internal/common"
	"github.com/bobmcallan/vire-analyzer/internal/interfaces"
	"github.com/bobmcallan/vire-analyzer/internal/ledger"
	"github.com/bobmcallan/vire-analyzer/internal/models"
	"github.com/bobmcallan/vire-analyzer/internal/services/currency"
	"github.com/bobmcallan/vire-analyzer/internal/services/prices"
	"github.com/bobmcallan/vire-analyzer/internal/services/splits"
	"github.com/bobmcallan/vire-analyzer/internal/services/valuation"
)

// Service implements PortfolioService. The most recent analysis is retained
// for the accessor methods.
type Service struct {
	provider interfaces.MarketDataProvider
	config   *common.Config
	logger   *common.Logger
	notices  models.Warnings
	clock    func() time.Time

	mu   sync.RWMutex
	last *models.Analysis
}

// Option configures a Service
type Option func(*Service)

// WithNotices attaches warnings raised outside the pipeline, such as an
// unavailable cache, to every analysis.
func WithNotices(w models.Warnings) Option {
	return func(s *Service) { s.notices = append(s.notices, w...) }
}

// WithClock overrides the clock used when no as-of date is given.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) { s.clock = clock }
}

// NewService creates a new portfolio service
func NewService(provider interfaces.MarketDataProvider, config *common.Config, logger *common.Logger, opts ...Option) *Service {
	s := &Service{
		provider: provider,
		config:   config,
		logger:   logger,
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Analyze runs split adjustment, currency conversion, price history and
// valuation over trades, valuing positions up to asOf (today when zero).
// Provider failures degrade the result and are listed in Warnings. Returns
// models.ErrNoTradeData for an empty ledger and a *models.NumericCorruptionError
// when a computed cashflow or value is NaN.
func (s *Service) Analyze(ctx context.Context, trades []models.Trade, asOf time.Time) (*models.Analysis, error) {
	if len(trades) == 0 {
		return nil, fmt.Errorf("%w: ledger is empty", models.ErrNoTradeData)
	}

	runID := uuid.New().String()
	logger := s.logger.WithCorrelationId(runID)
	reporting := s.config.ReportingCurrency
	fetchStart := time.Now()

	holdings := ledger.Holdings(trades)
	start, last := models.TradeWindow(trades)
	end := models.Day(asOf)
	if asOf.IsZero() {
		end = models.Day(s.clock())
	}
	if end.Before(last) {
		end = last
	}

	logger.Info().Int("trades", len(trades)).Int("holdings", len(holdings)).
		Str("start", start.Format("2006-01-02")).Str("end", end.Format("2006-01-02")).
		Str("provider", s.provider.Name()).Msg("Analysis started")

	warnings := append(models.Warnings{}, s.notices...)
	suffixes := s.config.MarketSuffixes()
	fallbacks := s.config.FXFallbacks()
	concurrency := s.config.Pricing.FetchConcurrency

	// Splits. A pre-adjusted ledger is in today's share basis, so prices are
	// still adjusted with the split history through today.
	var splitMap, priceSplits map[string][]models.SplitEvent
	splitSvc := splits.NewService(s.provider, reporting, suffixes, concurrency, logger)
	if s.config.Splits.Live {
		var w models.Warnings
		splitMap, w = splitSvc.FetchSplits(ctx, holdings, start, end.AddDate(0, 0, 1))
		warnings = append(warnings, w...)
		priceSplits = splitMap
	} else {
		today := models.Day(s.clock())
		if today.Before(end) {
			today = end
		}
		logger.Debug().Str("through", today.Format("2006-01-02")).Msg("Live splits disabled, ledger treated as pre-adjusted")
		var w models.Warnings
		priceSplits, w = splitSvc.FetchSplits(ctx, holdings, start, today.AddDate(0, 0, 1))
		warnings = append(warnings, w...)
	}
	adjusted := splits.ApplyToTrades(trades, splitMap)

	// Currency
	fx := currency.NewService(s.provider, reporting, fallbacks, logger)
	rates, w := fx.FetchRates(ctx, currency.Currencies(holdings, reporting), start, end)
	warnings = append(warnings, w...)

	converted, err := currency.Convert(adjusted, rates)
	if err != nil {
		logger.Error().Err(err).Msg("Currency conversion produced invalid cashflows")
		return nil, err
	}

	// Prices
	px := prices.NewService(s.provider, prices.Options{
		Reporting:        reporting,
		Suffixes:         suffixes,
		Fallbacks:        fallbacks,
		PlaceholderPrice: s.config.Pricing.PlaceholderPrice,
		Concurrency:      concurrency,
	}, logger)
	matrix, w := px.Fetch(ctx, holdings, priceSplits, start, end)
	warnings = append(warnings, w...)

	logger.Info().Dur("elapsed", time.Since(fetchStart)).Msg("Market data loaded")

	// Valuation
	quantities := valuation.DailyQuantities(converted, matrix.Frame.Dates())
	conv := valuation.Converter{Reporting: reporting, Prices: matrix, Rates: rates}

	values, err := valuation.DailyValue(quantities, conv, holdings)
	if err != nil {
		logger.Error().Err(err).Msg("Valuation produced invalid values")
		return nil, err
	}

	snapshot := valuation.CurrentHoldings(quantities, conv, holdings)
	analysis := &models.Analysis{
		RunID:             runID,
		ReportingCurrency: reporting,
		Holdings:          holdings,
		Trades:            converted,
		SplitsApplied:     splits.Applied(splitMap),
		Rates:             rates,
		Prices:            matrix,
		Quantities:        quantities,
		Values:            values,
		TotalInvestment:   valuation.TotalInvestment(converted),
		XIRR:              valuation.XIRRByHolding(converted, values),
		Snapshot:          snapshot,
		Cashflows:         valuation.CashflowDiagnostics(converted, values),
		Summary:           valuation.BuildSummary(reporting, converted, values, snapshot),
		Warnings:          warnings,
	}

	logger.Info().
		Float64("current_value", analysis.Summary.CurrentValue).
		Float64("total_investment", analysis.TotalInvestment).
		Int("warnings", len(warnings)).
		Bool("prices_degraded", matrix.Degraded).
		Bool("fx_degraded", rates.Degraded).
		Dur("elapsed", time.Since(fetchStart)).
		Msg("Analysis complete")

	s.mu.Lock()
	s.last = analysis
	s.mu.Unlock()

	return analysis, nil
}

// Last returns the most recent analysis, or nil before the first run.
func (s *Service) Last() *models.Analysis {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// Holdings returns the (symbol, currency) universe of the last run.
func (s *Service) Holdings() []models.Holding {
	if a := s.Last(); a != nil {
		return a.Holdings
	}
	return nil
}

// DailyValueSeries returns the daily portfolio value of the last run.
func (s *Service) DailyValueSeries() *models.PortfolioValueSeries {
	if a := s.Last(); a != nil {
		return a.Values
	}
	return nil
}

// CurrentHoldingsSnapshot returns open positions sorted by value descending.
func (s *Service) CurrentHoldingsSnapshot() []models.HoldingSnapshot {
	if a := s.Last(); a != nil {
		return a.Snapshot
	}
	return nil
}

// TotalInvestment returns the capital deployed in reporting currency.
func (s *Service) TotalInvestment() float64 {
	if a := s.Last(); a != nil {
		return a.TotalInvestment
	}
	return 0
}

// XIRRByHolding returns the per-symbol money-weighted return of the last run.
func (s *Service) XIRRByHolding() map[string]models.XIRRResult {
	if a := s.Last(); a != nil {
		return a.XIRR
	}
	return nil
}

var _ interfaces.PortfolioService = (*Service)(nil)
