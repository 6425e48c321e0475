// Package currency builds the daily FX rate table and converts trades to the reporting currency
package currency

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/bobmcallan/vire-analyzer/internal/common"
	"github.com/bobmcallan/vire-analyzer/internal/interfaces"
	"github.com/bobmcallan/vire-analyzer/internal/models"
)

const stage = "currency"

// Service fetches FX history from a market data provider
type Service struct {
	provider  interfaces.MarketDataProvider
	logger    *common.Logger
	reporting string
	fallbacks map[string]float64
}

// NewService creates a currency service. fallbacks holds the fixed
// approximate rate per currency used when live rates are unavailable.
func NewService(provider interfaces.MarketDataProvider, reporting string, fallbacks map[string]float64, logger *common.Logger) *Service {
	return &Service{
		provider:  provider,
		logger:    logger,
		reporting: reporting,
		fallbacks: fallbacks,
	}
}

// Currencies returns the distinct non-reporting currencies of holdings in first-seen order.
func Currencies(holdings []models.Holding, reporting string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, h := range holdings {
		if h.Currency == reporting || seen[h.Currency] {
			continue
		}
		seen[h.Currency] = true
		out = append(out, h.Currency)
	}
	return out
}

// FetchRates builds a dense daily rate table over [start, end]. A currency
// whose rates cannot be fetched is filled with its fallback constant and
// reported as a warning.
func (s *Service) FetchRates(ctx context.Context, currencies []string, start, end time.Time) (*models.FXRateTable, models.Warnings) {
	var warnings models.Warnings
	days := models.CalendarDays(start, end)

	table := &models.FXRateTable{
		Reporting: s.reporting,
		Frame:     models.NewDateFrame(days),
		Fallbacks: s.fallbacks,
	}

	failed := 0
	for _, ccy := range currencies {
		if ccy == s.reporting {
			continue
		}
		ticker := models.FXPairTicker(ccy, s.reporting)
		bars, err := s.provider.GetDailyCloses(ctx, ticker, start, models.Day(end).AddDate(0, 0, 1))
		if err == nil && len(bars) == 0 {
			err = fmt.Errorf("no rates returned for %s: %w", ticker, models.ErrSymbolNotFound)
		}
		if err != nil {
			failed++
			fallback := table.Fallback(ccy)
			s.logger.Warn().Str("pair", ticker).Float64("fallback_rate", fallback).Err(err).
				Msg("FX rates unavailable, using fallback constant")
			warnings.Add(stage, models.WarningFXFallback, ccy,
				fmt.Sprintf("%s rates unavailable; using approximate rate %.4f", ticker, fallback))
			fillConstant(table.Frame.AddColumn(ccy), fallback)
			continue
		}

		col := table.Frame.AddColumn(ccy)
		for _, b := range bars {
			if i, ok := table.Frame.IndexOf(b.Date); ok && b.Close > 0 {
				col[i] = b.Close
			}
		}
	}

	table.Frame.ForwardFill()
	table.Frame.BackFill()

	// A pair whose bars all fell outside the window is still empty
	for _, ccy := range table.Frame.Columns() {
		if len(table.Frame.MissingRows(ccy)) > 0 {
			col, _ := table.Frame.Column(ccy)
			fillConstant(col, table.Fallback(ccy))
		}
	}

	fillConstant(table.Frame.AddColumn(s.reporting), 1.0)
	table.Degraded = len(currencies) > 0 && failed == len(currencies)

	s.logger.Info().Int("currencies", len(currencies)).Int("days", len(days)).Int("fallbacks", failed).
		Msg("FX rate table built")

	return table, warnings
}

// Convert returns a copy of trades with reporting-currency price and cashflow.
// Rates are looked up on the trade's calendar day; reporting-currency trades
// use exactly 1.0. A missing table entry falls back to the fixed constant.
// A NaN cashflow after conversion stops the run with a NumericCorruptionError.
func Convert(trades []models.Trade, rates *models.FXRateTable) ([]models.Trade, error) {
	out := models.CloneTrades(trades)

	var corrupt []models.CorruptRow
	for i := range out {
		t := &out[i]
		rate := 1.0
		t.FXFallback = false
		if t.Currency != rates.Reporting {
			r, ok := rates.Rate(t.Currency, t.Date)
			if !ok {
				r = rates.Fallback(t.Currency)
				t.FXFallback = true
			}
			rate = r
		}
		t.FXRate = rate
		t.UnitPriceReporting = t.UnitPrice * rate
		t.TotalCashflowReporting = t.LocalCashflow * rate

		if math.IsNaN(t.TotalCashflowReporting) || math.IsInf(t.TotalCashflowReporting, 0) {
			corrupt = append(corrupt, models.CorruptRow{
				Date:   models.Day(t.Date),
				Symbol: t.Symbol,
				Detail: fmt.Sprintf("qty=%g price=%g fee=%g rate=%g", t.Quantity, t.UnitPrice, t.Fee, rate),
			})
		}
	}

	if len(corrupt) > 0 {
		return nil, &models.NumericCorruptionError{Stage: stage, Column: "total_cashflow_reporting", Rows: corrupt}
	}
	return out, nil
}

func fillConstant(col []float64, v float64) {
	for i := range col {
		col[i] = v
	}
}
