// Package prices builds the dense daily price matrix for holdings and FX pairs
package prices

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bobmcallan/vire-analyzer/internal/common"
	"github.com/bobmcallan/vire-analyzer/internal/interfaces"
	"github.com/bobmcallan/vire-analyzer/internal/models"
	"github.com/bobmcallan/vire-analyzer/internal/services/splits"
)

const stage = "prices"

// Options configures the price fetch
type Options struct {
	Reporting        string
	Suffixes         map[string]string  // trading currency -> listing suffix
	Fallbacks        map[string]float64 // currency -> approximate rate
	PlaceholderPrice float64
	Concurrency      int
}

// Service fetches price history from a market data provider
type Service struct {
	provider interfaces.MarketDataProvider
	logger   *common.Logger
	opts     Options
}

// NewService creates a price service
func NewService(provider interfaces.MarketDataProvider, opts Options, logger *common.Logger) *Service {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.PlaceholderPrice <= 0 {
		opts.PlaceholderPrice = 100.0
	}
	return &Service{provider: provider, logger: logger, opts: opts}
}

// query is one provider request: a listing key and the column it fills.
type query struct {
	key      string // provider ticker
	column   string // canonical symbol, or the pair ticker for FX
	currency string // FX queries only
	isFX     bool
	symbols  []string // canonical symbols sharing this listing
}

type result struct {
	bars []models.PriceBar
	err  error
}

// queries returns the listing-keyed symbol queries followed by the FX pair
// queries, in holdings order. Holdings sharing a listing key share one query.
func (s *Service) queries(holdings []models.Holding) []query {
	var out []query
	byKey := make(map[string]int)
	for _, h := range holdings {
		key := models.ListingSymbol(h.Symbol, h.Currency, s.opts.Reporting, s.opts.Suffixes)
		if i, ok := byKey[key]; ok {
			out[i].symbols = append(out[i].symbols, h.Symbol)
			continue
		}
		byKey[key] = len(out)
		out = append(out, query{key: key, column: h.Symbol, symbols: []string{h.Symbol}})
	}

	seen := make(map[string]bool)
	for _, h := range holdings {
		if h.Currency == s.opts.Reporting || seen[h.Currency] {
			continue
		}
		seen[h.Currency] = true
		pair := models.FXPairTicker(h.Currency, s.opts.Reporting)
		out = append(out, query{key: pair, column: pair, currency: h.Currency, isFX: true})
	}
	return out
}

// Fetch returns the dense daily price matrix over [start, end] for every
// holding and every FX pair the holdings need. Prices are split-adjusted with
// the supplied split map. Symbols the provider cannot supply are absent.
// When the provider fails for every query the matrix is built from recent
// closes or placeholder prices and marked degraded.
func (s *Service) Fetch(ctx context.Context, holdings []models.Holding, splitMap map[string][]models.SplitEvent, start, end time.Time) (*models.PriceMatrix, models.Warnings) {
	qs := s.queries(holdings)
	days := models.CalendarDays(start, end)
	results := s.fetchAll(ctx, qs, start, models.Day(end).AddDate(0, 0, 1))

	if s.totalFailure(results) {
		s.logger.Warn().Int("queries", len(qs)).Msg("Price provider unavailable for every query, using degraded prices")
		return s.degraded(ctx, qs, days)
	}

	var warnings models.Warnings

	// Sparse frame over the provider's trading days, keyed by listing key
	raw := models.NewDateFrame(days)
	for i, q := range qs {
		r := results[i]
		if r.err != nil || len(r.bars) == 0 {
			s.reportMissing(&warnings, q, r.err)
			continue
		}
		col := raw.AddColumn(q.key)
		for _, b := range r.bars {
			if idx, ok := raw.IndexOf(b.Date); ok {
				col[idx] = b.Close
			}
		}
	}

	for _, q := range qs {
		if q.isFX || !raw.HasColumn(q.key) {
			continue
		}
		splits.AdjustSeries(raw, q.key, splitMap[q.column])
	}

	zeroToMissing(raw)
	raw.ForwardFill()
	raw.BackFill()

	for _, q := range qs {
		if !raw.HasColumn(q.key) {
			continue
		}
		if len(raw.MissingRows(q.key)) > 0 {
			// Only zero or out-of-window observations
			raw.Drop(q.key)
			s.reportMissing(&warnings, q, nil)
			continue
		}
		raw.Rename(q.key, q.column)
		for _, alias := range aliases(q) {
			col, _ := raw.Column(q.column)
			dup := make([]float64, len(col))
			copy(dup, col)
			raw.SetColumn(alias, dup)
		}
	}

	s.logger.Info().Int("queries", len(qs)).Int("columns", len(raw.Columns())).Int("days", len(days)).
		Msg("Price matrix built")

	return &models.PriceMatrix{Frame: raw}, warnings
}

// fetchAll runs every query with bounded concurrency. Results are stored by
// query position so the merge order never depends on completion order.
func (s *Service) fetchAll(ctx context.Context, qs []query, from, to time.Time) []result {
	results := make([]result, len(qs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)
	for i, q := range qs {
		g.Go(func() error {
			bars, err := s.provider.GetDailyCloses(gctx, q.key, from, to)
			results[i] = result{bars: bars, err: err}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// totalFailure reports whether no query produced data and at least one failed
// for a reason other than an unknown symbol.
func (s *Service) totalFailure(results []result) bool {
	if len(results) == 0 {
		return false
	}
	outage := false
	for _, r := range results {
		if r.err == nil && len(r.bars) > 0 {
			return false
		}
		if r.err != nil && !errors.Is(r.err, models.ErrSymbolNotFound) {
			outage = true
		}
	}
	return outage
}

func (s *Service) reportMissing(warnings *models.Warnings, q query, err error) {
	if err != nil && !errors.Is(err, models.ErrSymbolNotFound) {
		s.logger.Warn().Str("ticker", q.key).Err(err).Msg("Price history unavailable")
		warnings.Add(stage, models.WarningProviderUnavailable, q.column, "price history unavailable; valued at zero")
		return
	}
	s.logger.Info().Str("ticker", q.key).Msg("No price data for ticker")
}

// degraded builds a constant-price matrix. Symbols are seeded from the last
// recent close where available, otherwise the placeholder price. FX pairs
// use the fixed approximate rates.
func (s *Service) degraded(ctx context.Context, qs []query, days []time.Time) (*models.PriceMatrix, models.Warnings) {
	var warnings models.Warnings
	warnings.Add(stage, models.WarningProviderUnavailable, "", "price provider unavailable; prices are approximate")

	frame := models.NewDateFrame(days)
	for _, q := range qs {
		var price float64
		if q.isFX {
			price = s.fallbackRate(q.currency)
			warnings.Add(stage, models.WarningFXFallback, q.currency,
				fmt.Sprintf("%s using approximate rate %.4f", q.key, price))
		} else {
			price = s.recentClose(ctx, q.key)
			if price <= 0 {
				price = s.opts.PlaceholderPrice
				warnings.Add(stage, models.WarningPlaceholderPrice, q.column,
					fmt.Sprintf("no recent price; using placeholder %.2f", price))
			}
		}

		for _, name := range append([]string{q.column}, aliases(q)...) {
			col := frame.AddColumn(name)
			for i := range col {
				col[i] = price
			}
		}
	}

	return &models.PriceMatrix{Frame: frame, Degraded: true}, warnings
}

func aliases(q query) []string {
	if len(q.symbols) < 2 {
		return nil
	}
	return q.symbols[1:]
}

// recentClose returns the latest positive close in the provider's short
// recent window, or zero.
func (s *Service) recentClose(ctx context.Context, key string) float64 {
	bars, err := s.provider.GetRecentCloses(ctx, key)
	if err != nil {
		s.logger.Debug().Str("ticker", key).Err(err).Msg("Recent close unavailable")
		return 0
	}
	for i := len(bars) - 1; i >= 0; i-- {
		if bars[i].Close > 0 {
			return bars[i].Close
		}
	}
	return 0
}

func (s *Service) fallbackRate(currency string) float64 {
	if r, ok := s.opts.Fallbacks[currency]; ok && r > 0 {
		return r
	}
	return 1.0
}

// zeroToMissing treats exact zero prices as missing observations.
func zeroToMissing(f *models.DateFrame) {
	for _, name := range f.Columns() {
		col, _ := f.Column(name)
		for i, v := range col {
			if v == 0 {
				col[i] = math.NaN()
			}
		}
	}
}
