// Package splits fetches corporate split events and applies them to trades and price series
package splits

import (
	"context"
	"errors"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bobmcallan/vire-analyzer/internal/common"
	"github.com/bobmcallan/vire-analyzer/internal/interfaces"
	"github.com/bobmcallan/vire-analyzer/internal/models"
)

const stage = "splits"

// Service looks up split history for the holding universe
type Service struct {
	provider    interfaces.MarketDataProvider
	logger      *common.Logger
	reporting   string
	suffixes    map[string]string
	concurrency int
}

// NewService creates a split service. suffixes maps trading currency to listing suffix.
func NewService(provider interfaces.MarketDataProvider, reporting string, suffixes map[string]string, concurrency int, logger *common.Logger) *Service {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Service{
		provider:    provider,
		logger:      logger,
		reporting:   reporting,
		suffixes:    suffixes,
		concurrency: concurrency,
	}
}

// FetchSplits returns split events per canonical symbol, ascending by date.
// Symbols with no splits, unknown listings, or provider failures are absent
// from the map; failures are reported as warnings.
func (s *Service) FetchSplits(ctx context.Context, holdings []models.Holding, from, to time.Time) (map[string][]models.SplitEvent, models.Warnings) {
	type outcome struct {
		events []models.SplitEvent
		err    error
	}
	results := make([]outcome, len(holdings))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, h := range holdings {
		g.Go(func() error {
			key := models.ListingSymbol(h.Symbol, h.Currency, s.reporting, s.suffixes)
			events, err := s.provider.GetSplits(gctx, key, from, to)
			results[i] = outcome{events: events, err: err}
			return nil
		})
	}
	_ = g.Wait()

	var warnings models.Warnings
	out := make(map[string][]models.SplitEvent)
	for i, h := range holdings {
		r := results[i]
		if r.err != nil {
			if errors.Is(r.err, models.ErrSymbolNotFound) {
				s.logger.Debug().Str("symbol", h.Symbol).Msg("No split data for symbol")
				continue
			}
			s.logger.Warn().Str("symbol", h.Symbol).Err(r.err).Msg("Split lookup failed, assuming no splits")
			warnings.Add(stage, models.WarningProviderUnavailable, h.Symbol, "split history unavailable; assuming no splits")
			continue
		}

		events := make([]models.SplitEvent, 0, len(r.events))
		for _, e := range r.events {
			if e.Ratio <= 0 {
				continue
			}
			events = append(events, models.SplitEvent{Symbol: h.Symbol, Date: models.Day(e.Date), Ratio: e.Ratio})
		}
		if len(events) == 0 {
			continue
		}
		sort.SliceStable(events, func(a, b int) bool { return events[a].Date.Before(events[b].Date) })
		out[h.Symbol] = events
		s.logger.Info().Str("symbol", h.Symbol).Int("splits", len(events)).Msg("Split history loaded")
	}

	return out, warnings
}
