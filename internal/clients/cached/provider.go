// Package cached decorates a market data provider with a response cache
package cached

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/zeebo/blake3"

	"github.com/bobmcallan/vire-analyzer/internal/common"
	"github.com/bobmcallan/vire-analyzer/internal/interfaces"
	"github.com/bobmcallan/vire-analyzer/internal/models"
)

const keyBytes = 16

// Provider serves provider responses from a MarketCache when present and
// stores successful responses for ttl. Cache faults are logged and bypassed;
// provider errors are never cached.
type Provider struct {
	inner  interfaces.MarketDataProvider
	cache  interfaces.MarketCache
	ttl    time.Duration
	logger *common.Logger
	now    func() time.Time
}

// New wraps inner. A nil cache returns inner unchanged.
func New(inner interfaces.MarketDataProvider, cache interfaces.MarketCache, ttl time.Duration, logger *common.Logger) interfaces.MarketDataProvider {
	if cache == nil {
		return inner
	}
	return &Provider{inner: inner, cache: cache, ttl: ttl, logger: logger, now: time.Now}
}

// Name returns the wrapped provider's name.
func (p *Provider) Name() string { return p.inner.Name() }

// GetSplits returns cached split events for the window.
func (p *Provider) GetSplits(ctx context.Context, ticker string, from, to time.Time) ([]models.SplitEvent, error) {
	key := p.key("splits", ticker, models.Day(from), models.Day(to))
	return load(ctx, p, key, ticker, func() ([]models.SplitEvent, error) {
		return p.inner.GetSplits(ctx, ticker, from, to)
	})
}

// GetDailyCloses returns cached closes for the window.
func (p *Provider) GetDailyCloses(ctx context.Context, ticker string, from, to time.Time) ([]models.PriceBar, error) {
	key := p.key("closes", ticker, models.Day(from), models.Day(to))
	return load(ctx, p, key, ticker, func() ([]models.PriceBar, error) {
		return p.inner.GetDailyCloses(ctx, ticker, from, to)
	})
}

// GetRecentCloses caches the recent window for the current day only.
func (p *Provider) GetRecentCloses(ctx context.Context, ticker string) ([]models.PriceBar, error) {
	today := models.Day(p.now())
	key := p.key("recent", ticker, today, today)
	return load(ctx, p, key, ticker, func() ([]models.PriceBar, error) {
		return p.inner.GetRecentCloses(ctx, ticker)
	})
}

// key fingerprints a request: provider, method, ticker and window.
func (p *Provider) key(method, ticker string, from, to time.Time) string {
	h := blake3.New()
	h.Write([]byte(p.inner.Name()))
	h.Write([]byte{0})
	h.Write([]byte(method))
	h.Write([]byte{0})
	h.Write([]byte(ticker))
	h.Write([]byte{0})
	f, _ := from.UTC().MarshalText()
	h.Write(f)
	h.Write([]byte{0})
	t, _ := to.UTC().MarshalText()
	h.Write(t)

	buf := make([]byte, keyBytes)
	if _, err := h.Digest().Read(buf); err != nil {
		return method + "_" + ticker
	}
	return hex.EncodeToString(buf)
}

func load[T any](ctx context.Context, p *Provider, key, ticker string, fetch func() ([]T, error)) ([]T, error) {
	data, found, err := p.cache.Get(ctx, key)
	if err != nil {
		p.logger.Warn().Str("ticker", ticker).Err(err).Msg("Market cache read failed, bypassing")
	} else if found {
		var out []T
		if err := json.Unmarshal(data, &out); err == nil {
			p.logger.Debug().Str("ticker", ticker).Msg("Market cache hit")
			return out, nil
		}
		p.logger.Warn().Str("ticker", ticker).Msg("Market cache entry unreadable, refetching")
	}

	out, err := fetch()
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(out)
	if err != nil {
		return out, nil
	}
	if err := p.cache.Put(ctx, key, payload, p.ttl); err != nil {
		p.logger.Warn().Str("ticker", ticker).Err(err).Msg("Market cache write failed")
	}
	return out, nil
}

var _ interfaces.MarketDataProvider = (*Provider)(nil)
