// Package testutil provides shared test infrastructure
package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/bobmcallan/vire-analyzer/internal/interfaces"
	"github.com/bobmcallan/vire-analyzer/internal/models"
)

// MockProvider implements MarketDataProvider from in-memory fixtures.
// Tickers absent from Closes or Splits report no data. Closes and splits are
// filtered to the requested window. Errors, when set for a ticker, are
// returned instead of data.
type MockProvider struct {
	mu sync.Mutex

	Closes       map[string][]models.PriceBar
	Recent       map[string][]models.PriceBar
	Splits       map[string][]models.SplitEvent
	Errors       map[string]error
	SplitErrors  map[string]error
	RecentErrors map[string]error
	FailAll      error // returned by split and close lookups when set

	CloseCalls  int
	SplitCalls  int
	RecentCalls int
	Requested   []string
}

// NewMockProvider creates an empty mock provider
func NewMockProvider() *MockProvider {
	return &MockProvider{
		Closes:       make(map[string][]models.PriceBar),
		Recent:       make(map[string][]models.PriceBar),
		Splits:       make(map[string][]models.SplitEvent),
		Errors:       make(map[string]error),
		SplitErrors:  make(map[string]error),
		RecentErrors: make(map[string]error),
	}
}

func (m *MockProvider) Name() string { return "mock" }

func (m *MockProvider) GetSplits(ctx context.Context, ticker string, from, to time.Time) ([]models.SplitEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SplitCalls++
	if m.FailAll != nil {
		return nil, m.FailAll
	}
	if err, ok := m.SplitErrors[ticker]; ok {
		return nil, err
	}
	var out []models.SplitEvent
	for _, e := range m.Splits[ticker] {
		if !e.Date.Before(models.Day(from)) && e.Date.Before(models.Day(to)) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MockProvider) GetDailyCloses(ctx context.Context, ticker string, from, to time.Time) ([]models.PriceBar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CloseCalls++
	m.Requested = append(m.Requested, ticker)
	if m.FailAll != nil {
		return nil, m.FailAll
	}
	if err, ok := m.Errors[ticker]; ok {
		return nil, err
	}
	var out []models.PriceBar
	for _, b := range m.Closes[ticker] {
		if !b.Date.Before(models.Day(from)) && b.Date.Before(models.Day(to)) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *MockProvider) GetRecentCloses(ctx context.Context, ticker string) ([]models.PriceBar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RecentCalls++
	if err, ok := m.RecentErrors[ticker]; ok {
		return nil, err
	}
	return m.Recent[ticker], nil
}

// Date returns midnight UTC on the given day
func Date(y int, mo time.Month, d int) time.Time {
	return time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)
}

// Bars builds one bar per calendar day from start with the given closes
func Bars(start time.Time, closes ...float64) []models.PriceBar {
	out := make([]models.PriceBar, len(closes))
	for i, c := range closes {
		out[i] = models.PriceBar{Date: models.Day(start).AddDate(0, 0, i), Close: c}
	}
	return out
}

// FlatBars builds daily bars at a constant close over [from, to]
func FlatBars(from, to time.Time, close float64) []models.PriceBar {
	var out []models.PriceBar
	for _, d := range models.CalendarDays(from, to) {
		out = append(out, models.PriceBar{Date: d, Close: close})
	}
	return out
}

var _ interfaces.MarketDataProvider = (*MockProvider)(nil)
