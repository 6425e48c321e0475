package portfolio

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/vire-analyzer/internal/common"
	"github.com/bobmcallan/vire-analyzer/internal/models"
	"github.com/bobmcallan/vire-analyzer/internal/testutil"
)

func newTestService(p *testutil.MockProvider, opts ...Option) *Service {
	return NewService(p, common.NewDefaultConfig(), common.NewSilentLogger(), opts...)
}

func hasWarning(ws []models.Warning, kind models.WarningKind) bool {
	for _, w := range ws {
		if w.Kind == kind {
			return true
		}
	}
	return false
}

func TestAnalyze_EndToEndScenario(t *testing.T) {
	p := testutil.NewMockProvider()
	p.Closes["ABC"] = testutil.FlatBars(testutil.Date(2023, 1, 1), testutil.Date(2023, 12, 31), 150)

	trades := []models.Trade{
		{Symbol: "ABC", Currency: "USD", Date: testutil.Date(2023, 1, 1), Quantity: 10, UnitPrice: 100, Fee: 1},
		{Symbol: "ABC", Currency: "USD", Date: testutil.Date(2023, 6, 1), Quantity: -4, UnitPrice: 150, Fee: 1},
	}

	svc := newTestService(p)
	a, err := svc.Analyze(context.Background(), trades, testutil.Date(2023, 12, 31))
	require.NoError(t, err)

	assert.NotEmpty(t, a.RunID)
	assert.Empty(t, a.Warnings)
	assert.Equal(t, []models.Holding{{Symbol: "ABC", Currency: "USD"}}, a.Holdings)
	assert.InDelta(t, 1001.0, a.TotalInvestment, 1e-9)

	qty, ok := a.Quantities.Value("ABC", testutil.Date(2023, 12, 31))
	require.True(t, ok)
	assert.Equal(t, 6.0, qty)

	for _, d := range models.CalendarDays(testutil.Date(2023, 6, 1), testutil.Date(2023, 12, 31)) {
		v, _ := a.Values.Frame.Value(models.TotalColumn, d)
		require.Equal(t, 900.0, v, d.Format("2006-01-02"))
	}

	x := a.XIRR["ABC"]
	require.True(t, x.Defined, x.Reason)
	assert.Greater(t, x.Rate, 0.0)

	require.Len(t, a.Snapshot, 1)
	assert.Equal(t, 900.0, a.Snapshot[0].ValueReporting)
	assert.Equal(t, 150.0, a.Snapshot[0].UnitPriceReporting)

	assert.Equal(t, 900.0, a.Summary.CurrentValue)
	assert.InDelta(t, 599.0, a.Summary.TotalSales, 1e-9)
	assert.InDelta(t, 498.0, a.Summary.TotalPnL, 1e-9)
	assert.True(t, a.Summary.PortfolioXIRR.Defined)

	// Input ledger untouched
	assert.Equal(t, 0.0, trades[0].LocalCashflow)

	// Accessors reflect the last run
	assert.Equal(t, a.Holdings, svc.Holdings())
	assert.Same(t, a.Values, svc.DailyValueSeries())
	assert.Equal(t, a.Snapshot, svc.CurrentHoldingsSnapshot())
	assert.Equal(t, a.TotalInvestment, svc.TotalInvestment())
	assert.Equal(t, a.XIRR, svc.XIRRByHolding())
}

func sgdProvider() *testutil.MockProvider {
	p := testutil.NewMockProvider()
	p.Splits["D05.SI"] = []models.SplitEvent{{Symbol: "D05.SI", Date: testutil.Date(2023, 3, 1), Ratio: 2}}
	p.Closes["D05.SI"] = append(
		testutil.FlatBars(testutil.Date(2023, 1, 1), testutil.Date(2023, 2, 28), 60),
		testutil.FlatBars(testutil.Date(2023, 3, 1), testutil.Date(2023, 6, 30), 30)...,
	)
	p.Closes["SGDUSD=X"] = testutil.FlatBars(testutil.Date(2023, 1, 1), testutil.Date(2023, 6, 30), 0.75)
	return p
}

var sgdTrades = []models.Trade{
	{Symbol: "D05", Currency: "SGD", Date: testutil.Date(2023, 1, 2), Quantity: 10, UnitPrice: 60},
}

func TestAnalyze_SplitsAndCurrency(t *testing.T) {
	svc := newTestService(sgdProvider())
	a, err := svc.Analyze(context.Background(), sgdTrades, testutil.Date(2023, 6, 30))
	require.NoError(t, err)
	assert.Empty(t, a.Warnings)

	require.Len(t, a.SplitsApplied, 1)
	assert.Equal(t, "D05", a.SplitsApplied[0].Symbol)

	require.Len(t, a.Trades, 1)
	assert.Equal(t, 20.0, a.Trades[0].Quantity)
	assert.Equal(t, 30.0, a.Trades[0].UnitPrice)
	assert.InDelta(t, 22.5, a.Trades[0].UnitPriceReporting, 1e-9)
	assert.InDelta(t, -450.0, a.Trades[0].TotalCashflowReporting, 1e-9)

	// Split-consistent: value is flat across the split date
	for _, v := range a.Values.Total() {
		require.InDelta(t, 450.0, v, 1e-9)
	}

	x := a.XIRR["D05"]
	require.True(t, x.Defined, x.Reason)
	assert.InDelta(t, 0.0, x.Rate, 1e-6)
}

func TestAnalyze_SplitsDisabled(t *testing.T) {
	p := sgdProvider()
	cfg := common.NewDefaultConfig()
	cfg.Splits.Live = false

	// Ledger already in post-split shares
	preAdjusted := []models.Trade{
		{Symbol: "D05", Currency: "SGD", Date: testutil.Date(2023, 1, 2), Quantity: 20, UnitPrice: 30},
	}

	svc := NewService(p, cfg, common.NewSilentLogger(),
		WithClock(func() time.Time { return testutil.Date(2023, 6, 30) }))
	a, err := svc.Analyze(context.Background(), preAdjusted, testutil.Date(2023, 6, 30))
	require.NoError(t, err)

	assert.Empty(t, a.SplitsApplied)
	assert.Equal(t, 20.0, a.Trades[0].Quantity)
	assert.Equal(t, 30.0, a.Trades[0].UnitPrice)

	// Prices are split-adjusted to match the ledger, so value is flat across the split
	for _, v := range a.Values.Total() {
		require.InDelta(t, 450.0, v, 1e-9)
	}
}

func TestAnalyze_SplitsDisabledAsOfBeforeSplit(t *testing.T) {
	p := sgdProvider()
	cfg := common.NewDefaultConfig()
	cfg.Splits.Live = false

	preAdjusted := []models.Trade{
		{Symbol: "D05", Currency: "SGD", Date: testutil.Date(2023, 1, 2), Quantity: 20, UnitPrice: 30},
	}

	// The split after the as-of date is already reflected in the ledger
	svc := NewService(p, cfg, common.NewSilentLogger(),
		WithClock(func() time.Time { return testutil.Date(2023, 6, 30) }))
	a, err := svc.Analyze(context.Background(), preAdjusted, testutil.Date(2023, 2, 15))
	require.NoError(t, err)

	assert.Equal(t, testutil.Date(2023, 2, 15), a.Values.LastDate())
	assert.InDelta(t, 450.0, a.Values.LastValue(models.TotalColumn), 1e-9)
}

func TestAnalyze_AsOfBeforeSplit(t *testing.T) {
	p := sgdProvider()

	svc := newTestService(p)
	a, err := svc.Analyze(context.Background(), sgdTrades, testutil.Date(2023, 2, 15))
	require.NoError(t, err)

	assert.Equal(t, 10.0, a.Trades[0].Quantity)
	assert.InDelta(t, 10*60*0.75, a.Values.LastValue(models.TotalColumn), 1e-9)
}

func TestAnalyze_FXOutageUsesFallback(t *testing.T) {
	p := sgdProvider()
	p.Errors["SGDUSD=X"] = fmt.Errorf("%w: timeout", models.ErrProviderUnavailable)

	svc := newTestService(p)
	a, err := svc.Analyze(context.Background(), sgdTrades, testutil.Date(2023, 6, 30))
	require.NoError(t, err)

	assert.True(t, hasWarning(a.Warnings, models.WarningFXFallback))
	assert.True(t, a.Rates.Degraded)
	for _, c := range a.Rates.Frame.Columns() {
		assert.Empty(t, a.Rates.Frame.MissingRows(c))
	}
	assert.InDelta(t, 20*30*0.74, a.Values.LastValue(models.TotalColumn), 1e-9)
}

func TestAnalyze_TotalProviderOutage(t *testing.T) {
	p := sgdProvider()
	p.FailAll = fmt.Errorf("%w: connection refused", models.ErrProviderUnavailable)

	svc := newTestService(p)
	a, err := svc.Analyze(context.Background(), sgdTrades, testutil.Date(2023, 6, 30))
	require.NoError(t, err)

	assert.True(t, a.Prices.Degraded)
	assert.True(t, a.Rates.Degraded)
	assert.True(t, hasWarning(a.Warnings, models.WarningProviderUnavailable))
	assert.True(t, hasWarning(a.Warnings, models.WarningPlaceholderPrice))

	// No splits known, placeholder price, fallback rate
	assert.InDelta(t, 10*100*0.74, a.Values.LastValue(models.TotalColumn), 1e-9)
}

func TestAnalyze_UnknownSymbolValuedAtZero(t *testing.T) {
	p := testutil.NewMockProvider()
	p.Closes["ABC"] = testutil.FlatBars(testutil.Date(2024, 1, 1), testutil.Date(2024, 1, 10), 10)
	p.Errors["GONE"] = fmt.Errorf("%w: GONE", models.ErrSymbolNotFound)

	trades := []models.Trade{
		{Symbol: "ABC", Currency: "USD", Date: testutil.Date(2024, 1, 1), Quantity: 1, UnitPrice: 10},
		{Symbol: "GONE", Currency: "USD", Date: testutil.Date(2024, 1, 2), Quantity: 5, UnitPrice: 20},
	}

	a, err := newTestService(p).Analyze(context.Background(), trades, testutil.Date(2024, 1, 10))
	require.NoError(t, err)
	assert.Empty(t, a.Warnings)
	assert.Equal(t, 10.0, a.Values.LastValue(models.TotalColumn))
	assert.Equal(t, 0.0, a.Values.LastValue("GONE"))
	assert.False(t, a.XIRR["GONE"].Defined)
}

func TestAnalyze_EmptyLedger(t *testing.T) {
	_, err := newTestService(testutil.NewMockProvider()).Analyze(context.Background(), nil, testutil.Date(2024, 1, 1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrNoTradeData))
}

func TestAnalyze_NoticesAndClock(t *testing.T) {
	p := testutil.NewMockProvider()
	p.Closes["ABC"] = testutil.FlatBars(testutil.Date(2024, 1, 1), testutil.Date(2024, 1, 5), 10)

	var notices models.Warnings
	notices.Add("cache", models.WarningCacheUnavailable, "", "cache unavailable")

	svc := newTestService(p,
		WithNotices(notices),
		WithClock(func() time.Time { return testutil.Date(2024, 1, 5) }),
	)
	trades := []models.Trade{{Symbol: "ABC", Currency: "USD", Date: testutil.Date(2024, 1, 1), Quantity: 1, UnitPrice: 10}}

	a, err := svc.Analyze(context.Background(), trades, time.Time{})
	require.NoError(t, err)
	assert.True(t, hasWarning(a.Warnings, models.WarningCacheUnavailable))
	assert.Equal(t, testutil.Date(2024, 1, 5), a.Values.LastDate())
}

func TestAccessors_BeforeFirstRun(t *testing.T) {
	svc := newTestService(testutil.NewMockProvider())
	assert.Nil(t, svc.Last())
	assert.Nil(t, svc.Holdings())
	assert.Nil(t, svc.DailyValueSeries())
	assert.Nil(t, svc.CurrentHoldingsSnapshot())
	assert.Zero(t, svc.TotalInvestment())
	assert.Nil(t, svc.XIRRByHolding())
}
