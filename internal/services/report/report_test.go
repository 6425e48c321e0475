package report

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/vire-analyzer/internal/models"
	"github.com/bobmcallan/vire-analyzer/internal/testutil"
)

func sampleAnalysis() *models.Analysis {
	dates := models.CalendarDays(testutil.Date(2023, 1, 1), testutil.Date(2023, 1, 5))
	frame := models.NewDateFrame(dates)
	frame.SetColumn("ABC", []float64{1500, 1500, 900, 900, 900})
	frame.SetColumn(models.TotalColumn, []float64{1500, 1500, 900, 900, 900})

	return &models.Analysis{
		ReportingCurrency: "USD",
		Trades: []models.Trade{
			{Symbol: "ABC", Date: testutil.Date(2023, 1, 1), Quantity: 10, TotalCashflowReporting: -1001},
			{Symbol: "ABC", Date: testutil.Date(2023, 1, 3), Quantity: -4, TotalCashflowReporting: 599},
		},
		SplitsApplied: []models.AppliedSplit{{Symbol: "ABC", Date: testutil.Date(2022, 6, 1), Ratio: 2}},
		Values:        &models.PortfolioValueSeries{Frame: frame},
		XIRR: map[string]models.XIRRResult{
			"ABC": {Rate: 0.25, Defined: true},
			"OLD": models.UndefinedXIRR("cashflows must include both inflows and outflows"),
		},
		Snapshot: []models.HoldingSnapshot{
			{Symbol: "ABC", Currency: "USD", Quantity: 6, UnitPriceReporting: 150, ValueReporting: 900, WeightPct: 100},
		},
		Cashflows: []models.CashflowDiagnostic{
			{Symbol: "ABC", Trades: 2, BuyCashflows: -1001, SellCashflows: 599, NetQuantity: 6, TerminalValue: 900},
		},
		Summary: models.Summary{
			ReportingCurrency: "USD",
			AsOf:              testutil.Date(2023, 1, 5),
			CurrentValue:      900,
			TotalInvestment:   1001,
			TotalSales:        599,
			TotalPnL:          498,
			TotalReturnPct:    49.75,
			PortfolioXIRR:     models.XIRRResult{Rate: 0.25, Defined: true},
			Concentration:     models.Concentration{Top3Pct: 100, Herfindahl: 10000, Holdings: 1},
		},
		Prices:   &models.PriceMatrix{},
		Rates:    &models.FXRateTable{Degraded: true},
		Warnings: []models.Warning{{Stage: "currency", Kind: models.WarningFXFallback, Symbol: "SGD", Message: "using approximate rate"}},
	}
}

func TestFormatSummary(t *testing.T) {
	out := FormatSummary(sampleAnalysis())
	assert.Contains(t, out, "**As Of:** 2023-01-05")
	assert.Contains(t, out, "**Current Value:** $900.00")
	assert.Contains(t, out, "**Total Invested:** $1,001.00")
	assert.Contains(t, out, "**Total P/L:** +$498.00 (+49.75%)")
	assert.Contains(t, out, "**Portfolio XIRR:** +25.00%")
	assert.Contains(t, out, "**Approximate:** fx rates")
}

func TestFormatHoldings(t *testing.T) {
	out := FormatHoldings(sampleAnalysis())
	assert.Contains(t, out, "| ABC | USD | 6 | $150.00 | $900.00 | 100.0% |")

	empty := FormatHoldings(&models.Analysis{ReportingCurrency: "USD"})
	assert.Contains(t, empty, "No open positions.")
}

func TestFormatXIRR(t *testing.T) {
	a := sampleAnalysis()

	out := FormatXIRR(a, false)
	assert.Contains(t, out, "| ABC | +25.00% |")
	assert.Contains(t, out, "| OLD | N/A |")
	assert.Less(t, strings.Index(out, "ABC"), strings.Index(out, "OLD"))

	verbose := FormatXIRR(a, true)
	assert.Contains(t, verbose, "| ABC | +25.00% | 2 | $1,001.00 | $599.00 | 6 | $900.00 |")
	assert.Contains(t, verbose, "both inflows and outflows")
}

func TestFormatAnalysis_IncludesSections(t *testing.T) {
	out := FormatAnalysis(sampleAnalysis())
	for _, section := range []string{"# Portfolio Summary", "## Holdings", "## Returns (XIRR)", "## Splits Applied", "## Warnings"} {
		assert.Contains(t, out, section)
	}
	assert.Contains(t, out, "| ABC | 2022-06-01 | 2 |")
	assert.Contains(t, out, "- [fx_fallback] **SGD**: using approximate rate")
}

func TestFormatWarnings_Empty(t *testing.T) {
	assert.Empty(t, FormatWarnings(&models.Analysis{}))
}

func TestNetInvested(t *testing.T) {
	a := sampleAnalysis()
	got := netInvested(a.Trades, a.Values.Frame.Dates())
	assert.Equal(t, []float64{1001, 1001, 402, 402, 402}, got)
}

func TestRenderValueChart(t *testing.T) {
	png, err := RenderValueChart(sampleAnalysis(), ChartOptions{Width: 600, Height: 300})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))
}

func TestRenderValueChart_TooFewPoints(t *testing.T) {
	frame := models.NewDateFrame(models.CalendarDays(testutil.Date(2023, 1, 1), testutil.Date(2023, 1, 1)))
	frame.SetColumn(models.TotalColumn, []float64{100})
	a := &models.Analysis{Values: &models.PortfolioValueSeries{Frame: frame}}

	_, err := RenderValueChart(a, ChartOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 2")

	_, err = RenderValueChart(&models.Analysis{}, ChartOptions{})
	assert.Error(t, err)
}
