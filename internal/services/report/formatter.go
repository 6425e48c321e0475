package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bobmcallan/vire-analyzer/internal/common"
	"github.com/bobmcallan/vire-analyzer/internal/models"
)

// FormatAnalysis renders the full analysis: summary, holdings, returns,
// splits and warnings.
func FormatAnalysis(a *models.Analysis) string {
	var sb strings.Builder
	sb.WriteString(FormatSummary(a))
	sb.WriteString(FormatHoldings(a))
	sb.WriteString(FormatXIRR(a, false))
	if len(a.SplitsApplied) > 0 {
		sb.WriteString(FormatSplits(a))
	}
	sb.WriteString(FormatWarnings(a))
	return sb.String()
}

// FormatSummary renders the headline figures
func FormatSummary(a *models.Analysis) string {
	var sb strings.Builder
	s := a.Summary
	ccy := a.ReportingCurrency

	sb.WriteString("# Portfolio Summary\n\n")
	sb.WriteString(fmt.Sprintf("**As Of:** %s\n", s.AsOf.Format("2006-01-02")))
	sb.WriteString(fmt.Sprintf("**Reporting Currency:** %s\n", ccy))
	sb.WriteString(fmt.Sprintf("**Current Value:** %s\n", common.FormatMoney(s.CurrentValue, ccy)))
	sb.WriteString(fmt.Sprintf("**Total Invested:** %s\n", common.FormatMoney(s.TotalInvestment, ccy)))
	sb.WriteString(fmt.Sprintf("**Total Sales:** %s\n", common.FormatMoney(s.TotalSales, ccy)))
	sb.WriteString(fmt.Sprintf("**Total P/L:** %s (%s)\n", common.FormatSignedMoney(s.TotalPnL, ccy), common.FormatSignedPct(s.TotalReturnPct)))
	sb.WriteString(fmt.Sprintf("**Portfolio XIRR:** %s\n", formatXIRR(s.PortfolioXIRR)))
	if s.Concentration.Holdings > 0 {
		sb.WriteString(fmt.Sprintf("**Concentration:** top 3 %.1f%% | HHI %.0f\n", s.Concentration.Top3Pct, s.Concentration.Herfindahl))
	}
	if degraded := degradedParts(a); degraded != "" {
		sb.WriteString(fmt.Sprintf("**Approximate:** %s\n", degraded))
	}
	sb.WriteString("\n")
	return sb.String()
}

// FormatHoldings renders the current holdings table, largest first
func FormatHoldings(a *models.Analysis) string {
	var sb strings.Builder
	ccy := a.ReportingCurrency

	sb.WriteString("## Holdings\n\n")
	if len(a.Snapshot) == 0 {
		sb.WriteString("No open positions.\n\n")
		return sb.String()
	}

	sb.WriteString("| Symbol | Currency | Qty | Price | Value | Weight |\n")
	sb.WriteString("|--------|----------|-----|-------|-------|--------|\n")
	total := 0.0
	for _, h := range a.Snapshot {
		total += h.ValueReporting
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s | %.1f%% |\n",
			h.Symbol, h.Currency, formatQuantity(h.Quantity),
			common.FormatMoney(h.UnitPriceReporting, ccy), common.FormatMoney(h.ValueReporting, ccy), h.WeightPct))
	}
	sb.WriteString(fmt.Sprintf("| **Total** | | | | **%s** | |\n\n", common.FormatMoney(total, ccy)))
	return sb.String()
}

// FormatXIRR renders per-holding returns in symbol order. verbose adds the
// cashflow diagnostics behind each figure.
func FormatXIRR(a *models.Analysis, verbose bool) string {
	var sb strings.Builder
	ccy := a.ReportingCurrency

	sb.WriteString("## Returns (XIRR)\n\n")
	symbols := make([]string, 0, len(a.XIRR))
	for sym := range a.XIRR {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	if !verbose {
		sb.WriteString("| Symbol | XIRR |\n")
		sb.WriteString("|--------|------|\n")
		for _, sym := range symbols {
			sb.WriteString(fmt.Sprintf("| %s | %s |\n", sym, formatXIRR(a.XIRR[sym])))
		}
		sb.WriteString("\n")
		return sb.String()
	}

	diags := make(map[string]models.CashflowDiagnostic, len(a.Cashflows))
	for _, d := range a.Cashflows {
		diags[d.Symbol] = d
	}

	sb.WriteString("| Symbol | XIRR | Trades | Bought | Sold | Net Qty | Terminal Value | Note |\n")
	sb.WriteString("|--------|------|--------|--------|------|---------|----------------|------|\n")
	for _, sym := range symbols {
		x := a.XIRR[sym]
		d := diags[sym]
		sb.WriteString(fmt.Sprintf("| %s | %s | %d | %s | %s | %s | %s | %s |\n",
			sym, formatXIRR(x), d.Trades,
			common.FormatMoney(-d.BuyCashflows, ccy), common.FormatMoney(d.SellCashflows, ccy),
			formatQuantity(d.NetQuantity), common.FormatMoney(d.TerminalValue, ccy), x.Reason))
	}
	sb.WriteString("\n")
	return sb.String()
}

// FormatSplits renders the split events applied to trades and prices
func FormatSplits(a *models.Analysis) string {
	var sb strings.Builder
	sb.WriteString("## Splits Applied\n\n")
	if len(a.SplitsApplied) == 0 {
		sb.WriteString("No splits applied.\n\n")
		return sb.String()
	}
	sb.WriteString("| Symbol | Date | Ratio |\n")
	sb.WriteString("|--------|------|-------|\n")
	for _, s := range a.SplitsApplied {
		sb.WriteString(fmt.Sprintf("| %s | %s | %g |\n", s.Symbol, s.Date.Format("2006-01-02"), s.Ratio))
	}
	sb.WriteString("\n")
	return sb.String()
}

// FormatWarnings renders the degraded-data annotations, if any
func FormatWarnings(a *models.Analysis) string {
	if len(a.Warnings) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("## Warnings\n\n")
	for _, w := range a.Warnings {
		if w.Symbol != "" {
			sb.WriteString(fmt.Sprintf("- [%s] **%s**: %s\n", w.Kind, w.Symbol, w.Message))
		} else {
			sb.WriteString(fmt.Sprintf("- [%s] %s\n", w.Kind, w.Message))
		}
	}
	sb.WriteString("\n")
	return sb.String()
}

func formatXIRR(x models.XIRRResult) string {
	if !x.Defined {
		return "N/A"
	}
	return common.FormatSignedPct(x.Rate * 100)
}

func formatQuantity(q float64) string {
	if q == float64(int64(q)) {
		return fmt.Sprintf("%.0f", q)
	}
	return fmt.Sprintf("%.4f", q)
}

func degradedParts(a *models.Analysis) string {
	var parts []string
	if a.Prices != nil && a.Prices.Degraded {
		parts = append(parts, "prices")
	}
	if a.Rates != nil && a.Rates.Degraded {
		parts = append(parts, "fx rates")
	}
	return strings.Join(parts, ", ")
}
