package models

import (
	"math"
	"time"
)

// FXRateTable is a dense daily table of rates to the reporting currency, one
// column per currency code. The reporting currency column is always 1.0.
type FXRateTable struct {
	Reporting string
	Frame     *DateFrame
	Fallbacks map[string]float64
	Degraded  bool // built from fallback constants rather than provider data
}

// Rate returns the rate for currency on the given day. The reporting currency
// is always exactly 1.0. ok is false when the table has no value.
func (t *FXRateTable) Rate(currency string, date time.Time) (float64, bool) {
	if currency == t.Reporting {
		return 1.0, true
	}
	if t.Frame == nil {
		return 0, false
	}
	return t.Frame.Value(currency, date)
}

// Fallback returns the fixed approximate rate for currency. Unknown currencies
// pass through at 1.0.
func (t *FXRateTable) Fallback(currency string) float64 {
	if currency == t.Reporting {
		return 1.0
	}
	if r, ok := t.Fallbacks[currency]; ok && r > 0 {
		return r
	}
	return 1.0
}

// PriceMatrix is a dense daily table of closing prices in each symbol's native
// currency plus one column per FX pair ticker, keyed by canonical symbol.
type PriceMatrix struct {
	Frame    *DateFrame
	Degraded bool
}

// Price returns the close for symbol on date.
func (m *PriceMatrix) Price(symbol string, date time.Time) (float64, bool) {
	if m == nil || m.Frame == nil {
		return 0, false
	}
	return m.Frame.Value(symbol, date)
}

// TotalColumn is the name of the summed column in a PortfolioValueSeries.
const TotalColumn = "Total"

// PortfolioValueSeries holds daily value per symbol in reporting currency plus TotalColumn.
type PortfolioValueSeries struct {
	Frame *DateFrame
}

// Total returns the summed portfolio value on each day.
func (s *PortfolioValueSeries) Total() []float64 {
	if s == nil || s.Frame == nil {
		return nil
	}
	col, _ := s.Frame.Column(TotalColumn)
	return col
}

// LastDate returns the final day of the series.
func (s *PortfolioValueSeries) LastDate() time.Time {
	if s == nil || s.Frame == nil {
		return time.Time{}
	}
	return s.Frame.LastDate()
}

// LastValue returns the final value of column name, zero when absent.
func (s *PortfolioValueSeries) LastValue(name string) float64 {
	if s == nil || s.Frame == nil || s.Frame.Len() == 0 {
		return 0
	}
	col, ok := s.Frame.Column(name)
	if !ok {
		return 0
	}
	v := col[len(col)-1]
	if math.IsNaN(v) {
		return 0
	}
	return v
}

// XIRRResult is an annualised money-weighted return. Defined is false when the
// cashflows admit no meaningful rate; Rate is then zero and must be ignored.
type XIRRResult struct {
	Rate    float64 `json:"rate"`
	Defined bool    `json:"defined"`
	Reason  string  `json:"reason,omitempty"`
}

// UndefinedXIRR returns a result with no defined rate.
func UndefinedXIRR(reason string) XIRRResult {
	return XIRRResult{Reason: reason}
}

// HoldingSnapshot is a current position valued in reporting currency.
type HoldingSnapshot struct {
	Symbol             string  `json:"symbol"`
	Currency           string  `json:"currency"`
	Quantity           float64 `json:"quantity"`
	UnitPriceReporting float64 `json:"unit_price_reporting"`
	ValueReporting     float64 `json:"value_reporting"`
	WeightPct          float64 `json:"weight_pct"`
}

// AppliedSplit records one split event used during adjustment.
type AppliedSplit struct {
	Symbol string    `json:"symbol"`
	Date   time.Time `json:"split_date"`
	Ratio  float64   `json:"ratio"`
}

// CashflowDiagnostic summarises one symbol's cashflows for XIRR validation.
type CashflowDiagnostic struct {
	Symbol        string  `json:"symbol"`
	Trades        int     `json:"trades"`
	BuyCashflows  float64 `json:"buy_cashflows"`
	SellCashflows float64 `json:"sell_cashflows"`
	NetQuantity   float64 `json:"net_quantity"`
	TerminalValue float64 `json:"terminal_value"`
	MinCashflow   float64 `json:"min_cashflow"`
	MaxCashflow   float64 `json:"max_cashflow"`
}

// Concentration describes how the current value is spread across holdings.
type Concentration struct {
	Top3Pct    float64 `json:"top3_pct"`
	Herfindahl float64 `json:"herfindahl"` // 0 to 10000
	Holdings   int     `json:"holdings"`
}

// Summary holds headline portfolio metrics in reporting currency.
type Summary struct {
	ReportingCurrency string        `json:"reporting_currency"`
	AsOf              time.Time     `json:"as_of"`
	CurrentValue      float64       `json:"current_value"`
	TotalInvestment   float64       `json:"total_investment"`
	TotalSales        float64       `json:"total_sales"`
	TotalPnL          float64       `json:"total_pnl"`
	TotalReturnPct    float64       `json:"total_return_pct"`
	PortfolioXIRR     XIRRResult    `json:"portfolio_xirr"`
	Concentration     Concentration `json:"concentration"`
}

// Analysis is the full output of one pipeline run.
type Analysis struct {
	RunID             string                `json:"run_id"`
	ReportingCurrency string                `json:"reporting_currency"`
	Holdings          []Holding             `json:"holdings"`
	Trades            []Trade               `json:"trades"`
	SplitsApplied     []AppliedSplit        `json:"splits_applied"`
	Rates             *FXRateTable          `json:"-"`
	Prices            *PriceMatrix          `json:"-"`
	Quantities        *DateFrame            `json:"-"`
	Values            *PortfolioValueSeries `json:"-"`
	TotalInvestment   float64               `json:"total_investment"`
	XIRR              map[string]XIRRResult `json:"xirr"`
	Snapshot          []HoldingSnapshot     `json:"snapshot"`
	Cashflows         []CashflowDiagnostic  `json:"cashflows"`
	Summary           Summary               `json:"summary"`
	Warnings          []Warning             `json:"warnings,omitempty"`
}
