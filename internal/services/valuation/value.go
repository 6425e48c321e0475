// Package valuation computes daily positions, portfolio value and money-weighted returns
package valuation

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/bobmcallan/vire-analyzer/internal/models"
)

const stage = "valuation"

// DailyQuantities returns the running position per symbol on every date.
// Trades are summed per day and accumulated in date order; a date before a
// symbol's first trade holds 0. Columns follow first-trade order.
func DailyQuantities(trades []models.Trade, dates []time.Time) *models.DateFrame {
	frame := models.NewDateFrame(dates)

	ordered := models.CloneTrades(trades)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Date.Before(ordered[j].Date) })

	running := make(map[string]float64)
	cols := make(map[string][]float64)
	for _, t := range ordered {
		if _, ok := cols[t.Symbol]; !ok {
			cols[t.Symbol] = frame.AddColumn(t.Symbol)
		}
	}

	next := 0
	for i, day := range frame.Dates() {
		for next < len(ordered) && !models.Day(ordered[next].Date).After(day) {
			running[ordered[next].Symbol] += ordered[next].Quantity
			next++
		}
		for sym, col := range cols {
			col[i] = running[sym]
		}
	}

	return frame
}

// Converter turns native prices into reporting currency per date.
type Converter struct {
	Reporting string
	Prices    *models.PriceMatrix
	Rates     *models.FXRateTable
}

// Rate returns the reporting-currency rate for currency on date. The price
// matrix FX pair column is preferred, then the FX rate table, then the
// fixed fallback constant.
func (c Converter) Rate(currency string, date time.Time) float64 {
	if currency == c.Reporting {
		return 1.0
	}
	if r, ok := c.Prices.Price(models.FXPairTicker(currency, c.Reporting), date); ok && r > 0 {
		return r
	}
	if c.Rates != nil {
		if r, ok := c.Rates.Rate(currency, date); ok && r > 0 {
			return r
		}
		return c.Rates.Fallback(currency)
	}
	return 1.0
}

// DailyValue multiplies each holding's daily quantity by its reporting-currency
// price and sums a TotalColumn. Holdings without prices contribute zero.
func DailyValue(quantities *models.DateFrame, conv Converter, holdings []models.Holding) (*models.PortfolioValueSeries, error) {
	dates := quantities.Dates()
	frame := models.NewDateFrame(dates)
	total := make([]float64, len(dates))

	var corrupt []models.CorruptRow
	for _, h := range holdings {
		values := make([]float64, len(dates))
		qty, hasQty := quantities.Column(h.Symbol)
		price, hasPrice := conv.Prices.Frame.Column(h.Symbol)

		if hasQty && hasPrice {
			for i, d := range dates {
				v := qty[i] * price[i] * conv.Rate(h.Currency, d)
				if math.IsNaN(v) {
					corrupt = append(corrupt, models.CorruptRow{
						Date:   d,
						Symbol: h.Symbol,
						Detail: fmt.Sprintf("qty=%g price=%g", qty[i], price[i]),
					})
					continue
				}
				values[i] = v
			}
		}

		frame.SetColumn(h.Symbol, values)
		for i, v := range values {
			total[i] += v
		}
	}

	if len(corrupt) > 0 {
		return nil, &models.NumericCorruptionError{Stage: stage, Column: "value_reporting", Rows: corrupt}
	}

	frame.SetColumn(models.TotalColumn, total)
	return &models.PortfolioValueSeries{Frame: frame}, nil
}

// TotalInvestment returns the capital deployed: the negated sum of negative
// reporting-currency cashflows. Sells are excluded.
func TotalInvestment(trades []models.Trade) float64 {
	sum := 0.0
	for _, t := range trades {
		if t.TotalCashflowReporting < 0 {
			sum += t.TotalCashflowReporting
		}
	}
	return -sum
}

// TotalSales returns the sum of positive reporting-currency cashflows.
func TotalSales(trades []models.Trade) float64 {
	sum := 0.0
	for _, t := range trades {
		if t.TotalCashflowReporting > 0 {
			sum += t.TotalCashflowReporting
		}
	}
	return sum
}
