package valuation

import (
	"math"
	"sort"

	"github.com/bobmcallan/vire-analyzer/internal/models"
)

// heldQuantityThreshold filters dust positions out of the current snapshot.
const heldQuantityThreshold = 0.001

// CurrentHoldings values each open position on the last date of the quantity
// frame, converted to reporting currency, sorted by value descending.
func CurrentHoldings(quantities *models.DateFrame, conv Converter, holdings []models.Holding) []models.HoldingSnapshot {
	if quantities == nil || quantities.Len() == 0 {
		return nil
	}
	last := quantities.LastDate()

	var out []models.HoldingSnapshot
	total := 0.0
	for _, h := range holdings {
		qty, ok := quantities.Value(h.Symbol, last)
		if !ok || math.Abs(qty) <= heldQuantityThreshold {
			continue
		}
		price, ok := conv.Prices.Price(h.Symbol, last)
		if !ok {
			price = 0
		}
		unit := price * conv.Rate(h.Currency, last)
		snap := models.HoldingSnapshot{
			Symbol:             h.Symbol,
			Currency:           h.Currency,
			Quantity:           qty,
			UnitPriceReporting: unit,
			ValueReporting:     qty * unit,
		}
		total += snap.ValueReporting
		out = append(out, snap)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].ValueReporting > out[j].ValueReporting })

	if total != 0 {
		for i := range out {
			out[i].WeightPct = out[i].ValueReporting / total * 100
		}
	}
	return out
}

// ComputeConcentration returns the top-3 share and the Herfindahl index of a
// snapshot sorted by value descending. Non-positive values are ignored.
func ComputeConcentration(snapshot []models.HoldingSnapshot) models.Concentration {
	total := 0.0
	n := 0
	for _, s := range snapshot {
		if s.ValueReporting > 0 {
			total += s.ValueReporting
			n++
		}
	}
	c := models.Concentration{Holdings: n}
	if total == 0 {
		return c
	}

	top := 0
	for _, s := range snapshot {
		if s.ValueReporting <= 0 {
			continue
		}
		share := s.ValueReporting / total * 100
		if top < 3 {
			c.Top3Pct += share
			top++
		}
		c.Herfindahl += share * share
	}
	return c
}

// CashflowDiagnostics summarises each symbol's reporting-currency cashflows,
// in first-trade order.
func CashflowDiagnostics(trades []models.Trade, values *models.PortfolioValueSeries) []models.CashflowDiagnostic {
	index := make(map[string]int)
	var out []models.CashflowDiagnostic
	for _, t := range trades {
		i, ok := index[t.Symbol]
		if !ok {
			i = len(out)
			index[t.Symbol] = i
			out = append(out, models.CashflowDiagnostic{
				Symbol:      t.Symbol,
				MinCashflow: t.TotalCashflowReporting,
				MaxCashflow: t.TotalCashflowReporting,
			})
		}
		d := &out[i]
		d.Trades++
		d.NetQuantity += t.Quantity
		cf := t.TotalCashflowReporting
		if cf < 0 {
			d.BuyCashflows += cf
		} else {
			d.SellCashflows += cf
		}
		d.MinCashflow = math.Min(d.MinCashflow, cf)
		d.MaxCashflow = math.Max(d.MaxCashflow, cf)
	}

	for i := range out {
		if math.Abs(out[i].NetQuantity) > openPositionEpsilon {
			out[i].TerminalValue = values.LastValue(out[i].Symbol)
		}
	}
	return out
}

// BuildSummary derives the headline figures from a completed valuation.
func BuildSummary(reporting string, trades []models.Trade, values *models.PortfolioValueSeries, snapshot []models.HoldingSnapshot) models.Summary {
	invested := TotalInvestment(trades)
	sales := TotalSales(trades)
	current := values.LastValue(models.TotalColumn)

	s := models.Summary{
		ReportingCurrency: reporting,
		AsOf:              values.LastDate(),
		CurrentValue:      current,
		TotalInvestment:   invested,
		TotalSales:        sales,
		TotalPnL:          current + sales - invested,
		PortfolioXIRR:     PortfolioXIRR(trades, values),
		Concentration:     ComputeConcentration(snapshot),
	}
	if invested > 0 {
		s.TotalReturnPct = s.TotalPnL / invested * 100
	}
	return s
}
