package valuation

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/bobmcallan/vire-analyzer/internal/models"
)

const (
	// openPositionEpsilon is the net quantity above which a position counts as still held.
	openPositionEpsilon = 1e-6
	// maxAbsRate bounds a credible annualised rate; larger roots indicate degenerate cashflows.
	maxAbsRate   = 10.0
	initialGuess = 0.1
	daysPerYear  = 365.0
)

// cashFlow represents a single dated cash flow.
// Negative values = money out (buys), positive values = money in (sells, current value).
type cashFlow struct {
	date   time.Time
	amount float64
}

// XIRR computes the annualised money-weighted return for one symbol. Cash
// flows are the symbol's reporting-currency trade cashflows plus, when the
// position is still open, its value on the last date of the value series.
// The result is undefined unless there are at least two flows of both signs
// and the solver converges to a rate with magnitude below 10.
func XIRR(symbol string, trades []models.Trade, values *models.PortfolioValueSeries) (result models.XIRRResult) {
	defer func() {
		if r := recover(); r != nil {
			result = models.UndefinedXIRR(fmt.Sprintf("solver failure: %v", r))
		}
	}()

	var flows []cashFlow
	netQty := 0.0
	for _, t := range trades {
		if t.Symbol != symbol {
			continue
		}
		flows = append(flows, cashFlow{date: models.Day(t.Date), amount: t.TotalCashflowReporting})
		netQty += t.Quantity
	}
	if len(flows) == 0 {
		return models.UndefinedXIRR("no trades")
	}

	if math.Abs(netQty) > openPositionEpsilon {
		flows = append(flows, cashFlow{date: values.LastDate(), amount: values.LastValue(symbol)})
	}

	return solveFlows(flows)
}

// PortfolioXIRR computes the money-weighted return across every trade, with
// the total portfolio value on the last date as the terminal flow.
func PortfolioXIRR(trades []models.Trade, values *models.PortfolioValueSeries) (result models.XIRRResult) {
	defer func() {
		if r := recover(); r != nil {
			result = models.UndefinedXIRR(fmt.Sprintf("solver failure: %v", r))
		}
	}()

	var flows []cashFlow
	for _, t := range trades {
		flows = append(flows, cashFlow{date: models.Day(t.Date), amount: t.TotalCashflowReporting})
	}
	if len(flows) == 0 {
		return models.UndefinedXIRR("no trades")
	}
	if terminal := values.LastValue(models.TotalColumn); math.Abs(terminal) > 0 {
		flows = append(flows, cashFlow{date: values.LastDate(), amount: terminal})
	}

	return solveFlows(flows)
}

// XIRRByHolding computes XIRR for every symbol that has trades. A failure for
// one symbol never affects the others.
func XIRRByHolding(trades []models.Trade, values *models.PortfolioValueSeries) map[string]models.XIRRResult {
	out := make(map[string]models.XIRRResult)
	for _, t := range trades {
		if _, done := out[t.Symbol]; done {
			continue
		}
		out[t.Symbol] = XIRR(t.Symbol, trades, values)
	}
	return out
}

func solveFlows(flows []cashFlow) models.XIRRResult {
	if len(flows) < 2 {
		return models.UndefinedXIRR("fewer than two cashflows")
	}

	hasNeg, hasPos := false, false
	for _, f := range flows {
		if math.IsNaN(f.amount) || math.IsInf(f.amount, 0) {
			return models.UndefinedXIRR("non-finite cashflow")
		}
		if f.amount < 0 {
			hasNeg = true
		}
		if f.amount > 0 {
			hasPos = true
		}
	}
	if !hasNeg || !hasPos {
		return models.UndefinedXIRR("cashflows must include both inflows and outflows")
	}

	sort.SliceStable(flows, func(i, j int) bool { return flows[i].date.Before(flows[j].date) })

	rate := solveXIRR(flows)
	if math.IsNaN(rate) || math.IsInf(rate, 0) {
		return models.UndefinedXIRR("solver did not converge")
	}
	if math.Abs(rate) >= maxAbsRate {
		return models.UndefinedXIRR(fmt.Sprintf("rate %.2f out of bounds", rate))
	}
	return models.XIRRResult{Rate: rate, Defined: true}
}

// solveXIRR uses Newton-Raphson to find the rate r such that NPV(r) = 0.
// NPV(r) = sum of amount_i / (1 + r)^(years_i) where years_i = days from first date / 365.
// Returns the rate as a decimal (e.g., 0.12 for 12%), or NaN.
func solveXIRR(flows []cashFlow) float64 {
	const (
		maxIter = 100
		tol     = 1e-7
		minRate = -0.999 // rate can't go below -99.9%
	)

	years := yearFractions(flows)

	// Tolerance scales with the cashflow magnitude
	scale := 0.0
	for _, f := range flows {
		scale += math.Abs(f.amount)
	}
	npvTol := tol * math.Max(1, scale)

	rate := initialGuess

	for iter := 0; iter < maxIter; iter++ {
		npv := 0.0
		dnpv := 0.0

		base := 1 + rate
		for i, f := range flows {
			y := years[i]
			discount := math.Pow(base, y)
			if discount == 0 || math.IsInf(discount, 0) {
				continue
			}
			npv += f.amount / discount
			if y != 0 {
				dnpv -= y * f.amount / (discount * base)
			}
		}

		if math.Abs(npv) < npvTol {
			return rate
		}

		if dnpv == 0 || math.IsNaN(dnpv) {
			break
		}

		newRate := rate - npv/dnpv

		// Clamp to prevent wild oscillation
		if newRate <= minRate {
			newRate = (rate + minRate) / 2
		}
		if newRate > 100 {
			newRate = 100
		}

		// A stalled step is only a root if NPV agrees; otherwise Newton is
		// pinned at the clamp and bisection takes over.
		if math.Abs(newRate-rate) < 1e-12 {
			if math.Abs(npvAt(flows, years, newRate)) < npvTol {
				return newRate
			}
			break
		}
		rate = newRate
	}

	// Fallback: bisection method if Newton-Raphson didn't converge
	return bisectXIRR(flows, years, npvTol)
}

// bisectXIRR uses bisection as a fallback solver for XIRR. Returns NaN when
// NPV does not change sign over the credible rate range.
func bisectXIRR(flows []cashFlow, years []float64, npvTol float64) float64 {
	const (
		maxIter = 200
		width   = 1e-10
	)

	// Bracket [lo, hi] where NPV changes sign
	lo, hi := -0.999999, maxAbsRate
	npvLo := npvAt(flows, years, lo)
	npvHi := npvAt(flows, years, hi)

	if math.IsNaN(npvLo) || math.IsNaN(npvHi) || npvLo*npvHi > 0 {
		return math.NaN()
	}

	for iter := 0; iter < maxIter; iter++ {
		mid := (lo + hi) / 2
		npvMid := npvAt(flows, years, mid)
		if math.IsNaN(npvMid) {
			return math.NaN()
		}
		if math.Abs(npvMid) < npvTol || hi-lo < width {
			return mid
		}
		if npvMid*npvLo < 0 {
			hi = mid
		} else {
			lo = mid
			npvLo = npvMid
		}
	}

	return math.NaN()
}

func npvAt(flows []cashFlow, years []float64, rate float64) float64 {
	sum := 0.0
	for i, f := range flows {
		sum += f.amount / math.Pow(1+rate, years[i])
	}
	return sum
}

func yearFractions(flows []cashFlow) []float64 {
	base := flows[0].date
	years := make([]float64, len(flows))
	for i, f := range flows {
		years[i] = f.date.Sub(base).Hours() / 24 / daysPerYear
	}
	return years
}
