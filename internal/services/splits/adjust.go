package splits

import (
	"sort"
	"time"

	"github.com/bobmcallan/vire-analyzer/internal/models"
)

// ApplyToTrades returns a copy of trades with quantities multiplied and prices
// divided by every split dated strictly after the trade. A trade preceding
// several splits compounds their ratios.
// LocalCashflow is recomputed for every trade.
func ApplyToTrades(trades []models.Trade, splits map[string][]models.SplitEvent) []models.Trade {
	out := models.CloneTrades(trades)

	for i := range out {
		if events, ok := splits[out[i].Symbol]; ok {
			ratio := CumulativeRatio(events, out[i].Date)
			out[i].Quantity *= ratio
			out[i].UnitPrice /= ratio
		}
		out[i].LocalCashflow = out[i].ComputeLocalCashflow()
	}
	return out
}

// AdjustSeries divides column values dated strictly before each split by its
// ratio, walking splits newest first. Missing values stay missing.
func AdjustSeries(frame *models.DateFrame, column string, events []models.SplitEvent) {
	col, ok := frame.Column(column)
	if !ok {
		return
	}
	dates := frame.Dates()

	ordered := ascending(events)
	for k := len(ordered) - 1; k >= 0; k-- {
		e := ordered[k]
		for i, d := range dates {
			if !d.Before(e.Date) {
				break
			}
			col[i] /= e.Ratio
		}
	}
}

// CumulativeRatio returns the product of ratios for splits dated strictly
// after date: the factor a share count on date must be multiplied by to be
// expressed in today's shares.
func CumulativeRatio(events []models.SplitEvent, date time.Time) float64 {
	day := models.Day(date)
	ratio := 1.0
	for _, e := range events {
		if day.Before(models.Day(e.Date)) {
			ratio *= e.Ratio
		}
	}
	return ratio
}

// Applied flattens a split map into a date-ordered listing.
func Applied(splits map[string][]models.SplitEvent) []models.AppliedSplit {
	var out []models.AppliedSplit
	for symbol, events := range splits {
		for _, e := range events {
			out = append(out, models.AppliedSplit{Symbol: symbol, Date: e.Date, Ratio: e.Ratio})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out
}

func ascending(events []models.SplitEvent) []models.SplitEvent {
	ordered := make([]models.SplitEvent, len(events))
	copy(ordered, events)
	for i := range ordered {
		ordered[i].Date = models.Day(ordered[i].Date)
	}
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Date.Before(ordered[j].Date) })
	return ordered
}
