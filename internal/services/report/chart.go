// Package report renders analysis results as markdown and charts
package report

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/bobmcallan/vire-analyzer/internal/models"
)

// ChartOptions sizes the rendered chart
type ChartOptions struct {
	Width  int
	Height int
}

// RenderValueChart renders a PNG line chart of the daily portfolio value.
// Two series: Portfolio Value (blue solid) and Net Invested (gray dashed),
// the running sum of trade cashflows. Returns raw PNG bytes.
func RenderValueChart(a *models.Analysis, opts ChartOptions) ([]byte, error) {
	if a == nil || a.Values == nil || a.Values.Frame == nil {
		return nil, fmt.Errorf("no value series to chart")
	}
	dates := a.Values.Frame.Dates()
	if len(dates) < 2 {
		return nil, fmt.Errorf("need at least 2 data points, got %d", len(dates))
	}
	if opts.Width <= 0 {
		opts.Width = 1200
	}
	if opts.Height <= 0 {
		opts.Height = 500
	}

	valueY := make([]float64, len(dates))
	copy(valueY, a.Values.Total())
	investedY := netInvested(a.Trades, dates)

	valueSeries := chart.TimeSeries{
		Name: "Portfolio Value",
		Style: chart.Style{
			StrokeColor: drawing.ColorFromHex("2563eb"), // blue-600
			StrokeWidth: 2.5,
		},
		XValues: dates,
		YValues: valueY,
	}

	investedSeries := chart.TimeSeries{
		Name: "Net Invested",
		Style: chart.Style{
			StrokeColor:     drawing.ColorFromHex("9ca3af"), // gray-400
			StrokeWidth:     1.5,
			StrokeDashArray: []float64{5.0, 3.0},
		},
		XValues: dates,
		YValues: investedY,
	}

	graph := chart.Chart{
		Title:  fmt.Sprintf("Portfolio Value (%s)", a.ReportingCurrency),
		Width:  opts.Width,
		Height: opts.Height,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 10, Right: 20, Bottom: 10},
		},
		XAxis: chart.XAxis{
			TickPosition: chart.TickPositionBetweenTicks,
			ValueFormatter: func(v interface{}) string {
				if t, ok := v.(float64); ok {
					return chart.TimeFromFloat64(t).Format("Jan 06")
				}
				return ""
			},
		},
		YAxis: chart.YAxis{
			ValueFormatter: func(v interface{}) string {
				if f, ok := v.(float64); ok {
					return fmt.Sprintf("%.0fk", f/1000)
				}
				return ""
			},
		},
		Series: []chart.Series{
			valueSeries,
			investedSeries,
		},
	}

	graph.Elements = []chart.Renderable{
		chart.LegendLeft(&graph),
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("chart render failed: %w", err)
	}

	return buf.Bytes(), nil
}

// netInvested returns, for each date, the negated running sum of reporting
// cashflows of trades on or before that date.
func netInvested(trades []models.Trade, dates []time.Time) []float64 {
	ordered := models.CloneTrades(trades)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Date.Before(ordered[j].Date) })

	out := make([]float64, len(dates))
	running := 0.0
	next := 0
	for i, d := range dates {
		for next < len(ordered) && !models.Day(ordered[next].Date).After(d) {
			running -= ordered[next].TotalCashflowReporting
			next++
		}
		out[i] = running
	}
	return out
}
