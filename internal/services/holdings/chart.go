package holdings

import (
	"bytes"
	"fmt"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/yhlin/etfwatch/internal/models"
)

// RenderWeightChart renders a PNG bar chart of a fund-day's heaviest
// holdings. Bars are labelled with instrument codes since the chart
// font has no CJK glyphs. Returns raw PNG bytes.
func RenderWeightChart(fundCode, date string, holdings []models.Holding, top int) ([]byte, error) {
	if len(holdings) == 0 {
		return nil, fmt.Errorf("no holdings to chart for %s on %s", fundCode, date)
	}
	if top <= 0 || top > len(holdings) {
		top = len(holdings)
	}

	bars := make([]chart.Value, 0, top)
	for _, h := range holdings[:top] {
		weight, _ := h.Weight.Float64()
		bars = append(bars, chart.Value{
			Label: h.InstrumentCode,
			Value: weight,
			Style: chart.Style{
				FillColor:   drawing.ColorFromHex("2563eb"),
				StrokeColor: drawing.ColorFromHex("1d4ed8"),
				StrokeWidth: 1.0,
			},
		})
	}

	graph := chart.BarChart{
		Title:    fmt.Sprintf("%s top holdings by weight (%s)", fundCode, date),
		Width:    900,
		Height:   400,
		BarWidth: 40,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 10, Right: 20, Bottom: 10},
		},
		YAxis: chart.YAxis{
			ValueFormatter: func(v interface{}) string {
				if f, ok := v.(float64); ok {
					return fmt.Sprintf("%.1f%%", f)
				}
				return ""
			},
		},
		Bars: bars,
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("chart render failed: %w", err)
	}

	return buf.Bytes(), nil
}
