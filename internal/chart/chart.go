// Package chart renders the summary charts as PNG images.
package chart

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sort"

	gochart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"chemviz/internal/models"
)

// ErrNoData is returned when there is nothing to plot.
var ErrNoData = errors.New("chart: no data to plot")

// Palette is shared with the web dashboard's stat cards.
var Palette = []string{"6366f1", "06b6d4", "ec4899", "f59e0b", "10b981", "ef4444"}

// Default image size in pixels.
const (
	Width  = 520
	Height = 360
)

// Color returns the palette entry for the i-th series.
func Color(i int) drawing.Color {
	return drawing.ColorFromHex(Palette[i%len(Palette)])
}

// Distribution draws the equipment type distribution as a pie chart.
// Types are ordered by name so colours stay stable between renders.
func Distribution(w io.Writer, report *models.SummaryReport) error {
	if report == nil {
		return ErrNoData
	}

	types := make([]string, 0, len(report.TypeDistribution))
	total := 0
	for t, n := range report.TypeDistribution {
		if n > 0 {
			types = append(types, t)
			total += n
		}
	}
	if total == 0 {
		return ErrNoData
	}
	sort.Strings(types)

	values := make([]gochart.Value, 0, len(types))
	for i, t := range types {
		n := report.TypeDistribution[t]
		values = append(values, gochart.Value{
			Label: fmt.Sprintf("%s (%d)", t, n),
			Value: float64(n),
			Style: gochart.Style{
				FillColor:   Color(i),
				StrokeColor: drawing.ColorWhite,
				StrokeWidth: 2,
				FontColor:   drawing.ColorWhite,
			},
		})
	}

	pie := gochart.PieChart{
		Title:  "Equipment Type Distribution",
		Width:  Width,
		Height: Height,
		Values: values,
	}
	if err := pie.Render(gochart.PNG, w); err != nil {
		return fmt.Errorf("render distribution chart: %w", err)
	}
	return nil
}

// Averages draws the average flowrate, pressure and temperature as bars.
func Averages(w io.Writer, report *models.SummaryReport) error {
	if report == nil || report.TotalCount == 0 {
		return ErrNoData
	}

	avg := report.Averages
	bars := []gochart.Value{
		{Label: "Flowrate", Value: avg.Flowrate},
		{Label: "Pressure", Value: avg.Pressure},
		{Label: "Temperature", Value: avg.Temperature},
	}

	lo, hi := 0.0, 0.0
	for i := range bars {
		bars[i].Style = gochart.Style{FillColor: Color(i), StrokeColor: Color(i)}
		lo = math.Min(lo, bars[i].Value)
		hi = math.Max(hi, bars[i].Value)
	}
	if hi == lo {
		hi = lo + 1
	}

	bc := gochart.BarChart{
		Title:      "Average Parameters",
		Width:      Width,
		Height:     Height,
		BarWidth:   80,
		Background: gochart.Style{Padding: gochart.Box{Top: 40, Left: 16, Right: 12, Bottom: 16}},
		YAxis: gochart.YAxis{
			Range: &gochart.ContinuousRange{Min: lo, Max: hi * 1.1},
		},
		Bars: bars,
	}
	if err := bc.Render(gochart.PNG, w); err != nil {
		return fmt.Errorf("render averages chart: %w", err)
	}
	return nil
}
