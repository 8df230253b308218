// Package render draws leaderboard bar charts and contribution calendars as PNG images.
package render

import (
	"bytes"
	"fmt"
	"math"
	"time"

	"github.com/fogleman/gg"

	"github.com/okian/tally/pkg/metrics"
)

// MaxBars is the most bars a chart draws; extra bars are ignored.
const MaxBars = 10

// Bar chart geometry in pixels.
const (
	ChartWidth  = 1400
	ChartHeight = titleHeight + chartAreaHeight + footerHeight

	padding         = 60
	titleHeight     = 100
	chartAreaHeight = 500
	footerHeight    = 80
	barGap          = 20
	barMinWidth     = 60
	barMaxWidth     = 120
	barRadius       = 8
	labelSpace      = 100 // above the tallest bar
	nameSpace       = 60  // between bar bottoms and the band's bottom edge
)

// Bar is one labelled value.
type Bar struct {
	Label string
	Value int
}

// BarChart is a titled, ordered list of bars. Participants feeds the footer
// and may exceed the number of bars drawn.
type BarChart struct {
	Title        string
	Bars         []Bar
	Participants int
}

// Renderer draws charts. It holds parsed fonts only and is safe for
// concurrent use.
type Renderer struct {
	fonts fonts
}

// New parses the embedded fonts.
func New() (*Renderer, error) {
	f, err := loadFonts()
	if err != nil {
		return nil, err
	}
	return &Renderer{fonts: f}, nil
}

// barWidth clamps the evenly divided chart width to [60, 120].
func barWidth(n int) float64 {
	chartWidth := float64(ChartWidth - 2*padding)
	w := (chartWidth - float64(n-1)*barGap) / float64(n)
	return math.Min(barMaxWidth, math.Max(barMinWidth, w))
}

// barRect returns the top-left corner and height of bar i.
func barRect(i, value, maxValue int, width float64) (x, y, h float64) {
	h = float64(value) / float64(maxValue) * (chartAreaHeight - labelSpace)
	x = padding + float64(i)*(width+barGap)
	y = titleHeight + chartAreaHeight - h - nameSpace
	return x, y, h
}

// RenderBarChart draws chart as a 1400x680 PNG. Identical input yields
// identical bytes.
func (r *Renderer) RenderBarChart(chart BarChart) ([]byte, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRenderLatency(metrics.ChartRanking, float64(time.Since(start).Microseconds())/1000)
	}()

	bars := chart.Bars
	if len(bars) == 0 {
		return nil, ErrNoBars
	}
	if len(bars) > MaxBars {
		bars = bars[:MaxBars]
	}
	maxValue := 0
	for _, b := range bars {
		maxValue = max(maxValue, b.Value)
	}
	if maxValue <= 0 {
		return nil, ErrZeroMax
	}

	dc := gg.NewContext(ChartWidth, ChartHeight)
	dc.SetHexColor(ColorBackground)
	dc.Clear()

	dc.SetHexColor(ColorText)
	dc.SetFontFace(r.fonts.face(true, 48))
	dc.DrawStringAnchored(chart.Title, ChartWidth/2, 60, 0.5, 0)

	valueFace := r.fonts.face(true, 24)
	ordinalFace := r.fonts.face(true, 28)
	nameFace := r.fonts.face(false, 20)
	width := barWidth(len(bars))

	for i, b := range bars {
		x, y, h := barRect(i, b.Value, maxValue, width)
		cx := x + width/2

		if h > 0 {
			dc.SetHexColor(TierFor(i).Color())
			dc.DrawRoundedRectangle(x, y, width, h, math.Min(barRadius, math.Min(width, h)/2))
			dc.Fill()
		}

		dc.SetHexColor(ColorText)
		dc.SetFontFace(valueFace)
		dc.DrawStringAnchored(FormatCount(b.Value), cx, y-10, 0.5, 0)
		dc.SetFontFace(ordinalFace)
		dc.DrawStringAnchored(Ordinal(i), cx, y-50, 0.5, 0)

		dc.SetHexColor(ColorTextSecondary)
		dc.SetFontFace(nameFace)
		dc.DrawStringAnchored(TruncateLabel(b.Label), cx, titleHeight+chartAreaHeight-20, 0.5, 0)
	}

	participants := chart.Participants
	if participants <= 0 {
		participants = len(chart.Bars)
	}
	dc.SetHexColor(ColorTextSecondary)
	dc.SetFontFace(nameFace)
	dc.DrawStringAnchored(fmt.Sprintf("Total %d users finished...", participants), ChartWidth/2, ChartHeight-30, 0.5, 0)

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncode, err)
	}
	return buf.Bytes(), nil
}
