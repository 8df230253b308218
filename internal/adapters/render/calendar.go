package render

import (
	"bytes"
	"fmt"
	"math"
	"time"

	"github.com/fogleman/gg"

	"github.com/okian/tally/internal/domain/model"
	"github.com/okian/tally/pkg/metrics"
)

// Calendar geometry in pixels.
const (
	calendarWeeks  = 53
	calendarCell   = 18
	calendarGap    = 4
	calendarPad    = 40
	calendarTitle  = 60
	calendarMonths = 24
	calendarDayCol = 40
	calendarFooter = 50
	calendarPitch  = calendarCell + calendarGap
	calendarGridW  = calendarWeeks*calendarPitch - calendarGap
	calendarGridH  = 7*calendarPitch - calendarGap
	calendarGridX  = calendarPad + calendarDayCol
	calendarGridY  = calendarPad + calendarTitle + calendarMonths
	CalendarWidth  = calendarGridX + calendarGridW + calendarPad
	CalendarHeight = calendarGridY + calendarGridH + calendarFooter + calendarPad
)

// Calendar is a per-day count mapping drawn as a year of weekly columns
// ending at End. Days are keyed by model.DateLayout; absent days count as zero.
type Calendar struct {
	Title string
	Days  map[string]int
	End   time.Time
}

// calendarStart returns the Sunday that opens the first column so that End
// lands in the last column.
func calendarStart(end time.Time) time.Time {
	end = time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)
	return end.AddDate(0, 0, -((calendarWeeks-1)*7 + int(end.Weekday())))
}

// cellOrigin returns the top-left pixel of the cell for column col and weekday row.
func cellOrigin(col, row int) (x, y float64) {
	return float64(calendarGridX + col*calendarPitch), float64(calendarGridY + row*calendarPitch)
}

// level maps a count to a colour index in calendarLevels.
func level(count, maxCount int) int {
	if count <= 0 || maxCount <= 0 {
		return 0
	}
	l := int(math.Ceil(float64(count) / float64(maxCount) * float64(len(calendarLevels)-1)))
	return min(max(l, 1), len(calendarLevels)-1)
}

// RenderCalendar draws cal as a PNG contribution graph. An empty mapping
// draws an empty grid.
func (r *Renderer) RenderCalendar(cal Calendar) ([]byte, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRenderLatency(metrics.ChartContribution, float64(time.Since(start).Microseconds())/1000)
	}()

	first := calendarStart(cal.End)
	last := time.Date(cal.End.Year(), cal.End.Month(), cal.End.Day(), 0, 0, 0, 0, time.UTC)

	maxCount, sum := 0, 0
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		n := cal.Days[d.Format(model.DateLayout)]
		maxCount = max(maxCount, n)
		sum += n
	}

	dc := gg.NewContext(CalendarWidth, CalendarHeight)
	dc.SetHexColor(ColorBackground)
	dc.Clear()

	dc.SetHexColor(ColorText)
	dc.SetFontFace(r.fonts.face(true, 32))
	dc.DrawStringAnchored(cal.Title, CalendarWidth/2, calendarPad+36, 0.5, 0)

	small := r.fonts.face(false, 14)
	dc.SetFontFace(small)
	dc.SetHexColor(ColorTextSecondary)
	for _, row := range []time.Weekday{time.Monday, time.Wednesday, time.Friday} {
		_, y := cellOrigin(0, int(row))
		dc.DrawStringAnchored(row.String()[:3], calendarPad, y+calendarCell-4, 0, 0)
	}

	prevMonth := time.Month(0)
	for d, i := first, 0; !d.After(last); d, i = d.AddDate(0, 0, 1), i+1 {
		col, row := i/7, int(d.Weekday())
		x, y := cellOrigin(col, row)

		if row == 0 && d.Month() != prevMonth {
			prevMonth = d.Month()
			dc.SetHexColor(ColorTextSecondary)
			dc.DrawStringAnchored(d.Format("Jan"), x, float64(calendarGridY-8), 0, 0)
		}

		dc.SetHexColor(calendarLevels[level(cal.Days[d.Format(model.DateLayout)], maxCount)])
		dc.DrawRoundedRectangle(x, y, calendarCell, calendarCell, 3)
		dc.Fill()
	}

	dc.SetHexColor(ColorTextSecondary)
	dc.DrawStringAnchored(fmt.Sprintf("%s increments in the last year", FormatCount(sum)),
		calendarGridX, float64(calendarGridY+calendarGridH+32), 0, 0)

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncode, err)
	}
	return buf.Bytes(), nil
}
