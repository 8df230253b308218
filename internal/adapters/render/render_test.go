package render

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/okian/tally/internal/domain/contribution"
	"github.com/okian/tally/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func newRenderer(t *testing.T) *Renderer {
	t.Helper()
	r, err := New()
	if err != nil {
		t.Fatalf("new renderer: %v", err)
	}
	return r
}

func decode(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	return img
}

func hexRGB(h string) color.RGBA {
	var c color.RGBA
	c.A = 0xff
	for i, p := range []*uint8{&c.R, &c.G, &c.B} {
		var v uint8
		for _, ch := range h[1+2*i : 3+2*i] {
			v <<= 4
			switch {
			case ch >= '0' && ch <= '9':
				v |= uint8(ch - '0')
			default:
				v |= uint8(ch-'a') + 10
			}
		}
		*p = v
	}
	return c
}

func rgbaAt(img image.Image, x, y int) color.RGBA {
	r, g, b, a := img.At(x, y).RGBA()
	return color.RGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8), A: uint8(a >> 8)}
}

func TestTiersAndLabels(t *testing.T) {
	Convey("Given bar positions", t, func() {
		Convey("Then tiers should follow position", func() {
			So(TierFor(0), ShouldEqual, TierGold)
			So(TierFor(1), ShouldEqual, TierSilver)
			So(TierFor(2), ShouldEqual, TierBronze)
			So(TierFor(3), ShouldEqual, TierOther)
			So(TierFor(9), ShouldEqual, TierOther)
			So(TierFor(-1), ShouldEqual, TierOther)
			So(TierGold.Color(), ShouldEqual, "#ffd700")
			So(TierSilver.Color(), ShouldEqual, "#c0c0c0")
			So(TierBronze.Color(), ShouldEqual, "#cd7f32")
			So(TierOther.Color(), ShouldEqual, "#58a6ff")
			So(TierBronze.String(), ShouldEqual, "bronze")
		})

		Convey("Then ordinals should special-case only the podium", func() {
			So(Ordinal(0), ShouldEqual, "1st")
			So(Ordinal(1), ShouldEqual, "2nd")
			So(Ordinal(2), ShouldEqual, "3rd")
			So(Ordinal(3), ShouldEqual, "4th")
			So(Ordinal(10), ShouldEqual, "11th")
			So(Ordinal(20), ShouldEqual, "21th")
		})
	})

	Convey("Given labels of various lengths", t, func() {
		Convey("Then a 20 character label should keep 13 characters plus two dots", func() {
			got := TruncateLabel("abcdefghijklmnopqrst")
			So(got, ShouldEqual, "abcdefghijklm..")
			So([]rune(got), ShouldHaveLength, 15)
		})

		Convey("Then labels up to 15 characters should be untouched", func() {
			So(TruncateLabel("abcdefghijklmno"), ShouldEqual, "abcdefghijklmno")
			So(TruncateLabel(""), ShouldEqual, "")
		})

		Convey("Then multi-byte labels should be cut on characters", func() {
			got := TruncateLabel(strings.Repeat("あ", 16))
			So(got, ShouldEqual, strings.Repeat("あ", 13)+"..")
		})
	})

	Convey("Given counts", t, func() {
		So(FormatCount(7), ShouldEqual, "7")
		So(FormatCount(1234567), ShouldEqual, "1,234,567")
	})
}

func TestBarGeometry(t *testing.T) {
	Convey("Given different bar counts", t, func() {
		Convey("Then widths should be clamped to [60, 120]", func() {
			So(barWidth(1), ShouldEqual, 120)
			So(barWidth(10), ShouldEqual, 110)
			So(barWidth(40), ShouldEqual, 60)
		})

		Convey("Then the tallest bar should be 400px with its bottom 60px above the band", func() {
			x, y, h := barRect(0, 5, 5, 120)
			So(x, ShouldEqual, 60)
			So(h, ShouldEqual, 400)
			So(y+h, ShouldEqual, 540)
		})

		Convey("Then shorter bars should scale linearly and step by width plus gap", func() {
			x, y, h := barRect(2, 3, 5, 120)
			So(x, ShouldEqual, 60+2*140)
			So(h, ShouldEqual, 240)
			So(y, ShouldEqual, 300)
		})
	})
}

func TestRenderBarChart(t *testing.T) {
	Convey("Given a renderer and the ranking u1=5, u2=5, u3=3", t, func() {
		r := newRenderer(t)
		chart := BarChart{
			Title: "Total Ranking",
			Bars: []Bar{
				{Label: "u1", Value: 5},
				{Label: "u2", Value: 5},
				{Label: "u3", Value: 3},
			},
			Participants: 3,
		}

		Convey("When rendered", func() {
			data, err := r.RenderBarChart(chart)
			So(err, ShouldBeNil)
			img := decode(t, data)

			Convey("Then the image should be 1400x680", func() {
				So(img.Bounds().Dx(), ShouldEqual, 1400)
				So(img.Bounds().Dy(), ShouldEqual, 680)
			})

			Convey("Then equal counts should still get gold then silver", func() {
				So(rgbaAt(img, 120, 530), ShouldResemble, hexRGB(ColorGold))
				So(rgbaAt(img, 260, 530), ShouldResemble, hexRGB(ColorSilver))
				So(rgbaAt(img, 400, 530), ShouldResemble, hexRGB(ColorBronze))
			})

			Convey("Then the background should be the dark theme", func() {
				So(rgbaAt(img, 2, 2), ShouldResemble, hexRGB(ColorBackground))
				So(rgbaAt(img, 1390, 300), ShouldResemble, hexRGB(ColorBackground))
			})

			Convey("Then rendering again should give identical bytes", func() {
				again, err := r.RenderBarChart(chart)
				So(err, ShouldBeNil)
				So(bytes.Equal(data, again), ShouldBeTrue)
			})
		})

		Convey("When more than ten bars are given", func() {
			for i := 0; i < 9; i++ {
				chart.Bars = append(chart.Bars, Bar{Label: "x", Value: 1})
			}
			data, err := r.RenderBarChart(chart)
			So(err, ShouldBeNil)
			img := decode(t, data)

			Convey("Then the eleventh slot should stay empty", func() {
				x, _, _ := barRect(10, 1, 5, barWidth(10))
				So(rgbaAt(img, int(x)+5, 535), ShouldResemble, hexRGB(ColorBackground))
			})

			Convey("Then the tenth bar should use the other tier", func() {
				x, _, _ := barRect(9, 1, 5, barWidth(10))
				So(rgbaAt(img, int(x+barWidth(10)/2), 535), ShouldResemble, hexRGB(ColorOther))
			})
		})
	})

	Convey("Given invalid charts", t, func() {
		r := newRenderer(t)

		Convey("Then no bars should fail with ErrNoBars", func() {
			_, err := r.RenderBarChart(BarChart{Title: "x"})
			So(errors.Is(err, ErrNoBars), ShouldBeTrue)
		})

		Convey("Then all-zero bars should fail with ErrZeroMax", func() {
			_, err := r.RenderBarChart(BarChart{Bars: []Bar{{Label: "a"}, {Label: "b"}}})
			So(errors.Is(err, ErrZeroMax), ShouldBeTrue)
		})
	})
}

func TestRenderCalendar(t *testing.T) {
	Convey("Given a calendar ending on a Wednesday", t, func() {
		r := newRenderer(t)
		end := time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC)
		cal := Calendar{
			Title: "u1",
			Days:  map[string]int{"2024-03-06": 4, "2024-03-04": 1, "2020-01-01": 99},
			End:   end,
		}

		Convey("Then the grid should start on a Sunday 52 weeks earlier", func() {
			first := calendarStart(end)
			So(first.Weekday(), ShouldEqual, time.Sunday)
			So(first.Format(model.DateLayout), ShouldEqual, "2023-03-05")
		})

		Convey("Then levels should scale with the in-range maximum", func() {
			So(level(0, 4), ShouldEqual, 0)
			So(level(1, 4), ShouldEqual, 1)
			So(level(4, 4), ShouldEqual, 4)
			So(level(3, 0), ShouldEqual, 0)
		})

		Convey("When rendered", func() {
			data, err := r.RenderCalendar(cal)
			So(err, ShouldBeNil)
			img := decode(t, data)

			Convey("Then the image should have the calendar dimensions", func() {
				So(img.Bounds().Dx(), ShouldEqual, CalendarWidth)
				So(img.Bounds().Dy(), ShouldEqual, CalendarHeight)
			})

			Convey("Then the end day should use the busiest colour and out-of-range days be ignored", func() {
				x, y := cellOrigin(calendarWeeks-1, int(time.Wednesday))
				So(rgbaAt(img, int(x)+9, int(y)+9), ShouldResemble, hexRGB(calendarLevels[4]))
			})

			Convey("Then an empty day should use the empty colour", func() {
				x, y := cellOrigin(calendarWeeks-1, int(time.Tuesday))
				So(rgbaAt(img, int(x)+9, int(y)+9), ShouldResemble, hexRGB(calendarLevels[0]))
			})

			Convey("Then rendering again should give identical bytes", func() {
				again, err := r.RenderCalendar(cal)
				So(err, ShouldBeNil)
				So(bytes.Equal(data, again), ShouldBeTrue)
			})
		})

		Convey("When the days come from bucketed events", func() {
			events := []model.Event{
				model.NewEvent(time.Date(2024, 3, 5, 16, 0, 0, 0, time.UTC)),
				model.NewEvent(time.Date(2024, 3, 5, 17, 0, 0, 0, time.UTC)),
			}
			data, err := r.RenderCalendar(Calendar{Title: "u1", Days: contribution.BucketByDay(events, 540), End: end})
			So(err, ShouldBeNil)
			img := decode(t, data)

			Convey("Then the bucket keys should land on their calendar cell", func() {
				x, y := cellOrigin(calendarWeeks-1, int(time.Wednesday))
				So(rgbaAt(img, int(x)+9, int(y)+9), ShouldResemble, hexRGB(calendarLevels[4]))
			})
		})

		Convey("When the mapping is empty", func() {
			_, err := r.RenderCalendar(Calendar{Title: "nobody", End: end})

			Convey("Then an empty grid should still render", func() {
				So(err, ShouldBeNil)
			})
		})
	})
}
