package http

import (
	"math"
	"strconv"
	"strings"

	"moneynotes/internal/core"
	"moneynotes/internal/screen"
)

// Pie geometry in SVG user units
const (
	pieSize   = 200.0
	pieRadius = 90.0
)

// pieSegment is one drawable slice. Circle is set when the slice covers the
// whole pie, which an SVG arc cannot draw.
type pieSegment struct {
	Path   string
	Circle bool
	Color  string
	Title  string
}

// pieChart holds what the chart template needs.
type pieChart struct {
	Size     float64
	Center   float64
	Radius   float64
	Segments []pieSegment
}

func buildPie(cv screen.ChartView) pieChart {
	c := pieChart{Size: pieSize, Center: pieSize / 2, Radius: pieRadius}
	if cv.NoData {
		return c
	}
	for _, s := range cv.Breakdown.Slices {
		seg := pieSegment{Color: s.Color, Title: s.Legend()}
		if s.SweepAngle >= 359.999 {
			seg.Circle = true
		} else {
			seg.Path = arcPath(c.Center, c.Center, c.Radius, s.StartAngle, s.SweepAngle)
		}
		c.Segments = append(c.Segments, seg)
	}
	return c
}

// arcPath draws a wedge from the center, sweeping clockwise from start.
// Angles are in degrees with 0 at 3 o'clock.
func arcPath(cx, cy, r, start, sweep float64) string {
	x1, y1 := polar(cx, cy, r, start)
	x2, y2 := polar(cx, cy, r, start+sweep)
	large := "0"
	if sweep > 180 {
		large = "1"
	}
	var b strings.Builder
	b.WriteString("M ")
	b.WriteString(num(cx) + " " + num(cy))
	b.WriteString(" L ")
	b.WriteString(num(x1) + " " + num(y1))
	b.WriteString(" A ")
	b.WriteString(num(r) + " " + num(r) + " 0 " + large + " 1 ")
	b.WriteString(num(x2) + " " + num(y2))
	b.WriteString(" Z")
	return b.String()
}

func polar(cx, cy, r, deg float64) (float64, float64) {
	rad := deg * math.Pi / 180
	return cx + r*math.Cos(rad), cy + r*math.Sin(rad)
}

func num(f float64) string {
	f = math.Round(f*100) / 100
	if f == 0 {
		f = 0 // drops the sign of -0
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func rupiah(m core.Money) string {
	return core.FormatRupiah(m)
}
