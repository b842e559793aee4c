package drawing

import (
	"math"

	"inkboard/geometry"
)

// Smooth turns raw pointer samples into path segments. The curve passes through
// the midpoints between samples, using each sample as the quadratic control
// point, and ends with a straight line to the last sample.
func Smooth(points []geometry.Point) []Segment {
	if len(points) == 0 {
		return nil
	}
	pts := make([]geometry.Point, len(points))
	for i, p := range points {
		pts[i] = p.Sanitized()
	}

	first := pts[0]
	segs := []Segment{{Cmd: CmdMove, Coords: []float64{first.X, first.Y}}}
	if len(pts) == 1 {
		// a click leaves a dot
		return append(segs, Segment{Cmd: CmdLine, Coords: []float64{first.X, first.Y}})
	}

	for i := 1; i < len(pts)-1; i++ {
		mid := pts[i].Mid(pts[i+1])
		segs = append(segs, Segment{Cmd: CmdQuad, Coords: []float64{pts[i].X, pts[i].Y, mid.X, mid.Y}})
	}
	last := pts[len(pts)-1]
	return append(segs, Segment{Cmd: CmdLine, Coords: []float64{last.X, last.Y}})
}

// NewStroke builds a path from pointer samples. Its origin is the top-left of
// the control points. Erase paths are never selectable.
func NewStroke(points []geometry.Point, style Style) Path {
	segs := Smooth(points)
	p := Path{
		ID:         NewID(),
		Segments:   segs,
		Style:      style,
		Selectable: style.Composite != CompositeErase,
	}
	p.Dash = append([]float64(nil), style.Dash...)

	left, top := math.Inf(1), math.Inf(1)
	for _, s := range segs {
		for _, pt := range s.Points() {
			left = math.Min(left, pt.X)
			top = math.Min(top, pt.Y)
		}
	}
	p.Left = geometry.Finite(left)
	p.Top = geometry.Finite(top)
	return p
}
