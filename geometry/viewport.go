package geometry

import "math"

const (
	MinZoom = 0.1
	MaxZoom = 20
)

// Viewport is the pan/zoom transform between canvas space and screen space:
// screen = canvas*Zoom + (PanX, PanY).
type Viewport struct {
	Zoom float64 `json:"zoom"`
	PanX float64 `json:"panX"`
	PanY float64 `json:"panY"`
}

// Identity returns the viewport with no pan and unit zoom.
func Identity() Viewport {
	return Viewport{Zoom: 1}
}

func (v Viewport) zoom() float64 {
	z := Finite(v.Zoom)
	if z <= 0 {
		return 1
	}
	return z
}

// ToScreen maps a canvas point to screen space.
func (v Viewport) ToScreen(p Point) Point {
	z := v.zoom()
	return Point{X: p.X*z + Finite(v.PanX), Y: p.Y*z + Finite(v.PanY)}.Sanitized()
}

// ToCanvas maps a screen point back to canvas space.
func (v Viewport) ToCanvas(p Point) Point {
	z := v.zoom()
	return Point{X: (p.X - Finite(v.PanX)) / z, Y: (p.Y - Finite(v.PanY)) / z}.Sanitized()
}

// ZoomAt scales the viewport by factor, keeping the canvas point under the
// screen anchor fixed. The resulting zoom is clamped to [MinZoom, MaxZoom].
func (v Viewport) ZoomAt(factor float64, anchor Point) Viewport {
	factor = Finite(factor)
	if factor <= 0 {
		return v
	}
	before := v.ToCanvas(anchor)
	z := math.Max(MinZoom, math.Min(MaxZoom, v.zoom()*factor))
	out := Viewport{Zoom: z}
	out.PanX = anchor.X - before.X*z
	out.PanY = anchor.Y - before.Y*z
	return out
}

// Panned returns the viewport shifted by (dx, dy) screen pixels.
func (v Viewport) Panned(dx, dy float64) Viewport {
	v.Zoom = v.zoom()
	v.PanX = Finite(v.PanX) + Finite(dx)
	v.PanY = Finite(v.PanY) + Finite(dy)
	return v
}
