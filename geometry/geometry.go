// Package geometry provides the 2D primitives used by the drawing engine:
// points, axis-aligned boxes, the viewport transform and polyline proximity tests.
package geometry

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// Point is a 2D point with floating-point coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Pt is shorthand for Point{X: x, Y: y}.
func Pt(x, y float64) Point {
	return Point{X: x, Y: y}
}

func (p Point) vec() r2.Vec {
	return r2.Vec{X: p.X, Y: p.Y}
}

// Add returns p translated by q.
func (p Point) Add(q Point) Point {
	return Point{X: p.X + q.X, Y: p.Y + q.Y}
}

// Mid returns the midpoint between p and q.
func (p Point) Mid(q Point) Point {
	return Point{X: (p.X + q.X) / 2, Y: (p.Y + q.Y) / 2}
}

// Sanitized returns p with non-finite components replaced by 0.
func (p Point) Sanitized() Point {
	return Point{X: Finite(p.X), Y: Finite(p.Y)}
}

// Finite coerces NaN and ±Inf to 0 so upstream bugs never reach the surface.
func Finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// Box is an axis-aligned bounding box. The zero value is empty.
type Box struct {
	Min, Max Point
	valid    bool
}

// BoundingBox returns the smallest box containing all points.
func BoundingBox(points []Point) Box {
	var b Box
	for _, p := range points {
		b = b.Extend(p)
	}
	return b
}

// Empty reports whether the box contains no points.
func (b Box) Empty() bool {
	return !b.valid
}

// Extend returns the box grown to include p.
func (b Box) Extend(p Point) Box {
	if !b.valid {
		return Box{Min: p, Max: p, valid: true}
	}
	b.Min.X = math.Min(b.Min.X, p.X)
	b.Min.Y = math.Min(b.Min.Y, p.Y)
	b.Max.X = math.Max(b.Max.X, p.X)
	b.Max.Y = math.Max(b.Max.Y, p.Y)
	return b
}

// Inflate returns the box grown by d on every side.
func (b Box) Inflate(d float64) Box {
	if !b.valid {
		return b
	}
	b.Min.X -= d
	b.Min.Y -= d
	b.Max.X += d
	b.Max.Y += d
	return b
}

// Overlaps reports whether two boxes share any point, edges included.
func (b Box) Overlaps(o Box) bool {
	if !b.valid || !o.valid {
		return false
	}
	return b.Min.X <= o.Max.X && b.Max.X >= o.Min.X &&
		b.Min.Y <= o.Max.Y && b.Max.Y >= o.Min.Y
}
