package geometry

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

const epsilon = 1e-9

// orientation returns the sign of the turn a→b→c: >0 counter-clockwise, <0 clockwise, 0 collinear.
func orientation(a, b, c r2.Vec) float64 {
	v := r2.Cross(r2.Sub(b, a), r2.Sub(c, a))
	if math.Abs(v) < epsilon {
		return 0
	}
	return v
}

// onSegment reports whether collinear point c lies within the extent of a-b.
func onSegment(a, b, c r2.Vec) bool {
	return math.Min(a.X, b.X)-epsilon <= c.X && c.X <= math.Max(a.X, b.X)+epsilon &&
		math.Min(a.Y, b.Y)-epsilon <= c.Y && c.Y <= math.Max(a.Y, b.Y)+epsilon
}

// SegmentsIntersect reports whether segment p1-p2 crosses or touches q1-q2.
func SegmentsIntersect(p1, p2, q1, q2 Point) bool {
	a, b, c, d := p1.vec(), p2.vec(), q1.vec(), q2.vec()

	o1 := orientation(a, b, c)
	o2 := orientation(a, b, d)
	o3 := orientation(c, d, a)
	o4 := orientation(c, d, b)

	if o1*o2 < 0 && o3*o4 < 0 {
		return true
	}

	switch {
	case o1 == 0 && onSegment(a, b, c):
		return true
	case o2 == 0 && onSegment(a, b, d):
		return true
	case o3 == 0 && onSegment(c, d, a):
		return true
	case o4 == 0 && onSegment(c, d, b):
		return true
	}
	return false
}

// PointSegmentDistance returns the shortest distance from p to segment a-b.
func PointSegmentDistance(p, a, b Point) float64 {
	pv, av, bv := p.vec(), a.vec(), b.vec()
	d := r2.Sub(bv, av)
	len2 := r2.Dot(d, d)
	if len2 < epsilon {
		return r2.Norm(r2.Sub(pv, av))
	}
	t := r2.Dot(r2.Sub(pv, av), d) / len2
	t = math.Max(0, math.Min(1, t))
	proj := r2.Add(av, r2.Scale(t, d))
	return r2.Norm(r2.Sub(pv, proj))
}

// SegmentDistance returns the shortest distance between segments p1-p2 and q1-q2.
func SegmentDistance(p1, p2, q1, q2 Point) float64 {
	if SegmentsIntersect(p1, p2, q1, q2) {
		return 0
	}
	return math.Min(
		math.Min(PointSegmentDistance(p1, q1, q2), PointSegmentDistance(p2, q1, q2)),
		math.Min(PointSegmentDistance(q1, p1, p2), PointSegmentDistance(q2, p1, p2)),
	)
}

// PolylinesWithin reports whether any part of polyline a comes within tol of polyline b.
// A single-point polyline is treated as a dot. Bounding boxes are compared first.
func PolylinesWithin(a, b []Point, tol float64) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	if !BoundingBox(a).Inflate(tol).Overlaps(BoundingBox(b)) {
		return false
	}

	segA := segments(a)
	segB := segments(b)
	for _, sa := range segA {
		boxA := BoundingBox(sa[:]).Inflate(tol)
		for _, sb := range segB {
			if !boxA.Overlaps(BoundingBox(sb[:])) {
				continue
			}
			if SegmentDistance(sa[0], sa[1], sb[0], sb[1]) <= tol {
				return true
			}
		}
	}
	return false
}

func segments(points []Point) [][2]Point {
	if len(points) == 1 {
		return [][2]Point{{points[0], points[0]}}
	}
	out := make([][2]Point, 0, len(points)-1)
	for i := 1; i < len(points); i++ {
		out = append(out, [2]Point{points[i-1], points[i]})
	}
	return out
}
