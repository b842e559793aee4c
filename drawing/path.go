package drawing

import (
	"bytes"
	"encoding/json"
	"fmt"

	"inkboard/geometry"

	"github.com/oklog/ulid/v2"
)

// Path commands. Their coordinate counts are fixed; unknown commands are rejected.
const (
	CmdMove  = "M"
	CmdLine  = "L"
	CmdQuad  = "Q"
	CmdCubic = "C"
	CmdClose = "Z"
)

var coordCount = map[string]int{
	CmdMove:  2,
	CmdLine:  2,
	CmdQuad:  4,
	CmdCubic: 6,
	CmdClose: 0,
}

// curveSteps is the number of line pieces a curve is flattened into for hit-testing.
const curveSteps = 8

// Segment is one command of a path followed by its x,y coordinate pairs.
// It serializes as a mixed JSON array, e.g. ["Q", 10, 10, 15, 15].
type Segment struct {
	Cmd    string
	Coords []float64
}

func (s Segment) MarshalJSON() ([]byte, error) {
	out := make([]any, 0, len(s.Coords)+1)
	out = append(out, s.Cmd)
	for _, c := range s.Coords {
		out = append(out, geometry.Finite(c))
	}
	return json.Marshal(out)
}

func (s *Segment) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("path segment must be an array: %w", err)
	}
	if len(raw) == 0 {
		return fmt.Errorf("empty path segment")
	}

	var cmd string
	if err := json.Unmarshal(raw[0], &cmd); err != nil {
		return fmt.Errorf("path segment must start with a command: %w", err)
	}
	want, ok := coordCount[cmd]
	if !ok {
		return fmt.Errorf("unknown path command %q", cmd)
	}
	if len(raw)-1 != want {
		return fmt.Errorf("command %s expects %d coordinates, got %d", cmd, want, len(raw)-1)
	}

	coords := make([]float64, 0, want)
	for _, r := range raw[1:] {
		var v float64
		if err := json.Unmarshal(r, &v); err != nil {
			return fmt.Errorf("invalid coordinate %s: %w", bytes.TrimSpace(r), err)
		}
		coords = append(coords, v)
	}
	s.Cmd = cmd
	s.Coords = coords
	return nil
}

// Points returns the segment's coordinates as points.
func (s Segment) Points() []geometry.Point {
	pts := make([]geometry.Point, 0, len(s.Coords)/2)
	for i := 0; i+1 < len(s.Coords); i += 2 {
		pts = append(pts, geometry.Pt(geometry.Finite(s.Coords[i]), geometry.Finite(s.Coords[i+1])))
	}
	return pts
}

func (s Segment) clone() Segment {
	return Segment{Cmd: s.Cmd, Coords: append([]float64(nil), s.Coords...)}
}

// Path is a single freehand stroke or erase path.
type Path struct {
	ID       string    `json:"id"`
	Segments []Segment `json:"path"`
	Left     float64   `json:"left"`
	Top      float64   `json:"top"`
	Style
	Selectable bool `json:"selectable"`
}

// NewID returns a new unique path identifier.
func NewID() string {
	return ulid.Make().String()
}

// Origin returns the path's top-left anchor.
func (p Path) Origin() geometry.Point {
	return geometry.Pt(geometry.Finite(p.Left), geometry.Finite(p.Top))
}

// Clone returns a deep copy of p.
func (p Path) Clone() Path {
	out := p
	out.Segments = make([]Segment, len(p.Segments))
	for i, s := range p.Segments {
		out.Segments[i] = s.clone()
	}
	out.Dash = append([]float64(nil), p.Dash...)
	return out
}

// Translate returns a copy of p moved by (dx, dy).
func (p Path) Translate(dx, dy float64) Path {
	out := p.Clone()
	for _, s := range out.Segments {
		for i := range s.Coords {
			if i%2 == 0 {
				s.Coords[i] += dx
			} else {
				s.Coords[i] += dy
			}
		}
	}
	out.Left += dx
	out.Top += dy
	return out
}

// HitTestable reports whether the select tool may pick the path.
func (p Path) HitTestable() bool {
	return p.Composite != CompositeErase && p.Selectable
}

// Polyline flattens the path into line pieces for intersection tests.
func (p Path) Polyline() []geometry.Point {
	var (
		out     []geometry.Point
		current geometry.Point
		start   geometry.Point
	)
	for _, s := range p.Segments {
		pts := s.Points()
		switch s.Cmd {
		case CmdMove:
			current, start = pts[0], pts[0]
			out = append(out, current)
		case CmdLine:
			current = pts[0]
			out = append(out, current)
		case CmdQuad:
			for i := 1; i <= curveSteps; i++ {
				out = append(out, quadAt(current, pts[0], pts[1], float64(i)/curveSteps))
			}
			current = pts[1]
		case CmdCubic:
			for i := 1; i <= curveSteps; i++ {
				out = append(out, cubicAt(current, pts[0], pts[1], pts[2], float64(i)/curveSteps))
			}
			current = pts[2]
		case CmdClose:
			current = start
			out = append(out, current)
		}
	}
	return out
}

// Bounds returns the bounding box of the flattened path.
func (p Path) Bounds() geometry.Box {
	return geometry.BoundingBox(p.Polyline())
}

func quadAt(p0, c, p1 geometry.Point, t float64) geometry.Point {
	u := 1 - t
	return geometry.Pt(
		u*u*p0.X+2*u*t*c.X+t*t*p1.X,
		u*u*p0.Y+2*u*t*c.Y+t*t*p1.Y,
	)
}

func cubicAt(p0, c1, c2, p1 geometry.Point, t float64) geometry.Point {
	u := 1 - t
	return geometry.Pt(
		u*u*u*p0.X+3*u*u*t*c1.X+3*u*t*t*c2.X+t*t*t*p1.X,
		u*u*u*p0.Y+3*u*u*t*c1.Y+3*u*t*t*c2.Y+t*t*t*p1.Y,
	)
}

// Validate checks that the path can be rendered and hit-tested.
func (p Path) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("path id is required")
	}
	if len(p.Segments) == 0 || p.Segments[0].Cmd != CmdMove {
		return fmt.Errorf("path %s must start with a move command", p.ID)
	}
	for _, s := range p.Segments {
		if want, ok := coordCount[s.Cmd]; !ok || len(s.Coords) != want {
			return fmt.Errorf("path %s has malformed %q segment", p.ID, s.Cmd)
		}
	}
	if err := p.Style.Validate(); err != nil {
		return fmt.Errorf("path %s: %w", p.ID, err)
	}
	return nil
}
