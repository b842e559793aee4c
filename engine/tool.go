package engine

import (
	"fmt"

	"inkboard/drawing"
	"inkboard/geometry"
)

// Tool selects how pointer input is interpreted.
type Tool string

const (
	ToolSelect Tool = "select"
	ToolDraw   Tool = "draw"
	ToolErase  Tool = "erase"
)

// ParseTool converts a toolbar name into a Tool.
func ParseTool(s string) (Tool, error) {
	switch t := Tool(s); t {
	case ToolSelect, ToolDraw, ToolErase:
		return t, nil
	}
	return "", fmt.Errorf("unknown tool %q", s)
}

// Brush is the toolbar state applied to new strokes.
type Brush struct {
	// Color is the stroke color. Nil selects black; any set color, fully
	// transparent included, is used as given.
	Color       *drawing.Color
	Width       float64
	Line        drawing.LineStyle
	EraserWidth float64
}

// DefaultBrush is a 2px solid black pen with a 20px eraser.
var DefaultBrush = Brush{Width: 2, Line: drawing.LineSolid, EraserWidth: 20}

// StrokeColor returns the color new strokes are drawn with.
func (b Brush) StrokeColor() drawing.Color {
	if b.Color == nil {
		return drawing.Black
	}
	return *b.Color
}

// selectSlop widens the select hit area beyond the stroke itself.
const selectSlop = 3

func (b Brush) withDefaults() Brush {
	if !(b.Width > 0) {
		b.Width = DefaultBrush.Width
	}
	if !(b.EraserWidth > 0) {
		b.EraserWidth = DefaultBrush.EraserWidth
	}
	if b.Line == "" {
		b.Line = drawing.LineSolid
	}
	c := b.StrokeColor()
	b.Color = &c
	return b
}

func (b Brush) penStyle() drawing.Style {
	return drawing.Style{
		Stroke:      b.StrokeColor(),
		StrokeWidth: b.Width,
		Dash:        b.Line.Dash(),
		Composite:   drawing.CompositeNormal,
	}
}

func (b Brush) eraserStyle() drawing.Style {
	return drawing.Style{
		Stroke:      drawing.White,
		StrokeWidth: b.EraserWidth,
		Composite:   drawing.CompositeErase,
	}
}

// gesture accumulates the canvas-space samples of one pointer drag.
type gesture struct {
	tool   Tool
	points []geometry.Point
}

// erasedBy returns the ids of normal paths the erase path touches. Strokes are
// considered touching when their centre lines come within half the sum of both
// widths.
func erasedBy(doc *drawing.Document, eraser drawing.Path) []string {
	line := eraser.Polyline()
	var ids []string
	for _, p := range doc.Paths() {
		if p.Composite != drawing.CompositeNormal {
			continue
		}
		tol := (eraser.StrokeWidth + p.StrokeWidth) / 2
		if geometry.PolylinesWithin(line, p.Polyline(), tol) {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

// hitBy returns the ids of selectable paths under the drag line.
func hitBy(doc *drawing.Document, line []geometry.Point, slop float64) []string {
	var ids []string
	for _, p := range doc.Paths() {
		if !p.HitTestable() {
			continue
		}
		if geometry.PolylinesWithin(line, p.Polyline(), p.StrokeWidth/2+slop) {
			ids = append(ids, p.ID)
		}
	}
	return ids
}
