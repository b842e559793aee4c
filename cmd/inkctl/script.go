package main

import (
	"errors"
	"fmt"
	"os"

	"inkboard/drawing"
	"inkboard/engine"

	"gopkg.in/yaml.v3"
)

type (
	// Script is a recorded editing session. JSON is valid YAML, so both load.
	Script struct {
		Width  float64 `yaml:"width"`
		Height float64 `yaml:"height"`
		Steps  []Step  `yaml:"steps"`
	}

	// Step is one editing action. Exactly one field must be set.
	Step struct {
		Tool          string      `yaml:"tool,omitempty"`
		Brush         *BrushStep  `yaml:"brush,omitempty"`
		Stroke        [][]float64 `yaml:"stroke,omitempty"`
		Undo          int         `yaml:"undo,omitempty"`
		Redo          int         `yaml:"redo,omitempty"`
		Clear         bool        `yaml:"clear,omitempty"`
		Delete        bool        `yaml:"delete,omitempty"`
		Move          []float64   `yaml:"move,omitempty"`
		Resize        []float64   `yaml:"resize,omitempty"`
		Zoom          *ZoomStep   `yaml:"zoom,omitempty"`
		Pan           []float64   `yaml:"pan,omitempty"`
		ResetViewport bool        `yaml:"reset_viewport,omitempty"`
		Flush         bool        `yaml:"flush,omitempty"`
	}

	BrushStep struct {
		Color  string  `yaml:"color"`
		Width  float64 `yaml:"width"`
		Line   string  `yaml:"line"`
		Eraser float64 `yaml:"eraser"`
	}

	ZoomStep struct {
		Factor float64 `yaml:"factor"`
		X      float64 `yaml:"x"`
		Y      float64 `yaml:"y"`
	}
)

// LoadScript reads and validates a script file.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	return ParseScript(data)
}

// ParseScript decodes a YAML or JSON script and validates every step.
func ParseScript(data []byte) (*Script, error) {
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse script: %w", err)
	}
	if s.Width < 0 || s.Height < 0 {
		return nil, errors.New("script size must not be negative")
	}
	for i, step := range s.Steps {
		if err := step.validate(); err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	return &s, nil
}

func (s Step) ops() int {
	n := 0
	for _, set := range []bool{
		s.Tool != "", s.Brush != nil, len(s.Stroke) > 0, s.Undo > 0, s.Redo > 0,
		s.Clear, s.Delete, s.Move != nil, s.Resize != nil, s.Zoom != nil,
		s.Pan != nil, s.ResetViewport, s.Flush,
	} {
		if set {
			n++
		}
	}
	return n
}

func (s Step) validate() error {
	switch s.ops() {
	case 0:
		return errors.New("empty step")
	case 1:
	default:
		return errors.New("a step holds exactly one action")
	}
	if s.Tool != "" {
		if _, err := engine.ParseTool(s.Tool); err != nil {
			return err
		}
	}
	if s.Brush != nil {
		if _, err := s.Brush.brush(); err != nil {
			return err
		}
	}
	for _, p := range s.Stroke {
		if len(p) != 2 {
			return fmt.Errorf("stroke point %v is not an [x, y] pair", p)
		}
	}
	for name, v := range map[string][]float64{"move": s.Move, "resize": s.Resize, "pan": s.Pan} {
		if v != nil && len(v) != 2 {
			return fmt.Errorf("%s takes two numbers, got %d", name, len(v))
		}
	}
	if s.Zoom != nil && !(s.Zoom.Factor > 0) {
		return errors.New("zoom factor must be positive")
	}
	return nil
}

func (b BrushStep) brush() (engine.Brush, error) {
	out := engine.Brush{Width: b.Width, EraserWidth: b.Eraser}
	if b.Color != "" {
		c, err := drawing.ParseColor(b.Color)
		if err != nil {
			return out, err
		}
		out.Color = &c
	}
	switch drawing.LineStyle(b.Line) {
	case "", drawing.LineSolid, drawing.LineDashed:
		out.Line = drawing.LineStyle(b.Line)
	default:
		return out, fmt.Errorf("unknown line style %q", b.Line)
	}
	return out, nil
}

// Apply runs the step against surf. It must run on the surface's scheduler.
// A stroke is a full pointer drag; its commit follows as a separate task.
func (s Step) Apply(surf *engine.Surface) {
	switch {
	case s.Tool != "":
		t, _ := engine.ParseTool(s.Tool)
		surf.SetTool(t)
	case s.Brush != nil:
		b, _ := s.Brush.brush()
		surf.SetBrush(b)
	case len(s.Stroke) > 0:
		first, last := s.Stroke[0], s.Stroke[len(s.Stroke)-1]
		surf.PointerDown(first[0], first[1])
		for _, p := range s.Stroke[1:] {
			surf.PointerMove(p[0], p[1])
		}
		surf.PointerUp(last[0], last[1])
	case s.Undo > 0:
		for range s.Undo {
			surf.Undo()
		}
	case s.Redo > 0:
		for range s.Redo {
			surf.Redo()
		}
	case s.Clear:
		surf.Clear()
	case s.Delete:
		surf.DeleteSelected()
	case s.Move != nil:
		surf.MoveSelected(s.Move[0], s.Move[1])
	case s.Resize != nil:
		surf.Resize(s.Resize[0], s.Resize[1])
	case s.Zoom != nil:
		surf.Zoom(s.Zoom.Factor, s.Zoom.X, s.Zoom.Y)
	case s.Pan != nil:
		surf.Pan(s.Pan[0], s.Pan[1])
	case s.ResetViewport:
		surf.ResetViewport()
	case s.Flush:
		surf.Flush()
	}
}
