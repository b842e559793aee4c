package drawing

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Composite selects how a path combines with what is underneath it.
type Composite string

const (
	// CompositeNormal paints over the background.
	CompositeNormal Composite = "normal"
	// CompositeErase removes the content it intersects.
	CompositeErase Composite = "erase"
)

// Valid reports whether c is a known composite mode.
func (c Composite) Valid() bool {
	return c == CompositeNormal || c == CompositeErase
}

// LineStyle is the toolbar's solid/dashed selector.
type LineStyle string

const (
	LineSolid  LineStyle = "solid"
	LineDashed LineStyle = "dashed"
)

// DashPattern is the fixed dash/gap lengths used for dashed strokes.
var DashPattern = []float64{10, 5}

// Dash returns the stroke dash array for the line style, nil for solid.
func (l LineStyle) Dash() []float64 {
	if l == LineDashed {
		return append([]float64(nil), DashPattern...)
	}
	return nil
}

// Color is an RGBA stroke color. A is the CSS alpha in [0, 1].
type Color struct {
	R, G, B uint8
	A       float64
}

var (
	Black = Color{A: 1}
	White = Color{R: 255, G: 255, B: 255, A: 1}
)

// ParseColor accepts #rgb, #rrggbb, #rrggbbaa, rgb(r,g,b) and rgba(r,g,b,a).
func ParseColor(s string) (Color, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	switch {
	case strings.HasPrefix(s, "#"):
		return parseHex(s[1:])
	case strings.HasPrefix(s, "rgba(") && strings.HasSuffix(s, ")"):
		return parseFunc(s[5:len(s)-1], true)
	case strings.HasPrefix(s, "rgb(") && strings.HasSuffix(s, ")"):
		return parseFunc(s[4:len(s)-1], false)
	}
	return Color{}, fmt.Errorf("unsupported color %q", s)
}

func parseHex(h string) (Color, error) {
	if len(h) == 3 {
		h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]})
	}
	if len(h) != 6 && len(h) != 8 {
		return Color{}, fmt.Errorf("invalid hex color #%s", h)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return Color{}, fmt.Errorf("invalid hex color #%s: %w", h, err)
	}
	if len(h) == 6 {
		return Color{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 1}, nil
	}
	return Color{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: float64(uint8(v)) / 255}, nil
}

func parseFunc(args string, withAlpha bool) (Color, error) {
	parts := strings.Split(args, ",")
	want := 3
	if withAlpha {
		want = 4
	}
	if len(parts) != want {
		return Color{}, fmt.Errorf("expected %d color components, got %d", want, len(parts))
	}

	var rgb [3]uint8
	for i := 0; i < 3; i++ {
		n, err := strconv.ParseUint(strings.TrimSpace(parts[i]), 10, 8)
		if err != nil {
			return Color{}, fmt.Errorf("invalid color component %q: %w", parts[i], err)
		}
		rgb[i] = uint8(n)
	}

	c := Color{R: rgb[0], G: rgb[1], B: rgb[2], A: 1}
	if withAlpha {
		a, err := strconv.ParseFloat(strings.TrimSpace(parts[3]), 64)
		if err != nil || a < 0 || a > 1 {
			return Color{}, fmt.Errorf("invalid alpha %q", parts[3])
		}
		c.A = a
	}
	return c, nil
}

// String renders the color as #rrggbb when opaque, rgba(...) otherwise.
func (c Color) String() string {
	if c.A >= 1 {
		return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
	}
	return fmt.Sprintf("rgba(%d,%d,%d,%s)", c.R, c.G, c.B, strconv.FormatFloat(c.A, 'g', -1, 64))
}

func (c Color) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *Color) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("color must be a string: %w", err)
	}
	parsed, err := ParseColor(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Style is the visual description of a path.
type Style struct {
	Stroke      Color     `json:"stroke"`
	StrokeWidth float64   `json:"strokeWidth"`
	Dash        []float64 `json:"strokeDashArray,omitempty"`
	Composite   Composite `json:"composite"`
}

// Validate checks the style's invariants.
func (s Style) Validate() error {
	if !(s.StrokeWidth > 0) {
		return fmt.Errorf("stroke width must be positive, got %v", s.StrokeWidth)
	}
	if !s.Composite.Valid() {
		return fmt.Errorf("unknown composite mode %q", s.Composite)
	}
	for _, d := range s.Dash {
		if d < 0 {
			return fmt.Errorf("negative dash length %v", d)
		}
	}
	return nil
}
