package overlay

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"
	"sync"
)

// LabelStyle controls the name tag drawn under each detection.
type LabelStyle struct {
	FontScale  float64
	Padding    int
	Background color.RGBA
	FontColor  color.RGBA
}

// Style is the full appearance of one drawn detection.
type Style struct {
	Color     color.RGBA
	LineWidth int
	Label     LabelStyle
}

// DefaultStyle is a red 2px box with white text on a translucent black label.
func DefaultStyle() Style {
	return Style{
		Color:     color.RGBA{R: 0xFF, A: 0xFF},
		LineWidth: 2,
		Label: LabelStyle{
			FontScale:  0.8,
			Padding:    10,
			Background: color.RGBA{A: 178},
			FontColor:  color.RGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF},
		},
	}
}

var namedColors = map[string]color.RGBA{
	"red":    {R: 0xFF, A: 0xFF},
	"green":  {G: 0x80, A: 0xFF},
	"lime":   {G: 0xFF, A: 0xFF},
	"blue":   {B: 0xFF, A: 0xFF},
	"white":  {R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF},
	"black":  {A: 0xFF},
	"yellow": {R: 0xFF, G: 0xFF, A: 0xFF},
}

// ParseColor accepts #rgb, #rrggbb, #rrggbbaa, rgb(r, g, b), rgba(r, g, b, a)
// with a in [0,1], and a few color names.
func ParseColor(s string) (color.RGBA, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if c, ok := namedColors[s]; ok {
		return c, nil
	}
	switch {
	case strings.HasPrefix(s, "#"):
		return parseHex(s[1:])
	case strings.HasPrefix(s, "rgba(") && strings.HasSuffix(s, ")"):
		return parseFunc(s[5:len(s)-1], true)
	case strings.HasPrefix(s, "rgb(") && strings.HasSuffix(s, ")"):
		return parseFunc(s[4:len(s)-1], false)
	}
	return color.RGBA{}, fmt.Errorf("unrecognized color %q", s)
}

// FormatColor renders c as #rrggbb, or #rrggbbaa when not opaque.
func FormatColor(c color.RGBA) string {
	if c.A == 0xFF {
		return fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)
	}
	return fmt.Sprintf("#%02X%02X%02X%02X", c.R, c.G, c.B, c.A)
}

func parseHex(h string) (color.RGBA, error) {
	if len(h) == 3 {
		h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]})
	}
	if len(h) == 6 {
		h += "ff"
	}
	if len(h) != 8 {
		return color.RGBA{}, fmt.Errorf("bad hex color length %q", h)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("bad hex color %q: %w", h, err)
	}
	return color.RGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}

func parseFunc(args string, alpha bool) (color.RGBA, error) {
	parts := strings.Split(args, ",")
	want := 3
	if alpha {
		want = 4
	}
	if len(parts) != want {
		return color.RGBA{}, fmt.Errorf("expected %d color components, got %d", want, len(parts))
	}
	var ch [3]uint8
	for i := 0; i < 3; i++ {
		n, err := strconv.Atoi(strings.TrimSpace(parts[i]))
		if err != nil || n < 0 || n > 255 {
			return color.RGBA{}, fmt.Errorf("bad color component %q", parts[i])
		}
		ch[i] = uint8(n)
	}
	c := color.RGBA{R: ch[0], G: ch[1], B: ch[2], A: 0xFF}
	if alpha {
		a, err := strconv.ParseFloat(strings.TrimSpace(parts[3]), 64)
		if err != nil || a < 0 || a > 1 {
			return color.RGBA{}, fmt.Errorf("bad alpha %q", parts[3])
		}
		c.A = uint8(a*255 + 0.5)
	}
	return c, nil
}

// Appearance is the shared, mutable drawing configuration. Controllers read
// it on every draw so a color change affects only subsequent frames.
type Appearance struct {
	mu    sync.RWMutex
	style Style
}

// NewAppearance returns an Appearance starting at s.
func NewAppearance(s Style) *Appearance {
	return &Appearance{style: s}
}

// Style returns a copy of the current style.
func (a *Appearance) Style() Style {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.style
}

// SetColor replaces the box color.
func (a *Appearance) SetColor(c color.RGBA) {
	a.mu.Lock()
	a.style.Color = c
	a.mu.Unlock()
}
