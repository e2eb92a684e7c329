// Package geometry holds the pixel-space types shared by the video host, the
// inference engine and the overlay canvas.
package geometry

import (
	"fmt"
	"image"
	"math"
)

// Size is a width/height pair in pixels.
type Size struct {
	Width  int
	Height int
}

// Empty reports whether either dimension is not positive.
func (s Size) Empty() bool {
	return s.Width <= 0 || s.Height <= 0
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// SizeOf returns the size of an image rectangle.
func SizeOf(r image.Rectangle) Size {
	return Size{Width: r.Dx(), Height: r.Dy()}
}

// Box is an axis aligned rectangle expressed in the pixel space of whatever
// produced it (engine working resolution, canvas backing resolution, ...).
type Box struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// Right returns the x coordinate of the right edge.
func (b Box) Right() float64 { return b.X + b.Width }

// Bottom returns the y coordinate of the bottom edge.
func (b Box) Bottom() float64 { return b.Y + b.Height }

// Scale multiplies the box independently along each axis.
func (b Box) Scale(sx, sy float64) Box {
	return Box{
		X:      b.X * sx,
		Y:      b.Y * sy,
		Width:  b.Width * sx,
		Height: b.Height * sy,
	}
}

// Rect rounds the box to the nearest integral rectangle.
func (b Box) Rect() image.Rectangle {
	return image.Rect(
		int(math.Round(b.X)),
		int(math.Round(b.Y)),
		int(math.Round(b.Right())),
		int(math.Round(b.Bottom())),
	).Canon()
}

func (b Box) String() string {
	return fmt.Sprintf("(%.1f, %.1f) %.1fx%.1f", b.X, b.Y, b.Width, b.Height)
}

// Rescale maps a box from the from pixel space into the to pixel space.
// Each axis is scaled on its own so a stretched display keeps boxes aligned
// with the stretched picture. An empty from size leaves the box untouched.
func Rescale(b Box, from, to Size) Box {
	if from.Empty() || to.Empty() {
		return b
	}
	if from == to {
		return b
	}
	sx := float64(to.Width) / float64(from.Width)
	sy := float64(to.Height) / float64(from.Height)
	return b.Scale(sx, sy)
}
