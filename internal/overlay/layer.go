// Package overlay implements the drawing surface placed over a video: a
// retained list of boxes and labels that a host composites onto each frame.
package overlay

import (
	"sync"

	"github.com/andresmejia3/faceoverlay/internal/geometry"
)

// Op is one recorded draw call.
type Op struct {
	Box   geometry.Box
	Label string
	Style Style
}

// Layer is a transparent canvas. All methods are safe for concurrent use.
type Layer struct {
	mu       sync.Mutex
	backing  geometry.Size
	display  geometry.Size
	ops      []Op
	removed  bool
	onRemove func()
}

// NewLayer creates a layer sized to size. onRemove, if set, runs once when
// the layer is removed.
func NewLayer(size geometry.Size, onRemove func()) *Layer {
	return &Layer{backing: size, display: size, onRemove: onRemove}
}

// Attached reports whether the layer is still part of the page.
func (l *Layer) Attached() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return !l.removed
}

// Resize sets both the backing and the display size.
func (l *Layer) Resize(size geometry.Size) {
	l.mu.Lock()
	l.backing = size
	l.display = size
	l.mu.Unlock()
}

func (l *Layer) BackingSize() geometry.Size {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.backing
}

func (l *Layer) DisplaySize() geometry.Size {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.display
}

// Clear drops every recorded draw call.
func (l *Layer) Clear() {
	l.mu.Lock()
	l.ops = l.ops[:0]
	l.mu.Unlock()
}

// DrawBox records a box with its label. Calls on a removed layer are ignored.
func (l *Layer) DrawBox(box geometry.Box, label string, style Style) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.removed {
		return
	}
	l.ops = append(l.ops, Op{Box: box, Label: label, Style: style})
}

// Snapshot returns a copy of the current display list together with the
// backing size the boxes are expressed in.
func (l *Layer) Snapshot() ([]Op, geometry.Size) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Op, len(l.ops))
	copy(out, l.ops)
	return out, l.backing
}

// Remove detaches the layer. It is idempotent.
func (l *Layer) Remove() {
	l.mu.Lock()
	if l.removed {
		l.mu.Unlock()
		return
	}
	l.removed = true
	l.ops = nil
	cb := l.onRemove
	l.mu.Unlock()

	if cb != nil {
		cb()
	}
}
