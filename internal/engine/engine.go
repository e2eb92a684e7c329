// Package engine is the face detection and recognition backend: it locates
// faces in a frame and computes one descriptor per face.
package engine

import (
	"context"
	"image"

	"github.com/andresmejia3/faceoverlay/internal/geometry"
	"github.com/andresmejia3/faceoverlay/internal/match"
	"github.com/pkg/errors"
)

var (
	// ErrNotLoaded is returned by DetectAll before Load has succeeded.
	ErrNotLoaded = errors.New("engine models not loaded")
	// ErrWorker marks an error reported by the inference worker itself.
	ErrWorker = errors.New("python worker error")
)

// Detection is one face found in a frame.
type Detection struct {
	Box        geometry.Box
	Score      float32
	Descriptor match.Descriptor
}

// Result holds every detection of a frame. Boxes are expressed in Size, the
// resolution the engine actually processed.
type Result struct {
	Detections []Detection
	Size       geometry.Size
}

// Best returns the highest scoring detection.
func (r Result) Best() (Detection, bool) {
	if len(r.Detections) == 0 {
		return Detection{}, false
	}
	best := r.Detections[0]
	for _, d := range r.Detections[1:] {
		if d.Score > best.Score {
			best = d
		}
	}
	return best, true
}

// Engine is implemented by inference backends.
type Engine interface {
	// Load prepares the models. It is idempotent.
	Load(ctx context.Context) error
	Loaded() bool
	// DetectAll finds faces scoring at least minConfidence and describes them.
	DetectAll(ctx context.Context, img image.Image, minConfidence float64) (Result, error)
	Close() error
}
