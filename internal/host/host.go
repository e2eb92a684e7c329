// Package host describes the page environment the detector runs in: a page
// holding a video, overlay canvases, a per-frame scheduler and a source of
// page mutation events. internal/cvhost provides the concrete implementation.
package host

import (
	"context"
	"image"

	"github.com/andresmejia3/faceoverlay/internal/geometry"
	"github.com/andresmejia3/faceoverlay/internal/overlay"
)

// ReadyState mirrors the media element readiness levels.
type ReadyState int

const (
	HaveNothing ReadyState = iota
	HaveMetadata
	HaveCurrentData
	HaveFutureData
	HaveEnoughData
)

func (r ReadyState) String() string {
	switch r {
	case HaveNothing:
		return "nothing"
	case HaveMetadata:
		return "metadata"
	case HaveCurrentData:
		return "current-data"
	case HaveFutureData:
		return "future-data"
	case HaveEnoughData:
		return "enough-data"
	}
	return "unknown"
}

// Element is anything that can be detached from the page.
type Element interface {
	Attached() bool
}

// Video is the primary video element.
type Video interface {
	Element
	Paused() bool
	Ended() bool
	ReadyState() ReadyState
	// ClientSize is the rendered size of the element.
	ClientSize() geometry.Size
	// Frame returns the currently displayed frame.
	Frame() (image.Image, error)
	// OnSeeked and OnResize register listeners and return a function that
	// removes them.
	OnSeeked(fn func()) (remove func())
	OnResize(fn func(geometry.Size)) (remove func())
}

// Canvas is a transparent overlay positioned over a video.
type Canvas interface {
	Element
	Resize(size geometry.Size)
	BackingSize() geometry.Size
	DisplaySize() geometry.Size
	Clear()
	DrawBox(box geometry.Box, label string, style overlay.Style)
	Remove()
}

// Page is the document hosting the video.
type Page interface {
	URL() string
	// Video returns the primary video element, if present.
	Video() (Video, bool)
	// PlayerReady reports whether the player container has finished loading.
	PlayerReady() bool
	// RemoveOverlays removes overlay canvases left on the page and returns
	// how many were removed.
	RemoveOverlays() int
	// CreateOverlay attaches a new canvas to the container of v.
	CreateOverlay(v Video) (Canvas, error)
}

// Scheduler paces the frame loop to the host display.
type Scheduler interface {
	// NextFrame blocks until the next displayed frame or ctx is done.
	NextFrame(ctx context.Context) error
}

// Navigator emits an event whenever the page structure changes.
type Navigator interface {
	Mutations() <-chan struct{}
}
