package cvhost

import (
	"errors"
	"image"
	"sync"

	"github.com/andresmejia3/faceoverlay/internal/geometry"
	"github.com/andresmejia3/faceoverlay/internal/host"
	"gocv.io/x/gocv"
)

var errNoFrame = errors.New("no frame decoded yet")

// Video is one opened source. It is detached when the player moves to another
// source or quits.
type Video struct {
	mu       sync.Mutex
	frame    gocv.Mat
	size     geometry.Size
	ready    host.ReadyState
	paused   bool
	ended    bool
	attached bool
	nextID   int
	seeked   map[int]func()
	resized  map[int]func(geometry.Size)
}

func newVideo(size geometry.Size) *Video {
	return &Video{
		frame:    gocv.NewMat(),
		size:     size,
		ready:    host.HaveMetadata,
		attached: true,
		seeked:   map[int]func(){},
		resized:  map[int]func(geometry.Size){},
	}
}

func (v *Video) Attached() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.attached
}

func (v *Video) Paused() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.paused
}

func (v *Video) Ended() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.ended
}

func (v *Video) ReadyState() host.ReadyState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.ready
}

func (v *Video) ClientSize() geometry.Size {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.size
}

// Frame converts the displayed frame into an RGBA image.
func (v *Video) Frame() (image.Image, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.frame.Empty() {
		return nil, errNoFrame
	}
	return v.frame.ToImage()
}

func (v *Video) OnSeeked(fn func()) func() {
	v.mu.Lock()
	defer v.mu.Unlock()
	id := v.nextID
	v.nextID++
	v.seeked[id] = fn
	return func() {
		v.mu.Lock()
		delete(v.seeked, id)
		v.mu.Unlock()
	}
}

func (v *Video) OnResize(fn func(geometry.Size)) func() {
	v.mu.Lock()
	defer v.mu.Unlock()
	id := v.nextID
	v.nextID++
	v.resized[id] = fn
	return func() {
		v.mu.Lock()
		delete(v.resized, id)
		v.mu.Unlock()
	}
}

// setFrame copies the scaled frame in and marks the video playable.
func (v *Video) setFrame(m gocv.Mat) {
	v.mu.Lock()
	defer v.mu.Unlock()
	m.CopyTo(&v.frame)
	v.ready = host.HaveEnoughData
}

// show copies the displayed frame into dst.
func (v *Video) show(dst *gocv.Mat) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.frame.Empty() {
		return false
	}
	v.frame.CopyTo(dst)
	return true
}

func (v *Video) setEnded() {
	v.mu.Lock()
	v.ended = true
	v.mu.Unlock()
}

func (v *Video) togglePause() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.paused = !v.paused
	return v.paused
}

func (v *Video) playing() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.attached && !v.paused && !v.ended
}

// detach marks the video as removed from the page and releases its frame.
func (v *Video) detach() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.attached {
		return
	}
	v.attached = false
	v.frame.Close()
	v.frame = gocv.NewMat()
}

// fireSeeked clears the ended flag and notifies listeners outside the lock.
func (v *Video) fireSeeked() {
	v.mu.Lock()
	v.ended = false
	fns := make([]func(), 0, len(v.seeked))
	for _, fn := range v.seeked {
		fns = append(fns, fn)
	}
	v.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (v *Video) resizeTo(size geometry.Size) {
	v.mu.Lock()
	v.size = size
	fns := make([]func(geometry.Size), 0, len(v.resized))
	for _, fn := range v.resized {
		fns = append(fns, fn)
	}
	v.mu.Unlock()
	for _, fn := range fns {
		fn(size)
	}
}
