// Package hosttest provides in-memory host implementations for tests.
package hosttest

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/andresmejia3/faceoverlay/internal/geometry"
	"github.com/andresmejia3/faceoverlay/internal/host"
	"github.com/andresmejia3/faceoverlay/internal/overlay"
)

// Video is a controllable video element.
type Video struct {
	mu       sync.Mutex
	paused   bool
	ended    bool
	ready    host.ReadyState
	size     geometry.Size
	attached bool
	frameErr error
	nextID   int
	seeked   map[int]func()
	resized  map[int]func(geometry.Size)
}

// NewVideo returns an attached, playing video with enough data buffered.
func NewVideo(size geometry.Size) *Video {
	return &Video{
		ready:    host.HaveEnoughData,
		size:     size,
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

func (v *Video) Frame() (image.Image, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.frameErr != nil {
		return nil, v.frameErr
	}
	return image.NewRGBA(image.Rect(0, 0, v.size.Width, v.size.Height)), nil
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

func (v *Video) SetPaused(p bool) {
	v.mu.Lock()
	v.paused = p
	v.mu.Unlock()
}

func (v *Video) SetEnded(e bool) {
	v.mu.Lock()
	v.ended = e
	v.mu.Unlock()
}

func (v *Video) SetReadyState(r host.ReadyState) {
	v.mu.Lock()
	v.ready = r
	v.mu.Unlock()
}

// SetFrameError makes Frame fail with err until cleared with nil.
func (v *Video) SetFrameError(err error) {
	v.mu.Lock()
	v.frameErr = err
	v.mu.Unlock()
}

// Detach removes the video from the page.
func (v *Video) Detach() {
	v.mu.Lock()
	v.attached = false
	v.mu.Unlock()
}

// Seek fires the seeked listeners.
func (v *Video) Seek() {
	v.mu.Lock()
	fns := make([]func(), 0, len(v.seeked))
	for _, fn := range v.seeked {
		fns = append(fns, fn)
	}
	v.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// ResizeTo changes the rendered size and fires the resize listeners.
func (v *Video) ResizeTo(size geometry.Size) {
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

// Listeners returns the number of registered seeked and resize listeners.
func (v *Video) Listeners() (seeked, resized int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.seeked), len(v.resized)
}

// Page is a controllable page holding at most one video.
type Page struct {
	mu          sync.Mutex
	url         string
	video       *Video
	playerReady bool
	overlays    []*overlay.Layer
	created     []*overlay.Layer
	createErr   error
	videoCalls  int
}

// NewPage returns a page at url holding video, which may be nil.
func NewPage(url string, video *Video) *Page {
	return &Page{url: url, video: video, playerReady: true}
}

func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *Page) Video() (host.Video, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.videoCalls++
	if p.video == nil {
		return nil, false
	}
	return p.video, true
}

func (p *Page) PlayerReady() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playerReady
}

func (p *Page) RemoveOverlays() int {
	p.mu.Lock()
	stale := p.overlays
	p.overlays = nil
	p.mu.Unlock()
	for _, l := range stale {
		l.Remove()
	}
	return len(stale)
}

func (p *Page) CreateOverlay(v host.Video) (host.Canvas, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.createErr != nil {
		return nil, p.createErr
	}
	if p.video == nil || host.Video(p.video) != v {
		return nil, errors.New("video has no container")
	}
	var layer *overlay.Layer
	layer = overlay.NewLayer(v.ClientSize(), func() { p.forget(layer) })
	p.overlays = append(p.overlays, layer)
	p.created = append(p.created, layer)
	return layer, nil
}

func (p *Page) forget(layer *overlay.Layer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, l := range p.overlays {
		if l == layer {
			p.overlays = append(p.overlays[:i], p.overlays[i+1:]...)
			return
		}
	}
}

// Navigate changes the URL and the video in one step.
func (p *Page) Navigate(url string, video *Video) {
	p.mu.Lock()
	p.url = url
	p.video = video
	p.mu.Unlock()
}

func (p *Page) SetPlayerReady(ready bool) {
	p.mu.Lock()
	p.playerReady = ready
	p.mu.Unlock()
}

// SetCreateError makes CreateOverlay fail.
func (p *Page) SetCreateError(err error) {
	p.mu.Lock()
	p.createErr = err
	p.mu.Unlock()
}

// Overlays returns the canvases currently attached.
func (p *Page) Overlays() []*overlay.Layer {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*overlay.Layer, len(p.overlays))
	copy(out, p.overlays)
	return out
}

// Created returns every canvas ever created, in order.
func (p *Page) Created() []*overlay.Layer {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*overlay.Layer, len(p.created))
	copy(out, p.created)
	return out
}

// VideoCalls counts Video lookups.
func (p *Page) VideoCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.videoCalls
}

// Scheduler releases one frame per Interval.
type Scheduler struct {
	Interval time.Duration
	calls    atomic.Int64
}

func (s *Scheduler) NextFrame(ctx context.Context) error {
	s.calls.Add(1)
	interval := s.Interval
	if interval <= 0 {
		interval = time.Millisecond
	}
	t := time.NewTimer(interval)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Calls returns how many frames were requested.
func (s *Scheduler) Calls() int64 { return s.calls.Load() }

// Navigator delivers mutation events on demand.
type Navigator struct {
	ch chan struct{}
}

func NewNavigator() *Navigator {
	return &Navigator{ch: make(chan struct{}, 16)}
}

func (n *Navigator) Mutations() <-chan struct{} { return n.ch }

// Mutate signals a page change without blocking.
func (n *Navigator) Mutate() {
	select {
	case n.ch <- struct{}{}:
	default:
	}
}
