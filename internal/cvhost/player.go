// Package cvhost implements the host environment as a desktop video player
// built on OpenCV. A playlist entry plays the role of a page: switching
// entries changes the URL, seeking fires "seeked", and rescaling the window
// fires "resize". Overlay canvases are retained display lists composited
// over each frame before it is shown.
package cvhost

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/andresmejia3/faceoverlay/internal/geometry"
	"github.com/andresmejia3/faceoverlay/internal/host"
	"github.com/andresmejia3/faceoverlay/internal/logging"
	"github.com/andresmejia3/faceoverlay/internal/overlay"
	"gocv.io/x/gocv"
)

var errNoContainer = errors.New("video has no container")

// Options configures a Player.
type Options struct {
	Sources   []string
	Display   geometry.Size
	RefreshHz int
	Title     string
	SeekStep  time.Duration
}

func (o *Options) normalize() {
	if o.Display.Empty() {
		o.Display = geometry.Size{Width: 1280, Height: 720}
	}
	if o.RefreshHz <= 0 {
		o.RefreshHz = 60
	}
	if o.Title == "" {
		o.Title = "faceoverlay"
	}
	if o.SeekStep <= 0 {
		o.SeekStep = 5 * time.Second
	}
}

// Player is a host.Page, host.Navigator and host.Scheduler backed by an
// OpenCV window. Run must be called from the main goroutine.
type Player struct {
	opts Options
	log  *slog.Logger

	// capture is only touched by the goroutine running Run.
	capture *gocv.VideoCapture

	mu        sync.Mutex
	index     int
	url       string
	video     *Video
	layers    []*overlay.Layer
	tick      chan struct{}
	closed    bool
	mutations chan struct{}
}

var (
	_ host.Page      = (*Player)(nil)
	_ host.Navigator = (*Player)(nil)
	_ host.Scheduler = (*Player)(nil)
)

// New opens the first source of the playlist.
func New(opts Options, log *slog.Logger) (*Player, error) {
	if len(opts.Sources) == 0 {
		return nil, errors.New("player needs at least one source")
	}
	opts.normalize()

	p := &Player{
		opts:      opts,
		log:       logging.NewComponentLogger(log, "cvhost"),
		tick:      make(chan struct{}),
		mutations: make(chan struct{}, 1),
	}
	if err := p.switchTo(0); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Player) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *Player) Video() (host.Video, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.video == nil {
		return nil, false
	}
	return p.video, true
}

// PlayerReady reports whether the current source has decoded a frame.
func (p *Player) PlayerReady() bool {
	p.mu.Lock()
	v := p.video
	p.mu.Unlock()
	return v != nil && v.ReadyState() >= host.HaveCurrentData
}

func (p *Player) RemoveOverlays() int {
	p.mu.Lock()
	stale := p.layers
	p.layers = nil
	p.mu.Unlock()
	for _, l := range stale {
		l.Remove()
	}
	return len(stale)
}

func (p *Player) CreateOverlay(v host.Video) (host.Canvas, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.video == nil || host.Video(p.video) != v {
		return nil, errNoContainer
	}
	var layer *overlay.Layer
	layer = overlay.NewLayer(v.ClientSize(), func() { p.forget(layer) })
	p.layers = append(p.layers, layer)
	return layer, nil
}

func (p *Player) forget(layer *overlay.Layer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, l := range p.layers {
		if l == layer {
			p.layers = append(p.layers[:i], p.layers[i+1:]...)
			return
		}
	}
}

func (p *Player) Mutations() <-chan struct{} { return p.mutations }

func (p *Player) notify() {
	select {
	case p.mutations <- struct{}{}:
	default:
	}
}

// NextFrame blocks until the next frame has been shown.
func (p *Player) NextFrame(ctx context.Context) error {
	p.mu.Lock()
	tick := p.tick
	p.mu.Unlock()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-tick:
		return nil
	}
}

func (p *Player) broadcast() {
	p.mu.Lock()
	close(p.tick)
	p.tick = make(chan struct{})
	p.mu.Unlock()
}

// Run plays the playlist until ctx ends or the user quits.
func (p *Player) Run(ctx context.Context) error {
	window := gocv.NewWindow(p.opts.Title)
	defer window.Close()

	raw := gocv.NewMat()
	defer raw.Close()
	scaled := gocv.NewMat()
	defer scaled.Close()
	frame := gocv.NewMat()
	defer frame.Close()

	delay := max(1, 1000/p.opts.RefreshHz)
	for ctx.Err() == nil {
		p.mu.Lock()
		v := p.video
		p.mu.Unlock()

		if v.playing() {
			if ok := p.capture.Read(&raw); !ok || raw.Empty() {
				v.setEnded()
				p.log.Info("source ended", "url", p.URL())
			} else {
				size := v.ClientSize()
				gocv.Resize(raw, &scaled, image.Pt(size.Width, size.Height), 0, 0, gocv.InterpolationLinear)
				v.setFrame(scaled)
			}
		}

		if v.show(&frame) {
			for _, l := range p.attachedLayers() {
				ops, backing := l.Snapshot()
				composite(&frame, ops, backing, l.DisplaySize())
			}
			window.IMShow(frame)
		}
		p.broadcast()

		if p.handle(actionFor(window.WaitKey(delay))) {
			return nil
		}
	}
	return nil
}

func (p *Player) attachedLayers() []*overlay.Layer {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*overlay.Layer, 0, len(p.layers))
	for _, l := range p.layers {
		if l.Attached() {
			out = append(out, l)
		}
	}
	return out
}

// handle applies a key action and reports whether the player should quit.
func (p *Player) handle(a action) bool {
	p.mu.Lock()
	v, index := p.video, p.index
	p.mu.Unlock()

	switch a {
	case actionQuit:
		return true
	case actionPause:
		p.log.Debug("pause toggled", "paused", v.togglePause())
	case actionNext, actionPrev:
		step := 1
		if a == actionPrev {
			step = -1
		}
		next := wrapIndex(index+step, len(p.opts.Sources))
		if err := p.switchTo(next); err != nil {
			p.log.Warn("switch source failed", "source", p.opts.Sources[next], logging.Error(err))
		}
	case actionSeekBack, actionSeekForward:
		delta := p.opts.SeekStep
		if a == actionSeekBack {
			delta = -delta
		}
		p.seek(v, delta)
	case actionGrow, actionShrink:
		factor := 1.1
		if a == actionShrink {
			factor = 1 / factor
		}
		size := scaleSize(v.ClientSize(), factor)
		p.log.Debug("display resized", "size", size.String())
		v.resizeTo(size)
	}
	return false
}

func (p *Player) seek(v *Video, delta time.Duration) {
	pos := p.capture.Get(gocv.VideoCapturePosMsec)
	target := max(0, pos+float64(delta.Milliseconds()))
	p.capture.Set(gocv.VideoCapturePosMsec, target)
	p.log.Debug("seeked", "from_ms", int64(pos), "to_ms", int64(target))
	v.fireSeeked()
}

// switchTo opens source i and makes it the current page. The previous video
// is detached, which the detector observes as a structural change.
func (p *Player) switchTo(i int) error {
	src := p.opts.Sources[i]
	capture, err := openCapture(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	native := geometry.Size{
		Width:  int(capture.Get(gocv.VideoCaptureFrameWidth)),
		Height: int(capture.Get(gocv.VideoCaptureFrameHeight)),
	}
	video := newVideo(fitSize(native, p.opts.Display))

	old, oldCapture := p.video, p.capture
	p.capture = capture
	p.mu.Lock()
	p.index = i
	p.url = sourceURL(i, src)
	p.video = video
	p.mu.Unlock()

	if old != nil {
		old.detach()
	}
	if oldCapture != nil {
		oldCapture.Close()
	}
	p.log.Info("source opened", "url", p.URL(), "native", native.String(), "display", video.ClientSize().String())
	p.notify()
	return nil
}

// Close detaches the current video and releases the capture.
func (p *Player) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	v := p.video
	p.mu.Unlock()

	p.RemoveOverlays()
	if v != nil {
		v.detach()
	}
	if p.capture != nil {
		return p.capture.Close()
	}
	return nil
}

// openCapture treats an all-digit source as a camera index.
func openCapture(src string) (*gocv.VideoCapture, error) {
	if id, err := strconv.Atoi(src); err == nil {
		return gocv.OpenVideoCapture(id)
	}
	return gocv.OpenVideoCapture(src)
}

func sourceURL(i int, src string) string {
	q := url.Values{}
	q.Set("v", strconv.Itoa(i))
	q.Set("src", src)
	return "player:///watch?" + q.Encode()
}

// fitSize scales native into bounds keeping its aspect ratio. Unknown native
// sizes take the full bounds.
func fitSize(native, bounds geometry.Size) geometry.Size {
	if native.Empty() {
		return bounds
	}
	scale := min(float64(bounds.Width)/float64(native.Width), float64(bounds.Height)/float64(native.Height))
	return scaleSize(native, scale)
}

func scaleSize(s geometry.Size, factor float64) geometry.Size {
	return geometry.Size{
		Width:  max(2, int(float64(s.Width)*factor+0.5)),
		Height: max(2, int(float64(s.Height)*factor+0.5)),
	}
}

func wrapIndex(i, n int) int {
	return ((i % n) + n) % n
}
