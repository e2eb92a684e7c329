// Package detector runs face recognition over one video: it acquires the
// video, an overlay canvas, the models and the gallery, then drives a
// per-frame detect, match and draw loop until it is cleaned up.
package detector

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"log/slog"
	"sync"
	"time"

	"github.com/andresmejia3/faceoverlay/internal/engine"
	"github.com/andresmejia3/faceoverlay/internal/geometry"
	"github.com/andresmejia3/faceoverlay/internal/host"
	"github.com/andresmejia3/faceoverlay/internal/logging"
	"github.com/andresmejia3/faceoverlay/internal/match"
	"github.com/andresmejia3/faceoverlay/internal/overlay"
	"github.com/andresmejia3/faceoverlay/internal/poll"
	"github.com/google/uuid"
)

var (
	// ErrInitialization wraps every setup failure. Setup is retried.
	ErrInitialization = errors.New("detector initialization failed")
	// ErrTransientDetection marks a failed frame cycle. The loop continues.
	ErrTransientDetection = errors.New("transient detection error")
	// ErrStructuralLoss means the video or canvas left the page.
	ErrStructuralLoss = errors.New("video or canvas detached from page")
)

// Options tunes the controller's retry, polling and recognition behaviour.
type Options struct {
	MaxAttempts    int
	RetryDelay     time.Duration
	VideoPoll      poll.Options
	MinConfidence  float64
	MatchThreshold float64
	ReinitOnSeek   bool
	TimingWindow   int
}

// DefaultOptions returns 3 attempts 2s apart and a 100 x 100ms video poll.
func DefaultOptions() Options {
	return Options{
		MaxAttempts:    3,
		RetryDelay:     2 * time.Second,
		VideoPoll:      poll.Options{Interval: 100 * time.Millisecond, MaxAttempts: 100},
		MinConfidence:  0.5,
		MatchThreshold: match.DefaultThreshold,
		ReinitOnSeek:   true,
		TimingWindow:   30,
	}
}

// GalleryLoader supplies the reference descriptors.
type GalleryLoader interface {
	LoadGallery(ctx context.Context) (match.Gallery, error)
}

// Deps are the collaborators a Controller observes but does not own.
type Deps struct {
	Page       host.Page
	Scheduler  host.Scheduler
	Engine     engine.Engine
	Gallery    GalleryLoader
	Appearance *overlay.Appearance
	Logger     *slog.Logger
	// OnTransition, if set, is called after every state change.
	OnTransition func(from, to State)
}

type loopExit int

const (
	exitCancelled loopExit = iota
	exitSeeked
	exitStructuralLoss
)

// Controller owns one video's overlay canvas and frame loop.
type Controller struct {
	id   string
	deps Deps
	opts Options
	log  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	seeked chan struct{}

	timings *timingWindow

	mu           sync.Mutex
	state        State
	video        host.Video
	canvas       host.Canvas
	matcher      *match.Matcher
	modelsLoaded bool
	detaches     []func()
}

// resources is what one initialization attempt acquires.
type resources struct {
	video    host.Video
	canvas   host.Canvas
	matcher  *match.Matcher
	detaches []func()
}

func (r *resources) release() {
	for _, detach := range r.detaches {
		detach()
	}
	if r.canvas != nil {
		r.canvas.Remove()
	}
	*r = resources{}
}

// Start constructs a controller and begins initializing it in the
// background. Cancelling ctx is equivalent to calling Cleanup.
func Start(ctx context.Context, deps Deps, opts Options) (*Controller, error) {
	if deps.Page == nil || deps.Scheduler == nil || deps.Engine == nil || deps.Gallery == nil {
		return nil, errors.New("detector: page, scheduler, engine and gallery are required")
	}
	if deps.Appearance == nil {
		deps.Appearance = overlay.NewAppearance(overlay.DefaultStyle())
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}

	id := uuid.NewString()
	c := &Controller{
		id:      id,
		deps:    deps,
		opts:    opts,
		log:     logging.NewComponentLogger(deps.Logger, "detector").With("controller_id", id),
		done:    make(chan struct{}),
		seeked:  make(chan struct{}, 1),
		timings: newTimingWindow(opts.TimingWindow),
	}
	c.ctx, c.cancel = context.WithCancel(ctx)

	c.transition(Initializing)
	go c.run()
	return c, nil
}

// ID identifies the controller in logs.
func (c *Controller) ID() string { return c.id }

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Done is closed once the controller has stopped for good.
func (c *Controller) Done() <-chan struct{} { return c.done }

// Wait blocks until the controller stops or ctx ends.
func (c *Controller) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetColor changes the box color for subsequent draws.
func (c *Controller) SetColor(col color.RGBA) {
	c.deps.Appearance.SetColor(col)
}

// AverageDetectionTime is the mean inference time over the recent window.
func (c *Controller) AverageDetectionTime() time.Duration {
	return c.timings.average()
}

// Cleanup stops the frame loop, removes the canvas, detaches listeners and
// resets the loaded flags. It is safe to call from any state, any number of
// times, and concurrently with initialization.
func (c *Controller) Cleanup() {
	c.mu.Lock()
	if c.state == CleanedUp {
		c.mu.Unlock()
		return
	}
	from := c.state
	c.state = CleanedUp
	c.cancel()
	held := c.takeLocked()
	c.mu.Unlock()

	held.release()
	c.log.Info("cleaned up", "from", from.String())
	if c.deps.OnTransition != nil {
		c.deps.OnTransition(from, CleanedUp)
	}
}

// takeLocked hands the published resources to the caller and resets flags.
func (c *Controller) takeLocked() resources {
	r := resources{video: c.video, canvas: c.canvas, matcher: c.matcher, detaches: c.detaches}
	c.video, c.canvas, c.matcher, c.detaches = nil, nil, nil, nil
	c.modelsLoaded = false
	return r
}

// transition moves to a new state unless the controller was cleaned up.
func (c *Controller) transition(to State) bool {
	c.mu.Lock()
	if c.state == CleanedUp {
		c.mu.Unlock()
		return false
	}
	from := c.state
	c.state = to
	c.mu.Unlock()

	c.log.Info("state changed", "from", from.String(), "to", to.String())
	if c.deps.OnTransition != nil {
		c.deps.OnTransition(from, to)
	}
	return true
}

func (c *Controller) run() {
	defer close(c.done)
	defer c.Cleanup()

	for {
		if err := c.initialize(); err != nil {
			if c.ctx.Err() == nil {
				c.log.Error("giving up on initialization", logging.Error(err), "attempts", c.opts.MaxAttempts)
			}
			return
		}

		switch c.loop() {
		case exitSeeked:
			c.teardown()
			if !c.transition(Initializing) {
				return
			}
		case exitStructuralLoss:
			c.log.Warn("stopping frame loop", logging.Error(ErrStructuralLoss))
			return
		default:
			return
		}
	}
}

// initialize runs up to MaxAttempts setup attempts with RetryDelay between them.
func (c *Controller) initialize() error {
	var lastErr error
	for attempt := 1; attempt <= c.opts.MaxAttempts; attempt++ {
		if attempt > 1 && !c.transition(Initializing) {
			return context.Canceled
		}

		err := c.attempt()
		if err == nil {
			return nil
		}
		if c.ctx.Err() != nil {
			return c.ctx.Err()
		}
		lastErr = err

		if !c.transition(Failed) {
			return context.Canceled
		}
		if attempt == c.opts.MaxAttempts {
			break
		}
		c.log.Warn("initialization failed, retrying", logging.Error(err), "attempt", attempt, "max_attempts", c.opts.MaxAttempts, "delay", c.opts.RetryDelay)

		timer := time.NewTimer(c.opts.RetryDelay)
		select {
		case <-timer.C:
		case <-c.ctx.Done():
			timer.Stop()
			return c.ctx.Err()
		}
	}
	return lastErr
}

// attempt performs video, listener, canvas, models and gallery setup in
// order and publishes the result only if the controller is still alive.
func (c *Controller) attempt() (err error) {
	var r resources
	defer func() {
		if err != nil {
			r.release()
		}
	}()

	// (a) video
	video, found, err := poll.Until(c.ctx, c.opts.VideoPoll, func() (host.Video, bool) {
		v, ok := c.deps.Page.Video()
		if !ok || v == nil {
			return nil, false
		}
		return v, v.ReadyState() >= host.HaveMetadata
	})
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: no video found after %s", ErrInitialization, c.opts.VideoPoll.Budget())
	}
	r.video = video

	// (b) seek listener
	r.detaches = append(r.detaches, video.OnSeeked(c.onSeeked))

	// (c) canvas
	if n := c.deps.Page.RemoveOverlays(); n > 0 {
		c.log.Debug("removed stale overlays", "count", n)
	}
	canvas, err := c.deps.Page.CreateOverlay(video)
	if err != nil {
		return fmt.Errorf("%w: create overlay: %v", ErrInitialization, err)
	}
	r.canvas = canvas
	canvas.Resize(video.ClientSize())

	// (d) models
	if err := c.deps.Engine.Load(c.ctx); err != nil {
		if c.ctx.Err() != nil {
			return c.ctx.Err()
		}
		return fmt.Errorf("%w: load models: %v", ErrInitialization, err)
	}

	// (e) gallery
	g, err := c.deps.Gallery.LoadGallery(c.ctx)
	if err != nil {
		if c.ctx.Err() != nil {
			return c.ctx.Err()
		}
		return fmt.Errorf("%w: load gallery: %v", ErrInitialization, err)
	}
	if g.Len() == 0 {
		return fmt.Errorf("%w: gallery is empty", ErrInitialization)
	}
	matcher, err := match.New(g, c.opts.MatchThreshold)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInitialization, err)
	}
	r.matcher = matcher

	if r.video == nil || r.canvas == nil || r.matcher == nil || !c.deps.Engine.Loaded() {
		return fmt.Errorf("%w: incomplete setup", ErrInitialization)
	}

	return c.commit(&r)
}

// commit publishes r and enters Ready. A controller cleaned up while the
// attempt was in flight rejects it, and the caller releases r.
func (c *Controller) commit(r *resources) error {
	c.mu.Lock()
	if c.state == CleanedUp {
		c.mu.Unlock()
		return context.Canceled
	}
	c.video, c.canvas, c.matcher = r.video, r.canvas, r.matcher
	c.detaches = r.detaches
	c.modelsLoaded = true
	c.detaches = append(c.detaches, r.video.OnResize(c.syncGeometry))
	// The video may have been resized while models and gallery loaded.
	r.canvas.Resize(r.video.ClientSize())
	from := c.state
	c.state = Ready
	c.mu.Unlock()

	// Seeks that raced with setup are already reflected in the new canvas.
	select {
	case <-c.seeked:
	default:
	}

	c.log.Info("state changed", "from", from.String(), "to", Ready.String(), "canvas", r.canvas.BackingSize().String())
	if c.deps.OnTransition != nil {
		c.deps.OnTransition(from, Ready)
	}
	return nil
}

// teardown releases everything acquired by the last successful attempt
// while keeping the controller alive.
func (c *Controller) teardown() {
	c.mu.Lock()
	held := c.takeLocked()
	c.mu.Unlock()
	held.release()
}

func (c *Controller) onSeeked() {
	select {
	case c.seeked <- struct{}{}:
	default:
	}
}

// syncGeometry makes the canvas backing and display size equal the video's
// rendered size. It never changes state.
func (c *Controller) syncGeometry(size geometry.Size) {
	c.mu.Lock()
	canvas := c.canvas
	ready := c.state == Ready
	c.mu.Unlock()
	if !ready || canvas == nil {
		return
	}
	canvas.Resize(size)
}

func (c *Controller) loop() loopExit {
	for {
		select {
		case <-c.ctx.Done():
			return exitCancelled
		case <-c.seeked:
			if c.opts.ReinitOnSeek {
				c.log.Info("video seeked, reinitializing")
				return exitSeeked
			}
			c.clearCanvas()
		default:
		}

		if err := c.cycle(); err != nil {
			c.log.Warn("frame skipped", logging.Error(err))
		}

		if !c.attached() {
			return exitStructuralLoss
		}
		if err := c.deps.Scheduler.NextFrame(c.ctx); err != nil {
			return exitCancelled
		}
	}
}

func (c *Controller) clearCanvas() {
	c.mu.Lock()
	canvas := c.canvas
	c.mu.Unlock()
	if canvas != nil {
		canvas.Clear()
	}
}

func (c *Controller) attached() bool {
	c.mu.Lock()
	video, canvas := c.video, c.canvas
	c.mu.Unlock()
	return video != nil && canvas != nil && video.Attached() && canvas.Attached()
}

// cycle runs one detect, match and draw pass. Gated cycles return nil.
func (c *Controller) cycle() error {
	c.mu.Lock()
	video, canvas, matcher, loaded := c.video, c.canvas, c.matcher, c.modelsLoaded
	ready := c.state == Ready
	c.mu.Unlock()

	if !ready || !loaded || video == nil || canvas == nil || matcher == nil {
		return nil
	}
	if video.Paused() || video.Ended() || video.ReadyState() < host.HaveEnoughData {
		return nil
	}

	frame, err := video.Frame()
	if err != nil {
		return fmt.Errorf("%w: grab frame: %v", ErrTransientDetection, err)
	}

	start := time.Now()
	res, err := c.deps.Engine.DetectAll(c.ctx, frame, c.opts.MinConfidence)
	if err != nil {
		if c.ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, engine.ErrNotLoaded) {
			// the worker died; bring it back for the next cycle
			if lerr := c.deps.Engine.Load(c.ctx); lerr != nil {
				return fmt.Errorf("%w: reload engine: %v", ErrTransientDetection, lerr)
			}
			c.log.Info("engine reloaded")
		}
		return fmt.Errorf("%w: %v", ErrTransientDetection, err)
	}
	if c.timings.add(time.Since(start)) {
		c.log.Debug("detection timing", "avg", c.timings.average(), "samples", c.timings.len())
	}

	canvas.Clear()
	target := canvas.BackingSize()
	style := c.deps.Appearance.Style()
	for _, d := range res.Detections {
		box := geometry.Rescale(d.Box, res.Size, target)
		m, err := matcher.Match(d.Descriptor)
		if err != nil {
			c.log.Warn("match failed", logging.Error(err))
			continue
		}
		canvas.DrawBox(box, m.Label, style)
	}
	return nil
}
