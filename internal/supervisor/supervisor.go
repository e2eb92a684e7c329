// Package supervisor follows page navigation and keeps exactly one detector
// attached to the current page when its URL matches the target pattern.
package supervisor

import (
	"context"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/andresmejia3/faceoverlay/internal/host"
	"github.com/andresmejia3/faceoverlay/internal/logging"
	"github.com/andresmejia3/faceoverlay/internal/poll"
)

// Detector is the part of a detector controller the supervisor manages.
type Detector interface {
	ID() string
	Cleanup()
	Done() <-chan struct{}
}

// Factory builds a detector for page. The detector must stop when ctx ends.
type Factory func(ctx context.Context, page host.Page) (Detector, error)

// Options configures page matching and the readiness wait.
type Options struct {
	TargetPattern *regexp.Regexp
	PagePoll      poll.Options
}

// DefaultOptions targets watch pages and waits up to 50 x 200ms for them.
func DefaultOptions() Options {
	return Options{
		TargetPattern: regexp.MustCompile(`/watch`),
		PagePoll:      poll.Options{Interval: 200 * time.Millisecond, MaxAttempts: 50},
	}
}

// Supervisor owns the lifetime of the page's detector.
type Supervisor struct {
	page    host.Page
	nav     host.Navigator
	factory Factory
	opts    Options
	log     *slog.Logger

	mu        sync.Mutex
	lastURL   string
	started   bool
	gen       uint64
	cancelNav context.CancelFunc
	current   Detector
	wg        sync.WaitGroup
}

// New creates a supervisor. Nothing happens until Run.
func New(page host.Page, nav host.Navigator, factory Factory, opts Options, log *slog.Logger) *Supervisor {
	if opts.TargetPattern == nil {
		opts.TargetPattern = DefaultOptions().TargetPattern
	}
	return &Supervisor{
		page:    page,
		nav:     nav,
		factory: factory,
		opts:    opts,
		log:     logging.NewComponentLogger(log, "supervisor"),
	}
}

// Run evaluates the current page, then re-evaluates on every mutation until
// ctx ends or the mutation source closes. It always leaves no detector behind.
func (s *Supervisor) Run(ctx context.Context) error {
	defer s.Stop()

	s.check(ctx)
	mutations := s.nav.Mutations()
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-mutations:
			if !ok {
				return nil
			}
			s.check(ctx)
		}
	}
}

// check treats a URL different from the last one seen as a navigation.
func (s *Supervisor) check(ctx context.Context) {
	url := s.page.URL()
	s.mu.Lock()
	if s.started && url == s.lastURL {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.lastURL = url
	s.mu.Unlock()

	s.navigate(ctx, url)
}

func (s *Supervisor) navigate(ctx context.Context, url string) {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	if s.cancelNav != nil {
		s.cancelNav()
		s.cancelNav = nil
	}
	old := s.current
	s.current = nil
	s.mu.Unlock()

	if old != nil {
		old.Cleanup()
	}

	if !s.opts.TargetPattern.MatchString(url) {
		s.log.Debug("page is not a target", "url", url)
		return
	}
	s.log.Info("navigated to target page", "url", url)

	navCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		cancel()
		return
	}
	s.cancelNav = cancel
	s.wg.Add(1)
	s.mu.Unlock()

	go s.attach(navCtx, gen, url)
}

// attach waits for the page to settle and installs a fresh detector unless
// a newer navigation superseded this one.
func (s *Supervisor) attach(ctx context.Context, gen uint64, url string) {
	defer s.wg.Done()

	_, ready, err := poll.Until(ctx, s.opts.PagePoll, func() (struct{}, bool) {
		_, hasVideo := s.page.Video()
		return struct{}{}, hasVideo && s.page.PlayerReady()
	})
	if err != nil {
		return
	}
	if !ready {
		s.log.Warn("page elements not ready, starting detector anyway", "url", url, "waited", s.opts.PagePoll.Budget())
	}

	d, err := s.factory(ctx, s.page)
	if err != nil {
		s.log.Error("could not create detector", logging.Error(err), "url", url)
		return
	}

	s.mu.Lock()
	if gen != s.gen || ctx.Err() != nil {
		s.mu.Unlock()
		d.Cleanup()
		return
	}
	s.current = d
	s.mu.Unlock()
	s.log.Info("detector attached", "controller_id", d.ID(), "url", url)
}

// Current returns the live detector, if any.
func (s *Supervisor) Current() (Detector, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, s.current != nil
}

// CleanupCurrent tears down the current detector and abandons any pending
// attach without forgetting the last URL.
func (s *Supervisor) CleanupCurrent() {
	s.mu.Lock()
	s.gen++
	if s.cancelNav != nil {
		s.cancelNav()
		s.cancelNav = nil
	}
	old := s.current
	s.current = nil
	s.mu.Unlock()

	if old != nil {
		old.Cleanup()
	}
}

// Stop cleans up and waits for pending attaches to finish.
func (s *Supervisor) Stop() {
	s.CleanupCurrent()
	s.wg.Wait()
}
