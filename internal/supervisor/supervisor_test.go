package supervisor

import (
	"context"
	"fmt"
	"image"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andresmejia3/faceoverlay/internal/detector"
	"github.com/andresmejia3/faceoverlay/internal/engine"
	"github.com/andresmejia3/faceoverlay/internal/geometry"
	"github.com/andresmejia3/faceoverlay/internal/host"
	"github.com/andresmejia3/faceoverlay/internal/host/hosttest"
	"github.com/andresmejia3/faceoverlay/internal/match"
	"github.com/andresmejia3/faceoverlay/internal/overlay"
	"github.com/andresmejia3/faceoverlay/internal/poll"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

type fakeDetector struct {
	id       string
	url      string
	cleanups atomic.Int32
	done     chan struct{}
	once     sync.Once
}

func (d *fakeDetector) Cleanup() {
	d.cleanups.Add(1)
	d.once.Do(func() { close(d.done) })
}

func (d *fakeDetector) Done() <-chan struct{} { return d.done }

func (d *fakeDetector) ID() string { return d.id }

type recorder struct {
	mu      sync.Mutex
	created []*fakeDetector
}

func (r *recorder) factory(ctx context.Context, page host.Page) (Detector, error) {
	d := &fakeDetector{url: page.URL(), done: make(chan struct{})}
	go func() {
		<-ctx.Done()
		d.Cleanup()
	}()
	r.mu.Lock()
	d.id = fmt.Sprintf("fake-%d", len(r.created)+1)
	r.created = append(r.created, d)
	r.mu.Unlock()
	return d, nil
}

func (r *recorder) all() []*fakeDetector {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*fakeDetector(nil), r.created...)
}

func (r *recorder) live() int {
	n := 0
	for _, d := range r.all() {
		if d.cleanups.Load() == 0 {
			n++
		}
	}
	return n
}

func testOptions() Options {
	return Options{
		TargetPattern: regexp.MustCompile(`/watch`),
		PagePoll:      poll.Options{Interval: time.Millisecond, MaxAttempts: 5},
	}
}

func newVideo() *hosttest.Video {
	return hosttest.NewVideo(geometry.Size{Width: 320, Height: 180})
}

func runSupervisor(t *testing.T, s *Supervisor) (cancel func(), done <-chan struct{}) {
	t.Helper()
	ctx, cancelFn := context.WithCancel(context.Background())
	ch := make(chan struct{})
	go func() {
		defer close(ch)
		_ = s.Run(ctx)
	}()
	t.Cleanup(func() {
		cancelFn()
		<-ch
	})
	return cancelFn, ch
}

func TestAttachesToTargetPage(t *testing.T) {
	page := hosttest.NewPage("https://example.com/watch?v=1", newVideo())
	rec := &recorder{}
	s := New(page, hosttest.NewNavigator(), rec.factory, testOptions(), nil)
	runSupervisor(t, s)

	require.Eventually(t, func() bool { return len(rec.all()) == 1 }, waitFor, time.Millisecond)
	cur, ok := s.Current()
	require.True(t, ok)
	assert.Same(t, rec.all()[0], cur)
	assert.Equal(t, "fake-1", cur.ID())
}

func TestIgnoresNonTargetPage(t *testing.T) {
	page := hosttest.NewPage("https://example.com/feed", newVideo())
	rec := &recorder{}
	nav := hosttest.NewNavigator()
	s := New(page, nav, rec.factory, testOptions(), nil)
	runSupervisor(t, s)

	nav.Mutate()
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, rec.all())
	_, ok := s.Current()
	assert.False(t, ok)
}

func TestNavigationReplacesDetector(t *testing.T) {
	page := hosttest.NewPage("https://example.com/watch?v=1", newVideo())
	rec := &recorder{}
	nav := hosttest.NewNavigator()
	s := New(page, nav, rec.factory, testOptions(), nil)
	runSupervisor(t, s)
	require.Eventually(t, func() bool { return len(rec.all()) == 1 }, waitFor, time.Millisecond)

	page.Navigate("https://example.com/watch?v=2", newVideo())
	nav.Mutate()

	require.Eventually(t, func() bool { return len(rec.all()) == 2 }, waitFor, time.Millisecond)
	first, second := rec.all()[0], rec.all()[1]
	assert.Positive(t, first.cleanups.Load())
	assert.Equal(t, "https://example.com/watch?v=2", second.url)
	assert.Equal(t, 1, rec.live())
}

func TestNavigatingAwayCleansUp(t *testing.T) {
	page := hosttest.NewPage("https://example.com/watch?v=1", newVideo())
	rec := &recorder{}
	nav := hosttest.NewNavigator()
	s := New(page, nav, rec.factory, testOptions(), nil)
	runSupervisor(t, s)
	require.Eventually(t, func() bool { return len(rec.all()) == 1 }, waitFor, time.Millisecond)

	page.Navigate("https://example.com/feed", nil)
	nav.Mutate()

	require.Eventually(t, func() bool { return rec.live() == 0 }, waitFor, time.Millisecond)
	assert.Len(t, rec.all(), 1)
}

func TestMutationWithoutURLChangeKeepsDetector(t *testing.T) {
	page := hosttest.NewPage("https://example.com/watch?v=1", newVideo())
	rec := &recorder{}
	nav := hosttest.NewNavigator()
	s := New(page, nav, rec.factory, testOptions(), nil)
	runSupervisor(t, s)
	require.Eventually(t, func() bool { return len(rec.all()) == 1 }, waitFor, time.Millisecond)

	for i := 0; i < 5; i++ {
		nav.Mutate()
	}
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, rec.all(), 1)
	assert.Equal(t, 1, rec.live())
}

func TestProceedsWhenPageNeverReady(t *testing.T) {
	page := hosttest.NewPage("https://example.com/watch?v=1", newVideo())
	page.SetPlayerReady(false)
	rec := &recorder{}
	s := New(page, hosttest.NewNavigator(), rec.factory, testOptions(), nil)
	runSupervisor(t, s)

	require.Eventually(t, func() bool { return len(rec.all()) == 1 }, waitFor, time.Millisecond)
}

func TestSupersededAttachIsAbandoned(t *testing.T) {
	page := hosttest.NewPage("https://example.com/watch?v=1", nil)
	rec := &recorder{}
	nav := hosttest.NewNavigator()
	opts := testOptions()
	opts.PagePoll = poll.Options{Interval: 5 * time.Millisecond, MaxAttempts: 200}
	s := New(page, nav, rec.factory, opts, nil)
	runSupervisor(t, s)

	// The first page never gets a video; navigate before its wait ends.
	time.Sleep(10 * time.Millisecond)
	page.Navigate("https://example.com/watch?v=2", newVideo())
	nav.Mutate()

	require.Eventually(t, func() bool { return len(rec.all()) == 1 }, waitFor, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	require.Len(t, rec.all(), 1)
	assert.Equal(t, "https://example.com/watch?v=2", rec.all()[0].url)
}

func TestRunExitCleansUp(t *testing.T) {
	page := hosttest.NewPage("https://example.com/watch?v=1", newVideo())
	rec := &recorder{}
	s := New(page, hosttest.NewNavigator(), rec.factory, testOptions(), nil)
	cancel, done := runSupervisor(t, s)
	require.Eventually(t, func() bool { return len(rec.all()) == 1 }, waitFor, time.Millisecond)

	cancel()
	<-done
	assert.Zero(t, rec.live())
	_, ok := s.Current()
	assert.False(t, ok)
}

type staticEngine struct{}

func (staticEngine) Load(context.Context) error { return nil }
func (staticEngine) Loaded() bool               { return true }
func (staticEngine) Close() error               { return nil }
func (staticEngine) DetectAll(context.Context, image.Image, float64) (engine.Result, error) {
	return engine.Result{}, nil
}

type staticGallery struct{}

func (staticGallery) LoadGallery(context.Context) (match.Gallery, error) {
	return match.Gallery{{Label: "Alice", Descriptors: []match.Descriptor{{0, 1}}}}, nil
}

// With real controllers the page never holds more than one overlay.
func TestOneControllerAcrossNavigations(t *testing.T) {
	page := hosttest.NewPage("https://example.com/watch?v=1", newVideo())
	nav := hosttest.NewNavigator()
	appearance := overlay.NewAppearance(overlay.DefaultStyle())
	opts := detector.DefaultOptions()
	opts.VideoPoll = poll.Options{Interval: time.Millisecond, MaxAttempts: 5}
	opts.RetryDelay = time.Millisecond

	var mu sync.Mutex
	var controllers []*detector.Controller
	factory := func(ctx context.Context, p host.Page) (Detector, error) {
		c, err := detector.Start(ctx, detector.Deps{
			Page:       p,
			Scheduler:  &hosttest.Scheduler{Interval: time.Millisecond},
			Engine:     staticEngine{},
			Gallery:    staticGallery{},
			Appearance: appearance,
		}, opts)
		if err != nil {
			return nil, err
		}
		mu.Lock()
		controllers = append(controllers, c)
		mu.Unlock()
		return c, nil
	}

	s := New(page, nav, factory, testOptions(), nil)
	runSupervisor(t, s)

	for i := 2; i <= 4; i++ {
		page.Navigate("https://example.com/watch?v="+string(rune('0'+i)), newVideo())
		nav.Mutate()
		time.Sleep(5 * time.Millisecond)
		assert.LessOrEqual(t, len(page.Overlays()), 1)
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		if len(controllers) == 0 {
			return false
		}
		return controllers[len(controllers)-1].State() == detector.Ready
	}, waitFor, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	ids := map[string]bool{}
	for _, c := range controllers {
		ids[c.ID()] = true
	}
	assert.Len(t, ids, len(controllers))
	for _, c := range controllers[:len(controllers)-1] {
		assert.Equal(t, detector.CleanedUp, c.State())
	}
	assert.Len(t, page.Overlays(), 1)
}
