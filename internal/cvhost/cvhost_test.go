package cvhost

import (
	"image"
	"image/color"
	"regexp"
	"testing"

	"github.com/andresmejia3/faceoverlay/internal/geometry"
	"github.com/andresmejia3/faceoverlay/internal/host"
	"github.com/andresmejia3/faceoverlay/internal/overlay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func TestActionFor(t *testing.T) {
	tests := []struct {
		key  int
		want action
	}{
		{'q', actionQuit},
		{keyEscape, actionQuit},
		{' ', actionPause},
		{'n', actionNext},
		{'p', actionPrev},
		{',', actionSeekBack},
		{keyLeftGTK, actionSeekBack},
		{keyRightWin32, actionSeekForward},
		{'.', actionSeekForward},
		{'+', actionGrow},
		{'-', actionShrink},
		{-1, actionNone},
		{'x', actionNone},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, actionFor(tt.key), "key %d", tt.key)
	}
}

func TestLabelRect(t *testing.T) {
	bounds := image.Pt(200, 100)
	text := image.Pt(40, 10)

	t.Run("below the box", func(t *testing.T) {
		r := labelRect(image.Rect(10, 10, 60, 50), text, 5, bounds)
		assert.Equal(t, image.Rect(10, 50, 60, 70), r)
	})

	t.Run("pushed up at the bottom edge", func(t *testing.T) {
		r := labelRect(image.Rect(10, 10, 60, 95), text, 5, bounds)
		assert.Equal(t, image.Rect(10, 80, 60, 100), r)
	})

	t.Run("pushed left at the right edge", func(t *testing.T) {
		r := labelRect(image.Rect(180, 10, 199, 50), text, 5, bounds)
		assert.Equal(t, image.Rect(150, 50, 200, 70), r)
	})

	t.Run("clipped when larger than the frame", func(t *testing.T) {
		r := labelRect(image.Rect(0, 0, 10, 10), image.Pt(400, 10), 0, bounds)
		assert.Equal(t, image.Rect(0, 10, 200, 20), r)
	})
}

func TestFitSize(t *testing.T) {
	display := geometry.Size{Width: 1280, Height: 720}
	assert.Equal(t, display, fitSize(geometry.Size{Width: 1920, Height: 1080}, display))
	assert.Equal(t, geometry.Size{Width: 960, Height: 720}, fitSize(geometry.Size{Width: 640, Height: 480}, display))
	assert.Equal(t, display, fitSize(geometry.Size{}, display))
}

func TestScaleSizeKeepsMinimum(t *testing.T) {
	assert.Equal(t, geometry.Size{Width: 2, Height: 2}, scaleSize(geometry.Size{Width: 3, Height: 3}, 0.1))
	assert.Equal(t, geometry.Size{Width: 110, Height: 55}, scaleSize(geometry.Size{Width: 100, Height: 50}, 1.1))
}

func TestWrapIndex(t *testing.T) {
	assert.Equal(t, 0, wrapIndex(3, 3))
	assert.Equal(t, 2, wrapIndex(-1, 3))
	assert.Equal(t, 1, wrapIndex(1, 3))
}

func TestSourceURLIsWatchPage(t *testing.T) {
	u := sourceURL(2, "/videos/a clip.mp4")
	assert.Regexp(t, regexp.MustCompile(`/watch`), u)
	assert.Contains(t, u, "v=2")
	assert.NotEqual(t, u, sourceURL(3, "/videos/a clip.mp4"))
}

func TestCompositeRescalesBoxes(t *testing.T) {
	frame := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 100, 200, gocv.MatTypeCV8UC3)
	defer frame.Close()

	style := overlay.DefaultStyle()
	ops := []overlay.Op{{Box: geometry.Box{X: 10, Y: 10, Width: 50, Height: 40}, Style: style}}
	composite(&frame, ops, geometry.Size{Width: 100, Height: 50}, geometry.Size{Width: 200, Height: 100})

	// Backing (10,10) maps to display (20,20); the left edge runs down x=20.
	left := frame.GetVecbAt(50, 20)
	assert.Equal(t, []uint8{0, 0, 255}, []uint8{left[0], left[1], left[2]})

	inside := frame.GetVecbAt(50, 60)
	assert.Equal(t, []uint8{0, 0, 0}, []uint8{inside[0], inside[1], inside[2]})
}

func TestCompositeLabelAtEdge(t *testing.T) {
	frame := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 100, 200, gocv.MatTypeCV8UC3)
	defer frame.Close()

	style := overlay.DefaultStyle()
	style.Label.Background = color.RGBA{R: 0, G: 0, B: 255, A: 255}
	ops := []overlay.Op{{Box: geometry.Box{X: 150, Y: 60, Width: 49, Height: 39}, Label: "Alice (0.31)", Style: style}}
	composite(&frame, ops, geometry.Size{Width: 200, Height: 100}, geometry.Size{Width: 200, Height: 100})

	// The label field is pushed inside the frame at the bottom right corner.
	corner := frame.GetVecbAt(99, 199)
	assert.Equal(t, uint8(255), corner[0])
}

func TestVideoFrameAndListeners(t *testing.T) {
	v := newVideo(geometry.Size{Width: 64, Height: 32})
	assert.Equal(t, host.HaveMetadata, v.ReadyState())

	_, err := v.Frame()
	assert.ErrorIs(t, err, errNoFrame)

	m := gocv.NewMatWithSize(32, 64, gocv.MatTypeCV8UC3)
	defer m.Close()
	v.setFrame(m)
	assert.Equal(t, host.HaveEnoughData, v.ReadyState())

	img, err := v.Frame()
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 64, 32), img.Bounds())

	seeks := 0
	var sizes []geometry.Size
	removeSeek := v.OnSeeked(func() { seeks++ })
	removeResize := v.OnResize(func(s geometry.Size) { sizes = append(sizes, s) })

	v.setEnded()
	v.fireSeeked()
	assert.Equal(t, 1, seeks)
	assert.False(t, v.Ended())

	v.resizeTo(geometry.Size{Width: 70, Height: 35})
	assert.Equal(t, []geometry.Size{{Width: 70, Height: 35}}, sizes)

	removeSeek()
	removeResize()
	v.fireSeeked()
	v.resizeTo(geometry.Size{Width: 80, Height: 40})
	assert.Equal(t, 1, seeks)
	assert.Len(t, sizes, 1)

	assert.True(t, v.playing())
	assert.True(t, v.togglePause())
	assert.False(t, v.playing())

	v.detach()
	assert.False(t, v.Attached())
	_, err = v.Frame()
	assert.Error(t, err)
}
