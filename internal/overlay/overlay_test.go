package overlay

import (
	"image/color"
	"sync"
	"testing"

	"github.com/andresmejia3/faceoverlay/internal/geometry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseColor(t *testing.T) {
	tests := []struct {
		in   string
		want color.RGBA
	}{
		{"#FF0000", color.RGBA{R: 255, A: 255}},
		{"#0f0", color.RGBA{G: 255, A: 255}},
		{"#00000080", color.RGBA{A: 128}},
		{"rgb(1, 2, 3)", color.RGBA{R: 1, G: 2, B: 3, A: 255}},
		{"rgba(0, 0, 0, 0.7)", color.RGBA{A: 179}},
		{" Red ", color.RGBA{R: 255, A: 255}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseColor(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseColorErrors(t *testing.T) {
	for _, in := range []string{"", "#12", "#gggggg", "rgb(1,2)", "rgb(1,2,300)", "rgba(1,2,3,2)", "hsl(1,2,3)"} {
		_, err := ParseColor(in)
		assert.Error(t, err, in)
	}
}

func TestFormatColor(t *testing.T) {
	assert.Equal(t, "#FF0000", FormatColor(color.RGBA{R: 255, A: 255}))
	assert.Equal(t, "#000000B2", FormatColor(color.RGBA{A: 178}))
}

func TestLayerDrawAndClear(t *testing.T) {
	l := NewLayer(geometry.Size{Width: 640, Height: 360}, nil)
	l.DrawBox(geometry.Box{X: 1, Y: 2, Width: 3, Height: 4}, "Alice", DefaultStyle())

	ops, size := l.Snapshot()
	require.Len(t, ops, 1)
	assert.Equal(t, "Alice", ops[0].Label)
	assert.Equal(t, geometry.Size{Width: 640, Height: 360}, size)

	l.Clear()
	ops, _ = l.Snapshot()
	assert.Empty(t, ops)
}

func TestLayerResizeSetsBothSizes(t *testing.T) {
	l := NewLayer(geometry.Size{Width: 10, Height: 10}, nil)
	l.Resize(geometry.Size{Width: 1280, Height: 720})
	assert.Equal(t, l.BackingSize(), l.DisplaySize())
	assert.Equal(t, geometry.Size{Width: 1280, Height: 720}, l.DisplaySize())
}

func TestLayerRemoveIsIdempotent(t *testing.T) {
	calls := 0
	l := NewLayer(geometry.Size{Width: 1, Height: 1}, func() { calls++ })
	assert.True(t, l.Attached())

	l.Remove()
	l.Remove()
	assert.False(t, l.Attached())
	assert.Equal(t, 1, calls)

	l.DrawBox(geometry.Box{}, "late", DefaultStyle())
	ops, _ := l.Snapshot()
	assert.Empty(t, ops)
}

func TestAppearanceSetColor(t *testing.T) {
	a := NewAppearance(DefaultStyle())
	green := color.RGBA{G: 255, A: 255}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = a.Style()
		}()
	}
	a.SetColor(green)
	wg.Wait()

	assert.Equal(t, green, a.Style().Color)
	assert.Equal(t, 2, a.Style().LineWidth)
}
