package geometry

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRescale(t *testing.T) {
	tests := []struct {
		name string
		box  Box
		from Size
		to   Size
		want Box
	}{
		{
			name: "upscale uniform",
			box:  Box{X: 10, Y: 20, Width: 30, Height: 40},
			from: Size{Width: 416, Height: 234},
			to:   Size{Width: 832, Height: 468},
			want: Box{X: 20, Y: 40, Width: 60, Height: 80},
		},
		{
			name: "stretched display scales axes independently",
			box:  Box{X: 100, Y: 100, Width: 50, Height: 50},
			from: Size{Width: 400, Height: 200},
			to:   Size{Width: 800, Height: 100},
			want: Box{X: 200, Y: 50, Width: 100, Height: 25},
		},
		{
			name: "same size is identity",
			box:  Box{X: 1, Y: 2, Width: 3, Height: 4},
			from: Size{Width: 640, Height: 360},
			to:   Size{Width: 640, Height: 360},
			want: Box{X: 1, Y: 2, Width: 3, Height: 4},
		},
		{
			name: "empty source leaves box untouched",
			box:  Box{X: 1, Y: 2, Width: 3, Height: 4},
			from: Size{},
			to:   Size{Width: 640, Height: 360},
			want: Box{X: 1, Y: 2, Width: 3, Height: 4},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Rescale(tt.box, tt.from, tt.to)
			assert.InDelta(t, tt.want.X, got.X, 1e-9)
			assert.InDelta(t, tt.want.Y, got.Y, 1e-9)
			assert.InDelta(t, tt.want.Width, got.Width, 1e-9)
			assert.InDelta(t, tt.want.Height, got.Height, 1e-9)
		})
	}
}

func TestBoxRect(t *testing.T) {
	b := Box{X: 10.4, Y: 10.6, Width: 20.2, Height: 5.5}
	assert.Equal(t, image.Rect(10, 11, 31, 16), b.Rect())
}

func TestSizeEmpty(t *testing.T) {
	assert.True(t, Size{}.Empty())
	assert.True(t, Size{Width: 10}.Empty())
	assert.False(t, Size{Width: 1, Height: 1}.Empty())
	assert.Equal(t, "640x360", Size{Width: 640, Height: 360}.String())
}
