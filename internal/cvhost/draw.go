package cvhost

import (
	"image"
	"image/color"

	"github.com/andresmejia3/faceoverlay/internal/geometry"
	"github.com/andresmejia3/faceoverlay/internal/overlay"
	"gocv.io/x/gocv"
)

const labelFont = gocv.FontHersheySimplex

// composite draws the display list of a layer onto dst. Boxes are stored in
// the layer's backing coordinates and stretched to its display size, the
// same way a canvas element scales its bitmap.
func composite(dst *gocv.Mat, ops []overlay.Op, backing, display geometry.Size) {
	bounds := image.Pt(dst.Cols(), dst.Rows())
	for _, op := range ops {
		r := geometry.Rescale(op.Box, backing, display).Rect()
		gocv.Rectangle(dst, r, op.Style.Color, max(op.Style.LineWidth, 1))
		if op.Label != "" {
			drawLabel(dst, r, op.Label, op.Style.Label, bounds)
		}
	}
}

// drawLabel renders text on a translucent field anchored at the box's bottom
// left corner.
func drawLabel(dst *gocv.Mat, box image.Rectangle, text string, ls overlay.LabelStyle, bounds image.Point) {
	thickness := labelThickness(ls.FontScale)
	textSize := gocv.GetTextSize(text, labelFont, ls.FontScale, thickness)
	field := labelRect(box, textSize, ls.Padding, bounds)
	if field.Empty() {
		return
	}

	fillTranslucent(dst, field, ls.Background)
	origin := image.Pt(field.Min.X+ls.Padding, field.Max.Y-ls.Padding)
	gocv.PutText(dst, text, origin, labelFont, ls.FontScale, ls.FontColor, thickness)
}

func fillTranslucent(dst *gocv.Mat, r image.Rectangle, c color.RGBA) {
	if c.A == 255 {
		gocv.Rectangle(dst, r, c, -1)
		return
	}
	roi := dst.Region(r)
	defer roi.Close()
	fill := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(float64(c.B), float64(c.G), float64(c.R), 0), roi.Rows(), roi.Cols(), roi.Type())
	defer fill.Close()
	alpha := float64(c.A) / 255
	gocv.AddWeighted(fill, alpha, roi, 1-alpha, 0, &roi)
}

// labelRect places a field big enough for text plus padding under box, kept
// inside bounds.
func labelRect(box image.Rectangle, text image.Point, padding int, bounds image.Point) image.Rectangle {
	w := text.X + 2*padding
	h := text.Y + 2*padding
	x, y := box.Min.X, box.Max.Y
	if x+w > bounds.X {
		x = bounds.X - w
	}
	if y+h > bounds.Y {
		y = bounds.Y - h
	}
	x = max(x, 0)
	y = max(y, 0)
	return image.Rect(x, y, x+w, y+h).Intersect(image.Rect(0, 0, bounds.X, bounds.Y))
}

func labelThickness(scale float64) int {
	return max(1, int(scale*2+0.5))
}
