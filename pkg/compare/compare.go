// Package compare renders before/after split views.
package compare

import (
	"errors"
	"image"
	"math"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
)

// DividerWidth is the stroke width of the split line in pixels
const DividerWidth = 2.0

// ClipX returns the x coordinate of the split line for a view of the given
// width. position is clamped to [0,1].
func ClipX(width int, position float64) int {
	if math.IsNaN(position) || position < 0 {
		position = 0
	} else if position > 1 {
		position = 1
	}
	return int(math.Round(float64(width) * position))
}

// Render draws before to the left of the split and after to the right.
// after is resized to before's size when they differ.
func Render(before, after image.Image, position float64) (image.Image, error) {
	if before == nil || after == nil {
		return nil, errors.New("compare: both images are required")
	}

	bb := before.Bounds()
	w, h := bb.Dx(), bb.Dy()
	if w == 0 || h == 0 {
		return nil, errors.New("compare: empty image")
	}
	if ab := after.Bounds(); ab.Dx() != w || ab.Dy() != h {
		after = imaging.Resize(after, w, h, imaging.Lanczos)
	}

	x := ClipX(w, position)

	dc := gg.NewContext(w, h)
	dc.DrawImage(imaging.Clone(before), 0, 0)

	if x < w {
		dc.DrawRectangle(float64(x), 0, float64(w-x), float64(h))
		dc.Clip()
		dc.DrawImage(imaging.Clone(after), 0, 0)
		dc.ResetClip()
	}

	dc.SetRGB(1, 1, 1)
	dc.SetLineWidth(DividerWidth)
	dc.DrawLine(float64(x), 0, float64(x), float64(h))
	dc.Stroke()

	return dc.Image(), nil
}
