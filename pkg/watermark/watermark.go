// Package watermark draws a logo onto an enhanced photo.
package watermark

import (
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"

	"github.com/menta2k/photo-enhancer/pkg/processing"
	"github.com/menta2k/photo-enhancer/pkg/types"
)

// DefaultQuality is the JPEG quality of composited output
const DefaultQuality = 92

const (
	// WidthRatio is the logo width as a fraction of the base width
	WidthRatio = 0.18
	// Margin is the gap in pixels from the side and bottom edges
	Margin = 20
)

// Persisted opacity settings stay within this range
const (
	MinOpacity = 30
	MaxOpacity = 100
)

var (
	ErrInvalidPosition = errors.New("invalid watermark position")
	ErrInvalidOpacity  = errors.New("watermark opacity must be between 30 and 100")
)

// ValidateOpacity checks a user-chosen opacity setting
func ValidateOpacity(opacity int) error {
	if opacity < MinOpacity || opacity > MaxOpacity {
		return fmt.Errorf("%w: got %d", ErrInvalidOpacity, opacity)
	}
	return nil
}

// Compositor overlays logos and re-encodes the result
type Compositor struct {
	quality int
}

// New creates a Compositor. A quality outside 1-100 falls back to DefaultQuality.
func New(quality int) *Compositor {
	if quality < 1 || quality > 100 {
		quality = DefaultQuality
	}
	return &Compositor{quality: quality}
}

// Apply decodes base and logo, composites them and returns JPEG bytes.
// Decode errors are returned wrapped in processing.ErrDecode.
func (c *Compositor) Apply(base, logo []byte, pos types.Position, opacity int) ([]byte, error) {
	if pos != types.BottomLeft && pos != types.BottomRight {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPosition, pos)
	}

	baseImg, err := processing.Decode(base)
	if err != nil {
		return nil, fmt.Errorf("watermark base: %w", err)
	}
	logoImg, err := processing.Decode(logo)
	if err != nil {
		return nil, fmt.Errorf("watermark logo: %w", err)
	}

	out, err := processing.EncodeJPEG(Composite(baseImg, logoImg, pos, opacity), c.quality)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}
	return out, nil
}

// Placement returns where a logo of logoW x logoH lands on a base of
// baseW x baseH after scaling it to WidthRatio of the base width
func Placement(baseW, baseH, logoW, logoH int, pos types.Position) image.Rectangle {
	if logoW <= 0 || logoH <= 0 {
		return image.Rectangle{}
	}

	w := int(math.Round(float64(baseW) * WidthRatio))
	if w < 1 {
		w = 1
	}
	h := int(math.Round(float64(w) * float64(logoH) / float64(logoW)))
	if h < 1 {
		h = 1
	}

	x := Margin
	if pos == types.BottomRight {
		x = baseW - w - Margin
	}
	y := baseH - h - Margin

	return image.Rect(x, y, x+w, y+h)
}

// Composite draws logo onto a copy of base with alpha opacity/100.
// Opacity is clamped to [0,100].
func Composite(base, logo image.Image, pos types.Position, opacity int) *image.NRGBA {
	if opacity < 0 {
		opacity = 0
	} else if opacity > 100 {
		opacity = 100
	}

	bb, lb := base.Bounds(), logo.Bounds()
	rect := Placement(bb.Dx(), bb.Dy(), lb.Dx(), lb.Dy(), pos)
	if rect.Empty() {
		return imaging.Clone(base)
	}

	scaled := imaging.Resize(logo, rect.Dx(), rect.Dy(), imaging.Lanczos)
	return imaging.Overlay(base, scaled, rect.Min.Add(bb.Min), float64(opacity)/100)
}
