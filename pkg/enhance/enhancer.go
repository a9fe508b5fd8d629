// Package enhance applies a tone recipe to raw pixel buffers.
//
// The tone pass runs per pixel on the RGB channels in a fixed order:
// shadow lift, highlight recovery, brightness, contrast, warmth and
// saturation. Intermediate values stay in float64 and are clamped to
// [0,255] once at the end. An optional single-radius unsharp mask runs
// afterwards against a blurred copy of the toned image. Alpha is never
// modified.
package enhance

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	"github.com/menta2k/photo-enhancer/pkg/processing"
	"github.com/menta2k/photo-enhancer/pkg/types"
)

// DefaultQuality is the JPEG quality used for enhanced output
const DefaultQuality = 93

const (
	midpoint        = 128.0
	highlightKnee   = 200.0
	highlightSpan   = 55.0
	warmthBlueRatio = 0.6
	blurSigma       = 1.0
)

// Enhancer decodes, tones and re-encodes photos
type Enhancer struct {
	quality int
}

// New creates an Enhancer that encodes at the given JPEG quality.
// A quality outside 1-100 falls back to DefaultQuality.
func New(quality int) *Enhancer {
	if quality < 1 || quality > 100 {
		quality = DefaultQuality
	}
	return &Enhancer{quality: quality}
}

// Quality returns the JPEG quality used by Enhance
func (e *Enhancer) Quality() int {
	return e.quality
}

// Enhance decodes data, applies p and returns JPEG bytes. Decode failures
// are returned to the caller wrapped in processing.ErrDecode.
func (e *Enhancer) Enhance(data []byte, p types.EnhancementParameters) ([]byte, error) {
	img, err := processing.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("enhance: %w", err)
	}

	out, err := processing.EncodeJPEG(Apply(img, p), e.quality)
	if err != nil {
		return nil, fmt.Errorf("enhance: %w", err)
	}
	return out, nil
}

// Apply runs the tone pass and, when p.Sharpness > 0, the unsharp mask.
// The source image is not modified.
func Apply(img image.Image, p types.EnhancementParameters) *image.NRGBA {
	toned := tone(img, p, tonePipeline)
	if p.Sharpness > 0 {
		return sharpen(toned, p.Sharpness)
	}
	return toned
}

// rgb holds one pixel's color channels during the tone pass
type rgb struct {
	r, g, b float64
}

type toneStep func(px *rgb, p types.EnhancementParameters)

// tonePipeline is the fixed order of the per-pixel steps
var tonePipeline = []toneStep{
	liftShadows,
	recoverHighlights,
	applyBrightness,
	applyContrast,
	applyWarmth,
	applySaturation,
}

func tone(img image.Image, p types.EnhancementParameters, steps []toneStep) *image.NRGBA {
	dst := imaging.Clone(img)
	w, h := dst.Bounds().Dx(), dst.Bounds().Dy()

	for y := 0; y < h; y++ {
		i := y * dst.Stride
		for x := 0; x < w; x++ {
			px := rgb{
				r: float64(dst.Pix[i+0]),
				g: float64(dst.Pix[i+1]),
				b: float64(dst.Pix[i+2]),
			}
			for _, step := range steps {
				step(&px, p)
			}
			dst.Pix[i+0] = processing.Clamp8(px.r)
			dst.Pix[i+1] = processing.Clamp8(px.g)
			dst.Pix[i+2] = processing.Clamp8(px.b)
			i += 4
		}
	}
	return dst
}

// meanLuminance is the unweighted channel mean used by the shadow and
// highlight steps. Saturation uses perceptual weights instead; the two
// formulas differ on purpose to keep output identical to existing renders.
func meanLuminance(px *rgb) float64 {
	return (px.r + px.g + px.b) / 3
}

func perceptualLuminance(px *rgb) float64 {
	return 0.299*px.r + 0.587*px.g + 0.114*px.b
}

func liftShadows(px *rgb, p types.EnhancementParameters) {
	factor := 1 - meanLuminance(px)/midpoint
	if factor < 0 {
		factor = 0
	}
	lift := p.Shadows * factor
	px.r += lift
	px.g += lift
	px.b += lift
}

func recoverHighlights(px *rgb, p types.EnhancementParameters) {
	lum := meanLuminance(px)
	if lum <= highlightKnee {
		return
	}
	cut := p.Highlights * (lum - highlightKnee) / highlightSpan
	px.r -= cut
	px.g -= cut
	px.b -= cut
}

func applyBrightness(px *rgb, p types.EnhancementParameters) {
	px.r *= p.Brightness
	px.g *= p.Brightness
	px.b *= p.Brightness
}

func applyContrast(px *rgb, p types.EnhancementParameters) {
	px.r = p.Contrast*(px.r-midpoint) + midpoint
	px.g = p.Contrast*(px.g-midpoint) + midpoint
	px.b = p.Contrast*(px.b-midpoint) + midpoint
}

func applyWarmth(px *rgb, p types.EnhancementParameters) {
	px.r += p.Warmth
	px.b -= p.Warmth * warmthBlueRatio
}

func applySaturation(px *rgb, p types.EnhancementParameters) {
	lum := perceptualLuminance(px)
	px.r = lum + p.Saturation*(px.r-lum)
	px.g = lum + p.Saturation*(px.g-lum)
	px.b = lum + p.Saturation*(px.b-lum)
}

// sharpen applies final = orig + amount*(orig - blurred) per channel
func sharpen(img *image.NRGBA, amount float64) *image.NRGBA {
	blurred := imaging.Blur(img, blurSigma)
	dst := imaging.Clone(img)

	for i := 0; i+3 < len(dst.Pix); i += 4 {
		for c := 0; c < 3; c++ {
			orig := float64(img.Pix[i+c])
			dst.Pix[i+c] = processing.Clamp8(orig + amount*(orig-float64(blurred.Pix[i+c])))
		}
	}
	return dst
}
