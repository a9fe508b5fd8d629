package processing

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"os"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// ErrDecode marks input bytes that no registered decoder could read
var ErrDecode = errors.New("image decode failed")

// Decode decodes image bytes into a non-premultiplied RGBA buffer with WebP support
func Decode(data []byte) (*image.NRGBA, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrDecode)
	}

	// Try standard image.Decode first
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		// Try WebP decode
		var werr error
		img, werr = webp.Decode(bytes.NewReader(data))
		if werr != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}
	}

	return imaging.Clone(img), nil
}

// DecodeConfig reads only the header to report dimensions and format
func DecodeConfig(data []byte) (image.Config, string, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		if wcfg, werr := webp.DecodeConfig(bytes.NewReader(data)); werr == nil {
			return wcfg, "webp", nil
		}
		return image.Config{}, "", fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return cfg, format, nil
}

// LoadFile reads and decodes an image file
func LoadFile(path string) (*image.NRGBA, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image file: %w", err)
	}
	return Decode(data)
}

// EncodeJPEG encodes img as JPEG at the given quality (1-100)
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	if quality < 1 || quality > 100 {
		return nil, fmt.Errorf("jpeg quality must be between 1 and 100, got %d", quality)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// PrepareForModel shrinks an image so its long side is at most maxDim and
// re-encodes it as JPEG. maxDim <= 0 returns the original bytes untouched.
func PrepareForModel(data []byte, mimeType string, maxDim, quality int) ([]byte, string, error) {
	if maxDim <= 0 {
		return data, mimeType, nil
	}

	cfg, _, err := DecodeConfig(data)
	if err != nil {
		return nil, "", err
	}
	if cfg.Width <= maxDim && cfg.Height <= maxDim {
		return data, mimeType, nil
	}

	img, err := Decode(data)
	if err != nil {
		return nil, "", err
	}

	var resized *image.NRGBA
	if cfg.Width >= cfg.Height {
		resized = imaging.Resize(img, maxDim, 0, imaging.Lanczos)
	} else {
		resized = imaging.Resize(img, 0, maxDim, imaging.Lanczos)
	}

	out, err := EncodeJPEG(resized, quality)
	if err != nil {
		return nil, "", err
	}
	return out, "image/jpeg", nil
}

// Clamp8 bounds v to [0,255] and rounds it to the nearest 8-bit value
func Clamp8(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v + 0.5)
}
