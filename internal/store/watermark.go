package store

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gabriel-vasile/mimetype"

	"github.com/menta2k/photo-enhancer/pkg/types"
	"github.com/menta2k/photo-enhancer/pkg/watermark"
)

const (
	keyWatermarkLogo     = "watermark.logo"
	keyWatermarkSettings = "watermark.json"
)

// Defaults used before the user has chosen a position or opacity
const (
	DefaultPosition = types.BottomRight
	DefaultOpacity  = 80
)

// WatermarkSettings persists the process-wide watermark configuration
type WatermarkSettings struct {
	kv KV
}

type watermarkRecord struct {
	LogoMIME string         `json:"logo_mime,omitempty"`
	Position types.Position `json:"position"`
	Opacity  int            `json:"opacity"`
}

// NewWatermarkSettings wraps a KV
func NewWatermarkSettings(kv KV) *WatermarkSettings {
	return &WatermarkSettings{kv: kv}
}

// Load returns the saved configuration. With nothing saved it returns a
// config with no logo and the default position and opacity.
func (w *WatermarkSettings) Load() (types.WatermarkConfig, error) {
	rec, err := w.record()
	if err != nil {
		return types.WatermarkConfig{}, err
	}

	cfg := types.WatermarkConfig{
		LogoMIME: rec.LogoMIME,
		Position: rec.Position,
		Opacity:  rec.Opacity,
	}

	logo, err := w.kv.Get(keyWatermarkLogo)
	switch {
	case err == nil:
		cfg.Logo = logo
	case errors.Is(err, ErrNotFound):
	default:
		return types.WatermarkConfig{}, err
	}
	return cfg, nil
}

// SetLogo stores a new logo. Only PNG, JPEG and WebP images are accepted.
func (w *WatermarkSettings) SetLogo(logo []byte) error {
	mt := mimetype.Detect(logo)
	if !mt.Is("image/png") && !mt.Is("image/jpeg") && !mt.Is("image/webp") {
		return fmt.Errorf("unsupported logo type %s", mt.String())
	}

	rec, err := w.record()
	if err != nil {
		return err
	}
	if err := w.kv.Put(keyWatermarkLogo, logo); err != nil {
		return err
	}
	rec.LogoMIME = mt.String()
	return w.save(rec)
}

// SetPosition stores the logo corner
func (w *WatermarkSettings) SetPosition(pos types.Position) error {
	if pos != types.BottomLeft && pos != types.BottomRight {
		return fmt.Errorf("%w: %q", watermark.ErrInvalidPosition, pos)
	}
	rec, err := w.record()
	if err != nil {
		return err
	}
	rec.Position = pos
	return w.save(rec)
}

// SetOpacity stores the opacity percentage, which must lie in [30,100]
func (w *WatermarkSettings) SetOpacity(opacity int) error {
	if err := watermark.ValidateOpacity(opacity); err != nil {
		return err
	}
	rec, err := w.record()
	if err != nil {
		return err
	}
	rec.Opacity = opacity
	return w.save(rec)
}

// Clear removes the logo and resets position and opacity
func (w *WatermarkSettings) Clear() error {
	if err := w.kv.Delete(keyWatermarkLogo); err != nil {
		return err
	}
	return w.kv.Delete(keyWatermarkSettings)
}

func (w *WatermarkSettings) record() (watermarkRecord, error) {
	rec := watermarkRecord{Position: DefaultPosition, Opacity: DefaultOpacity}

	data, err := w.kv.Get(keyWatermarkSettings)
	if errors.Is(err, ErrNotFound) {
		return rec, nil
	}
	if err != nil {
		return rec, err
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("corrupt watermark settings: %w", err)
	}
	return rec, nil
}

func (w *WatermarkSettings) save(rec watermarkRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return w.kv.Put(keyWatermarkSettings, data)
}
