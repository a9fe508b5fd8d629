package types

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// EnhancementParameters is the seven-field tone recipe applied to one photo
type EnhancementParameters struct {
	Brightness float64 `json:"brightness"`
	Contrast   float64 `json:"contrast"`
	Saturation float64 `json:"saturation"`
	Warmth     float64 `json:"warmth"`
	Shadows    float64 `json:"shadows"`
	Highlights float64 `json:"highlights"`
	Sharpness  float64 `json:"sharpness"`
}

// Range is a closed numeric interval
type Range struct {
	Min float64
	Max float64
}

// Clamp bounds v to the range
func (r Range) Clamp(v float64) float64 {
	if v < r.Min {
		return r.Min
	}
	if v > r.Max {
		return r.Max
	}
	return v
}

// Contains reports whether v lies inside the range
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// Domains of every parameter after clamping.
var (
	BrightnessRange = Range{0.80, 1.30}
	ContrastRange   = Range{0.85, 1.40}
	SaturationRange = Range{0.85, 1.35}
	WarmthRange     = Range{-20, 20}
	ShadowsRange    = Range{0, 50}
	HighlightsRange = Range{0, 40}
	SharpnessRange  = Range{0, 1}
)

// Clamp returns a copy with every field bounded to its domain
func (p EnhancementParameters) Clamp() EnhancementParameters {
	return EnhancementParameters{
		Brightness: BrightnessRange.Clamp(p.Brightness),
		Contrast:   ContrastRange.Clamp(p.Contrast),
		Saturation: SaturationRange.Clamp(p.Saturation),
		Warmth:     WarmthRange.Clamp(p.Warmth),
		Shadows:    ShadowsRange.Clamp(p.Shadows),
		Highlights: HighlightsRange.Clamp(p.Highlights),
		Sharpness:  SharpnessRange.Clamp(p.Sharpness),
	}
}

// InDomain reports whether every field is inside its domain
func (p EnhancementParameters) InDomain() bool {
	return BrightnessRange.Contains(p.Brightness) &&
		ContrastRange.Contains(p.Contrast) &&
		SaturationRange.Contains(p.Saturation) &&
		WarmthRange.Contains(p.Warmth) &&
		ShadowsRange.Contains(p.Shadows) &&
		HighlightsRange.Contains(p.Highlights) &&
		SharpnessRange.Contains(p.Sharpness)
}

// Position is the corner a watermark logo is anchored to
type Position string

const (
	BottomLeft  Position = "bottom-left"
	BottomRight Position = "bottom-right"
)

// ParsePosition accepts "bottom-left" or "bottom-right" (case-insensitive)
func ParsePosition(s string) (Position, error) {
	switch Position(strings.ToLower(strings.TrimSpace(s))) {
	case BottomLeft:
		return BottomLeft, nil
	case BottomRight:
		return BottomRight, nil
	}
	return "", fmt.Errorf("unknown watermark position %q (use bottom-left or bottom-right)", s)
}

// WatermarkConfig describes the logo overlay applied after enhancement
type WatermarkConfig struct {
	Logo     []byte   `json:"-"`
	LogoMIME string   `json:"logo_mime,omitempty"`
	Position Position `json:"position"`
	Opacity  int      `json:"opacity"` // percent
}

// Enabled reports whether a logo is configured
func (w WatermarkConfig) Enabled() bool {
	return len(w.Logo) > 0
}

// Status is the lifecycle tag of a worklist item
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusError      Status = "error"
)

// ProcessedImage is one entry of the batch worklist
type ProcessedImage struct {
	ID       uuid.UUID              `json:"id"`
	Name     string                 `json:"name"`
	MIMEType string                 `json:"mime_type"`
	Source   []byte                 `json:"-"`
	Output   []byte                 `json:"-"`
	Params   *EnhancementParameters `json:"params,omitempty"`
	Status   Status                 `json:"status"`
	Error    string                 `json:"error,omitempty"`
	Attempts int                    `json:"attempts"`
}
