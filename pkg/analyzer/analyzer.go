// Package analyzer asks a vision model for tone-adjustment parameters.
//
// Analyze never fails: network errors, non-2xx answers and malformed
// replies are logged and replaced with DefaultParameters. The Result
// records which path was taken so callers and tests can tell them apart.
package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/menta2k/photo-enhancer/pkg/client"
	"github.com/menta2k/photo-enhancer/pkg/processing"
	"github.com/menta2k/photo-enhancer/pkg/types"
)

// DefaultPrompt asks for one JSON object with the seven tone fields. The
// requested ranges are narrower than the clamp domains in pkg/types.
const DefaultPrompt = `You are a professional photo retoucher. Look at this photo and decide how to improve its tone and color.
Respond with ONLY a JSON object, no markdown and no explanation, using exactly this schema:
{
  "brightness": number between 0.85 and 1.25 (1.0 = unchanged),
  "contrast": number between 0.9 and 1.3 (1.0 = unchanged),
  "saturation": number between 0.9 and 1.3 (1.0 = unchanged),
  "warmth": number between -15 and 15 (0 = unchanged, positive = warmer),
  "shadows": number between 0 and 40 (how much to lift dark areas),
  "highlights": number between 0 and 30 (how much to recover bright areas),
  "sharpness": number between 0 and 0.8 (0 = no sharpening)
}
Prefer subtle, natural corrections.`

const (
	DefaultTemperature = 0.2
	DefaultMaxTokens   = 256
	sendQuality        = 85
)

// ErrNoObject is returned by ParseParameters when the reply holds no JSON object
var ErrNoObject = errors.New("model reply is not a JSON object")

// Source tells where a Result's parameters came from
type Source string

const (
	SourceModel    Source = "model"
	SourceDefaults Source = "defaults"
)

// Result is the outcome of one analysis
type Result struct {
	Params types.EnhancementParameters
	Source Source
	// Reason is the absorbed error when Source is SourceDefaults
	Reason error
}

// DefaultParameters is the static set used whenever analysis is skipped or fails
func DefaultParameters() types.EnhancementParameters {
	return types.EnhancementParameters{
		Brightness: 1.05,
		Contrast:   1.1,
		Saturation: 1.1,
		Warmth:     3,
		Shadows:    15,
		Highlights: 10,
		Sharpness:  0.3,
	}
}

// NeutralParameters leaves every pixel unchanged
func NeutralParameters() types.EnhancementParameters {
	return types.EnhancementParameters{Brightness: 1, Contrast: 1, Saturation: 1}
}

// Analyzer sends photos to a vision model
type Analyzer struct {
	client      client.VisionClient
	model       string
	prompt      string
	temperature float32
	maxTokens   int
	sendSize    int
}

// Option configures an Analyzer
type Option func(*Analyzer)

// WithTemperature sets the sampling temperature
func WithTemperature(t float32) Option {
	return func(a *Analyzer) { a.temperature = t }
}

// WithMaxTokens bounds the reply length
func WithMaxTokens(n int) Option {
	return func(a *Analyzer) {
		if n > 0 {
			a.maxTokens = n
		}
	}
}

// WithSendSize downscales images to n pixels on the long side before upload.
// Zero sends the original bytes.
func WithSendSize(n int) Option {
	return func(a *Analyzer) { a.sendSize = n }
}

// WithPrompt replaces DefaultPrompt
func WithPrompt(p string) Option {
	return func(a *Analyzer) {
		if strings.TrimSpace(p) != "" {
			a.prompt = p
		}
	}
}

// New creates an Analyzer backed by c. A nil client makes every call fall
// back to the defaults.
func New(c client.VisionClient, model string, opts ...Option) *Analyzer {
	a := &Analyzer{
		client:      c,
		model:       model,
		prompt:      DefaultPrompt,
		temperature: DefaultTemperature,
		maxTokens:   DefaultMaxTokens,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Model returns the configured model name
func (a *Analyzer) Model() string {
	return a.model
}

// Analyze returns parameters for the image. It does not return an error.
func (a *Analyzer) Analyze(ctx context.Context, image []byte, mimeType string) Result {
	params, err := a.analyze(ctx, image, mimeType)
	if err != nil {
		log.Warn().Err(err).Str("model", a.model).Msg("Tone analysis failed, using default parameters")
		return Result{Params: DefaultParameters(), Source: SourceDefaults, Reason: err}
	}
	return Result{Params: params, Source: SourceModel}
}

func (a *Analyzer) analyze(ctx context.Context, image []byte, mimeType string) (types.EnhancementParameters, error) {
	if a.client == nil {
		return types.EnhancementParameters{}, errors.New("no vision client configured")
	}

	payload, payloadMIME, err := processing.PrepareForModel(image, mimeType, a.sendSize, sendQuality)
	if err != nil {
		return types.EnhancementParameters{}, err
	}

	start := time.Now()
	raw, err := a.client.GenerateJSON(ctx, client.Request{
		Model:       a.model,
		Prompt:      a.prompt,
		Image:       payload,
		MIMEType:    payloadMIME,
		Temperature: a.temperature,
		MaxTokens:   a.maxTokens,
	})
	if err != nil {
		return types.EnhancementParameters{}, err
	}

	log.Debug().
		Str("model", a.model).
		Dur("duration", time.Since(start)).
		Str("raw", raw).
		Msg("Tone analysis reply")

	return ParseParameters(raw)
}

// ParseParameters reads the model reply. Fields that are missing or not
// numbers take their default value; every field is then clamped.
func ParseParameters(raw string) (types.EnhancementParameters, error) {
	cleaned := sanitizeModelJSON(raw)

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &fields); err != nil {
		return types.EnhancementParameters{}, fmt.Errorf("%w: %v", ErrNoObject, err)
	}
	if fields == nil {
		return types.EnhancementParameters{}, ErrNoObject
	}

	def := DefaultParameters()
	p := types.EnhancementParameters{
		Brightness: numberOr(fields, "brightness", def.Brightness),
		Contrast:   numberOr(fields, "contrast", def.Contrast),
		Saturation: numberOr(fields, "saturation", def.Saturation),
		Warmth:     numberOr(fields, "warmth", def.Warmth),
		Shadows:    numberOr(fields, "shadows", def.Shadows),
		Highlights: numberOr(fields, "highlights", def.Highlights),
		Sharpness:  numberOr(fields, "sharpness", def.Sharpness),
	}
	return p.Clamp(), nil
}

func numberOr(fields map[string]json.RawMessage, key string, fallback float64) float64 {
	raw, ok := fields[key]
	if !ok {
		return fallback
	}
	// null decodes without error, so it is detected through the pointer
	var v *float64
	if err := json.Unmarshal(raw, &v); err != nil || v == nil {
		return fallback
	}
	return *v
}

var (
	reBlockComment = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reLineComment  = regexp.MustCompile(`(?m)^\s*//.*$`)
	reTrailing     = regexp.MustCompile(`,(\s*[}\]])`)
)

// sanitizeModelJSON strips fences, comments, trailing commas and any prose
// around the outermost object
func sanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.Trim(strings.TrimSpace(raw), "`")

	raw = reBlockComment.ReplaceAllString(raw, "")
	raw = reLineComment.ReplaceAllString(raw, "")
	raw = reTrailing.ReplaceAllString(raw, "$1")

	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}
	return strings.TrimSpace(raw)
}
