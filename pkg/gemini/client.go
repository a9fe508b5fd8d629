// Package gemini is the Gemini API backend for tone analysis.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"github.com/menta2k/photo-enhancer/pkg/client"
)

// DefaultModel is used when no model name is configured
const DefaultModel = "gemini-2.5-flash"

// Options tune the underlying genai client
type Options struct {
	// BaseURL overrides the API endpoint (tests, proxies)
	BaseURL string
	// Timeout bounds each request; zero leaves it unbounded
	Timeout time.Duration
	// HTTPClient replaces the default transport
	HTTPClient *http.Client
}

// Client calls generateContent with an inline image part
type Client struct {
	genai   *genai.Client
	timeout time.Duration
}

// NewClient creates a Gemini API client authenticated with apiKey
func NewClient(ctx context.Context, apiKey string, opts Options) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: API key is required")
	}

	cfg := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: opts.HTTPClient,
	}
	if opts.BaseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: opts.BaseURL}
	}

	gc, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: failed to create client: %w", err)
	}

	return &Client{genai: gc, timeout: opts.Timeout}, nil
}

// GenerateJSON sends the image and instruction and returns the JSON text reply
func (c *Client) GenerateJSON(ctx context.Context, req client.Request) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	model := req.Model
	if model == "" {
		model = DefaultModel
	}

	config := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(req.Temperature),
		ResponseMIMEType: "application/json",
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}

	parts := []*genai.Part{
		{Text: req.Prompt},
		{InlineData: &genai.Blob{MIMEType: req.MIMEType, Data: req.Image}},
	}
	contents := []*genai.Content{{Role: genai.RoleUser, Parts: parts}}

	start := time.Now()
	resp, err := c.genai.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return "", &client.StatusError{Code: apiErr.Code, Body: apiErr.Message}
		}
		var apiErrPtr *genai.APIError
		if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
			return "", &client.StatusError{Code: apiErrPtr.Code, Body: apiErrPtr.Message}
		}
		return "", fmt.Errorf("gemini: generate content: %w", err)
	}
	if resp == nil {
		return "", errors.New("gemini: empty response")
	}

	text := resp.Text()
	log.Debug().
		Str("model", model).
		Int("response_length", len(text)).
		Dur("duration", time.Since(start)).
		Msg("Gemini tone analysis response received")

	if text == "" {
		return "", errors.New("gemini: response has no text")
	}
	return text, nil
}
