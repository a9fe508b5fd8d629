package client

import (
	"context"
	"fmt"
)

// Request is a single image + instruction prompt sent to a vision model
type Request struct {
	Model       string
	Prompt      string
	Image       []byte
	MIMEType    string
	Temperature float32
	MaxTokens   int
}

// VisionClient asks a multimodal model for a JSON-only answer about an image
type VisionClient interface {
	GenerateJSON(ctx context.Context, req Request) (string, error)
}

// StatusError is returned when a backend answers with a non-2xx status
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("vision backend returned status %d: %s", e.Code, body)
}
