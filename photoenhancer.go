// Package photoenhancer improves photos with tone parameters picked by a
// vision model.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"log"
//		"os"
//
//		photoenhancer "github.com/menta2k/photo-enhancer"
//		"github.com/menta2k/photo-enhancer/pkg/batch"
//		"github.com/menta2k/photo-enhancer/pkg/types"
//	)
//
//	func main() {
//		ctx := context.Background()
//
//		vc, err := photoenhancer.NewVisionClient(ctx, photoenhancer.VisionOptions{
//			Backend: photoenhancer.BackendGemini,
//			APIKey:  os.Getenv("GEMINI_API_KEY"),
//		})
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		pe := photoenhancer.New(photoenhancer.Config{Vision: vc})
//		b := pe.NewBatch()
//
//		data, _ := os.ReadFile("photo.jpg")
//		b.Add(batch.Source{Name: "photo.jpg", Data: data})
//
//		if _, err := b.ProcessBatch(ctx, types.WatermarkConfig{}); err != nil {
//			log.Fatal(err)
//		}
//		for _, item := range b.Done() {
//			os.WriteFile("photo_enhanced.jpg", item.Output, 0644)
//		}
//	}
//
// The package ties together four components:
//
// 1. Analyzer (pkg/analyzer): asks a vision model for seven tone parameters
// 2. Enhancer (pkg/enhance): applies them per pixel and re-encodes as JPEG
// 3. Compositor (pkg/watermark): optionally draws a logo in a bottom corner
// 4. Orchestrator (pkg/batch): runs a worklist of photos through all three
//
// Analysis never fails a photo. When the model cannot be reached or answers
// with something unusable, the static default parameters are used instead.
package photoenhancer

import (
	"context"
	"fmt"
	"time"

	"github.com/menta2k/photo-enhancer/pkg/analyzer"
	"github.com/menta2k/photo-enhancer/pkg/batch"
	"github.com/menta2k/photo-enhancer/pkg/client"
	"github.com/menta2k/photo-enhancer/pkg/enhance"
	"github.com/menta2k/photo-enhancer/pkg/gemini"
	"github.com/menta2k/photo-enhancer/pkg/llamacpp"
	"github.com/menta2k/photo-enhancer/pkg/ollama"
	"github.com/menta2k/photo-enhancer/pkg/types"
	"github.com/menta2k/photo-enhancer/pkg/watermark"
)

// Version of the photo enhancer library
const Version = "1.0.0"

// Backend names a vision model provider
type Backend string

const (
	BackendGemini   Backend = "gemini"
	BackendOllama   Backend = "ollama"
	BackendLlamaCpp Backend = "llamacpp"
)

// VisionOptions selects and configures a vision backend
type VisionOptions struct {
	Backend Backend
	URL     string
	APIKey  string
	// Timeout of zero leaves requests unbounded
	Timeout time.Duration
}

// NeedsAPIKey reports whether the backend requires a credential
func (b Backend) NeedsAPIKey() bool {
	return b == BackendGemini || b == ""
}

// NewVisionClient builds the client for opts.Backend
func NewVisionClient(ctx context.Context, opts VisionOptions) (client.VisionClient, error) {
	switch opts.Backend {
	case BackendGemini, "":
		c, err := gemini.NewClient(ctx, opts.APIKey, gemini.Options{BaseURL: opts.URL, Timeout: opts.Timeout})
		if err != nil {
			return nil, err
		}
		return c, nil
	case BackendOllama:
		c, err := ollama.NewClient(opts.URL, opts.Timeout)
		if err != nil {
			return nil, err
		}
		return c, nil
	case BackendLlamaCpp:
		return llamacpp.NewClient(opts.URL, opts.APIKey, nil).WithTimeout(opts.Timeout), nil
	}
	return nil, fmt.Errorf("unknown vision backend %q", opts.Backend)
}

// Config holds what New needs. A nil Vision client disables analysis.
type Config struct {
	Vision           client.VisionClient
	Model            string
	AnalyzerOptions  []analyzer.Option
	EnhanceQuality   int
	WatermarkQuality int
	BatchOptions     []batch.Option
}

// PhotoEnhancer provides a high-level interface over the pipeline components
type PhotoEnhancer struct {
	analyzer   *analyzer.Analyzer
	enhancer   *enhance.Enhancer
	compositor *watermark.Compositor
	batchOpts  []batch.Option
}

// New builds the pipeline components from cfg
func New(cfg Config) *PhotoEnhancer {
	pe := &PhotoEnhancer{
		enhancer:   enhance.New(cfg.EnhanceQuality),
		compositor: watermark.New(cfg.WatermarkQuality),
		batchOpts:  cfg.BatchOptions,
	}
	if cfg.Vision != nil {
		model := cfg.Model
		if model == "" {
			model = gemini.DefaultModel
		}
		pe.analyzer = analyzer.New(cfg.Vision, model, cfg.AnalyzerOptions...)
	}
	return pe
}

// HasAnalyzer reports whether a vision client was configured
func (pe *PhotoEnhancer) HasAnalyzer() bool {
	return pe.analyzer != nil
}

// NewBatch returns an orchestrator wired to this pipeline. opts are applied
// after the ones given in Config.
func (pe *PhotoEnhancer) NewBatch(opts ...batch.Option) *batch.Orchestrator {
	all := append(append([]batch.Option(nil), pe.batchOpts...), opts...)

	// a nil *Analyzer must not become a non-nil interface
	var a batch.Analyzer
	if pe.analyzer != nil {
		a = pe.analyzer
	}
	return batch.New(a, pe.enhancer, pe.compositor, all...)
}

// Analyze returns tone parameters for one image, falling back to the
// defaults when no vision client is configured
func (pe *PhotoEnhancer) Analyze(ctx context.Context, data []byte, mimeType string) analyzer.Result {
	if pe.analyzer == nil {
		return analyzer.Result{Params: analyzer.DefaultParameters(), Source: analyzer.SourceDefaults}
	}
	return pe.analyzer.Analyze(ctx, data, mimeType)
}

// Enhance runs analysis, enhancement and the optional watermark on one image
func (pe *PhotoEnhancer) Enhance(ctx context.Context, data []byte, mimeType string, wm types.WatermarkConfig) ([]byte, analyzer.Result, error) {
	res := pe.Analyze(ctx, data, mimeType)

	out, err := pe.enhancer.Enhance(data, res.Params)
	if err != nil {
		return nil, res, err
	}
	if wm.Enabled() {
		out, err = pe.compositor.Apply(out, wm.Logo, wm.Position, wm.Opacity)
		if err != nil {
			return nil, res, err
		}
	}
	return out, res, nil
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
