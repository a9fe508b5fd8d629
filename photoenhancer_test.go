package photoenhancer

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/menta2k/photo-enhancer/pkg/analyzer"
	"github.com/menta2k/photo-enhancer/pkg/batch"
	"github.com/menta2k/photo-enhancer/pkg/client"
	"github.com/menta2k/photo-enhancer/pkg/processing"
	"github.com/menta2k/photo-enhancer/pkg/types"
)

type stubVision struct {
	reply string
}

func (s stubVision) GenerateJSON(context.Context, client.Request) (string, error) {
	return s.reply, nil
}

// createTestImage creates a gradient PNG
func createTestImage(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 255 / width), uint8(y * 255 / height), 90, 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestNewWithoutVision(t *testing.T) {
	pe := New(Config{})
	if pe.HasAnalyzer() {
		t.Error("analyzer should be absent without a vision client")
	}

	res := pe.Analyze(context.Background(), createTestImage(t, 8, 8), "image/png")
	if res.Source != analyzer.SourceDefaults || res.Params != analyzer.DefaultParameters() {
		t.Errorf("expected default parameters, got %+v", res)
	}
}

func TestNewBatchRequiresAnalyzer(t *testing.T) {
	pe := New(Config{BatchOptions: []batch.Option{batch.WithRequireAnalysis(true)}})
	b := pe.NewBatch()
	b.Add(batch.Source{Name: "a.png", Data: createTestImage(t, 8, 8)})

	if _, err := b.ProcessBatch(context.Background(), types.WatermarkConfig{}); !errors.Is(err, batch.ErrMissingCredential) {
		t.Errorf("expected ErrMissingCredential, got %v", err)
	}
}

func TestBatchEndToEnd(t *testing.T) {
	vc := stubVision{reply: `{"brightness":1.1,"contrast":1.05,"saturation":1.1,"warmth":2,"shadows":5,"highlights":5,"sharpness":0.2}`}
	pe := New(Config{Vision: vc, Model: "stub"})
	b := pe.NewBatch()

	var logo bytes.Buffer
	png.Encode(&logo, image.NewNRGBA(image.Rect(0, 0, 10, 5)))

	b.Add(
		batch.Source{Name: "a.png", Data: createTestImage(t, 120, 80)},
		batch.Source{Name: "b.png", Data: createTestImage(t, 60, 90)},
	)
	wm := types.WatermarkConfig{Logo: logo.Bytes(), Position: types.BottomRight, Opacity: 60}
	s, err := b.ProcessBatch(context.Background(), wm)
	if err != nil {
		t.Fatalf("ProcessBatch error: %v", err)
	}
	if s.Succeeded != 2 || s.Defaulted != 0 {
		t.Fatalf("unexpected summary %+v", s)
	}

	for _, it := range b.Done() {
		img, err := processing.Decode(it.Output)
		if err != nil {
			t.Fatalf("%s: output does not decode: %v", it.Name, err)
		}
		if it.Params.Brightness != 1.1 {
			t.Errorf("%s: model parameters not used: %+v", it.Name, it.Params)
		}
		if img.Bounds().Dx() == 0 {
			t.Errorf("%s: empty output", it.Name)
		}
	}
}

func TestEnhanceSingle(t *testing.T) {
	pe := New(Config{Vision: stubVision{reply: "not json"}})
	out, res, err := pe.Enhance(context.Background(), createTestImage(t, 16, 16), "image/png", types.WatermarkConfig{})
	if err != nil {
		t.Fatalf("Enhance error: %v", err)
	}
	if res.Source != analyzer.SourceDefaults {
		t.Errorf("malformed reply should fall back to defaults, got %s", res.Source)
	}
	if _, err := processing.Decode(out); err != nil {
		t.Errorf("output does not decode: %v", err)
	}
}

func TestNewVisionClient(t *testing.T) {
	ctx := context.Background()

	if _, err := NewVisionClient(ctx, VisionOptions{Backend: BackendGemini}); err == nil {
		t.Error("gemini without a key should fail")
	}
	if _, err := NewVisionClient(ctx, VisionOptions{Backend: BackendOllama, URL: "http://localhost:11434"}); err != nil {
		t.Errorf("ollama: %v", err)
	}
	if c, err := NewVisionClient(ctx, VisionOptions{Backend: BackendLlamaCpp, URL: "http://localhost:8080", Timeout: time.Second}); err != nil || c == nil {
		t.Errorf("llamacpp: %v", err)
	}
	if _, err := NewVisionClient(ctx, VisionOptions{Backend: "openai"}); err == nil {
		t.Error("unknown backend should fail")
	}

	if !BackendGemini.NeedsAPIKey() || BackendOllama.NeedsAPIKey() || BackendLlamaCpp.NeedsAPIKey() {
		t.Error("only gemini should require a key")
	}
}

func TestGetVersion(t *testing.T) {
	if GetVersion() != Version || Version == "" {
		t.Errorf("unexpected version %q", GetVersion())
	}
}
