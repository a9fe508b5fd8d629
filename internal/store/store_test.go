package store

import (
	"bytes"
	"errors"
	"image"
	"image/png"
	"testing"

	"github.com/menta2k/photo-enhancer/pkg/types"
	"github.com/menta2k/photo-enhancer/pkg/watermark"
)

func pngLogo(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, 4, 4))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestFileKV(t *testing.T) {
	kv, err := NewFileKV(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileKV error: %v", err)
	}

	if _, err := kv.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if err := kv.Put("a.key", []byte("one")); err != nil {
		t.Fatalf("Put error: %v", err)
	}
	if err := kv.Put("a.key", []byte("two")); err != nil {
		t.Fatalf("Put error: %v", err)
	}
	got, err := kv.Get("a.key")
	if err != nil || string(got) != "two" {
		t.Errorf("Get = %q, %v", got, err)
	}

	if err := kv.Delete("a.key"); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if err := kv.Delete("a.key"); err != nil {
		t.Errorf("deleting a missing key should succeed, got %v", err)
	}
	if _, err := kv.Get("a.key"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestFileKVRejectsBadKeys(t *testing.T) {
	kv, _ := NewFileKV(t.TempDir())
	for _, key := range []string{"", "..", "../escape", "a/b"} {
		if err := kv.Put(key, []byte("x")); err == nil {
			t.Errorf("Put(%q) should fail", key)
		}
	}
}

func TestFileKVPersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	first, _ := NewFileKV(dir)
	first.Put("k", []byte("v"))

	second, _ := NewFileKV(dir)
	if got, err := second.Get("k"); err != nil || string(got) != "v" {
		t.Errorf("value not persisted: %q, %v", got, err)
	}
}

func TestWatermarkSettingsDefaults(t *testing.T) {
	kv, _ := NewFileKV(t.TempDir())
	cfg, err := NewWatermarkSettings(kv).Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Enabled() {
		t.Error("no logo should be configured initially")
	}
	if cfg.Position != DefaultPosition || cfg.Opacity != DefaultOpacity {
		t.Errorf("unexpected defaults %+v", cfg)
	}
}

func TestWatermarkSettingsLifecycle(t *testing.T) {
	kv, _ := NewFileKV(t.TempDir())
	ws := NewWatermarkSettings(kv)
	logo := pngLogo(t)

	if err := ws.SetLogo(logo); err != nil {
		t.Fatalf("SetLogo error: %v", err)
	}
	if err := ws.SetPosition(types.BottomLeft); err != nil {
		t.Fatalf("SetPosition error: %v", err)
	}
	if err := ws.SetOpacity(45); err != nil {
		t.Fatalf("SetOpacity error: %v", err)
	}

	cfg, err := NewWatermarkSettings(kv).Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if !bytes.Equal(cfg.Logo, logo) || cfg.LogoMIME != "image/png" {
		t.Errorf("logo not persisted: mime=%s len=%d", cfg.LogoMIME, len(cfg.Logo))
	}
	if cfg.Position != types.BottomLeft || cfg.Opacity != 45 {
		t.Errorf("unexpected settings %+v", cfg)
	}

	if err := ws.Clear(); err != nil {
		t.Fatalf("Clear error: %v", err)
	}
	cfg, _ = ws.Load()
	if cfg.Enabled() || cfg.Opacity != DefaultOpacity || cfg.Position != DefaultPosition {
		t.Errorf("Clear did not reset settings: %+v", cfg)
	}
}

func TestWatermarkSettingsValidation(t *testing.T) {
	kv, _ := NewFileKV(t.TempDir())
	ws := NewWatermarkSettings(kv)

	if err := ws.SetOpacity(29); !errors.Is(err, watermark.ErrInvalidOpacity) {
		t.Errorf("expected ErrInvalidOpacity, got %v", err)
	}
	if err := ws.SetPosition("top-left"); !errors.Is(err, watermark.ErrInvalidPosition) {
		t.Errorf("expected ErrInvalidPosition, got %v", err)
	}
	if err := ws.SetLogo([]byte("plain text")); err == nil {
		t.Error("expected error for non-image logo")
	}
}
