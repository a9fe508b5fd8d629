package batch

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/menta2k/photo-enhancer/pkg/analyzer"
	"github.com/menta2k/photo-enhancer/pkg/enhance"
	"github.com/menta2k/photo-enhancer/pkg/types"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = 100, 120, 140, 255
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func gifBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewPaletted(image.Rect(0, 0, 4, 4), []color.Color{color.Black, color.White})
	var buf bytes.Buffer
	if err := gif.Encode(&buf, img, nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// corruptJPEG sniffs as JPEG but cannot be decoded
var corruptJPEG = append([]byte{0xff, 0xd8, 0xff, 0xe0}, bytes.Repeat([]byte{0x42}, 64)...)

type fakeAnalyzer struct {
	result analyzer.Result
	calls  atomic.Int32
}

func (f *fakeAnalyzer) Analyze(context.Context, []byte, string) analyzer.Result {
	f.calls.Add(1)
	return f.result
}

// fakeEnhancer fails the first failFirst calls and tracks concurrency
type fakeEnhancer struct {
	failFirst int32
	delay     time.Duration

	calls     atomic.Int32
	active    atomic.Int32
	maxActive atomic.Int32
}

func (f *fakeEnhancer) Enhance(data []byte, _ types.EnhancementParameters) ([]byte, error) {
	n := f.calls.Add(1)
	cur := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		m := f.maxActive.Load()
		if cur <= m || f.maxActive.CompareAndSwap(m, cur) {
			break
		}
	}
	time.Sleep(f.delay)
	if n <= f.failFirst {
		return nil, errors.New("transient failure")
	}
	return append([]byte("enhanced:"), data[:4]...), nil
}

type fakeCompositor struct {
	mu    sync.Mutex
	calls []types.Position
}

func (f *fakeCompositor) Apply(base, logo []byte, pos types.Position, opacity int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, pos)
	return append(append([]byte(nil), base...), []byte("+logo")...), nil
}

func TestAddValidation(t *testing.T) {
	o := New(nil, enhance.New(0), nil, WithMaxFileSize(2000))

	small := pngBytes(t, 4, 4)
	big := pngBytes(t, 200, 200)
	big = append(big, bytes.Repeat([]byte{0}, 2000)...)

	added, rejected := o.Add(
		Source{Name: "a.png", Data: small},
		Source{Name: "notes.txt", Data: []byte("hello world")},
		Source{Name: "big.png", Data: big},
		Source{Name: "anim.gif", Data: gifBytes(t)},
		Source{Name: "b.jpg", Data: corruptJPEG},
	)

	if len(added) != 2 || added[0].Name != "a.png" || added[1].Name != "b.jpg" {
		t.Fatalf("unexpected accepted files: %+v", added)
	}
	if added[0].MIMEType != "image/png" || added[1].MIMEType != "image/jpeg" {
		t.Errorf("unexpected MIME types %s, %s", added[0].MIMEType, added[1].MIMEType)
	}
	for _, it := range added {
		if it.Status != types.StatusPending || it.ID == uuid.Nil {
			t.Errorf("new item should be pending with an id: %+v", it)
		}
	}

	if len(rejected) != 3 {
		t.Fatalf("expected 3 rejections, got %d", len(rejected))
	}
	want := map[string]error{
		"notes.txt": ErrUnsupportedType,
		"big.png":   ErrFileTooLarge,
		"anim.gif":  ErrUnsupportedType,
	}
	for _, r := range rejected {
		if !errors.Is(r.Err, want[r.Name]) {
			t.Errorf("%s: expected %v, got %v", r.Name, want[r.Name], r.Err)
		}
	}

	if len(o.Items()) != 2 {
		t.Errorf("expected 2 items in the worklist, got %d", len(o.Items()))
	}
}

func TestProcessBatchIsolatesFailures(t *testing.T) {
	fa := &fakeAnalyzer{result: analyzer.Result{Params: analyzer.NeutralParameters(), Source: analyzer.SourceModel}}
	o := New(fa, enhance.New(0), nil)

	o.Add(
		Source{Name: "one.png", Data: pngBytes(t, 8, 8)},
		Source{Name: "broken.jpg", Data: corruptJPEG},
		Source{Name: "three.png", Data: pngBytes(t, 8, 8)},
	)

	s, err := o.ProcessBatch(context.Background(), types.WatermarkConfig{})
	if err != nil {
		t.Fatalf("ProcessBatch error: %v", err)
	}
	if s.Processed != 3 || s.Succeeded != 2 || s.Failed != 1 || s.Remaining != 0 {
		t.Errorf("unexpected summary %+v", s)
	}

	items := o.Items()
	wantStatus := []types.Status{types.StatusDone, types.StatusError, types.StatusDone}
	for i, it := range items {
		if it.Status != wantStatus[i] {
			t.Errorf("%s: status %s, want %s", it.Name, it.Status, wantStatus[i])
		}
	}
	if items[1].Error == "" || items[1].Output != nil {
		t.Errorf("failed item should carry a message and no output: %+v", items[1])
	}
	if len(items[0].Output) == 0 || items[0].Params == nil || *items[0].Params != analyzer.NeutralParameters() {
		t.Errorf("done item should carry output and params: %+v", items[0])
	}
	if fa.calls.Load() != 3 {
		t.Errorf("expected 3 analyzer calls, got %d", fa.calls.Load())
	}
	if len(o.Done()) != 2 {
		t.Errorf("expected 2 done items, got %d", len(o.Done()))
	}
}

func TestProcessBatchOnlyRunsPending(t *testing.T) {
	fe := &fakeEnhancer{}
	o := New(nil, fe, nil)
	o.Add(Source{Name: "a.png", Data: pngBytes(t, 2, 2)})

	o.ProcessBatch(context.Background(), types.WatermarkConfig{})
	o.Add(Source{Name: "b.png", Data: pngBytes(t, 2, 2)})
	s, _ := o.ProcessBatch(context.Background(), types.WatermarkConfig{})

	if s.Processed != 1 || fe.calls.Load() != 2 {
		t.Errorf("second batch should only process the new item: %+v, calls %d", s, fe.calls.Load())
	}
}

func TestProcessBatchMissingCredential(t *testing.T) {
	o := New(nil, &fakeEnhancer{}, nil, WithRequireAnalysis(true))
	o.Add(Source{Name: "a.png", Data: pngBytes(t, 2, 2)})

	_, err := o.ProcessBatch(context.Background(), types.WatermarkConfig{})
	if !errors.Is(err, ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential, got %v", err)
	}
	if o.Items()[0].Status != types.StatusPending {
		t.Error("items must stay pending when the batch is refused")
	}
}

func TestProcessBatchWithoutAnalyzerUsesDefaults(t *testing.T) {
	o := New(nil, &fakeEnhancer{}, nil)
	o.Add(Source{Name: "a.png", Data: pngBytes(t, 2, 2)})

	s, err := o.ProcessBatch(context.Background(), types.WatermarkConfig{})
	if err != nil {
		t.Fatalf("ProcessBatch error: %v", err)
	}
	if s.Defaulted != 1 {
		t.Errorf("expected 1 defaulted item, got %d", s.Defaulted)
	}
	if p := o.Items()[0].Params; p == nil || *p != analyzer.DefaultParameters() {
		t.Errorf("expected default parameters, got %+v", p)
	}
}

func TestProcessBatchWatermark(t *testing.T) {
	fc := &fakeCompositor{}
	o := New(nil, &fakeEnhancer{}, fc)
	o.Add(Source{Name: "a.png", Data: pngBytes(t, 2, 2)})

	o.ProcessBatch(context.Background(), types.WatermarkConfig{})
	if len(fc.calls) != 0 {
		t.Fatal("compositor must be skipped without a logo")
	}

	o.Add(Source{Name: "b.png", Data: pngBytes(t, 2, 2)})
	wm := types.WatermarkConfig{Logo: []byte("logo"), Position: types.BottomLeft, Opacity: 70}
	o.ProcessBatch(context.Background(), wm)

	if len(fc.calls) != 1 || fc.calls[0] != types.BottomLeft {
		t.Fatalf("expected one bottom-left composite, got %v", fc.calls)
	}
	if out := o.Items()[1].Output; !bytes.HasSuffix(out, []byte("+logo")) {
		t.Errorf("output should come from the compositor, got %q", out)
	}
}

func TestRetry(t *testing.T) {
	fe := &fakeEnhancer{failFirst: 1}
	o := New(nil, fe, nil)
	added, _ := o.Add(
		Source{Name: "flaky.png", Data: pngBytes(t, 2, 2)},
		Source{Name: "waiting.png", Data: pngBytes(t, 2, 2)},
	)
	id := added[0].ID

	var progressed []types.Status
	o.progress = func(it types.ProcessedImage) {
		if it.ID == id {
			progressed = append(progressed, it.Status)
		}
	}

	// run only the first item
	o.run(context.Background(), id, types.WatermarkConfig{}, types.StatusPending)
	if it, _ := o.Get(id); it.Status != types.StatusError {
		t.Fatalf("expected error status, got %s", it.Status)
	}

	it, err := o.Retry(context.Background(), id, types.WatermarkConfig{})
	if err != nil {
		t.Fatalf("Retry error: %v", err)
	}
	if it.Status != types.StatusDone || it.Attempts != 2 || it.Error != "" {
		t.Errorf("unexpected item after retry: %+v", it)
	}

	wantProgress := []types.Status{types.StatusProcessing, types.StatusError, types.StatusProcessing, types.StatusDone}
	if len(progressed) != len(wantProgress) {
		t.Fatalf("progress %v, want %v", progressed, wantProgress)
	}
	for i := range wantProgress {
		if progressed[i] != wantProgress[i] {
			t.Errorf("progress %v, want %v", progressed, wantProgress)
			break
		}
	}

	// done is a no-op
	calls := fe.calls.Load()
	again, err := o.Retry(context.Background(), id, types.WatermarkConfig{})
	if err != nil || again.Status != types.StatusDone || fe.calls.Load() != calls {
		t.Errorf("retrying a done item should do nothing: %+v, %v", again, err)
	}

	if _, err := o.Retry(context.Background(), added[1].ID, types.WatermarkConfig{}); !errors.Is(err, ErrNotRetryable) {
		t.Errorf("expected ErrNotRetryable for a pending item, got %v", err)
	}
	if _, err := o.Retry(context.Background(), uuid.New(), types.WatermarkConfig{}); !errors.Is(err, ErrItemNotFound) {
		t.Errorf("expected ErrItemNotFound, got %v", err)
	}
}

func TestRetryMissingCredential(t *testing.T) {
	o := New(nil, &fakeEnhancer{failFirst: 1}, nil)
	added, _ := o.Add(Source{Name: "a.png", Data: pngBytes(t, 2, 2)})
	o.ProcessBatch(context.Background(), types.WatermarkConfig{})

	o.requireAnalysis = true
	if _, err := o.Retry(context.Background(), added[0].ID, types.WatermarkConfig{}); !errors.Is(err, ErrMissingCredential) {
		t.Errorf("expected ErrMissingCredential, got %v", err)
	}
}

func TestProcessBatchCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	o := New(nil, &fakeEnhancer{}, nil, WithProgress(func(it types.ProcessedImage) {
		if it.Status == types.StatusDone {
			cancel()
		}
	}))
	for i := 0; i < 4; i++ {
		o.Add(Source{Name: "p.png", Data: pngBytes(t, 2, 2)})
	}

	s, err := o.ProcessBatch(ctx, types.WatermarkConfig{})
	if err != nil {
		t.Fatalf("ProcessBatch error: %v", err)
	}
	if s.Processed != 1 || s.Remaining != 3 {
		t.Errorf("expected 1 processed and 3 remaining, got %+v", s)
	}
	pending := 0
	for _, it := range o.Items() {
		if it.Status == types.StatusPending {
			pending++
		}
	}
	if pending != 3 {
		t.Errorf("items not started should stay pending, got %d", pending)
	}
}

func TestSequentialByDefault(t *testing.T) {
	fe := &fakeEnhancer{delay: 5 * time.Millisecond}
	o := New(nil, fe, nil)
	for i := 0; i < 5; i++ {
		o.Add(Source{Name: "p.png", Data: pngBytes(t, 2, 2)})
	}
	o.ProcessBatch(context.Background(), types.WatermarkConfig{})

	if fe.maxActive.Load() != 1 {
		t.Errorf("expected strictly sequential processing, saw %d at once", fe.maxActive.Load())
	}
}

func TestWorkersBounded(t *testing.T) {
	fe := &fakeEnhancer{delay: 10 * time.Millisecond, failFirst: 2}
	o := New(nil, fe, nil, WithWorkers(3))
	for i := 0; i < 12; i++ {
		o.Add(Source{Name: "p.png", Data: pngBytes(t, 2, 2)})
	}

	s, err := o.ProcessBatch(context.Background(), types.WatermarkConfig{})
	if err != nil {
		t.Fatalf("ProcessBatch error: %v", err)
	}
	if s.Processed != 12 || s.Failed != 2 || s.Succeeded != 10 {
		t.Errorf("unexpected summary %+v", s)
	}
	if m := fe.maxActive.Load(); m > 3 || m < 2 {
		t.Errorf("expected 2-3 concurrent items, saw %d", m)
	}
}

func TestItemsAreCopies(t *testing.T) {
	o := New(nil, &fakeEnhancer{}, nil)
	added, _ := o.Add(Source{Name: "a.png", Data: pngBytes(t, 2, 2)})
	o.ProcessBatch(context.Background(), types.WatermarkConfig{})

	it, _ := o.Get(added[0].ID)
	it.Status = types.StatusError
	it.Params.Brightness = 9

	fresh, _ := o.Get(added[0].ID)
	if fresh.Status != types.StatusDone || fresh.Params.Brightness == 9 {
		t.Error("mutating a returned item changed the worklist")
	}
}

func TestRemoveAndClear(t *testing.T) {
	o := New(nil, &fakeEnhancer{}, nil)
	added, _ := o.Add(
		Source{Name: "a.png", Data: pngBytes(t, 2, 2)},
		Source{Name: "b.png", Data: pngBytes(t, 2, 2)},
	)

	if err := o.Remove(added[0].ID); err != nil {
		t.Fatalf("Remove error: %v", err)
	}
	if err := o.Remove(added[0].ID); !errors.Is(err, ErrItemNotFound) {
		t.Errorf("expected ErrItemNotFound, got %v", err)
	}
	if items := o.Items(); len(items) != 1 || items[0].Name != "b.png" {
		t.Errorf("unexpected items after remove: %+v", items)
	}

	o.Clear()
	if len(o.Items()) != 0 {
		t.Error("Clear should empty the worklist")
	}
}
