// Package batch owns the worklist of photos and drives each one through
// analysis, enhancement and watermarking.
//
// Items move pending -> processing -> done|error. An error item can be
// retried, which moves it back to processing. One item failing never stops
// the rest of the batch. Processing is sequential unless WithWorkers asks
// for more.
package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/menta2k/photo-enhancer/pkg/analyzer"
	"github.com/menta2k/photo-enhancer/pkg/types"
)

// DefaultMaxFileSize is the intake size limit
const DefaultMaxFileSize = 10 * 1024 * 1024

// DefaultAllowedTypes is the intake MIME allow-list
var DefaultAllowedTypes = []string{"image/jpeg", "image/png", "image/webp"}

var (
	ErrUnsupportedType   = errors.New("unsupported file type")
	ErrFileTooLarge      = errors.New("file too large")
	ErrMissingCredential = errors.New("no API key configured for photo analysis")
	ErrItemNotFound      = errors.New("item not found")
	ErrNotRetryable      = errors.New("only failed items can be retried")
)

// Analyzer picks tone parameters for a photo
type Analyzer interface {
	Analyze(ctx context.Context, image []byte, mimeType string) analyzer.Result
}

// Enhancer applies tone parameters and returns encoded bytes
type Enhancer interface {
	Enhance(data []byte, p types.EnhancementParameters) ([]byte, error)
}

// Compositor draws the logo onto enhanced bytes
type Compositor interface {
	Apply(base, logo []byte, pos types.Position, opacity int) ([]byte, error)
}

// Source is a file offered for intake
type Source struct {
	Name string
	Data []byte
}

// Rejection reports a file refused at intake
type Rejection struct {
	Name string
	Err  error
}

func (r Rejection) Error() string {
	return fmt.Sprintf("%s: %v", r.Name, r.Err)
}

// Summary describes one ProcessBatch run
type Summary struct {
	Processed int
	Succeeded int
	Failed    int
	// Remaining counts items left pending because the context ended
	Remaining int
	// Defaulted counts items enhanced with the default parameters
	Defaulted int
	Duration  time.Duration
}

// Orchestrator is the only writer of item state
type Orchestrator struct {
	analyzer   Analyzer
	enhancer   Enhancer
	compositor Compositor

	workers         int
	maxFileSize     int64
	allowedTypes    []string
	requireAnalysis bool
	progress        func(types.ProcessedImage)

	mu    sync.Mutex
	order []uuid.UUID
	items map[uuid.UUID]*types.ProcessedImage
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithWorkers sets how many items run at once. Values below 1 mean 1.
func WithWorkers(n int) Option {
	return func(o *Orchestrator) {
		if n < 1 {
			n = 1
		}
		o.workers = n
	}
}

// WithMaxFileSize sets the intake size limit in bytes
func WithMaxFileSize(n int64) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxFileSize = n
		}
	}
}

// WithAllowedTypes replaces the intake MIME allow-list
func WithAllowedTypes(mimeTypes ...string) Option {
	return func(o *Orchestrator) {
		if len(mimeTypes) > 0 {
			o.allowedTypes = append([]string(nil), mimeTypes...)
		}
	}
}

// WithRequireAnalysis makes ProcessBatch and Retry refuse to start without
// an analyzer instead of silently using the default parameters
func WithRequireAnalysis(required bool) Option {
	return func(o *Orchestrator) { o.requireAnalysis = required }
}

// WithProgress registers a callback invoked after every status change.
// It may be called from several goroutines when workers > 1.
func WithProgress(fn func(types.ProcessedImage)) Option {
	return func(o *Orchestrator) { o.progress = fn }
}

// New creates an Orchestrator. a may be nil, in which case every item uses
// analyzer.DefaultParameters. c may be nil to disable watermarking.
func New(a Analyzer, e Enhancer, c Compositor, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		analyzer:     a,
		enhancer:     e,
		compositor:   c,
		workers:      1,
		maxFileSize:  DefaultMaxFileSize,
		allowedTypes: DefaultAllowedTypes,
		items:        make(map[uuid.UUID]*types.ProcessedImage),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Add validates files and appends the accepted ones as pending items.
// Each rejected file is reported on its own; the rest are still accepted.
func (o *Orchestrator) Add(files ...Source) ([]types.ProcessedImage, []Rejection) {
	var (
		added    []types.ProcessedImage
		rejected []Rejection
	)

	for _, f := range files {
		mimeType, err := o.validate(f)
		if err != nil {
			log.Debug().Str("file", f.Name).Err(err).Msg("File rejected at intake")
			rejected = append(rejected, Rejection{Name: f.Name, Err: err})
			continue
		}

		item := &types.ProcessedImage{
			ID:       uuid.New(),
			Name:     f.Name,
			MIMEType: mimeType,
			Source:   f.Data,
			Status:   types.StatusPending,
		}

		o.mu.Lock()
		o.items[item.ID] = item
		o.order = append(o.order, item.ID)
		snapshot := *item
		o.mu.Unlock()

		added = append(added, snapshot)
	}
	return added, rejected
}

func (o *Orchestrator) validate(f Source) (string, error) {
	if int64(len(f.Data)) > o.maxFileSize {
		return "", fmt.Errorf("%w: %d bytes exceeds %d", ErrFileTooLarge, len(f.Data), o.maxFileSize)
	}
	mt := mimetype.Detect(f.Data)
	for _, allowed := range o.allowedTypes {
		if mt.Is(allowed) {
			return allowed, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedType, mt.String())
}

// ProcessBatch runs every pending item. The returned error is non-nil only
// when the batch could not start; per-item failures are recorded on the items.
func (o *Orchestrator) ProcessBatch(ctx context.Context, wm types.WatermarkConfig) (Summary, error) {
	if err := o.ready(); err != nil {
		return Summary{}, err
	}

	start := time.Now()
	pending := o.pendingIDs()
	results := make(chan outcome, len(pending))

	if o.workers <= 1 {
		for _, id := range pending {
			if ctx.Err() != nil {
				break
			}
			if r, ok := o.run(ctx, id, wm, types.StatusPending); ok {
				results <- r
			}
		}
	} else {
		var g errgroup.Group
		g.SetLimit(o.workers)
		for _, id := range pending {
			if ctx.Err() != nil {
				break
			}
			g.Go(func() error {
				if ctx.Err() != nil {
					return nil
				}
				if r, ok := o.run(ctx, id, wm, types.StatusPending); ok {
					results <- r
				}
				return nil
			})
		}
		g.Wait()
	}
	close(results)

	var s Summary
	for r := range results {
		s.Processed++
		if r.err != nil {
			s.Failed++
		} else {
			s.Succeeded++
		}
		if r.source == analyzer.SourceDefaults {
			s.Defaulted++
		}
	}
	s.Remaining = len(pending) - s.Processed
	s.Duration = time.Since(start)

	log.Info().
		Int("processed", s.Processed).
		Int("succeeded", s.Succeeded).
		Int("failed", s.Failed).
		Int("remaining", s.Remaining).
		Int("defaulted", s.Defaulted).
		Dur("duration", s.Duration).
		Msg("Batch finished")

	return s, nil
}

// Retry re-runs one failed item. Done items are returned unchanged.
func (o *Orchestrator) Retry(ctx context.Context, id uuid.UUID, wm types.WatermarkConfig) (types.ProcessedImage, error) {
	item, err := o.Get(id)
	if err != nil {
		return types.ProcessedImage{}, err
	}

	switch item.Status {
	case types.StatusDone:
		return item, nil
	case types.StatusError:
	default:
		return item, fmt.Errorf("%w: item is %s", ErrNotRetryable, item.Status)
	}

	if err := o.ready(); err != nil {
		return item, err
	}

	// a concurrent Retry may have claimed it first; either way report current state
	o.run(ctx, id, wm, types.StatusError)
	return o.Get(id)
}

func (o *Orchestrator) ready() error {
	if o.requireAnalysis && o.analyzer == nil {
		return ErrMissingCredential
	}
	if o.enhancer == nil {
		return errors.New("no enhancer configured")
	}
	return nil
}

type outcome struct {
	source analyzer.Source
	err    error
}

// run claims id if it is in the from state and drives it to done or error.
// It reports false when the item could not be claimed.
func (o *Orchestrator) run(ctx context.Context, id uuid.UUID, wm types.WatermarkConfig, from types.Status) (outcome, bool) {
	o.mu.Lock()
	item, ok := o.items[id]
	if !ok || item.Status != from {
		o.mu.Unlock()
		return outcome{}, false
	}
	item.Status = types.StatusProcessing
	item.Error = ""
	item.Attempts++
	src, mimeType := item.Source, item.MIMEType
	snapshot := copyItem(item)
	o.mu.Unlock()

	log.Debug().Str("id", id.String()).Str("file", snapshot.Name).Msg("Item processing")
	o.notify(snapshot)

	params, source, out, err := o.pipeline(ctx, src, mimeType, wm)

	o.mu.Lock()
	item, ok = o.items[id]
	if !ok {
		o.mu.Unlock()
		return outcome{source: source, err: err}, true
	}
	if err != nil {
		item.Status = types.StatusError
		item.Error = err.Error()
		item.Output = nil
	} else {
		item.Status = types.StatusDone
		item.Output = out
		item.Params = &params
	}
	snapshot = copyItem(item)
	o.mu.Unlock()

	if err != nil {
		log.Error().Err(err).Str("id", id.String()).Str("file", snapshot.Name).Msg("Item failed")
	} else {
		log.Debug().Str("id", id.String()).Str("file", snapshot.Name).Str("params_source", string(source)).Msg("Item done")
	}
	o.notify(snapshot)

	return outcome{source: source, err: err}, true
}

func (o *Orchestrator) pipeline(ctx context.Context, src []byte, mimeType string, wm types.WatermarkConfig) (types.EnhancementParameters, analyzer.Source, []byte, error) {
	params, source := analyzer.DefaultParameters(), analyzer.SourceDefaults
	if o.analyzer != nil {
		res := o.analyzer.Analyze(ctx, src, mimeType)
		params, source = res.Params, res.Source
	}

	out, err := o.enhancer.Enhance(src, params)
	if err != nil {
		return params, source, nil, err
	}

	if wm.Enabled() && o.compositor != nil {
		out, err = o.compositor.Apply(out, wm.Logo, wm.Position, wm.Opacity)
		if err != nil {
			return params, source, nil, err
		}
	}
	return params, source, out, nil
}

func (o *Orchestrator) notify(item types.ProcessedImage) {
	if o.progress != nil {
		o.progress(item)
	}
}

func (o *Orchestrator) pendingIDs() []uuid.UUID {
	o.mu.Lock()
	defer o.mu.Unlock()

	var ids []uuid.UUID
	for _, id := range o.order {
		if o.items[id].Status == types.StatusPending {
			ids = append(ids, id)
		}
	}
	return ids
}

// Items returns a copy of every item in intake order
func (o *Orchestrator) Items() []types.ProcessedImage {
	return o.filter(func(*types.ProcessedImage) bool { return true })
}

// Done returns the items that finished successfully
func (o *Orchestrator) Done() []types.ProcessedImage {
	return o.filter(func(it *types.ProcessedImage) bool { return it.Status == types.StatusDone })
}

func (o *Orchestrator) filter(keep func(*types.ProcessedImage) bool) []types.ProcessedImage {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]types.ProcessedImage, 0, len(o.order))
	for _, id := range o.order {
		if it := o.items[id]; keep(it) {
			out = append(out, copyItem(it))
		}
	}
	return out
}

// Get returns a copy of one item
func (o *Orchestrator) Get(id uuid.UUID) (types.ProcessedImage, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	it, ok := o.items[id]
	if !ok {
		return types.ProcessedImage{}, fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}
	return copyItem(it), nil
}

// Remove drops one item from the worklist
func (o *Orchestrator) Remove(id uuid.UUID) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, ok := o.items[id]; !ok {
		return fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}
	delete(o.items, id)
	for i, oid := range o.order {
		if oid == id {
			o.order = append(o.order[:i], o.order[i+1:]...)
			break
		}
	}
	return nil
}

// Clear empties the worklist
func (o *Orchestrator) Clear() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.items = make(map[uuid.UUID]*types.ProcessedImage)
	o.order = nil
}

func copyItem(it *types.ProcessedImage) types.ProcessedImage {
	c := *it
	if it.Params != nil {
		p := *it.Params
		c.Params = &p
	}
	return c
}
