// Package archive packs enhanced photos into a single zip.
package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zstd"

	"github.com/menta2k/photo-enhancer/pkg/types"
)

// DefaultSuffix is appended to the source base name
const DefaultSuffix = "_enhanced"

// Method selects the zip entry compression
type Method string

const (
	MethodDeflate Method = "deflate"
	MethodZstd    Method = "zstd"
)

// ParseMethod maps a config value to a Method
func ParseMethod(s string) (Method, error) {
	switch Method(strings.ToLower(strings.TrimSpace(s))) {
	case MethodDeflate, "":
		return MethodDeflate, nil
	case MethodZstd:
		return MethodZstd, nil
	}
	return "", fmt.Errorf("unknown archive method %q", s)
}

// Entry describes one file written to the archive
type Entry struct {
	ID     uuid.UUID
	Source string
	Name   string
	Size   int
}

// Manifest lists what Write put in the archive and what it left out
type Manifest struct {
	Entries []Entry
	// Skipped holds items that were not done or had no output
	Skipped []uuid.UUID
}

// Exporter writes archives
type Exporter struct {
	suffix string
	method Method
	now    func() time.Time
}

// Option configures an Exporter
type Option func(*Exporter)

// WithSuffix sets the name suffix
func WithSuffix(s string) Option {
	return func(e *Exporter) { e.suffix = s }
}

// WithMethod sets the compression method
func WithMethod(m Method) Option {
	return func(e *Exporter) { e.method = m }
}

// New creates an Exporter using deflate and DefaultSuffix unless overridden
func New(opts ...Option) *Exporter {
	e := &Exporter{suffix: DefaultSuffix, method: MethodDeflate, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Filename derives the archive entry name: base name without extension,
// the suffix, then .jpg
func (e *Exporter) Filename(source string) string {
	base := path.Base(strings.ReplaceAll(source, "\\", "/"))
	if base == "." || base == "/" {
		base = ""
	}
	stem := strings.TrimSuffix(base, path.Ext(base))
	if stem == "" {
		stem = "photo"
	}
	return stem + e.suffix + ".jpg"
}

// Write streams every done item with output into a zip on w. Items that are
// not done or have no output are skipped and listed in the manifest.
func (e *Exporter) Write(w io.Writer, items []types.ProcessedImage) (Manifest, error) {
	zw := zip.NewWriter(w)

	method := zip.Deflate
	switch e.method {
	case MethodZstd:
		method = zstd.ZipMethodWinZip
		zw.RegisterCompressor(method, zstd.ZipCompressor())
	default:
		zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
			return flate.NewWriter(out, flate.DefaultCompression)
		})
	}

	var (
		m    Manifest
		used = make(map[string]int)
		now  = e.now()
	)

	for _, it := range items {
		if it.Status != types.StatusDone || len(it.Output) == 0 {
			m.Skipped = append(m.Skipped, it.ID)
			continue
		}

		name := unique(e.Filename(it.Name), used)
		header := &zip.FileHeader{Name: name, Method: method}
		header.Modified = now

		fw, err := zw.CreateHeader(header)
		if err != nil {
			return m, fmt.Errorf("create zip entry %s: %w", name, err)
		}
		if _, err := fw.Write(it.Output); err != nil {
			return m, fmt.Errorf("write zip entry %s: %w", name, err)
		}

		m.Entries = append(m.Entries, Entry{ID: it.ID, Source: it.Name, Name: name, Size: len(it.Output)})
	}

	if err := zw.Close(); err != nil {
		return m, fmt.Errorf("close zip: %w", err)
	}
	return m, nil
}

// unique appends _2, _3 and so on before the extension for repeated names
func unique(name string, used map[string]int) string {
	key := strings.ToLower(name)
	n := used[key]
	used[key] = n + 1
	if n == 0 {
		return name
	}

	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for {
		n++
		candidate := fmt.Sprintf("%s_%d%s", stem, n, ext)
		ckey := strings.ToLower(candidate)
		if used[ckey] == 0 {
			used[ckey] = 1
			used[key] = n
			return candidate
		}
	}
}
