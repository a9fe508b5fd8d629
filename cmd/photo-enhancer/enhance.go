package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	photoenhancer "github.com/menta2k/photo-enhancer"
	"github.com/menta2k/photo-enhancer/internal/credentials"
	"github.com/menta2k/photo-enhancer/internal/storage/object"
	"github.com/menta2k/photo-enhancer/internal/utils"
	"github.com/menta2k/photo-enhancer/pkg/analyzer"
	"github.com/menta2k/photo-enhancer/pkg/archive"
	"github.com/menta2k/photo-enhancer/pkg/batch"
	"github.com/menta2k/photo-enhancer/pkg/client"
	"github.com/menta2k/photo-enhancer/pkg/compare"
	"github.com/menta2k/photo-enhancer/pkg/processing"
	"github.com/menta2k/photo-enhancer/pkg/types"
)

var (
	outFlag         string
	archiveFlag     string
	methodFlag      string
	noAIFlag        bool
	noWatermarkFlag bool
	workersFlag     int
	compareFlag     bool
	uploadFlag      bool
)

var enhanceCmd = &cobra.Command{
	Use:   "enhance <file|dir>...",
	Short: "Enhance photos and write the results",
	Long: `Enhance walks the given files and directories for JPEG, PNG and WebP photos,
runs each through analysis, enhancement and the configured watermark, and
writes <name>_enhanced.jpg files to the output directory.

A photo that fails is reported and the rest of the batch continues.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runEnhance,
}

func init() {
	enhanceCmd.Flags().StringVarP(&outFlag, "out", "o", "", "output directory (default from config)")
	enhanceCmd.Flags().StringVar(&archiveFlag, "archive", "", "also write all results into this zip file")
	enhanceCmd.Flags().StringVar(&methodFlag, "method", "", "archive compression: deflate or zstd (default from config)")
	enhanceCmd.Flags().BoolVar(&noAIFlag, "no-ai", false, "skip analysis and use the default adjustments")
	enhanceCmd.Flags().BoolVar(&noWatermarkFlag, "no-watermark", false, "do not apply the saved watermark")
	enhanceCmd.Flags().IntVarP(&workersFlag, "workers", "w", 0, "photos processed at once (default from config, 1 = sequential)")
	enhanceCmd.Flags().BoolVar(&compareFlag, "compare", false, "also write a before/after split view per photo")
	enhanceCmd.Flags().BoolVar(&uploadFlag, "upload", false, "upload the archive to the configured object storage")
}

func runEnhance(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if uploadFlag && archiveFlag == "" {
		return errors.New("--upload needs --archive")
	}
	if uploadFlag && cfg.Storage.Endpoint == "" {
		return errors.New("--upload needs storage.endpoint in the config")
	}

	outDir := cfg.Output.Dir
	if outFlag != "" {
		outDir = outFlag
	}
	workers := cfg.Batch.Workers
	if workersFlag > 0 {
		workers = workersFlag
	}

	paths, err := utils.CollectImageFiles(args)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return errors.New("no images found")
	}

	vc, err := visionClient(ctx, noAIFlag)
	if err != nil {
		return err
	}

	wm := types.WatermarkConfig{}
	if !noWatermarkFlag {
		ws, err := watermarkSettings()
		if err != nil {
			return err
		}
		if wm, err = ws.Load(); err != nil {
			return fmt.Errorf("failed to load watermark settings: %w", err)
		}
	}

	pe := photoenhancer.New(photoenhancer.Config{
		Vision:           vc,
		Model:            cfg.Vision.Model,
		AnalyzerOptions:  analyzerOptions(),
		EnhanceQuality:   cfg.Enhance.Quality,
		WatermarkQuality: cfg.Watermark.Quality,
		BatchOptions: []batch.Option{
			batch.WithWorkers(workers),
			batch.WithMaxFileSize(cfg.Batch.MaxFileSize),
			batch.WithAllowedTypes(cfg.Batch.AllowedTypes...),
			batch.WithRequireAnalysis(cfg.Batch.RequireAnalysis && !noAIFlag),
		},
	})

	b := pe.NewBatch(batch.WithProgress(func(it types.ProcessedImage) {
		switch it.Status {
		case types.StatusDone:
			fmt.Printf("  ✓ %s\n", it.Name)
		case types.StatusError:
			fmt.Printf("  ✗ %s: %s\n", it.Name, it.Error)
		}
	}))

	sources := make([]batch.Source, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			fmt.Printf("  ✗ %s: %v\n", p, err)
			continue
		}
		sources = append(sources, batch.Source{Name: p, Data: data})
	}

	added, rejected := b.Add(sources...)
	for _, r := range rejected {
		fmt.Printf("  ✗ %s: %v\n", r.Name, r.Err)
	}
	if len(added) == 0 {
		return errors.New("no photos accepted")
	}

	fmt.Printf("Enhancing %d photo(s)...\n", len(added))
	summary, err := b.ProcessBatch(ctx, wm)
	if errors.Is(err, batch.ErrMissingCredential) {
		return fmt.Errorf("%w: run 'photo-enhancer key set' or pass --no-ai", err)
	}
	if err != nil {
		return err
	}

	if err := utils.EnsureDir(outDir); err != nil {
		return err
	}

	exporter, err := newExporter()
	if err != nil {
		return err
	}

	done := b.Done()
	for _, it := range done {
		outPath := utils.OutputPath(outDir, exporter.Filename(it.Name))
		if err := os.WriteFile(outPath, it.Output, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", outPath, err)
		}
		log.Debug().Str("file", outPath).Str("size", utils.FormatFileSize(int64(len(it.Output)))).Msg("Wrote enhanced photo")

		if compareFlag {
			if err := writeComparison(outDir, it); err != nil {
				log.Warn().Err(err).Str("file", it.Name).Msg("Failed to render comparison")
			}
		}
	}

	if archiveFlag != "" {
		if err := writeArchive(ctx, exporter, done); err != nil {
			return err
		}
	}

	fmt.Printf("\nDone: %d enhanced, %d failed", summary.Succeeded, summary.Failed)
	if summary.Defaulted > 0 {
		fmt.Printf(", %d with default adjustments", summary.Defaulted)
	}
	if summary.Remaining > 0 {
		fmt.Printf(", %d not started", summary.Remaining)
	}
	fmt.Printf(" (%s)\n", summary.Duration.Round(time.Millisecond))

	if summary.Failed > 0 || summary.Remaining > 0 {
		return fmt.Errorf("%d photo(s) were not enhanced", summary.Failed+summary.Remaining)
	}
	return nil
}

// visionClient builds the configured backend. It returns nil without error
// when analysis is disabled or no key is available; the batch then decides
// whether that is acceptable.
func visionClient(ctx context.Context, disabled bool) (client.VisionClient, error) {
	if disabled {
		return nil, nil
	}

	backend := photoenhancer.Backend(cfg.Vision.Backend)
	opts := photoenhancer.VisionOptions{
		Backend: backend,
		URL:     cfg.Vision.URL,
		APIKey:  cfg.Vision.APIKey,
		Timeout: cfg.Vision.Timeout,
	}

	if backend.NeedsAPIKey() {
		key, source, err := credentials.Resolve(cfg.Vision.APIKey)
		if errors.Is(err, credentials.ErrNoAPIKey) {
			log.Warn().Msg("No API key configured, photo analysis unavailable")
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		log.Debug().Str("source", string(source)).Msg("Resolved API key")
		opts.APIKey = key
	}

	return photoenhancer.NewVisionClient(ctx, opts)
}

func analyzerOptions() []analyzer.Option {
	opts := []analyzer.Option{analyzer.WithSendSize(cfg.Vision.SendSize)}
	if cfg.Vision.Temperature > 0 {
		opts = append(opts, analyzer.WithTemperature(float32(cfg.Vision.Temperature)))
	}
	if cfg.Vision.MaxTokens > 0 {
		opts = append(opts, analyzer.WithMaxTokens(cfg.Vision.MaxTokens))
	}
	return opts
}

func newExporter() (*archive.Exporter, error) {
	name := cfg.Output.ArchiveMethod
	if methodFlag != "" {
		name = methodFlag
	}
	method, err := archive.ParseMethod(name)
	if err != nil {
		return nil, err
	}
	return archive.New(archive.WithSuffix(cfg.Output.Suffix), archive.WithMethod(method)), nil
}

func writeArchive(ctx context.Context, exporter *archive.Exporter, items []types.ProcessedImage) error {
	var buf bytes.Buffer
	manifest, err := exporter.Write(&buf, items)
	if err != nil {
		return err
	}
	if err := os.WriteFile(archiveFlag, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write archive: %w", err)
	}
	fmt.Printf("Archive: %s (%d photos, %s)\n", archiveFlag, len(manifest.Entries), utils.FormatFileSize(int64(buf.Len())))

	if !uploadFlag {
		return nil
	}

	s, err := object.NewStorage(object.Config{
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		Bucket:    cfg.Storage.Bucket,
		Prefix:    cfg.Storage.Prefix,
		UseSSL:    cfg.Storage.UseSSL,
	})
	if err != nil {
		return err
	}
	name, err := s.Save(ctx, filepath.Base(archiveFlag), bytes.NewReader(buf.Bytes()), int64(buf.Len()), "application/zip")
	if err != nil {
		return err
	}
	fmt.Printf("Uploaded: %s/%s\n", cfg.Storage.Bucket, name)
	return nil
}

func writeComparison(outDir string, it types.ProcessedImage) error {
	before, err := processing.Decode(it.Source)
	if err != nil {
		return err
	}
	after, err := processing.Decode(it.Output)
	if err != nil {
		return err
	}
	view, err := compare.Render(before, after, 0.5)
	if err != nil {
		return err
	}
	data, err := processing.EncodeJPEG(view, cfg.Enhance.Quality)
	if err != nil {
		return err
	}

	base := filepath.Base(it.Name)
	name := utils.SanitizeFilename(strings.TrimSuffix(base, filepath.Ext(base))) + "_compare.jpg"
	return os.WriteFile(utils.OutputPath(outDir, name), data, 0644)
}
