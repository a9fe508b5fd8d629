package main

import (
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/menta2k/photo-enhancer/internal/config"
	"github.com/menta2k/photo-enhancer/internal/logging"
	"github.com/menta2k/photo-enhancer/internal/store"
)

// Global flags
var (
	configFlag   string
	logLevelFlag string
	prettyFlag   bool
)

// cfg is loaded once in PersistentPreRunE
var cfg *config.Config

// rootCmd is the main Cobra command for the CLI.
var rootCmd = &cobra.Command{
	Use:   "photo-enhancer",
	Short: "AI-assisted tone enhancement for photos",
	Long: `photo-enhancer asks a vision model for brightness, contrast, saturation,
warmth, shadow, highlight and sharpness adjustments, applies them to each
photo and optionally stamps a logo in a bottom corner.

When the model is unreachable or answers with something unusable, a fixed
set of gentle default adjustments is used instead.

Examples:
  photo-enhancer enhance ./holiday --out ./enhanced
  photo-enhancer enhance a.jpg b.png --archive photos.zip --method zstd
  photo-enhancer enhance ./shoot --no-ai --compare
  photo-enhancer watermark set logo.png && photo-enhancer watermark opacity 60
  photo-enhancer key set`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path := configFlag
		if path == "" {
			path = config.GetConfigPath()
		}

		loaded, err := config.Load(path)
		if err != nil {
			return err
		}
		cfg = loaded

		flags := cmd.Flags()
		level, pretty := logSettings(cfg.Log,
			logLevelFlag, flags.Changed("log-level"),
			prettyFlag, flags.Changed("pretty"))
		logging.Init(level, pretty)
		return nil
	},
}

// logSettings lets explicitly set flags override the configured log settings
func logSettings(lc config.LogConfig, level string, levelSet bool, pretty, prettySet bool) (string, bool) {
	if !levelSet {
		level = lc.Level
	}
	if !prettySet {
		pretty = lc.Pretty
	}
	return level, pretty
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "config file (default "+config.GetConfigPath()+")")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&prettyFlag, "pretty", true, "human-readable console logs")

	rootCmd.AddCommand(enhanceCmd, analyzeCmd, watermarkCmd, keyCmd, compareCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}

func watermarkSettings() (*store.WatermarkSettings, error) {
	kv, err := store.NewFileKV(cfg.Store.Dir)
	if err != nil {
		return nil, err
	}
	return store.NewWatermarkSettings(kv), nil
}
