package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. PHOTO_ENHANCER_VISION_MODEL
const EnvPrefix = "PHOTO_ENHANCER"

// Config holds the application configuration
type Config struct {
	Vision    VisionConfig    `mapstructure:"vision"`
	Enhance   EnhanceConfig   `mapstructure:"enhance"`
	Watermark WatermarkConfig `mapstructure:"watermark"`
	Batch     BatchConfig     `mapstructure:"batch"`
	Output    OutputConfig    `mapstructure:"output"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Store     StoreConfig     `mapstructure:"store"`
	Log       LogConfig       `mapstructure:"log"`
}

// VisionConfig selects and tunes the tone-analysis backend
type VisionConfig struct {
	Backend     string        `mapstructure:"backend"` // gemini, ollama or llamacpp
	Model       string        `mapstructure:"model"`
	URL         string        `mapstructure:"url"`
	APIKey      string        `mapstructure:"api_key"`
	Timeout     time.Duration `mapstructure:"timeout"` // 0 = no timeout
	SendSize    int           `mapstructure:"send_size"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
}

// EnhanceConfig holds pixel enhancer settings
type EnhanceConfig struct {
	Quality int `mapstructure:"quality"`
}

// WatermarkConfig holds compositor settings
type WatermarkConfig struct {
	Quality  int    `mapstructure:"quality"`
	Position string `mapstructure:"position"`
	Opacity  int    `mapstructure:"opacity"`
}

// BatchConfig holds orchestrator settings
type BatchConfig struct {
	Workers         int      `mapstructure:"workers"`
	MaxFileSize     int64    `mapstructure:"max_file_size"`
	AllowedTypes    []string `mapstructure:"allowed_types"`
	RequireAnalysis bool     `mapstructure:"require_analysis"`
}

// OutputConfig holds output naming and archive settings
type OutputConfig struct {
	Dir           string `mapstructure:"dir"`
	Suffix        string `mapstructure:"suffix"`
	ArchiveName   string `mapstructure:"archive_name"`
	ArchiveMethod string `mapstructure:"archive_method"` // deflate or zstd
}

// StorageConfig configures the optional S3-compatible archive sink
type StorageConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// StoreConfig locates the local settings store
type StoreConfig struct {
	Dir string `mapstructure:"dir"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Vision: VisionConfig{
			Backend:     "gemini",
			Model:       "gemini-2.5-flash",
			Temperature: 0.2,
			MaxTokens:   256,
		},
		Enhance: EnhanceConfig{Quality: 93},
		Watermark: WatermarkConfig{
			Quality:  92,
			Position: "bottom-right",
			Opacity:  80,
		},
		Batch: BatchConfig{
			Workers:         1,
			MaxFileSize:     10 * 1024 * 1024,
			AllowedTypes:    []string{"image/jpeg", "image/png", "image/webp"},
			RequireAnalysis: true,
		},
		Output: OutputConfig{
			Dir:           "./enhanced",
			Suffix:        "_enhanced",
			ArchiveName:   "enhanced_photos.zip",
			ArchiveMethod: "deflate",
		},
		Storage: StorageConfig{Bucket: "photo-enhancer"},
		Store:   StoreConfig{Dir: defaultStoreDir()},
		Log:     LogConfig{Level: "info", Pretty: true},
	}
}

// Load reads the file at path (if non-empty) over the defaults and applies
// environment overrides. A missing file at the default location is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !(errors.As(err, &notFound) || (errors.Is(err, os.ErrNotExist) && path == GetConfigPath())) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("vision.backend", d.Vision.Backend)
	v.SetDefault("vision.model", d.Vision.Model)
	v.SetDefault("vision.url", d.Vision.URL)
	v.SetDefault("vision.api_key", d.Vision.APIKey)
	v.SetDefault("vision.timeout", d.Vision.Timeout)
	v.SetDefault("vision.send_size", d.Vision.SendSize)
	v.SetDefault("vision.temperature", d.Vision.Temperature)
	v.SetDefault("vision.max_tokens", d.Vision.MaxTokens)

	v.SetDefault("enhance.quality", d.Enhance.Quality)

	v.SetDefault("watermark.quality", d.Watermark.Quality)
	v.SetDefault("watermark.position", d.Watermark.Position)
	v.SetDefault("watermark.opacity", d.Watermark.Opacity)

	v.SetDefault("batch.workers", d.Batch.Workers)
	v.SetDefault("batch.max_file_size", d.Batch.MaxFileSize)
	v.SetDefault("batch.allowed_types", d.Batch.AllowedTypes)
	v.SetDefault("batch.require_analysis", d.Batch.RequireAnalysis)

	v.SetDefault("output.dir", d.Output.Dir)
	v.SetDefault("output.suffix", d.Output.Suffix)
	v.SetDefault("output.archive_name", d.Output.ArchiveName)
	v.SetDefault("output.archive_method", d.Output.ArchiveMethod)

	v.SetDefault("storage.endpoint", d.Storage.Endpoint)
	v.SetDefault("storage.access_key", d.Storage.AccessKey)
	v.SetDefault("storage.secret_key", d.Storage.SecretKey)
	v.SetDefault("storage.bucket", d.Storage.Bucket)
	v.SetDefault("storage.prefix", d.Storage.Prefix)
	v.SetDefault("storage.use_ssl", d.Storage.UseSSL)

	v.SetDefault("store.dir", d.Store.Dir)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.pretty", d.Log.Pretty)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Vision.Backend {
	case "gemini", "ollama", "llamacpp":
	default:
		return fmt.Errorf("vision.backend must be gemini, ollama or llamacpp, got %q", c.Vision.Backend)
	}

	if c.Vision.Backend != "gemini" && c.Vision.URL == "" {
		return fmt.Errorf("vision.url is required for the %s backend", c.Vision.Backend)
	}

	if c.Vision.Timeout < 0 {
		return fmt.Errorf("vision.timeout cannot be negative")
	}

	if c.Vision.SendSize < 0 {
		return fmt.Errorf("vision.send_size cannot be negative")
	}

	if c.Vision.Temperature < 0 || c.Vision.Temperature > 2 {
		return fmt.Errorf("vision.temperature must be between 0 and 2")
	}

	if c.Enhance.Quality < 1 || c.Enhance.Quality > 100 {
		return fmt.Errorf("enhance.quality must be between 1 and 100")
	}

	if c.Watermark.Quality < 1 || c.Watermark.Quality > 100 {
		return fmt.Errorf("watermark.quality must be between 1 and 100")
	}

	if c.Watermark.Opacity < 30 || c.Watermark.Opacity > 100 {
		return fmt.Errorf("watermark.opacity must be between 30 and 100")
	}

	if c.Batch.Workers < 1 {
		return fmt.Errorf("batch.workers must be positive")
	}

	if c.Batch.MaxFileSize < 1 {
		return fmt.Errorf("batch.max_file_size must be positive")
	}

	if len(c.Batch.AllowedTypes) == 0 {
		return fmt.Errorf("batch.allowed_types cannot be empty")
	}

	switch c.Output.ArchiveMethod {
	case "deflate", "zstd":
	default:
		return fmt.Errorf("output.archive_method must be deflate or zstd, got %q", c.Output.ArchiveMethod)
	}

	if c.Storage.Endpoint != "" && c.Storage.Bucket == "" {
		return fmt.Errorf("storage.bucket is required when storage.endpoint is set")
	}

	return nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.yaml"
	}
	return filepath.Join(home, ".config", "photo-enhancer", "config.yaml")
}

func defaultStoreDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "./.photo-enhancer"
	}
	return filepath.Join(dir, "photo-enhancer")
}
