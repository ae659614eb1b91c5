// Package config loads the application's configuration from a YAML
// file, overlaid with environment variables.
package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"

	"github.com/burningmantech/ranger-transmissions/internal/search"
	"github.com/burningmantech/ranger-transmissions/internal/store"
)

// Config holds all configuration for the application. Values resolve
// in order: built-in defaults, then the YAML file, then environment
// variables.
type Config struct {
	// Catalog and search index files.
	StorePath string `yaml:"store" env:"RTX_STORE" validate:"required"`
	IndexPath string `yaml:"index" env:"RTX_INDEX" validate:"required"`

	// Logging settings.
	LogLevel  string `yaml:"log_level" env:"RTX_LOG_LEVEL" validate:"oneof=debug info warn warning error"`
	LogFormat string `yaml:"log_format" env:"RTX_LOG_FORMAT" validate:"oneof=text json"`

	// Web API listen address.
	WebAddr string `yaml:"web_addr" env:"RTX_WEB_ADDR" validate:"hostname_port"`

	// Worker pool size for indexing runs.
	IndexWorkers int `yaml:"index_workers" env:"RTX_INDEX_WORKERS" validate:"min=1"`

	Transcription Transcription `yaml:"transcription"`

	// Events maps known events to their audio archives.
	Events []Event `yaml:"events" validate:"dive"`
}

// Transcription configures the speech-to-text step of indexing runs.
type Transcription struct {
	Enabled  bool   `yaml:"enabled" env:"RTX_TRANSCRIPTION_ENABLED"`
	APIKey   string `yaml:"api_key" env:"OPENAI_API_KEY" validate:"required_if=Enabled true"` // Masked when printed
	Model    string `yaml:"model" env:"RTX_TRANSCRIPTION_MODEL"`
	Language string `yaml:"language" env:"RTX_TRANSCRIPTION_LANGUAGE"`
}

// Event is one configured event: the catalog identity plus the
// directory its audio archive lives in.
type Event struct {
	ID        string `yaml:"id" validate:"required"`
	Name      string `yaml:"name" validate:"required"`
	SourceDir string `yaml:"source_dir"`
}

var validate = validator.New()

// DefaultPath returns the default configuration file location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".rtx.yml"
	}
	return filepath.Join(home, ".rtx.yml")
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		StorePath:    store.DefaultPath(),
		IndexPath:    search.DefaultPath(),
		LogLevel:     "info",
		LogFormat:    "text",
		WebAddr:      "localhost:8080",
		IndexWorkers: 32,
		Transcription: Transcription{
			Model: "whisper-1",
		},
	}
}

// Load reads the configuration file at path, or the default location
// when path is empty, applies the environment overlay, and validates
// the result. A missing file at the default location is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}

	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	case os.IsNotExist(err) && !explicit:
		// Defaults and environment only.
	default:
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("config: environment: %w", err)
	}

	cfg.expandPaths()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for structural problems.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	seen := make(map[string]bool, len(c.Events))
	for _, e := range c.Events {
		if seen[e.ID] {
			return fmt.Errorf("config: duplicate event %q", e.ID)
		}
		seen[e.ID] = true
	}
	return nil
}

// Event returns the configured event with the given ID.
func (c *Config) Event(id string) (Event, bool) {
	for _, e := range c.Events {
		if e.ID == id {
			return e, true
		}
	}
	return Event{}, false
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for log
// shippers; otherwise it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns the configuration with sensitive values masked.
func (c *Config) String() string {
	key := ""
	if c.Transcription.APIKey != "" {
		key = "(set)"
	}
	return fmt.Sprintf(
		"Config{Store: %s, Index: %s, LogLevel: %s, LogFormat: %s, WebAddr: %s, IndexWorkers: %d, Transcription: {Enabled: %t, Model: %s, APIKey: %s}, Events: %d}",
		c.StorePath,
		c.IndexPath,
		c.LogLevel,
		c.LogFormat,
		c.WebAddr,
		c.IndexWorkers,
		c.Transcription.Enabled,
		c.Transcription.Model,
		key,
		len(c.Events),
	)
}

func (c *Config) expandPaths() {
	c.StorePath = expandTilde(c.StorePath)
	c.IndexPath = expandTilde(c.IndexPath)
	for i := range c.Events {
		c.Events[i].SourceDir = expandTilde(c.Events[i].SourceDir)
	}
}

func expandTilde(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
