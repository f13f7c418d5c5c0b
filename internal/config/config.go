// Package config defines service configuration structures and loading hooks.
package config

import (
	"fmt"
	"runtime"
	"time"

	"github.com/okian/framecoach/internal/domain/rules"
)

// Template store drivers.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// Config contains process configuration. Keys are flat so that every field
// maps to one FRAMECOACH_ variable.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects text or json output.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr            string        `koanf:"addr"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	MaxImageBytes   int64         `koanf:"max_image_bytes"`

	// AnalyzerURL is the vision endpoint. When empty the service answers
	// with AnalyzerFixture, which is meant for demos and tests.
	AnalyzerURL          string        `koanf:"analyzer_url"`
	AnalyzerToken        string        `koanf:"analyzer_token"`
	AnalyzerTimeout      time.Duration `koanf:"analyzer_timeout"`
	AnalyzerMaxBodyBytes int64         `koanf:"analyzer_max_body_bytes"`
	AnalyzerFixture      string        `koanf:"analyzer_fixture"`

	// QueueSize bounds the async analysis queue.
	QueueSize int `koanf:"queue_size"`
	// WorkerCount sets the number of analysis workers.
	WorkerCount int `koanf:"worker_count"`
	// DedupeSize sets how many async request IDs are remembered.
	DedupeSize int           `koanf:"dedupe_size"`
	SessionTTL time.Duration `koanf:"session_ttl"`

	// TemplateStore is memory or sqlite. TemplateDSN is the sqlite file.
	TemplateStore string `koanf:"template_store"`
	TemplateDSN   string `koanf:"template_dsn"`

	// MetricsRefresh is the period of the process and service gauge refresh.
	MetricsRefresh time.Duration `koanf:"metrics_refresh"`

	// Rule tuning. Zero keeps the engine default, except MaxCommands which
	// must be between 1 and 3.
	ForegroundCutoff float64 `koanf:"foreground_cutoff"`
	GazeDivisor      float64 `koanf:"gaze_divisor"`
	FreezeShutterS   float64 `koanf:"freeze_shutter_s"`
	PanningShutterS  float64 `koanf:"panning_shutter_s"`
	MaxCommands      int     `koanf:"max_commands"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:             "info",
		LogFormat:            "text",
		Addr:                 ":9080",
		ShutdownTimeout:      15 * time.Second,
		MaxImageBytes:        10 << 20,
		AnalyzerTimeout:      30 * time.Second,
		AnalyzerMaxBodyBytes: 1 << 20,
		QueueSize:            1024,
		WorkerCount:          runtime.NumCPU() * 2,
		DedupeSize:           10_000,
		SessionTTL:           30 * time.Minute,
		TemplateStore:        StoreMemory,
		TemplateDSN:          "framecoach.db",
		MetricsRefresh:       10 * time.Second,
		MaxCommands:          3,
	}
}

// Validate reports the first setting the service cannot start with.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.LogFormat != "text" && c.LogFormat != "json":
		return fmt.Errorf("%w: log_format must be text or json, got %q", ErrInvalidConfig, c.LogFormat)
	case c.TemplateStore != StoreMemory && c.TemplateStore != StoreSQLite:
		return fmt.Errorf("%w: unknown template_store %q", ErrInvalidConfig, c.TemplateStore)
	case c.TemplateStore == StoreSQLite && c.TemplateDSN == "":
		return fmt.Errorf("%w: template_dsn is required for sqlite", ErrInvalidConfig)
	case c.AnalyzerTimeout <= 0:
		return fmt.Errorf("%w: analyzer_timeout must be positive", ErrInvalidConfig)
	case c.MetricsRefresh <= 0:
		return fmt.Errorf("%w: metrics_refresh must be positive", ErrInvalidConfig)
	case c.MaxImageBytes <= 0:
		return fmt.Errorf("%w: max_image_bytes must be positive", ErrInvalidConfig)
	case c.ForegroundCutoff < 0 || c.ForegroundCutoff >= 1:
		return fmt.Errorf("%w: foreground_cutoff must be in [0,1)", ErrInvalidConfig)
	case c.MaxCommands < 1 || c.MaxCommands > rules.MaxSurfaced:
		return fmt.Errorf("%w: max_commands must be in [1,%d], got %d", ErrInvalidConfig, rules.MaxSurfaced, c.MaxCommands)
	}
	return nil
}
