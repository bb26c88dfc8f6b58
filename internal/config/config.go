// Package config loads the optional vidoxide configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vidoxide/vidoxide-go/controller"
	"github.com/vidoxide/vidoxide-go/output"
)

// Config is the complete configuration.
type Config struct {
	Verbose     bool             `yaml:"verbose"`
	MetricsAddr string           `yaml:"metrics_addr"` // e.g. ":9090", empty disables
	Capture     CaptureConfig    `yaml:"capture"`
	Recording   RecordingConfig  `yaml:"recording"`
	Histogram   HistogramConfig  `yaml:"histogram"`
	Controller  ControllerConfig `yaml:"controller"`
}

// CaptureConfig contains capture settings.
type CaptureConfig struct {
	FPS            float64 `yaml:"fps"`              // playback rate of recorded input and the simulator
	MaxBufferedMiB int64   `yaml:"max_buffered_mib"` // recording back-pressure limit
}

// RecordingConfig contains where and how recordings are written.
type RecordingConfig struct {
	Dir        string `yaml:"dir"`
	Format     string `yaml:"format"` // ser, tiff, bmp
	Prefix     string `yaml:"prefix"`
	Compress   bool   `yaml:"compress"` // TIFF only
	Observer   string `yaml:"observer"`
	Instrument string `yaml:"instrument"`
	Telescope  string `yaml:"telescope"`
}

// HistogramConfig contains histogram settings.
type HistogramConfig struct {
	IntervalMS int `yaml:"interval_ms"` // minimum time between histograms, 0 = every preview
}

// ControllerConfig contains input device settings.
type ControllerConfig struct {
	Enabled bool              `yaml:"enabled"`
	Dir     string            `yaml:"dir"`
	SysDir  string            `yaml:"sys_dir"`
	Actions map[string]string `yaml:"actions"` // target name -> source, see controller.ParseSource
}

// Default returns the configuration used when there is no file.
func Default() *Config {
	return &Config{
		Capture: CaptureConfig{
			FPS:            25,
			MaxBufferedMiB: 2048,
		},
		Recording: RecordingConfig{
			Dir:    ".",
			Format: "ser",
			Prefix: "frame",
		},
		Histogram: HistogramConfig{
			IntervalMS: 500,
		},
		Controller: ControllerConfig{
			Enabled: true,
			Dir:     "/dev/input",
			SysDir:  "/sys/class/input",
		},
	}
}

// Load reads a YAML configuration file over the defaults. A missing file
// yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration.
func Validate(cfg *Config) error {
	if !(cfg.Capture.FPS > 0) {
		return fmt.Errorf("capture.fps must be > 0, got %v", cfg.Capture.FPS)
	}
	if cfg.Capture.MaxBufferedMiB <= 0 {
		return fmt.Errorf("capture.max_buffered_mib must be > 0, got %d", cfg.Capture.MaxBufferedMiB)
	}
	if cfg.Recording.Dir == "" {
		return fmt.Errorf("recording.dir is required")
	}
	if _, err := output.ParseFormat(cfg.Recording.Format); err != nil {
		return fmt.Errorf("recording.format: %w", err)
	}
	if cfg.Histogram.IntervalMS < 0 {
		return fmt.Errorf("histogram.interval_ms must be >= 0, got %d", cfg.Histogram.IntervalMS)
	}
	if cfg.Controller.Enabled && cfg.Controller.Dir == "" {
		return fmt.Errorf("controller.dir is required when the controller is enabled")
	}
	if _, err := controller.ParseAssignments(cfg.Controller.Actions); err != nil {
		return fmt.Errorf("controller.actions: %w", err)
	}
	return nil
}

// RecordingFormat returns the parsed recording format.
func (c *Config) RecordingFormat() output.Format {
	f, _ := output.ParseFormat(c.Recording.Format)
	return f
}

// HistogramInterval returns the minimum time between histograms.
func (c *Config) HistogramInterval() time.Duration {
	return time.Duration(c.Histogram.IntervalMS) * time.Millisecond
}

// MaxBufferedKiB returns the recording back-pressure limit in KiB.
func (c *Config) MaxBufferedKiB() int64 {
	return c.Capture.MaxBufferedMiB * 1024
}

// Assignments returns the parsed controller actions.
func (c *Config) Assignments() (controller.Assignments, error) {
	return controller.ParseAssignments(c.Controller.Actions)
}
