// Package config handles Steplab configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config is the root configuration structure for Steplab.
type Config struct {
	// Global settings
	Global GlobalConfig `yaml:"global" mapstructure:"global"`

	// Database settings
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`

	// Logging settings
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`

	// Tracer settings
	Tracer TracerConfig `yaml:"tracer" mapstructure:"tracer"`

	// Sandbox settings
	Sandbox SandboxConfig `yaml:"sandbox" mapstructure:"sandbox"`

	// Archive settings
	Archive ArchiveConfig `yaml:"archive" mapstructure:"archive"`
}

// GlobalConfig contains global Steplab settings.
type GlobalConfig struct {
	// DataDir is where Steplab stores its data (default: ~/.local/share/steplab).
	DataDir string `yaml:"data_dir" mapstructure:"data_dir"`

	// ConfigDir is where config files are stored (default: ~/.config/steplab).
	ConfigDir string `yaml:"config_dir" mapstructure:"config_dir"`
}

// DatabaseConfig contains database settings.
type DatabaseConfig struct {
	// Path is the SQLite database file path.
	Path string `yaml:"path" mapstructure:"path"`

	// MaxConnections is the maximum number of database connections.
	MaxConnections int `yaml:"max_connections" mapstructure:"max_connections"`

	// BusyTimeoutMs is how long to wait for a locked database (milliseconds).
	BusyTimeoutMs int `yaml:"busy_timeout_ms" mapstructure:"busy_timeout_ms"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `yaml:"level" mapstructure:"level"`

	// Format is the output format (json, console).
	Format string `yaml:"format" mapstructure:"format"`

	// File is an optional log file path.
	File string `yaml:"file" mapstructure:"file"`

	// EnableCaller adds caller information to logs.
	EnableCaller bool `yaml:"enable_caller" mapstructure:"enable_caller"`
}

// TracerConfig contains settings for the instrumented interpreter.
type TracerConfig struct {
	// InterpreterPath is the tracer executable. Empty disables local tracing.
	InterpreterPath string `yaml:"interpreter_path" mapstructure:"interpreter_path"`

	// InterpreterArgs are arguments inserted before the positional inputs
	// (code, stdin, step cap).
	InterpreterArgs []string `yaml:"interpreter_args" mapstructure:"interpreter_args"`

	// MaxSteps is the default step cap per trace.
	MaxSteps int `yaml:"max_steps" mapstructure:"max_steps"`

	// Timeout is the wall-clock limit for one trace run.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// SandboxConfig contains settings for the Docker sandbox backend.
type SandboxConfig struct {
	// Enabled turns the sandbox backend on.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// Image is the tracer container image.
	Image string `yaml:"image" mapstructure:"image"`

	// ContainerPrefix prefixes generated container names.
	ContainerPrefix string `yaml:"container_prefix" mapstructure:"container_prefix"`

	// Timeout is the wall-clock limit for one sandboxed trace run.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`

	// MemoryLimitMB caps container memory.
	MemoryLimitMB int64 `yaml:"memory_limit_mb" mapstructure:"memory_limit_mb"`
}

// ArchiveConfig contains settings for the trace archive.
type ArchiveConfig struct {
	// Enabled records completed traces in the database.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// MaxTraces bounds the archive; older traces are pruned. 0 means unbounded.
	MaxTraces int `yaml:"max_traces" mapstructure:"max_traces"`
}

// DefaultConfig returns a Config populated with defaults.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	dataDir := filepath.Join(home, ".local", "share", "steplab")
	configDir := filepath.Join(home, ".config", "steplab")

	return &Config{
		Global: GlobalConfig{
			DataDir:   dataDir,
			ConfigDir: configDir,
		},
		Database: DatabaseConfig{
			Path:           filepath.Join(dataDir, "steplab.db"),
			MaxConnections: 10,
			BusyTimeoutMs:  5000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Tracer: TracerConfig{
			InterpreterPath: "pytracer",
			MaxSteps:        5000,
			Timeout:         10 * time.Second,
		},
		Sandbox: SandboxConfig{
			Enabled:         false,
			Image:           "steplab/pytracer:latest",
			ContainerPrefix: "steplab-trace",
			Timeout:         10 * time.Second,
			MemoryLimitMB:   256,
		},
		Archive: ArchiveConfig{
			Enabled:   true,
			MaxTraces: 1000,
		},
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Tracer.MaxSteps <= 0 {
		return fmt.Errorf("tracer.max_steps must be positive, got %d", c.Tracer.MaxSteps)
	}
	if c.Tracer.Timeout <= 0 {
		return fmt.Errorf("tracer.timeout must be positive, got %s", c.Tracer.Timeout)
	}
	if c.Sandbox.Enabled && c.Sandbox.Image == "" {
		return fmt.Errorf("sandbox.image is required when the sandbox is enabled")
	}
	if c.Sandbox.Timeout <= 0 {
		return fmt.Errorf("sandbox.timeout must be positive, got %s", c.Sandbox.Timeout)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	if c.Archive.MaxTraces < 0 {
		return fmt.Errorf("archive.max_traces must not be negative, got %d", c.Archive.MaxTraces)
	}
	return nil
}

// EnsureDirectories creates the data and config directories if missing.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Global.DataDir, c.Global.ConfigDir, filepath.Dir(c.Database.Path)} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
