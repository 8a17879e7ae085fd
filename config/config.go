// Package config loads server configuration from a YAML file and BGERR_*
// environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/jathurchan/bgerr/errhandler"
)

// EnvPrefix prefixes every environment override, e.g. BGERR_LOG_LEVEL.
const EnvPrefix = "BGERR"

// ErrInvalidConfig is returned when the loaded configuration is unusable.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Config is the full server configuration.
type Config struct {
	Log      LogConfig      `yaml:"log"`
	Recovery RecoveryConfig `yaml:"recovery"`
	Engine   EngineConfig   `yaml:"engine"`
	Server   ServerConfig   `yaml:"server"`
}

// LogConfig selects the log level and output format.
type LogConfig struct {
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"`
}

// RecoveryConfig mirrors errhandler.Options.
type RecoveryConfig struct {
	AutoRecovery              bool          `yaml:"auto_recovery" split_words:"true"`
	BackoffBase               time.Duration `yaml:"backoff_base" split_words:"true"`
	BackoffCap                time.Duration `yaml:"backoff_cap" split_words:"true"`
	BackoffMultiplier         float64       `yaml:"backoff_multiplier" split_words:"true"`
	BackoffJitter             float64       `yaml:"backoff_jitter" split_words:"true"`
	MaxRetryAttempts          int           `yaml:"max_retry_attempts" split_words:"true"`
	DiscardedErrorLogInterval time.Duration `yaml:"discarded_error_log_interval" split_words:"true"`
}

// EngineConfig configures the storage host.
type EngineConfig struct {
	DataDir           string `yaml:"data_dir" split_words:"true"`
	MinFreeBytes      uint64 `yaml:"min_free_bytes" split_words:"true"`
	MaxBackgroundJobs int    `yaml:"max_background_jobs" split_words:"true"`
}

// ServerConfig configures the network listeners.
type ServerConfig struct {
	GRPCAddr        string        `yaml:"grpc_addr" split_words:"true"`
	MetricsAddr     string        `yaml:"metrics_addr" split_words:"true"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" split_words:"true"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	opts := errhandler.DefaultOptions()
	return Config{
		Log: LogConfig{Level: "info"},
		Recovery: RecoveryConfig{
			AutoRecovery:              opts.AutoRecovery,
			BackoffBase:               opts.BackoffBase,
			BackoffCap:                opts.BackoffCap,
			BackoffMultiplier:         opts.BackoffMultiplier,
			BackoffJitter:             opts.BackoffJitter,
			MaxRetryAttempts:          opts.MaxRetryAttempts,
			DiscardedErrorLogInterval: opts.DiscardedErrorLogInterval,
		},
		Engine: EngineConfig{
			DataDir:           "./data",
			MinFreeBytes:      64 << 20,
			MaxBackgroundJobs: 4,
		},
		Server: ServerConfig{
			GRPCAddr:        ":9090",
			MetricsAddr:     ":9100",
			ShutdownTimeout: 10 * time.Second,
		},
	}
}

// Load builds the configuration from defaults, then the YAML file at path
// (skipped when path is empty), then environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config file: %w", err)
		}
		defer f.Close()
		if err := decodeYAML(f, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("process environment variables: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Parse decodes YAML from data on top of the defaults without reading the
// environment.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := decodeYAML(bytes.NewReader(data), &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decodeYAML(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error", "fatal":
	default:
		return fmt.Errorf("%w: log.level %q is not a known level", ErrInvalidConfig, c.Log.Level)
	}
	if err := c.RecoveryOptions().Validate(); err != nil {
		return fmt.Errorf("%w: recovery: %v", ErrInvalidConfig, err)
	}
	if c.Engine.DataDir == "" {
		return fmt.Errorf("%w: engine.data_dir must be set", ErrInvalidConfig)
	}
	if c.Engine.MaxBackgroundJobs < 1 {
		return fmt.Errorf("%w: engine.max_background_jobs must be >= 1, got %d",
			ErrInvalidConfig, c.Engine.MaxBackgroundJobs)
	}
	if c.Server.GRPCAddr == "" {
		return fmt.Errorf("%w: server.grpc_addr must be set", ErrInvalidConfig)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("%w: server.shutdown_timeout must be positive", ErrInvalidConfig)
	}
	return nil
}

// RecoveryOptions converts the recovery section into handler options.
func (c *Config) RecoveryOptions() errhandler.Options {
	r := c.Recovery
	return errhandler.Options{
		AutoRecovery:              r.AutoRecovery,
		BackoffBase:               r.BackoffBase,
		BackoffCap:                r.BackoffCap,
		BackoffMultiplier:         r.BackoffMultiplier,
		BackoffJitter:             r.BackoffJitter,
		MaxRetryAttempts:          r.MaxRetryAttempts,
		DiscardedErrorLogInterval: r.DiscardedErrorLogInterval,
	}
}
