// Package config holds the run configuration of satroute, loaded from YAML
// and overridden by command line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/constellation-router/core"
	"github.com/signalsfoundry/constellation-router/internal/logging"
	"github.com/signalsfoundry/constellation-router/internal/observability"
	"github.com/signalsfoundry/constellation-router/timectrl"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

type Config struct {
	// Scenario is the YAML file with nodes and per-step geometry.
	Scenario string `yaml:"scenario"`

	Routing struct {
		Policy    string `yaml:"policy"`
		Homing    int    `yaml:"homing"`
		Symmetric bool   `yaml:"symmetric"`
		Unfilled  string `yaml:"unfilled"`
		Workers   int    `yaml:"workers"`
	} `yaml:"routing"`

	Clock struct {
		Cadence time.Duration `yaml:"cadence"`
		// Duration 0 runs until the last scenario step has been visited.
		Duration time.Duration `yaml:"duration"`
		Mode     string        `yaml:"mode"`
	} `yaml:"clock"`

	Output struct {
		Dir     string        `yaml:"dir"`
		Files   bool          `yaml:"files"`
		Bolt    string        `yaml:"bolt"`
		SQLite  string        `yaml:"sqlite"`
		Retries int           `yaml:"retries"`
		Backoff time.Duration `yaml:"backoff"`
	} `yaml:"output"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`

	Metrics struct {
		Addr string `yaml:"addr"`
	} `yaml:"metrics"`

	Tracing observability.TracingConfig `yaml:"tracing"`

	Query struct {
		Addr string `yaml:"addr"`
	} `yaml:"query"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.Routing.Policy = core.PolicySingle
	cfg.Routing.Unfilled = core.UnfilledZero.String()
	cfg.Clock.Cadence = 100 * time.Millisecond
	cfg.Clock.Mode = timectrl.Accelerated.String()
	cfg.Output.Dir = "out"
	cfg.Output.Files = true
	cfg.Output.Retries = 3
	cfg.Output.Backoff = 100 * time.Millisecond
	cfg.Log.Level = "info"
	cfg.Log.Format = "text"
	cfg.Tracing.Exporter = observability.ExporterStdout
	cfg.Tracing.ServiceName = "satroute"
	cfg.Tracing.SampleRatio = 1
	return cfg
}

// Load reads filename over the defaults and validates the result.
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field ranges and that names resolve.
func (c *Config) Validate() error {
	if _, err := c.Policy(); err != nil {
		return fmt.Errorf("%w: routing: %v", ErrInvalid, err)
	}
	if _, err := core.ParseUnfilledPolicy(c.Routing.Unfilled); err != nil {
		return fmt.Errorf("%w: routing: %v", ErrInvalid, err)
	}
	if c.Routing.Workers < 0 {
		return fmt.Errorf("%w: routing.workers must not be negative", ErrInvalid)
	}
	if c.Clock.Cadence <= 0 {
		return fmt.Errorf("%w: clock.cadence must be positive", ErrInvalid)
	}
	if c.Clock.Duration < 0 {
		return fmt.Errorf("%w: clock.duration must not be negative", ErrInvalid)
	}
	if _, err := timectrl.ParseMode(c.Clock.Mode); err != nil {
		return fmt.Errorf("%w: clock: %v", ErrInvalid, err)
	}
	if c.Output.Files && c.Output.Dir == "" {
		return fmt.Errorf("%w: output.dir is required when output.files is set", ErrInvalid)
	}
	if c.Output.Retries < 0 {
		return fmt.Errorf("%w: output.retries must not be negative", ErrInvalid)
	}
	if c.Output.Backoff < 0 {
		return fmt.Errorf("%w: output.backoff must not be negative", ErrInvalid)
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("%w: log.format %q is not text or json", ErrInvalid, c.Log.Format)
	}
	if c.Tracing.Enabled {
		switch c.Tracing.Exporter {
		case observability.ExporterStdout:
		case observability.ExporterOTLP:
			if c.Tracing.Endpoint == "" {
				return fmt.Errorf("%w: tracing.endpoint is required for the otlp exporter", ErrInvalid)
			}
		default:
			return fmt.Errorf("%w: tracing.exporter %q is not stdout or otlp", ErrInvalid, c.Tracing.Exporter)
		}
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("%w: tracing.sample_ratio must be in [0,1]", ErrInvalid)
	}
	return nil
}

// Policy builds the configured forwarding policy.
func (c *Config) Policy() (core.Policy, error) {
	return core.NewPolicy(c.Routing.Policy, c.Routing.Homing, c.Routing.Symmetric)
}

// UnfilledPolicy returns the parsed unfilled slot policy.
func (c *Config) UnfilledPolicy() core.UnfilledPolicy {
	p, _ := core.ParseUnfilledPolicy(c.Routing.Unfilled)
	return p
}

// ClockMode returns the parsed clock mode.
func (c *Config) ClockMode() timectrl.Mode {
	m, _ := timectrl.ParseMode(c.Clock.Mode)
	return m
}

// Logging converts the log section.
func (c *Config) Logging() logging.Config {
	return logging.Config{Level: c.Log.Level, Format: c.Log.Format}
}

// ApplyEnv overlays LOG_LEVEL, LOG_FORMAT and the SATROUTE_TRACING_*
// variables. Only variables that are set override the configuration;
// malformed booleans and ratios are ignored.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
	if v, err := strconv.ParseBool(os.Getenv("SATROUTE_TRACING_ENABLED")); err == nil {
		c.Tracing.Enabled = v
	}
	if v := os.Getenv("SATROUTE_TRACING_EXPORTER"); v != "" {
		c.Tracing.Exporter = strings.ToLower(v)
	}
	if v := os.Getenv("SATROUTE_TRACING_SERVICE_NAME"); v != "" {
		c.Tracing.ServiceName = v
	}
	if v := os.Getenv("SATROUTE_OTLP_ENDPOINT"); v != "" {
		c.Tracing.Endpoint = v
	}
	if v, err := strconv.ParseFloat(os.Getenv("SATROUTE_TRACING_SAMPLE_RATIO"), 64); err == nil && v >= 0 && v <= 1 {
		c.Tracing.SampleRatio = v
	}
}
