package spanz

import (
	"errors"
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// SamplerTypeConst samples everything (param 1) or nothing (param 0).
const SamplerTypeConst = "const"

// Default limits.
const (
	DefaultMaxTagValueLength  = 1024
	DefaultMaxLogFieldLength  = 1024
	DefaultMaxTracebackLength = 4096
)

// ErrInvalidConfig wraps every configuration validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// SamplerConfig selects the sampling decision for root spans.
type SamplerConfig struct {
	// Type of sampler. Only "const" is supported.
	Type string `yaml:"type" envconfig:"SPANZ_SAMPLER_TYPE"`

	// Param is 1 to sample every root span, 0 to sample none.
	Param float64 `yaml:"param" envconfig:"SPANZ_SAMPLER_PARAM"`
}

// Config defines the configuration of a Tracer.
type Config struct {
	// ServiceName identifies the traced service in span records and in
	// the diagnostic string of every span. Required.
	ServiceName string `yaml:"service_name" envconfig:"SPANZ_SERVICE_NAME"`

	// MaxTagValueLength caps string and binary tag values in bytes.
	// Zero disables truncation.
	//
	// Default: 1024
	MaxTagValueLength int `yaml:"max_tag_value_length" envconfig:"SPANZ_MAX_TAG_VALUE_LENGTH"`

	// MaxLogFieldLength caps string and binary log field values in bytes.
	// Zero disables truncation.
	//
	// Default: 1024
	MaxLogFieldLength int `yaml:"max_log_field_length" envconfig:"SPANZ_MAX_LOG_FIELD_LENGTH"`

	// MaxTracebackLength caps the rendering of error values.
	//
	// Default: 4096
	MaxTracebackLength int `yaml:"max_traceback_length" envconfig:"SPANZ_MAX_TRACEBACK_LENGTH"`

	// Sampler is read from its own SPANZ_SAMPLER_* variables.
	Sampler SamplerConfig `yaml:"sampler" ignored:"true"`

	// DebugRate is the number of sampling priority elevations allowed per
	// second for each operation name. Zero means unlimited.
	DebugRate float64 `yaml:"debug_rate" envconfig:"SPANZ_DEBUG_RATE"`

	// DebugBurst is the number of elevations allowed at once.
	//
	// Default: 1
	DebugBurst int `yaml:"debug_burst" envconfig:"SPANZ_DEBUG_BURST"`

	// Workers and QueueSize size the pool running async completion
	// handlers. Zero workers runs each async handler on its own goroutine.
	Workers   int `yaml:"workers" envconfig:"SPANZ_WORKERS"`
	QueueSize int `yaml:"queue_size" envconfig:"SPANZ_QUEUE_SIZE"`

	// LogLevel is one of debug, info, warning, error.
	//
	// Default: info
	LogLevel string `yaml:"log_level" envconfig:"SPANZ_LOG_LEVEL"`

	// MetricsNamespace prefixes every Prometheus metric name.
	MetricsNamespace string `yaml:"metrics_namespace" envconfig:"SPANZ_METRICS_NAMESPACE"`
}

// DefaultConfig returns a config that samples everything. ServiceName
// still has to be set.
func DefaultConfig() Config {
	return Config{
		MaxTagValueLength:  DefaultMaxTagValueLength,
		MaxLogFieldLength:  DefaultMaxLogFieldLength,
		MaxTracebackLength: DefaultMaxTracebackLength,
		Sampler: SamplerConfig{
			Type:  SamplerTypeConst,
			Param: 1,
		},
		DebugBurst: 1,
		LogLevel:   LevelInfo,
	}
}

// LoadConfig reads a YAML file over DefaultConfig, applies SPANZ_*
// environment overrides and validates the result.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from SPANZ_* environment variables. A
// variable that is set but empty still overrides its field.
func (c *Config) ApplyEnv() error {
	if err := envconfig.Process("", c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := envconfig.Process("", &c.Sampler); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// Validate checks the config for values the tracer cannot run with.
func (c Config) Validate() error {
	switch {
	case c.ServiceName == "":
		return fmt.Errorf("%w: service_name is required", ErrInvalidConfig)
	case c.MaxTagValueLength < 0, c.MaxLogFieldLength < 0, c.MaxTracebackLength < 0:
		return fmt.Errorf("%w: length limits must be >= 0", ErrInvalidConfig)
	case c.Sampler.Type != SamplerTypeConst:
		return fmt.Errorf("%w: unsupported sampler type %q", ErrInvalidConfig, c.Sampler.Type)
	case c.Sampler.Param != 0 && c.Sampler.Param != 1:
		return fmt.Errorf("%w: const sampler param must be 0 or 1, got %v", ErrInvalidConfig, c.Sampler.Param)
	case c.DebugRate < 0:
		return fmt.Errorf("%w: debug_rate must be >= 0", ErrInvalidConfig)
	case c.DebugBurst < 0:
		return fmt.Errorf("%w: debug_burst must be >= 0", ErrInvalidConfig)
	case c.Workers < 0 || c.QueueSize < 0:
		return fmt.Errorf("%w: workers and queue_size must be >= 0", ErrInvalidConfig)
	case c.Workers > 0 && c.QueueSize == 0:
		return fmt.Errorf("%w: queue_size must be > 0 when workers are enabled", ErrInvalidConfig)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

func (c Config) limits() Limits {
	return Limits{
		MaxTagValueLength:  c.MaxTagValueLength,
		MaxLogFieldLength:  c.MaxLogFieldLength,
		MaxTracebackLength: c.MaxTracebackLength,
	}
}
