// Package config loads the process configuration of the vectable flows.
//
// Values come from three layers, later ones winning:
//
//   - built-in defaults
//   - an optional YAML file named by VECTABLE_CONFIG, with ${VAR} expansion
//   - the environment: VECTABLE_URI, VECTABLE_API_KEY, VECTABLE_REGION
//
// Example file:
//
//	uri: s3://my-bucket/tables
//	api_key: ${AWS_ACCESS_KEY_ID}:${AWS_SECRET_ACCESS_KEY}
//	embedder:
//	  provider: openai
//	  model: text-embedding-3-small
//	  dimension: 384
//	  api_key: ${OPENAI_API_KEY}
//	cache:
//	  type: redis
//	  redis_addr: localhost:6379
//	  ttl: 24h
//	logging:
//	  level: debug
//	  format: json
//	metrics:
//	  addr: :9090
//	wait:
//	  interval: 1s
//	  timeout: 5m
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables read by Load.
const (
	EnvURI    = "VECTABLE_URI"
	EnvAPIKey = "VECTABLE_API_KEY"
	EnvRegion = "VECTABLE_REGION"
	EnvConfig = "VECTABLE_CONFIG"
)

var (
	// ErrMissingURI is returned when no database URI is configured.
	ErrMissingURI = errors.New("database uri is not set")

	// ErrMissingAPIKey is returned when no database API key is configured.
	ErrMissingAPIKey = errors.New("database api key is not set")

	// ErrInvalidValue is returned for values outside their allowed set.
	ErrInvalidValue = errors.New("invalid value")
)

// Error reports a configuration problem with one setting.
type Error struct {
	// Field is the setting, e.g. "uri" or "embedder.provider".
	Field string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("config %s: %v", e.Field, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Config is the complete process configuration.
type Config struct {
	URI    string `yaml:"uri"`
	APIKey string `yaml:"api_key"`
	Region string `yaml:"region"`

	Embedder EmbedderConfig `yaml:"embedder"`
	Cache    CacheConfig    `yaml:"cache"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Wait     WaitConfig     `yaml:"wait"`
}

// EmbedderConfig selects and configures the embedding adapter.
type EmbedderConfig struct {
	// Provider is "hash" (default) or "openai".
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	Dimension int    `yaml:"dimension"`
	// Pooling is "mean" or "cls".
	Pooling   string  `yaml:"pooling"`
	Normalize *bool   `yaml:"normalize"`
	BaseURL   string  `yaml:"base_url"`
	APIKey    string  `yaml:"api_key"`
	BatchSize int     `yaml:"batch_size"`
	RateLimit float64 `yaml:"rate_limit"`
	Burst     int     `yaml:"burst"`
}

// CacheConfig configures the embedding cache.
type CacheConfig struct {
	// Type is "", "lru" or "redis". Empty disables caching.
	Type      string        `yaml:"type"`
	Size      int           `yaml:"size"`
	RedisAddr string        `yaml:"redis_addr"`
	TTL       time.Duration `yaml:"ttl"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Addr is the listen address of /metrics. Empty disables it.
	Addr string `yaml:"addr"`
}

// WaitConfig bounds index readiness waits.
type WaitConfig struct {
	Interval    time.Duration `yaml:"interval"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxAttempts int           `yaml:"max_attempts"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Region: "us-east-1",
		Embedder: EmbedderConfig{
			Provider:  "hash",
			Dimension: 384,
			Pooling:   "mean",
		},
		Cache: CacheConfig{Size: 10000},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Wait: WaitConfig{
			Interval: time.Second,
			Timeout:  5 * time.Minute,
		},
	}
}

// Load reads the configuration from the environment and the optional
// file named by VECTABLE_CONFIG, then validates it.
func Load() (*Config, error) {
	return LoadWith(os.LookupEnv)
}

// LoadWith is Load with a custom environment lookup.
func LoadWith(lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()

	if path, ok := lookup(EnvConfig); ok && path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := cfg.merge(data, lookup); err != nil {
			return nil, err
		}
	}

	if v, ok := lookup(EnvURI); ok && v != "" {
		cfg.URI = v
	}
	if v, ok := lookup(EnvAPIKey); ok && v != "" {
		cfg.APIKey = v
	}
	if v, ok := lookup(EnvRegion); ok && v != "" {
		cfg.Region = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes a YAML document over the defaults without validating it.
func Parse(data []byte, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()
	if err := cfg.merge(data, lookup); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) merge(data []byte, lookup func(string) (string, bool)) error {
	expanded := os.Expand(string(data), func(name string) string {
		v, _ := lookup(name)
		return v
	})
	if err := yaml.Unmarshal([]byte(expanded), c); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

// Validate checks required settings and enumerations.
func (c *Config) Validate() error {
	if c.URI == "" {
		return &Error{Field: "uri", Err: ErrMissingURI}
	}
	if c.APIKey == "" {
		return &Error{Field: "api_key", Err: ErrMissingAPIKey}
	}

	switch c.Embedder.Provider {
	case "hash", "openai":
	default:
		return &Error{Field: "embedder.provider", Err: fmt.Errorf("%w: %q", ErrInvalidValue, c.Embedder.Provider)}
	}
	if c.Embedder.Provider == "openai" && c.Embedder.APIKey == "" {
		return &Error{Field: "embedder.api_key", Err: ErrMissingAPIKey}
	}
	if c.Embedder.Dimension < 0 {
		return &Error{Field: "embedder.dimension", Err: fmt.Errorf("%w: %d", ErrInvalidValue, c.Embedder.Dimension)}
	}
	switch c.Embedder.Pooling {
	case "", "mean", "cls":
	default:
		return &Error{Field: "embedder.pooling", Err: fmt.Errorf("%w: %q", ErrInvalidValue, c.Embedder.Pooling)}
	}

	switch c.Cache.Type {
	case "", "lru":
	case "redis":
		if c.Cache.RedisAddr == "" {
			return &Error{Field: "cache.redis_addr", Err: fmt.Errorf("%w: empty", ErrInvalidValue)}
		}
	default:
		return &Error{Field: "cache.type", Err: fmt.Errorf("%w: %q", ErrInvalidValue, c.Cache.Type)}
	}

	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return &Error{Field: "logging.format", Err: fmt.Errorf("%w: %q", ErrInvalidValue, c.Logging.Format)}
	}

	if c.Wait.Interval < 0 || c.Wait.Timeout < 0 || c.Wait.MaxAttempts < 0 {
		return &Error{Field: "wait", Err: fmt.Errorf("%w: negative bound", ErrInvalidValue)}
	}
	return nil
}
