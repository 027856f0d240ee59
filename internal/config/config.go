// Package config loads runtime settings from an optional YAML file and
// STYLESCOUT_* environment variables, with sane defaults for everything.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full runtime configuration.
type Config struct {
	// Scan settings.
	BatchSize           int     `mapstructure:"batch_size"`
	MaxConcurrent       int     `mapstructure:"max_concurrent"`
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"`
	MaxResults          int     `mapstructure:"max_results"`
	TimeoutSeconds      int     `mapstructure:"timeout_seconds"`
	// ScoringStrategy is one of lexical, semantic, or image.
	ScoringStrategy string `mapstructure:"scoring_strategy"`

	Detector DetectorConfig `mapstructure:"detector"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	Embed    EmbedConfig    `mapstructure:"embed"`
	Server   ServerConfig   `mapstructure:"server"`
}

// DetectorConfig bounds candidate element sizes.
type DetectorConfig struct {
	MinWidth  float64 `mapstructure:"min_width"`
	MinHeight float64 `mapstructure:"min_height"`
	MaxWidth  float64 `mapstructure:"max_width"`
	MaxHeight float64 `mapstructure:"max_height"`
}

// FetchConfig controls page acquisition.
type FetchConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
	// Render switches to the headless-browser path for JS-heavy sites.
	Render bool `mapstructure:"render"`
}

// EmbedConfig points at the embedding backend used by the semantic and
// image strategies.
type EmbedConfig struct {
	BaseURL           string  `mapstructure:"base_url"`
	Model             string  `mapstructure:"model"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// Timeout returns the scan timeout as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// FetchTimeout returns the page fetch timeout as a duration.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// Load reads configuration from path (optional; empty means defaults and
// environment only) and validates it.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("batch_size", 10)
	v.SetDefault("max_concurrent", 5)
	v.SetDefault("confidence_threshold", 0.25)
	v.SetDefault("max_results", 10)
	v.SetDefault("timeout_seconds", 30)
	v.SetDefault("scoring_strategy", "lexical")
	v.SetDefault("detector.min_width", 100)
	v.SetDefault("detector.min_height", 100)
	v.SetDefault("detector.max_width", 2000)
	v.SetDefault("detector.max_height", 2000)
	v.SetDefault("fetch.timeout_seconds", 10)
	v.SetDefault("fetch.render", false)
	v.SetDefault("embed.base_url", "http://localhost:11434")
	v.SetDefault("embed.model", "all-minilm")
	v.SetDefault("embed.requests_per_second", 10)
	v.SetDefault("server.addr", ":8080")

	v.SetEnvPrefix("STYLESCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence_threshold must be in [0,1], got %v", c.ConfidenceThreshold)
	}
	switch c.ScoringStrategy {
	case "lexical", "semantic", "image":
	default:
		return fmt.Errorf("scoring_strategy must be lexical, semantic, or image, got %q", c.ScoringStrategy)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("batch_size must be positive, got %d", c.BatchSize)
	}
	if c.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be positive, got %d", c.MaxConcurrent)
	}
	if c.Detector.MinWidth > c.Detector.MaxWidth || c.Detector.MinHeight > c.Detector.MaxHeight {
		return fmt.Errorf("detector min size exceeds max size")
	}
	if c.ScoringStrategy != "lexical" && c.Embed.BaseURL == "" {
		return fmt.Errorf("embed.base_url is required for the %s strategy", c.ScoringStrategy)
	}
	return nil
}
