package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete marketsheet configuration
type Config struct {
	Upstream  UpstreamConfig  `yaml:"upstream"`
	Workbook  WorkbookConfig  `yaml:"workbook"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// UpstreamConfig describes the market data endpoint and its fixed query
type UpstreamConfig struct {
	BaseURL    string  `yaml:"base_url"`    // Base URL, /coins/markets is appended
	VsCurrency string  `yaml:"vs_currency"` // Quote currency
	Order      string  `yaml:"order"`       // Ranking order
	PerPage    int     `yaml:"per_page"`    // Page size
	Page       int     `yaml:"page"`        // Page number (1-based)
	Sparkline  bool    `yaml:"sparkline"`   // Include sparkline data
	TimeoutMS  int     `yaml:"timeout_ms"`  // Request timeout, 0 disables
	RPS        float64 `yaml:"rps"`         // Client-side request rate, 0 disables
	Burst      int     `yaml:"burst"`       // Burst capacity
	UserAgent  string  `yaml:"user_agent"`  // User agent for all requests
}

// WorkbookConfig describes where the workbook is persisted
type WorkbookConfig struct {
	Path string `yaml:"path"`
}

// SchedulerConfig describes the cycle cadence
type SchedulerConfig struct {
	IntervalSecs int `yaml:"interval_secs"` // Sleep between the end of one cycle and the next
}

// MetricsConfig describes the optional status server
type MetricsConfig struct {
	Addr string `yaml:"addr"` // Listen address, empty disables the server
}

// Default returns the configuration the service runs with when nothing is overridden
func Default() Config {
	return Config{
		Upstream: UpstreamConfig{
			BaseURL:    "https://api.coingecko.com/api/v3",
			VsCurrency: "usd",
			Order:      "market_cap_desc",
			PerPage:    50,
			Page:       1,
			Sparkline:  false,
			TimeoutMS:  30000,
			RPS:        0.5,
			Burst:      1,
			UserAgent:  "marketsheet/1.0",
		},
		Workbook: WorkbookConfig{
			Path: "crypto_data.xlsx",
		},
		Scheduler: SchedulerConfig{
			IntervalSecs: 300,
		},
	}
}

// Load reads a YAML file on top of Default and validates the result. An empty path returns Default.
func Load(configPath string) (*Config, error) {
	cfg, err := Read(configPath)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Read is Load without validation, for callers that overlay more settings before validating.
func Read(configPath string) (*Config, error) {
	cfg := Default()
	if configPath == "" {
		return &cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &cfg, nil
}

// Validate ensures the configuration is usable
func (c *Config) Validate() error {
	if err := c.Upstream.Validate(); err != nil {
		return fmt.Errorf("upstream: %w", err)
	}
	if c.Workbook.Path == "" {
		return errors.New("workbook: path cannot be empty")
	}
	if c.Scheduler.IntervalSecs <= 0 {
		return fmt.Errorf("scheduler: interval_secs must be positive, got %d", c.Scheduler.IntervalSecs)
	}
	return nil
}

// Validate ensures the upstream configuration is usable
func (u *UpstreamConfig) Validate() error {
	if u.BaseURL == "" {
		return errors.New("base_url cannot be empty")
	}
	parsed, err := url.Parse(u.BaseURL)
	if err != nil {
		return fmt.Errorf("base_url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("base_url must be http or https, got %q", u.BaseURL)
	}
	if u.VsCurrency == "" {
		return errors.New("vs_currency cannot be empty")
	}
	if u.PerPage <= 0 || u.PerPage > 250 {
		return fmt.Errorf("per_page must be between 1 and 250, got %d", u.PerPage)
	}
	if u.Page <= 0 {
		return fmt.Errorf("page must be positive, got %d", u.Page)
	}
	if u.TimeoutMS < 0 {
		return fmt.Errorf("timeout_ms cannot be negative, got %d", u.TimeoutMS)
	}
	if u.RPS < 0 {
		return fmt.Errorf("rps cannot be negative, got %f", u.RPS)
	}
	return nil
}

// GetRequestTimeout returns the request timeout as a time.Duration
func (u *UpstreamConfig) GetRequestTimeout() time.Duration {
	return time.Duration(u.TimeoutMS) * time.Millisecond
}

// GetInterval returns the inter-cycle sleep as a time.Duration
func (s *SchedulerConfig) GetInterval() time.Duration {
	return time.Duration(s.IntervalSecs) * time.Second
}
