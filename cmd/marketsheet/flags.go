package main

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/sawpanic/marketsheet/internal/config"
)

func addGlobalFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "Path to a YAML config file")
	fs.String("output", "", "Workbook path (default crypto_data.xlsx)")
	fs.Int("interval", 0, "Seconds to sleep between cycles (default 300)")
	fs.String("base-url", "", "Upstream API base URL")
	fs.Int("timeout-ms", 0, "Upstream request timeout in milliseconds, 0 disables (default 30000)")
	fs.String("metrics-addr", "", "Status server listen address, e.g. 127.0.0.1:9090 (disabled when empty)")
	fs.String("log-level", "info", "Log level (trace|debug|info|warn|error)")
	fs.String("log-format", "console", "Log format (console|json)")
}

// loadConfig reads --config, overlays every flag the user set explicitly and validates
// the merged result once
func loadConfig(fs *pflag.FlagSet) (*config.Config, error) {
	path, _ := fs.GetString("config")

	cfg, err := config.Read(path)
	if err != nil {
		return nil, err
	}

	if err := applyFlags(fs, cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func applyFlags(fs *pflag.FlagSet, cfg *config.Config) error {
	var err error

	if fs.Changed("output") {
		if cfg.Workbook.Path, err = fs.GetString("output"); err != nil {
			return err
		}
	}
	if fs.Changed("interval") {
		if cfg.Scheduler.IntervalSecs, err = fs.GetInt("interval"); err != nil {
			return err
		}
	}
	if fs.Changed("base-url") {
		if cfg.Upstream.BaseURL, err = fs.GetString("base-url"); err != nil {
			return err
		}
	}
	if fs.Changed("timeout-ms") {
		if cfg.Upstream.TimeoutMS, err = fs.GetInt("timeout-ms"); err != nil {
			return err
		}
	}
	if fs.Changed("metrics-addr") {
		if cfg.Metrics.Addr, err = fs.GetString("metrics-addr"); err != nil {
			return err
		}
	}

	return nil
}
