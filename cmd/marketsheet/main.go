package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/marketsheet/internal/config"
	httpserver "github.com/sawpanic/marketsheet/internal/interfaces/http"
	"github.com/sawpanic/marketsheet/internal/metrics"
	"github.com/sawpanic/marketsheet/internal/providers/coingecko"
	"github.com/sawpanic/marketsheet/internal/scheduler"
	"github.com/sawpanic/marketsheet/internal/workbook"
)

const (
	appName = "marketsheet"
	version = "v1.0.0"

	shutdownTimeout = 5 * time.Second
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Keep a spreadsheet of live crypto market data up to date",
		Version: version,
		Long: `marketsheet fetches the top assets by market cap from CoinGecko every interval,
computes a short analysis and rewrites the "Live Data" and "Analysis" sheets of an xlsx workbook.

Without a subcommand it runs until interrupted. Failed cycles are logged and retried after
the interval.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(cmd.Flags())
		},
		RunE: runLoop,
	}

	addGlobalFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(newOnceCmd())
	rootCmd.AddCommand(newShowCmd())

	return rootCmd
}

// app wires the pipeline for one process
type app struct {
	config  *config.Config
	client  *coingecko.Client
	metrics *metrics.Registry
	loop    *scheduler.Loop
}

func newApp(cfg *config.Config) (*app, error) {
	client, err := coingecko.NewClient(cfg.Upstream)
	if err != nil {
		return nil, fmt.Errorf("failed to create upstream client: %w", err)
	}

	registry := metrics.NewRegistry()
	loop := scheduler.New(
		scheduler.Config{
			Interval:     cfg.Scheduler.GetInterval(),
			WorkbookPath: cfg.Workbook.Path,
		},
		client,
		workbook.NewWriter(),
		scheduler.WithRecorder(registry),
	)

	return &app{config: cfg, client: client, metrics: registry, loop: loop}, nil
}

// startStatusServer starts the optional status server; it returns nil when disabled
func (a *app) startStatusServer() (*httpserver.Server, error) {
	if a.config.Metrics.Addr == "" {
		return nil, nil
	}

	server, err := httpserver.NewServer(httpserver.DefaultServerConfig(a.config.Metrics.Addr), a.loop, a.metrics.Gatherer())
	if err != nil {
		return nil, fmt.Errorf("failed to start status server: %w", err)
	}

	go func() {
		if err := server.Start(); err != nil {
			log.Error().Err(err).Msg("Status server stopped")
		}
	}()
	return server, nil
}

func (a *app) logClientStats() {
	stats := a.client.Stats()
	limiter := a.client.LimiterStats()
	log.Debug().
		Int64("requests", stats.TotalRequests).
		Int64("failed", stats.FailedRequests).
		Int64("succeeded", stats.SuccessRequests).
		Dur("avg_latency", stats.AvgLatency()).
		Dur("max_latency", stats.MaxLatency).
		Float64("limiter_tokens", limiter.TokensAvailable).
		Dur("limiter_delay", limiter.Delay).
		Msg("Upstream client stats")
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func runLoop(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd.Flags())
	if err != nil {
		return err
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}

	server, err := a.startStatusServer()
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	log.Info().
		Str("version", version).
		Str("endpoint", a.client.Endpoint()).
		Str("path", cfg.Workbook.Path).
		Msg("marketsheet starting")

	err = a.loop.Run(ctx)
	a.logClientStats()

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if serr := server.Shutdown(shutdownCtx); serr != nil {
			log.Warn().Err(serr).Msg("Status server shutdown failed")
		}
	}

	if errors.Is(err, context.Canceled) {
		log.Info().Msg("Shutdown complete")
		return nil
	}
	return err
}
