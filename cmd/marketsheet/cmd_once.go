package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newOnceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "Run a single cycle and exit",
		Long:  "Fetch, analyze and write exactly once. Exits non-zero when the cycle fails.",
		Args:  cobra.NoArgs,
		RunE:  runOnce,
	}
}

func runOnce(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd.Flags())
	if err != nil {
		return err
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	result := a.loop.RunOnce(ctx)
	a.logClientStats()

	if !result.Success {
		return fmt.Errorf("cycle %s failed at %s (%s): %w", result.ID, result.Stage, result.Kind, result.Err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d assets to %s\n", result.Assets, cfg.Workbook.Path)
	return nil
}
