package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sawpanic/marketsheet/internal/workbook"
)

func newShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print a sheet of the workbook",
		Args:  cobra.NoArgs,
		RunE:  runShow,
	}
	cmd.Flags().String("sheet", workbook.LiveDataSheet, "Sheet to print")
	return cmd
}

func runShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd.Flags())
	if err != nil {
		return err
	}
	sheet, _ := cmd.Flags().GetString("sheet")

	rows, err := workbook.ReadSheet(cfg.Workbook.Path, sheet)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	for _, row := range rows {
		cells := make([]string, len(row))
		for i, cell := range row {
			// multi-line analysis blocks are flattened onto one line
			cells[i] = strings.ReplaceAll(cell, "\n", " | ")
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	return w.Flush()
}
