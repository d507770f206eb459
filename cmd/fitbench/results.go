package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fitbench/fitbench/internal/results"
)

func resultsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "results",
		Short: "Inspect persisted evaluation records",
	}
	cmd.AddCommand(resultsShowCmd())
	return cmd
}

func resultsShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the evaluation record of an eval version",
		RunE:  runResultsShow,
	}
	addTargetFlags(cmd)
	cmd.Flags().StringP("output", "o", "table", "output format (table, json)")
	return cmd
}

func runResultsShow(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadConfig(cmd, applyTargetFlags)
	if err != nil {
		return err
	}
	output, _ := cmd.Flags().GetString("output")

	ctx, stop := signalContext(cmd)
	defer stop()

	store, err := results.Open(ctx, cfg.Results, cfg.EvalDir(), cfg.EvalVersion, cfg.Mode)
	if err != nil {
		return err
	}
	defer store.Close()

	record, err := store.Load(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch output {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(record)
	case "table":
		return results.WriteTable(out, record)
	default:
		return fmt.Errorf("unknown output format: %s (must be table or json)", output)
	}
}
