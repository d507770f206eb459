// Package main provides the fitbench binary: FITB grounding evaluation,
// LAION shard downloads and model fetching.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "fitbench",
		Short: "fitbench - evaluate generated outfit completions",
		Long: `fitbench scores generated fill-in-the-blank outfit completions against
ground truth (CLIP, LPIPS, personalization and compatibility metrics) and
downloads LAION parquet shards for training.

Run 'fitbench evaluate --help' to evaluate checkpoints.
Run 'fitbench models pull' to fetch the ONNX models first.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().String("format", "text", "log format (text, json)")

	rootCmd.AddCommand(
		evaluateCmd(),
		downloadCmd(),
		modelsCmd(),
		resultsCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "fitbench %s\n", version)
			fmt.Fprintf(out, "  commit: %s\n", commit)
			fmt.Fprintf(out, "  built:  %s\n", date)
		},
	}
}
