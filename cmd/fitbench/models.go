package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fitbench/fitbench/internal/config"
	"github.com/fitbench/fitbench/internal/models"
)

func modelsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Manage the ONNX models used by the evaluator",
	}
	cmd.AddCommand(modelsPullCmd())
	return cmd
}

func modelsPullCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pull",
		Short: "Download the evaluator's ONNX models from the Hugging Face Hub",
		Long: `Download the CLIP image and text encoders with their tokenizer and, when
their repositories are configured, the LPIPS and compatibility models.
Files already present in the models folder are kept.`,
		RunE: runModelsPull,
	}

	cmd.Flags().String("dataset", "ifashion", "dataset whose compatibility model to fetch")
	cmd.Flags().String("models-dir", "", "folder to store the models in")
	cmd.Flags().String("lpips-net", "vgg", "LPIPS network (vgg, alex)")
	cmd.Flags().String("clip-repo", "", "CLIP model repository")
	cmd.Flags().String("lpips-repo", "", "LPIPS model repository")
	cmd.Flags().String("compat-repo", "", "compatibility model repository")
	cmd.Flags().String("hf-token", "", "Hugging Face token for private repositories")

	return cmd
}

func applyModelsFlags(cmd *cobra.Command, cfg *config.Config) {
	stringFlag(cmd, "dataset", &cfg.Dataset)
	stringFlag(cmd, "models-dir", &cfg.ML.ModelsDir)
	stringFlag(cmd, "lpips-net", &cfg.ML.LPIPSNet)
	stringFlag(cmd, "clip-repo", &cfg.Models.ClipRepo)
	stringFlag(cmd, "lpips-repo", &cfg.Models.LPIPSRepo)
	stringFlag(cmd, "compat-repo", &cfg.Models.CompatibilityRepo)
	stringFlag(cmd, "hf-token", &cfg.Download.Token)
}

func runModelsPull(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig(cmd, applyModelsFlags)
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	fetcher := models.NewFetcher(models.NewHubClient(cfg.Models.HubURL, cfg.Download.Token), log)
	summary, err := fetcher.Pull(ctx, models.Manifest(cfg))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, path := range summary.Downloaded {
		fmt.Fprintf(out, "downloaded %s\n", path)
	}
	for _, path := range summary.Skipped {
		fmt.Fprintf(out, "present    %s\n", path)
	}
	return nil
}
