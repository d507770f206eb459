package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fitbench/fitbench/internal/config"
	"github.com/fitbench/fitbench/internal/download"
	"github.com/fitbench/fitbench/internal/models"
	"github.com/fitbench/fitbench/internal/pkg/security"
)

func downloadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download LAION parquet shards and convert them with img2dataset",
		Long: `Download shards 0..num-files-1 of the LAION aesthetic dataset from the
Hugging Face Hub and convert each one into a webdataset archive.

Profiles:
  sharded      always re-download, one output folder per shard, 384px, wandb on
  incremental  keep shards already on disk, one shared output folder, 512px

A failed shard is reported and the next one is processed. The command exits
non-zero when any shard failed.`,
		RunE: runDownload,
	}

	cmd.Flags().Int("num-files", 1, "number of parquet shards")
	cmd.Flags().String("hf-token", "", "Hugging Face token (or HF_TOKEN)")
	cmd.Flags().Int("processes-count", 16, "img2dataset processes")
	cmd.Flags().Int("thread-count", 64, "img2dataset threads")
	cmd.Flags().String("profile", "sharded", "download profile (sharded, incremental)")
	cmd.Flags().String("root", "laion2B-en-aesthetic", "local dataset folder")

	return cmd
}

func applyDownloadFlags(cmd *cobra.Command, cfg *config.Config) {
	intFlag(cmd, "num-files", &cfg.Download.NumFiles)
	stringFlag(cmd, "hf-token", &cfg.Download.Token)
	intFlag(cmd, "processes-count", &cfg.Download.ProcessesCount)
	intFlag(cmd, "thread-count", &cfg.Download.ThreadCount)
	stringFlag(cmd, "profile", &cfg.Download.Profile)
	stringFlag(cmd, "root", &cfg.Download.Root)
}

func runDownload(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig(cmd, applyDownloadFlags)
	if err != nil {
		return err
	}

	profile, err := download.LookupProfile(cfg.Download.Profile)
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	log.Debug("Download settings", "repo", cfg.Download.Repo, "root", cfg.Download.Root,
		"token", security.MaskToken(cfg.Download.Token))

	downloader := download.NewDownloader(
		models.NewHubClient(cfg.Models.HubURL, cfg.Download.Token),
		download.NewExecRunner(log),
		download.Options{
			NumFiles: cfg.Download.NumFiles,
			Root:     cfg.Download.Root,
			Repo:     cfg.Download.Repo,
			Tool:     cfg.Download.Tool,
			Profile:  profile,
			Conversion: download.ConversionOptions{
				ProcessesCount: cfg.Download.ProcessesCount,
				ThreadCount:    cfg.Download.ThreadCount,
			},
			Interval: cfg.Download.Interval,
		},
		log,
	)

	summary, err := downloader.Run(ctx)
	if summary != nil {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "shards processed: %d (downloaded %d, skipped %d)\n",
			summary.Processed, summary.Downloaded, summary.Skipped)
		for _, f := range summary.Failures {
			fmt.Fprintf(out, "  failed shard %d (%s): %s\n", f.Index, f.Shard, f.Reason)
		}
	}
	if err != nil {
		return err
	}
	return summary.Err()
}
