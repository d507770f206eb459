package main

import (
	"github.com/spf13/cobra"

	"github.com/fitbench/fitbench/internal/config"
	"github.com/fitbench/fitbench/internal/dataset"
	"github.com/fitbench/fitbench/internal/evaluation"
	"github.com/fitbench/fitbench/internal/fitb"
	"github.com/fitbench/fitbench/internal/ml"
	"github.com/fitbench/fitbench/internal/results"
)

func evaluateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate FITB generation checkpoints against ground truth",
		Long: `Evaluate each checkpoint's generated outfit completions:

  - retrieval of the generated images against the FITB candidates
  - CLIP score, Grd CLIP score, CLIP image score and LPIPS (fidelity)
  - similarity to the user's history (personalization)
  - outfit compatibility of generated and ground-truth outfits

Every metric is saved as soon as it is computed. Checkpoints already in the
result record are skipped; --resume computes only their missing metrics.`,
		Example: `  fitbench evaluate --dataset ifashion --mode test --ckpts all
  fitbench evaluate --ckpts "[1000, 2000]" --resume`,
		RunE: runEvaluate,
	}

	addTargetFlags(cmd)
	cmd.Flags().String("task", "FITB", "task name used in generation file names")
	cmd.Flags().String("ckpts", "all", `checkpoints to evaluate ("all", "[100, 200]", "100")`)
	cmd.Flags().String("data-path", "", "dataset folder (defaults to the dataset preset)")
	cmd.Flags().String("img-folder-path", "", "catalog image folder")
	cmd.Flags().String("pretrained-evaluator-ckpt", "", "compatibility model (.onnx)")
	cmd.Flags().Float64("cate-scale", 12.0, "category guidance scale of the run")
	cmd.Flags().Float64("mutual-scale", 5.0, "mutual guidance scale of the run")
	cmd.Flags().Float64("hist-scale", 4.0, "history guidance scale of the run")
	cmd.Flags().Int("batch-size", 50, "inference batch size")
	cmd.Flags().Int("num-workers", 1, "concurrent image loaders")
	cmd.Flags().String("device", "cpu", "inference device (cpu, cuda)")
	cmd.Flags().Int("cuda-device", 0, "CUDA device id")
	cmd.Flags().String("models-dir", "", "folder holding the ONNX models")
	cmd.Flags().String("lpips-net", "vgg", "LPIPS network (vgg, alex)")
	cmd.Flags().String("sim-func", "cosine", "similarity function (cosine, dot)")
	cmd.Flags().String("missing-history", "drop", "slots without user history (drop, null)")
	cmd.Flags().Bool("resume", false, "fill missing metrics of checkpoints already in the record")

	return cmd
}

func applyEvaluateFlags(cmd *cobra.Command, cfg *config.Config) {
	applyTargetFlags(cmd, cfg)
	stringFlag(cmd, "task", &cfg.Task)
	stringFlag(cmd, "ckpts", &cfg.Checkpoints)
	stringFlag(cmd, "data-path", &cfg.Paths.DataDir)
	stringFlag(cmd, "img-folder-path", &cfg.Paths.ImageDir)
	stringFlag(cmd, "pretrained-evaluator-ckpt", &cfg.Paths.CompatibilityModel)
	floatFlag(cmd, "cate-scale", &cfg.Scales.Category)
	floatFlag(cmd, "mutual-scale", &cfg.Scales.Mutual)
	floatFlag(cmd, "hist-scale", &cfg.Scales.History)
	intFlag(cmd, "batch-size", &cfg.ML.BatchSize)
	intFlag(cmd, "num-workers", &cfg.ML.Workers)
	stringFlag(cmd, "device", &cfg.ML.Device)
	intFlag(cmd, "cuda-device", &cfg.ML.CUDADevice)
	stringFlag(cmd, "models-dir", &cfg.ML.ModelsDir)
	stringFlag(cmd, "lpips-net", &cfg.ML.LPIPSNet)
	stringFlag(cmd, "sim-func", &cfg.ML.SimilarityFunc)
	stringFlag(cmd, "missing-history", &cfg.Personalization.MissingHistory)
}

func runEvaluate(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig(cmd, applyEvaluateFlags)
	if err != nil {
		return err
	}
	resume, _ := cmd.Flags().GetBool("resume")

	ctx, stop := signalContext(cmd)
	defer stop()

	names := fitb.NewNames(cfg.Task, cfg.Scales.Category, cfg.Scales.Mutual, cfg.Scales.History)
	evalDir := cfg.EvalDir()

	ckpts, err := evaluation.ResolveCheckpoints(cfg.Checkpoints, evalDir, names)
	if err != nil {
		return err
	}
	log.Info("Evaluating checkpoints", "version", cfg.EvalVersion, "mode", cfg.Mode, "eval_dir", evalDir, "ckpts", ckpts)

	catalog, err := dataset.LoadCatalog(cfg.Paths.DataDir, cfg.Paths.ImageDir)
	if err != nil {
		return err
	}
	split, err := dataset.LoadSplit(cfg.Paths.DataDir, cfg.Mode)
	if err != nil {
		return err
	}

	store, err := results.Open(ctx, cfg.Results, evalDir, cfg.EvalVersion, cfg.Mode)
	if err != nil {
		return err
	}
	defer store.Close()
	if fs, ok := store.(*results.FileStore); ok {
		log.Info("Recording results", "path", fs.Path())
	}

	svc, err := ml.NewService(cfg.ML, log)
	if err != nil {
		return err
	}
	defer svc.Close()
	log.Info("Evaluate on device", "device", svc.Device())

	evaluator, err := evaluation.NewEvaluator(
		evaluation.Options{
			EvalDir:        evalDir,
			Version:        cfg.EvalVersion,
			Resume:         resume,
			Similarity:     cfg.ML.SimilarityFunc,
			MissingHistory: cfg.Personalization.MissingHistory,
		},
		names,
		catalog,
		split,
		store,
		evaluation.NewMLBackends(svc, cfg.CompatibilityModelPath(), catalog.Features),
		log,
		cmd.OutOrStdout(),
	)
	if err != nil {
		return err
	}

	if _, err := evaluator.Run(ctx, ckpts); err != nil {
		return err
	}

	stats := svc.CacheStats()
	log.Debug("Embedding cache", "size", stats.Size, "hits", stats.Hits, "misses", stats.Misses)
	return nil
}
