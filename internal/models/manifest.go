package models

import (
	"github.com/fitbench/fitbench/internal/config"
)

// ModelFile is one file to fetch from a model repository.
type ModelFile struct {
	Repo   string
	Remote string
	// Local is the destination on disk.
	Local string
}

// Manifest lists the model files the evaluator loads. LPIPS and
// compatibility files are included only when their repositories are set.
func Manifest(cfg *config.Config) []ModelFile {
	var files []ModelFile
	if repo := cfg.Models.ClipRepo; repo != "" {
		files = append(files,
			ModelFile{Repo: repo, Remote: "onnx/vision_model.onnx", Local: cfg.ML.ClipVisualPath()},
			ModelFile{Repo: repo, Remote: "onnx/text_model.onnx", Local: cfg.ML.ClipTextualPath()},
			ModelFile{Repo: repo, Remote: "tokenizer.json", Local: cfg.ML.ClipTokenizerPath()},
		)
	}
	if repo := cfg.Models.LPIPSRepo; repo != "" {
		files = append(files, ModelFile{Repo: repo, Remote: cfg.ML.LPIPSNet + ".onnx", Local: cfg.ML.LPIPSPath()})
	}
	if repo := cfg.Models.CompatibilityRepo; repo != "" {
		files = append(files, ModelFile{Repo: repo, Remote: cfg.Dataset + ".onnx", Local: cfg.CompatibilityModelPath()})
	}
	return files
}
