// Package evaluation drives the FITB grounding evaluation of generation
// checkpoints: retrieval, metric computation and per-metric persistence.
package evaluation

import (
	"context"
)

// ImageEmbedder embeds image files, one row per path.
type ImageEmbedder interface {
	EmbedImages(ctx context.Context, paths []string) ([][]float32, error)
}

// TextEmbedder embeds prompts, one row per text.
type TextEmbedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// PerceptualMetric returns the perceptual distance of each pair (a[i], b[i]).
type PerceptualMetric interface {
	Distances(ctx context.Context, a, b []string) ([]float32, error)
}

// CompatibilityModel returns the compatibility probability of each outfit
// given as item ids.
type CompatibilityModel interface {
	Scores(ctx context.Context, outfits [][]int) ([]float32, error)
}

// Backends hands out the metric collaborators. Implementations may load
// models lazily, so a run that skips every checkpoint loads none.
type Backends interface {
	ImageEmbedder() (ImageEmbedder, error)
	TextEmbedder() (TextEmbedder, error)
	PerceptualMetric() (PerceptualMetric, error)
	CompatibilityModel() (CompatibilityModel, error)
}

// MissingHistory policies.
const (
	MissingHistoryDrop = "drop"
	MissingHistoryNull = "null"
)

// Options configures an Evaluator.
type Options struct {
	// EvalDir holds the generation outputs of the evaluated run.
	EvalDir string
	// Version is the eval version, used in report headers.
	Version string
	Resume  bool
	// Similarity scores retrieval, CLIP image and personalization pairs.
	Similarity     string
	MissingHistory string
}

// Summary counts what a run did.
type Summary struct {
	Evaluated []int `json:"evaluated"`
	Skipped   []int `json:"skipped"`
}
