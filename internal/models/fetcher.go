package models

import (
	"context"
	"os"

	"github.com/fitbench/fitbench/internal/pkg/logger"
)

// progressStep is how often download progress is logged.
const progressStep = 64 << 20

// Fetcher downloads model files that are not on disk yet.
type Fetcher struct {
	client *HubClient
	log    *logger.Logger
}

// NewFetcher creates a fetcher.
func NewFetcher(client *HubClient, log *logger.Logger) *Fetcher {
	if log == nil {
		log = logger.Discard()
	}
	return &Fetcher{client: client, log: log}
}

// PullSummary reports what Pull did.
type PullSummary struct {
	Downloaded []string `json:"downloaded"`
	Skipped    []string `json:"skipped"`
	Bytes      int64    `json:"bytes"`
}

// Pull fetches every file of the manifest, skipping files already present.
// The first failure stops the pull.
func (f *Fetcher) Pull(ctx context.Context, files []ModelFile) (*PullSummary, error) {
	summary := &PullSummary{}
	for _, file := range files {
		if _, err := os.Stat(file.Local); err == nil {
			f.log.Debug("Model file present, skipping", "path", file.Local)
			summary.Skipped = append(summary.Skipped, file.Local)
			continue
		}

		log := f.log.With("repo", file.Repo, "file", file.Remote)
		log.Info("Downloading model file", "dest", file.Local)

		var next int64 = progressStep
		n, err := f.client.DownloadFile(ctx, RepoTypeModel, file.Repo, file.Remote, file.Local, func(downloaded, total int64) {
			if downloaded >= next {
				log.Debug("Download progress", "downloaded", downloaded, "total", total)
				next += progressStep
			}
		})
		if err != nil {
			return summary, err
		}

		summary.Downloaded = append(summary.Downloaded, file.Local)
		summary.Bytes += n
	}
	return summary, nil
}
