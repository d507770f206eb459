package download

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/time/rate"

	"github.com/fitbench/fitbench/internal/models"
	"github.com/fitbench/fitbench/internal/pkg/errors"
	"github.com/fitbench/fitbench/internal/pkg/logger"
)

// Hub is the part of the Hub client the downloader needs.
type Hub interface {
	WhoAmI(ctx context.Context) (*models.WhoAmI, error)
	DownloadFile(ctx context.Context, repoType models.RepoType, repo, file, destPath string, onProgress func(downloaded, total int64)) (int64, error)
}

// Options configures a download run.
type Options struct {
	NumFiles int
	// Root is the local folder shards are stored under.
	Root string
	// Repo is the dataset repository on the Hub.
	Repo       string
	Tool       string
	Profile    Profile
	Conversion ConversionOptions
	// Interval is the minimum time between two shard downloads.
	Interval time.Duration
}

// Failure records why one shard was not processed.
type Failure struct {
	Index  int    `json:"index"`
	Shard  string `json:"shard"`
	Reason string `json:"reason"`
}

// Summary reports a download run.
type Summary struct {
	Processed  int       `json:"processed"`
	Downloaded int       `json:"downloaded"`
	Skipped    int       `json:"skipped"`
	Failures   []Failure `json:"failures,omitempty"`
}

// Err returns a DOWNLOAD_ERROR when any shard failed.
func (s *Summary) Err() error {
	if len(s.Failures) == 0 {
		return nil
	}
	return errors.DownloadError(fmt.Sprintf("%d of %d shards failed", len(s.Failures), s.Processed+len(s.Failures)), nil)
}

// Downloader fetches and converts shards one after another.
type Downloader struct {
	hub     Hub
	runner  Runner
	opts    Options
	limiter *rate.Limiter
	log     *logger.Logger
}

// NewDownloader creates a downloader.
func NewDownloader(hub Hub, runner Runner, opts Options, log *logger.Logger) *Downloader {
	if log == nil {
		log = logger.Discard()
	}
	limit := rate.Inf
	if opts.Interval > 0 {
		limit = rate.Every(opts.Interval)
	}
	return &Downloader{
		hub:     hub,
		runner:  runner,
		opts:    opts,
		limiter: rate.NewLimiter(limit, 1),
		log:     log,
	}
}

// Run logs in, then downloads and converts shards 0..NumFiles-1. A failed
// shard is recorded and the loop moves on; only a failed login or a
// cancelled context stops it early.
func (d *Downloader) Run(ctx context.Context) (*Summary, error) {
	who, err := d.hub.WhoAmI(ctx)
	if err != nil {
		return nil, err
	}
	d.log.Info("Logged in to the Hub", "user", who.Name, "profile", d.opts.Profile.Name, "files", d.opts.NumFiles)

	summary := &Summary{}
	for i := 0; i < d.opts.NumFiles; i++ {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		shard := ShardFilename(i)
		log := d.log.WithShard(i, shard)

		if err := d.processShard(ctx, i, shard, summary, log); err != nil {
			if ctx.Err() != nil {
				return summary, ctx.Err()
			}
			log.WithError(err).Error("Shard failed")
			summary.Failures = append(summary.Failures, Failure{Index: i, Shard: shard, Reason: err.Error()})
			continue
		}
		summary.Processed++
	}

	d.log.Info("Download finished", "processed", summary.Processed, "downloaded", summary.Downloaded,
		"skipped", summary.Skipped, "failed", len(summary.Failures))
	return summary, nil
}

func (d *Downloader) processShard(ctx context.Context, i int, shard string, summary *Summary, log *logger.Logger) error {
	shardPath := filepath.Join(d.opts.Root, shard)

	if _, err := os.Stat(shardPath); err == nil && d.opts.Profile.SkipExisting {
		log.Info("Shard exists, skipping download")
		summary.Skipped++
	} else {
		log.Info("Downloading shard")
		if _, err := d.hub.DownloadFile(ctx, models.RepoTypeDataset, d.opts.Repo, shard, shardPath, nil); err != nil {
			return err
		}
		summary.Downloaded++
		if err := d.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	output := d.opts.Profile.OutputFolder(d.opts.Root, i)
	if err := os.MkdirAll(output, 0755); err != nil {
		return errors.IOError("failed to create "+output, err)
	}

	log.Info("Converting shard", "output", output)
	return d.runner.Run(ctx, d.opts.Tool, d.opts.Profile.ConversionArgs(shardPath, output, d.opts.Conversion))
}
