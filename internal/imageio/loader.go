package imageio

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Loader decodes and preprocesses images with a bounded number of workers.
type Loader struct {
	workers int
}

// NewLoader creates a loader. workers below 1 means one worker.
func NewLoader(workers int) *Loader {
	if workers < 1 {
		workers = 1
	}
	return &Loader{workers: workers}
}

// Load preprocesses every path, preserving order.
func (l *Loader) Load(ctx context.Context, paths []string, p Preprocessor) ([][]float32, error) {
	out := make([][]float32, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(l.workers)

	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			img, err := Open(path)
			if err != nil {
				return err
			}
			out[i] = p.Process(img)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
