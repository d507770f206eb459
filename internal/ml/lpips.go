package ml

import (
	"context"

	"github.com/fitbench/fitbench/internal/imageio"
	"github.com/fitbench/fitbench/internal/onnx"
	"github.com/fitbench/fitbench/internal/pkg/errors"
)

// LPIPS computes learned perceptual distances between image pairs.
type LPIPS struct {
	session   *onnx.Session
	loader    *imageio.Loader
	pre       imageio.Preprocessor
	batchSize int
}

// NewLPIPS creates an LPIPS metric over a loaded session.
func NewLPIPS(session *onnx.Session, loader *imageio.Loader, pre imageio.Preprocessor, batchSize int) *LPIPS {
	return &LPIPS{
		session:   session,
		loader:    loader,
		pre:       pre,
		batchSize: batchSize,
	}
}

// Distances returns the distance of every (a[i], b[i]) pair.
func (l *LPIPS) Distances(ctx context.Context, a, b []string) ([]float32, error) {
	if len(a) != len(b) {
		return nil, errors.ValidationError("LPIPS needs equally many images on both sides")
	}

	out := make([]float32, 0, len(a))
	err := forBatches(len(a), l.batchSize, func(start, end int) error {
		in0, err := l.pixels(ctx, a[start:end])
		if err != nil {
			return err
		}
		in1, err := l.pixels(ctx, b[start:end])
		if err != nil {
			return err
		}

		dist, err := l.session.Output(map[string]*onnx.Tensor{"in0": in0, "in1": in1}, "")
		if err != nil {
			return err
		}
		rows, err := dist.Rows()
		if err != nil {
			return err
		}
		for _, row := range rows {
			out = append(out, mean(row))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (l *LPIPS) pixels(ctx context.Context, paths []string) (*onnx.Tensor, error) {
	rows, err := l.loader.Load(ctx, paths, l.pre)
	if err != nil {
		return nil, err
	}
	t, err := onnx.Stack(rows)
	if err != nil {
		return nil, err
	}
	side := int64(l.pre.Size())
	return onnx.NewTensorFloat32(t.Float32Data(), []int64{int64(len(rows)), 3, side, side}), nil
}

func mean(v []float32) float32 {
	if len(v) == 0 {
		return 0
	}
	var sum float64
	for _, x := range v {
		sum += float64(x)
	}
	return float32(sum / float64(len(v)))
}
