package ml

import (
	"context"

	"github.com/fitbench/fitbench/internal/onnx"
	"github.com/fitbench/fitbench/internal/pkg/errors"
)

// FeatureTable looks up precomputed item features by item id.
type FeatureTable interface {
	Row(id int) ([]float32, error)
	Dim() int
}

// Compatibility scores outfits with a trained compatibility classifier.
// Item id 0 is padding and masked out.
type Compatibility struct {
	session   *onnx.Session
	features  FeatureTable
	batchSize int
}

// NewCompatibility creates a compatibility model over a loaded session.
func NewCompatibility(session *onnx.Session, features FeatureTable, batchSize int) *Compatibility {
	return &Compatibility{
		session:   session,
		features:  features,
		batchSize: batchSize,
	}
}

// Scores returns one compatibility probability per outfit.
func (c *Compatibility) Scores(ctx context.Context, outfits [][]int) ([]float32, error) {
	out := make([]float32, 0, len(outfits))
	err := forBatches(len(outfits), c.batchSize, func(start, end int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		features, mask, err := c.encode(outfits[start:end])
		if err != nil {
			return err
		}

		logits, err := c.session.Output(map[string]*onnx.Tensor{
			"features": features,
			"mask":     mask,
		}, "logits")
		if err != nil {
			return err
		}
		rows, err := logits.Rows()
		if err != nil {
			return err
		}
		if len(rows) != end-start {
			return errors.New(errors.CodeMLError, "compatibility model returned wrong batch size")
		}
		for _, row := range rows {
			out = append(out, Sigmoid(row[0]))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// encode builds [B,L,D] features and a [B,L] mask, L being the longest outfit.
func (c *Compatibility) encode(outfits [][]int) (*onnx.Tensor, *onnx.Tensor, error) {
	length := 0
	for _, o := range outfits {
		length = max(length, len(o))
	}
	dim := c.features.Dim()
	batch := len(outfits)

	features := make([]float32, batch*length*dim)
	mask := make([]float32, batch*length)
	for b, outfit := range outfits {
		for i, id := range outfit {
			if id == 0 {
				continue
			}
			row, err := c.features.Row(id)
			if err != nil {
				return nil, nil, err
			}
			copy(features[(b*length+i)*dim:], row)
			mask[b*length+i] = 1
		}
	}

	return onnx.NewTensorFloat32(features, []int64{int64(batch), int64(length), int64(dim)}),
		onnx.NewTensorFloat32(mask, []int64{int64(batch), int64(length)}),
		nil
}
