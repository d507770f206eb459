package ml

import (
	"context"

	"github.com/fitbench/fitbench/internal/imageio"
	"github.com/fitbench/fitbench/internal/onnx"
	"github.com/fitbench/fitbench/internal/pkg/errors"
	"github.com/fitbench/fitbench/internal/pkg/hash"
)

// Output names of the exported CLIP encoders.
const (
	ImageEmbedsOutput = "image_embeds"
	TextEmbedsOutput  = "text_embeds"
)

// ImageEncoder embeds image files with a CLIP vision encoder.
type ImageEncoder struct {
	session   *onnx.Session
	loader    *imageio.Loader
	pre       imageio.Preprocessor
	cache     *EmbeddingCache
	batchSize int
}

// NewImageEncoder creates an image encoder over a loaded session.
func NewImageEncoder(session *onnx.Session, loader *imageio.Loader, pre imageio.Preprocessor, cache *EmbeddingCache, batchSize int) *ImageEncoder {
	return &ImageEncoder{
		session:   session,
		loader:    loader,
		pre:       pre,
		cache:     cache,
		batchSize: batchSize,
	}
}

// EmbedImages returns one embedding per path. Each distinct path is encoded
// once; repeated paths and earlier calls are served from the cache.
func (e *ImageEncoder) EmbedImages(ctx context.Context, paths []string) ([][]float32, error) {
	return embedCached(ctx, paths, e.session.Name(), e.cache, e.batchSize, e.embedBatch)
}

func (e *ImageEncoder) embedBatch(ctx context.Context, paths []string) ([][]float32, error) {
	rows, err := e.loader.Load(ctx, paths, e.pre)
	if err != nil {
		return nil, err
	}

	pixels, err := onnx.Stack(rows)
	if err != nil {
		return nil, err
	}
	side := int64(e.pre.Size())
	pixels = onnx.NewTensorFloat32(pixels.Float32Data(), []int64{int64(len(rows)), 3, side, side})

	out, err := e.session.Output(map[string]*onnx.Tensor{"pixel_values": pixels}, ImageEmbedsOutput)
	if err != nil {
		return nil, err
	}
	return out.Rows()
}

// TextEncoder embeds prompts with a CLIP text encoder.
type TextEncoder struct {
	session   *onnx.Session
	tokenizer *onnx.Tokenizer
	cache     *EmbeddingCache
	batchSize int
}

// NewTextEncoder creates a text encoder over a loaded session.
func NewTextEncoder(session *onnx.Session, tokenizer *onnx.Tokenizer, cache *EmbeddingCache, batchSize int) *TextEncoder {
	return &TextEncoder{
		session:   session,
		tokenizer: tokenizer,
		cache:     cache,
		batchSize: batchSize,
	}
}

// EmbedTexts returns one embedding per text.
func (e *TextEncoder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	return embedCached(ctx, texts, e.session.Name(), e.cache, e.batchSize, e.embedBatch)
}

func (e *TextEncoder) embedBatch(_ context.Context, texts []string) ([][]float32, error) {
	enc, err := e.tokenizer.EncodePadded(texts)
	if err != nil {
		return nil, err
	}

	out, err := e.session.Output(map[string]*onnx.Tensor{
		"input_ids":      onnx.NewTensorInt64(enc.InputIDs, enc.Shape()),
		"attention_mask": onnx.NewTensorInt64(enc.AttentionMask, enc.Shape()),
	}, TextEmbedsOutput)
	if err != nil {
		return nil, err
	}
	return out.Rows()
}

// embedCached resolves items through the cache and runs the misses through
// embed in batches of batchSize, each distinct item once.
func embedCached(
	ctx context.Context,
	items []string,
	model string,
	cache *EmbeddingCache,
	batchSize int,
	embed func(context.Context, []string) ([][]float32, error),
) ([][]float32, error) {
	out := make([][]float32, len(items))
	pending := make(map[string][]int)
	var todo []string

	for i, item := range items {
		if emb, ok := cache.Get(hash.EmbeddingKey(model, item)); ok {
			out[i] = emb
			continue
		}
		if _, seen := pending[item]; !seen {
			todo = append(todo, item)
		}
		pending[item] = append(pending[item], i)
	}

	err := forBatches(len(todo), batchSize, func(start, end int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch := todo[start:end]
		embs, err := embed(ctx, batch)
		if err != nil {
			return err
		}
		if len(embs) != len(batch) {
			return errors.New(errors.CodeMLError, "encoder returned wrong number of embeddings").
				WithDetail("model", model)
		}
		for j, item := range batch {
			cache.Set(hash.EmbeddingKey(model, item), embs[j])
			for _, idx := range pending[item] {
				out[idx] = embs[j]
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// forBatches calls fn with consecutive [start, end) windows of at most size.
func forBatches(n, size int, fn func(start, end int) error) error {
	if size <= 0 {
		size = n
	}
	for start := 0; start < n; start += size {
		end := min(start+size, n)
		if err := fn(start, end); err != nil {
			return err
		}
	}
	return nil
}
