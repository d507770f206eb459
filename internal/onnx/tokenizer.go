package onnx

import (
	"hash/fnv"
	"os"
	"strings"
	"unicode"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"

	"github.com/fitbench/fitbench/internal/pkg/errors"
)

// Tokenizer turns prompts into fixed-length token id rows.
type Tokenizer struct {
	contextLength int
	padID         int64
	impl          tokenizerImpl
}

// TokenizerConfig holds tokenizer configuration.
type TokenizerConfig struct {
	// ContextLength is the padded row length, 77 for CLIP.
	ContextLength int
	PadID         int64
	// AllowFallback uses a hashing word tokenizer when the file is missing.
	AllowFallback bool
}

// DefaultTokenizerConfig returns the CLIP text encoder layout.
func DefaultTokenizerConfig() TokenizerConfig {
	return TokenizerConfig{ContextLength: 77}
}

// NewTokenizer loads a HuggingFace tokenizer.json.
func NewTokenizer(path string, cfg TokenizerConfig) (*Tokenizer, error) {
	if cfg.ContextLength <= 0 {
		return nil, errors.ValidationError("context length must be positive")
	}

	var impl tokenizerImpl
	if _, err := os.Stat(path); err != nil {
		if !cfg.AllowFallback {
			return nil, errors.NotFoundError("tokenizer " + path)
		}
		impl = hashTokenizer{}
	} else {
		tk, err := pretrained.FromFile(path)
		if err != nil {
			return nil, errors.MLError("failed to load tokenizer "+path, err)
		}
		impl = &hfTokenizer{tk: tk}
	}

	return &Tokenizer{
		contextLength: cfg.ContextLength,
		padID:         cfg.PadID,
		impl:          impl,
	}, nil
}

// Encode tokenizes a single text with special tokens.
func (t *Tokenizer) Encode(text string) ([]int64, error) {
	return t.impl.encode(text)
}

// EncodePadded tokenizes texts into a [len(texts), ContextLength] batch.
func (t *Tokenizer) EncodePadded(texts []string) (*BatchEncoding, error) {
	encodings := make([][]int64, len(texts))
	for i, text := range texts {
		ids, err := t.Encode(text)
		if err != nil {
			return nil, err
		}
		encodings[i] = ids
	}
	return t.PadBatch(encodings), nil
}

// PadBatch pads every row to the context length. Rows that are too long are
// cut and keep their final token, which is the end-of-text marker.
func (t *Tokenizer) PadBatch(encodings [][]int64) *BatchEncoding {
	seqLen := t.contextLength
	batchSize := len(encodings)
	inputIDs := make([]int64, batchSize*seqLen)
	attentionMask := make([]int64, batchSize*seqLen)

	for i, ids := range encodings {
		offset := i * seqLen
		row := inputIDs[offset : offset+seqLen]
		for j := range row {
			row[j] = t.padID
		}

		n := min(len(ids), seqLen)
		copy(row, ids[:n])
		if len(ids) > seqLen && seqLen > 0 {
			row[seqLen-1] = ids[len(ids)-1]
		}
		for j := 0; j < n; j++ {
			attentionMask[offset+j] = 1
		}
	}

	return &BatchEncoding{
		InputIDs:      inputIDs,
		AttentionMask: attentionMask,
		BatchSize:     batchSize,
		SeqLength:     seqLen,
	}
}

// ContextLength returns the padded row length.
func (t *Tokenizer) ContextLength() int {
	return t.contextLength
}

// BatchEncoding holds padded batch encodings ready for model input.
type BatchEncoding struct {
	InputIDs      []int64
	AttentionMask []int64
	BatchSize     int
	SeqLength     int
}

// Shape returns the tensor shape [batch_size, seq_length].
func (b *BatchEncoding) Shape() []int64 {
	return []int64{int64(b.BatchSize), int64(b.SeqLength)}
}

type tokenizerImpl interface {
	encode(text string) ([]int64, error)
}

type hfTokenizer struct {
	tk *tokenizer.Tokenizer
}

func (h *hfTokenizer) encode(text string) ([]int64, error) {
	enc, err := h.tk.EncodeSingle(text, true)
	if err != nil {
		return nil, errors.MLError("tokenize failed", err)
	}
	ids := make([]int64, len(enc.Ids))
	for i, id := range enc.Ids {
		ids[i] = int64(id)
	}
	return ids, nil
}

// Ids of the hashing tokenizer follow the CLIP vocabulary layout.
const (
	hashStartID = 49406
	hashEndID   = 49407
)

// hashTokenizer maps lower-cased words to stable ids. Used with mock inference.
type hashTokenizer struct{}

func (hashTokenizer) encode(text string) ([]int64, error) {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	ids := make([]int64, 0, len(words)+2)
	ids = append(ids, hashStartID)
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		ids = append(ids, 1+int64(h.Sum32()%(hashStartID-1)))
	}
	ids = append(ids, hashEndID)
	return ids, nil
}
