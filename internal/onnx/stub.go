package onnx

import (
	"math"
	"strings"

	"github.com/fitbench/fitbench/internal/pkg/errors"
)

// MockEmbeddingDim is the embedding width produced by mock encoders.
const MockEmbeddingDim = 512

// stubRuntime fails every session. Used when ONNX Runtime is missing.
type stubRuntime struct{}

var _ runtimeImpl = (*stubRuntime)(nil)
var _ runtimeImpl = (*mockRuntime)(nil)
var _ sessionImpl = (*mockSession)(nil)

func (s *stubRuntime) createSession(name, modelPath string, device Device, cudaDeviceID int) (*Session, error) {
	return nil, errors.New(errors.CodeMLError,
		"ONNX Runtime not available - install it or set FITB_MOCK_ML=true").
		WithDetail("model", name)
}

func (s *stubRuntime) close() error {
	return nil
}

// mockRuntime produces deterministic outputs without model files.
// The output kind is picked from the session name.
type mockRuntime struct{}

func (m *mockRuntime) createSession(name, modelPath string, device Device, cudaDeviceID int) (*Session, error) {
	kind := mockEmbedding
	outputs := []string{"embeds"}
	switch {
	case strings.Contains(name, "lpips"):
		kind = mockDistance
		outputs = []string{"distance"}
	case strings.Contains(name, "compat"):
		kind = mockLogits
		outputs = []string{"logits"}
	}

	return &Session{
		name:        name,
		path:        modelPath,
		outputNames: outputs,
		impl:        &mockSession{kind: kind, output: outputs[0]},
	}, nil
}

func (m *mockRuntime) close() error {
	return nil
}

type mockKind int

const (
	mockEmbedding mockKind = iota
	mockDistance
	mockLogits
)

type mockSession struct {
	kind   mockKind
	output string
}

func (s *mockSession) run(inputs map[string]*Tensor) (map[string]*Tensor, error) {
	var out *Tensor
	switch s.kind {
	case mockDistance:
		out = mockLPIPS(inputs["in0"], inputs["in1"])
	case mockLogits:
		out = mockCompatibility(inputs["features"])
	default:
		out = mockEmbed(inputs)
	}
	if out == nil {
		return nil, errors.ValidationError("mock session: missing inputs")
	}
	return map[string]*Tensor{s.output: out}, nil
}

func (s *mockSession) close() error {
	return nil
}

// mockEmbed folds each batch row of the first input into a fixed-width vector,
// so equal inputs give equal embeddings.
func mockEmbed(inputs map[string]*Tensor) *Tensor {
	var src *Tensor
	for _, name := range []string{"pixel_values", "input_ids"} {
		if t, ok := inputs[name]; ok {
			src = t
			break
		}
	}
	if src == nil || len(src.Shape()) == 0 {
		return nil
	}

	batch := src.Shape()[0]
	out := make([]float32, batch*MockEmbeddingDim)
	if batch == 0 {
		return NewTensorFloat32(out, []int64{0, MockEmbeddingDim})
	}
	rowLen := int(src.NumElements() / batch)

	for b := 0; b < int(batch); b++ {
		row := out[b*MockEmbeddingDim : (b+1)*MockEmbeddingDim]
		for j := 0; j < rowLen; j++ {
			var v float64
			switch src.DataType() {
			case TensorTypeFloat32:
				v = float64(src.Float32Data()[b*rowLen+j])
			case TensorTypeInt64:
				v = float64(src.Int64Data()[b*rowLen+j])
			}
			row[j%MockEmbeddingDim] += float32(math.Sin(v*0.37 + float64(j%97)))
		}
	}
	return NewTensorFloat32(out, []int64{batch, MockEmbeddingDim})
}

// mockLPIPS returns the mean absolute difference of each image pair.
func mockLPIPS(in0, in1 *Tensor) *Tensor {
	if in0 == nil || in1 == nil || len(in0.Shape()) == 0 {
		return nil
	}
	batch := in0.Shape()[0]
	out := make([]float32, batch)
	if batch == 0 {
		return NewTensorFloat32(out, []int64{0, 1, 1, 1})
	}
	a, b := in0.Float32Data(), in1.Float32Data()
	rowLen := len(a) / int(batch)
	for i := 0; i < int(batch); i++ {
		var sum float64
		for j := 0; j < rowLen; j++ {
			sum += math.Abs(float64(a[i*rowLen+j] - b[i*rowLen+j]))
		}
		out[i] = float32(sum / float64(rowLen))
	}
	return NewTensorFloat32(out, []int64{batch, 1, 1, 1})
}

// mockCompatibility returns a zero logit per outfit.
func mockCompatibility(features *Tensor) *Tensor {
	if features == nil || len(features.Shape()) == 0 {
		return nil
	}
	batch := features.Shape()[0]
	return NewTensorFloat32(make([]float32, batch), []int64{batch})
}
