package onnx

import (
	"testing"
)

func TestNewTensorFloat32(t *testing.T) {
	data := []float32{1.0, 2.0, 3.0, 4.0}
	shape := []int64{2, 2}

	tensor := NewTensorFloat32(data, shape)

	if tensor.DataType() != TensorTypeFloat32 {
		t.Errorf("DataType = %v, want TensorTypeFloat32", tensor.DataType())
	}

	if len(tensor.Shape()) != 2 {
		t.Errorf("Shape length = %d, want 2", len(tensor.Shape()))
	}

	if tensor.Int64Data() != nil {
		t.Error("Int64Data should be nil for float32 tensor")
	}
}

func TestTensor_NumElements(t *testing.T) {
	tests := []struct {
		shape []int64
		want  int64
	}{
		{[]int64{2, 3}, 6},
		{[]int64{4}, 4},
		{[]int64{2, 3, 4}, 24},
		{[]int64{}, 0},
	}

	for _, tt := range tests {
		tensor := &Tensor{shape: tt.shape}
		got := tensor.NumElements()
		if got != tt.want {
			t.Errorf("NumElements(%v) = %d, want %d", tt.shape, got, tt.want)
		}
	}
}

func TestTensor_Rows(t *testing.T) {
	tensor := NewTensorFloat32([]float32{1, 2, 3, 4, 5, 6}, []int64{3, 1, 1, 2})

	rows, err := tensor.Rows()
	if err != nil {
		t.Fatalf("Rows() error = %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("len(rows) = %d, want 3", len(rows))
	}
	if rows[2][0] != 5 || rows[2][1] != 6 {
		t.Errorf("rows[2] = %v, want [5 6]", rows[2])
	}

	// Appending to a row must not clobber the next one
	_ = append(rows[0], 99)
	if rows[1][0] != 3 {
		t.Errorf("rows[1][0] = %v after append, want 3", rows[1][0])
	}

	if _, err := NewTensorInt64([]int64{1}, []int64{1}).Rows(); err == nil {
		t.Error("Rows() on int64 tensor should fail")
	}
}

func TestStack(t *testing.T) {
	tensor, err := Stack([][]float32{{1, 2}, {3, 4}, {5, 6}})
	if err != nil {
		t.Fatalf("Stack() error = %v", err)
	}
	if got := tensor.Shape(); got[0] != 3 || got[1] != 2 {
		t.Errorf("Shape = %v, want [3 2]", got)
	}

	if _, err := Stack([][]float32{{1, 2}, {3}}); err == nil {
		t.Error("Stack() with ragged rows should fail")
	}
	if _, err := Stack(nil); err == nil {
		t.Error("Stack() with no rows should fail")
	}
}

func TestMockRuntime_Embeddings(t *testing.T) {
	rt, err := NewRuntime(RuntimeConfig{Device: DeviceCPU, Mock: true})
	if err != nil {
		t.Fatalf("NewRuntime() error = %v", err)
	}
	defer rt.Close()

	if !rt.IsMock() {
		t.Fatal("runtime should report mock mode")
	}

	session, err := rt.LoadSession("clip-visual", "unused.onnx")
	if err != nil {
		t.Fatalf("LoadSession() error = %v", err)
	}

	pixels := []float32{0.1, 0.2, 0.3, 0.1, 0.2, 0.3, 0.9, 0.8, 0.7}
	out, err := session.Output(map[string]*Tensor{
		"pixel_values": NewTensorFloat32(pixels, []int64{3, 3}),
	}, "image_embeds")
	if err != nil {
		t.Fatalf("Output() error = %v", err)
	}

	rows, err := out.Rows()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 || len(rows[0]) != MockEmbeddingDim {
		t.Fatalf("got %d rows of width %d", len(rows), len(rows[0]))
	}
	for j := range rows[0] {
		if rows[0][j] != rows[1][j] {
			t.Fatal("equal inputs should give equal embeddings")
		}
	}
	if rows[0][0] == rows[2][0] && rows[0][1] == rows[2][1] {
		t.Error("different inputs should give different embeddings")
	}

	// Sessions are cached by name
	again, _ := rt.LoadSession("clip-visual", "other.onnx")
	if again != session {
		t.Error("LoadSession() should return the cached session")
	}
}

func TestMockRuntime_LPIPS(t *testing.T) {
	rt, err := NewRuntime(RuntimeConfig{Mock: true})
	if err != nil {
		t.Fatal(err)
	}
	defer rt.Close()

	session, err := rt.LoadSession("lpips-vgg", "unused.onnx")
	if err != nil {
		t.Fatal(err)
	}

	out, err := session.Output(map[string]*Tensor{
		"in0": NewTensorFloat32([]float32{0, 0, 1, 1}, []int64{2, 2}),
		"in1": NewTensorFloat32([]float32{0, 0, 0, 0}, []int64{2, 2}),
	}, "distance")
	if err != nil {
		t.Fatal(err)
	}

	got := out.Float32Data()
	if got[0] != 0 || got[1] != 1 {
		t.Errorf("distances = %v, want [0 1]", got)
	}
}

func TestSession_ClosedAndMissingInput(t *testing.T) {
	s := &Session{
		name:       "m",
		inputNames: []string{"features", "mask"},
		impl:       &mockSession{kind: mockLogits, output: "logits"},
	}

	_, err := s.Run(map[string]*Tensor{"features": NewTensorFloat32([]float32{1}, []int64{1, 1, 1})})
	if err == nil {
		t.Error("Run() without mask should fail")
	}

	_ = s.Close()
	if _, err := s.Run(nil); err == nil {
		t.Error("Run() on closed session should fail")
	}
}
