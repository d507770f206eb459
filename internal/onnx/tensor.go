package onnx

import (
	"github.com/fitbench/fitbench/internal/pkg/errors"
)

// Tensor is a dense row-major array passed to and from sessions.
type Tensor struct {
	shape    []int64
	dataType TensorType
	data     any // []float32 or []int64
}

// NewTensorFloat32 creates a new float32 tensor.
func NewTensorFloat32(data []float32, shape []int64) *Tensor {
	return &Tensor{
		shape:    shape,
		dataType: TensorTypeFloat32,
		data:     data,
	}
}

// NewTensorInt64 creates a new int64 tensor.
func NewTensorInt64(data []int64, shape []int64) *Tensor {
	return &Tensor{
		shape:    shape,
		dataType: TensorTypeInt64,
		data:     data,
	}
}

// Shape returns the tensor shape.
func (t *Tensor) Shape() []int64 {
	return t.shape
}

// DataType returns the tensor data type.
func (t *Tensor) DataType() TensorType {
	return t.dataType
}

// Float32Data returns the data as float32 slice.
func (t *Tensor) Float32Data() []float32 {
	if data, ok := t.data.([]float32); ok {
		return data
	}
	return nil
}

// Int64Data returns the data as int64 slice.
func (t *Tensor) Int64Data() []int64 {
	if data, ok := t.data.([]int64); ok {
		return data
	}
	return nil
}

// NumElements returns the total number of elements.
func (t *Tensor) NumElements() int64 {
	if len(t.shape) == 0 {
		return 0
	}

	n := int64(1)
	for _, dim := range t.shape {
		n *= dim
	}
	return n
}

// Rows splits a float32 tensor into its first-axis rows.
// Trailing axes are flattened, so [B,1,1,1] yields B rows of length 1.
func (t *Tensor) Rows() ([][]float32, error) {
	data := t.Float32Data()
	if data == nil {
		return nil, errors.ValidationError("tensor is not float32")
	}
	if len(t.shape) == 0 {
		return nil, errors.ValidationError("tensor has no shape")
	}

	batch := int(t.shape[0])
	if batch == 0 {
		return [][]float32{}, nil
	}
	if len(data)%batch != 0 {
		return nil, errors.ValidationError("tensor data does not match shape")
	}

	width := len(data) / batch
	rows := make([][]float32, batch)
	for i := range rows {
		rows[i] = data[i*width : (i+1)*width : (i+1)*width]
	}
	return rows, nil
}

// Stack concatenates equal-width rows into a [len(rows), width] float32 tensor.
func Stack(rows [][]float32) (*Tensor, error) {
	if len(rows) == 0 {
		return nil, errors.ValidationError("cannot stack zero rows")
	}
	width := len(rows[0])
	data := make([]float32, 0, len(rows)*width)
	for _, row := range rows {
		if len(row) != width {
			return nil, errors.ValidationError("rows differ in width")
		}
		data = append(data, row...)
	}
	return NewTensorFloat32(data, []int64{int64(len(rows)), int64(width)}), nil
}
