package dataset

import (
	"fmt"
	"os"

	"github.com/sbinet/npyio"

	"github.com/fitbench/fitbench/internal/pkg/errors"
)

// Matrix is a dense row-major float32 matrix, one row per item id.
type Matrix struct {
	rows int
	cols int
	data []float32
}

// NewMatrix wraps data as a rows x cols matrix.
func NewMatrix(rows, cols int, data []float32) (*Matrix, error) {
	if rows < 0 || cols < 0 || len(data) != rows*cols {
		return nil, errors.ValidationError(fmt.Sprintf("matrix %dx%d needs %d values, got %d", rows, cols, rows*cols, len(data)))
	}
	return &Matrix{rows: rows, cols: cols, data: data}, nil
}

// LoadMatrix reads a 2-D little-endian float32 or float64 .npy file.
func LoadMatrix(path string) (*Matrix, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFoundError(path)
		}
		return nil, errors.IOError("failed to open "+path, err)
	}
	defer f.Close()

	r, err := npyio.NewReader(f)
	if err != nil {
		return nil, errors.Wrap(errors.CodeValidation, "invalid npy header in "+path, err)
	}

	shape := r.Header.Descr.Shape
	if len(shape) != 2 {
		return nil, errors.ValidationError(fmt.Sprintf("%s: expected a 2-D array, got shape %v", path, shape))
	}
	if r.Header.Descr.Fortran {
		return nil, errors.ValidationError(path + ": Fortran-ordered arrays are not supported")
	}

	var data []float32
	switch r.Header.Descr.Type {
	case "<f4":
		if err := r.Read(&data); err != nil {
			return nil, errors.IOError("failed to read "+path, err)
		}
	case "<f8":
		var wide []float64
		if err := r.Read(&wide); err != nil {
			return nil, errors.IOError("failed to read "+path, err)
		}
		data = make([]float32, len(wide))
		for i, v := range wide {
			data[i] = float32(v)
		}
	default:
		return nil, errors.ValidationError(fmt.Sprintf("%s: unsupported dtype %s", path, r.Header.Descr.Type))
	}

	return NewMatrix(shape[0], shape[1], data)
}

// Row returns the feature row of an item id.
func (m *Matrix) Row(id int) ([]float32, error) {
	if id < 0 || id >= m.rows {
		return nil, errors.NotFoundError(fmt.Sprintf("features of item %d (have %d items)", id, m.rows))
	}
	return m.data[id*m.cols : (id+1)*m.cols : (id+1)*m.cols], nil
}

// Rows returns the feature rows of several item ids.
func (m *Matrix) Rows(ids []int) ([][]float32, error) {
	out := make([][]float32, len(ids))
	for i, id := range ids {
		row, err := m.Row(id)
		if err != nil {
			return nil, err
		}
		out[i] = row
	}
	return out, nil
}

// Dim returns the row width.
func (m *Matrix) Dim() int {
	return m.cols
}

// Len returns the number of rows.
func (m *Matrix) Len() int {
	return m.rows
}
