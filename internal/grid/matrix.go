package grid

import (
	"fmt"
	"math"
)

// Matrix is a dense row-major 2-D array.
type Matrix[T any] struct {
	Rows int
	Cols int
	Data []T
}

// NewMatrix allocates a zeroed rows x cols matrix.
func NewMatrix[T any](rows, cols int) *Matrix[T] {
	if rows < 0 || cols < 0 {
		rows, cols = 0, 0
	}
	return &Matrix[T]{Rows: rows, Cols: cols, Data: make([]T, rows*cols)}
}

// FromRows builds a matrix from a slice of equally sized rows.
func FromRows[T any](rows [][]T) (*Matrix[T], error) {
	if len(rows) == 0 {
		return NewMatrix[T](0, 0), nil
	}
	cols := len(rows[0])
	m := NewMatrix[T](len(rows), cols)
	for r, row := range rows {
		if len(row) != cols {
			return nil, fmt.Errorf("row %d has %d columns, want %d", r, len(row), cols)
		}
		copy(m.Data[r*cols:(r+1)*cols], row)
	}
	return m, nil
}

// Wrap adopts data as a rows x cols matrix without copying.
func Wrap[T any](rows, cols int, data []T) (*Matrix[T], error) {
	if rows < 0 || cols < 0 || rows*cols != len(data) {
		return nil, fmt.Errorf("cannot shape %d values as %dx%d", len(data), rows, cols)
	}
	return &Matrix[T]{Rows: rows, Cols: cols, Data: data}, nil
}

// Filled returns a rows x cols matrix with every cell set to v.
func Filled[T any](rows, cols int, v T) *Matrix[T] {
	m := NewMatrix[T](rows, cols)
	for i := range m.Data {
		m.Data[i] = v
	}
	return m
}

func (m *Matrix[T]) At(r, c int) T { return m.Data[r*m.Cols+c] }

func (m *Matrix[T]) Set(r, c int, v T) { m.Data[r*m.Cols+c] = v }

// Shape returns (rows, cols).
func (m *Matrix[T]) Shape() (int, int) {
	if m == nil {
		return 0, 0
	}
	return m.Rows, m.Cols
}

// Size is the number of cells.
func (m *Matrix[T]) Size() int {
	if m == nil {
		return 0
	}
	return len(m.Data)
}

// SameShape reports whether both matrices have identical dimensions.
func (m *Matrix[T]) SameShape(rows, cols int) bool {
	return m != nil && m.Rows == rows && m.Cols == cols
}

// Clone returns a deep copy.
func (m *Matrix[T]) Clone() *Matrix[T] {
	if m == nil {
		return nil
	}
	out := &Matrix[T]{Rows: m.Rows, Cols: m.Cols, Data: make([]T, len(m.Data))}
	copy(out.Data, m.Data)
	return out
}

// Slice copies the inclusive window [rowMin,rowMax] x [colMin,colMax].
func (m *Matrix[T]) Slice(rowMin, rowMax, colMin, colMax int) (*Matrix[T], error) {
	if rowMin < 0 || colMin < 0 || rowMax >= m.Rows || colMax >= m.Cols || rowMin > rowMax || colMin > colMax {
		return nil, fmt.Errorf("window rows %d..%d cols %d..%d outside %dx%d", rowMin, rowMax, colMin, colMax, m.Rows, m.Cols)
	}
	rows := rowMax - rowMin + 1
	cols := colMax - colMin + 1
	out := NewMatrix[T](rows, cols)
	for r := 0; r < rows; r++ {
		src := (rowMin+r)*m.Cols + colMin
		copy(out.Data[r*cols:(r+1)*cols], m.Data[src:src+cols])
	}
	return out, nil
}

// Reshape returns a copy with new dimensions holding the same cells in
// row-major order.
func (m *Matrix[T]) Reshape(rows, cols int) (*Matrix[T], error) {
	if rows*cols != len(m.Data) {
		return nil, fmt.Errorf("cannot reshape %dx%d to %dx%d", m.Rows, m.Cols, rows, cols)
	}
	out := m.Clone()
	out.Rows, out.Cols = rows, cols
	return out, nil
}

// Rows2D copies the matrix into a slice of rows.
func (m *Matrix[T]) Rows2D() [][]T {
	out := make([][]T, m.Rows)
	for r := range out {
		row := make([]T, m.Cols)
		copy(row, m.Data[r*m.Cols:(r+1)*m.Cols])
		out[r] = row
	}
	return out
}

// CountNaN returns the number of NaN cells in a float matrix.
func CountNaN(m *Matrix[float64]) int {
	if m == nil {
		return 0
	}
	n := 0
	for _, v := range m.Data {
		if math.IsNaN(v) {
			n++
		}
	}
	return n
}
