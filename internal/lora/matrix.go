package lora

import "fmt"

// Matrix is a dense row-major float32 matrix.
type Matrix struct {
	Rows int
	Cols int
	Data []float32
}

// NewMatrix allocates a zero matrix with the given shape.
func NewMatrix(rows, cols int) Matrix {
	return Matrix{Rows: rows, Cols: cols, Data: make([]float32, rows*cols)}
}

// At returns the element at row r, column c.
func (m Matrix) At(r, c int) float32 { return m.Data[r*m.Cols+c] }

// Set writes the element at row r, column c.
func (m *Matrix) Set(r, c int, v float32) { m.Data[r*m.Cols+c] = v }

// Validate checks that the backing slice matches the declared shape.
func (m Matrix) Validate() error {
	if m.Rows < 0 || m.Cols < 0 {
		return fmt.Errorf("negative dimensions %dx%d", m.Rows, m.Cols)
	}
	if len(m.Data) != m.Rows*m.Cols {
		return fmt.Errorf("data length %d does not match shape %dx%d", len(m.Data), m.Rows, m.Cols)
	}
	return nil
}

// mulVec computes x·m for a row vector x of length m.Rows.
func (m Matrix) mulVec(x []float32) []float32 {
	out := make([]float32, m.Cols)
	for r := 0; r < m.Rows; r++ {
		xv := x[r]
		if xv == 0 {
			continue
		}
		row := m.Data[r*m.Cols : (r+1)*m.Cols]
		for c, v := range row {
			out[c] += xv * v
		}
	}
	return out
}
