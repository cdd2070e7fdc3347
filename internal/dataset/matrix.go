// Package dataset holds the tabular representation shared by every engine
// component: ordered named numeric columns plus loaders that bind raw CSV
// files to an explicit schema. Matrices are treated as read-only once
// built; perturbed variants are derived with WithColumn instead of
// in-place writes.
package dataset

import (
	"fmt"
)

// Matrix is an ordered set of named float64 columns; rows are instances.
type Matrix struct {
	names []string
	cols  [][]float64
	index map[string]int
	rows  int
}

// NewMatrix builds a Matrix from ordered column names and column-major
// values. Every column must have the same length and a unique, non-empty
// name.
func NewMatrix(names []string, cols [][]float64) (*Matrix, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("dataset: matrix needs at least one column")
	}
	if len(names) != len(cols) {
		return nil, fmt.Errorf("dataset: %d names for %d columns", len(names), len(cols))
	}

	rows := len(cols[0])
	index := make(map[string]int, len(names))
	for i, name := range names {
		if name == "" {
			return nil, fmt.Errorf("dataset: column %d has an empty name", i)
		}
		if _, dup := index[name]; dup {
			return nil, fmt.Errorf("dataset: duplicate column %q", name)
		}
		if len(cols[i]) != rows {
			return nil, fmt.Errorf("dataset: column %q has %d rows, want %d", name, len(cols[i]), rows)
		}
		index[name] = i
	}

	return &Matrix{names: names, cols: cols, index: index, rows: rows}, nil
}

// Rows returns the instance count.
func (m *Matrix) Rows() int { return m.rows }

// Cols returns the column count.
func (m *Matrix) Cols() int { return len(m.cols) }

// Names returns a copy of the column names in order.
func (m *Matrix) Names() []string {
	out := make([]string, len(m.names))
	copy(out, m.names)
	return out
}

// Name returns the name of column i.
func (m *Matrix) Name(i int) string { return m.names[i] }

// ColIndex returns the position of the named column.
func (m *Matrix) ColIndex(name string) (int, bool) {
	i, ok := m.index[name]
	return i, ok
}

// Col returns the values of the named column. The returned slice is the
// matrix's backing storage and must not be modified; use CopyCol when a
// mutable copy is needed.
func (m *Matrix) Col(name string) ([]float64, bool) {
	i, ok := m.index[name]
	if !ok {
		return nil, false
	}
	return m.cols[i], true
}

// ColAt returns the values of column i, read-only like Col.
func (m *Matrix) ColAt(i int) []float64 { return m.cols[i] }

// CopyCol returns a fresh copy of the named column.
func (m *Matrix) CopyCol(name string) ([]float64, bool) {
	src, ok := m.Col(name)
	if !ok {
		return nil, false
	}
	out := make([]float64, len(src))
	copy(out, src)
	return out, true
}

// Row materializes row i as a dense vector in column order.
func (m *Matrix) Row(i int) []float64 {
	out := make([]float64, len(m.cols))
	for c, col := range m.cols {
		out[c] = col[i]
	}
	return out
}

// RowMajor materializes the whole matrix as rows of values in column
// order, the layout prediction services consume.
func (m *Matrix) RowMajor() [][]float64 {
	out := make([][]float64, m.rows)
	for i := range out {
		out[i] = m.Row(i)
	}
	return out
}

// WithColumn returns a matrix sharing every column except name, which is
// replaced by vals. The receiver is left untouched, so perturbation passes
// can derive variants without copying the full matrix.
func (m *Matrix) WithColumn(name string, vals []float64) (*Matrix, error) {
	i, ok := m.index[name]
	if !ok {
		return nil, fmt.Errorf("dataset: unknown column %q", name)
	}
	if len(vals) != m.rows {
		return nil, fmt.Errorf("dataset: replacement for %q has %d rows, want %d", name, len(vals), m.rows)
	}

	cols := make([][]float64, len(m.cols))
	copy(cols, m.cols)
	cols[i] = vals

	return &Matrix{names: m.names, cols: cols, index: m.index, rows: m.rows}, nil
}

// Clone deep-copies the matrix.
func (m *Matrix) Clone() *Matrix {
	cols := make([][]float64, len(m.cols))
	for i, col := range m.cols {
		cols[i] = make([]float64, len(col))
		copy(cols[i], col)
	}
	out, _ := NewMatrix(m.Names(), cols)
	return out
}
