package dataset

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// ColumnSummary captures the distribution of one column at fit time, used
// by reports and variation screening.
type ColumnSummary struct {
	Name     string  `json:"name"`
	Mean     float64 `json:"mean"`
	Std      float64 `json:"std"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Distinct int     `json:"distinct"`
}

// Describe summarizes the named column.
func Describe(m *Matrix, name string) (ColumnSummary, error) {
	col, ok := m.Col(name)
	if !ok {
		return ColumnSummary{}, fmt.Errorf("dataset: unknown column %q", name)
	}

	min, max := math.Inf(1), math.Inf(-1)
	distinct := make(map[float64]struct{}, 16)
	for _, v := range col {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
		distinct[v] = struct{}{}
	}

	std := stat.StdDev(col, nil)
	if math.IsNaN(std) {
		std = 0
	}

	return ColumnSummary{
		Name:     name,
		Mean:     stat.Mean(col, nil),
		Std:      std,
		Min:      min,
		Max:      max,
		Distinct: len(distinct),
	}, nil
}

// DescribeColumns summarizes the named columns in order. Unknown names are
// reported, not skipped.
func DescribeColumns(m *Matrix, names []string) ([]ColumnSummary, error) {
	out := make([]ColumnSummary, 0, len(names))
	for _, name := range names {
		s, err := Describe(m, name)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
