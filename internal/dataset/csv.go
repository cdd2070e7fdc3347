package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// Schema binds a tabular file to the engine's inputs by naming the target
// column and, optionally, the feature columns. An empty Features list means
// every non-target column, in file order.
type Schema struct {
	Target   string   `yaml:"target" json:"target"`
	Features []string `yaml:"features" json:"features"`
}

// TargetError reports a target cell that could not be converted to a
// binary 0/1 label. Conversion never guesses: anything outside
// {0, 1, true, false} fails.
type TargetError struct {
	Row   int
	Value string
}

func (e *TargetError) Error() string {
	return fmt.Sprintf("dataset: row %d: target value %q is not a binary 0/1 label", e.Row, e.Value)
}

// ParseTarget converts one raw target cell into 0 or 1.
func ParseTarget(raw string, row int) (float64, error) {
	s := strings.TrimSpace(raw)
	switch strings.ToLower(s) {
	case "true":
		return 1, nil
	case "false":
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || (v != 0 && v != 1) {
		return 0, &TargetError{Row: row, Value: raw}
	}
	return v, nil
}

// LoadCSV reads a numeric feature file into a Matrix plus target vector
// according to the schema. The header row names columns; every feature
// cell must parse as a float and every target cell as a binary label.
func LoadCSV(path string, schema Schema) (*Matrix, []float64, error) {
	if schema.Target == "" {
		return nil, nil, fmt.Errorf("dataset: schema has no target column")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	indices := make(map[string]int, len(header))
	for i, col := range header {
		indices[strings.TrimSpace(col)] = i
	}

	targetIdx, ok := indices[schema.Target]
	if !ok {
		return nil, nil, fmt.Errorf("dataset: target column %q not in header", schema.Target)
	}

	featureNames := schema.Features
	if len(featureNames) == 0 {
		for _, col := range header {
			col = strings.TrimSpace(col)
			if col != schema.Target {
				featureNames = append(featureNames, col)
			}
		}
	}
	featureIdx := make([]int, len(featureNames))
	for i, name := range featureNames {
		idx, ok := indices[name]
		if !ok {
			return nil, nil, fmt.Errorf("dataset: feature column %q not in header", name)
		}
		if name == schema.Target {
			return nil, nil, fmt.Errorf("dataset: target column %q listed as a feature", name)
		}
		featureIdx[i] = idx
	}

	cols := make([][]float64, len(featureNames))
	var target []float64

	row := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("dataset: row %d: %w", row+1, err)
		}
		row++

		for i, idx := range featureIdx {
			v, err := strconv.ParseFloat(strings.TrimSpace(record[idx]), 64)
			if err != nil {
				return nil, nil, fmt.Errorf("dataset: row %d, column %q: %w", row, featureNames[i], err)
			}
			cols[i] = append(cols[i], v)
		}

		label, err := ParseTarget(record[targetIdx], row)
		if err != nil {
			return nil, nil, err
		}
		target = append(target, label)
	}

	if row == 0 {
		return nil, nil, fmt.Errorf("dataset: %s has a header but no rows", path)
	}

	m, err := NewMatrix(featureNames, cols)
	if err != nil {
		return nil, nil, err
	}

	log.Info().
		Str("file", path).
		Int("rows", m.Rows()).
		Int("features", m.Cols()).
		Msg("CSV data loaded")

	return m, target, nil
}

// LoadCorpusCSV reads a labeled text corpus: one document column and one
// binary label column per row.
func LoadCorpusCSV(path, textColumn, labelColumn string) ([]string, []float64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	textIdx, labelIdx := -1, -1
	for i, col := range header {
		switch strings.TrimSpace(col) {
		case textColumn:
			textIdx = i
		case labelColumn:
			labelIdx = i
		}
	}
	if textIdx < 0 {
		return nil, nil, fmt.Errorf("dataset: text column %q not in header", textColumn)
	}
	if labelIdx < 0 {
		return nil, nil, fmt.Errorf("dataset: label column %q not in header", labelColumn)
	}

	var docs []string
	var labels []float64

	row := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("dataset: row %d: %w", row+1, err)
		}
		row++

		label, err := ParseTarget(record[labelIdx], row)
		if err != nil {
			return nil, nil, err
		}
		docs = append(docs, record[textIdx])
		labels = append(labels, label)
	}

	if row == 0 {
		return nil, nil, fmt.Errorf("dataset: %s has a header but no rows", path)
	}

	log.Info().
		Str("file", path).
		Int("documents", len(docs)).
		Msg("corpus loaded")

	return docs, labels, nil
}
