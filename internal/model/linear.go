// Package model supplies Predictor implementations for the engine: a
// local logistic scorer loaded from a JSON weights file and an HTTP
// client for an external scoring service. Both honor the prediction
// contract the explain package enforces.
package model

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/rs/zerolog/log"

	"glassbox/internal/dataset"
)

// Linear is a logistic scorer over named features: sigmoid of
// bias + sum(weight_i * feature_i). Matrix columns without a weight
// contribute nothing; a weight naming a column the matrix lacks is a
// binding error.
type Linear struct {
	bias    float64
	weights map[string]float64
}

// LoadLinear reads a weights file of the form
// {"bias": 0.1, "weights": {"feature": 0.5, ...}}.
func LoadLinear(path string) (*Linear, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("model: failed to read weights file: %w", err)
	}

	var raw struct {
		Bias    float64            `json:"bias"`
		Weights map[string]float64 `json:"weights"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("model: failed to parse weights file %s: %w", path, err)
	}
	if len(raw.Weights) == 0 {
		return nil, fmt.Errorf("model: weights file %s holds no weights", path)
	}
	for name, w := range raw.Weights {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, fmt.Errorf("model: weight for %q is not finite", name)
		}
	}

	log.Info().Str("file", path).Int("weights", len(raw.Weights)).Msg("linear model loaded")
	return &Linear{bias: raw.Bias, weights: raw.Weights}, nil
}

// NewLinear builds a scorer directly from coefficients, mainly for tests
// and synthetic runs.
func NewLinear(bias float64, weights map[string]float64) *Linear {
	w := make(map[string]float64, len(weights))
	for k, v := range weights {
		w[k] = v
	}
	return &Linear{bias: bias, weights: w}
}

// Validate checks that every weighted feature exists among the given
// column names, so a schema mismatch fails at bind time rather than deep
// inside a permutation run.
func (l *Linear) Validate(names []string) error {
	present := make(map[string]struct{}, len(names))
	for _, n := range names {
		present[n] = struct{}{}
	}
	for name := range l.weights {
		if _, ok := present[name]; !ok {
			return fmt.Errorf("model: weight names column %q which the matrix lacks", name)
		}
	}
	return nil
}

// Predict scores each row with the logistic model. Implements
// explain.Predictor.
func (l *Linear) Predict(_ context.Context, m *dataset.Matrix) ([]float64, error) {
	type bound struct {
		col    []float64
		weight float64
	}
	cols := make([]bound, 0, len(l.weights))
	for name, w := range l.weights {
		col, ok := m.Col(name)
		if !ok {
			return nil, fmt.Errorf("model: weight names column %q which the matrix lacks", name)
		}
		cols = append(cols, bound{col: col, weight: w})
	}

	out := make([]float64, m.Rows())
	for i := range out {
		z := l.bias
		for _, b := range cols {
			z += b.weight * b.col[i]
		}
		out[i] = 1 / (1 + math.Exp(-z))
	}
	return out, nil
}
