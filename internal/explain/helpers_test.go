package explain

import (
	"context"
	"sync/atomic"
	"testing"

	"glassbox/internal/dataset"
)

func testMatrix(t *testing.T, names []string, cols [][]float64) *dataset.Matrix {
	t.Helper()
	m, err := dataset.NewMatrix(names, cols)
	if err != nil {
		t.Fatalf("test matrix: %v", err)
	}
	return m
}

// linearPredictor scores bias + weight*feature, clamped into [0, 1].
func linearPredictor(feature string, bias, weight float64) PredictorFunc {
	return func(_ context.Context, m *dataset.Matrix) ([]float64, error) {
		col, ok := m.Col(feature)
		if !ok {
			return nil, &Error{Kind: KindFeatureNotFound, Feature: feature}
		}
		out := make([]float64, len(col))
		for i, v := range col {
			p := bias + weight*v
			if p < 0 {
				p = 0
			}
			if p > 1 {
				p = 1
			}
			out[i] = p
		}
		return out, nil
	}
}

func constantPredictor(p float64) PredictorFunc {
	return func(_ context.Context, m *dataset.Matrix) ([]float64, error) {
		out := make([]float64, m.Rows())
		for i := range out {
			out[i] = p
		}
		return out, nil
	}
}

// countingPredictor wraps another predictor and tallies batched calls.
type countingPredictor struct {
	inner Predictor
	calls atomic.Int64
}

func (c *countingPredictor) Predict(ctx context.Context, m *dataset.Matrix) ([]float64, error) {
	c.calls.Add(1)
	return c.inner.Predict(ctx, m)
}

// signalDataset builds a 12-row dataset whose "signal" column tracks the
// target except for two contrarian rows, and whose "noise" column carries
// no relationship to the target at all.
func signalDataset(t *testing.T) (*dataset.Matrix, []float64) {
	t.Helper()
	target := []float64{0, 0, 0, 0, 0, 0, 1, 1, 1, 1, 1, 1}
	signal := []float64{0.9, 0.1, 0.15, 0.2, 0.05, 0.12, 0.08, 0.88, 0.95, 0.85, 0.92, 0.82}
	noise := []float64{0.3, 0.7, 0.1, 0.9, 0.5, 0.2, 0.8, 0.4, 0.6, 0.15, 0.85, 0.55}
	m := testMatrix(t, []string{"signal", "noise"}, [][]float64{signal, noise})
	return m, target
}

func newTestExplainer(t *testing.T, m *dataset.Matrix, target []float64, p Predictor) *Explainer {
	t.Helper()
	ex, err := New(context.Background(), m, target, p, Config{Label: "test-model"})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return ex
}
