package explain

import (
	"context"
	"math"
	"testing"

	"glassbox/internal/dataset"
)

// localTestExplainer builds a 6-row, 4-feature dataset whose row 0 has
// every feature active, scored by a predictor that depends on "alpha" only.
func localTestExplainer(t *testing.T) *Explainer {
	t.Helper()
	alpha := []float64{1, 0, 1, 0, 1, 0}
	beta := []float64{1, 1, 0, 0, 1, 0}
	gamma := []float64{1, 0, 0, 1, 0, 1}
	delta := []float64{1, 1, 1, 0, 0, 0}
	m := testMatrix(t, []string{"alpha", "beta", "gamma", "delta"},
		[][]float64{alpha, beta, gamma, delta})
	target := []float64{1, 0, 1, 0, 1, 0}
	return newTestExplainer(t, m, target, linearPredictor("alpha", 0.2, 0.6))
}

func TestLocalRanksDrivingFeature(t *testing.T) {
	ex := localTestExplainer(t)

	got, err := Local(context.Background(), ex, 0, LocalOptions{
		Budget:  2,
		Samples: 64,
		Seed:    1,
	})
	if err != nil {
		t.Fatalf("Local() failed: %v", err)
	}

	if len(got.Terms) != 2 {
		t.Fatalf("got %d terms, want 2", len(got.Terms))
	}
	if got.Terms[0].Feature != "alpha" {
		t.Errorf("top term = %q, want alpha", got.Terms[0].Feature)
	}
	if got.Terms[0].Sign != 1 {
		t.Errorf("alpha sign = %d, want +1", got.Terms[0].Sign)
	}
	// The black box is exactly linear in the alpha toggle, so the
	// surrogate should recover it almost perfectly.
	if got.R2 < 0.9 {
		t.Errorf("R2 = %.4f, want > 0.9", got.R2)
	}
	if math.Abs(got.Terms[0].Coefficient-0.6) > 0.05 {
		t.Errorf("alpha coefficient = %.4f, want ~0.6", got.Terms[0].Coefficient)
	}
	if len(got.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", got.Warnings)
	}
}

func TestLocalSeedDeterminism(t *testing.T) {
	ex := localTestExplainer(t)
	opts := LocalOptions{Budget: 3, Samples: 48, Seed: 7}

	first, err := Local(context.Background(), ex, 0, opts)
	if err != nil {
		t.Fatalf("first Local() failed: %v", err)
	}
	second, err := Local(context.Background(), ex, 0, opts)
	if err != nil {
		t.Fatalf("second Local() failed: %v", err)
	}

	if len(first.Terms) != len(second.Terms) {
		t.Fatalf("term counts differ: %d vs %d", len(first.Terms), len(second.Terms))
	}
	for i := range first.Terms {
		if first.Terms[i] != second.Terms[i] {
			t.Errorf("term %d differs: %+v vs %+v", i, first.Terms[i], second.Terms[i])
		}
	}
	if first.R2 != second.R2 {
		t.Errorf("R2 differs: %v vs %v", first.R2, second.R2)
	}
}

func TestLocalValidation(t *testing.T) {
	ex := localTestExplainer(t)

	tests := []struct {
		name string
		row  int
		opts LocalOptions
		kind Kind
	}{
		{
			name: "row out of range",
			row:  99,
			opts: LocalOptions{Budget: 2, Samples: 16},
			kind: KindShapeMismatch,
		},
		{
			name: "negative row",
			row:  -1,
			opts: LocalOptions{Budget: 2, Samples: 16},
			kind: KindShapeMismatch,
		},
		{
			name: "baseline length mismatch",
			row:  0,
			opts: LocalOptions{Budget: 2, Samples: 16, Baseline: []float64{0, 0}},
			kind: KindShapeMismatch,
		},
		{
			name: "zero budget",
			row:  0,
			opts: LocalOptions{Budget: 0, Samples: 16},
			kind: KindInvalidFeatureBudget,
		},
		{
			name: "budget exceeds active features",
			row:  0,
			opts: LocalOptions{Budget: 5, Samples: 16},
			kind: KindInvalidFeatureBudget,
		},
		{
			name: "too few samples",
			row:  0,
			opts: LocalOptions{Budget: 3, Samples: 3},
			kind: KindInsufficientSamples,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Local(context.Background(), ex, tt.row, tt.opts)
			if !IsKind(err, tt.kind) {
				t.Errorf("Local() error = %v, want kind %s", err, tt.kind)
			}
		})
	}
}

func TestLocalRowEqualsBaseline(t *testing.T) {
	m := testMatrix(t, []string{"a", "b"}, [][]float64{
		{0, 1, 0, 1},
		{0, 0, 1, 1},
	})
	target := []float64{0, 1, 0, 1}
	ex := newTestExplainer(t, m, target, linearPredictor("a", 0.2, 0.6))

	// Row 0 is all zeros, identical to the implicit zero baseline.
	_, err := Local(context.Background(), ex, 0, LocalOptions{Budget: 1, Samples: 8})
	if !IsKind(err, KindInsufficientVariation) {
		t.Errorf("Local() error = %v, want kind %s", err, KindInsufficientVariation)
	}
}

func TestLocalCustomBaseline(t *testing.T) {
	ex := localTestExplainer(t)

	// A baseline equal to the instance leaves nothing to toggle.
	baseline := ex.matrix.Row(0)
	_, err := Local(context.Background(), ex, 0, LocalOptions{
		Budget:   2,
		Samples:  16,
		Baseline: baseline,
	})
	if !IsKind(err, KindInsufficientVariation) {
		t.Errorf("Local() error = %v, want kind %s", err, KindInsufficientVariation)
	}

	// A baseline that deactivates two of the four features shrinks the
	// active set, so a four-feature budget must be rejected.
	partial := ex.matrix.Row(0)
	partial[0] = 0
	partial[1] = 0
	_, err = Local(context.Background(), ex, 0, LocalOptions{
		Budget:   4,
		Samples:  16,
		Baseline: partial,
	})
	if !IsKind(err, KindInvalidFeatureBudget) {
		t.Errorf("Local() error = %v, want kind %s", err, KindInvalidFeatureBudget)
	}
}

func TestLocalConstantNeighborhood(t *testing.T) {
	alpha := []float64{1, 0, 1, 0}
	beta := []float64{1, 1, 0, 0}
	m := testMatrix(t, []string{"alpha", "beta"}, [][]float64{alpha, beta})
	target := []float64{1, 0, 1, 0}
	ex := newTestExplainer(t, m, target, constantPredictor(0.5))

	got, err := Local(context.Background(), ex, 0, LocalOptions{Budget: 2, Samples: 32, Seed: 3})
	if err != nil {
		t.Fatalf("Local() failed: %v", err)
	}

	if len(got.Warnings) == 0 {
		t.Error("constant neighborhood should produce a warning")
	}
	if got.R2 != 0 {
		t.Errorf("R2 = %v, want 0 for a constant neighborhood", got.R2)
	}
	for _, term := range got.Terms {
		if term.Sign != 0 {
			t.Errorf("term %s has sign %d on a constant output", term.Feature, term.Sign)
		}
	}
}

func TestLocalCancellation(t *testing.T) {
	ex := localTestExplainer(t)
	ex.predictor = PredictorFunc(func(ctx context.Context, m *dataset.Matrix) ([]float64, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return linearPredictor("alpha", 0.2, 0.6)(ctx, m)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Local(ctx, ex, 0, LocalOptions{Budget: 2, Samples: 16})
	if !IsKind(err, KindInterrupted) {
		t.Errorf("Local() error = %v, want kind %s", err, KindInterrupted)
	}
}
