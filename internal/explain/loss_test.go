package explain

import (
	"math"
	"testing"
)

func TestAUC(t *testing.T) {
	testCases := []struct {
		name   string
		target []float64
		prob   []float64
		want   float64
	}{
		{
			name:   "standard ranking",
			target: []float64{0, 0, 1, 1},
			prob:   []float64{0.1, 0.4, 0.35, 0.8},
			want:   0.75,
		},
		{
			name:   "perfect separation",
			target: []float64{0, 0, 1, 1},
			prob:   []float64{0.1, 0.2, 0.8, 0.9},
			want:   1.0,
		},
		{
			name:   "inverted ranking",
			target: []float64{1, 1, 0, 0},
			prob:   []float64{0.1, 0.2, 0.8, 0.9},
			want:   0.0,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := AUC(tc.target, tc.prob)
			if math.Abs(got-tc.want) > 1e-12 {
				t.Errorf("AUC() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestAUCDoesNotReorderInputs(t *testing.T) {
	target := []float64{0, 1, 0, 1}
	prob := []float64{0.9, 0.2, 0.4, 0.7}

	AUC(target, prob)

	if prob[0] != 0.9 || prob[1] != 0.2 || prob[2] != 0.4 || prob[3] != 0.7 {
		t.Errorf("prob mutated: %v", prob)
	}
	if target[0] != 0 || target[1] != 1 {
		t.Errorf("target mutated: %v", target)
	}
}

func TestOneMinusAUC(t *testing.T) {
	target := []float64{0, 0, 1, 1}
	prob := []float64{0.1, 0.4, 0.35, 0.8}

	if got := OneMinusAUC(target, prob); math.Abs(got-0.25) > 1e-12 {
		t.Errorf("OneMinusAUC() = %v, want 0.25", got)
	}
}

func TestLogLoss(t *testing.T) {
	// -ln(0.5) for both rows.
	target := []float64{1, 0}
	prob := []float64{0.5, 0.5}

	want := math.Ln2
	if got := LogLoss(target, prob); math.Abs(got-want) > 1e-12 {
		t.Errorf("LogLoss() = %v, want %v", got, want)
	}

	// Clipping keeps a confident miss finite.
	if got := LogLoss([]float64{1}, []float64{0}); math.IsInf(got, 0) || math.IsNaN(got) {
		t.Errorf("LogLoss() on p=0 must stay finite, got %v", got)
	}
}

func TestBrierScore(t *testing.T) {
	target := []float64{0, 1}
	prob := []float64{0.2, 0.6}

	want := (0.2*0.2 + 0.4*0.4) / 2
	if got := BrierScore(target, prob); math.Abs(got-want) > 1e-12 {
		t.Errorf("BrierScore() = %v, want %v", got, want)
	}
}

func TestLossByName(t *testing.T) {
	for _, name := range []string{LossOneMinusAUC, LossLog, LossBrier, ""} {
		if _, err := LossByName(name); err != nil {
			t.Errorf("LossByName(%q) failed: %v", name, err)
		}
	}
	if _, err := LossByName("hinge"); err == nil {
		t.Error("LossByName(hinge) should fail")
	}
}
