package explain

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"

	"glassbox/internal/dataset"
)

func TestImportanceValidation(t *testing.T) {
	m, target := signalDataset(t)
	ex := newTestExplainer(t, m, target, linearPredictor("signal", 0.2, 0.6))

	_, err := Importance(context.Background(), ex, ImportanceOptions{Repeats: 0})
	if !IsKind(err, KindInvalidRepeatCount) {
		t.Errorf("Repeats=0 error = %v, want invalid repeat count", err)
	}
	_, err = Importance(context.Background(), ex, ImportanceOptions{Repeats: -3})
	if !IsKind(err, KindInvalidRepeatCount) {
		t.Errorf("Repeats=-3 error = %v, want invalid repeat count", err)
	}

	_, err = Importance(context.Background(), ex, ImportanceOptions{
		Repeats:  2,
		Features: []string{"signal", "ghost"},
	})
	if !IsKind(err, KindFeatureNotFound) {
		t.Errorf("unknown feature error = %v, want feature not found", err)
	}
	var engineErr *Error
	if !errors.As(err, &engineErr) || engineErr.Feature != "ghost" {
		t.Errorf("error should name feature ghost, got %v", err)
	}
}

func TestImportanceRanksInformativeFeatureFirst(t *testing.T) {
	m, target := signalDataset(t)
	ex := newTestExplainer(t, m, target, linearPredictor("signal", 0.2, 0.6))

	result, err := Importance(context.Background(), ex, ImportanceOptions{Repeats: 8, Seed: 42})
	if err != nil {
		t.Fatalf("Importance() failed: %v", err)
	}

	if len(result.Features) != 2 {
		t.Fatalf("got %d features, want 2", len(result.Features))
	}
	if result.Features[0].Feature != "signal" {
		t.Errorf("top feature = %q, want signal", result.Features[0].Feature)
	}
	if result.Features[0].Mean <= 0 {
		t.Errorf("informative feature mean dropout = %v, want > 0", result.Features[0].Mean)
	}

	// The model never reads the noise column, so shuffling it cannot move
	// the loss at all.
	for _, f := range result.Features {
		if f.Feature == "noise" && f.Mean != 0 {
			t.Errorf("noise mean dropout = %v, want exactly 0", f.Mean)
		}
	}

	if result.BaselineLoss != ex.BaselineLoss() {
		t.Errorf("result baseline loss %v != explainer %v", result.BaselineLoss, ex.BaselineLoss())
	}
	if len(result.Features[0].DropoutLosses) != 8 {
		t.Errorf("got %d dropout losses, want 8", len(result.Features[0].DropoutLosses))
	}
}

func TestImportanceDeterministicAcrossWorkerCounts(t *testing.T) {
	m, target := signalDataset(t)
	ex := newTestExplainer(t, m, target, linearPredictor("signal", 0.2, 0.6))

	run := func(workers int) *ImportanceResult {
		r, err := Importance(context.Background(), ex, ImportanceOptions{
			Repeats: 5,
			Seed:    7,
			Workers: workers,
		})
		if err != nil {
			t.Fatalf("Importance(workers=%d) failed: %v", workers, err)
		}
		return r
	}

	serial := run(1)
	parallel := run(8)
	again := run(8)

	if !reflect.DeepEqual(serial, parallel) {
		t.Error("results differ between 1 and 8 workers under the same seed")
	}
	if !reflect.DeepEqual(parallel, again) {
		t.Error("repeated runs with the same seed differ")
	}

	other, err := Importance(context.Background(), ex, ImportanceOptions{Repeats: 5, Seed: 8})
	if err != nil {
		t.Fatalf("Importance() failed: %v", err)
	}
	if reflect.DeepEqual(serial.Features[0].DropoutLosses, other.Features[0].DropoutLosses) {
		t.Error("different seeds should produce different permutations")
	}
}

func TestImportanceProgress(t *testing.T) {
	m, target := signalDataset(t)
	ex := newTestExplainer(t, m, target, linearPredictor("signal", 0.2, 0.6))

	var calls atomic.Int64
	var finalDone, finalTotal atomic.Int64
	_, err := Importance(context.Background(), ex, ImportanceOptions{
		Repeats: 3,
		Workers: 1,
		Progress: func(done, total int) {
			calls.Add(1)
			finalDone.Store(int64(done))
			finalTotal.Store(int64(total))
		},
	})
	if err != nil {
		t.Fatalf("Importance() failed: %v", err)
	}

	if calls.Load() != 6 {
		t.Errorf("progress called %d times, want 6", calls.Load())
	}
	if finalDone.Load() != 6 || finalTotal.Load() != 6 {
		t.Errorf("final progress %d/%d, want 6/6", finalDone.Load(), finalTotal.Load())
	}
}

func TestImportanceCancellationReturnsPartialResult(t *testing.T) {
	m, target := signalDataset(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Cancel after the baseline pass plus two permutation units.
	var predictions atomic.Int64
	inner := linearPredictor("signal", 0.2, 0.6)
	p := PredictorFunc(func(ctx context.Context, m *dataset.Matrix) ([]float64, error) {
		if predictions.Add(1) == 3 {
			cancel()
		}
		return inner(ctx, m)
	})

	ex, err := New(context.Background(), m, target, p, Config{Label: "cancel-test"})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	result, err := Importance(ctx, ex, ImportanceOptions{Repeats: 4, Workers: 1, Seed: 3})
	if !IsKind(err, KindInterrupted) {
		t.Fatalf("error = %v, want interrupted", err)
	}
	if result == nil {
		t.Fatal("cancellation must still return the partial result")
	}

	units := 0
	for _, f := range result.Features {
		units += len(f.DropoutLosses)
	}
	if units == 0 || units >= 8 {
		t.Errorf("partial result covers %d units, want between 1 and 7", units)
	}

	warned := false
	for _, w := range result.Warnings {
		if strings.Contains(w, "interrupted") {
			warned = true
		}
	}
	if !warned {
		t.Error("partial result must carry an interrupted warning")
	}
}

func TestImportanceFlatDropoutWarning(t *testing.T) {
	m, target := signalDataset(t)
	ex := newTestExplainer(t, m, target, constantPredictor(0.5))

	result, err := Importance(context.Background(), ex, ImportanceOptions{Repeats: 3})
	if err != nil {
		t.Fatalf("Importance() failed: %v", err)
	}

	warned := false
	for _, w := range result.Warnings {
		if strings.Contains(w, "insensitive") {
			warned = true
		}
	}
	if !warned {
		t.Errorf("uniformly zero dropout must warn explicitly, got warnings %v", result.Warnings)
	}
}

func TestImportanceFeatureSubset(t *testing.T) {
	m, target := signalDataset(t)
	ex := newTestExplainer(t, m, target, linearPredictor("signal", 0.2, 0.6))

	result, err := Importance(context.Background(), ex, ImportanceOptions{
		Repeats:  2,
		Features: []string{"noise"},
	})
	if err != nil {
		t.Fatalf("Importance() failed: %v", err)
	}
	if len(result.Features) != 1 || result.Features[0].Feature != "noise" {
		t.Errorf("scoped run returned %v", result.Features)
	}
}
