// Package explain computes model-agnostic explanations for binary
// classifiers reached only through a prediction function: global
// permutation feature importance, accumulated local effect profiles, and
// per-instance local surrogate explanations. Every computation is a pure
// function of an immutable Explainer plus explicit parameters and seeds,
// which keeps results reproducible and safe to compute from parallel
// workers.
package explain

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog/log"

	"glassbox/internal/common"
	"glassbox/internal/dataset"
)

// Config names the model binding and selects the baseline loss.
type Config struct {
	// Label identifies the model in results and reports.
	Label string
	// Loss picks a named loss; empty means one_minus_auc.
	Loss string
	// LossFunc overrides Loss when set.
	LossFunc LossFunc
}

// Explainer binds one evaluation dataset to one prediction function. It
// validates the binding, runs the baseline prediction pass exactly once,
// and is immutable afterwards; importance, ALE and surrogate runs all
// derive from it.
type Explainer struct {
	label     string
	matrix    *dataset.Matrix
	target    []float64
	predictor Predictor
	loss      LossFunc
	lossName  string
	baseline  []float64
	baseLoss  float64
	warnings  []string
}

// New constructs an Explainer. The matrix is shared, not copied, and must
// not be modified afterwards; the target vector is copied and checked to
// be strictly binary.
func New(ctx context.Context, m *dataset.Matrix, target []float64, p Predictor, cfg Config) (*Explainer, error) {
	if m == nil || m.Rows() == 0 {
		return nil, errf(KindShapeMismatch, "feature matrix is empty")
	}
	if p == nil {
		return nil, fmt.Errorf("explain: a predictor is required")
	}
	if len(target) != m.Rows() {
		return nil, errf(KindShapeMismatch, "target has %d values, matrix has %d rows", len(target), m.Rows())
	}

	positives := 0
	y := make([]float64, len(target))
	for i, v := range target {
		if v != 0 && v != 1 {
			return nil, errf(KindInvalidTarget, "target[%d] = %v is not 0 or 1", i, v)
		}
		if v == 1 {
			positives++
		}
		y[i] = v
	}
	if positives == 0 || positives == len(y) {
		return nil, errf(KindInsufficientVariation,
			"target holds a single class (%d positive of %d); baseline loss is undefined", positives, len(y))
	}

	lossName := cfg.Loss
	if lossName == "" {
		lossName = LossOneMinusAUC
	}
	loss := cfg.LossFunc
	if loss == nil {
		var err error
		loss, err = LossByName(lossName)
		if err != nil {
			return nil, err
		}
	}

	e := &Explainer{
		label:     cfg.Label,
		matrix:    m,
		target:    y,
		predictor: p,
		loss:      loss,
		lossName:  lossName,
	}

	baseline, err := e.predictChecked(ctx, m)
	if err != nil {
		return nil, err
	}
	e.baseline = baseline
	e.baseLoss = loss(y, baseline)

	if e.baseLoss == 0 {
		e.warnings = append(e.warnings,
			"baseline loss is exactly zero; dropout losses cannot rise above a perfect fit and may not discriminate")
		log.Warn().Str("label", e.label).Msg("explainer baseline loss is exactly zero")
	}

	log.Info().
		Str("label", e.label).
		Int("rows", m.Rows()).
		Int("features", m.Cols()).
		Str("loss", lossName).
		Float64("baseline_loss", e.baseLoss).
		Msg("explainer constructed")

	return e, nil
}

// predictChecked runs the predictor and enforces its contract: one
// probability per row, all within [0, 1], none NaN. Violations are fatal
// and never coerced.
func (e *Explainer) predictChecked(ctx context.Context, m *dataset.Matrix) ([]float64, error) {
	probs, err := e.predictor.Predict(ctx, m)
	if err != nil {
		return nil, fmt.Errorf("explain: prediction failed: %w", err)
	}
	if len(probs) != m.Rows() {
		return nil, errf(KindPredictionContract,
			"predictor returned %d probabilities for %d rows", len(probs), m.Rows())
	}
	for i, p := range probs {
		if math.IsNaN(p) || p < 0 || p > 1 {
			return nil, errf(KindPredictionContract, "probability[%d] = %v is outside [0, 1]", i, p)
		}
	}
	return probs, nil
}

func (e *Explainer) Label() string      { return e.label }
func (e *Explainer) Rows() int          { return e.matrix.Rows() }
func (e *Explainer) Features() []string { return e.matrix.Names() }
func (e *Explainer) LossName() string   { return e.lossName }

// Matrix exposes the bound feature matrix. It is shared and read-only.
func (e *Explainer) Matrix() *dataset.Matrix { return e.matrix }

// Target returns a copy of the validated target vector.
func (e *Explainer) Target() []float64 {
	out := make([]float64, len(e.target))
	copy(out, e.target)
	return out
}

// Baseline returns a copy of the cached baseline probabilities.
func (e *Explainer) Baseline() []float64 {
	out := make([]float64, len(e.baseline))
	copy(out, e.baseline)
	return out
}

// BaselineLoss returns the loss of the unperturbed predictions, the
// reference point for every dropout loss.
func (e *Explainer) BaselineLoss() float64 { return e.baseLoss }

// Warnings returns construction-time warnings.
func (e *Explainer) Warnings() []string {
	out := make([]string, len(e.warnings))
	copy(out, e.warnings)
	return out
}

// Performance summarizes baseline prediction quality: threshold metrics
// at the 0.5 decision boundary plus AUC over the full probability vector.
type Performance struct {
	Recall    float64  `json:"recall"`
	Precision float64  `json:"precision"`
	F1        float64  `json:"f1"`
	Accuracy  float64  `json:"accuracy"`
	AUC       float64  `json:"auc"`
	Warnings  []string `json:"warnings,omitempty"`
}

// Performance derives the metric block from the cached baseline; it never
// re-queries the model.
func (e *Explainer) Performance() Performance {
	var tp, fp, tn, fn float64
	for i, p := range e.baseline {
		predicted := p >= common.DecisionThreshold
		actual := e.target[i] == 1
		switch {
		case predicted && actual:
			tp++
		case predicted && !actual:
			fp++
		case !predicted && !actual:
			tn++
		default:
			fn++
		}
	}

	perf := Performance{
		Accuracy: (tp + tn) / float64(len(e.target)),
		AUC:      AUC(e.target, e.baseline),
		// Both classes are guaranteed present, so tp+fn > 0.
		Recall: tp / (tp + fn),
	}

	if tp+fp == 0 {
		perf.Warnings = append(perf.Warnings,
			"no positive predictions at threshold 0.5; precision reported as 0")
	} else {
		perf.Precision = tp / (tp + fp)
	}

	if perf.Precision+perf.Recall > 0 {
		perf.F1 = 2 * perf.Precision * perf.Recall / (perf.Precision + perf.Recall)
	} else {
		perf.Warnings = append(perf.Warnings,
			"precision and recall are both 0; f1 reported as 0")
	}

	return perf
}
