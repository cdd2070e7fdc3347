// Package report orchestrates a full explanation pass over one fitted
// model and renders the outcome as JSON, CSV, and human-readable text.
package report

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"glassbox/internal/dataset"
	"glassbox/internal/explain"
)

// Options selects how much of the engine a run exercises.
type Options struct {
	Repeats      int       // Permutation repeats per feature
	Workers      int       // Parallel prediction workers; 0 = one per CPU
	Seed         int64     // Base seed threaded into every randomized unit
	ALEBins      int       // Quantile bins per ALE profile
	TopProfiles  int       // ALE profiles for the top-ranked features; 0 disables
	LocalRows    []int     // Instances to explain locally; empty disables
	LocalBudget  int       // Features per local explanation
	LocalSamples int       // Neighborhood size per local explanation
	Baseline     []float64 // Feature-absent values for local toggling; nil = zeros
}

// Report aggregates the outcome of one explanation run.
type Report struct {
	Label        string                      `json:"label"`
	GeneratedAt  time.Time                   `json:"generated_at"`
	Rows         int                         `json:"rows"`
	FeatureCount int                         `json:"feature_count"`
	Loss         string                      `json:"loss"`
	BaselineLoss float64                     `json:"baseline_loss"`
	Performance  explain.Performance         `json:"performance"`
	Importance   *explain.ImportanceResult   `json:"importance"`
	Profiles     []*explain.ALEResult        `json:"profiles,omitempty"`
	Locals       []*explain.LocalExplanation `json:"locals,omitempty"`
	Columns      []dataset.ColumnSummary     `json:"columns,omitempty"`
	Warnings     []string                    `json:"warnings,omitempty"`
	ElapsedMS    int64                       `json:"elapsed_ms"`
}

// Runner binds an Explainer to run options.
type Runner struct {
	ex   *explain.Explainer
	opts Options
}

// NewRunner creates a runner for one explanation pass.
func NewRunner(ex *explain.Explainer, opts Options) *Runner {
	return &Runner{ex: ex, opts: opts}
}

// Run executes performance, importance, the top-ranked ALE profiles, and
// the configured local explanations in order. Degenerate per-feature
// conditions become report warnings; anything else aborts the run.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	report := &Report{
		Label:        r.ex.Label(),
		GeneratedAt:  start.UTC(),
		Rows:         r.ex.Rows(),
		FeatureCount: len(r.ex.Features()),
		Loss:         r.ex.LossName(),
		BaselineLoss: r.ex.BaselineLoss(),
		Warnings:     r.ex.Warnings(),
	}

	log.Info().
		Str("label", report.Label).
		Int("rows", report.Rows).
		Int("features", report.FeatureCount).
		Msg("starting explanation run")

	perf := r.ex.Performance()
	report.Performance = perf
	report.Warnings = append(report.Warnings, perf.Warnings...)

	imp, err := explain.Importance(ctx, r.ex, explain.ImportanceOptions{
		Repeats: r.opts.Repeats,
		Seed:    r.opts.Seed,
		Workers: r.opts.Workers,
	})
	if err != nil {
		return nil, fmt.Errorf("report: importance failed: %w", err)
	}
	report.Importance = imp
	report.Warnings = append(report.Warnings, imp.Warnings...)

	for _, feature := range imp.Top(r.opts.TopProfiles) {
		profile, err := explain.ALE(ctx, r.ex, feature, r.opts.ALEBins)
		if err != nil {
			if explain.IsKind(err, explain.KindInsufficientVariation) {
				report.Warnings = append(report.Warnings,
					fmt.Sprintf("feature %q has too little variation for an ALE profile", feature))
				continue
			}
			return nil, fmt.Errorf("report: ALE profile for %q failed: %w", feature, err)
		}
		report.Profiles = append(report.Profiles, profile)
		report.Warnings = append(report.Warnings, profile.Warnings...)
	}

	for _, row := range r.opts.LocalRows {
		local, err := explain.Local(ctx, r.ex, row, explain.LocalOptions{
			Budget:   r.opts.LocalBudget,
			Samples:  r.opts.LocalSamples,
			Seed:     r.opts.Seed,
			Baseline: r.opts.Baseline,
		})
		if err != nil {
			var engineErr *explain.Error
			if errors.As(err, &engineErr) && engineErr.Kind == explain.KindInsufficientVariation {
				report.Warnings = append(report.Warnings,
					fmt.Sprintf("row %d matches the baseline in every feature; no local explanation", row))
				continue
			}
			return nil, fmt.Errorf("report: local explanation for row %d failed: %w", row, err)
		}
		report.Locals = append(report.Locals, local)
		report.Warnings = append(report.Warnings, local.Warnings...)
	}

	summaries, err := dataset.DescribeColumns(r.ex.Matrix(), imp.Top(r.opts.TopProfiles))
	if err != nil {
		return nil, fmt.Errorf("report: column summary failed: %w", err)
	}
	report.Columns = summaries

	report.ElapsedMS = time.Since(start).Milliseconds()
	log.Info().
		Str("label", report.Label).
		Int64("elapsed_ms", report.ElapsedMS).
		Int("profiles", len(report.Profiles)).
		Int("locals", len(report.Locals)).
		Msg("explanation run finished")

	return report, nil
}
