package explain

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"runtime"
	"sort"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"
)

// ImportanceOptions parameterizes one permutation-importance run.
type ImportanceOptions struct {
	// Repeats is the number of independent permutations per feature.
	Repeats int
	// Features limits the scope; empty means every column.
	Features []string
	// Seed fixes the random stream; every (feature, repeat) unit derives
	// its own sub-seed from it.
	Seed int64
	// Workers bounds parallel prediction calls; <=0 means one per CPU.
	Workers int
	// Progress, when set, is called after each completed unit. It may be
	// called concurrently.
	Progress func(done, total int)
}

// FeatureImportance is the per-feature aggregate: every dropout loss plus
// their mean.
type FeatureImportance struct {
	Feature       string    `json:"feature"`
	DropoutLosses []float64 `json:"dropout_losses"`
	Mean          float64   `json:"mean"`
}

// ImportanceResult ranks features by mean dropout loss, descending, with
// ties broken by feature name ascending.
type ImportanceResult struct {
	Label        string              `json:"label"`
	Loss         string              `json:"loss"`
	BaselineLoss float64             `json:"baseline_loss"`
	Repeats      int                 `json:"repeats"`
	Seed         int64               `json:"seed"`
	Features     []FeatureImportance `json:"features"`
	Warnings     []string            `json:"warnings,omitempty"`
}

// Top returns the first n ranked feature names.
func (r *ImportanceResult) Top(n int) []string {
	if n > len(r.Features) {
		n = len(r.Features)
	}
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = r.Features[i].Feature
	}
	return out
}

// Importance measures each feature's contribution to baseline loss by
// shuffling that column and re-scoring the model: dropout loss is
// loss(perturbed) - loss(baseline). Units are dispatched to a bounded
// worker pool; each owns a seed derived from (Seed, feature, repeat), so
// the result is identical for any worker count. On cancellation the
// completed units are aggregated and returned together with an
// Interrupted error.
func Importance(ctx context.Context, ex *Explainer, opts ImportanceOptions) (*ImportanceResult, error) {
	if opts.Repeats <= 0 {
		return nil, errf(KindInvalidRepeatCount, "repeat count %d must be positive", opts.Repeats)
	}

	feats := opts.Features
	if len(feats) == 0 {
		feats = ex.matrix.Names()
	}
	for _, f := range feats {
		if _, ok := ex.matrix.ColIndex(f); !ok {
			return nil, featureErrf(KindFeatureNotFound, f, "not in the feature matrix")
		}
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	total := len(feats) * opts.Repeats
	losses := make([][]float64, len(feats))
	finished := make([][]bool, len(feats))
	for i := range losses {
		losses[i] = make([]float64, opts.Repeats)
		finished[i] = make([]bool, opts.Repeats)
	}

	var completed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for fi := range feats {
		for r := 0; r < opts.Repeats; r++ {
			fi, r := fi, r
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				unitSeed := opts.Seed + int64(fi)*int64(opts.Repeats) + int64(r)
				dropout, err := permutationUnit(gctx, ex, feats[fi], unitSeed)
				if err != nil {
					return err
				}
				losses[fi][r] = dropout
				finished[fi][r] = true
				done := completed.Add(1)
				if opts.Progress != nil {
					opts.Progress(int(done), total)
				}
				return nil
			})
		}
	}

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return nil, err
	}

	if err != nil {
		partial := aggregate(ex, feats, losses, finished, opts)
		done := int(completed.Load())
		partial.Warnings = append(partial.Warnings,
			errf(KindInterrupted, "interrupted after %d of %d units", done, total).Error())
		log.Warn().
			Str("label", ex.label).
			Int("done", done).
			Int("total", total).
			Msg("importance run interrupted; returning partial result")
		return partial, wrapf(KindInterrupted, err, "importance interrupted after %d of %d units", done, total)
	}

	result := aggregate(ex, feats, losses, finished, opts)

	allFlat := true
	for _, f := range result.Features {
		if math.Abs(f.Mean) > 1e-12 {
			allFlat = false
			break
		}
	}
	if allFlat {
		result.Warnings = append(result.Warnings,
			"every mean dropout loss is ~0; the model output appears insensitive to these features")
		log.Warn().Str("label", ex.label).Msg("permutation importance produced no loss change")
	}

	return result, nil
}

// permutationUnit shuffles one column copy under its own seed and scores
// the perturbed matrix.
func permutationUnit(ctx context.Context, ex *Explainer, feature string, seed int64) (float64, error) {
	col, _ := ex.matrix.CopyCol(feature)
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(col), func(i, j int) { col[i], col[j] = col[j], col[i] })

	perturbed, err := ex.matrix.WithColumn(feature, col)
	if err != nil {
		return 0, err
	}
	probs, err := ex.predictChecked(ctx, perturbed)
	if err != nil {
		return 0, err
	}
	return ex.loss(ex.target, probs) - ex.baseLoss, nil
}

// aggregate folds completed unit slots into the ranked result. Units that
// never ran (interrupted dispatch) are dropped; a feature with no
// completed repeats is omitted entirely.
func aggregate(ex *Explainer, feats []string, losses [][]float64, finished [][]bool, opts ImportanceOptions) *ImportanceResult {
	result := &ImportanceResult{
		Label:        ex.label,
		Loss:         ex.lossName,
		BaselineLoss: ex.baseLoss,
		Repeats:      opts.Repeats,
		Seed:         opts.Seed,
	}

	for fi, feature := range feats {
		done := make([]float64, 0, opts.Repeats)
		for r, ok := range finished[fi] {
			if ok {
				done = append(done, losses[fi][r])
			}
		}
		if len(done) == 0 {
			continue
		}
		result.Features = append(result.Features, FeatureImportance{
			Feature:       feature,
			DropoutLosses: done,
			Mean:          stat.Mean(done, nil),
		})
	}

	sort.Slice(result.Features, func(i, j int) bool {
		if result.Features[i].Mean != result.Features[j].Mean {
			return result.Features[i].Mean > result.Features[j].Mean
		}
		return result.Features[i].Feature < result.Features[j].Feature
	})

	return result
}
