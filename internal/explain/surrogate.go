package explain

import (
	"context"
	"math"
	"math/rand"
	"sort"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"glassbox/internal/common"
	"glassbox/internal/dataset"
)

// LocalOptions parameterizes a surrogate fit around one instance.
type LocalOptions struct {
	// Budget caps the number of features in the explanation.
	Budget int
	// Samples is the size of the perturbed neighborhood.
	Samples int
	// Seed fixes mask generation; identical seeds reproduce identical
	// coefficients.
	Seed int64
	// Baseline holds each column's "feature absent" value. Nil means all
	// zeros, the column mean of a z-scored matrix; pipelines supply the
	// exact token-absent vector via Vocabulary.Baseline.
	Baseline []float64
}

// LocalTerm is one coefficient of the fitted surrogate, Sign being the
// direction it pushes the positive-class probability.
type LocalTerm struct {
	Feature     string  `json:"feature"`
	Coefficient float64 `json:"coefficient"`
	Sign        int     `json:"sign"`
}

// LocalExplanation approximates the black-box model around one instance
// with a small weighted linear model.
type LocalExplanation struct {
	Label    string      `json:"label"`
	Row      int         `json:"row"`
	Terms    []LocalTerm `json:"terms"`
	R2       float64     `json:"r2"`
	Seed     int64       `json:"seed"`
	Samples  int         `json:"samples"`
	Warnings []string    `json:"warnings,omitempty"`
}

// Local explains one instance LIME-style: Bernoulli-toggle the instance's
// active features to build a perturbed neighborhood, score it with the
// black-box model in a single batched call, weight samples by an
// exponential kernel on Hamming distance, select the Budget features with
// the highest weighted correlation to the model output, and fit a
// weighted ridge whose coefficients are the explanation.
func Local(ctx context.Context, ex *Explainer, row int, opts LocalOptions) (*LocalExplanation, error) {
	rows := ex.matrix.Rows()
	if row < 0 || row >= rows {
		return nil, errf(KindShapeMismatch, "row %d outside dataset of %d rows", row, rows)
	}
	if opts.Baseline != nil && len(opts.Baseline) != ex.matrix.Cols() {
		return nil, errf(KindShapeMismatch, "baseline has %d values for %d columns",
			len(opts.Baseline), ex.matrix.Cols())
	}

	baseline := opts.Baseline
	if baseline == nil {
		baseline = make([]float64, ex.matrix.Cols())
	}

	instance := ex.matrix.Row(row)
	active := make([]int, 0, len(instance))
	for c, v := range instance {
		if v != baseline[c] {
			active = append(active, c)
		}
	}
	if len(active) == 0 {
		return nil, errf(KindInsufficientVariation,
			"row %d does not differ from the baseline in any feature", row)
	}
	if opts.Budget <= 0 || opts.Budget > len(active) {
		return nil, errf(KindInvalidFeatureBudget,
			"budget %d with %d active features", opts.Budget, len(active))
	}
	if opts.Samples < opts.Budget+1 {
		return nil, errf(KindInsufficientSamples,
			"%d samples cannot support a %d-term surrogate; need at least %d",
			opts.Samples, opts.Budget, opts.Budget+1)
	}

	// All randomness is spent up front by a single stream, so the sample
	// set is a pure function of the seed. Sample 0 is the unperturbed
	// instance.
	rng := rand.New(rand.NewSource(opts.Seed))
	masks := make([][]bool, opts.Samples)
	allOn := make([]bool, len(active))
	for j := range allOn {
		allOn[j] = true
	}
	masks[0] = allOn
	for s := 1; s < opts.Samples; s++ {
		mask := make([]bool, len(active))
		for j := range mask {
			mask[j] = rng.Float64() < 0.5
		}
		masks[s] = mask
	}

	perturbed, err := neighborhood(ex.matrix, instance, baseline, active, masks)
	if err != nil {
		return nil, err
	}
	probs, err := ex.predictChecked(ctx, perturbed)
	if err != nil {
		return nil, interruptedOr(ctx, err)
	}

	sigma := common.KernelWidthScale * math.Sqrt(float64(len(active)))
	weights := make([]float64, opts.Samples)
	for s, mask := range masks {
		d := 0.0
		for _, on := range mask {
			if !on {
				d++
			}
		}
		weights[s] = math.Exp(-(d * d) / (sigma * sigma))
	}

	explanation := &LocalExplanation{
		Label:   ex.label,
		Row:     row,
		Seed:    opts.Seed,
		Samples: opts.Samples,
	}

	meanY, stdY := stat.MeanStdDev(probs, weights)
	constantNeighborhood := math.IsNaN(stdY) || stdY < 1e-12
	if constantNeighborhood {
		explanation.Warnings = append(explanation.Warnings,
			"black-box output is constant across the sampled neighborhood; the surrogate is uninformative")
		log.Warn().
			Str("label", ex.label).
			Int("row", row).
			Float64("probability", meanY).
			Msg("local surrogate neighborhood is constant")
	}

	selected := selectMasks(ex, active, masks, probs, weights, opts.Budget)

	coef, escalations, ok := ridgeFit(masks, selected, probs, weights)
	if !ok {
		explanation.Warnings = append(explanation.Warnings,
			"local design matrix stayed rank deficient after regularizer escalation; no coefficients fitted")
		return explanation, nil
	}
	if escalations > 0 {
		explanation.Warnings = append(explanation.Warnings,
			"local design matrix is near rank deficient; the ridge regularizer was escalated")
	}

	terms := make([]LocalTerm, len(selected))
	for p, j := range selected {
		c := coef.AtVec(p + 1)
		sign := 0
		switch {
		case c > 1e-12:
			sign = 1
		case c < -1e-12:
			sign = -1
		}
		terms[p] = LocalTerm{
			Feature:     ex.matrix.Name(active[j]),
			Coefficient: c,
			Sign:        sign,
		}
	}
	sort.Slice(terms, func(i, j int) bool {
		ai, aj := math.Abs(terms[i].Coefficient), math.Abs(terms[j].Coefficient)
		if ai != aj {
			return ai > aj
		}
		return terms[i].Feature < terms[j].Feature
	})
	explanation.Terms = terms

	if !constantNeighborhood {
		fitted := make([]float64, opts.Samples)
		for s, mask := range masks {
			v := coef.AtVec(0)
			for p, j := range selected {
				if mask[j] {
					v += coef.AtVec(p + 1)
				}
			}
			fitted[s] = v
		}
		explanation.R2 = stat.RSquaredFrom(fitted, probs, weights)
	}

	return explanation, nil
}

// neighborhood builds the perturbed sample matrix column-major: every row
// starts as the instance, and toggled-off features drop to the baseline.
func neighborhood(m *dataset.Matrix, instance, baseline []float64, active []int, masks [][]bool) (*dataset.Matrix, error) {
	samples := len(masks)
	cols := make([][]float64, m.Cols())
	for c := range cols {
		col := make([]float64, samples)
		for s := range col {
			col[s] = instance[c]
		}
		cols[c] = col
	}
	for j, c := range active {
		for s, mask := range masks {
			if !mask[j] {
				cols[c][s] = baseline[c]
			}
		}
	}
	return dataset.NewMatrix(m.Names(), cols)
}

// selectMasks ranks active features by |weighted correlation| between
// their on/off column and the model output, returning the top budget
// indexes into active. Zero-variance columns correlate as 0.
func selectMasks(ex *Explainer, active []int, masks [][]bool, probs, weights []float64, budget int) []int {
	type scored struct {
		j    int
		corr float64
	}

	col := make([]float64, len(masks))
	scores := make([]scored, len(active))
	for j := range active {
		for s, mask := range masks {
			if mask[j] {
				col[s] = 1
			} else {
				col[s] = 0
			}
		}
		corr := stat.Correlation(col, probs, weights)
		if math.IsNaN(corr) {
			corr = 0
		}
		scores[j] = scored{j: j, corr: corr}
	}

	sort.Slice(scores, func(a, b int) bool {
		ca, cb := math.Abs(scores[a].corr), math.Abs(scores[b].corr)
		if ca != cb {
			return ca > cb
		}
		return ex.matrix.Name(active[scores[a].j]) < ex.matrix.Name(active[scores[b].j])
	})

	out := make([]int, budget)
	for i := 0; i < budget; i++ {
		out[i] = scores[i].j
	}
	return out
}

// ridgeFit solves the weighted ridge normal equations with an intercept;
// the intercept itself is not penalized. Returns the coefficient vector,
// how many times the regularizer was escalated, and whether a factorization
// succeeded at all.
func ridgeFit(masks [][]bool, selected []int, probs, weights []float64) (*mat.VecDense, int, bool) {
	n := len(masks)
	k := len(selected)

	design := mat.NewDense(n, k+1, nil)
	scaled := mat.NewDense(n, k+1, nil)
	y := mat.NewVecDense(n, nil)
	for s := 0; s < n; s++ {
		w := math.Sqrt(weights[s])
		design.Set(s, 0, 1)
		scaled.Set(s, 0, w)
		for p, j := range selected {
			v := 0.0
			if masks[s][j] {
				v = 1
			}
			design.Set(s, p+1, v)
			scaled.Set(s, p+1, w*v)
		}
		y.SetVec(s, math.Sqrt(weights[s])*probs[s])
	}

	var xtx mat.Dense
	xtx.Mul(scaled.T(), scaled)
	var xty mat.VecDense
	xty.MulVec(scaled.T(), y)

	alpha := common.DefaultRidgeAlpha
	for attempt := 0; attempt <= common.MaxRidgeEscalation; attempt++ {
		sym := mat.NewSymDense(k+1, nil)
		for i := 0; i <= k; i++ {
			for j := i; j <= k; j++ {
				sym.SetSym(i, j, xtx.At(i, j))
			}
		}
		for i := 1; i <= k; i++ {
			sym.SetSym(i, i, sym.At(i, i)+alpha)
		}

		var chol mat.Cholesky
		if chol.Factorize(sym) {
			var coef mat.VecDense
			if err := chol.SolveVecTo(&coef, &xty); err == nil {
				return &coef, attempt, true
			}
		}
		alpha *= 10
	}

	return nil, common.MaxRidgeEscalation, false
}
