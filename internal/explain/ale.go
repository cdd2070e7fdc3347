package explain

import (
	"context"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// ALEBin is one interval of an accumulated-local-effects profile.
type ALEBin struct {
	Lo     float64 `json:"lo"`
	Hi     float64 `json:"hi"`
	Effect float64 `json:"effect"`
	Count  int     `json:"count"`
}

// ALEResult is a centered response curve for one feature: the
// instance-weighted mean effect over all bins is zero, so each value reads
// as a deviation from the average prediction.
type ALEResult struct {
	Label    string   `json:"label"`
	Feature  string   `json:"feature"`
	Bins     []ALEBin `json:"bins"`
	Warnings []string `json:"warnings,omitempty"`
}

// ALE profiles one feature's accumulated local effect. Bin edges are
// empirical quantiles (duplicate edges collapse); each instance is scored
// twice, with the feature clamped to its bin's lower and upper edge, so
// the whole profile costs two full-matrix predictions regardless of bin
// count. The per-bin mean differences accumulate across bins in value
// order and the curve is centered by its instance-weighted mean.
func ALE(ctx context.Context, ex *Explainer, feature string, bins int) (*ALEResult, error) {
	if bins < 2 {
		return nil, errf(KindInvalidBinCount, "bin count %d must be at least 2", bins)
	}
	col, ok := ex.matrix.Col(feature)
	if !ok {
		return nil, featureErrf(KindFeatureNotFound, feature, "not in the feature matrix")
	}

	sorted := make([]float64, len(col))
	copy(sorted, col)
	sort.Float64s(sorted)
	if sorted[0] == sorted[len(sorted)-1] {
		return nil, featureErrf(KindInsufficientVariation, feature,
			"all %d values are identical", len(col))
	}

	edges := make([]float64, 0, bins+1)
	for i := 0; i <= bins; i++ {
		q := stat.Quantile(float64(i)/float64(bins), stat.Empirical, sorted, nil)
		if len(edges) == 0 || q > edges[len(edges)-1] {
			edges = append(edges, q)
		}
	}

	var warnings []string
	effective := len(edges) - 1
	if effective < bins {
		warnings = append(warnings,
			fmt.Sprintf("tied quantiles collapsed %d requested bins to %d", bins, effective))
	}

	// Clamp every instance to its own bin's edges; uppers[b] = edges[b+1].
	uppers := edges[1:]
	binOf := make([]int, len(col))
	loVals := make([]float64, len(col))
	hiVals := make([]float64, len(col))
	counts := make([]int, effective)
	for i, v := range col {
		b := sort.SearchFloat64s(uppers, v)
		if b == len(uppers) {
			b = len(uppers) - 1
		}
		binOf[i] = b
		loVals[i] = edges[b]
		hiVals[i] = edges[b+1]
		counts[b]++
	}

	loM, err := ex.matrix.WithColumn(feature, loVals)
	if err != nil {
		return nil, err
	}
	hiM, err := ex.matrix.WithColumn(feature, hiVals)
	if err != nil {
		return nil, err
	}

	loP, err := ex.predictChecked(ctx, loM)
	if err != nil {
		return nil, interruptedOr(ctx, err)
	}
	hiP, err := ex.predictChecked(ctx, hiM)
	if err != nil {
		return nil, interruptedOr(ctx, err)
	}

	sums := make([]float64, effective)
	for i := range col {
		sums[binOf[i]] += hiP[i] - loP[i]
	}

	cum := make([]float64, effective)
	running := 0.0
	for b := 0; b < effective; b++ {
		if counts[b] > 0 {
			running += sums[b] / float64(counts[b])
		} else {
			warnings = append(warnings,
				fmt.Sprintf("bin %d [%v, %v] holds no instances; it contributes no effect", b, edges[b], edges[b+1]))
		}
		cum[b] = running
	}

	var center float64
	for b := 0; b < effective; b++ {
		center += cum[b] * float64(counts[b])
	}
	center /= float64(len(col))

	result := &ALEResult{
		Label:    ex.label,
		Feature:  feature,
		Bins:     make([]ALEBin, effective),
		Warnings: warnings,
	}
	for b := 0; b < effective; b++ {
		result.Bins[b] = ALEBin{
			Lo:     edges[b],
			Hi:     edges[b+1],
			Effect: cum[b] - center,
			Count:  counts[b],
		}
	}

	return result, nil
}

// interruptedOr converts a cancellation seen during prediction into an
// Interrupted engine error; other failures pass through untouched.
func interruptedOr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return wrapf(KindInterrupted, err, "cancelled during prediction")
	}
	return err
}
