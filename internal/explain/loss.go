package explain

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

// LossFunc scores probability predictions against binary targets; lower
// is better. Implementations must be pure: permutation importance calls
// them from parallel workers.
type LossFunc func(target, prob []float64) float64

// Named losses accepted by configuration.
const (
	LossOneMinusAUC = "one_minus_auc"
	LossLog         = "log_loss"
	LossBrier       = "brier"
)

// LossByName resolves a configured loss name.
func LossByName(name string) (LossFunc, error) {
	switch name {
	case LossOneMinusAUC, "":
		return OneMinusAUC, nil
	case LossLog:
		return LogLoss, nil
	case LossBrier:
		return BrierScore, nil
	default:
		return nil, fmt.Errorf("explain: unknown loss %q", name)
	}
}

// AUC computes the area under the ROC curve. Inputs are copied, never
// reordered in place. A single-class target yields NaN; Explainer
// construction rejects that case up front.
func AUC(target, prob []float64) float64 {
	p := make([]float64, len(prob))
	copy(p, prob)
	classes := make([]bool, len(target))
	for i, t := range target {
		classes[i] = t == 1
	}

	stat.SortWeightedLabeled(p, classes, nil)
	tpr, fpr, _ := stat.ROC(nil, p, classes, nil)
	return integrate.Trapezoidal(fpr, tpr)
}

// OneMinusAUC is the default loss: 1 - area under the ROC curve.
func OneMinusAUC(target, prob []float64) float64 {
	return 1 - AUC(target, prob)
}

// LogLoss is the mean negative log likelihood with probabilities clipped
// away from 0 and 1.
func LogLoss(target, prob []float64) float64 {
	const eps = 1e-15
	var sum float64
	for i, p := range prob {
		p = math.Min(math.Max(p, eps), 1-eps)
		if target[i] == 1 {
			sum -= math.Log(p)
		} else {
			sum -= math.Log(1 - p)
		}
	}
	return sum / float64(len(prob))
}

// BrierScore is the mean squared difference between probability and label.
func BrierScore(target, prob []float64) float64 {
	var sum float64
	for i, p := range prob {
		d := p - target[i]
		sum += d * d
	}
	return sum / float64(len(prob))
}
