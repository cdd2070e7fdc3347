package explain

import (
	"context"

	"glassbox/internal/dataset"
)

// Predictor is the sole contract through which the engine queries a
// black-box model: one positive-class probability per row, in row order,
// each within [0, 1]. Implementations must be safe for concurrent use;
// the engine issues batched calls from parallel workers.
type Predictor interface {
	Predict(ctx context.Context, m *dataset.Matrix) ([]float64, error)
}

// PredictorFunc adapts a plain function to the Predictor interface.
type PredictorFunc func(ctx context.Context, m *dataset.Matrix) ([]float64, error)

func (f PredictorFunc) Predict(ctx context.Context, m *dataset.Matrix) ([]float64, error) {
	return f(ctx, m)
}
