package model

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"

	"glassbox/internal/dataset"
)

// MetricsInterface defines the metrics methods the remote predictor
// reports through. Callers may pass nil to disable accounting.
type MetricsInterface interface {
	ModelCallsInc()
	ModelFailuresInc()
	ModelLatencyObserve(float64)
}

// RemoteConfig tunes the HTTP scoring client.
type RemoteConfig struct {
	BaseURL string
	Timeout time.Duration
	Retries int
}

// Remote scores matrices against an external prediction service:
// POST /v1/predict with {features, rows}, expecting {probabilities} with
// one value per row. The response contract is validated before anything
// is returned to the engine.
type Remote struct {
	base    string
	rest    *resty.Client
	metrics MetricsInterface
}

type predictRequest struct {
	Features []string    `json:"features"`
	Rows     [][]float64 `json:"rows"`
}

type predictResponse struct {
	Probabilities []float64 `json:"probabilities"`
	Error         string    `json:"error,omitempty"`
}

// NewRemote builds the scoring client.
func NewRemote(cfg RemoteConfig, metrics MetricsInterface) *Remote {
	r := resty.New()
	if cfg.Timeout > 0 {
		r.SetTimeout(cfg.Timeout)
	} else {
		r.SetTimeout(10 * time.Second)
	}
	if cfg.Retries > 0 {
		r.SetRetryCount(cfg.Retries)
		r.SetRetryWaitTime(200 * time.Millisecond)
		r.AddRetryCondition(func(resp *resty.Response, err error) bool {
			return err != nil || resp.StatusCode() >= http.StatusInternalServerError
		})
	}
	return &Remote{base: cfg.BaseURL, rest: r, metrics: metrics}
}

// Health probes GET /healthz; a non-2xx status is an error.
func (r *Remote) Health(ctx context.Context) error {
	resp, err := r.rest.R().SetContext(ctx).Get(r.base + "/healthz")
	if err != nil {
		return fmt.Errorf("model: health probe failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("model: scoring service unhealthy: %s", resp.Status())
	}
	return nil
}

// Predict implements explain.Predictor against the remote service.
func (r *Remote) Predict(ctx context.Context, m *dataset.Matrix) ([]float64, error) {
	start := time.Now()
	if r.metrics != nil {
		r.metrics.ModelCallsInc()
	}

	req := predictRequest{Features: m.Names(), Rows: m.RowMajor()}
	result := &predictResponse{}
	resp, err := r.rest.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(result).
		Post(r.base + "/v1/predict")

	if r.metrics != nil {
		r.metrics.ModelLatencyObserve(time.Since(start).Seconds())
	}

	if err != nil {
		r.fail()
		return nil, fmt.Errorf("model: prediction request failed: %w", err)
	}
	if resp.IsError() {
		r.fail()
		return nil, fmt.Errorf("model: scoring service returned %s", resp.Status())
	}
	if result.Error != "" {
		r.fail()
		return nil, fmt.Errorf("model: scoring service error: %s", result.Error)
	}
	if len(result.Probabilities) != m.Rows() {
		r.fail()
		return nil, fmt.Errorf("model: service returned %d probabilities for %d rows",
			len(result.Probabilities), m.Rows())
	}
	for i, p := range result.Probabilities {
		if math.IsNaN(p) || p < 0 || p > 1 {
			r.fail()
			return nil, fmt.Errorf("model: probability[%d] = %v is outside [0, 1]", i, p)
		}
	}

	return result.Probabilities, nil
}

func (r *Remote) fail() {
	if r.metrics != nil {
		r.metrics.ModelFailuresInc()
	}
	log.Warn().Str("base_url", r.base).Msg("remote prediction failed")
}
