package model

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"glassbox/internal/dataset"
)

type recordingMetrics struct {
	calls    atomic.Int64
	failures atomic.Int64
	observed atomic.Int64
}

func (m *recordingMetrics) ModelCallsInc()             { m.calls.Add(1) }
func (m *recordingMetrics) ModelFailuresInc()          { m.failures.Add(1) }
func (m *recordingMetrics) ModelLatencyObserve(float64) { m.observed.Add(1) }

func remoteMatrix(t *testing.T) *dataset.Matrix {
	t.Helper()
	m, err := dataset.NewMatrix([]string{"a", "b"}, [][]float64{{1, 2}, {3, 4}})
	require.NoError(t, err)
	return m
}

func TestRemotePredict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/predict", r.URL.Path)

		var req predictRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"a", "b"}, req.Features)
		require.Len(t, req.Rows, 2)

		out := predictResponse{Probabilities: []float64{0.2, 0.8}}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(out)
	}))
	defer srv.Close()

	metrics := &recordingMetrics{}
	r := NewRemote(RemoteConfig{BaseURL: srv.URL, Timeout: 5 * time.Second}, metrics)

	probs, err := r.Predict(context.Background(), remoteMatrix(t))
	require.NoError(t, err)
	assert.Equal(t, []float64{0.2, 0.8}, probs)
	assert.Equal(t, int64(1), metrics.calls.Load())
	assert.Equal(t, int64(0), metrics.failures.Load())
	assert.Equal(t, int64(1), metrics.observed.Load())
}

func TestRemotePredictContractViolations(t *testing.T) {
	tests := []struct {
		name string
		body predictResponse
	}{
		{"wrong length", predictResponse{Probabilities: []float64{0.5}}},
		{"out of range", predictResponse{Probabilities: []float64{0.5, 1.5}}},
		{"service error", predictResponse{Error: "model not loaded"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(tc.body)
			}))
			defer srv.Close()

			metrics := &recordingMetrics{}
			r := NewRemote(RemoteConfig{BaseURL: srv.URL}, metrics)

			_, err := r.Predict(context.Background(), remoteMatrix(t))
			assert.Error(t, err)
			assert.Equal(t, int64(1), metrics.failures.Load())
		})
	}
}

func TestRemotePredictHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	r := NewRemote(RemoteConfig{BaseURL: srv.URL}, nil)

	_, err := r.Predict(context.Background(), remoteMatrix(t))
	assert.Error(t, err)
}

func TestRemoteHealth(t *testing.T) {
	healthy := atomic.Bool{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/healthz", r.URL.Path)
		if healthy.Load() {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	r := NewRemote(RemoteConfig{BaseURL: srv.URL}, nil)

	assert.Error(t, r.Health(context.Background()))
	healthy.Store(true)
	assert.NoError(t, r.Health(context.Background()))
}

func TestRemoteRetries(t *testing.T) {
	var attempts atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(predictResponse{Probabilities: []float64{0.1, 0.9}})
	}))
	defer srv.Close()

	r := NewRemote(RemoteConfig{BaseURL: srv.URL, Retries: 3}, nil)

	probs, err := r.Predict(context.Background(), remoteMatrix(t))
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.9}, probs)
	assert.Equal(t, int64(3), attempts.Load())
}
