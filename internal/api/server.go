// Package api exposes the explanation engine over HTTP: baseline
// performance, asynchronous explanation jobs with cooperative
// cancellation, and WebSocket progress streaming for long runs.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"glassbox/internal/explain"
)

// Server serves the explanation API for one bound Explainer.
type Server struct {
	ex        *explain.Explainer
	manager   *Manager
	server    *http.Server
	isRunning bool
	mu        sync.RWMutex
}

// NewServer wires routes for the given explainer and job manager.
func NewServer(addr string, ex *explain.Explainer, manager *Manager) *Server {
	s := &Server{ex: ex, manager: manager}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	r.HandleFunc("/v1/performance", s.handlePerformance).Methods("GET")
	r.HandleFunc("/v1/model", s.handleModelInfo).Methods("GET")
	r.HandleFunc("/v1/jobs", s.handleSubmitJob).Methods("POST")
	r.HandleFunc("/v1/jobs/{id}", s.handleGetJob).Methods("GET")
	r.HandleFunc("/v1/jobs/{id}", s.handleCancelJob).Methods("DELETE")
	r.HandleFunc("/v1/jobs/{id}/ws", s.handleJobWS).Methods("GET")

	s.server = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

// Handler exposes the route tree, mainly for tests.
func (s *Server) Handler() http.Handler { return s.server.Handler }

// Start begins serving in a background goroutine.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("api: server is already running")
	}

	go func() {
		log.Info().Str("addr", s.server.Addr).Msg("starting API server")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("API server failed")
		}
	}()

	s.isRunning = true
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return nil
	}
	s.isRunning = false
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePerformance(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.ex.Performance())
}

func (s *Server) handleModelInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"label":         s.ex.Label(),
		"rows":          s.ex.Rows(),
		"features":      len(s.ex.Features()),
		"loss":          s.ex.LossName(),
		"baseline_loss": s.ex.BaselineLoss(),
		"warnings":      s.ex.Warnings(),
	})
}

func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	var req JobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}

	job, err := s.manager.Submit(req)
	if err != nil {
		if errors.Is(err, ErrBusy) {
			writeError(w, http.StatusTooManyRequests, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"id": job.ID})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.manager.Get(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.manager.Cancel(id); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"id": id, "status": "cancelling"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
