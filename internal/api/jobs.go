package api

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"glassbox/internal/explain"
	"glassbox/internal/metrics"
)

// Job kinds accepted by the async API.
const (
	JobImportance = "importance"
	JobALE        = "ale"
	JobLocal      = "local"
)

// Job statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// ErrBusy reports that the job limit is reached; callers should retry
// later.
var ErrBusy = errors.New("api: job limit reached")

// ErrJobNotFound reports an unknown job id.
var ErrJobNotFound = errors.New("api: job not found")

// JobRequest is the body of POST /v1/jobs. Kind selects which fields
// apply; zero-valued fields fall back to server defaults.
type JobRequest struct {
	Kind     string   `json:"kind"`
	Repeats  int      `json:"repeats,omitempty"`
	Features []string `json:"features,omitempty"`
	Feature  string   `json:"feature,omitempty"`
	Bins     int      `json:"bins,omitempty"`
	Row      int      `json:"row,omitempty"`
	Budget   int      `json:"budget,omitempty"`
	Samples  int      `json:"samples,omitempty"`
	Seed     *int64   `json:"seed,omitempty"`
}

// ProgressEvent is one progress update streamed to WebSocket subscribers.
type ProgressEvent struct {
	JobID  string `json:"job_id"`
	Phase  string `json:"phase"`
	Done   int    `json:"done"`
	Total  int    `json:"total"`
	Status string `json:"status"`
}

// Job tracks one asynchronous explanation computation.
type Job struct {
	ID       string      `json:"id"`
	Kind     string      `json:"kind"`
	Status   string      `json:"status"`
	Created  time.Time   `json:"created"`
	Finished *time.Time  `json:"finished,omitempty"`
	Done     int         `json:"done"`
	Total    int         `json:"total"`
	Result   interface{} `json:"result,omitempty"`
	Error    string      `json:"error,omitempty"`

	cancel context.CancelFunc
	subs   map[chan ProgressEvent]struct{}
	mu     sync.Mutex
}

// snapshot copies the externally visible state under the job lock.
func (j *Job) snapshot() Job {
	j.mu.Lock()
	defer j.mu.Unlock()
	return Job{
		ID:       j.ID,
		Kind:     j.Kind,
		Status:   j.Status,
		Created:  j.Created,
		Finished: j.Finished,
		Done:     j.Done,
		Total:    j.Total,
		Result:   j.Result,
		Error:    j.Error,
	}
}

// subscribe registers a progress channel; the returned func removes it.
func (j *Job) subscribe() (chan ProgressEvent, func()) {
	ch := make(chan ProgressEvent, 16)
	j.mu.Lock()
	j.subs[ch] = struct{}{}
	j.mu.Unlock()
	return ch, func() {
		j.mu.Lock()
		delete(j.subs, ch)
		j.mu.Unlock()
	}
}

// publish fans one event out to every subscriber without blocking; slow
// consumers drop updates rather than stalling workers.
func (j *Job) publish(ev ProgressEvent) {
	j.mu.Lock()
	defer j.mu.Unlock()
	for ch := range j.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// JobDefaults supplies the parameter fallbacks for sparse requests.
type JobDefaults struct {
	Repeats  int
	Workers  int
	Seed     int64
	Bins     int
	Budget   int
	Samples  int
	Baseline []float64
}

// Manager owns the async job registry: bounded concurrent jobs, each with
// its own cancellable context and progress fan-out.
type Manager struct {
	ex       *explain.Explainer
	defaults JobDefaults
	metrics  *metrics.Metrics
	limit    int

	mu     sync.RWMutex
	jobs   map[string]*Job
	active int
}

// NewManager creates a job manager bound to one Explainer.
func NewManager(ex *explain.Explainer, defaults JobDefaults, limit int, m *metrics.Metrics) *Manager {
	return &Manager{
		ex:       ex,
		defaults: defaults,
		metrics:  m,
		limit:    limit,
		jobs:     make(map[string]*Job),
	}
}

// Submit validates the request, registers a job, and starts it. Returns
// ErrBusy when the concurrent limit is reached.
func (m *Manager) Submit(req JobRequest) (*Job, error) {
	switch req.Kind {
	case JobImportance, JobALE, JobLocal:
	default:
		return nil, fmt.Errorf("api: unknown job kind %q", req.Kind)
	}

	m.mu.Lock()
	if m.active >= m.limit {
		m.mu.Unlock()
		return nil, ErrBusy
	}
	m.active++

	ctx, cancel := context.WithCancel(context.Background())
	job := &Job{
		ID:      uuid.New().String(),
		Kind:    req.Kind,
		Status:  StatusRunning,
		Created: time.Now().UTC(),
		cancel:  cancel,
		subs:    make(map[chan ProgressEvent]struct{}),
	}
	m.jobs[job.ID] = job
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.ActiveJobs.Add(1)
	}
	log.Info().Str("job_id", job.ID).Str("kind", job.Kind).Msg("job submitted")

	go m.run(ctx, job, req)
	return job, nil
}

// Get returns a snapshot of the job's state.
func (m *Manager) Get(id string) (Job, error) {
	m.mu.RLock()
	job, ok := m.jobs[id]
	m.mu.RUnlock()
	if !ok {
		return Job{}, ErrJobNotFound
	}
	return job.snapshot(), nil
}

// Cancel requests cooperative cancellation of a running job.
func (m *Manager) Cancel(id string) error {
	m.mu.RLock()
	job, ok := m.jobs[id]
	m.mu.RUnlock()
	if !ok {
		return ErrJobNotFound
	}
	job.cancel()
	log.Info().Str("job_id", id).Msg("job cancellation requested")
	return nil
}

// Subscribe attaches a progress listener to a job.
func (m *Manager) Subscribe(id string) (*Job, chan ProgressEvent, func(), error) {
	m.mu.RLock()
	job, ok := m.jobs[id]
	m.mu.RUnlock()
	if !ok {
		return nil, nil, nil, ErrJobNotFound
	}
	ch, unsub := job.subscribe()
	return job, ch, unsub, nil
}

func (m *Manager) run(ctx context.Context, job *Job, req JobRequest) {
	start := time.Now()
	var result interface{}
	var err error

	switch job.Kind {
	case JobImportance:
		result, err = m.runImportance(ctx, job, req)
	case JobALE:
		result, err = m.runALE(ctx, req)
	case JobLocal:
		result, err = m.runLocal(ctx, req)
	}

	now := time.Now().UTC()
	outcome := StatusCompleted

	job.mu.Lock()
	job.Finished = &now
	switch {
	case err == nil:
		job.Status = StatusCompleted
		job.Result = result
	case explain.IsKind(err, explain.KindInterrupted):
		job.Status = StatusCancelled
		// Partial results survive cancellation; callers decide whether
		// to keep them.
		job.Result = result
		job.Error = err.Error()
		outcome = StatusCancelled
	default:
		job.Status = StatusFailed
		job.Error = err.Error()
		outcome = StatusFailed
	}
	status := job.Status
	done, total := job.Done, job.Total
	job.mu.Unlock()

	job.publish(ProgressEvent{JobID: job.ID, Phase: "finished", Done: done, Total: total, Status: status})

	m.mu.Lock()
	m.active--
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.ActiveJobs.Add(-1)
		m.metrics.JobFinished(job.Kind, outcome)
		m.metrics.ComputeDuration.WithLabelValues(job.Kind).Observe(time.Since(start).Seconds())
	}
	log.Info().
		Str("job_id", job.ID).
		Str("status", status).
		Dur("elapsed", time.Since(start)).
		Msg("job finished")
}

func (m *Manager) runImportance(ctx context.Context, job *Job, req JobRequest) (interface{}, error) {
	repeats := req.Repeats
	if repeats == 0 {
		repeats = m.defaults.Repeats
	}
	seed := m.defaults.Seed
	if req.Seed != nil {
		seed = *req.Seed
	}

	scope := len(req.Features)
	if scope == 0 {
		scope = len(m.ex.Features())
	}
	job.mu.Lock()
	job.Total = scope * repeats
	job.mu.Unlock()

	result, err := explain.Importance(ctx, m.ex, explain.ImportanceOptions{
		Repeats:  repeats,
		Features: req.Features,
		Seed:     seed,
		Workers:  m.defaults.Workers,
		Progress: func(done, total int) {
			job.mu.Lock()
			job.Done = done
			job.Total = total
			job.mu.Unlock()
			job.publish(ProgressEvent{
				JobID: job.ID, Phase: "permuting", Done: done, Total: total, Status: StatusRunning,
			})
		},
	})
	if m.metrics != nil && result != nil {
		units := 0
		for _, f := range result.Features {
			units += len(f.DropoutLosses)
		}
		m.metrics.ObservePrediction(metrics.StageImportance, units*m.ex.Rows())
	}
	return result, err
}

func (m *Manager) runALE(ctx context.Context, req JobRequest) (interface{}, error) {
	bins := req.Bins
	if bins == 0 {
		bins = m.defaults.Bins
	}
	result, err := explain.ALE(ctx, m.ex, req.Feature, bins)
	if m.metrics != nil && err == nil {
		m.metrics.ObservePrediction(metrics.StageALE, 2*m.ex.Rows())
	}
	return result, err
}

func (m *Manager) runLocal(ctx context.Context, req JobRequest) (interface{}, error) {
	budget := req.Budget
	if budget == 0 {
		budget = m.defaults.Budget
	}
	samples := req.Samples
	if samples == 0 {
		samples = m.defaults.Samples
	}
	seed := m.defaults.Seed
	if req.Seed != nil {
		seed = *req.Seed
	}
	result, err := explain.Local(ctx, m.ex, req.Row, explain.LocalOptions{
		Budget:   budget,
		Samples:  samples,
		Seed:     seed,
		Baseline: m.defaults.Baseline,
	})
	if m.metrics != nil && err == nil {
		m.metrics.ObservePrediction(metrics.StageLocal, samples)
	}
	return result, err
}
