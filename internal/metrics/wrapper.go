package metrics

import "github.com/prometheus/client_golang/prometheus"

// Narrow interfaces so consuming packages declare only the surface they
// need instead of importing prometheus directly.
type Counter interface {
	Inc()
}

type Gauge interface {
	Set(float64)
	Add(float64)
}

type Observer interface {
	Observe(float64)
}

// ModelMetrics satisfies the consumer-side interface of the remote model
// client (model.MetricsInterface) without the model package importing
// this one.
type ModelMetrics struct {
	m *Metrics
}

func NewModelMetrics(m *Metrics) *ModelMetrics {
	return &ModelMetrics{m: m}
}

func (w *ModelMetrics) ModelCallsInc()               { w.m.ModelCalls.Inc() }
func (w *ModelMetrics) ModelFailuresInc()            { w.m.ModelFailures.Inc() }
func (w *ModelMetrics) ModelLatencyObserve(v float64) { w.m.ModelLatency.Observe(v) }

// CounterWrapper adapts a prometheus.Counter to the Counter interface.
type CounterWrapper struct {
	c prometheus.Counter
}

func NewCounterWrapper(c prometheus.Counter) *CounterWrapper { return &CounterWrapper{c: c} }

func (cw *CounterWrapper) Inc() { cw.c.Inc() }

// GaugeWrapper adapts a prometheus.Gauge to the Gauge interface.
type GaugeWrapper struct {
	g prometheus.Gauge
}

func NewGaugeWrapper(g prometheus.Gauge) *GaugeWrapper { return &GaugeWrapper{g: g} }

func (gw *GaugeWrapper) Set(v float64) { gw.g.Set(v) }
func (gw *GaugeWrapper) Add(v float64) { gw.g.Add(v) }

// ObserverWrapper adapts a prometheus.Histogram to the Observer interface.
type ObserverWrapper struct {
	h prometheus.Histogram
}

func NewObserverWrapper(h prometheus.Histogram) *ObserverWrapper { return &ObserverWrapper{h: h} }

func (ow *ObserverWrapper) Observe(v float64) { ow.h.Observe(v) }
