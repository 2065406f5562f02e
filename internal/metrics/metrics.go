package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vibebrowser/vibe-core/internal/worker"
)

// Metrics holds the Prometheus collectors for the worker and the Chrome
// extraction service.
type Metrics struct {
	registry *prometheus.Registry

	// Worker metrics
	WorkerConnected prometheus.Gauge
	WorkerRestarts  prometheus.Counter
	WorkerEvents    *prometheus.CounterVec

	// Extraction metrics
	Extractions        *prometheus.CounterVec
	ExtractedRecords   *prometheus.CounterVec
	ExtractionDuration *prometheus.HistogramVec

	TempCopiesSwept prometheus.Counter
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Metrics{
		registry: reg,

		WorkerConnected: factory.NewGauge(prometheus.GaugeOpts{
			Name: "vibe_worker_connected",
			Help: "1 while the MCP utility process is connected",
		}),

		WorkerRestarts: factory.NewCounter(prometheus.CounterOpts{
			Name: "vibe_worker_restarts_total",
			Help: "Total number of utility process restarts after a crash",
		}),

		WorkerEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vibe_worker_events_total",
			Help: "Worker events by kind",
		}, []string{"kind"}),

		Extractions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vibe_chrome_extractions_total",
			Help: "Chrome extraction calls by kind and outcome",
		}, []string{"kind", "outcome"}), // outcome: "success" or "failure"

		ExtractedRecords: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vibe_chrome_extracted_records_total",
			Help: "Records returned by successful Chrome extractions",
		}, []string{"kind"}),

		ExtractionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vibe_chrome_extraction_duration_seconds",
			Help:    "Chrome extraction latency in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"kind"}),

		TempCopiesSwept: factory.NewCounter(prometheus.CounterOpts{
			Name: "vibe_chrome_temp_copies_swept_total",
			Help: "Orphaned database copies removed by the sweeper",
		}),
	}

	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ExtractionFinished implements chrome.Recorder.
func (m *Metrics) ExtractionFinished(kind string, success bool, records int, elapsed time.Duration) {
	outcome := "failure"
	if success {
		outcome = "success"
		m.ExtractedRecords.WithLabelValues(kind).Add(float64(records))
	}
	m.Extractions.WithLabelValues(kind, outcome).Inc()
	m.ExtractionDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// ObserveWorker records a worker or service event. Subscribe it to the
// MCP service.
func (m *Metrics) ObserveWorker(ev worker.Event) {
	m.WorkerEvents.WithLabelValues(string(ev.Kind)).Inc()

	switch ev.Kind {
	case worker.EventConnected:
		m.WorkerConnected.Set(1)
		if ev.RestartCount > 0 {
			m.WorkerRestarts.Inc()
		}
	case worker.EventDisconnected, worker.EventError, worker.EventTerminated:
		m.WorkerConnected.Set(0)
	}
}

// RecordSweep records swept temp copies.
func (m *Metrics) RecordSweep(removed int) {
	m.TempCopiesSwept.Add(float64(removed))
}
