package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"whisx/internal/queue"
)

const namespace = "whisx"

// Metrics holds the run's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	generation prometheus.Gauge
	filesTotal prometheus.Gauge
	filesDone  prometheus.Gauge
	workers    prometheus.Gauge

	completed    *prometheus.CounterVec
	retries      *prometheus.CounterVec
	restarts     *prometheus.CounterVec
	heartbeatAge *prometheus.GaugeVec

	taskDuration prometheus.Histogram
}

// New creates the collectors on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		generation: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "generation",
			Help:      "Current pool generation (1 plus the number of stall restarts)",
		}),
		filesTotal: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "generation_files",
			Help:      "Files scheduled in the current generation",
		}),
		filesDone: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "generation_files_done",
			Help:      "Files that reached a terminal outcome in the current generation",
		}),
		workers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workers",
			Help:      "GPU workers started for the current generation",
		}),
		completed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_completed_total",
			Help:      "Files completed, by outcome",
		}, []string{"status"}),
		retries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_retries_total",
			Help:      "Failed attempts that were re-queued, by GPU",
		}, []string{"gpu"}),
		restarts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pool_restarts_total",
			Help:      "Full pool restarts, by the GPU whose heartbeat went stale",
		}, []string{"gpu"}),
		heartbeatAge: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "worker_heartbeat_age_seconds",
			Help:      "Seconds since each active worker last reported progress",
		}, []string{"gpu"}),
		taskDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Transcription time of successful files",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 3600},
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// GenerationStarted resets the per-generation gauges.
func (m *Metrics) GenerationStarted(generation, files, workers int) {
	m.generation.Set(float64(generation))
	m.filesTotal.Set(float64(files))
	m.filesDone.Set(0)
	m.workers.Set(float64(workers))
	m.heartbeatAge.Reset()
}

// TaskCompleted counts one terminal event.
func (m *Metrics) TaskCompleted(event queue.Completion) {
	m.filesDone.Inc()
	m.completed.WithLabelValues(statusLabel(event)).Inc()
	if event.Succeeded() && !event.Skipped {
		m.taskDuration.Observe(event.ProcessingTime.Seconds())
	}
}

// TaskRetried counts a re-queued failure on gpu.
func (m *Metrics) TaskRetried(gpu int) {
	m.retries.WithLabelValues(strconv.Itoa(gpu)).Inc()
}

// HeartbeatObserved records the idle time of gpu. Retired workers are
// dropped from the gauge.
func (m *Metrics) HeartbeatObserved(gpu int, idle time.Duration, retired bool) {
	label := strconv.Itoa(gpu)
	if retired {
		m.heartbeatAge.DeleteLabelValues(label)
		return
	}
	m.heartbeatAge.WithLabelValues(label).Set(idle.Seconds())
}

// PoolRestarted counts a stall restart blamed on gpu.
func (m *Metrics) PoolRestarted(gpu int) {
	m.restarts.WithLabelValues(strconv.Itoa(gpu)).Inc()
}

func statusLabel(event queue.Completion) string {
	switch {
	case event.Skipped:
		return "skipped"
	case event.Succeeded():
		return "success"
	default:
		return "failed"
	}
}
