// Package metrics exposes harvest task and source outcomes to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"job-harvester/internal/domain/harvest"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "harvester"

type Collector struct {
	tasksStarted  prometheus.Counter
	tasksFinished *prometheus.CounterVec
	tasksRunning  prometheus.Gauge
	taskDuration  prometheus.Histogram

	sourcesFinished *prometheus.CounterVec
	sourceDuration  *prometheus.HistogramVec
	jobsStreamed    prometheus.Counter
	approvalWait    prometheus.Histogram

	gatherer prometheus.Gatherer
}

// NewCollector registers every metric on reg. A nil reg uses a private
// registry, which keeps tests and multiple instances independent.
func NewCollector(reg *prometheus.Registry) *Collector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	c := &Collector{
		tasksStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_started_total",
			Help:      "Tasks accepted by the orchestrator",
		}),
		tasksFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_finished_total",
			Help:      "Tasks that reached a terminal status",
		}, []string{"status"}),
		tasksRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tasks_running",
			Help:      "Tasks whose worker is still active",
		}),
		taskDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Wall time from task start to terminal status",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 14),
		}),
		sourcesFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sources_finished_total",
			Help:      "Per-source outcomes",
		}, []string{"status", "platform"}),
		sourceDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "extraction_duration_seconds",
			Help:      "Time spent inside a strategy for one source",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 12),
		}, []string{"strategy"}),
		jobsStreamed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_streamed_total",
			Help:      "Job records folded into results from streamed batches",
		}),
		approvalWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "approval_wait_seconds",
			Help:      "Time a worker spent blocked on the approval gate",
			Buckets:   prometheus.ExponentialBuckets(0.1, 3, 10),
		}),
		gatherer: reg,
	}

	reg.MustRegister(
		c.tasksStarted,
		c.tasksFinished,
		c.tasksRunning,
		c.taskDuration,
		c.sourcesFinished,
		c.sourceDuration,
		c.jobsStreamed,
		c.approvalWait,
	)
	return c
}

func (c *Collector) TaskStarted() {
	c.tasksStarted.Inc()
	c.tasksRunning.Inc()
}

func (c *Collector) TaskFinished(status harvest.TaskStatus, elapsed time.Duration) {
	c.tasksFinished.WithLabelValues(string(status)).Inc()
	c.tasksRunning.Dec()
	c.taskDuration.Observe(elapsed.Seconds())
}

func (c *Collector) SourceFinished(strategy, platform string, status harvest.ResultStatus, elapsed time.Duration) {
	c.sourcesFinished.WithLabelValues(string(status), platform).Inc()
	if status != harvest.ResultSkipped {
		c.sourceDuration.WithLabelValues(strategy).Observe(elapsed.Seconds())
	}
}

func (c *Collector) JobsStreamed(n int) {
	if n > 0 {
		c.jobsStreamed.Add(float64(n))
	}
}

func (c *Collector) ApprovalWaited(elapsed time.Duration) {
	c.approvalWait.Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}
