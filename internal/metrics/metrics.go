// Package metrics exposes the agent's Prometheus metrics
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector groups the agent metrics. A nil *Collector is valid and records
// nothing.
type Collector struct {
	reports         *prometheus.CounterVec
	reportDuration  prometheus.Histogram
	taskInvocations *prometheus.CounterVec
	watchdogRearms  prometheus.Counter
	trackingActive  prometheus.Gauge
	gatherer        prometheus.Gatherer
}

// NewCollector creates the metrics and registers them on reg
func NewCollector(reg *prometheus.Registry) *Collector {
	c := &Collector{
		reports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agent_reports_total",
			Help: "Position reports by origin task and outcome",
		}, []string{"source", "outcome"}),
		reportDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "agent_report_duration_seconds",
			Help:    "Time from dial to ack, error or timeout",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 4, 4.5, 5},
		}),
		taskInvocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agent_task_invocations_total",
			Help: "Background task invocations by task and result",
		}, []string{"task", "result"}),
		watchdogRearms: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agent_watchdog_rearms_total",
			Help: "Times the watchdog restarted location updates",
		}),
		trackingActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "agent_tracking_active",
			Help: "1 while location updates are running",
		}),
		gatherer: reg,
	}

	reg.MustRegister(
		c.reports,
		c.reportDuration,
		c.taskInvocations,
		c.watchdogRearms,
		c.trackingActive,
	)

	return c
}

// RecordReport counts a finished report attempt
func (c *Collector) RecordReport(source, outcome string, seconds float64) {
	if c == nil {
		return
	}
	c.reports.WithLabelValues(source, outcome).Inc()
	c.reportDuration.Observe(seconds)
}

// RecordInvocation counts a task invocation result
func (c *Collector) RecordInvocation(task, result string) {
	if c == nil {
		return
	}
	c.taskInvocations.WithLabelValues(task, result).Inc()
}

func (c *Collector) RecordRearm() {
	if c == nil {
		return
	}
	c.watchdogRearms.Inc()
}

func (c *Collector) SetTrackingActive(active bool) {
	if c == nil {
		return
	}
	if active {
		c.trackingActive.Set(1)
	} else {
		c.trackingActive.Set(0)
	}
}

// Handler serves the registry the collector was registered on
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}
