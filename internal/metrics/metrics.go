// Package metrics exposes engine counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the engine's collectors, registered on a private registry
// so several engines can live in one process.
type Metrics struct {
	registry *prometheus.Registry

	SessionsActive  prometheus.Gauge
	SessionsCreated prometheus.Counter
	SessionsRemoved *prometheus.CounterVec
	OutputBytes     prometheus.Counter
	InputBytes      prometheus.Counter
	SudoCommands    *prometheus.CounterVec
	SudoDuration    prometheus.Histogram
}

// New registers the engine metrics on a fresh registry. Process and Go
// runtime collectors are included when withRuntime is set.
func New(withRuntime bool) *Metrics {
	reg := prometheus.NewRegistry()
	if withRuntime {
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		SessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "ptyd_sessions_active",
			Help: "Number of live pty sessions",
		}),
		SessionsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "ptyd_sessions_created_total",
			Help: "Total number of sessions created",
		}),
		SessionsRemoved: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ptyd_sessions_removed_total",
			Help: "Total number of sessions removed, by reason",
		}, []string{"reason"}),
		OutputBytes: f.NewCounter(prometheus.CounterOpts{
			Name: "ptyd_output_bytes_total",
			Help: "Bytes of decoded output read from all sessions",
		}),
		InputBytes: f.NewCounter(prometheus.CounterOpts{
			Name: "ptyd_input_bytes_total",
			Help: "Bytes written to all sessions",
		}),
		SudoCommands: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ptyd_sudo_commands_total",
			Help: "Privileged commands executed, by result",
		}, []string{"result"}),
		SudoDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "ptyd_sudo_duration_seconds",
			Help:    "Wall time of privileged commands",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}),
	}
}

// SessionCreated counts a new live session.
func (m *Metrics) SessionCreated() {
	m.SessionsCreated.Inc()
	m.SessionsActive.Inc()
}

// SessionRemoved counts a removal for reason.
func (m *Metrics) SessionRemoved(reason string) {
	m.SessionsRemoved.WithLabelValues(reason).Inc()
	m.SessionsActive.Dec()
}

// Output adds n bytes of session output.
func (m *Metrics) Output(n int) {
	m.OutputBytes.Add(float64(n))
}

// Input adds n bytes of session input.
func (m *Metrics) Input(n int) {
	m.InputBytes.Add(float64(n))
}

// Sudo records one privileged command.
func (m *Metrics) Sudo(result string, d time.Duration) {
	m.SudoCommands.WithLabelValues(result).Inc()
	m.SudoDuration.Observe(d.Seconds())
}

// Registry returns the registry the metrics live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
