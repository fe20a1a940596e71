// Package metrics exposes Prometheus counters for the delivery pipeline and
// the HTTP surface.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mozoqr/waiterpush/internal/domain"
)

const namespace = "waiterpush"

// Metrics holds every collector. Use New to register them.
type Metrics struct {
	registry *prometheus.Registry

	messages      *prometheus.CounterVec
	tokenRefresh  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	httpRequests  *prometheus.CounterVec
	archivedTotal prometheus.Counter
	wsClients     prometheus.Gauge
}

// New creates a Metrics with its own registry, including Go runtime and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		messages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Inbound push messages by outcome and channel.",
		}, []string{"outcome", "channel"}),
		tokenRefresh: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_refresh_total",
			Help:      "Registration token writes by result.",
		}, []string{"result"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"path", "method", "status"}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"path", "method", "status"}),
		archivedTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_archived_total",
			Help:      "Delivery records moved to object storage.",
		}),
		wsClients: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_clients",
			Help:      "Connected WebSocket clients.",
		}),
	}
}

// ObserveOutcome counts one processed message.
func (m *Metrics) ObserveOutcome(outcome domain.Outcome, channelID string) {
	if outcome == domain.OutcomeSuppressed {
		channelID = ""
	}
	m.messages.WithLabelValues(string(outcome), channelID).Inc()
}

// ObserveTokenRefresh counts one token write.
func (m *Metrics) ObserveTokenRefresh(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.tokenRefresh.WithLabelValues(result).Inc()
}

// ObserveHTTP records one HTTP request.
func (m *Metrics) ObserveHTTP(path, method, status string, d time.Duration) {
	m.httpDuration.WithLabelValues(path, method, status).Observe(d.Seconds())
	m.httpRequests.WithLabelValues(path, method, status).Inc()
}

// AddArchived counts archived delivery records.
func (m *Metrics) AddArchived(n int64) {
	if n > 0 {
		m.archivedTotal.Add(float64(n))
	}
}

// SetWSClients sets the connected WebSocket client gauge.
func (m *Metrics) SetWSClients(n int) {
	m.wsClients.Set(float64(n))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
