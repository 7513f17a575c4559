package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service counters on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	Verifications *prometheus.CounterVec
	KeysIssued    *prometheus.CounterVec
	Resets        *prometheus.CounterVec
	HTTPRequests  *prometheus.CounterVec
	HTTPDuration  *prometheus.HistogramVec
	Keys          *prometheus.GaugeVec
	ScriptEvents  *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "keyhub",
			Name:      "verifications_total",
			Help:      "Key verifications by outcome.",
		}, []string{"outcome"}),
		KeysIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "keyhub",
			Name:      "keys_issued_total",
			Help:      "Keys issued by type and source.",
		}, []string{"type", "source"}),
		Resets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "keyhub",
			Name:      "hwid_resets_total",
			Help:      "HWID resets by path and outcome.",
		}, []string{"path", "outcome"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "keyhub",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method and status.",
		}, []string{"method", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "keyhub",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		Keys: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "keyhub",
			Name:      "keys",
			Help:      "Stored keys by state, refreshed by the maintenance worker.",
		}, []string{"state"}),
		ScriptEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "keyhub",
			Name:      "script_events_total",
			Help:      "Script downloads and executions by event.",
		}, []string{"event"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Verifications,
		m.KeysIssued,
		m.Resets,
		m.HTTPRequests,
		m.HTTPDuration,
		m.Keys,
		m.ScriptEvents,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
