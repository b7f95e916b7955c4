// Package metrics exposes Prometheus collectors for API calls, session
// transitions and toasts.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "vsrecorder"

// Metrics owns a private registry so tests can build independent instances.
type Metrics struct {
	registry *prometheus.Registry

	apiRequests  *prometheus.CounterVec
	apiLatency   *prometheus.HistogramVec
	authOutcomes *prometheus.CounterVec
	toastsShown  *prometheus.CounterVec
	wsClients    prometheus.GaugeFunc
}

// New registers every collector on a fresh registry. clients, when non-nil,
// reports the number of connected pages.
func New(clients func() int) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	m := &Metrics{
		registry: reg,
		apiRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "REST API calls by operation and status class.",
		}, []string{"op", "status"}),
		apiLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_request_duration_seconds",
			Help:      "REST API call latency by operation.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		authOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_transitions_total",
			Help:      "Session operations by outcome.",
		}, []string{"op", "outcome"}),
		toastsShown: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "toasts_shown_total",
			Help:      "Toasts shown by kind.",
		}, []string{"kind"}),
	}
	if clients != nil {
		m.wsClients = f.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_clients",
			Help:      "Open pages connected over websocket.",
		}, func() float64 { return float64(clients()) })
	}
	return m
}

// ObserveRequest records one API call. Status 0 means the request never got
// a response.
func (m *Metrics) ObserveRequest(op string, status int, elapsed time.Duration) {
	m.apiRequests.WithLabelValues(op, StatusClass(status)).Inc()
	m.apiLatency.WithLabelValues(op).Observe(elapsed.Seconds())
}

// ObserveAuth records one session operation outcome.
func (m *Metrics) ObserveAuth(op, outcome string) {
	m.authOutcomes.WithLabelValues(op, outcome).Inc()
}

// ObserveToast counts a shown toast.
func (m *Metrics) ObserveToast(kind string) {
	m.toastsShown.WithLabelValues(kind).Inc()
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// StatusClass buckets an HTTP status as "2xx", "4xx" and so on, or "error"
// for transport failures.
func StatusClass(status int) string {
	if status <= 0 {
		return "error"
	}
	return strconv.Itoa(status/100) + "xx"
}
