package auth

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Operation labels used by Metrics.
const (
	opLogin    = "login"
	opRefresh  = "refresh"
	opRevoke   = "revoke"
	opLogout   = "logout"
	opValidate = "validate_credentials"
)

// Metrics instruments the session against its own Prometheus registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry   *prometheus.Registry
	handler    http.Handler
	requests   *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	authorized prometheus.Gauge
	timerFires *prometheus.CounterVec
	replays    prometheus.Counter
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "keycloak_session_requests_total",
		Help: "Requests sent to the identity provider, by operation and outcome",
	}, []string{"operation", "outcome"})

	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "keycloak_session_request_duration_seconds",
		Help:    "Duration of requests sent to the identity provider",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	authorized := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "keycloak_session_authorized",
		Help: "1 while the last login or refresh succeeded",
	})

	timerFires := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "keycloak_session_timer_fires_total",
		Help: "Scheduled refresh timer fires, by timer kind",
	}, []string{"timer"})

	replays := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "keycloak_session_replays_total",
		Help: "Requests replayed after a reactive refresh",
	})

	registry.MustRegister(requests, duration, authorized, timerFires, replays)

	return &Metrics{
		registry:   registry,
		handler:    promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requests:   requests,
		duration:   duration,
		authorized: authorized,
		timerFires: timerFires,
		replays:    replays,
	}
}

// Handler exposes the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) observeRequest(operation string, started time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.requests.WithLabelValues(operation, outcome).Inc()
	m.duration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

func (m *Metrics) setAuthorized(value bool) {
	if m == nil {
		return
	}
	if value {
		m.authorized.Set(1)
		return
	}
	m.authorized.Set(0)
}

func (m *Metrics) timerFired(kind string) {
	if m == nil {
		return
	}
	m.timerFires.WithLabelValues(kind).Inc()
}

// ObserveReplay counts a request replayed after a reactive refresh.
func (m *Metrics) ObserveReplay() {
	if m == nil {
		return
	}
	m.replays.Inc()
}
