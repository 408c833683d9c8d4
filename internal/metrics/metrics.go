// Package metrics records Prometheus metrics for authentication and HTTP traffic.
//
// Callers depend on the Recorder interface. New(false) returns NoopMetrics,
// so services can record unconditionally.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	resultSuccess = "success"
	resultFailure = "failure"
)

// Recorder is implemented by Metrics and NoopMetrics.
type Recorder interface {
	// RecordAuthAttempt counts one login or registration. method is
	// "password", "register", "google", "facebook" or "profile_setup".
	RecordAuthAttempt(method string, success bool, duration time.Duration)
	RecordTokenIssued(method string)
	RecordHTTPRequest(method, route string, status int, duration time.Duration)
}

var _ Recorder = (*Metrics)(nil)

// Metrics holds Prometheus collectors registered on a private registry.
//
// A private registry (instead of prometheus.DefaultRegisterer) lets tests
// and multiple servers in one process each call New without panicking on
// duplicate registration.
type Metrics struct {
	registry *prometheus.Registry

	AuthAttemptsTotal    *prometheus.CounterVec
	AuthDuration         *prometheus.HistogramVec
	TokensIssuedTotal    *prometheus.CounterVec

	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
}

// New returns Prometheus-backed metrics when enabled, NoopMetrics otherwise.
func New(enabled bool) Recorder {
	if !enabled {
		return NewNoopMetrics()
	}
	return NewPrometheus()
}

// NewPrometheus creates and registers all collectors, plus the Go runtime
// and process collectors.
func NewPrometheus() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		AuthAttemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "petadopt_auth_attempts_total",
				Help: "Total number of authentication attempts",
			},
			[]string{"method", "result"},
		),
		AuthDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "petadopt_auth_duration_seconds",
				Help:    "Time spent resolving an identity, bcrypt included",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		TokensIssuedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "petadopt_tokens_issued_total",
				Help: "Total number of session tokens issued",
			},
			[]string{"method"},
		),

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "petadopt_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "petadopt_http_request_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		HTTPRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "petadopt_http_requests_in_flight",
				Help: "Current number of HTTP requests being served",
			},
		),
	}
}

// Registry exposes the private registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) RecordAuthAttempt(method string, success bool, duration time.Duration) {
	m.AuthAttemptsTotal.WithLabelValues(method, result(success)).Inc()
	m.AuthDuration.WithLabelValues(method).Observe(duration.Seconds())
}

func (m *Metrics) RecordTokenIssued(method string) {
	m.TokensIssuedTotal.WithLabelValues(method).Inc()
}

func result(success bool) string {
	if success {
		return resultSuccess
	}
	return resultFailure
}
