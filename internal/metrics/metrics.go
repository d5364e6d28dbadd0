// Package metrics holds the Prometheus collectors for vote admission.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Admissions           *prometheus.CounterVec
	Verifications        *prometheus.CounterVec
	RewardsGranted       *prometheus.CounterVec
	VerificationDuration prometheus.Histogram
	RequestDuration      *prometheus.HistogramVec
	RequestsInFlight     prometheus.Gauge

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them on reg.
// A nil reg uses a fresh private registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{
		Admissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voterewards_admissions_total",
				Help: "Vote attempts by final outcome.",
			},
			[]string{"outcome"},
		),
		Verifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voterewards_verifications_total",
				Help: "Vote verifications by outcome.",
			},
			[]string{"outcome"},
		),
		RewardsGranted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voterewards_rewards_granted_total",
				Help: "Rewards granted to voters, by reward name.",
			},
			[]string{"reward"},
		),
		VerificationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "voterewards_verification_duration_seconds",
				Help:    "Duration of vote verifications, including remote calls.",
				Buckets: prometheus.DefBuckets,
			},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "voterewards_api_request_duration_seconds",
				Help:    "HTTP request duration in seconds, by route and method.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "method", "status"},
		),
		RequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "voterewards_requests_in_flight",
				Help: "Number of HTTP requests currently being served.",
			},
		),
		gatherer: reg,
	}

	reg.MustRegister(
		m.Admissions,
		m.Verifications,
		m.RewardsGranted,
		m.VerificationDuration,
		m.RequestDuration,
		m.RequestsInFlight,
	)
	return m
}

// ObserveAdmission counts a finished vote attempt
func (m *Metrics) ObserveAdmission(outcome string) {
	if m == nil {
		return
	}
	m.Admissions.WithLabelValues(outcome).Inc()
}

// ObserveVerification counts a verification and records its duration
func (m *Metrics) ObserveVerification(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Verifications.WithLabelValues(outcome).Inc()
	m.VerificationDuration.Observe(d.Seconds())
}

// ObserveReward counts a granted reward
func (m *Metrics) ObserveReward(name string) {
	if m == nil {
		return
	}
	m.RewardsGranted.WithLabelValues(name).Inc()
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Middleware records request duration and in-flight count.
// The route label is the chi route pattern so path parameters do not explode cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		m.RequestsInFlight.Inc()
		defer m.RequestsInFlight.Dec()

		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		m.RequestDuration.WithLabelValues(route, r.Method, strconv.Itoa(status)).
			Observe(time.Since(start).Seconds())
	})
}
