// Package metrics exposes prometheus counters for the secret lifecycle and
// HTTP layer. All methods are safe to call on a nil *Metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "securelink"

type Metrics struct {
	registry *prometheus.Registry

	created          prometheus.Counter
	viewed           prometheus.Counter
	burned           prometheus.Counter
	exhausted        prometheus.Counter
	passwordFailures prometheus.Counter
	purged           prometheus.Counter
	requestDuration  *prometheus.HistogramVec
}

func New() *Metrics {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		})
	}

	m := &Metrics{
		registry:         prometheus.NewRegistry(),
		created:          counter("secrets_created_total", "Secrets created."),
		viewed:           counter("secrets_viewed_total", "Secrets consumed by a successful view."),
		burned:           counter("secrets_burned_total", "Secrets destroyed with the admin token."),
		exhausted:        counter("secrets_exhausted_total", "Secrets destroyed after too many failed password attempts."),
		passwordFailures: counter("password_failures_total", "Failed password attempts."),
		purged:           counter("secrets_purged_total", "Secrets removed by the expiry janitor."),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	m.registry.MustRegister(
		m.created, m.viewed, m.burned, m.exhausted, m.passwordFailures, m.purged,
		m.requestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

func (m *Metrics) SecretCreated() {
	if m != nil {
		m.created.Inc()
	}
}

func (m *Metrics) SecretViewed() {
	if m != nil {
		m.viewed.Inc()
	}
}

func (m *Metrics) SecretBurned() {
	if m != nil {
		m.burned.Inc()
	}
}

func (m *Metrics) SecretExhausted() {
	if m != nil {
		m.exhausted.Inc()
	}
}

func (m *Metrics) PasswordFailed() {
	if m != nil {
		m.passwordFailures.Inc()
	}
}

func (m *Metrics) SecretsPurged(n int) {
	if m != nil && n > 0 {
		m.purged.Add(float64(n))
	}
}

func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	if m != nil {
		m.requestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
	}
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry is exposed for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
