package dcaauth

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the optional Prometheus collectors the SDK updates. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	Requests    *prometheus.CounterVec
	Duration    *prometheus.HistogramVec
	Retries     *prometheus.CounterVec
	Refreshes   *prometheus.CounterVec
	RateLimited *prometheus.CounterVec
}

// NewMetrics builds the collectors and registers them with reg when it is
// non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dca_auth",
			Subsystem: "client",
			Name:      "requests_total",
			Help:      "HTTP dispatches by method, resource family and status code.",
		}, []string{"method", "family", "status"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dca_auth",
			Subsystem: "client",
			Name:      "request_duration_seconds",
			Help:      "Latency of single HTTP dispatches.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "family"}),
		Retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dca_auth",
			Subsystem: "client",
			Name:      "retries_total",
			Help:      "Retries by reason.",
		}, []string{"reason"}),
		Refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dca_auth",
			Subsystem: "client",
			Name:      "token_refreshes_total",
			Help:      "Token refresh attempts by result.",
		}, []string{"result"}),
		RateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dca_auth",
			Subsystem: "client",
			Name:      "rate_limited_total",
			Help:      "429 responses by resource family.",
		}, []string{"family"}),
	}
	if reg != nil {
		reg.MustRegister(m.Requests, m.Duration, m.Retries, m.Refreshes, m.RateLimited)
	}
	return m
}

func (m *Metrics) observeRequest(method, family string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	code := "error"
	if status > 0 {
		code = strconv.Itoa(status)
	}
	m.Requests.WithLabelValues(method, family, code).Inc()
	m.Duration.WithLabelValues(method, family).Observe(elapsed.Seconds())
}

func (m *Metrics) retry(reason string) {
	if m == nil {
		return
	}
	m.Retries.WithLabelValues(reason).Inc()
}

func (m *Metrics) refresh(ok bool) {
	if m == nil {
		return
	}
	result := "failure"
	if ok {
		result = "success"
	}
	m.Refreshes.WithLabelValues(result).Inc()
}

func (m *Metrics) rateLimited(family string) {
	if m == nil {
		return
	}
	m.RateLimited.WithLabelValues(family).Inc()
}
