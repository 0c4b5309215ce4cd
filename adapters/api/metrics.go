package api

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the server's prometheus collectors on their own registry
type Metrics struct {
	Registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	executions      *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	refusals        *prometheus.CounterVec
	sessionGrades   *prometheus.CounterVec
}

// NewMetrics registers the collectors on a fresh registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		// Labels: method, route, status
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hypolab",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route pattern and status",
		}, []string{"method", "route", "status"}),

		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "hypolab",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"method", "route"}),

		// Labels: outcome (recorded, applied, rejected)
		executions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hypolab",
			Subsystem: "binding",
			Name:      "executions_total",
			Help:      "Test executions submitted, by outcome",
		}, []string{"outcome"}),

		// Labels: trigger, to_state
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hypolab",
			Subsystem: "lifecycle",
			Name:      "transitions_total",
			Help:      "Applied hypothesis transitions",
		}, []string{"trigger", "to_state"}),

		// Labels: code
		refusals: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hypolab",
			Subsystem: "lifecycle",
			Name:      "refusals_total",
			Help:      "Transitions refused by the lifecycle, by failure code",
		}, []string{"code"}),

		// Labels: grade
		sessionGrades: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hypolab",
			Subsystem: "scorecard",
			Name:      "session_grades_total",
			Help:      "Session scorecards computed, by grade",
		}, []string{"grade"}),
	}
}

func (m *Metrics) observeRequest(method, route string, status int, seconds float64) {
	if route == "" {
		route = "unmatched"
	}
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, route).Observe(seconds)
}
