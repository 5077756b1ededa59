// Package metrics exposes gateway prometheus collectors.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/router-for-me/APIGateway/internal/ratelimit"
)

// Metrics holds the gateway collectors and the registry serving them.
type Metrics struct {
	registry  *prometheus.Registry
	decisions *prometheus.CounterVec
	requests  *prometheus.HistogramVec
}

// New registers gateway collectors on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	decisions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "apigateway_ratelimit_decisions_total",
			Help: "Rate limit decisions by caller class and outcome.",
		},
		[]string{"class", "outcome"}, // outcome: allowed | denied
	)
	requests := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "apigateway_request_duration_seconds",
			Help:    "Latency of requests that passed through the request logger.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
	registry.MustRegister(decisions, requests)

	return &Metrics{registry: registry, decisions: decisions, requests: requests}
}

// Record counts one limiter decision. It satisfies ratelimit.StatsSink.
func (m *Metrics) Record(_ context.Context, ev ratelimit.StatsEvent) error {
	if m == nil {
		return nil
	}
	outcome := "allowed"
	if !ev.Allowed {
		outcome = "denied"
	}
	m.decisions.WithLabelValues(ev.Class.String(), outcome).Inc()
	return nil
}

// ObserveRequest records request latency. route is the matched pattern, not the raw path.
func (m *Metrics) ObserveRequest(method, route string, status int, latency time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Observe(latency.Seconds())
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
