// Package metrics registers the Prometheus collectors this server
// exposes at /metrics: a private registry plus a handful of domain
// counters/histograms instead of the global default registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every collector this server registers.
var Registry = prometheus.NewRegistry()

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "polycentric",
		Subsystem: "http",
		Name:      "inflight_requests",
		Help:      "Current number of in-flight HTTP requests.",
	})

	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "polycentric",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests handled.",
	}, []string{"method", "path", "status"})

	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "polycentric",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Duration of HTTP requests.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"method", "path"})

	// EventsIngested counts successfully ingested events by content type.
	EventsIngested = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "polycentric",
		Subsystem: "ingest",
		Name:      "events_total",
		Help:      "Total number of events ingested, by content type.",
	}, []string{"content_type"})

	// EventsRejected counts ingest rejections by error code.
	EventsRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "polycentric",
		Subsystem: "ingest",
		Name:      "events_rejected_total",
		Help:      "Total number of events rejected during ingest, by reason.",
	}, []string{"reason"})

	// ModerationDecisions counts moderation outcomes by resulting status.
	ModerationDecisions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "polycentric",
		Subsystem: "moderation",
		Name:      "decisions_total",
		Help:      "Total number of moderation decisions, by resulting status.",
	}, []string{"status"})

	// SinkForwards counts external sink forwarding attempts by sink and outcome.
	SinkForwards = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "polycentric",
		Subsystem: "sink",
		Name:      "forwards_total",
		Help:      "Total number of external sink forward attempts, by sink and outcome.",
	}, []string{"sink", "outcome"})
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		EventsIngested,
		EventsRejected,
		ModerationDecisions,
		SinkForwards,
	)
}

// Handler returns the HTTP handler serving /metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHTTP wraps next, recording in-flight gauge, status counter,
// and duration histogram per (method, path).
func InstrumentHTTP(path string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpInFlight.Inc()
		defer httpInFlight.Dec()

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)

		httpDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		httpRequests.WithLabelValues(r.Method, path, strconv.Itoa(rec.status)).Inc()
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
