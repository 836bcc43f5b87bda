// Package metrics exposes Prometheus instrumentation for the server-of-record.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "radtrack"

// Recorder holds the server collectors. A nil *Recorder is a valid no-op.
type Recorder struct {
	registry        *prom.Registry
	requests        *prom.CounterVec
	requestDuration *prom.HistogramVec
	caseOutcomes    *prom.CounterVec
	caseTime        prom.Histogram
	reports         prom.Counter
	snapshots       *prom.CounterVec
}

// New constructs a Recorder and registers its collectors on reg. A nil reg
// gets a private registry.
func New(reg *prom.Registry) *Recorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	r := &Recorder{
		registry: reg,
		requests: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "API requests by route and status code",
		}, []string{"route", "code"}),
		requestDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "API request latency",
			Buckets:   prom.DefBuckets,
		}, []string{"route"}),
		caseOutcomes: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "case_findings_total",
			Help:      "Graded findings across completed cases by outcome",
		}, []string{"outcome"}),
		caseTime: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "case_time_seconds",
			Help:      "Time spent per completed case",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1800},
		}),
		reports: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "reports_submitted_total",
			Help:      "Reports submitted",
		}),
		snapshots: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "progress_snapshots_total",
			Help:      "Progress snapshots received by kind",
		}, []string{"kind"}),
	}
	reg.MustRegister(r.requests, r.requestDuration, r.caseOutcomes, r.caseTime, r.reports, r.snapshots)
	return r
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// ObserveCase records one completed case.
func (r *Recorder) ObserveCase(correct, incorrect int, spent time.Duration) {
	if r == nil {
		return
	}
	r.caseOutcomes.WithLabelValues("correct").Add(float64(max(correct, 0)))
	r.caseOutcomes.WithLabelValues("incorrect").Add(float64(max(incorrect, 0)))
	r.caseTime.Observe(spent.Seconds())
}

// IncReport counts a submitted report.
func (r *Recorder) IncReport() {
	if r == nil {
		return
	}
	r.reports.Inc()
}

// IncSnapshot counts a snapshot or heartbeat.
func (r *Recorder) IncSnapshot(kind string) {
	if r == nil {
		return
	}
	r.snapshots.WithLabelValues(kind).Inc()
}

// Instrument wraps next, recording status codes and latency under route.
func (r *Recorder) Instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	if r == nil {
		return next
	}
	return func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next(sw, req)
		r.requests.WithLabelValues(route, strconv.Itoa(sw.status)).Inc()
		r.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
