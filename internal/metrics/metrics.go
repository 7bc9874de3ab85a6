package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/tlegate/internal/gate"
)

// Collector holds the gate's Prometheus metrics.
type Collector struct {
	gatherer prometheus.Gatherer

	Records      *prometheus.CounterVec
	Issues       *prometheus.CounterVec
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// NewCollector registers the metrics against reg, or the default registry
// when reg is nil. Registering twice against the same registry returns the
// collectors already in place.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	records, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tlegate_records_total",
		Help: "Records evaluated, labeled by profile and outcome.",
	}, []string{"profile", "result"}))
	if err != nil {
		return nil, err
	}
	issues, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tlegate_issues_total",
		Help: "Diagnostics emitted, labeled by code and severity.",
	}, []string{"code", "severity"}))
	if err != nil {
		return nil, err
	}
	requests, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tlegate_http_requests_total",
		Help: "Total number of HTTP requests.",
	}, []string{"path", "method", "code"}))
	if err != nil {
		return nil, err
	}
	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tlegate_http_duration_seconds",
		Help:    "HTTP request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"path", "method"})
	if err := reg.Register(durations); err != nil {
		are, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return nil, err
		}
		existing, ok := are.ExistingCollector.(*prometheus.HistogramVec)
		if !ok {
			return nil, fmt.Errorf("collector tlegate_http_duration_seconds already registered with incompatible type")
		}
		durations = existing
	}

	return &Collector{
		gatherer:     gatherer,
		Records:      records,
		Issues:       issues,
		HTTPRequests: requests,
		HTTPDuration: durations,
	}, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector already registered with incompatible type: %w", err)
		}
		return nil, err
	}
	return vec, nil
}

// Observe counts the results and diagnostics of one engine run.
func (c *Collector) Observe(profile string, results []gate.RecordResult, diags []gate.Diagnostic) {
	if c == nil {
		return
	}
	for _, r := range results {
		c.Records.WithLabelValues(profile, resultLabel(r)).Inc()
	}
	for _, d := range diags {
		c.ObserveDiagnostic(d)
	}
}

func (c *Collector) ObserveDiagnostic(d gate.Diagnostic) {
	if c == nil {
		return
	}
	c.Issues.WithLabelValues(string(d.Code), string(d.Severity)).Inc()
}

func resultLabel(r gate.RecordResult) string {
	switch {
	case r.Duplicate:
		return "duplicate"
	case r.Valid:
		return "accepted"
	default:
		return "rejected"
	}
}

// Handler serves the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	if c == nil || c.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Middleware records request count and duration for each request.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	if c == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		code := strconv.Itoa(rw.statusCode)
		c.HTTPRequests.WithLabelValues(r.URL.Path, r.Method, code).Inc()
		c.HTTPDuration.WithLabelValues(r.URL.Path, r.Method).Observe(time.Since(start).Seconds())
	})
}
