package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/autoguides/contentfix/internal/correction"
	"github.com/autoguides/contentfix/internal/llm"
)

const namespace = "contentfix"

// Collector exposes Prometheus metrics for inbound HTTP requests, workflow
// runs and generative API calls. It is a correction.WorkflowObserver and an
// llm.CallRecorder.
type Collector struct {
	registry        *prometheus.Registry
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	workflowRuns     *prometheus.CounterVec
	workflowDuration prometheus.Histogram
	created          *prometheus.CounterVec
	processed        *prometheus.CounterVec
	cleaned          *prometheus.CounterVec
	rateLimited      prometheus.Counter

	apiCalls    *prometheus.CounterVec
	apiDuration *prometheus.HistogramVec
	apiTokens   *prometheus.CounterVec
}

var (
	_ correction.WorkflowObserver = (*Collector)(nil)
	_ llm.CallRecorder            = (*Collector)(nil)
)

// NewCollector constructs a collector on its own registry.
func NewCollector() (*Collector, error) {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency distribution for inbound HTTP requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of inbound HTTP requests.",
		}, []string{"method", "path", "status"}),
		workflowRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "runs_total",
			Help:      "Workflow runs by result.",
		}, []string{"result"}),
		workflowDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "run_duration_seconds",
			Help:      "Wall time of workflow runs.",
			Buckets:   []float64{1, 5, 15, 60, 300, 900, 3600},
		}),
		created: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "corrections",
			Name:      "created_total",
			Help:      "Correction records created by type.",
		}, []string{"type"}),
		processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "corrections",
			Name:      "processed_total",
			Help:      "Correction records handled by the processing phase, by outcome.",
		}, []string{"outcome"}),
		cleaned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "corrections",
			Name:      "cleanup_total",
			Help:      "Records touched by cleanup passes, by action.",
		}, []string{"action"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "corrections",
			Name:      "rate_limited_runs_total",
			Help:      "Processing runs that stopped at the rate limit gate.",
		}),
		apiCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "calls_total",
			Help:      "Generative API calls by provider and outcome.",
		}, []string{"provider", "outcome"}),
		apiDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "call_duration_seconds",
			Help:      "Latency of generative API calls.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"provider"}),
		apiTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "tokens_total",
			Help:      "Tokens consumed by direction.",
		}, []string{"provider", "direction"}),
	}

	for _, collector := range []prometheus.Collector{
		c.requestDuration, c.requestTotal,
		c.workflowRuns, c.workflowDuration, c.created, c.processed, c.cleaned, c.rateLimited,
		c.apiCalls, c.apiDuration, c.apiTokens,
	} {
		if err := c.registry.Register(collector); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// Handler returns an HTTP handler for exposing Prometheus metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler to record HTTP metrics.
func (c *Collector) InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(rw.status)
		path := r.URL.Path

		c.requestTotal.WithLabelValues(r.Method, path, status).Inc()
		c.requestDuration.WithLabelValues(r.Method, path, status).Observe(duration)
	})
}

// ObserveWorkflow folds a finished run into the workflow counters.
func (c *Collector) ObserveWorkflow(report correction.WorkflowReport) {
	result := "success"
	if !report.Succeeded() {
		result = "error"
	}
	c.workflowRuns.WithLabelValues(result).Inc()
	c.workflowDuration.Observe(float64(report.DurationMs) / 1000)

	if cr := report.Creation; cr != nil {
		for typ, n := range cr.ByType {
			c.created.WithLabelValues(string(typ)).Add(float64(n))
		}
	}

	if p := report.Processing; p != nil {
		c.processed.WithLabelValues("completed").Add(float64(p.Completed))
		c.processed.WithLabelValues("no_changes").Add(float64(p.NoChanges))
		c.processed.WithLabelValues("failed").Add(float64(p.Failed))
		c.processed.WithLabelValues("released").Add(float64(p.Released))
		c.processed.WithLabelValues("skipped").Add(float64(p.Skipped))
		if p.RateLimited() {
			c.rateLimited.Inc()
		}
	}

	if cl := report.Cleanup; cl != nil {
		c.cleaned.WithLabelValues("duplicates_removed").Add(float64(cl.DuplicatesRemoved))
		c.cleaned.WithLabelValues("stuck_reset").Add(float64(cl.StuckReset))
		c.cleaned.WithLabelValues("failed_purged").Add(float64(cl.FailedPurged))
	}
}

// RecordCall counts one generative API call.
func (c *Collector) RecordCall(ctx context.Context, call llm.Call) {
	c.apiCalls.WithLabelValues(call.Provider, call.Outcome()).Inc()
	c.apiDuration.WithLabelValues(call.Provider).Observe(call.Latency.Seconds())
	if call.InputTokens > 0 {
		c.apiTokens.WithLabelValues(call.Provider, "input").Add(float64(call.InputTokens))
	}
	if call.OutputTokens > 0 {
		c.apiTokens.WithLabelValues(call.Provider, "output").Add(float64(call.OutputTokens))
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
