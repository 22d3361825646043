// Package metrics holds the service's Prometheus collectors on a private
// registry. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "jobpilot"

type Metrics struct {
	registry *prometheus.Registry

	extractions  *prometheus.CounterVec
	analyses     *prometheus.CounterVec
	analysisTime prometheus.Histogram
	chatRuns     *prometheus.CounterVec
	completions  *prometheus.CounterVec
	pdfs         *prometheus.CounterVec
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		extractions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "extractions_total",
			Help: "Extraction events received, by winning method.",
		}, []string{"method"}),
		analyses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "analyses_total",
			Help: "Fast analysis calls, by outcome.",
		}, []string{"outcome"}),
		analysisTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "analysis_duration_seconds",
			Help:    "Fast analysis latency including retries.",
			Buckets: []float64{1, 2, 5, 10, 20, 40, 80, 160},
		}),
		chatRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "chat_runs_total",
			Help: "Chat automation runs, by outcome and settle path.",
		}, []string{"outcome", "settled_via"}),
		completions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "completions_total",
			Help: "Completion watches resolved, by the path that won.",
		}, []string{"source"}),
		pdfs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "pdfs_total",
			Help: "PDF generations, by outcome.",
		}, []string{"outcome"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "http_requests_total",
			Help: "HTTP requests, by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.extractions, m.analyses, m.analysisTime, m.chatRuns,
		m.completions, m.pdfs, m.httpRequests, m.httpDuration,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Extraction(method string) {
	if m == nil {
		return
	}
	m.extractions.WithLabelValues(method).Inc()
}

func (m *Metrics) Analysis(outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.analyses.WithLabelValues(outcome).Inc()
	m.analysisTime.Observe(took.Seconds())
}

func (m *Metrics) ChatRun(outcome, settledVia string) {
	if m == nil {
		return
	}
	if settledVia == "" {
		settledVia = "none"
	}
	m.chatRuns.WithLabelValues(outcome, settledVia).Inc()
}

func (m *Metrics) Completion(source string) {
	if m == nil {
		return
	}
	m.completions.WithLabelValues(source).Inc()
}

func (m *Metrics) PDF(outcome string) {
	if m == nil {
		return
	}
	m.pdfs.WithLabelValues(outcome).Inc()
}

func (m *Metrics) HTTPRequest(method, route string, status int, took time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(took.Seconds())
}
