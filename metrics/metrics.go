// Package metrics holds the Prometheus collectors for ingestion runs and
// search queries. All methods accept a nil receiver so callers can run
// without metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sermonsearch"

type Metrics struct {
	registry *prometheus.Registry

	videos         *prometheus.CounterVec
	segments       prometheus.Counter
	ingestDuration prometheus.Histogram
	queries        *prometheus.CounterVec
	queryDuration  prometheus.Histogram
	results        *prometheus.CounterVec
}

// New builds the collectors on their own registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		videos: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "videos_total",
			Help:      "Videos handled by ingestion runs, by outcome.",
		}, []string{"outcome"}),
		segments: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "segments_total",
			Help:      "Caption segments parsed and handed to the store.",
		}),
		ingestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "video_duration_seconds",
			Help:      "Time spent ingesting a single video.",
			Buckets:   prometheus.DefBuckets,
		}),
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "queries_total",
			Help:      "Search queries, by status.",
		}, []string{"status"}),
		queryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "query_duration_seconds",
			Help:      "Search query latency.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "results_total",
			Help:      "Search results returned, by match type.",
		}, []string{"match_type"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.videos,
		m.segments,
		m.ingestDuration,
		m.queries,
		m.queryDuration,
		m.results,
	)

	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveVideo(outcome string, segments int, took time.Duration) {
	if m == nil {
		return
	}
	m.videos.WithLabelValues(outcome).Inc()
	m.segments.Add(float64(segments))
	m.ingestDuration.Observe(took.Seconds())
}

func (m *Metrics) ObserveQuery(status string, titles, transcripts int, took time.Duration) {
	if m == nil {
		return
	}
	m.queries.WithLabelValues(status).Inc()
	m.queryDuration.Observe(took.Seconds())
	m.results.WithLabelValues("title").Add(float64(titles))
	m.results.WithLabelValues("transcript").Add(float64(transcripts))
}
