package vectable

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusCollector is a MetricsCollector backed by an isolated
// Prometheus registry.
type PrometheusCollector struct {
	// Registry holds every vectable metric plus the Go and process collectors.
	Registry *prometheus.Registry

	rowsAdded       prometheus.Counter
	writes          *prometheus.CounterVec
	queryDuration   *prometheus.HistogramVec
	indexBuilds     *prometheus.CounterVec
	indexDuration   *prometheus.HistogramVec
	commitConflicts prometheus.Counter
}

// NewPrometheusCollector creates a collector with its own registry.
// namespace prefixes every metric name; an empty namespace means "vectable".
func NewPrometheusCollector(namespace string) *PrometheusCollector {
	if namespace == "" {
		namespace = "vectable"
	}
	registry := prometheus.NewRegistry()

	p := &PrometheusCollector{
		Registry: registry,
		rowsAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_added_total",
			Help:      "Total number of rows written to tables.",
		}),
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "writes_total",
			Help:      "Total number of table writes by status.",
		}, []string{"status"}),
		queryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Query latency by query kind and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind", "status"}),
		indexBuilds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_builds_total",
			Help:      "Total number of finished index builds by kind and status.",
		}, []string{"kind", "status"}),
		indexDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "index_build_duration_seconds",
			Help:      "Index build latency by kind.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"kind"}),
		commitConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commit_conflicts_total",
			Help:      "Total number of manifest commits that lost a race.",
		}),
	}

	registry.MustRegister(
		p.rowsAdded,
		p.writes,
		p.queryDuration,
		p.indexBuilds,
		p.indexDuration,
		p.commitConflicts,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return p
}

// Handler serves the registry in the Prometheus exposition format.
func (p *PrometheusCollector) Handler() http.Handler {
	return promhttp.HandlerFor(p.Registry, promhttp.HandlerOpts{})
}

// RecordAdd implements MetricsCollector.
func (p *PrometheusCollector) RecordAdd(rows int, _ time.Duration, err error) {
	p.writes.WithLabelValues(status(err)).Inc()
	if err == nil {
		p.rowsAdded.Add(float64(rows))
	}
}

// RecordQuery implements MetricsCollector.
func (p *PrometheusCollector) RecordQuery(kind string, duration time.Duration, err error) {
	p.queryDuration.WithLabelValues(kind, status(err)).Observe(duration.Seconds())
}

// RecordIndexBuild implements MetricsCollector.
func (p *PrometheusCollector) RecordIndexBuild(kind string, duration time.Duration, err error) {
	p.indexBuilds.WithLabelValues(kind, status(err)).Inc()
	p.indexDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordCommitConflict implements MetricsCollector.
func (p *PrometheusCollector) RecordCommitConflict() {
	p.commitConflicts.Inc()
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
