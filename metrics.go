package vectable

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems, or use
// PrometheusCollector.
type MetricsCollector interface {
	// RecordAdd is called after each write that appends rows, including
	// table creation. rows is the number of rows written.
	RecordAdd(rows int, duration time.Duration, err error)

	// RecordQuery is called after each query. kind is one of "vector",
	// "fts", "hybrid" or "scan".
	RecordQuery(kind string, duration time.Duration, err error)

	// RecordIndexBuild is called when a background index build finishes.
	RecordIndexBuild(kind string, duration time.Duration, err error)

	// RecordCommitConflict is called when a manifest commit loses a race.
	RecordCommitConflict()
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordAdd(int, time.Duration, error)           {}
func (NoopMetricsCollector) RecordQuery(string, time.Duration, error)      {}
func (NoopMetricsCollector) RecordIndexBuild(string, time.Duration, error) {}
func (NoopMetricsCollector) RecordCommitConflict()                         {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	AddCount         atomic.Int64
	AddRows          atomic.Int64
	AddErrors        atomic.Int64
	QueryCount       atomic.Int64
	QueryErrors      atomic.Int64
	QueryTotalNanos  atomic.Int64
	IndexBuildCount  atomic.Int64
	IndexBuildErrors atomic.Int64
	CommitConflicts  atomic.Int64
}

// RecordAdd implements MetricsCollector.
func (b *BasicMetricsCollector) RecordAdd(rows int, _ time.Duration, err error) {
	b.AddCount.Add(1)
	if err != nil {
		b.AddErrors.Add(1)
		return
	}
	b.AddRows.Add(int64(rows))
}

// RecordQuery implements MetricsCollector.
func (b *BasicMetricsCollector) RecordQuery(_ string, duration time.Duration, err error) {
	b.QueryCount.Add(1)
	b.QueryTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.QueryErrors.Add(1)
	}
}

// RecordIndexBuild implements MetricsCollector.
func (b *BasicMetricsCollector) RecordIndexBuild(_ string, _ time.Duration, err error) {
	b.IndexBuildCount.Add(1)
	if err != nil {
		b.IndexBuildErrors.Add(1)
	}
}

// RecordCommitConflict implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCommitConflict() {
	b.CommitConflicts.Add(1)
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		AddCount:         b.AddCount.Load(),
		AddRows:          b.AddRows.Load(),
		AddErrors:        b.AddErrors.Load(),
		QueryCount:       b.QueryCount.Load(),
		QueryErrors:      b.QueryErrors.Load(),
		QueryAvgNanos:    b.getAvgQueryNanos(),
		IndexBuildCount:  b.IndexBuildCount.Load(),
		IndexBuildErrors: b.IndexBuildErrors.Load(),
		CommitConflicts:  b.CommitConflicts.Load(),
	}
}

func (b *BasicMetricsCollector) getAvgQueryNanos() int64 {
	count := b.QueryCount.Load()
	if count == 0 {
		return 0
	}
	return b.QueryTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	AddCount         int64
	AddRows          int64
	AddErrors        int64
	QueryCount       int64
	QueryErrors      int64
	QueryAvgNanos    int64
	IndexBuildCount  int64
	IndexBuildErrors int64
	CommitConflicts  int64
}
