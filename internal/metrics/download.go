// SPDX-License-Identifier: MIT

// Package metrics exposes Prometheus instrumentation for the download
// pipeline. Counters are observational only; control decisions never read
// them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SegmentsTotal tracks terminal segment outcomes by result.
	SegmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hlsgrab_segments_total",
		Help: "Total number of segment fetches reaching a terminal outcome",
	}, []string{"result"})

	// SegmentRetriesTotal counts retried fetch attempts.
	SegmentRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hlsgrab_segment_retries_total",
		Help: "Total number of retried segment fetch attempts",
	})

	// SegmentBytesTotal counts bytes persisted to disk.
	SegmentBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hlsgrab_segment_bytes_total",
		Help: "Total number of segment bytes written",
	})

	// MergeTotal tracks muxer invocations by result.
	MergeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hlsgrab_merge_total",
		Help: "Total number of merge invocations by result",
	}, []string{"result"})
)

// RecordSegmentSuccess records one successfully persisted segment.
func RecordSegmentSuccess(bytes int) {
	SegmentsTotal.WithLabelValues("ok").Inc()
	SegmentBytesTotal.Add(float64(bytes))
}

// RecordSegmentSkipped records a segment satisfied by an existing artifact.
func RecordSegmentSkipped() {
	SegmentsTotal.WithLabelValues("skipped").Inc()
}

// RecordSegmentFailure records one terminally failed segment.
func RecordSegmentFailure() {
	SegmentsTotal.WithLabelValues("failed").Inc()
}

// RecordSegmentRetry records one retried fetch attempt.
func RecordSegmentRetry() {
	SegmentRetriesTotal.Inc()
}

// RecordMerge records a muxer invocation outcome.
func RecordMerge(ok bool) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	MergeTotal.WithLabelValues(result).Inc()
}
