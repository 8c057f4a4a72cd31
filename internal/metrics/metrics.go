// Package metrics defines the Prometheus instrumentation for the
// pipeline stages.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Item results recorded on Processed.
const (
	ResultOK        = "ok"
	ResultRetried   = "retried"
	ResultDLQ       = "dlq"
	ResultDuplicate = "duplicate"
)

var (
	// Processed counts envelope processing outcomes per stage.
	Processed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "civicsignal_stage_processed_total",
			Help: "Envelope processing outcomes by stage and result",
		},
		[]string{"stage", "result"},
	)

	// BatchSize observes how many envelopes each drained batch carried.
	BatchSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "civicsignal_stage_batch_size",
			Help:    "Number of envelopes per processed batch",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100},
		},
		[]string{"stage"},
	)

	// ProcessDuration observes per-envelope processing time.
	ProcessDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "civicsignal_stage_process_seconds",
			Help:    "Time spent processing a single envelope",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	// DeadLettered counts DLQ pushes by stage and reason.
	DeadLettered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "civicsignal_dlq_pushed_total",
			Help: "Envelopes pushed to a dead-letter queue",
		},
		[]string{"stage", "reason"},
	)

	// ExportedLines counts lines appended to export files per city.
	ExportedLines = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "civicsignal_export_lines_total",
			Help: "Lines appended to export files",
		},
		[]string{"city"},
	)
)
