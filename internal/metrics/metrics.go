// Package metrics declares the Prometheus collectors the workflow engine
// updates. Register is not called anywhere in this module and no endpoint
// serves the collectors; the cache and remote-request collectors are not
// updated by any caller.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	VideosProcessedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reelsort",
		Name:      "videos_processed_total",
		Help:      "Total videos processed, by outcome (succeeded, failed, cancelled).",
	}, []string{"outcome"})

	VideoProcessingDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "reelsort",
		Name:      "video_processing_duration_seconds",
		Help:      "Wall-clock duration of one video's full pipeline run.",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
	})

	SegmentsEmittedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "reelsort",
		Name:      "segments_emitted_total",
		Help:      "Total segments produced by the segment builder.",
	})

	CacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "reelsort",
		Name:      "cache_hits_total",
		Help:      "Total cache store lookups that returned a hit.",
	})

	CacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "reelsort",
		Name:      "cache_misses_total",
		Help:      "Total cache store lookups that returned a miss.",
	})

	RemoteRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reelsort",
		Name:      "remote_requests_total",
		Help:      "Total requests made to the remote AI client, by outcome.",
	}, []string{"outcome"})

	RemoteRequestDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "reelsort",
		Name:      "remote_request_duration_seconds",
		Help:      "Duration of remote AI generate calls in seconds.",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
	})

	OrganizeOperationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reelsort",
		Name:      "organize_operations_total",
		Help:      "Total file organizer operations, by op and outcome.",
	}, []string{"op", "outcome"})

	WorkflowActiveWorkers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "reelsort",
		Name:      "workflow_active_workers",
		Help:      "Current number of busy workflow worker goroutines.",
	})
)

// Register adds all collectors to reg. Call once at startup.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		VideosProcessedTotal,
		VideoProcessingDuration,
		SegmentsEmittedTotal,
		CacheHitsTotal,
		CacheMissesTotal,
		RemoteRequestsTotal,
		RemoteRequestDuration,
		OrganizeOperationsTotal,
		WorkflowActiveWorkers,
	)
}
