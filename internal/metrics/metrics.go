package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Frame evaluation
	FramesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forecourt_frames_processed_total",
			Help: "Total number of tracker frames received, by outcome",
		},
		[]string{"result"}, // "evaluated", "skipped", "rejected"
	)

	FrameEvaluationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "forecourt_frame_evaluation_duration_seconds",
			Help:    "Time spent evaluating one frame of detections",
			Buckets: []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05},
		},
	)

	TrackedVehicles = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "forecourt_tracked_vehicles",
			Help: "Vehicles currently held in the state store",
		},
	)

	EvictedTracks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "forecourt_evicted_tracks_total",
			Help: "Vehicle states dropped after the track stopped being observed",
		},
	)

	// Alerts
	AlertsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forecourt_alerts_emitted_total",
			Help: "Total number of alerts written to the event log",
		},
		[]string{"kind"},
	)

	AlertsPurged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "forecourt_alerts_purged_total",
			Help: "Unattended alerts removed after the vehicle was attended",
		},
	)

	// Snapshots
	SnapshotRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forecourt_snapshot_requests_total",
			Help: "Snapshot capture requests, by enqueue result",
		},
		[]string{"result"}, // "queued", "dropped"
	)

	SnapshotUploads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forecourt_snapshot_uploads_total",
			Help: "Snapshot upload outcomes",
		},
		[]string{"result"}, // "success", "failure", "encode_error", "disabled"
	)

	SnapshotUploadDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "forecourt_snapshot_upload_duration_seconds",
			Help:    "Duration of snapshot uploads including retries",
			Buckets: prometheus.DefBuckets,
		},
	)

	SnapshotQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "forecourt_snapshot_queue_depth",
			Help: "Snapshot jobs waiting for a worker",
		},
	)

	// API
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forecourt_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "forecourt_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"method", "endpoint"},
	)
)
