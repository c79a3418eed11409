package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	VideosProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vidstamp_videos_processed_total",
		Help: "Videos processed, by outcome",
	}, []string{"outcome"})

	VideoStageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vidstamp_video_stage_duration_seconds",
		Help:    "Time spent per video in each stage",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
	}, []string{"stage"})

	FrameFallbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vidstamp_frame_fallbacks_total",
		Help: "Sampled frames replaced by the placeholder image",
	})

	AnchorSlotTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vidstamp_anchor_slot_total",
		Help: "Slot whose reading fixed the start time",
	}, []string{"slot"})

	ModelRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vidstamp_model_requests_total",
		Help: "Vision model calls, by result",
	}, []string{"result"})

	ModelRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vidstamp_model_retries_total",
		Help: "Vision model calls retried after a transient failure",
	})

	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vidstamp_active_workers",
		Help: "Workers currently processing a video",
	})
)
