// Package observability exposes Prometheus metrics for every pipeline
// stage, grounded on the FD teacher's internal/observability/metrics.go
// namespacing convention but renamed for the gate node's own domain.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FramesCaptured = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gatenode",
		Name:      "frames_captured_total",
		Help:      "Total number of frames captured from the camera",
	})

	FramesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gatenode",
		Name:      "frames_dropped_total",
		Help:      "Total number of frames dropped by a bounded buffer",
	}, []string{"buffer"})

	ObservedFPS = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "gatenode",
		Name:      "observed_fps",
		Help:      "Observed capture frame rate over the last second",
	})

	TracksActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "gatenode",
		Name:      "tracks_active",
		Help:      "Number of CONFIRMED or RECOGNIZED tracks currently held",
	})

	TracksCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gatenode",
		Name:      "tracks_created_total",
		Help:      "Total number of tracks created",
	})

	TracksRecognized = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gatenode",
		Name:      "tracks_recognized_total",
		Help:      "Total number of tracks that reached RECOGNIZED",
	})

	RecognitionAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gatenode",
		Name:      "recognition_attempts_total",
		Help:      "Total recognition attempts by outcome",
	}, []string{"outcome"}) // match, miss, exhausted

	InferenceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gatenode",
		Name:      "inference_duration_seconds",
		Help:      "Duration of a pipeline inference stage",
		Buckets:   prometheus.ExponentialBuckets(0.002, 2, 10),
	}, []string{"stage"}) // detect, align, embed, search

	GateDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gatenode",
		Name:      "gate_decisions_total",
		Help:      "Total gate decisions by outcome",
	}, []string{"status"}) // AUTHORIZED, WANTED, UNKNOWN

	GateOpenTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gatenode",
		Name:      "gate_open_total",
		Help:      "Total number of times the gate relay was driven open",
	})

	GateState = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "gatenode",
		Name:      "gate_state",
		Help:      "Current gate state: 0=CLOSED, 1=OPEN",
	})

	AlarmTriggered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gatenode",
		Name:      "alarm_triggered_total",
		Help:      "Total number of alarm triggers by kind",
	}, []string{"kind"}) // WANTED, UNKNOWN

	AlertsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "gatenode",
		Name:      "alerts_active",
		Help:      "Number of entries currently in the alert set",
	})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "gatenode",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})

	SyncSuccess = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "gatenode",
		Name:      "sync_last_success",
		Help:      "1 if the last face-database sync succeeded, else 0",
	})

	FaceDBCount = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "gatenode",
		Name:      "face_db_count",
		Help:      "Number of enrolled faces held in the in-memory index",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gatenode",
		Name:      "http_request_duration_seconds",
		Help:      "Admin/debug HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)
