package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	framesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "buslink",
			Subsystem: "link",
			Name:      "frames_sent_total",
			Help:      "Frames written to the peer, including keepalives.",
		},
		[]string{"kind"},
	)
	framesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "buslink",
			Subsystem: "link",
			Name:      "frames_received_total",
			Help:      "Frames decoded from the peer, including keepalives.",
		},
		[]string{"kind"},
	)
	bytesSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "buslink",
			Subsystem: "link",
			Name:      "bytes_sent_total",
			Help:      "Wire bytes written to the peer.",
		},
	)
	reconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "buslink",
			Subsystem: "link",
			Name:      "reconnects_total",
			Help:      "Completed reconnect cycles.",
		},
	)
	droppedFrames = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "buslink",
			Subsystem: "link",
			Name:      "dropped_frames_total",
			Help:      "Queued frames discarded on disconnect.",
		},
	)
	outgoingDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "buslink",
			Subsystem: "link",
			Name:      "outgoing_queue_depth",
			Help:      "Frames waiting in the outgoing queue.",
		},
	)
	dispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "buslink",
			Subsystem: "dispatch",
			Name:      "frames_total",
			Help:      "Frames handled by the dispatcher, by route.",
		},
		[]string{"route"},
	)
	callbackPanics = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "buslink",
			Subsystem: "dispatch",
			Name:      "callback_panics_total",
			Help:      "Listener or handler invocations recovered from panic.",
		},
	)
	pendingCalls = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "buslink",
			Subsystem: "service",
			Name:      "pending_calls",
			Help:      "Service calls awaiting a response.",
		},
	)
	activeGoals = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "buslink",
			Subsystem: "action",
			Name:      "active_goals",
			Help:      "Goals not yet in a terminal status.",
		},
		[]string{"side"},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "buslink",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "buslink",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			framesSent, framesReceived, bytesSent, reconnects, droppedFrames,
			outgoingDepth, dispatched, callbackPanics, pendingCalls, activeGoals,
			httpRequests, httpDuration,
		)
	})
}

func RecordFrameSent(kind string, bytes int) {
	RegisterMetrics()
	framesSent.WithLabelValues(kind).Inc()
	bytesSent.Add(float64(bytes))
}

func RecordFrameReceived(kind string) {
	RegisterMetrics()
	framesReceived.WithLabelValues(kind).Inc()
}

func RecordReconnect() {
	RegisterMetrics()
	reconnects.Inc()
}

func RecordDroppedFrames(n int) {
	RegisterMetrics()
	droppedFrames.Add(float64(n))
}

func SetOutgoingDepth(n int) {
	RegisterMetrics()
	outgoingDepth.Set(float64(n))
}

func RecordDispatch(route string) {
	RegisterMetrics()
	dispatched.WithLabelValues(route).Inc()
}

func RecordCallbackPanic() {
	RegisterMetrics()
	callbackPanics.Inc()
}

func SetPendingCalls(n int) {
	RegisterMetrics()
	pendingCalls.Set(float64(n))
}

func SetActiveGoals(side string, n int) {
	RegisterMetrics()
	activeGoals.WithLabelValues(side).Set(float64(n))
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}
