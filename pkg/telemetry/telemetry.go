// Package telemetry exposes process metrics on /metrics and a request
// middleware that flags slow requests in the log.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"chatsync/pkg/logger"
)

var (
	MessagesAppended = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatsync_messages_appended_total",
		Help: "Messages appended to conversation logs.",
	})
	ConversationsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatsync_conversations_created_total",
		Help: "Conversations created by the resolver.",
	})
	EventsDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatsync_events_delivered_total",
		Help: "Event frames queued to live sessions.",
	})
	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatsync_events_dropped_total",
		Help: "Event frames dropped because a session fell behind.",
	})
	OnlineUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chatsync_online_users",
		Help: "Users with at least one live connection.",
	})
	LiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chatsync_live_connections",
		Help: "Open live-channel connections.",
	})
	HeapBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chatsync_heap_bytes",
		Help: "Heap in use, sampled by the resource sensor.",
	})
	DiskFreeBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chatsync_disk_free_bytes",
		Help: "Free bytes on the filesystem holding the DB path.",
	})
	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chatsync_http_request_seconds",
		Help:    "Fallback endpoint request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "status"})
)

const slowThreshold = 200 * time.Millisecond

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Middleware records request timing and logs requests slower than the
// threshold.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		srw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(srw, r)
		dur := time.Since(start)
		requestDuration.WithLabelValues(r.Method, strconv.Itoa(srw.status)).Observe(dur.Seconds())
		if dur > slowThreshold {
			logger.Warn("slow_request", "method", r.Method, "path", r.URL.Path, "status", srw.status, "duration_ms", dur.Milliseconds())
		}
	})
}
