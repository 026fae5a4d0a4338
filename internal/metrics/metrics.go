// Package metrics exposes Prometheus instrumentation for pipeline runs,
// grounded on etalazz-vsa's internal/ratelimiter/telemetry/churn
// package-level-counters-plus-standalone-listener shape.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pipelineDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "refstream_pipeline_duration_seconds",
		Help:    "Wall-clock duration of a settled pipeline run, from spawn to settlement.",
		Buckets: prometheus.DefBuckets,
	})

	bytesStreamed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "refstream_bytes_streamed_total",
		Help: "Total bytes forwarded from a terminal pipeline stage to an HTTP response.",
	})

	truncatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "refstream_truncated_responses_total",
		Help: "Total responses that settled with data-truncated=true.",
	})

	stageFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "refstream_stage_failures_total",
		Help: "Total stage failures, labeled by stage title.",
	}, []string{"stage"})

	inFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "refstream_requests_in_flight",
		Help: "Requests currently being served by the streaming engine.",
	})
)

// RequestStarted increments the in-flight gauge and returns a func that
// must be deferred to decrement it on request completion.
func RequestStarted() func() {
	inFlight.Inc()
	return inFlight.Dec
}

// ObservePipeline records a settled pipeline's duration, byte count, and
// truncation outcome.
func ObservePipeline(duration time.Duration, bytesWritten int64, truncated bool) {
	pipelineDuration.Observe(duration.Seconds())
	bytesStreamed.Add(float64(bytesWritten))
	if truncated {
		truncatedTotal.Inc()
	}
}

// ObserveStageFailure records a named stage's failure.
func ObserveStageFailure(stageTitle string) {
	stageFailures.WithLabelValues(stageTitle).Inc()
}

// Server serves the Prometheus text-format /metrics endpoint on its own
// listener, run as an independent oklog/run actor by cmd/refstreamd —
// the same "own actor, own interrupt" shape as the teacher's http.Server.
type Server struct {
	httpServer *http.Server
}

// NewServer constructs a metrics Server bound to addr.
func NewServer(addr string) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &Server{httpServer: &http.Server{Addr: addr, Handler: mux}}
}

// ListenAndServe runs the metrics HTTP server. Returns http.ErrServerClosed
// on a clean shutdown.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Interrupt shuts the metrics server down, matching the oklog/run actor
// interrupt-func signature.
func (s *Server) Interrupt(error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		_ = s.httpServer.Close()
	}
}
