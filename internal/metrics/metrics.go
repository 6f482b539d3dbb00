// Package metrics exposes Prometheus counters/gauges for the proxy:
// restarts, forwarded messages, and hook failures, with an optional
// /metrics HTTP listener.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/neilopet/mcpmon/internal/logger"
)

// Metrics holds every metric the proxy records, registered against a
// caller-supplied registry so tests can use an isolated one.
type Metrics struct {
	RestartsTotal         prometheus.Counter
	ForwardedMessagesTotal *prometheus.CounterVec
	HookFailuresTotal      *prometheus.CounterVec
	ChildRunning           prometheus.Gauge
}

// New creates and registers every metric against reg.
func New(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		RestartsTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "mcpmon",
			Name:      "restarts_total",
			Help:      "Total number of completed restart cycles and respawns after an unexpected child exit.",
		}),
		ForwardedMessagesTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "mcpmon",
			Name:      "forwarded_messages_total",
			Help:      "Total number of JSON-RPC messages forwarded, by direction.",
		}, []string{"direction"}), // direction = "to_child" | "to_client"
		HookFailuresTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "mcpmon",
			Name:      "hook_failures_total",
			Help:      "Total number of extension hook invocations that returned an error.",
		}, []string{"stage"}), // stage = "beforeStdinForward" | "afterStdoutReceive" | "getAdditionalTools" | "handleToolCall"
		ChildRunning: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: "mcpmon",
			Name:      "child_running",
			Help:      "1 if the child process is currently running, 0 otherwise.",
		}),
	}
}

// IncForwarded records one forwarded message in the given direction
// ("to_child" or "to_client"), satisfying transport.MetricsRecorder.
func (m *Metrics) IncForwarded(direction string) {
	m.ForwardedMessagesTotal.WithLabelValues(direction).Inc()
}

// IncHookFailure records one failed hook invocation at the given stage,
// satisfying transport.MetricsRecorder.
func (m *Metrics) IncHookFailure(stage string) {
	m.HookFailuresTotal.WithLabelValues(stage).Inc()
}

// Serve starts a blocking HTTP listener on addr serving /metrics via
// promhttp.Handler, shutting down when ctx is canceled. Intended to be run
// in its own goroutine (e.g. under an errgroup).
func Serve(ctx context.Context, addr string, reg *prometheus.Registry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: mux}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		if err := srv.Shutdown(context.Background()); err != nil {
			logger.Warnf("metrics: shutdown failed: %v", err)
		}
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
