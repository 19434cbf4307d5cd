// Package metrics provides Prometheus-based recording of workflow progress.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"clockwork/pkg/chat"
	"clockwork/pkg/logx"
	"clockwork/pkg/session"
)

// PrometheusRecorder implements session.Observer and records workflow-level
// counters.
type PrometheusRecorder struct {
	sessionsTotal   *prometheus.CounterVec
	turnsTotal      *prometheus.CounterVec
	contextTokens   *prometheus.HistogramVec
	verdictsTotal   *prometheus.CounterVec
	iterationsTotal prometheus.Counter
}

// NewPrometheusRecorder creates a recorder registered on the default
// registry.
func NewPrometheusRecorder() *PrometheusRecorder {
	return NewPrometheusRecorderOn(prometheus.DefaultRegisterer)
}

// NewPrometheusRecorderOn creates a recorder registered on reg.
func NewPrometheusRecorderOn(reg prometheus.Registerer) *PrometheusRecorder {
	factory := promauto.With(reg)
	return &PrometheusRecorder{
		sessionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "workflow_sessions_total",
				Help: "Total session runs by name and terminal state",
			},
			[]string{"session", "state"},
		),
		turnsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "workflow_turns_total",
				Help: "Total role turns by session and role",
			},
			[]string{"session", "role"},
		),
		contextTokens: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "workflow_context_tokens",
				Help:    "Estimated seed context size per session run",
				Buckets: prometheus.ExponentialBuckets(100, 2, 12),
			},
			[]string{"session"},
		),
		verdictsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "workflow_critic_verdicts_total",
				Help: "Critic verdicts by classification",
			},
			[]string{"verdict"},
		),
		iterationsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "workflow_iterations_total",
				Help: "Completed planning/implementation iterations",
			},
		),
	}
}

// SessionStarted implements session.Observer.
func (p *PrometheusRecorder) SessionStarted(name string, _, estimatedTokens int) {
	p.contextTokens.WithLabelValues(name).Observe(float64(estimatedTokens))
}

// TurnCompleted implements session.Observer.
func (p *PrometheusRecorder) TurnCompleted(name string, role chat.RoleID, _ int) {
	p.turnsTotal.WithLabelValues(name, role).Inc()
}

// SessionFinished implements session.Observer.
func (p *PrometheusRecorder) SessionFinished(name string, state session.TerminalState, _ int) {
	p.sessionsTotal.WithLabelValues(name, string(state)).Inc()
}

// RecordVerdict counts a critic verdict classification.
func (p *PrometheusRecorder) RecordVerdict(verdict string) {
	p.verdictsTotal.WithLabelValues(verdict).Inc()
}

// RecordIteration counts a completed outer-loop iteration.
func (p *PrometheusRecorder) RecordIteration() {
	p.iterationsTotal.Inc()
}

// Serve exposes /metrics on addr in a background goroutine. Errors are
// logged, not fatal; metrics are best-effort telemetry.
func Serve(addr string) {
	logger := logx.NewLogger("metrics")
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("serving metrics on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server: %v", err)
		}
	}()
}
