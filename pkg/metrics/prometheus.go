// Package metrics exports workflow events as Prometheus metrics.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/petrijr/stepflow/pkg/api"
)

const (
	outcomeOK    = "ok"
	outcomeError = "error"
)

// PrometheusObserver is an api.Observer that records runs, step attempts and
// fallbacks as Prometheus metrics. Labels are limited to workflow, scope and
// outcome; step names are not used as labels.
type PrometheusObserver struct {
	api.NoopObserver

	runsTotal     *prometheus.CounterVec
	runsActive    *prometheus.GaugeVec
	attemptsTotal *prometheus.CounterVec
	stepDuration  *prometheus.HistogramVec
	fallbacks     *prometheus.CounterVec
}

var _ api.Observer = (*PrometheusObserver)(nil)

// NewPrometheusObserver creates the collectors and registers them with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func NewPrometheusObserver(reg prometheus.Registerer) (*PrometheusObserver, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	o := &PrometheusObserver{
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stepflow_runs_total",
				Help: "Total number of finished workflow runs.",
			},
			[]string{"workflow", "outcome"},
		),
		runsActive: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "stepflow_runs_active",
				Help: "Number of workflow runs in progress.",
			},
			[]string{"workflow"},
		),
		attemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stepflow_step_attempts_total",
				Help: "Total number of step attempts.",
			},
			[]string{"workflow", "scope", "outcome"},
		),
		stepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stepflow_step_duration_seconds",
				Help:    "Step attempt duration in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"workflow", "scope"},
		),
		fallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stepflow_fallbacks_total",
				Help: "Total number of failed steps replaced by their fallback.",
			},
			[]string{"workflow", "scope"},
		),
	}

	for _, c := range []prometheus.Collector{
		o.runsTotal, o.runsActive, o.attemptsTotal, o.stepDuration, o.fallbacks,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// MustNewPrometheusObserver is like NewPrometheusObserver but panics if
// registration fails.
func MustNewPrometheusObserver(reg prometheus.Registerer) *PrometheusObserver {
	o, err := NewPrometheusObserver(reg)
	if err != nil {
		panic(err)
	}
	return o
}

func (o *PrometheusObserver) OnWorkflowStart(ctx context.Context, run api.RunInfo) {
	o.runsActive.WithLabelValues(run.Workflow).Inc()
}

func (o *PrometheusObserver) OnWorkflowCompleted(ctx context.Context, run api.RunInfo) {
	o.runsActive.WithLabelValues(run.Workflow).Dec()
	o.runsTotal.WithLabelValues(run.Workflow, outcomeOK).Inc()
}

func (o *PrometheusObserver) OnWorkflowFailed(ctx context.Context, run api.RunInfo, err error) {
	o.runsActive.WithLabelValues(run.Workflow).Dec()
	o.runsTotal.WithLabelValues(run.Workflow, outcomeError).Inc()
}

func (o *PrometheusObserver) OnStepCompleted(ctx context.Context, run api.RunInfo, scope api.Scope, step string, attempt int, err error, d time.Duration) {
	outcome := outcomeOK
	if err != nil {
		outcome = outcomeError
	}
	o.attemptsTotal.WithLabelValues(run.Workflow, string(scope), outcome).Inc()
	o.stepDuration.WithLabelValues(run.Workflow, string(scope)).Observe(d.Seconds())
}

func (o *PrometheusObserver) OnFallback(ctx context.Context, run api.RunInfo, scope api.Scope, step, fallback string, err error) {
	o.fallbacks.WithLabelValues(run.Workflow, string(scope)).Inc()
}
