package api

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// RunInfo identifies one Run of a workflow.
type RunInfo struct {
	ID       string
	Workflow string
}

// Observer receives callbacks from the engine for logging and metrics.
//
// Callbacks are invoked synchronously from the goroutine driving the
// workflow. Implementations should be fast and must not block.
type Observer interface {
	// OnWorkflowStart is called once per Run, before the normal scope.
	OnWorkflowStart(ctx context.Context, run RunInfo)

	// OnWorkflowCompleted is called when Run returns nil.
	OnWorkflowCompleted(ctx context.Context, run RunInfo)

	// OnWorkflowFailed is called when Run returns an error.
	OnWorkflowFailed(ctx context.Context, run RunInfo, err error)

	// OnScopeStart is called before the steps of a scope run.
	OnScopeStart(ctx context.Context, run RunInfo, scope Scope)

	// OnStepStart is called before each attempt. attempt is 1-based.
	OnStepStart(ctx context.Context, run RunInfo, scope Scope, step string, attempt int)

	// OnStepCompleted is called after each attempt, for both successes and
	// failures (err != nil).
	OnStepCompleted(ctx context.Context, run RunInfo, scope Scope, step string, attempt int, err error, duration time.Duration)

	// OnFallback is called when a failing step is replaced by its fallback.
	OnFallback(ctx context.Context, run RunInfo, scope Scope, step, fallback string, err error)

	// OnValueRecorded is called after the engine writes key into the state.
	OnValueRecorded(ctx context.Context, run RunInfo, key string, value any)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnWorkflowStart(ctx context.Context, run RunInfo)                {}
func (NoopObserver) OnWorkflowCompleted(ctx context.Context, run RunInfo)            {}
func (NoopObserver) OnWorkflowFailed(ctx context.Context, run RunInfo, err error)    {}
func (NoopObserver) OnScopeStart(ctx context.Context, run RunInfo, scope Scope)      {}
func (NoopObserver) OnStepStart(ctx context.Context, run RunInfo, scope Scope, step string, attempt int) {
}
func (NoopObserver) OnStepCompleted(ctx context.Context, run RunInfo, scope Scope, step string, attempt int, err error, d time.Duration) {
}
func (NoopObserver) OnFallback(ctx context.Context, run RunInfo, scope Scope, step, fallback string, err error) {
}
func (NoopObserver) OnValueRecorded(ctx context.Context, run RunInfo, key string, value any) {}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnWorkflowStart(ctx context.Context, run RunInfo) {
	for _, o := range c.observers {
		o.OnWorkflowStart(ctx, run)
	}
}

func (c *CompositeObserver) OnWorkflowCompleted(ctx context.Context, run RunInfo) {
	for _, o := range c.observers {
		o.OnWorkflowCompleted(ctx, run)
	}
}

func (c *CompositeObserver) OnWorkflowFailed(ctx context.Context, run RunInfo, err error) {
	for _, o := range c.observers {
		o.OnWorkflowFailed(ctx, run, err)
	}
}

func (c *CompositeObserver) OnScopeStart(ctx context.Context, run RunInfo, scope Scope) {
	for _, o := range c.observers {
		o.OnScopeStart(ctx, run, scope)
	}
}

func (c *CompositeObserver) OnStepStart(ctx context.Context, run RunInfo, scope Scope, step string, attempt int) {
	for _, o := range c.observers {
		o.OnStepStart(ctx, run, scope, step, attempt)
	}
}

func (c *CompositeObserver) OnStepCompleted(ctx context.Context, run RunInfo, scope Scope, step string, attempt int, err error, d time.Duration) {
	for _, o := range c.observers {
		o.OnStepCompleted(ctx, run, scope, step, attempt, err, d)
	}
}

func (c *CompositeObserver) OnFallback(ctx context.Context, run RunInfo, scope Scope, step, fallback string, err error) {
	for _, o := range c.observers {
		o.OnFallback(ctx, run, scope, step, fallback, err)
	}
}

func (c *CompositeObserver) OnValueRecorded(ctx context.Context, run RunInfo, key string, value any) {
	for _, o := range c.observers {
		o.OnValueRecorded(ctx, run, key, value)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs workflow / step lifecycle
// events using the provided slog.Logger. If logger is nil, slog.Default()
// is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnWorkflowStart(ctx context.Context, run RunInfo) {
	o.Logger.InfoContext(ctx, "workflow_start",
		slog.String("workflow", run.Workflow),
		slog.String("run_id", run.ID),
	)
}

func (o *LoggingObserver) OnWorkflowCompleted(ctx context.Context, run RunInfo) {
	o.Logger.InfoContext(ctx, "workflow_completed",
		slog.String("workflow", run.Workflow),
		slog.String("run_id", run.ID),
	)
}

func (o *LoggingObserver) OnWorkflowFailed(ctx context.Context, run RunInfo, err error) {
	o.Logger.ErrorContext(ctx, "workflow_failed",
		slog.String("workflow", run.Workflow),
		slog.String("run_id", run.ID),
		slog.Any("error", err),
	)
}

func (o *LoggingObserver) OnScopeStart(ctx context.Context, run RunInfo, scope Scope) {
	o.Logger.DebugContext(ctx, "scope_start",
		slog.String("workflow", run.Workflow),
		slog.String("run_id", run.ID),
		slog.String("scope", string(scope)),
	)
}

func (o *LoggingObserver) OnStepStart(ctx context.Context, run RunInfo, scope Scope, step string, attempt int) {
	o.Logger.DebugContext(ctx, "step_start",
		slog.String("workflow", run.Workflow),
		slog.String("run_id", run.ID),
		slog.String("scope", string(scope)),
		slog.String("step", step),
		slog.Int("attempt", attempt),
	)
}

func (o *LoggingObserver) OnStepCompleted(ctx context.Context, run RunInfo, scope Scope, step string, attempt int, err error, d time.Duration) {
	level := slog.LevelDebug
	if err != nil {
		level = slog.LevelWarn
	}
	o.Logger.Log(ctx, level, "step_completed",
		slog.String("workflow", run.Workflow),
		slog.String("run_id", run.ID),
		slog.String("scope", string(scope)),
		slog.String("step", step),
		slog.Int("attempt", attempt),
		slog.Duration("duration", d),
		slog.Any("error", err),
	)
}

func (o *LoggingObserver) OnFallback(ctx context.Context, run RunInfo, scope Scope, step, fallback string, err error) {
	o.Logger.WarnContext(ctx, "step_fallback",
		slog.String("workflow", run.Workflow),
		slog.String("run_id", run.ID),
		slog.String("scope", string(scope)),
		slog.String("step", step),
		slog.String("fallback", fallback),
		slog.Any("error", err),
	)
}

func (o *LoggingObserver) OnValueRecorded(ctx context.Context, run RunInfo, key string, value any) {}

// BasicMetrics collects simple counters and aggregate step durations.
// It implements Observer, and can be combined with LoggingObserver via
// NewCompositeObserver.
type BasicMetrics struct {
	NoopObserver

	workflowsStarted   atomic.Int64
	workflowsCompleted atomic.Int64
	workflowsFailed    atomic.Int64
	stepsCompleted     atomic.Int64
	stepsFailed        atomic.Int64
	fallbacks          atomic.Int64
	totalStepDuration  atomic.Int64 // nanoseconds
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	WorkflowsStarted   int64
	WorkflowsCompleted int64
	WorkflowsFailed    int64

	StepsCompleted  int64
	StepsFailed     int64
	Fallbacks       int64
	AvgStepDuration time.Duration
}

func (m *BasicMetrics) OnWorkflowStart(ctx context.Context, run RunInfo) {
	m.workflowsStarted.Add(1)
}

func (m *BasicMetrics) OnWorkflowCompleted(ctx context.Context, run RunInfo) {
	m.workflowsCompleted.Add(1)
}

func (m *BasicMetrics) OnWorkflowFailed(ctx context.Context, run RunInfo, err error) {
	m.workflowsFailed.Add(1)
}

func (m *BasicMetrics) OnStepCompleted(ctx context.Context, run RunInfo, scope Scope, step string, attempt int, err error, d time.Duration) {
	if err != nil {
		m.stepsFailed.Add(1)
		return
	}
	// Only successful attempts count toward the average duration.
	m.stepsCompleted.Add(1)
	m.totalStepDuration.Add(d.Nanoseconds())
}

func (m *BasicMetrics) OnFallback(ctx context.Context, run RunInfo, scope Scope, step, fallback string, err error) {
	m.fallbacks.Add(1)
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	steps := m.stepsCompleted.Load()
	totalNs := m.totalStepDuration.Load()

	var avg time.Duration
	if steps > 0 {
		avg = time.Duration(totalNs / steps)
	}

	return BasicMetricsSnapshot{
		WorkflowsStarted:   m.workflowsStarted.Load(),
		WorkflowsCompleted: m.workflowsCompleted.Load(),
		WorkflowsFailed:    m.workflowsFailed.Load(),
		StepsCompleted:     steps,
		StepsFailed:        m.stepsFailed.Load(),
		Fallbacks:          m.fallbacks.Load(),
		AvgStepDuration:    avg,
	}
}
