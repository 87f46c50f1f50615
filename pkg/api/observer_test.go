package api

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"
)

//
// Helpers
//

// testObserver is a simple Observer implementation used to verify fan-out behavior.
type testObserver struct {
	NoopObserver

	mu sync.Mutex

	starts    int
	completes int
	fails     int

	scopes        []Scope
	stepStarts    int
	stepCompletes int
	fallbacks     int
	values        map[string]any

	lastRun          RunInfo
	lastFailErr      error
	lastStepStart    stepEvent
	lastStepComplete stepEvent
}

type stepEvent struct {
	Scope    Scope
	Step     string
	Attempt  int
	Err      error
	Duration time.Duration
}

func (o *testObserver) OnWorkflowStart(ctx context.Context, run RunInfo) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.starts++
	o.lastRun = run
}

func (o *testObserver) OnWorkflowCompleted(ctx context.Context, run RunInfo) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.completes++
	o.lastRun = run
}

func (o *testObserver) OnWorkflowFailed(ctx context.Context, run RunInfo, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fails++
	o.lastRun = run
	o.lastFailErr = err
}

func (o *testObserver) OnScopeStart(ctx context.Context, run RunInfo, scope Scope) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.scopes = append(o.scopes, scope)
}

func (o *testObserver) OnStepStart(ctx context.Context, run RunInfo, scope Scope, step string, attempt int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stepStarts++
	o.lastStepStart = stepEvent{Scope: scope, Step: step, Attempt: attempt}
}

func (o *testObserver) OnStepCompleted(ctx context.Context, run RunInfo, scope Scope, step string, attempt int, err error, d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stepCompletes++
	o.lastStepComplete = stepEvent{Scope: scope, Step: step, Attempt: attempt, Err: err, Duration: d}
}

func (o *testObserver) OnFallback(ctx context.Context, run RunInfo, scope Scope, step, fallback string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fallbacks++
}

func (o *testObserver) OnValueRecorded(ctx context.Context, run RunInfo, key string, value any) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.values == nil {
		o.values = map[string]any{}
	}
	o.values[key] = value
}

// recordingHandler is a minimal slog.Handler that just records log records.
type recordingHandler struct {
	mu      sync.Mutex
	records []slog.Record
}

func (h *recordingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return true
}

func (h *recordingHandler) Handle(ctx context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r.Clone())
	return nil
}

func (h *recordingHandler) WithAttrs(attrs []slog.Attr) slog.Handler { return h }
func (h *recordingHandler) WithGroup(name string) slog.Handler       { return h }

func attrsToMap(r slog.Record) map[string]any {
	m := make(map[string]any)
	r.Attrs(func(a slog.Attr) bool {
		m[a.Key] = a.Value.Any()
		return true
	})
	return m
}

func newTestRun() RunInfo {
	return RunInfo{ID: "run-123", Workflow: "wf-test"}
}

//
// NoopObserver
//

func TestNoopObserver_DoesNotPanic(t *testing.T) {
	ctx := context.Background()
	run := newTestRun()
	var o Observer = NoopObserver{}

	// These calls should simply not panic.
	o.OnWorkflowStart(ctx, run)
	o.OnWorkflowCompleted(ctx, run)
	o.OnWorkflowFailed(ctx, run, errors.New("boom"))
	o.OnScopeStart(ctx, run, ScopeNormal)
	o.OnStepStart(ctx, run, ScopeNormal, "step-1", 1)
	o.OnStepCompleted(ctx, run, ScopeNormal, "step-1", 1, nil, time.Second)
	o.OnFallback(ctx, run, ScopeNormal, "step-1", "fb", errors.New("boom"))
	o.OnValueRecorded(ctx, run, "k", 1)
}

//
// CompositeObserver
//

func TestNewCompositeObserver_EmptyReturnsNoop(t *testing.T) {
	o := NewCompositeObserver()
	if _, ok := o.(NoopObserver); !ok {
		t.Fatalf("expected NewCompositeObserver() to return NoopObserver, got %T", o)
	}
}

func TestNewCompositeObserver_SingleReturnsThatObserver(t *testing.T) {
	single := &testObserver{}
	o := NewCompositeObserver(single, nil) // include a nil to ensure it is filtered

	if got, ok := o.(*testObserver); !ok || got != single {
		t.Fatalf("expected the single non-nil observer to be returned, got %T (%p)", o, o)
	}
}

func TestCompositeObserver_ForwardsAllEvents(t *testing.T) {
	ctx := context.Background()
	run := newTestRun()

	o1 := &testObserver{}
	o2 := &testObserver{}
	co, ok := NewCompositeObserver(o1, o2).(*CompositeObserver)
	if !ok {
		t.Fatalf("expected *CompositeObserver")
	}

	err := errors.New("step failed")
	co.OnWorkflowStart(ctx, run)
	co.OnWorkflowCompleted(ctx, run)
	co.OnWorkflowFailed(ctx, run, err)
	co.OnScopeStart(ctx, run, ScopeError)
	co.OnStepStart(ctx, run, ScopeError, "step-1", 2)
	co.OnStepCompleted(ctx, run, ScopeError, "step-1", 2, err, 2*time.Second)
	co.OnFallback(ctx, run, ScopeError, "step-1", "fb", err)
	co.OnValueRecorded(ctx, run, "step-1", "v")

	for i, o := range []*testObserver{o1, o2} {
		if o.starts != 1 || o.completes != 1 || o.fails != 1 || o.stepStarts != 1 || o.stepCompletes != 1 || o.fallbacks != 1 {
			t.Fatalf("observer %d did not receive all calls: %+v", i+1, o)
		}
		if o.lastRun != run {
			t.Fatalf("observer %d run mismatch: %+v", i+1, o.lastRun)
		}
		if o.lastFailErr != err {
			t.Fatalf("observer %d fail error mismatch", i+1)
		}
		if len(o.scopes) != 1 || o.scopes[0] != ScopeError {
			t.Fatalf("observer %d scopes mismatch: %v", i+1, o.scopes)
		}
		if o.lastStepStart.Step != "step-1" || o.lastStepStart.Attempt != 2 {
			t.Fatalf("observer %d stepStart mismatch: %+v", i+1, o.lastStepStart)
		}
		if o.lastStepComplete.Step != "step-1" || o.lastStepComplete.Attempt != 2 ||
			o.lastStepComplete.Err != err || o.lastStepComplete.Duration != 2*time.Second {
			t.Fatalf("observer %d stepComplete mismatch: %+v", i+1, o.lastStepComplete)
		}
		if o.values["step-1"] != "v" {
			t.Fatalf("observer %d value mismatch: %v", i+1, o.values)
		}
	}
}

//
// LoggingObserver
//

func TestNewLoggingObserver_NilLoggerUsesDefault(t *testing.T) {
	o := NewLoggingObserver(nil)
	lo, ok := o.(*LoggingObserver)
	if !ok {
		t.Fatalf("expected *LoggingObserver, got %T", o)
	}
	if lo.Logger == nil {
		t.Fatalf("expected non-nil Logger when created with nil")
	}
}

func TestLoggingObserver_OnWorkflowStart_EmitsInfoLog(t *testing.T) {
	ctx := context.Background()
	run := newTestRun()

	h := &recordingHandler{}
	o := NewLoggingObserver(slog.New(h))

	o.OnWorkflowStart(ctx, run)

	if len(h.records) != 1 {
		t.Fatalf("expected 1 log record, got %d", len(h.records))
	}

	rec := h.records[0]
	if rec.Level != slog.LevelInfo {
		t.Fatalf("expected LevelInfo, got %v", rec.Level)
	}
	if rec.Message != "workflow_start" {
		t.Fatalf("expected message workflow_start, got %q", rec.Message)
	}

	attrs := attrsToMap(rec)
	if attrs["workflow"] != run.Workflow {
		t.Fatalf("expected workflow=%q, got %v", run.Workflow, attrs["workflow"])
	}
	if attrs["run_id"] != run.ID {
		t.Fatalf("expected run_id=%q, got %v", run.ID, attrs["run_id"])
	}
}

func TestLoggingObserver_OnStepCompleted_LevelDependsOnError(t *testing.T) {
	ctx := context.Background()
	run := newTestRun()

	h := &recordingHandler{}
	o := NewLoggingObserver(slog.New(h))

	o.OnStepCompleted(ctx, run, ScopeNormal, "step-ok", 1, nil, time.Second)
	o.OnStepCompleted(ctx, run, ScopeNormal, "step-fail", 2, errors.New("boom"), 2*time.Second)

	if len(h.records) != 2 {
		t.Fatalf("expected 2 log records, got %d", len(h.records))
	}

	successRec := h.records[0]
	failRec := h.records[1]

	if successRec.Level != slog.LevelDebug {
		t.Fatalf("expected success record LevelDebug, got %v", successRec.Level)
	}
	if failRec.Level != slog.LevelWarn {
		t.Fatalf("expected failure record LevelWarn, got %v", failRec.Level)
	}

	attrs := attrsToMap(failRec)
	if attrs["step"] != "step-fail" {
		t.Fatalf("expected step=step-fail, got %v", attrs["step"])
	}
	if attrs["scope"] != "normal" {
		t.Fatalf("expected scope=normal, got %v", attrs["scope"])
	}
	if attrs["attempt"] != int64(2) {
		t.Fatalf("expected attempt=2, got %v", attrs["attempt"])
	}
	if attrs["error"] == nil {
		t.Fatalf("expected error attribute on failure record, got nil")
	}
}

func TestLoggingObserver_OnFallback_EmitsWarn(t *testing.T) {
	h := &recordingHandler{}
	o := NewLoggingObserver(slog.New(h))

	o.OnFallback(context.Background(), newTestRun(), ScopeNormal, "charge", "refund", errors.New("declined"))

	if len(h.records) != 1 || h.records[0].Level != slog.LevelWarn {
		t.Fatalf("expected one warn record, got %+v", h.records)
	}
	attrs := attrsToMap(h.records[0])
	if attrs["fallback"] != "refund" {
		t.Fatalf("expected fallback=refund, got %v", attrs["fallback"])
	}
}

//
// BasicMetrics
//

func TestBasicMetrics_WorkflowCountersAndSnapshot(t *testing.T) {
	var m BasicMetrics

	ctx := context.Background()
	run := newTestRun()

	m.OnWorkflowStart(ctx, run)
	m.OnWorkflowStart(ctx, run)
	m.OnWorkflowStart(ctx, run)

	m.OnWorkflowCompleted(ctx, run)
	m.OnWorkflowFailed(ctx, run, errors.New("fail"))

	snap := m.Snapshot()

	if snap.WorkflowsStarted != 3 {
		t.Fatalf("WorkflowsStarted=%d, want 3", snap.WorkflowsStarted)
	}
	if snap.WorkflowsCompleted != 1 {
		t.Fatalf("WorkflowsCompleted=%d, want 1", snap.WorkflowsCompleted)
	}
	if snap.WorkflowsFailed != 1 {
		t.Fatalf("WorkflowsFailed=%d, want 1", snap.WorkflowsFailed)
	}
	// No step metrics yet.
	if snap.StepsCompleted != 0 {
		t.Fatalf("StepsCompleted=%d, want 0", snap.StepsCompleted)
	}
	if snap.AvgStepDuration != 0 {
		t.Fatalf("AvgStepDuration=%v, want 0", snap.AvgStepDuration)
	}
}

func TestBasicMetrics_OnStepCompleted_SuccessOnlyCountsDuration(t *testing.T) {
	var m BasicMetrics
	ctx := context.Background()
	run := newTestRun()

	// two successful steps: 1s and 3s
	m.OnStepCompleted(ctx, run, ScopeNormal, "step-1", 1, nil, 1*time.Second)
	m.OnStepCompleted(ctx, run, ScopeNormal, "step-2", 1, nil, 3*time.Second)

	// one failing attempt, should NOT affect the average
	m.OnStepCompleted(ctx, run, ScopeNormal, "step-3", 1, errors.New("fail"), 10*time.Second)
	m.OnFallback(ctx, run, ScopeNormal, "step-3", "fb", errors.New("fail"))

	snap := m.Snapshot()

	if snap.StepsCompleted != 2 {
		t.Fatalf("StepsCompleted=%d, want 2", snap.StepsCompleted)
	}
	if snap.StepsFailed != 1 {
		t.Fatalf("StepsFailed=%d, want 1", snap.StepsFailed)
	}
	if snap.Fallbacks != 1 {
		t.Fatalf("Fallbacks=%d, want 1", snap.Fallbacks)
	}

	wantAvg := 2 * time.Second // (1s + 3s) / 2
	if snap.AvgStepDuration != wantAvg {
		t.Fatalf("AvgStepDuration=%v, want %v", snap.AvgStepDuration, wantAvg)
	}
}
