package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/petrijr/stepflow/pkg/api"
)

var errBoom = errors.New("boom")

func newTestEngine(t *testing.T, obs api.Observer) *Engine {
	t.Helper()
	e := New(Config{Name: "test", Observer: obs})
	t.Cleanup(e.Close)
	return e
}

func stepOf(name string, fn api.StepFunc, params ...string) *api.Step {
	return api.NewStep(api.Action{Name: name, Fn: fn, Params: params})
}

func returns(v any) api.StepFunc {
	return func(context.Context, api.Args) (any, error) { return v, nil }
}

func fails(err error) api.StepFunc {
	return func(context.Context, api.Args) (any, error) { return nil, err }
}

func sleeps(d time.Duration, v any) api.StepFunc {
	return func(ctx context.Context, _ api.Args) (any, error) {
		select {
		case <-time.After(d):
			return v, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func mustAdd(t *testing.T, e *Engine, scope api.Scope, s *api.Step) *api.Step {
	t.Helper()
	added, err := e.Add(scope, s)
	if err != nil {
		t.Fatalf("Add(%s, %s) failed: %v", scope, s.Name, err)
	}
	return added
}

// eventLog records observer callbacks as short strings.
type eventLog struct {
	api.NoopObserver

	mu     sync.Mutex
	events []string
	runs   map[string]struct{}
}

func (l *eventLog) add(run api.RunInfo, ev string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.runs == nil {
		l.runs = map[string]struct{}{}
	}
	l.runs[run.ID] = struct{}{}
	l.events = append(l.events, ev)
}

func (l *eventLog) OnWorkflowStart(ctx context.Context, run api.RunInfo) { l.add(run, "start") }
func (l *eventLog) OnWorkflowCompleted(ctx context.Context, run api.RunInfo) {
	l.add(run, "completed")
}
func (l *eventLog) OnWorkflowFailed(ctx context.Context, run api.RunInfo, err error) {
	l.add(run, "failed")
}
func (l *eventLog) OnScopeStart(ctx context.Context, run api.RunInfo, scope api.Scope) {
	l.add(run, "scope:"+string(scope))
}
func (l *eventLog) OnFallback(ctx context.Context, run api.RunInfo, scope api.Scope, step, fallback string, err error) {
	l.add(run, "fallback:"+step+"->"+fallback)
}

func (l *eventLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

func (l *eventLog) runCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.runs)
}
