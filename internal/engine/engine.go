// Package engine implements the step execution engine behind the stepflow
// package: argument binding, the per-step retry/timeout/fallback loop, the
// scope runner, the three-phase Run, and the conditional and parallel
// combinators.
package engine

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/petrijr/stepflow/internal/pool"
	"github.com/petrijr/stepflow/pkg/api"
)

// Config describes how to construct an Engine.
type Config struct {
	// Name identifies the workflow in observer events.
	Name string
	// Observer receives lifecycle events. Nil means NoopObserver.
	Observer api.Observer
	// Initial seeds the state.
	Initial map[string]any
	// ThreadPoolSize bounds the shared pool; <= 0 picks a default.
	ThreadPoolSize int
	// ProcessPoolSize bounds the isolated pool; <= 0 picks a default.
	ProcessPoolSize int
}

// Engine owns a workflow's state, its three step lists and the worker
// pools used by parallel steps.
type Engine struct {
	name     string
	state    *api.State
	observer api.Observer

	mu    sync.RWMutex // guards steps
	steps map[api.Scope][]*api.Step

	threads *pool.Pool
	procs   *pool.Pool

	runMu     sync.Mutex // serializes Run
	closeOnce sync.Once

	activeMu sync.RWMutex
	active   *activeRun // the Run in progress, nil between runs
}

type activeRun struct {
	ctx context.Context
	run api.RunInfo
}

// New creates an Engine and its worker pools.
func New(cfg Config) *Engine {
	obs := cfg.Observer
	if obs == nil {
		obs = api.NoopObserver{}
	}
	name := cfg.Name
	if name == "" {
		name = "workflow"
	}
	e := &Engine{
		name:     name,
		state:    api.NewState(cfg.Initial),
		observer: obs,
		steps: map[api.Scope][]*api.Step{
			api.ScopeNormal: {},
			api.ScopeError:  {},
			api.ScopeExit:   {},
		},
		threads: pool.New(cfg.ThreadPoolSize),
		procs:   pool.NewIsolated(cfg.ProcessPoolSize),
	}
	e.state.OnSet(e.stateWritten)
	return e
}

// Name returns the workflow name.
func (e *Engine) Name() string { return e.name }

// State returns the shared state.
func (e *Engine) State() *api.State { return e.state }

// Add appends step to scope and returns it.
func (e *Engine) Add(scope api.Scope, step *api.Step) (*api.Step, error) {
	if step == nil || step.Fn == nil {
		return nil, fmt.Errorf("step %q has nil function", stepName(step))
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.steps[scope]; !ok {
		return nil, fmt.Errorf("unknown scope %q", scope)
	}
	e.steps[scope] = append(e.steps[scope], step)
	return step, nil
}

// Last returns the most recently registered step of scope, or nil.
func (e *Engine) Last(scope api.Scope) *api.Step {
	e.mu.RLock()
	defer e.mu.RUnlock()
	steps := e.steps[scope]
	if len(steps) == 0 {
		return nil
	}
	return steps[len(steps)-1]
}

// Find returns the first step of scope named name.
func (e *Engine) Find(scope api.Scope, name string) (*api.Step, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, s := range e.steps[scope] {
		if s.Name == name {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: %s step %q", api.ErrStepNotFound, scope, name)
}

// AttachFallback binds fallback to the first normal step named target.
// A later call for the same target replaces the earlier fallback.
func (e *Engine) AttachFallback(target string, fallback *api.Step) (*api.Step, error) {
	if fallback == nil || fallback.Fn == nil {
		return nil, fmt.Errorf("fallback for %q has nil function", target)
	}
	step, err := e.Find(api.ScopeNormal, target)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	step.Fallback = fallback
	e.mu.Unlock()
	return fallback, nil
}

// Steps returns a copy of the step list of scope.
func (e *Engine) Steps(scope api.Scope) []*api.Step {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]*api.Step(nil), e.steps[scope]...)
}

// Lookup returns the first registered step, fallbacks included, named
// name. Scopes are searched in execution order.
func (e *Engine) Lookup(name string) (*api.Step, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, scope := range api.Scopes {
		for _, s := range e.steps[scope] {
			for f := s; f != nil; f = f.Fallback {
				if f.Name == name {
					return f, true
				}
			}
		}
	}
	return nil, false
}

// Cancel sets the cooperative cancellation flag.
func (e *Engine) Cancel() {
	e.state.Cancel()
}

// Close drains and releases the worker pools. It blocks until branches
// already dispatched have finished.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		e.threads.Close()
		e.procs.Close()
	})
}

// Run merges seed into the state and executes the normal, error and exit
// scopes.
//
// A failure escaping the normal scope sets the "error" flag. If no error or
// exit steps are registered it is returned at once. If error steps exist
// they run and their outcome replaces the failure; with only exit steps the
// failure stays pending. The exit scope always runs last, and its failure
// supersedes any other.
//
// Right after OnWorkflowStart the observer receives OnValueRecorded for
// every entry already in the state. From then until Run returns, every
// write to the state is reported the same way, whoever makes it.
//
// The exit scope runs under context.WithoutCancel(ctx), so it still runs
// once the caller's context is done. Exit steps that need a deadline set
// their own timeout.
func (e *Engine) Run(ctx context.Context, seed map[string]any) (err error) {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	run := api.RunInfo{ID: uuid.NewString(), Workflow: e.name}
	ctx = withRun(ctx, run)

	e.observer.OnWorkflowStart(ctx, run)
	e.setActive(&activeRun{ctx: ctx, run: run})
	defer e.setActive(nil)
	defer func() {
		if err != nil {
			e.observer.OnWorkflowFailed(ctx, run, err)
			return
		}
		e.observer.OnWorkflowCompleted(ctx, run)
	}()

	snap := e.state.Snapshot()
	for _, k := range slices.Sorted(maps.Keys(snap)) {
		e.observer.OnValueRecorded(ctx, run, k, snap[k])
	}

	e.state.Merge(seed)

	if err = e.runScope(ctx, api.ScopeNormal); err != nil {
		e.record(api.KeyError, true)
		hasError, hasExit := len(e.Steps(api.ScopeError)) > 0, len(e.Steps(api.ScopeExit)) > 0
		if !hasError && !hasExit {
			return err
		}
		if hasError {
			err = e.runScope(ctx, api.ScopeError)
		}
	}

	if exitErr := e.runScope(context.WithoutCancel(ctx), api.ScopeExit); exitErr != nil {
		err = exitErr
	}
	return err
}

// record writes a result into the state; the write hook reports it.
func (e *Engine) record(key string, value any) {
	e.state.Set(key, value)
}

func (e *Engine) setActive(a *activeRun) {
	e.activeMu.Lock()
	defer e.activeMu.Unlock()
	e.active = a
}

// stateWritten reports a state write to the observer. Writes made outside
// a Run are not reported; the next Run's opening snapshot includes them.
func (e *Engine) stateWritten(key string, value any) {
	e.activeMu.RLock()
	a := e.active
	e.activeMu.RUnlock()
	if a == nil {
		return
	}
	e.observer.OnValueRecorded(a.ctx, a.run, key, value)
}

type runKey struct{}

func withRun(ctx context.Context, run api.RunInfo) context.Context {
	return context.WithValue(ctx, runKey{}, run)
}

func runFromContext(ctx context.Context) api.RunInfo {
	run, _ := RunFromContext(ctx)
	return run
}

// RunFromContext returns the RunInfo of the Run driving ctx, if any.
func RunFromContext(ctx context.Context) (api.RunInfo, bool) {
	run, ok := ctx.Value(runKey{}).(api.RunInfo)
	return run, ok
}

func stepName(s *api.Step) string {
	if s == nil {
		return ""
	}
	return s.Name
}
