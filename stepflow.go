package stepflow

import (
	"context"
	"fmt"

	"github.com/petrijr/stepflow/internal/engine"
	"github.com/petrijr/stepflow/pkg/api"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	State                = api.State
	Step                 = api.Step
	Action               = api.Action
	Args                 = api.Args
	StepFunc             = api.StepFunc
	Scope                = api.Scope
	ScopeFailure         = api.ScopeFailure
	StepError            = api.StepError
	FailureKind          = api.FailureKind
	Backoff              = api.Backoff
	RunInfo              = api.RunInfo
	Observer             = api.Observer
	LoggingObserver      = api.LoggingObserver
	BasicMetrics         = api.BasicMetrics
	BasicMetricsSnapshot = api.BasicMetricsSnapshot
	CompositeObserver    = api.CompositeObserver
	NoopObserver         = api.NoopObserver
	Mode                 = engine.Mode
)

// Re-export common observer helpers.

var (
	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver
)

const (
	ScopeNormal = api.ScopeNormal
	ScopeError  = api.ScopeError
	ScopeExit   = api.ScopeExit

	KindStep         = api.KindStep
	KindTimeout      = api.KindTimeout
	KindMissingValue = api.KindMissingValue

	ModeThread  = engine.ModeThread
	ModeProcess = engine.ModeProcess

	KeyCancel    = api.KeyCancel
	KeyError     = api.KeyError
	ContextParam = api.ContextParam
)

var (
	ErrTimeout      = api.ErrTimeout
	ErrMissingValue = api.ErrMissingValue
	ErrArgumentType = api.ErrArgumentType
	ErrStepNotFound = api.ErrStepNotFound
	ErrClosed       = api.ErrClosed
)

// Workflow owns a shared State, the normal/error/exit step lists and the
// worker pools used by parallel steps.
//
//	wf := stepflow.New(stepflow.WithName("orders"))
//	defer wf.Close()
//
//	wf.AddStep(stepflow.Fn0(loadOrder))
//	wf.AddStep(stepflow.Fn1(priceOrder, "loadOrder"), stepflow.Retries(2))
//	wf.AddExitStep(stepflow.FnState(cleanup))
//
//	if err := wf.Run(ctx, map[string]any{"orderID": id}); err != nil {
//	    return err
//	}
//	total, _ := wf.ValueOf("priceOrder")
type Workflow struct {
	eng *engine.Engine
}

// New creates a Workflow. Call Close when done to release its pools.
func New(opts ...Option) *Workflow {
	cfg := newConfig(opts)
	return &Workflow{eng: engine.New(engine.Config{
		Name:            cfg.name,
		Observer:        cfg.observer(),
		Initial:         cfg.initial,
		ThreadPoolSize:  cfg.threadPoolSize,
		ProcessPoolSize: cfg.processPoolSize,
	})}
}

// Name returns the workflow name.
func (w *Workflow) Name() string { return w.eng.Name() }

// AddStep registers a step. The scope defaults to ScopeNormal; see InScope.
func (w *Workflow) AddStep(a Action, opts ...StepOption) *Step {
	sc := applyStepOptions(opts)
	return w.mustAdd(sc.scope, sc.build(a))
}

// AddErrorStep registers a step in the error scope. Error steps run only
// when a failure escapes the normal scope.
func (w *Workflow) AddErrorStep(a Action, opts ...StepOption) *Step {
	return w.AddStep(a, append(opts, InScope(ScopeError))...)
}

// AddExitStep registers a step in the exit scope, which runs after every
// Run regardless of outcome.
func (w *Workflow) AddExitStep(a Action, opts ...StepOption) *Step {
	return w.AddStep(a, append(opts, InScope(ScopeExit))...)
}

// AddFallback binds a as the error handler of the normal step named target.
// When target fails, the fallback runs once in its place and its result is
// recorded under the fallback's name. Unless target continues on error,
// the normal scope stops after the fallback.
//
// A bound fallback always takes precedence over error-scope steps: those
// run only if the fallback itself fails.
func (w *Workflow) AddFallback(target string, a Action, opts ...StepOption) (*Step, error) {
	if a.Fn == nil {
		panic(fmt.Sprintf("stepflow: fallback for %q has nil function", target))
	}
	sc := applyStepOptions(opts)
	return w.eng.AttachFallback(target, sc.build(a))
}

// AddCondStep registers a conditional step. When it runs, it reads the
// result of the step registered immediately before it in the same scope:
// a truthy value runs onTrue, anything else runs onFalse. Each branch
// action is recorded under its own name; the conditional's own name
// receives the last branch result.
//
// The default name is "cond:<previous step>".
func (w *Workflow) AddCondStep(onTrue, onFalse []Action, opts ...StepOption) *Step {
	sc := applyStepOptions(opts)

	prev := ""
	if last := w.eng.Last(sc.scope); last != nil {
		prev = last.Name
	}

	a := Action{
		Name: "cond:" + prev,
		Fn:   w.eng.CondFunc(sc.scope, prev, onTrue, onFalse),
	}
	return w.mustAdd(sc.scope, sc.build(a))
}

// AddParallelStep registers a step that runs actions concurrently on the
// pool selected by mode and records their results, in listed order, as a
// []any under name.
func (w *Workflow) AddParallelStep(name string, mode Mode, actions []Action, opts ...StepOption) *Step {
	for _, a := range actions {
		if a.Fn == nil {
			panic(fmt.Sprintf("stepflow: parallel step %q has a branch with nil function", name))
		}
	}
	sc := applyStepOptions(opts)
	a := Action{Name: name, Fn: w.eng.ParallelFunc(mode, actions)}
	return w.mustAdd(sc.scope, sc.build(a))
}

// Run merges seed into the state and executes the normal, error and exit
// scopes. It returns the failure that no scope recovered from, or nil.
func (w *Workflow) Run(ctx context.Context, seed map[string]any) error {
	return w.eng.Run(ctx, seed)
}

// State returns the shared state. It stays valid after Run returns.
func (w *Workflow) State() *State { return w.eng.State() }

// Value returns the result recorded for a registered step.
func (w *Workflow) Value(step *Step) any {
	if step == nil {
		return nil
	}
	return w.eng.State().Get(step.Name)
}

// ValueOf returns the value recorded under name.
func (w *Workflow) ValueOf(name string) (any, bool) {
	return w.eng.State().Lookup(name)
}

// Lookup returns the registered step (or fallback) named name.
func (w *Workflow) Lookup(name string) (*Step, bool) {
	return w.eng.Lookup(name)
}

// Steps returns the steps registered in scope, in order.
func (w *Workflow) Steps(scope Scope) []*Step {
	return w.eng.Steps(scope)
}

// Cancel requests cooperative cancellation. The step in flight finishes;
// no further step of any scope starts.
func (w *Workflow) Cancel() { w.eng.Cancel() }

// Close waits for in-flight parallel branches and releases the pools.
func (w *Workflow) Close() { w.eng.Close() }

// RunFromContext returns the RunInfo of the Run executing a step.
func RunFromContext(ctx context.Context) (RunInfo, bool) {
	return engine.RunFromContext(ctx)
}

func (w *Workflow) mustAdd(scope Scope, step *Step) *Step {
	s, err := w.eng.Add(scope, step)
	if err != nil {
		panic("stepflow: " + err.Error())
	}
	return s
}
