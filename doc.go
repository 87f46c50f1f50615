// Package stepflow provides a lightweight, embeddable step-execution engine
// for Go.
//
// A Workflow runs an ordered list of steps against a shared, mutable State.
// Each step declares the state keys it reads; their values are bound as
// arguments when the step runs and its result is written back under the
// step's name, so later steps can consume it. There is no persistence, no
// scheduler and no distribution: a Workflow lives inside one process and Run
// executes it synchronously.
//
// # Steps
//
// Steps are built from Actions. The typed constructors Fn0, Fn1, Fn2 and
// Fn3 adapt ordinary functions; FnState hands the step the whole State;
// Fn wraps a raw StepFunc.
//
//	wf := stepflow.New()
//	defer wf.Close()
//
//	wf.AddStep(stepflow.Fn0(fetch))                  // result stored as "fetch"
//	wf.AddStep(stepflow.Fn1(parse, "fetch"))         // reads "fetch"
//	wf.AddStep(stepflow.Fn2(save, "parse", "dsn"),   // reads "parse" and "dsn"
//	    stepflow.Retries(2), stepflow.Timeout(time.Second))
//
// Per-step policy is set with StepOptions: Named, Timeout, Retries,
// WithRetry (backoff), ContinueOnError and InScope.
//
// # Scopes
//
// Steps belong to one of three scopes. Normal steps run first. When a
// failure escapes the normal scope the "error" flag is set and the error
// scope runs. The exit scope runs last on every Run. A failure inside a
// scope is recorded under "<scope>_error" as a ScopeFailure.
//
// A step may also carry a fallback (AddFallback) that runs once in its place
// when it fails. A successful fallback records its result under its own name
// and ends the normal scope.
//
// # Conditional and parallel steps
//
// AddCondStep branches on the truthiness of the previous step's result.
// AddParallelStep fans actions out to a goroutine pool (ModeThread) or to an
// isolated pool where arguments and results are serialized (ModeProcess),
// and records their results in listed order.
//
// # Cancellation
//
// Cancel sets the "cancel" flag in the state. The step in flight finishes,
// then no further step starts in any scope. Steps can also cancel the run
// themselves through State.Cancel.
//
// # Observability
//
// Observers receive workflow, scope, step, fallback and value events.
// WithLogger attaches a LoggingObserver built on log/slog. The pkg/metrics
// package exports Prometheus metrics and pkg/monitor mirrors run state into
// an in-memory, SQLite or Redis store served over HTTP.
package stepflow
