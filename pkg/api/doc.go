// Package api contains the core building blocks used by the stepflow engine.
// It provides the data model shared by the engine, the combinators, and
// the observers.
//
// Most users interact with the higher-level stepflow package, which re-exports
// selected types and helpers from this package. The api package is intended
// for custom integrations (observers, monitors, typed step adapters) and for
// contributors extending the engine itself.
//
// # Concepts
//
// The api package centers around a small set of concepts:
//
//   - State, the shared key/value context of a workflow
//   - Actions and Steps, the units of work and their execution policy
//   - Scopes, the three ordered step lists (normal, error, exit)
//   - Tagged step failures and outcomes
//   - Observability
//
// # State
//
// State is a mutable mapping from key to value. Every step's result is
// recorded under the step's name, so a step registered later can read it by
// declaring that name as a parameter. Two reserved keys act as control
// flags: "cancel" (cooperative cancellation) and "error" (set once a normal
// step failure escapes its scope). Failures are recorded under
// "<scope>_error" as a ScopeFailure.
//
// # Steps and Step Functions
//
// A step is backed by a StepFunc:
//
//	type StepFunc func(ctx context.Context, args Args) (any, error)
//
// The engine resolves args from the state using the parameter keys declared
// when the step was registered. Declaring the reserved parameter "ctx"
// passes the whole *State instead. Arguments are resolved on every attempt,
// so a retry observes values written by the previous attempt.
//
// Step functions are expected to:
//
//   - Return promptly when ctx is cancelled (timeouts cancel ctx).
//   - Treat bound values as read-only unless they own them.
//   - Use State only when they declared the context parameter.
//
// # Failures
//
// Every failure is reported as a *StepError tagged with a FailureKind
// (KindStep, KindTimeout, KindMissingValue). The retry and fallback logic
// treats all kinds alike; the tag exists for callers and observers.
//
// # Observability
//
// The Observer interface receives workflow, scope, step and state-write
// events. LoggingObserver (log/slog), BasicMetrics and CompositeObserver are
// ready-made implementations; the metrics and monitor packages provide
// Prometheus and live-state mirrors.
package api
