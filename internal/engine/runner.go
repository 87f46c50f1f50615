package engine

import (
	"context"

	"github.com/petrijr/stepflow/pkg/api"
)

// runScope executes the steps of scope in registration order.
//
// The cancellation flag is checked before every step. A successful result
// is recorded under the outcome's name. When a step's fallback produced the
// result and the step does not continue on error, the scope stops there.
// A failure is recorded under <scope>_error and ends the scope unless the
// step continues on error.
func (e *Engine) runScope(ctx context.Context, scope api.Scope) error {
	steps := e.Steps(scope)
	if len(steps) == 0 {
		return nil
	}

	e.observer.OnScopeStart(ctx, runFromContext(ctx), scope)

	for _, step := range steps {
		if e.state.Cancelled() {
			return nil
		}

		out := e.execute(ctx, scope, step)
		if out.Failed() {
			e.record(api.ScopeErrorKey(scope), api.ScopeFailure{Step: step.Name, Err: out.Err})
			if !step.ContinueOnError {
				return out.Err
			}
			continue
		}

		e.record(out.Name, out.Value)

		if step.Fallback != nil && out.Name == step.Fallback.Name && !step.ContinueOnError {
			return nil
		}
	}
	return nil
}
