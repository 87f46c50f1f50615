package engine

import (
	"context"

	"github.com/petrijr/stepflow/pkg/api"
)

// CondFunc builds the function of a conditional step.
//
// prev names the step whose recorded result is the condition; an empty
// prev reads as false. The selected branch's actions run in order as ad-hoc
// steps, each result recorded under the action's own name as it completes.
// The function returns the last branch result.
func (e *Engine) CondFunc(scope api.Scope, prev string, onTrue, onFalse []api.Action) api.StepFunc {
	return func(ctx context.Context, _ api.Args) (any, error) {
		var cond any
		if prev != "" {
			cond = e.state.Get(prev)
		}

		branch := onFalse
		if api.Truthy(cond) {
			branch = onTrue
		}

		var last any
		for _, a := range branch {
			out := e.execute(ctx, scope, api.NewStep(a))
			if out.Failed() {
				return nil, out.Err
			}
			e.record(out.Name, out.Value)
			last = out.Value
		}
		return last, nil
	}
}
