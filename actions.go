package stepflow

import (
	"context"
	"fmt"
	"time"

	"github.com/petrijr/stepflow/pkg/api"
)

// Fn wraps a raw StepFunc reading the given state keys. The action is named
// after fn; use Action.Named or the Named step option to override it.
func Fn(fn StepFunc, params ...string) Action {
	mustFn(fn)
	return Action{Name: api.FuncName(fn), Fn: fn, Params: params}
}

// FnState wraps a function that receives the whole workflow state instead of
// individual values.
//
//	stepflow.FnState(func(ctx context.Context, s *stepflow.State) (int, error) {
//	    s.Set("seen", true)
//	    return s.Len(), nil
//	})
func FnState[R any](fn func(context.Context, *State) (R, error)) Action {
	mustFn(fn)
	return Action{
		Name: api.FuncName(fn),
		Fn: func(ctx context.Context, args Args) (any, error) {
			return fn(ctx, args.State)
		},
		Params: []string{ContextParam},
	}
}

// Fn0 wraps a function without parameters.
func Fn0[R any](fn func(context.Context) (R, error)) Action {
	mustFn(fn)
	return Action{
		Name: api.FuncName(fn),
		Fn: func(ctx context.Context, _ Args) (any, error) {
			return fn(ctx)
		},
	}
}

// Fn1 wraps a function of one value bound from state key p1.
func Fn1[A, R any](fn func(context.Context, A) (R, error), p1 string) Action {
	mustFn(fn)
	return Action{
		Name: api.FuncName(fn),
		Fn: func(ctx context.Context, args Args) (any, error) {
			a, err := api.Arg[A](args, 0)
			if err != nil {
				return nil, err
			}
			return fn(ctx, a)
		},
		Params: []string{p1},
	}
}

// Fn2 wraps a function of two values bound from state keys p1 and p2.
func Fn2[A, B, R any](fn func(context.Context, A, B) (R, error), p1, p2 string) Action {
	mustFn(fn)
	return Action{
		Name: api.FuncName(fn),
		Fn: func(ctx context.Context, args Args) (any, error) {
			a, err := api.Arg[A](args, 0)
			if err != nil {
				return nil, err
			}
			b, err := api.Arg[B](args, 1)
			if err != nil {
				return nil, err
			}
			return fn(ctx, a, b)
		},
		Params: []string{p1, p2},
	}
}

// Fn3 wraps a function of three values bound from state keys p1, p2 and p3.
func Fn3[A, B, C, R any](fn func(context.Context, A, B, C) (R, error), p1, p2, p3 string) Action {
	mustFn(fn)
	return Action{
		Name: api.FuncName(fn),
		Fn: func(ctx context.Context, args Args) (any, error) {
			a, err := api.Arg[A](args, 0)
			if err != nil {
				return nil, err
			}
			b, err := api.Arg[B](args, 1)
			if err != nil {
				return nil, err
			}
			c, err := api.Arg[C](args, 2)
			if err != nil {
				return nil, err
			}
			return fn(ctx, a, b, c)
		},
		Params: []string{p1, p2, p3},
	}
}

// Value returns an action that yields v. Handy for seeding a value
// mid-workflow or as a trivial fallback.
func Value(name string, v any) Action {
	return Action{
		Name: name,
		Fn: func(context.Context, Args) (any, error) {
			return v, nil
		},
	}
}

// Sleep returns an action that waits for d and yields nil, or returns
// ctx.Err if the context ends first.
func Sleep(name string, d time.Duration) Action {
	return Action{
		Name: name,
		Fn: func(ctx context.Context, _ Args) (any, error) {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-t.C:
				return nil, nil
			}
		},
	}
}

// Branch collects actions for AddCondStep.
func Branch(actions ...Action) []Action {
	return actions
}

func mustFn[F any](fn F) {
	if api.FuncName(fn) == "" {
		panic(fmt.Sprintf("stepflow: nil or invalid step function %T", fn))
	}
}
