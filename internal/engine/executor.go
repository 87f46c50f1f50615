package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/petrijr/stepflow/pkg/api"
)

// execute runs one step with its retry, timeout and fallback policy.
//
// A failed attempt hands over to the fallback immediately when one is
// attached; the fallback runs once through this same procedure and its
// outcome replaces the step's. Without a fallback the step is retried until
// its attempts are exhausted and the last failure is returned.
func (e *Engine) execute(ctx context.Context, scope api.Scope, step *api.Step) api.Outcome {
	run := runFromContext(ctx)

	var last *api.StepError
	for attempt := 1; attempt <= step.Attempts(); attempt++ {
		if err := ctx.Err(); err != nil {
			return api.Outcome{Name: step.Name, Err: api.NewStepError(api.KindStep, step.Name, err)}
		}

		if attempt > 1 && step.Backoff != nil {
			if err := sleep(ctx, step.Backoff.Delay(attempt-1)); err != nil {
				return api.Outcome{Name: step.Name, Err: api.NewStepError(api.KindStep, step.Name, err)}
			}
		}

		e.observer.OnStepStart(ctx, run, scope, step.Name, attempt)
		start := time.Now()

		v, err := e.attempt(ctx, step)

		e.observer.OnStepCompleted(ctx, run, scope, step.Name, attempt, err, time.Since(start))

		if err == nil {
			return api.Outcome{Name: step.Name, Value: v}
		}

		if !errors.As(err, &last) {
			last = api.NewStepError(api.KindStep, step.Name, err)
		}

		if step.Fallback != nil {
			e.observer.OnFallback(ctx, run, scope, step.Name, step.Fallback.Name, last)
			return e.execute(ctx, scope, step.Fallback)
		}
	}

	return api.Outcome{Name: step.Name, Err: last}
}

type callResult struct {
	value any
	err   error
}

// attempt binds the step's arguments and calls it once, bounded by the
// step timeout if one is set. Every error it returns is a *api.StepError.
func (e *Engine) attempt(ctx context.Context, step *api.Step) (any, error) {
	args, err := bindArgs(e.state, step.Name, step.Params, false)
	if err != nil {
		return nil, err
	}

	if step.Timeout <= 0 {
		v, err := call(ctx, step, args)
		if err != nil {
			return nil, api.NewStepError(api.KindOf(err), step.Name, err)
		}
		return v, nil
	}

	tctx, cancel := context.WithTimeout(ctx, step.Timeout)
	defer cancel()

	done := make(chan callResult, 1)
	go func() {
		v, err := call(tctx, step, args)
		done <- callResult{value: v, err: err}
	}()

	select {
	case r := <-done:
		if r.err == nil {
			return r.value, nil
		}
		if errors.Is(r.err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, timeoutError(step)
		}
		return nil, api.NewStepError(api.KindOf(r.err), step.Name, r.err)
	case <-tctx.Done():
		if err := ctx.Err(); err != nil {
			return nil, api.NewStepError(api.KindStep, step.Name, err)
		}
		// The goroutine is left to finish on its own; its result is dropped.
		return nil, timeoutError(step)
	}
}

func timeoutError(step *api.Step) *api.StepError {
	return api.NewStepError(api.KindTimeout, step.Name,
		fmt.Errorf("%w after %s", api.ErrTimeout, step.Timeout))
}

func call(ctx context.Context, step *api.Step, args api.Args) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in step %s: %v\n%s", step.Name, r, debug.Stack())
		}
	}()
	return step.Fn(ctx, args)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
