package api

import (
	"context"
	"fmt"
	"reflect"
	"runtime"
	"strings"
	"time"
)

// Scope identifies one of the three ordered step lists of a workflow.
type Scope string

const (
	ScopeNormal Scope = "normal"
	ScopeError  Scope = "error"
	ScopeExit   Scope = "exit"
)

// Scopes lists the scopes in execution order.
var Scopes = []Scope{ScopeNormal, ScopeError, ScopeExit}

// StepFunc is the unit of work behind every step.
//
// args holds the values the binder resolved for the step's declared
// parameters, in declaration order. The context is cancelled when the
// step's timeout expires.
type StepFunc func(ctx context.Context, args Args) (any, error)

// Args carries the bound arguments of one step invocation.
type Args struct {
	// Values are the resolved parameter values in declaration order.
	Values []any
	// State is the workflow state for steps that declared the reserved
	// context parameter, nil otherwise.
	State *State
}

// Len returns the number of positional values.
func (a Args) Len() int { return len(a.Values) }

// Arg returns the i-th bound value converted to T.
//
// A nil value yields the zero T. A value of another type fails with
// ErrArgumentType.
func Arg[T any](args Args, i int) (T, error) {
	var zero T
	if i < 0 || i >= len(args.Values) {
		return zero, fmt.Errorf("%w: index %d out of range (%d values)", ErrArgumentType, i, len(args.Values))
	}
	v := args.Values[i]
	if v == nil {
		return zero, nil
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%w: argument %d is %T, want %T", ErrArgumentType, i, v, zero)
	}
	return t, nil
}

// Action is a callable that has not been registered yet: a function, its
// name, and the state keys it reads.
type Action struct {
	Name   string
	Fn     StepFunc
	Params []string
}

// Named returns a copy of a with the given name.
func (a Action) Named(name string) Action {
	a.Name = name
	return a
}

// Step is a registered unit of work plus its execution policy.
type Step struct {
	Name   string
	Fn     StepFunc
	Params []string

	// Timeout bounds each attempt. Zero means no bound.
	Timeout time.Duration
	// Retries is the number of extra attempts; total attempts = Retries+1.
	Retries int
	// Backoff is the delay policy between attempts. Nil retries immediately.
	Backoff Backoff
	// ContinueOnError keeps the owning scope running after this step fails.
	ContinueOnError bool
	// Fallback runs once in place of the step when an attempt fails.
	Fallback *Step
}

// NewStep wraps an action into a step with the default policy.
func NewStep(a Action) *Step {
	return &Step{
		Name:   a.Name,
		Fn:     a.Fn,
		Params: append([]string(nil), a.Params...),
	}
}

// WantsState reports whether the step declared the reserved context parameter.
func (s *Step) WantsState() bool {
	for _, p := range s.Params {
		if p == ContextParam || p == ContextParamLong {
			return true
		}
	}
	return false
}

// Attempts returns the total number of attempts the step allows.
func (s *Step) Attempts() int {
	if s.Retries < 0 {
		return 1
	}
	return s.Retries + 1
}

// Backoff computes the delay before a retry.
type Backoff interface {
	// Delay returns how long to wait before retry n (1-indexed).
	Delay(retry int) time.Duration
}

// FuncName derives a short name from a Go function value: the last path
// element without package qualifier or method-value suffix.
func FuncName(fn any) string {
	if fn == nil {
		return ""
	}
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func {
		return ""
	}
	f := runtime.FuncForPC(v.Pointer())
	if f == nil {
		return ""
	}
	name := strings.TrimSuffix(f.Name(), "-fm")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return name
}
