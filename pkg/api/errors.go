package api

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout marks a step attempt that exceeded its timeout.
	ErrTimeout = errors.New("step timed out")

	// ErrMissingValue is returned when a declared parameter has no entry in the state.
	ErrMissingValue = errors.New("missing state value")

	// ErrArgumentType is returned by typed steps when a bound value has the wrong type.
	ErrArgumentType = errors.New("argument type mismatch")

	// ErrStepNotFound is returned when a step lookup by name fails.
	ErrStepNotFound = errors.New("step not found")

	// ErrClosed is returned when work is submitted to a closed workflow or pool.
	ErrClosed = errors.New("workflow closed")
)

// FailureKind tags why a step failed.
type FailureKind int

const (
	// KindStep is a failure returned (or panicked) by the step function.
	KindStep FailureKind = iota
	// KindTimeout is an attempt that exceeded the step timeout.
	KindTimeout
	// KindMissingValue is a parameter the binder could not resolve.
	KindMissingValue
)

func (k FailureKind) String() string {
	switch k {
	case KindStep:
		return "step"
	case KindTimeout:
		return "timeout"
	case KindMissingValue:
		return "missing_value"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// StepError is the tagged failure of a step. The retry and fallback logic
// handles every kind the same way; the tag is for callers and observers.
type StepError struct {
	Kind FailureKind
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %q: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// NewStepError builds a StepError. If err already is a *StepError for the
// same step it is returned unchanged.
func NewStepError(kind FailureKind, step string, err error) *StepError {
	var se *StepError
	if errors.As(err, &se) && se.Step == step {
		return se
	}
	return &StepError{Kind: kind, Step: step, Err: err}
}

// KindOf returns the failure kind of err, or KindStep if err is not a StepError.
func KindOf(err error) FailureKind {
	var se *StepError
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindStep
}

// Outcome is the explicit result of executing one step: either a value
// recorded under Name, or a failure.
type Outcome struct {
	// Name is the step whose result this is. It differs from the executed
	// step when its fallback produced the value.
	Name  string
	Value any
	Err   *StepError
}

// Failed reports whether the outcome carries a failure.
func (o Outcome) Failed() bool { return o.Err != nil }

// Error returns the failure as an error, or nil.
func (o Outcome) Error() error {
	if o.Err == nil {
		return nil
	}
	return o.Err
}
