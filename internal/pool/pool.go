// Package pool provides the bounded worker pools used by parallel steps.
//
// A shared pool runs jobs on goroutines with the bound arguments as given.
// An isolated pool serializes the arguments at submission time and the
// result on completion, so a job never shares memory with the caller.
package pool

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/petrijr/stepflow/internal/codec"
	"github.com/petrijr/stepflow/pkg/api"
)

// Job is one unit of work submitted to a pool.
type Job struct {
	Name string
	Fn   api.StepFunc
	Args api.Args
}

// Result is the outcome of a Job.
type Result struct {
	Value any
	Err   error
}

// Pool runs jobs with bounded concurrency.
type Pool struct {
	size     int64
	sem      *semaphore.Weighted
	isolated bool

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// New returns a shared pool running at most size jobs at a time.
// size <= 0 defaults to runtime.GOMAXPROCS(0) * 4.
func New(size int) *Pool {
	return newPool(size, runtime.GOMAXPROCS(0)*4, false)
}

// NewIsolated returns an isolated pool running at most size jobs at a time.
// size <= 0 defaults to runtime.NumCPU().
//
// Bound values and results must be gob-encodable; register custom types
// with codec.Register.
func NewIsolated(size int) *Pool {
	return newPool(size, runtime.NumCPU(), true)
}

func newPool(size, def int, isolated bool) *Pool {
	if size <= 0 {
		size = def
	}
	return &Pool{
		size:     int64(size),
		sem:      semaphore.NewWeighted(int64(size)),
		isolated: isolated,
	}
}

// Size returns the maximum number of concurrently running jobs.
func (p *Pool) Size() int { return int(p.size) }

// Isolated reports whether jobs run behind a serialization boundary.
func (p *Pool) Isolated() bool { return p.isolated }

// Submit schedules job and returns a channel that receives exactly one
// Result. It does not wait for a free slot.
//
// Cancelling ctx only affects jobs still waiting for a slot; a running job
// sees ctx but is never interrupted by the pool.
func (p *Pool) Submit(ctx context.Context, job Job) (<-chan Result, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil, api.ErrClosed
	}

	run := func(ctx context.Context) (any, error) { return job.Fn(ctx, job.Args) }
	if p.isolated {
		var err error
		if run, err = isolate(job); err != nil {
			return nil, err
		}
	}

	out := make(chan Result, 1)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := p.sem.Acquire(ctx, 1); err != nil {
			out <- Result{Err: err}
			return
		}
		defer p.sem.Release(1)

		v, err := safeRun(ctx, job.Name, run)
		out <- Result{Value: v, Err: err}
	}()
	return out, nil
}

// Close stops accepting jobs and blocks until submitted jobs have finished.
// It is safe to call more than once.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.wg.Wait()
}

func safeRun(ctx context.Context, name string, run func(context.Context) (any, error)) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in parallel branch %s: %v\n%s", name, r, debug.Stack())
		}
	}()
	return run(ctx)
}

// isolate encodes the job's arguments now and returns a runner that
// decodes them into fresh values, calls the function and round-trips the
// result through the codec.
func isolate(job Job) (func(context.Context) (any, error), error) {
	vals, err := codec.EncodeValue(codec.Portable(job.Args.Values))
	if err != nil {
		return nil, fmt.Errorf("branch %s: %w", job.Name, err)
	}
	var snap []byte
	wantState := job.Args.State != nil
	if wantState {
		if snap, err = codec.EncodeValue(codec.Portable(job.Args.State.Snapshot())); err != nil {
			return nil, fmt.Errorf("branch %s: %w", job.Name, err)
		}
	}

	return func(ctx context.Context) (any, error) {
		var args api.Args
		decoded, err := codec.DecodeValue(vals)
		if err != nil {
			return nil, err
		}
		if values, ok := decoded.([]any); ok {
			args.Values = values
		}
		if wantState {
			m, err := codec.DecodeValue(snap)
			if err != nil {
				return nil, err
			}
			values, _ := m.(map[string]any)
			args.State = api.NewState(values)
		}

		v, err := job.Fn(ctx, args)
		if err != nil {
			return nil, err
		}
		return codec.RoundTrip(codec.Portable(v))
	}, nil
}
