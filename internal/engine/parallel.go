package engine

import (
	"context"
	"fmt"

	"github.com/petrijr/stepflow/internal/pool"
	"github.com/petrijr/stepflow/pkg/api"
)

// Mode selects the pool a parallel step dispatches its branches to.
type Mode int

const (
	// ModeThread runs branches on the shared goroutine pool.
	ModeThread Mode = iota
	// ModeProcess runs branches on the isolated pool: arguments and
	// results cross a serialization boundary and nothing is shared with
	// the state.
	ModeProcess
)

func (m Mode) String() string {
	switch m {
	case ModeThread:
		return "thread"
	case ModeProcess:
		return "process"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

type branchResult struct {
	index int
	res   pool.Result
}

// ParallelFunc builds the function of a parallel step.
//
// Arguments for every branch are resolved from the state before anything
// is dispatched, so all branches see the same inputs. Branches that asked
// for the whole state get a detached copy. The function returns as soon as
// a branch fails; branches already dispatched keep running in the pool.
// On success the results are returned in the order the actions were listed.
func (e *Engine) ParallelFunc(mode Mode, actions []api.Action) api.StepFunc {
	return func(ctx context.Context, _ api.Args) (any, error) {
		p := e.threads
		if mode == ModeProcess {
			p = e.procs
		}

		jobs := make([]pool.Job, len(actions))
		for i, a := range actions {
			args, err := bindArgs(e.state, a.Name, a.Params, true)
			if err != nil {
				return nil, err
			}
			jobs[i] = pool.Job{Name: a.Name, Fn: a.Fn, Args: args}
		}

		// Branches are not cancelled when a sibling fails or the step
		// times out.
		branchCtx := context.WithoutCancel(ctx)

		results := make(chan branchResult, len(jobs))
		for i, job := range jobs {
			ch, err := p.Submit(branchCtx, job)
			if err != nil {
				return nil, fmt.Errorf("parallel branch %s: %w", job.Name, err)
			}
			go func() {
				results <- branchResult{index: i, res: <-ch}
			}()
		}

		out := make([]any, len(jobs))
		for range jobs {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case r := <-results:
				if r.res.Err != nil {
					return nil, fmt.Errorf("parallel branch %s: %w", jobs[r.index].Name, r.res.Err)
				}
				out[r.index] = r.res.Value
			}
		}
		return out, nil
	}
}
