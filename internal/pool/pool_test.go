package pool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/petrijr/stepflow/pkg/api"
)

func wait(t *testing.T, ch <-chan Result) Result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for job result")
		return Result{}
	}
}

func TestPool_DefaultSizes(t *testing.T) {
	p := New(0)
	defer p.Close()
	require.Positive(t, p.Size())
	require.False(t, p.Isolated())

	ip := NewIsolated(3)
	defer ip.Close()
	require.Equal(t, 3, ip.Size())
	require.True(t, ip.Isolated())
}

func TestPool_SubmitRunsJob(t *testing.T) {
	p := New(2)
	defer p.Close()

	ch, err := p.Submit(context.Background(), Job{
		Name: "double",
		Fn: func(ctx context.Context, args api.Args) (any, error) {
			n, err := api.Arg[int](args, 0)
			return n * 2, err
		},
		Args: api.Args{Values: []any{21}},
	})
	require.NoError(t, err)

	r := wait(t, ch)
	require.NoError(t, r.Err)
	require.Equal(t, 42, r.Value)
}

func TestPool_BoundsConcurrency(t *testing.T) {
	p := New(2)
	defer p.Close()

	var running, peak atomic.Int32
	fn := func(ctx context.Context, _ api.Args) (any, error) {
		n := running.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		running.Add(-1)
		return nil, nil
	}

	var chans []<-chan Result
	for range 6 {
		ch, err := p.Submit(context.Background(), Job{Name: "w", Fn: fn})
		require.NoError(t, err)
		chans = append(chans, ch)
	}
	for _, ch := range chans {
		require.NoError(t, wait(t, ch).Err)
	}
	require.LessOrEqual(t, peak.Load(), int32(2))
}

func TestPool_RecoversPanics(t *testing.T) {
	p := New(1)
	defer p.Close()

	ch, err := p.Submit(context.Background(), Job{
		Name: "boom",
		Fn:   func(ctx context.Context, _ api.Args) (any, error) { panic("kaboom") },
	})
	require.NoError(t, err)

	r := wait(t, ch)
	require.Error(t, r.Err)
	require.Contains(t, r.Err.Error(), "kaboom")
}

func TestPool_SubmitAfterCloseFails(t *testing.T) {
	p := New(1)
	p.Close()
	p.Close()

	_, err := p.Submit(context.Background(), Job{Name: "late", Fn: func(context.Context, api.Args) (any, error) { return nil, nil }})
	require.ErrorIs(t, err, api.ErrClosed)
}

func TestPool_CloseWaitsForRunningJobs(t *testing.T) {
	p := New(1)

	var done atomic.Bool
	_, err := p.Submit(context.Background(), Job{
		Name: "slow",
		Fn: func(context.Context, api.Args) (any, error) {
			time.Sleep(30 * time.Millisecond)
			done.Store(true)
			return nil, nil
		},
	})
	require.NoError(t, err)

	p.Close()
	require.True(t, done.Load())
}

func TestIsolatedPool_ArgumentsAreDetached(t *testing.T) {
	p := NewIsolated(1)
	defer p.Close()

	shared := []any{1, 2, 3}
	state := api.NewState(map[string]any{"k": "v"})

	ch, err := p.Submit(context.Background(), Job{
		Name: "mutate",
		Fn: func(ctx context.Context, args api.Args) (any, error) {
			list := args.Values[0].([]any)
			list[0] = 100
			args.State.Set("k", "changed")
			return list, nil
		},
		Args: api.Args{Values: []any{shared}, State: state},
	})
	require.NoError(t, err)

	r := wait(t, ch)
	require.NoError(t, r.Err)
	require.Equal(t, []any{100, 2, 3}, r.Value)
	require.Equal(t, 1, shared[0])
	require.Equal(t, "v", state.Get("k"))
}

func TestIsolatedPool_ErrorResultsArePortable(t *testing.T) {
	p := NewIsolated(1)
	defer p.Close()

	ch, err := p.Submit(context.Background(), Job{
		Name: "errs",
		Fn: func(context.Context, api.Args) (any, error) {
			return []any{errors.New("inner")}, nil
		},
	})
	require.NoError(t, err)

	r := wait(t, ch)
	require.NoError(t, r.Err)
	require.Equal(t, []any{"inner"}, r.Value)
}

type opaque struct{ ch chan int }

func TestIsolatedPool_UnencodableArgumentsFailAtSubmit(t *testing.T) {
	p := NewIsolated(1)
	defer p.Close()

	_, err := p.Submit(context.Background(), Job{
		Name: "bad",
		Fn:   func(context.Context, api.Args) (any, error) { return nil, nil },
		Args: api.Args{Values: []any{opaque{ch: make(chan int)}}},
	})
	require.Error(t, err)
}
