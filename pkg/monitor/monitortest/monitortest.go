// Package monitortest provides a conformance suite for monitor.Store
// implementations.
package monitortest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/petrijr/stepflow/pkg/api"
	"github.com/petrijr/stepflow/pkg/monitor"
)

// BaseTime is the start time of the first run written by RunStoreTests.
var BaseTime = time.Unix(1_700_000_000, 0)

// RunStoreTests exercises the behaviour every monitor.Store shares.
// newStore is called once per subtest and must return an empty store.
func RunStoreTests(t *testing.T, newStore func(t *testing.T) monitor.Store) {
	t.Run("StartPutGet", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.StartRun(ctx, api.RunInfo{ID: "r1", Workflow: "orders"}, BaseTime))
		require.NoError(t, s.PutValue(ctx, "r1", "count", 3))
		require.NoError(t, s.PutValue(ctx, "r1", "name", "gopher"))
		require.NoError(t, s.PutValue(ctx, "r1", "nothing", nil))

		r, err := s.GetRun(ctx, "r1")
		require.NoError(t, err)
		require.Equal(t, "r1", r.ID)
		require.Equal(t, "orders", r.Workflow)
		require.Equal(t, monitor.StatusRunning, r.Status)
		require.True(t, BaseTime.Equal(r.StartedAt))
		require.Nil(t, r.FinishedAt)
		require.Equal(t, map[string]any{"count": 3, "name": "gopher", "nothing": nil}, r.Values)
	})

	t.Run("PutValueOverwrites", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.StartRun(ctx, api.RunInfo{ID: "r1", Workflow: "wf"}, BaseTime))
		require.NoError(t, s.PutValue(ctx, "r1", "step", 1))
		require.NoError(t, s.PutValue(ctx, "r1", "step", 2))

		r, err := s.GetRun(ctx, "r1")
		require.NoError(t, err)
		require.Equal(t, 2, r.Values["step"])
	})

	t.Run("PortableValues", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.StartRun(ctx, api.RunInfo{ID: "r1", Workflow: "wf"}, BaseTime))
		rec := api.ScopeFailure{Step: "charge", Err: context.DeadlineExceeded}
		require.NoError(t, s.PutValue(ctx, "r1", api.ScopeErrorKey(api.ScopeNormal), rec))

		r, err := s.GetRun(ctx, "r1")
		require.NoError(t, err)
		require.Equal(t,
			map[string]any{"step": "charge", "error": context.DeadlineExceeded.Error()},
			r.Values[api.ScopeErrorKey(api.ScopeNormal)])
	})

	t.Run("FinishRun", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.StartRun(ctx, api.RunInfo{ID: "r1", Workflow: "wf"}, BaseTime))
		finished := BaseTime.Add(2 * time.Second)
		require.NoError(t, s.FinishRun(ctx, "r1", monitor.StatusFailed, "boom", finished))

		r, err := s.GetRun(ctx, "r1")
		require.NoError(t, err)
		require.Equal(t, monitor.StatusFailed, r.Status)
		require.Equal(t, "boom", r.Error)
		require.NotNil(t, r.FinishedAt)
		require.True(t, finished.Equal(*r.FinishedAt))
	})

	t.Run("StartRunResets", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.StartRun(ctx, api.RunInfo{ID: "r1", Workflow: "wf"}, BaseTime))
		require.NoError(t, s.PutValue(ctx, "r1", "stale", true))
		require.NoError(t, s.FinishRun(ctx, "r1", monitor.StatusCompleted, "", BaseTime.Add(time.Second)))

		require.NoError(t, s.StartRun(ctx, api.RunInfo{ID: "r1", Workflow: "wf"}, BaseTime.Add(time.Minute)))
		r, err := s.GetRun(ctx, "r1")
		require.NoError(t, err)
		require.Equal(t, monitor.StatusRunning, r.Status)
		require.Nil(t, r.FinishedAt)
		require.Empty(t, r.Values)
	})

	t.Run("UnknownRun", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.GetRun(ctx, "missing")
		require.ErrorIs(t, err, monitor.ErrRunNotFound)
		require.ErrorIs(t, s.PutValue(ctx, "missing", "k", 1), monitor.ErrRunNotFound)
		require.ErrorIs(t, s.FinishRun(ctx, "missing", monitor.StatusCompleted, "", BaseTime), monitor.ErrRunNotFound)
	})

	t.Run("ListRunsRecentFirst", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		for i, id := range []string{"a", "b", "c"} {
			at := BaseTime.Add(time.Duration(i) * time.Second)
			require.NoError(t, s.StartRun(ctx, api.RunInfo{ID: id, Workflow: "wf"}, at))
			require.NoError(t, s.PutValue(ctx, id, "i", i))
		}

		runs, err := s.ListRuns(ctx, 0)
		require.NoError(t, err)
		require.Equal(t, []string{"c", "b", "a"}, RunIDs(runs))
		for _, r := range runs {
			require.Empty(t, r.Values, "list results carry no values")
		}

		runs, err = s.ListRuns(ctx, 2)
		require.NoError(t, err)
		require.Equal(t, []string{"c", "b"}, RunIDs(runs))
	})
}

// RunIDs returns the IDs of runs in order.
func RunIDs(runs []*monitor.Run) []string {
	ids := make([]string, len(runs))
	for i, r := range runs {
		ids[i] = r.ID
	}
	return ids
}

