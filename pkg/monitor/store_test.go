package monitor_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/petrijr/stepflow/pkg/api"
	"github.com/petrijr/stepflow/pkg/monitor"
	"github.com/petrijr/stepflow/pkg/monitor/monitortest"
)

func TestMemoryStore(t *testing.T) {
	monitortest.RunStoreTests(t, func(t *testing.T) monitor.Store { return monitor.NewMemoryStore() })
}

func TestMemoryStore_DetachesValues(t *testing.T) {
	s := monitor.NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.StartRun(ctx, api.RunInfo{ID: "r1", Workflow: "wf"}, monitortest.BaseTime))
	items := []any{"a", "b"}
	require.NoError(t, s.PutValue(ctx, "r1", "items", items))
	items[0] = "changed"

	r, err := s.GetRun(ctx, "r1")
	require.NoError(t, err)
	require.Equal(t, []any{"a", "b"}, r.Values["items"])
}

func TestSQLiteStore(t *testing.T) {
	monitortest.RunStoreTests(t, func(t *testing.T) monitor.Store {
		s, err := monitor.OpenSQLiteStore(":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestSQLiteStore_File(t *testing.T) {
	path := t.TempDir() + "/monitor.db"
	ctx := context.Background()

	s, err := monitor.OpenSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.StartRun(ctx, api.RunInfo{ID: "r1", Workflow: "wf"}, monitortest.BaseTime))
	require.NoError(t, s.PutValue(ctx, "r1", "answer", 42))
	require.NoError(t, s.Close())

	reopened, err := monitor.OpenSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	r, err := reopened.GetRun(ctx, "r1")
	require.NoError(t, err)
	require.Equal(t, 42, r.Values["answer"])
}
