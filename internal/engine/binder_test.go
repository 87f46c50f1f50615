package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/petrijr/stepflow/pkg/api"
)

func TestBindArgs_PositionalInDeclarationOrder(t *testing.T) {
	state := api.NewState(map[string]any{"a": 1, "b": "two"})

	args, err := bindArgs(state, "s", []string{"b", "a"}, false)
	require.NoError(t, err)
	require.Equal(t, []any{"two", 1}, args.Values)
	require.Nil(t, args.State)
}

func TestBindArgs_NoParams(t *testing.T) {
	args, err := bindArgs(api.NewState(nil), "s", nil, false)
	require.NoError(t, err)
	require.Equal(t, 0, args.Len())
}

func TestBindArgs_MissingValue(t *testing.T) {
	state := api.NewState(map[string]any{"a": 1})

	_, err := bindArgs(state, "s", []string{"a", "nope"}, false)
	require.ErrorIs(t, err, api.ErrMissingValue)

	var se *api.StepError
	require.True(t, errors.As(err, &se))
	require.Equal(t, api.KindMissingValue, se.Kind)
	require.Equal(t, "s", se.Step)
	require.Contains(t, err.Error(), `"nope"`)
}

func TestBindArgs_NilValueIsPresent(t *testing.T) {
	state := api.NewState(map[string]any{"a": nil})

	args, err := bindArgs(state, "s", []string{"a"}, false)
	require.NoError(t, err)
	require.Equal(t, []any{nil}, args.Values)
}

func TestBindArgs_ContextParamPassesLiveState(t *testing.T) {
	state := api.NewState(nil)

	for _, p := range []string{api.ContextParam, api.ContextParamLong} {
		args, err := bindArgs(state, "s", []string{"ignored", p}, false)
		require.NoError(t, err)
		require.Same(t, state, args.State)
		require.Empty(t, args.Values)
	}
}

func TestBindArgs_SnapshotDetachesState(t *testing.T) {
	state := api.NewState(map[string]any{"k": "v"})

	args, err := bindArgs(state, "s", []string{api.ContextParam}, true)
	require.NoError(t, err)
	require.NotSame(t, state, args.State)
	require.Equal(t, "v", args.State.Get("k"))

	args.State.Set("k", "changed")
	require.Equal(t, "v", state.Get("k"))
}
