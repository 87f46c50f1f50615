package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/petrijr/stepflow/pkg/api"
)

func act(name string, fn api.StepFunc, params ...string) api.Action {
	return api.Action{Name: name, Fn: fn, Params: params}
}

func addCond(t *testing.T, e *Engine, prev string, onTrue, onFalse []api.Action) {
	t.Helper()
	mustAdd(t, e, api.ScopeNormal, stepOf("cond:"+prev, e.CondFunc(api.ScopeNormal, prev, onTrue, onFalse)))
}

func TestCond_TruthySelectsTrueBranch(t *testing.T) {
	e := newTestEngine(t, nil)
	mustAdd(t, e, api.ScopeNormal, stepOf("check", returns(true)))
	addCond(t, e, "check",
		[]api.Action{act("yes1", returns("y1")), act("yes2", returns("y2"))},
		[]api.Action{act("no", returns("n"))},
	)

	require.NoError(t, e.Run(context.Background(), nil))

	st := e.State()
	require.Equal(t, "y1", st.Get("yes1"), "every branch step is recorded")
	require.Equal(t, "y2", st.Get("yes2"))
	require.Equal(t, "y2", st.Get("cond:check"), "the conditional records the last branch result")
	_, ran := st.Lookup("no")
	require.False(t, ran)
}

func TestCond_FalsySelectsFalseBranch(t *testing.T) {
	for _, v := range []any{false, 0, "", nil, []int{}} {
		e := newTestEngine(t, nil)
		mustAdd(t, e, api.ScopeNormal, stepOf("check", returns(v)))
		addCond(t, e, "check",
			[]api.Action{act("yes", returns("y"))},
			[]api.Action{act("no", returns("n"))},
		)

		require.NoError(t, e.Run(context.Background(), nil))
		require.Equal(t, "n", e.State().Get("no"), "condition %#v", v)
		_, ran := e.State().Lookup("yes")
		require.False(t, ran, "condition %#v", v)
	}
}

func TestCond_NoPreviousStepIsFalse(t *testing.T) {
	e := newTestEngine(t, nil)
	addCond(t, e, "",
		[]api.Action{act("yes", returns("y"))},
		[]api.Action{act("no", returns("n"))},
	)

	require.NoError(t, e.Run(context.Background(), nil))
	require.Equal(t, "n", e.State().Get("no"))
}

func TestCond_EmptyBranchReturnsNil(t *testing.T) {
	e := newTestEngine(t, nil)
	mustAdd(t, e, api.ScopeNormal, stepOf("check", returns(true)))
	addCond(t, e, "check", nil, []api.Action{act("no", returns("n"))})

	require.NoError(t, e.Run(context.Background(), nil))
	v, ok := e.State().Lookup("cond:check")
	require.True(t, ok)
	require.Nil(t, v)
}

func TestCond_BranchStepsReadEarlierBranchResults(t *testing.T) {
	e := newTestEngine(t, nil)
	mustAdd(t, e, api.ScopeNormal, stepOf("check", returns(1)))
	addCond(t, e, "check", []api.Action{
		act("first", returns(10)),
		act("second", func(ctx context.Context, args api.Args) (any, error) {
			n, err := api.Arg[int](args, 0)
			return n + 1, err
		}, "first"),
	}, nil)

	require.NoError(t, e.Run(context.Background(), nil))
	require.Equal(t, 11, e.State().Get("second"))
}

func TestCond_BranchFailureFailsConditional(t *testing.T) {
	e := newTestEngine(t, nil)
	mustAdd(t, e, api.ScopeNormal, stepOf("check", returns(true)))
	addCond(t, e, "check", []api.Action{
		act("ok", returns(1)),
		act("bad", fails(errBoom)),
		act("never", returns(2)),
	}, nil)

	err := e.Run(context.Background(), nil)
	require.ErrorIs(t, err, errBoom)

	st := e.State()
	require.Equal(t, 1, st.Get("ok"))
	_, ran := st.Lookup("never")
	require.False(t, ran)

	rec, ok := st.Get("normal_error").(api.ScopeFailure)
	require.True(t, ok)
	require.Equal(t, "cond:check", rec.Step)
}

func TestCond_BranchFailureKeepsItsKind(t *testing.T) {
	e := newTestEngine(t, nil)
	mustAdd(t, e, api.ScopeNormal, stepOf("check", returns(true)))
	addCond(t, e, "check", []api.Action{act("needs", returns(1), "absent")}, nil)

	err := e.Run(context.Background(), nil)
	require.ErrorIs(t, err, api.ErrMissingValue)
	require.Equal(t, api.KindMissingValue, api.KindOf(err))

	var se *api.StepError
	require.ErrorAs(t, err, &se)
	require.Equal(t, "cond:check", se.Step)
}
