package engine

import (
	"fmt"

	"github.com/petrijr/stepflow/pkg/api"
)

// bindArgs resolves params against the state.
//
// If params contains the reserved context parameter the whole state is
// passed instead of positional values; with snapshot set that state is a
// detached copy. Otherwise each key is looked up in declaration order and a
// missing key fails with KindMissingValue.
func bindArgs(state *api.State, step string, params []string, snapshot bool) (api.Args, error) {
	for _, p := range params {
		if p == api.ContextParam || p == api.ContextParamLong {
			if snapshot {
				return api.Args{State: api.NewState(state.Snapshot())}, nil
			}
			return api.Args{State: state}, nil
		}
	}

	values := make([]any, len(params))
	for i, key := range params {
		v, ok := state.Lookup(key)
		if !ok {
			return api.Args{}, api.NewStepError(api.KindMissingValue, step,
				fmt.Errorf("%w: %q", api.ErrMissingValue, key))
		}
		values[i] = v
	}
	return api.Args{Values: values}, nil
}
