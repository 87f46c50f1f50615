package main

import (
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	"github.com/petrijr/stepflow"
	"github.com/petrijr/stepflow/internal/codec"
	"github.com/petrijr/stepflow/pkg/monitor"
)

func newRunCmd(a *app) *cobra.Command {
	var (
		orderID    string
		failCharge bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the demo pipeline once and print the final state",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, closeStore, err := openStore(ctx, a.cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			wf := newDemoWorkflow(demoOptions{
				failCharge: failCharge,
				logger:     a.logger,
				observers:  []stepflow.Observer{monitor.NewMirror(store, a.logger)},
			})
			defer wf.Close()

			runErr := wf.Run(ctx, demoSeed(orderID))
			if err := writeState(cmd.OutOrStdout(), wf.State()); err != nil {
				return err
			}
			return runErr
		},
	}

	cmd.Flags().StringVar(&orderID, "order-id", "A-1001", "order identifier to seed the pipeline with")
	cmd.Flags().BoolVar(&failCharge, "fail-charge", false, "make every charge attempt fail to exercise the error scope")
	return cmd
}

// writeState prints the state as indented JSON. Error values are written as
// their messages.
func writeState(w io.Writer, st *stepflow.State) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(codec.Portable(st.Snapshot()))
}
