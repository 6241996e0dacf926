package app

import (
	"github.com/spf13/cobra"
)

func newCancelCmd() *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "cancel <instance-id>",
		Short: "Cancel a workflow instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			eng, store, err := newEngine(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := eng.Cancel(ctx, args[0], reason); err != nil {
				return err
			}
			cmd.Printf("cancelled %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "Reason recorded on the instance")
	return cmd
}
