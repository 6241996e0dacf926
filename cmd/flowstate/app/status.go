package app

import (
	"strings"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <instance-id>",
		Short: "Show the state of a workflow instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			eng, store, err := newEngine(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			instance, err := eng.Get(ctx, args[0])
			if err != nil {
				return err
			}

			cmd.Printf("ID:        %s\n", instance.ID)
			if instance.Definition != nil {
				cmd.Printf("Workflow:  %s (version %s)\n",
					instance.Definition.Name(), instance.Definition.Version())
			}
			cmd.Printf("State:     %s\n", instance.State)
			cmd.Printf("Progress:  %.0f%%\n", instance.Progress())
			if instance.CurrentStepID != "" {
				cmd.Printf("Current:   %s\n", instance.CurrentStepID)
			}
			if len(instance.CompletedSteps) > 0 {
				cmd.Printf("Completed: %s\n", strings.Join(instance.CompletedSteps, ", "))
			}
			for _, failure := range instance.FailedSteps {
				cmd.Printf("Failed:    %s: %s\n", failure.StepID, failure.Error)
			}
			if instance.ErrorMessage != "" {
				cmd.Printf("Error:     %s\n", instance.ErrorMessage)
			}
			cmd.Printf("Updated:   %s\n", instance.UpdatedAt.Format("2006-01-02 15:04:05 MST"))
			return nil
		},
	}
}
