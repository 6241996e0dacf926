package app

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/flowstate-dev/flowstate/pkg/storage"
	"github.com/flowstate-dev/flowstate/pkg/workflow"
)

func newListCmd() *cobra.Command {
	var (
		stateFilter string
		nameFilter  string
		limit       int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List workflow instances",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			eng, store, err := newEngine(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			summaries, err := eng.List(ctx, storage.Filter{
				State: workflow.State(stateFilter),
				Name:  nameFilter,
				Limit: limit,
			})
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 2, ' ', 0)
			defer func() { _ = w.Flush() }()

			fmt.Fprintln(w, "ID\tWORKFLOW\tSTATE\tPROGRESS\tUPDATED")
			for _, s := range summaries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%.0f%%\t%s\n",
					s.ID, s.Name, s.State, s.Progress,
					s.UpdatedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&stateFilter, "state", "", "Filter by lifecycle state")
	cmd.Flags().StringVar(&nameFilter, "workflow", "", "Filter by workflow name")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of instances to list")
	return cmd
}
