package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/clover/internal/app"
	"github.com/Ramsey-B/clover/pkg/sweeper"
)

func newSweepCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep <task>",
		Short: "Run one sweeper task once",
		Long: `Run one sweeper task a single time, for use from an external scheduler.

Tasks:
  expired-tenders  escalate waterfalls whose current tender timed out
  new-shipments    auto-assign shipments not yet attempted`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{sweeper.TaskExpiredTenders, sweeper.TaskNewShipments},
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if err := a.Sweeper.RunOnce(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Sweep %s completed\n", args[0])
				return nil
			})
		},
	}
}
