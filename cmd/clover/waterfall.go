package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Ramsey-B/clover/internal/app"
)

func newWaterfallCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "waterfall",
		Short: "Inspect and steer tender waterfalls",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status <waterfall-id>",
		Short: "Show a waterfall and its tenders",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				view, err := a.Waterfalls.GetWaterfallStatus(ctx, id)
				if err != nil {
					return err
				}
				return printJSON(cmd, view)
			})
		},
	})

	var reason string
	cancel := &cobra.Command{
		Use:   "cancel <waterfall-id>",
		Short: "Cancel an active waterfall and its outstanding tender",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				result, err := a.Waterfalls.CancelWaterfall(ctx, id, reason)
				if err != nil {
					return err
				}
				return printJSON(cmd, result)
			})
		},
	}
	cancel.Flags().StringVar(&reason, "reason", "cancelled from cli", "reason recorded on the cancelled tender")
	cmd.AddCommand(cancel)

	cmd.AddCommand(&cobra.Command{
		Use:   "escalate <waterfall-id>",
		Short: "Skip the current carrier and tender the next one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				escalation, err := a.Waterfalls.EscalateWaterfall(ctx, id)
				if err != nil {
					return err
				}
				return printJSON(cmd, escalation)
			})
		},
	})
	return cmd
}

func parseID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid waterfall id %q: %w", raw, err)
	}
	return id, nil
}
