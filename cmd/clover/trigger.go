package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/clover/internal/app"
	"github.com/Ramsey-B/clover/pkg/models"
)

func newTriggerCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "trigger <trigger> <entity-type> <entity-id>",
		Short: "Run the automation rules of a lifecycle event",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			trigger := models.TriggerType(args[0])
			if !trigger.IsValid() {
				return fmt.Errorf("unknown trigger %q", args[0])
			}
			entityType := models.EntityType(args[1])
			if entityType != trigger.EntityType() {
				return fmt.Errorf("trigger %s fires for %s entities, not %q", trigger, trigger.EntityType(), args[1])
			}

			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				outcomes, err := a.Automation.ProcessEvent(ctx, models.LifecycleEvent{
					Trigger:    trigger,
					EntityType: entityType,
					EntityID:   args[2],
					OccurredAt: time.Now().UTC(),
				})
				if err != nil {
					return err
				}
				return printJSON(cmd, outcomes)
			})
		},
	}
}
