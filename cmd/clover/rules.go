package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/clover/internal/app"
	"github.com/Ramsey-B/clover/pkg/automation"
	"github.com/Ramsey-B/clover/pkg/models"
)

func newRulesCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage automation rules",
	}
	cmd.AddCommand(newRulesImportCommand(opts))
	cmd.AddCommand(newRulesValidateCommand(opts))
	cmd.AddCommand(newRulesListCommand(opts))
	cmd.AddCommand(newRulesTestCommand(opts))
	return cmd
}

func newRulesImportCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Validate and save every rule in a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				imported, err := a.Rules.ImportRules(ctx, data)
				if err != nil {
					return err
				}
				for _, rule := range imported {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", rule.ID, rule.Trigger, rule.Name)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d rules\n", len(imported))
				return nil
			})
		},
	}
}

func newRulesValidateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Check a YAML rule file without saving it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			parsed, err := automation.ParseRules(data)
			if err != nil {
				return err
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				failed := 0
				for i := range parsed {
					if err := a.Rules.ValidateRule(&parsed[i]); err != nil {
						failed++
						fmt.Fprintf(cmd.OutOrStdout(), "INVALID %s: %v\n", parsed[i].Name, err)
						continue
					}
					fmt.Fprintf(cmd.OutOrStdout(), "ok      %s\n", parsed[i].Name)
				}
				if failed > 0 {
					return fmt.Errorf("%d of %d rules are invalid", failed, len(parsed))
				}
				return nil
			})
		},
	}
}

func newRulesListCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List automation rules in evaluation order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				rules, err := a.Rules.ListRules(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd, rules)
			})
		},
	}
}

func newRulesTestCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "test <entity-type> <entity-id>",
		Short: "Dry-run every rule against one entity",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			entityType := models.EntityType(args[0])
			if !entityType.IsValid() {
				return fmt.Errorf("unknown entity type %q", args[0])
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				report, err := a.Automation.TestRules(ctx, entityType, args[1])
				if err != nil {
					return err
				}
				return printJSON(cmd, report)
			})
		},
	}
}
