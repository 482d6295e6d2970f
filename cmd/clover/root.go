package main

import (
	"context"
	"encoding/json"

	"github.com/Gobusters/ectologger"
	"github.com/spf13/cobra"

	"github.com/Ramsey-B/clover/config"
	"github.com/Ramsey-B/clover/internal/app"
	"github.com/Ramsey-B/clover/pkg/appctx"
)

type appFactory func(ctx context.Context, cfg *config.Config, logger ectologger.Logger) (*app.App, error)

// rootOptions holds global flags and the collaborators shared by subcommands.
type rootOptions struct {
	EnvFiles []string
	Actor    string

	config  *config.Config
	logger  ectologger.Logger
	openApp appFactory
}

func newRootOptions() *rootOptions {
	return &rootOptions{
		openApp: func(ctx context.Context, cfg *config.Config, logger ectologger.Logger) (*app.App, error) {
			return app.New(ctx, cfg, logger)
		},
	}
}

func newRootCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "clover",
		Short:         "Carrier selection and tender waterfalls",
		Long:          "Clover picks carriers for shipments, runs tender waterfalls and applies automation rules.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.config == nil {
				cfg, err := config.Load(opts.EnvFiles...)
				if err != nil {
					return err
				}
				opts.config = cfg
			}
			if opts.logger == nil {
				logger, err := app.NewLogger(opts.config)
				if err != nil {
					return err
				}
				opts.logger = logger
			}

			ctx := appctx.SetSource(cmd.Context(), appctx.SourceCLI)
			ctx = appctx.SetActor(ctx, opts.Actor)
			cmd.SetContext(ctx)
			return nil
		},
	}

	cmd.PersistentFlags().StringSliceVar(&opts.EnvFiles, "env-file", []string{".env"}, "env files to load before reading the environment")
	cmd.PersistentFlags().StringVar(&opts.Actor, "actor", "cli", "actor recorded on changes made by this command")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newMigrateCommand(opts))
	cmd.AddCommand(newSweepCommand(opts))
	cmd.AddCommand(newRulesCommand(opts))
	cmd.AddCommand(newTriggerCommand(opts))
	cmd.AddCommand(newWaterfallCommand(opts))
	return cmd
}

// withApp builds the App, runs fn and closes the App.
func (o *rootOptions) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	ctx := cmd.Context()
	a, err := o.openApp(ctx, o.config, o.logger)
	if err != nil {
		return err
	}
	defer a.Close(ctx)
	return fn(ctx, a)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
