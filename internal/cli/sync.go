package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mrlokans/weread2flomo/internal/entrypoint"
	"github.com/mrlokans/weread2flomo/internal/syncer"
)

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one incremental sync and print the report",
		Long: `Run one incremental sync and print the report.

Per-highlight and per-book failures are reported but do not change the exit
code. The command fails only when the run cannot proceed at all, for example
when credentials are missing or the WeRead session has expired.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, rootOpts)
		},
	}

	return cmd
}

func runSync(cmd *cobra.Command, opts *RootOptions) error {
	rt, err := setup(opts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer rt.Close()

	app, err := entrypoint.Build(rt.cfg, rt.logger, opts.Build.Version)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stats, runErr := app.RunOnce(ctx)
	if stats != nil {
		if err := syncer.WriteReport(cmd.OutOrStdout(), *stats); err != nil {
			return err
		}
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
