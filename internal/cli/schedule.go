package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mrlokans/weread2flomo/internal/entrypoint"
	"github.com/mrlokans/weread2flomo/internal/scheduler"
)

// ScheduleOptions holds flags for the schedule command.
type ScheduleOptions struct {
	Cron       string
	Addr       string
	RunAtStart bool
}

// NewScheduleCommand creates the schedule command.
func NewScheduleCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ScheduleOptions{}

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Sync on a cron schedule and serve status endpoints",
		Long: `Run syncs on a cron schedule until interrupted.

A tick that fires while a sync is still running is skipped. The status server
exposes /health, /api/sync/status, /api/sync/run and /metrics.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchedule(cmd, rootOpts, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Cron, "cron", "", "cron expression, overrides SYNC_SCHEDULE")
	cmd.Flags().StringVar(&opts.Addr, "addr", "", "status server address, overrides STATUS_ADDR")
	cmd.Flags().BoolVar(&opts.RunAtStart, "run-at-start", true, "run one sync immediately")

	return cmd
}

func runSchedule(cmd *cobra.Command, rootOpts *RootOptions, opts *ScheduleOptions) error {
	rt, err := setup(rootOpts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer rt.Close()

	if opts.Cron != "" {
		rt.cfg.Schedule.Cron = opts.Cron
	}
	if opts.Addr != "" {
		rt.cfg.Server.Addr = opts.Addr
	}
	if err := scheduler.ValidateCronSchedule(rt.cfg.Schedule.Cron); err != nil {
		return err
	}
	rt.logger.Info().
		Str("schedule", rt.cfg.Schedule.Cron).
		Str("description", scheduler.CronDescription(rt.cfg.Schedule.Cron)).
		Msg("Scheduled mode")

	app, err := entrypoint.Build(rt.cfg, rt.logger, rootOpts.Build.Version)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return app.RunScheduled(ctx, opts.RunAtStart)
}
