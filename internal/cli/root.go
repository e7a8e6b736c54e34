// Package cli defines the weread2flomo command tree.
package cli

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mrlokans/weread2flomo/internal/config"
	"github.com/mrlokans/weread2flomo/internal/logging"
)

// BuildInfo is stamped into the binary at build time.
type BuildInfo struct {
	Version string
	Commit  string
}

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	LogLevel   string // Overrides LOG_LEVEL when set

	Build BuildInfo
}

// NewRootCommand creates the root command. Without a subcommand it runs a
// single sync.
func NewRootCommand(build BuildInfo) *cobra.Command {
	opts := &RootOptions{Build: build}

	syncCmd := NewSyncCommand(opts)

	cmd := &cobra.Command{
		Use:   "weread2flomo",
		Short: "Sync WeRead highlights into flomo",
		Long: `Incrementally sync highlights from WeRead into flomo notes.

Every highlight is delivered at most once across runs. Delivered bookmark ids
and content fingerprints are kept in a local ledger file.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          syncCmd.RunE,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", config.DefaultConfigPath, "path to the YAML config file")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level (trace|debug|info|warn|error)")

	cmd.AddCommand(syncCmd)
	cmd.AddCommand(NewScheduleCommand(opts))
	cmd.AddCommand(NewLedgerCommand(opts))
	cmd.AddCommand(NewVersionCommand(opts))

	return cmd
}

// runtime is the resolved configuration and logger shared by all commands.
type runtime struct {
	cfg    *config.Config
	logger zerolog.Logger
	closer io.Closer
}

func (r *runtime) Close() error {
	return r.closer.Close()
}

func setup(opts *RootOptions, stderr io.Writer) (*runtime, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}

	logger, closer, err := logging.New(logging.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		Console:    stderr,
	})
	if err != nil {
		return nil, fmt.Errorf("configure logging: %w", err)
	}

	for _, warning := range cfg.Warnings {
		logger.Warn().Msg(warning)
	}

	return &runtime{cfg: cfg, logger: logger, closer: closer}, nil
}
