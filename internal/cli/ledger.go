package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrlokans/weread2flomo/internal/fingerprint"
	"github.com/mrlokans/weread2flomo/internal/ledger"
)

// NewLedgerCommand creates the ledger command group.
func NewLedgerCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect the sync ledger",
	}

	cmd.AddCommand(&cobra.Command{
		Use:           "show",
		Short:         "Print ledger counts and the last sync time",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			led, err := openLedger(cmd, rootOpts)
			if err != nil {
				return err
			}
			return writeLedgerSummary(cmd.OutOrStdout(), led)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:           "check <text>",
		Short:         "Print the fingerprint of a highlight and whether it was delivered",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			led, err := openLedger(cmd, rootOpts)
			if err != nil {
				return err
			}
			return writeFingerprintCheck(cmd.OutOrStdout(), led, args[0])
		},
	})

	return cmd
}

func openLedger(cmd *cobra.Command, opts *RootOptions) (*ledger.Ledger, error) {
	rt, err := setup(opts, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	defer rt.Close()

	led, err := ledger.Load(rt.cfg.Ledger.Path)
	if err != nil {
		return nil, err
	}
	return led, nil
}

func writeLedgerSummary(w io.Writer, led *ledger.Ledger) error {
	lastSync := "never"
	if t := led.LastSync(); !t.IsZero() {
		lastSync = t.Local().Format(time.DateTime)
	}
	_, err := fmt.Fprintf(w, "Path:          %s\nVersion:       %d\nBookmarks:     %d\nFingerprints:  %d\nLast sync:     %s\n",
		led.Path(), led.Version(), led.Len(), led.FingerprintCount(), lastSync)
	return err
}

func writeFingerprintCheck(w io.Writer, led *ledger.Ledger, text string) error {
	fp := fingerprint.Of(text)
	if fp == "" {
		_, err := fmt.Fprintln(w, "Fingerprint:   (empty, never matches)")
		return err
	}

	known := "no"
	if led.ContainsFingerprint(fp) {
		known = "yes"
	}
	_, err := fmt.Fprintf(w, "Normalized:    %s\nFingerprint:   %s\nDelivered:     %s\n", fingerprint.Normalize(text), fp, known)
	return err
}
