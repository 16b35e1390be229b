package main

import (
	"github.com/spf13/cobra"

	"github.com/nao1215/torrotator/internal/report"
)

// NewStatusCmd creates the status command.
func NewStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the current circuits and exit address",
		Long: `Status connects to Tor once and reports what it sees without rotating
anything: the usable circuits with their relays, the current exit address
with its location, and the address seen without Tor.

A warning is printed when traffic does not leave through Tor or when the
exit address equals the address seen without Tor.

Examples:
  # Show the status as text
  torrotator status

  # Write a Markdown report
  torrotator status --markdown -o status.md`,
		Args: cobra.NoArgs,
		RunE: runStatusCmd,
	}

	addConnectionFlags(cmd)
	addReportFlags(cmd)

	return cmd
}

// runStatusCmd executes the status command.
func runStatusCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg)
	ctx, cancel := signalContext(logger)
	defer cancel()

	s, err := newSession(ctx, cfg, logger, false)
	if err != nil {
		return err
	}
	defer s.Close()

	snapshot, err := s.runner.Inspect(ctx)
	if err != nil {
		return err
	}

	return withReportOutput(cfg, cmd.OutOrStdout(), func(w report.Writer) error {
		_, err := w.WriteSnapshot(snapshot)
		return err
	})
}
