package main

import (
	"github.com/spf13/cobra"

	"github.com/nao1215/torrotator/internal/config"
	"github.com/nao1215/torrotator/internal/rotator"
)

// NewRunCmd creates the run command.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Rotate the Tor identity periodically",
		Long: `Run connects to the Tor ControlPort and rotates the identity forever.

Before the first rotation it checks that the SOCKS port belongs to Tor,
authenticates, records the address seen without Tor and verifies that
requests through the SOCKS port leave through Tor. Every cycle then:
- prints the circuits Tor is using and the current exit address
- sends CLEARDNSCACHE and NEWNYM and waits for a new circuit
- rebuilds the HTTP client so the next check uses the new circuit
- records the rotation in the history database

Examples:
  # Rotate every 60 seconds using ports 9052 (SOCKS) and 9063 (control)
  torrotator run

  # Use the system Tor daemon and rotate every two minutes
  torrotator run -s 9050 -c 9051 -i 2m

  # Let torrotator start its own Tor daemon
  torrotator run --embedded

  # Rotate three times and exit
  torrotator run --count 3`,
		Args: cobra.NoArgs,
		RunE: runRunCmd,
	}

	addConnectionFlags(cmd)
	cmd.Flags().DurationP("interval", "i", config.DefaultInterval,
		"Pause between rotations")
	cmd.Flags().Duration("settle", config.DefaultSettleDelay,
		"Delay after NEWNYM before circuits are polled")
	cmd.Flags().Int("poll-budget", config.DefaultPollBudget,
		"Number of circuit polls before a rotation times out")
	cmd.Flags().Int("count", 0,
		"Number of rotations before exiting (0 rotates until interrupted)")
	cmd.Flags().Bool("no-history", false,
		"Do not record rotations in the history database")
	cmd.Flags().String("db-dir", config.XDGDataDir(),
		"Directory of the history database")

	return cmd
}

// runRunCmd executes the run command.
func runRunCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}
	count, err := cmd.Flags().GetInt("count")
	if err != nil {
		return err
	}

	logger := setupLogger(cfg)
	ctx, cancel := signalContext(logger)
	defer cancel()

	logger.Info("starting identity rotation",
		"controlAddr", cfg.ControlAddress(),
		"socksAddr", cfg.SocksAddress(),
		"interval", cfg.Interval,
		"embedded", cfg.Embedded,
		"saveHistory", cfg.SaveHistory,
	)

	s, err := newSession(ctx, cfg, logger, true, rotator.WithMaxCycles(count))
	if err != nil {
		return err
	}
	defer s.Close()

	return s.runner.Run(ctx)
}
