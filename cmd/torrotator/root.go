package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for torrotator.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "torrotator",
		Short: "Rotate Tor identities and verify the egress",
		Long: `torrotator talks to a running Tor daemon through its ControlPort.

It authenticates with NULL, COOKIE or SAFECOOKIE authentication, shows the
circuits Tor is using, and periodically asks Tor for a new identity. After
every rotation it checks through the SOCKS port which address the Internet
sees and whether that address is a Tor exit.

Use --embedded to let torrotator start a private Tor daemon instead.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().Bool("json-log", false, "Write logs as JSON")

	cmd.AddCommand(NewRunCmd())
	cmd.AddCommand(NewStatusCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
