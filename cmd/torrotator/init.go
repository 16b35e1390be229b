package main

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nao1215/torrotator/internal/config"
)

//go:embed templates/torrotator.yaml
var configTemplate []byte

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a commented configuration file",
		Long: `Init writes a configuration file listing every option with its default.

The file covers the ControlPort and SOCKS addresses, the rotation interval,
the egress check endpoints and the rotation history database.

Examples:
  # Write .torrotator in the current directory
  torrotator init

  # Write to the XDG config location
  torrotator init -o ~/.config/torrotator/config.yaml

  # Replace an existing file
  torrotator init -f`,
		Args: cobra.NoArgs,
		RunE: runInitCmd,
	}

	cmd.Flags().StringP("output", "o", config.DefaultConfigFile, "where to write the configuration")
	cmd.Flags().BoolP("force", "f", false, "replace an existing file")

	return cmd
}

func runInitCmd(cmd *cobra.Command, _ []string) error {
	path, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}

	if err := writeTemplate(path, force); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created configuration file: %s\n", path)
	return nil
}

// writeTemplate creates path with mode 0600, since the file may name a
// cookie path. Without force an existing file is left untouched.
func writeTemplate(path string, force bool) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !force {
		flags |= os.O_EXCL
	}
	f, err := os.OpenFile(filepath.Clean(path), flags, 0600)
	if errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("configuration file already exists: %s (use -f to overwrite)", path)
	}
	if err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	if _, err := f.Write(configTemplate); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write configuration file: %w", err)
	}
	return f.Close()
}
