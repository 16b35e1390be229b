package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nao1215/torrotator/internal/config"
	"github.com/nao1215/torrotator/internal/database"
	"github.com/nao1215/torrotator/internal/model"
	"github.com/nao1215/torrotator/internal/report"
)

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded identity rotations",
		Long: `History prints the rotations recorded by "torrotator run", newest first,
together with totals and the countries the exits were located in.

Examples:
  # Show the last 20 rotations
  torrotator history

  # Show the last 100 rotations as JSON
  torrotator history -n 100 --json

  # Keep only the 500 most recent rotations
  torrotator history --prune 500`,
		Args: cobra.NoArgs,
		RunE: runHistoryCmd,
	}

	cmd.Flags().IntP("limit", "n", config.DefaultHistoryLimit,
		"Number of rotations to show")
	cmd.Flags().Int("prune", 0,
		"Delete all but the given number of most recent rotations")
	cmd.Flags().String("db-dir", config.XDGDataDir(),
		"Directory of the history database")
	addConfigFlag(cmd)
	addReportFlags(cmd)

	return cmd
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}
	prune, err := cmd.Flags().GetInt("prune")
	if err != nil {
		return err
	}
	if prune < 0 {
		return fmt.Errorf("invalid --prune %d: must not be negative", prune)
	}

	logger := setupLogger(cfg)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	opts := database.DefaultOptions()
	opts.CreateIfNotExists = false
	db, err := database.Open(cfg.DBDir, opts)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// Nothing recorded yet.
			return writeHistory(cfg, cmd, &model.History{})
		}
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if prune > 0 {
		removed, err := db.Prune(ctx, prune)
		if err != nil {
			return fmt.Errorf("failed to prune history: %w", err)
		}
		logger.Info("pruned rotation history", "removed", removed, "kept", prune)
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %d rotation(s)\n", removed)
		return nil
	}

	history, err := db.History(ctx, cfg.HistoryLimit)
	if err != nil {
		return fmt.Errorf("failed to read history: %w", err)
	}
	return writeHistory(cfg, cmd, history)
}

// writeHistory outputs history to the configured destination.
func writeHistory(cfg *config.Config, cmd *cobra.Command, history *model.History) error {
	return withReportOutput(cfg, cmd.OutOrStdout(), func(w report.Writer) error {
		_, err := w.WriteHistory(history)
		return err
	})
}
