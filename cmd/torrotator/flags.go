package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/torrotator/internal/config"
	"github.com/nao1215/torrotator/internal/log"
)

// addConnectionFlags registers the flags shared by every command that talks
// to Tor.
func addConnectionFlags(cmd *cobra.Command) {
	cmd.Flags().IntP("port", "s", config.DefaultSocksPort,
		"Tor SOCKS port used for egress checks")
	cmd.Flags().String("socks-host", config.DefaultHost,
		"Tor SOCKS host")
	cmd.Flags().IntP("control-port", "c", config.DefaultControlPort,
		"Tor ControlPort")
	cmd.Flags().String("control-host", config.DefaultHost,
		"Tor ControlPort host")
	cmd.Flags().String("cookie-file", "",
		"Cookie file to read instead of the one announced by Tor")
	cmd.Flags().DurationP("timeout", "t", config.DefaultHTTPTimeout,
		"Timeout of each egress check request")
	cmd.Flags().Bool("skip-direct-check", false,
		"Do not look up the address seen without Tor")
	cmd.Flags().Bool("embedded", false,
		"Start a private Tor daemon instead of using the ports above")
	cmd.Flags().Duration("tor-timeout", config.DefaultDaemonStartupTimeout,
		"Timeout for embedded Tor startup")
	addConfigFlag(cmd)
}

// addConfigFlag registers --config.
func addConfigFlag(cmd *cobra.Command) {
	cmd.Flags().String("config", "",
		"Configuration file path (default: .torrotator in current or home directory)")
}

// addReportFlags registers the report format and destination flags.
func addReportFlags(cmd *cobra.Command) {
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")
}

// buildConfig creates a Config from defaults, the configuration file,
// TORROTATOR_* environment variables and the flags of cmd, in increasing
// priority. Only flags the user actually set override the other sources.
// The result is validated.
func buildConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.NewConfig()

	var err error
	if cmd.Flags().Lookup("config") != nil {
		cfg.ConfigFilePath, err = cmd.Flags().GetString("config")
		if err != nil {
			return nil, err
		}
	}

	// If user explicitly specified a config file path, error if not found.
	// If no path specified, silently keep the defaults if no file found.
	configPath := config.FindConfigFile(cfg.ConfigFilePath)
	switch {
	case configPath != "":
		file, err := config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
		if err := file.Apply(cfg); err != nil {
			return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
		}
	case cfg.ConfigFilePath != "":
		return nil, fmt.Errorf("configuration file not found: %s", cfg.ConfigFilePath)
	}

	if err := config.LoadEnvFile(config.DefaultEnvFile); err != nil {
		return nil, err
	}
	if err := config.ApplyEnv(cfg, os.LookupEnv); err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}

	if err := applyFlags(cmd, cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	return cfg, nil
}

// applyFlags copies every flag the user set into cfg.
func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	stringFlags := map[string]*string{
		"socks-host":   &cfg.SocksHost,
		"control-host": &cfg.ControlHost,
		"cookie-file":  &cfg.CookieFile,
		"output":       &cfg.ReportFile,
		"db-dir":       &cfg.DBDir,
	}
	for name, dst := range stringFlags {
		if !flagChanged(cmd, name) {
			continue
		}
		v, err := cmd.Flags().GetString(name)
		if err != nil {
			return err
		}
		*dst = v
	}

	ints := map[string]*int{
		"port":         &cfg.SocksPort,
		"control-port": &cfg.ControlPort,
		"poll-budget":  &cfg.PollBudget,
		"limit":        &cfg.HistoryLimit,
	}
	for name, dst := range ints {
		if !flagChanged(cmd, name) {
			continue
		}
		v, err := cmd.Flags().GetInt(name)
		if err != nil {
			return err
		}
		*dst = v
	}

	durations := map[string]*time.Duration{
		"interval":    &cfg.Interval,
		"settle":      &cfg.SettleDelay,
		"timeout":     &cfg.HTTPTimeout,
		"tor-timeout": &cfg.DaemonStartupTimeout,
	}
	for name, dst := range durations {
		if !flagChanged(cmd, name) {
			continue
		}
		v, err := cmd.Flags().GetDuration(name)
		if err != nil {
			return err
		}
		*dst = v
	}

	bools := map[string]*bool{
		"skip-direct-check": &cfg.SkipDirectCheck,
		"embedded":          &cfg.Embedded,
		"json":              &cfg.JSONReport,
		"markdown":          &cfg.MarkdownReport,
	}
	for name, dst := range bools {
		if !flagChanged(cmd, name) {
			continue
		}
		v, err := cmd.Flags().GetBool(name)
		if err != nil {
			return err
		}
		*dst = v
	}

	if flagChanged(cmd, "no-history") {
		noHistory, err := cmd.Flags().GetBool("no-history")
		if err != nil {
			return err
		}
		cfg.SaveHistory = !noHistory
	}

	if flagChanged(cmd, "json-log") {
		cfg.JSONLog = getGlobalBool(cmd, "json-log")
	}
	cfg.Verbose = getGlobalBool(cmd, "verbose")
	return nil
}

// flagChanged reports whether cmd has the flag name and the user set it.
func flagChanged(cmd *cobra.Command, name string) bool {
	flag := cmd.Flags().Lookup(name)
	if flag == nil {
		flag = cmd.Root().PersistentFlags().Lookup(name)
	}
	return flag != nil && flag.Changed
}

// getGlobalBool retrieves a persistent bool flag from the command or its
// parent.
func getGlobalBool(cmd *cobra.Command, name string) bool {
	v, err := cmd.Flags().GetBool(name)
	if err != nil {
		v, err = cmd.Root().PersistentFlags().GetBool(name)
		if err != nil {
			return false
		}
	}
	return v
}

// setupLogger creates the structured logger for cfg and installs it as the
// slog default.
func setupLogger(cfg *config.Config) *slog.Logger {
	logger := log.New(os.Stderr, cfg.Verbose, cfg.JSONLog)
	slog.SetDefault(logger)
	return logger
}
