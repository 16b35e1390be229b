package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the configuration file name searched in the current
// and home directories.
const DefaultConfigFile = ".torrotator"

// xdgConfigFile is the file name inside XDGConfigDir.
const xdgConfigFile = "config.yaml"

// ErrConfigNotFound is returned when the configuration file does not exist.
var ErrConfigNotFound = errors.New("configuration file not found")

// File is the structure of the YAML configuration file. Every field is
// optional; unset fields keep the value they already have in Config.
// Durations use Go syntax such as "90s" or "2m".
type File struct {
	Control  ControlSection  `yaml:"control,omitempty"`
	Socks    SocksSection    `yaml:"socks,omitempty"`
	Rotation RotationSection `yaml:"rotation,omitempty"`
	Egress   EgressSection   `yaml:"egress,omitempty"`
	History  HistorySection  `yaml:"history,omitempty"`
	Embedded *bool           `yaml:"embedded,omitempty"`
	JSONLog  *bool           `yaml:"jsonLog,omitempty"`
}

// ControlSection configures the ControlPort connection.
type ControlSection struct {
	Host       string `yaml:"host,omitempty"`
	Port       int    `yaml:"port,omitempty"`
	CookieFile string `yaml:"cookieFile,omitempty"`
}

// SocksSection configures the SOCKS port used for egress checks.
type SocksSection struct {
	Host string `yaml:"host,omitempty"`
	Port int    `yaml:"port,omitempty"`
}

// RotationSection configures the rotation loop.
type RotationSection struct {
	Interval     string `yaml:"interval,omitempty"`
	Settle       string `yaml:"settle,omitempty"`
	PollInterval string `yaml:"pollInterval,omitempty"`
	PollBudget   int    `yaml:"pollBudget,omitempty"`
}

// EgressSection configures the egress checks.
type EgressSection struct {
	Timeout         string `yaml:"timeout,omitempty"`
	VerifyAttempts  int    `yaml:"verifyAttempts,omitempty"`
	VerifyDelay     string `yaml:"verifyDelay,omitempty"`
	IPEchoURL       string `yaml:"ipEchoURL,omitempty"`
	TorCheckURL     string `yaml:"torCheckURL,omitempty"`
	GeoIPURL        string `yaml:"geoIPURL,omitempty"`
	SkipDirectCheck *bool  `yaml:"skipDirectCheck,omitempty"`
}

// HistorySection configures the rotation history.
type HistorySection struct {
	Enabled *bool  `yaml:"enabled,omitempty"`
	Dir     string `yaml:"dir,omitempty"`
	Limit   int    `yaml:"limit,omitempty"`
}

// LoadConfigFile reads and parses a YAML configuration file.
// If the file does not exist, it returns ErrConfigNotFound.
func LoadConfigFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided config path is intentional
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	var cf File
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &cf, nil
}

// Apply copies every value set in the file into cfg.
func (f *File) Apply(cfg *Config) error {
	setString(&cfg.ControlHost, f.Control.Host)
	setInt(&cfg.ControlPort, f.Control.Port)
	setString(&cfg.CookieFile, f.Control.CookieFile)
	setString(&cfg.SocksHost, f.Socks.Host)
	setInt(&cfg.SocksPort, f.Socks.Port)

	durations := []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"rotation.interval", f.Rotation.Interval, &cfg.Interval},
		{"rotation.settle", f.Rotation.Settle, &cfg.SettleDelay},
		{"rotation.pollInterval", f.Rotation.PollInterval, &cfg.PollInterval},
		{"egress.timeout", f.Egress.Timeout, &cfg.HTTPTimeout},
		{"egress.verifyDelay", f.Egress.VerifyDelay, &cfg.VerifyRetryDelay},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", d.name, d.value, err)
		}
		*d.dst = parsed
	}

	setInt(&cfg.PollBudget, f.Rotation.PollBudget)
	setInt(&cfg.VerifyAttempts, f.Egress.VerifyAttempts)
	setString(&cfg.IPEchoURL, f.Egress.IPEchoURL)
	setString(&cfg.TorCheckURL, f.Egress.TorCheckURL)
	setString(&cfg.GeoIPURL, f.Egress.GeoIPURL)
	setBool(&cfg.SkipDirectCheck, f.Egress.SkipDirectCheck)
	setBool(&cfg.SaveHistory, f.History.Enabled)
	setString(&cfg.DBDir, f.History.Dir)
	setInt(&cfg.HistoryLimit, f.History.Limit)
	setBool(&cfg.Embedded, f.Embedded)
	setBool(&cfg.JSONLog, f.JSONLog)
	return nil
}

// setString, setInt and setBool copy v into dst when it is set.
func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

// FindConfigFile searches for the configuration file in the following order:
//  1. configPath, if specified
//  2. .torrotator in the current directory
//  3. .torrotator in the user's home directory
//  4. config.yaml in the XDG config directory
//
// It returns an empty string when no file exists.
func FindConfigFile(configPath string) string {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		return ""
	}

	var candidates []string
	if cwd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(cwd, DefaultConfigFile))
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, DefaultConfigFile))
	}
	candidates = append(candidates, filepath.Join(XDGConfigDir(), xdgConfigFile))

	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}
