package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// EnvPrefix starts the name of every environment variable torrotator reads.
const EnvPrefix = "TORROTATOR_"

// DefaultEnvFile is the dotenv file loaded from the current directory.
const DefaultEnvFile = ".env"

// LoadEnvFile adds the variables of a dotenv file to the process
// environment. Variables that are already set win. A missing file is not an
// error.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// LookupFunc returns the value of an environment variable and whether it
// is set. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// ApplyEnv copies the TORROTATOR_* variables found through lookup into cfg.
// Variables take precedence over the configuration file and are overridden
// by flags.
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	stringVars := []struct {
		key string
		dst *string
	}{
		{"CONTROL_HOST", &cfg.ControlHost},
		{"SOCKS_HOST", &cfg.SocksHost},
		{"COOKIE_FILE", &cfg.CookieFile},
		{"DB_DIR", &cfg.DBDir},
	}
	for _, s := range stringVars {
		if v, ok := lookup(EnvPrefix + s.key); ok && v != "" {
			*s.dst = v
		}
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"CONTROL_PORT", &cfg.ControlPort},
		{"SOCKS_PORT", &cfg.SocksPort},
	}
	for _, i := range ints {
		v, ok := lookup(EnvPrefix + i.key)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s%s %q: %w", EnvPrefix, i.key, v, err)
		}
		*i.dst = n
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"INTERVAL", &cfg.Interval},
		{"SETTLE", &cfg.SettleDelay},
	}
	for _, d := range durations {
		v, ok := lookup(EnvPrefix + d.key)
		if !ok || v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s%s %q: %w", EnvPrefix, d.key, v, err)
		}
		*d.dst = parsed
	}

	if v, ok := lookup(EnvPrefix + "EMBEDDED"); ok && v != "" {
		embedded, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %sEMBEDDED %q: %w", EnvPrefix, v, err)
		}
		cfg.Embedded = embedded
	}
	return nil
}
