package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// envLookup returns a LookupFunc backed by vars.
func envLookup(vars map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func TestApplyEnv(t *testing.T) {
	t.Parallel()

	t.Run("applies every variable", func(t *testing.T) {
		t.Parallel()

		cfg := NewConfig()
		err := ApplyEnv(cfg, envLookup(map[string]string{
			"TORROTATOR_CONTROL_HOST": "tor",
			"TORROTATOR_CONTROL_PORT": "9051",
			"TORROTATOR_SOCKS_HOST":   "tor",
			"TORROTATOR_SOCKS_PORT":   "9050",
			"TORROTATOR_COOKIE_FILE":  "/shared/control_auth_cookie",
			"TORROTATOR_DB_DIR":       "/data",
			"TORROTATOR_INTERVAL":     "5m",
			"TORROTATOR_SETTLE":       "0s",
			"TORROTATOR_EMBEDDED":     "true",
		}))
		if err != nil {
			t.Fatalf("ApplyEnv() error = %v", err)
		}

		if cfg.ControlAddress() != "tor:9051" {
			t.Errorf("ControlAddress() = %s", cfg.ControlAddress())
		}
		if cfg.SocksAddress() != "tor:9050" {
			t.Errorf("SocksAddress() = %s", cfg.SocksAddress())
		}
		if cfg.CookieFile != "/shared/control_auth_cookie" {
			t.Errorf("CookieFile = %q", cfg.CookieFile)
		}
		if cfg.DBDir != "/data" {
			t.Errorf("DBDir = %q", cfg.DBDir)
		}
		if cfg.Interval != 5*time.Minute {
			t.Errorf("Interval = %v", cfg.Interval)
		}
		if cfg.SettleDelay != 0 {
			t.Errorf("SettleDelay = %v", cfg.SettleDelay)
		}
		if !cfg.Embedded {
			t.Error("Embedded = false")
		}
	})

	t.Run("keeps values for unset and empty variables", func(t *testing.T) {
		t.Parallel()

		cfg := NewConfig()
		cfg.ControlPort = 9151
		err := ApplyEnv(cfg, envLookup(map[string]string{
			"TORROTATOR_CONTROL_HOST": "",
		}))
		if err != nil {
			t.Fatalf("ApplyEnv() error = %v", err)
		}
		if cfg.ControlPort != 9151 {
			t.Errorf("ControlPort = %d, want 9151", cfg.ControlPort)
		}
		if cfg.ControlHost != DefaultHost {
			t.Errorf("ControlHost = %q, want %q", cfg.ControlHost, DefaultHost)
		}
	})

	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"port not a number", "TORROTATOR_CONTROL_PORT", "ninety"},
		{"bad duration", "TORROTATOR_INTERVAL", "often"},
		{"bad bool", "TORROTATOR_EMBEDDED", "perhaps"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := ApplyEnv(NewConfig(), envLookup(map[string]string{tt.key: tt.val}))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.key) {
				t.Errorf("error %q does not name %s", err, tt.key)
			}
		})
	}
}

func TestLoadEnvFile(t *testing.T) {
	t.Run("missing file is ignored", func(t *testing.T) {
		if err := LoadEnvFile(filepath.Join(t.TempDir(), ".env")); err != nil {
			t.Errorf("LoadEnvFile() error = %v", err)
		}
	})

	t.Run("loads variables without overriding", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ".env")
		content := "TORROTATOR_TEST_LOADED=from-file\nTORROTATOR_TEST_PRESET=from-file\n"
		if err := os.WriteFile(path, []byte(content), 0600); err != nil {
			t.Fatalf("failed to write env file: %v", err)
		}
		t.Setenv("TORROTATOR_TEST_PRESET", "from-env")
		t.Cleanup(func() { _ = os.Unsetenv("TORROTATOR_TEST_LOADED") })

		if err := LoadEnvFile(path); err != nil {
			t.Fatalf("LoadEnvFile() error = %v", err)
		}
		if got := os.Getenv("TORROTATOR_TEST_LOADED"); got != "from-file" {
			t.Errorf("TORROTATOR_TEST_LOADED = %q", got)
		}
		if got := os.Getenv("TORROTATOR_TEST_PRESET"); got != "from-env" {
			t.Errorf("TORROTATOR_TEST_PRESET = %q", got)
		}
	})
}
