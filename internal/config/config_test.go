package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// TestNewConfig verifies the defaults. Changing a default must be deliberate.
func TestNewConfig(t *testing.T) {
	t.Parallel()

	cfg := NewConfig()

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"ControlHost", cfg.ControlHost, "127.0.0.1"},
		{"ControlPort", cfg.ControlPort, 9063},
		{"SocksHost", cfg.SocksHost, "127.0.0.1"},
		{"SocksPort", cfg.SocksPort, 9052},
		{"Interval", cfg.Interval, 60 * time.Second},
		{"SettleDelay", cfg.SettleDelay, 10 * time.Second},
		{"PollInterval", cfg.PollInterval, time.Second},
		{"PollBudget", cfg.PollBudget, 30},
		{"HTTPTimeout", cfg.HTTPTimeout, 30 * time.Second},
		{"VerifyAttempts", cfg.VerifyAttempts, 3},
		{"VerifyRetryDelay", cfg.VerifyRetryDelay, 10 * time.Second},
		{"IPEchoURL", cfg.IPEchoURL, "https://api.ipify.org?format=json"},
		{"TorCheckURL", cfg.TorCheckURL, "https://check.torproject.org/api/ip"},
		{"GeoIPURL", cfg.GeoIPURL, "https://ipapi.co/%s/json/"},
		{"SaveHistory", cfg.SaveHistory, true},
		{"Embedded", cfg.Embedded, false},
		{"HistoryLimit", cfg.HistoryLimit, 20},
		{"DBDir", cfg.DBDir, XDGDataDir()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if tt.got != tt.want {
				t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
			}
		})
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config must be valid: %v", err)
	}
}

func TestConfigAddresses(t *testing.T) {
	t.Parallel()

	cfg := NewConfig()
	if got := cfg.ControlAddress(); got != "127.0.0.1:9063" {
		t.Errorf("ControlAddress() = %q", got)
	}
	if got := cfg.SocksAddress(); got != "127.0.0.1:9052" {
		t.Errorf("SocksAddress() = %q", got)
	}

	cfg.ControlHost = "::1"
	if got := cfg.ControlAddress(); got != "[::1]:9063" {
		t.Errorf("ControlAddress() = %q, want bracketed IPv6", got)
	}
}

// TestConfigValidate tests one validation rule per case.
func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr error
	}{
		{"valid", func(*Config) {}, nil},
		{"zero settle delay is valid", func(c *Config) { c.SettleDelay = 0 }, nil},
		{"empty control host", func(c *Config) { c.ControlHost = "" }, ErrInvalidHost},
		{"control port zero", func(c *Config) { c.ControlPort = 0 }, ErrInvalidPort},
		{"socks port too large", func(c *Config) { c.SocksPort = 70000 }, ErrInvalidPort},
		{"same ports", func(c *Config) { c.SocksPort = c.ControlPort }, ErrSamePorts},
		{"zero interval", func(c *Config) { c.Interval = 0 }, ErrInvalidInterval},
		{"negative settle delay", func(c *Config) { c.SettleDelay = -time.Second }, ErrInvalidSettleDelay},
		{"zero poll budget", func(c *Config) { c.PollBudget = 0 }, ErrInvalidPolling},
		{"negative poll interval", func(c *Config) { c.PollInterval = -1 }, ErrInvalidPolling},
		{"zero timeout", func(c *Config) { c.HTTPTimeout = 0 }, ErrInvalidTimeout},
		{"zero verify attempts", func(c *Config) { c.VerifyAttempts = 0 }, ErrInvalidVerify},
		{"empty geoip url", func(c *Config) { c.GeoIPURL = "" }, ErrMissingEndpoint},
		{"both report formats", func(c *Config) { c.JSONReport, c.MarkdownReport = true, true }, ErrConflictingReportFormats},
		{"zero history limit", func(c *Config) { c.HistoryLimit = 0 }, ErrInvalidHistoryLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := NewConfig()
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("expected nil, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

// writeConfig writes content to a .torrotator file in a temp dir.
func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), DefaultConfigFile)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoadConfigFile(t *testing.T) {
	t.Parallel()

	t.Run("returns ErrConfigNotFound for non-existent file", func(t *testing.T) {
		t.Parallel()

		cf, err := LoadConfigFile("/nonexistent/path/.torrotator")
		if !errors.Is(err, ErrConfigNotFound) {
			t.Fatalf("expected ErrConfigNotFound, got: %v", err)
		}
		if cf != nil {
			t.Error("expected nil file when not found")
		}
	})

	t.Run("loads and applies every section", func(t *testing.T) {
		t.Parallel()

		path := writeConfig(t, `control:
  host: 10.0.0.2
  port: 9051
  cookieFile: /var/lib/tor/control_auth_cookie
socks:
  host: 10.0.0.2
  port: 9050
rotation:
  interval: 5m
  settle: 0s
  pollInterval: 500ms
  pollBudget: 60
egress:
  timeout: 45s
  verifyAttempts: 5
  verifyDelay: 2s
  ipEchoURL: https://ip.example/json
  skipDirectCheck: true
history:
  enabled: false
  dir: /tmp/torrotator
  limit: 50
embedded: true
jsonLog: true
`)

		cf, err := LoadConfigFile(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		cfg := NewConfig()
		if err := cf.Apply(cfg); err != nil {
			t.Fatalf("Apply() failed: %v", err)
		}

		if cfg.ControlAddress() != "10.0.0.2:9051" || cfg.SocksAddress() != "10.0.0.2:9050" {
			t.Errorf("addresses = %s / %s", cfg.ControlAddress(), cfg.SocksAddress())
		}
		if cfg.CookieFile != "/var/lib/tor/control_auth_cookie" {
			t.Errorf("CookieFile = %q", cfg.CookieFile)
		}
		if cfg.Interval != 5*time.Minute || cfg.SettleDelay != 0 || cfg.PollInterval != 500*time.Millisecond || cfg.PollBudget != 60 {
			t.Errorf("rotation = %v %v %v %d", cfg.Interval, cfg.SettleDelay, cfg.PollInterval, cfg.PollBudget)
		}
		if cfg.HTTPTimeout != 45*time.Second || cfg.VerifyAttempts != 5 || cfg.VerifyRetryDelay != 2*time.Second {
			t.Errorf("egress = %v %d %v", cfg.HTTPTimeout, cfg.VerifyAttempts, cfg.VerifyRetryDelay)
		}
		if cfg.IPEchoURL != "https://ip.example/json" {
			t.Errorf("IPEchoURL = %q", cfg.IPEchoURL)
		}
		if cfg.TorCheckURL != DefaultTorCheckURL {
			t.Errorf("unset TorCheckURL must keep its default, got %q", cfg.TorCheckURL)
		}
		if !cfg.SkipDirectCheck || cfg.SaveHistory || !cfg.Embedded || !cfg.JSONLog {
			t.Errorf("flags = skip:%v save:%v embedded:%v json:%v", cfg.SkipDirectCheck, cfg.SaveHistory, cfg.Embedded, cfg.JSONLog)
		}
		if cfg.DBDir != "/tmp/torrotator" || cfg.HistoryLimit != 50 {
			t.Errorf("history = %q %d", cfg.DBDir, cfg.HistoryLimit)
		}
	})

	t.Run("empty file changes nothing", func(t *testing.T) {
		t.Parallel()

		cf, err := LoadConfigFile(writeConfig(t, ""))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		cfg := NewConfig()
		if err := cf.Apply(cfg); err != nil {
			t.Fatalf("Apply() failed: %v", err)
		}
		if *cfg != *NewConfig() {
			t.Errorf("expected defaults, got %+v", cfg)
		}
	})

	t.Run("invalid YAML", func(t *testing.T) {
		t.Parallel()

		if _, err := LoadConfigFile(writeConfig(t, `control: [}`)); err == nil {
			t.Error("expected error for invalid YAML")
		}
	})

	t.Run("invalid duration", func(t *testing.T) {
		t.Parallel()

		cf, err := LoadConfigFile(writeConfig(t, "rotation:\n  interval: soon\n"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		err = cf.Apply(NewConfig())
		if err == nil || !strings.Contains(err.Error(), "rotation.interval") {
			t.Errorf("expected an error naming rotation.interval, got %v", err)
		}
	})
}

// TestFindConfigFile changes the working directory and HOME, so it does not
// run in parallel.
func TestFindConfigFile(t *testing.T) {
	t.Run("returns explicit path if exists", func(t *testing.T) {
		path := writeConfig(t, "")
		if got := FindConfigFile(path); got != path {
			t.Errorf("expected %q, got %q", path, got)
		}
	})

	t.Run("returns empty for non-existent explicit path", func(t *testing.T) {
		if got := FindConfigFile("/nonexistent/path/config.yaml"); got != "" {
			t.Errorf("expected empty string, got %q", got)
		}
	})

	t.Run("prefers current directory over home", func(t *testing.T) {
		home := t.TempDir()
		work := t.TempDir()
		t.Setenv("HOME", home)
		t.Chdir(work)

		for _, dir := range []string{home, work} {
			if err := os.WriteFile(filepath.Join(dir, DefaultConfigFile), nil, 0o600); err != nil {
				t.Fatalf("failed to write config: %v", err)
			}
		}

		want := filepath.Join(work, DefaultConfigFile)
		if got := FindConfigFile(""); got != want {
			t.Errorf("expected %q, got %q", want, got)
		}
	})

	t.Run("falls back to home", func(t *testing.T) {
		home := t.TempDir()
		t.Setenv("HOME", home)
		t.Chdir(t.TempDir())

		want := filepath.Join(home, DefaultConfigFile)
		if err := os.WriteFile(want, nil, 0o600); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}
		if got := FindConfigFile(""); got != want {
			t.Errorf("expected %q, got %q", want, got)
		}
	})
}

func TestXDGDirs(t *testing.T) {
	t.Parallel()

	if dir := XDGDataDir(); !strings.HasSuffix(dir, AppName) {
		t.Errorf("XDGDataDir() = %q, want suffix %q", dir, AppName)
	}
	if dir := XDGConfigDir(); !strings.HasSuffix(dir, AppName) {
		t.Errorf("XDGConfigDir() = %q, want suffix %q", dir, AppName)
	}

	cfg := NewConfig()
	cfg.DBDir = "/data"
	if got := cfg.EmbeddedDataDir(); got != filepath.Join("/data", "tor") {
		t.Errorf("EmbeddedDataDir() = %q", got)
	}
}
