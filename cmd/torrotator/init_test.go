package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nao1215/torrotator/internal/config"
)

func TestNewInitCmd(t *testing.T) {
	t.Parallel()

	cmd := NewInitCmd()
	if cmd.Use != "init" {
		t.Errorf("Use = %q, want init", cmd.Use)
	}

	for name, short := range map[string]string{"output": "o", "force": "f"} {
		flag := cmd.Flags().Lookup(name)
		if flag == nil {
			t.Fatalf("missing --%s", name)
		}
		if flag.Shorthand != short {
			t.Errorf("--%s shorthand = %q, want %q", name, flag.Shorthand, short)
		}
	}
	if got := cmd.Flags().Lookup("output").DefValue; got != config.DefaultConfigFile {
		t.Errorf("--output default = %q, want %q", got, config.DefaultConfigFile)
	}
}

func TestRunInitCmd(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		rel      string
		existing bool
		force    bool
		wantErr  string
	}{
		{name: "fresh file", rel: ".torrotator"},
		{name: "nested directories", rel: filepath.Join("nested", "dir", "config.yaml")},
		{name: "existing file without force", rel: ".torrotator", existing: true, wantErr: "already exists"},
		{name: "existing file with force", rel: ".torrotator", existing: true, force: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), tt.rel)
			if tt.existing {
				if err := os.WriteFile(path, []byte("existing"), 0600); err != nil {
					t.Fatalf("failed to create test file: %v", err)
				}
			}

			args := []string{"-o", path}
			if tt.force {
				args = append(args, "-f")
			}
			var out bytes.Buffer
			cmd := NewInitCmd()
			cmd.SetOut(&out)
			cmd.SetErr(&bytes.Buffer{})
			cmd.SetArgs(args)

			err := cmd.Execute()
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("Execute() error = %v, want %q", err, tt.wantErr)
				}
				content, _ := os.ReadFile(path)
				if string(content) != "existing" {
					t.Errorf("existing file was modified: %q", content)
				}
				return
			}
			if err != nil {
				t.Fatalf("Execute() error = %v", err)
			}

			content, err := os.ReadFile(path)
			if err != nil {
				t.Fatalf("failed to read file: %v", err)
			}
			if !bytes.Equal(content, configTemplate) {
				t.Error("written file differs from the template")
			}
			if !strings.Contains(out.String(), path) {
				t.Errorf("output %q does not mention %s", out.String(), path)
			}

			info, err := os.Stat(path)
			if err != nil {
				t.Fatalf("failed to stat file: %v", err)
			}
			if perm := info.Mode().Perm(); perm != 0600 {
				t.Errorf("permissions = %o, want 0600", perm)
			}
		})
	}
}

// TestConfigTemplate tests that the embedded template is a loadable
// configuration whose values match the defaults.
func TestConfigTemplate(t *testing.T) {
	t.Parallel()

	content := configTemplate
	if !bytes.Contains(content, []byte("#")) {
		t.Error("expected template to contain documentation comments")
	}

	path := filepath.Join(t.TempDir(), ".torrotator")
	if err := os.WriteFile(path, content, 0600); err != nil {
		t.Fatalf("failed to write template: %v", err)
	}
	file, err := config.LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile() error = %v", err)
	}

	cfg := config.NewConfig()
	if err := file.Apply(cfg); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	defaults := config.NewConfig()
	if cfg.ControlPort != defaults.ControlPort || cfg.SocksPort != defaults.SocksPort {
		t.Errorf("expected default ports, got control %d socks %d", cfg.ControlPort, cfg.SocksPort)
	}
	if cfg.Interval != defaults.Interval {
		t.Errorf("expected interval %v, got %v", defaults.Interval, cfg.Interval)
	}
	if cfg.SettleDelay != defaults.SettleDelay {
		t.Errorf("expected settle %v, got %v", defaults.SettleDelay, cfg.SettleDelay)
	}
	if cfg.HistoryLimit != defaults.HistoryLimit {
		t.Errorf("expected history limit %d, got %d", defaults.HistoryLimit, cfg.HistoryLimit)
	}
}
