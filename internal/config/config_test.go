package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var envKeys = []string{
	"DATA_DIR", "SQLITE_PATH", "LOG_LEVEL", "LOG_FORMAT", "KLINE_TZ",
	"KLINE_PORT", "KLINE_SERVER_TOKEN", "KLINE_REMOTE_URL", "KLINE_TOKEN",
}

// clearEnv blanks every override for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kline.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
storage:
  data_dir: "/tmp/kline/data"
  sqlite_path: "/tmp/kline/kline.db"
server:
  host: "0.0.0.0"
  port: 8080
  token: "served"
logging:
  level: "debug"
  format: "text"
calendar:
  timezone: "Asia/Shanghai"
  refresh_crons: ["0 31 9 * * 1-5"]
chart:
  source_minutes: 5
  default_limit: 100
  max_limit: 500
  workers: 4
remote:
  base_url: "http://localhost:8080"
  token: "secret"
  timeout: 3s
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	// -- Storage --
	if cfg.Storage.DataDir != "/tmp/kline/data" {
		t.Errorf("Storage.DataDir = %q, want %q", cfg.Storage.DataDir, "/tmp/kline/data")
	}
	if cfg.Storage.SQLitePath != "/tmp/kline/kline.db" {
		t.Errorf("Storage.SQLitePath = %q, want %q", cfg.Storage.SQLitePath, "/tmp/kline/kline.db")
	}

	// -- Server --
	if got := cfg.Server.Addr(); got != "0.0.0.0:8080" {
		t.Errorf("Server.Addr() = %q, want %q", got, "0.0.0.0:8080")
	}
	if cfg.Server.Token != "served" {
		t.Errorf("Server.Token = %q, want %q", cfg.Server.Token, "served")
	}

	// -- Logging --
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "text" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}

	// -- Calendar --
	if len(cfg.Calendar.RefreshCrons) != 1 || cfg.Calendar.RefreshCrons[0] != "0 31 9 * * 1-5" {
		t.Errorf("Calendar.RefreshCrons = %v", cfg.Calendar.RefreshCrons)
	}

	// -- Chart --
	if cfg.Chart.SourceMinutes != 5 || cfg.Chart.DefaultLimit != 100 || cfg.Chart.MaxLimit != 500 || cfg.Chart.Workers != 4 {
		t.Errorf("Chart = %+v", cfg.Chart)
	}

	// -- Remote --
	if cfg.Remote.Timeout != 3*time.Second {
		t.Errorf("Remote.Timeout = %v, want 3s", cfg.Remote.Timeout)
	}
	if cfg.Remote.Token != "secret" {
		t.Errorf("Remote.Token = %q, want %q", cfg.Remote.Token, "secret")
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Storage.DataDir != "data" {
		t.Errorf("Storage.DataDir = %q, want %q", cfg.Storage.DataDir, "data")
	}
	if cfg.Server.Port != 8090 {
		t.Errorf("Server.Port = %d, want 8090", cfg.Server.Port)
	}
	if cfg.Calendar.Timezone != "Asia/Shanghai" {
		t.Errorf("Calendar.Timezone = %q", cfg.Calendar.Timezone)
	}
	if len(cfg.Calendar.RefreshCrons) != 2 {
		t.Errorf("Calendar.RefreshCrons = %v, want two defaults", cfg.Calendar.RefreshCrons)
	}
	if cfg.Chart.SourceMinutes != 1 || cfg.Chart.Workers != 8 {
		t.Errorf("Chart = %+v", cfg.Chart)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults fail Validate(): %v", err)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
storage:
  data_dir: "/original/data"
logging:
  level: "info"
remote:
  token: "yaml-token"
`)

	t.Setenv("DATA_DIR", "/env/data")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("KLINE_PORT", "9999")
	t.Setenv("KLINE_REMOTE_URL", "http://remote:8090")
	t.Setenv("KLINE_SERVER_TOKEN", "server-token")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Storage.DataDir != "/env/data" {
		t.Errorf("Storage.DataDir = %q, want %q (env override)", cfg.Storage.DataDir, "/env/data")
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want %q (env override)", cfg.Logging.Level, "warn")
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("Server.Port = %d, want 9999 (env override)", cfg.Server.Port)
	}
	if cfg.Remote.BaseURL != "http://remote:8090" {
		t.Errorf("Remote.BaseURL = %q (env override)", cfg.Remote.BaseURL)
	}
	// The server token does not leak into the client token or back.
	if cfg.Server.Token != "server-token" {
		t.Errorf("Server.Token = %q, want %q (env override)", cfg.Server.Token, "server-token")
	}
	if cfg.Remote.Token != "yaml-token" {
		t.Errorf("Remote.Token = %q, want %q (from YAML)", cfg.Remote.Token, "yaml-token")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "storage: [unclosed\n")
	if _, err := Load(path); err == nil {
		t.Error("Load() accepted malformed YAML")
	}
}

func TestValidate(t *testing.T) {
	clearEnv(t)
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"timezone", func(c *Config) { c.Calendar.Timezone = "Mars/Olympus" }, "calendar.timezone"},
		{"cron", func(c *Config) { c.Calendar.RefreshCrons = []string{"every day"} }, "refresh_crons"},
		{"source minutes", func(c *Config) { c.Chart.SourceMinutes = 7 }, "source_minutes"},
		{"limits", func(c *Config) { c.Chart.MaxLimit = 10 }, "default_limit"},
		{"workers", func(c *Config) { c.Chart.Workers = -1 }, "workers"},
		{"port", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
	}
	for _, tt := range tests {
		cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		if err != nil {
			t.Fatal(err)
		}
		tt.mutate(cfg)
		err = cfg.Validate()
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("%s: Validate() = %v, want error mentioning %q", tt.name, err, tt.want)
		}
	}
}
