package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("RELAY_CONFIG", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != DefaultHTTPAddr || cfg.RelayCount != 2 || cfg.HistorySize != DefaultHistorySize {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.InFlightTTL != 0 {
		t.Fatalf("expected expiry disabled by default, got %s", cfg.InFlightTTL)
	}
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "relay.yaml")
	data := []byte(`
http_addr: ":9090"
relay_count: 4
auth:
  jwt_secret: from-file
inflight_ttl: 2m
sweep_interval: 10s
webhook_url: http://hooks.local/relay
log:
  file: /tmp/relay.log
  max_backups: 2
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("RELAY_CONFIG", path)
	t.Setenv("RELAY_COUNT", "8")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":9090" {
		t.Fatalf("expected :9090, got %s", cfg.HTTPAddr)
	}
	if cfg.RelayCount != 8 {
		t.Fatalf("expected env override 8, got %d", cfg.RelayCount)
	}
	if cfg.Auth.JWTSecret != "from-file" {
		t.Fatalf("expected secret from file, got %q", cfg.Auth.JWTSecret)
	}
	if cfg.InFlightTTL != 2*time.Minute || cfg.SweepInterval != 10*time.Second {
		t.Fatalf("unexpected durations ttl=%s sweep=%s", cfg.InFlightTTL, cfg.SweepInterval)
	}
	if cfg.Log.File != "/tmp/relay.log" || cfg.Log.MaxBackups != 2 || cfg.Log.MaxSizeMB != 100 {
		t.Fatalf("unexpected log config %+v", cfg.Log)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Setenv("RELAY_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"zero relays":       func(c *Config) { c.RelayCount = 0 },
		"empty addr":        func(c *Config) { c.HTTPAddr = "" },
		"negative ttl":      func(c *Config) { c.InFlightTTL = -time.Second },
		"ttl without sweep": func(c *Config) { c.InFlightTTL = time.Minute; c.SweepInterval = 0 },
		"negative history":  func(c *Config) { c.HistorySize = -1 },
	}
	for name, mutate := range cases {
		cfg := Default()
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
	if err := Default().Validate(); err != nil {
		t.Fatalf("expected defaults valid, got %v", err)
	}
}

func TestLogWriter(t *testing.T) {
	var stdout bytes.Buffer
	cfg := Default()
	w, closer := cfg.LogWriter(&stdout)
	if w != &stdout {
		t.Fatalf("expected stdout writer without log file")
	}
	_ = closer.Close()

	cfg.Log.File = filepath.Join(t.TempDir(), "relay.log")
	w, closer = cfg.LogWriter(&stdout)
	defer closer.Close()
	if _, err := w.Write([]byte("relay test line\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	data, err := os.ReadFile(cfg.Log.File)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "relay test line") || !strings.Contains(stdout.String(), "relay test line") {
		t.Fatalf("expected line in both writers")
	}
}
