package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CHEMVIZ_CONFIG", "")
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.APIBase != DefaultAPIBase {
		t.Errorf("APIBase = %q, want %q", cfg.APIBase, DefaultAPIBase)
	}
	if cfg.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", cfg.Timeout)
	}
	if !cfg.SealToken {
		t.Error("SealToken should default to true")
	}
	if cfg.Notify.MinSeverity != "warning" {
		t.Errorf("MinSeverity = %q, want warning", cfg.Notify.MinSeverity)
	}
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	path := writeConfig(t, `
api_base: http://backend:9000/api/
timeout: 5s
log_level: debug
notify:
  urls: ["generic://example.com"]
  min_severity: critical
`)
	t.Setenv("CHEMVIZ_API_BASE", "https://chem.example.com/api/")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.APIBase != "https://chem.example.com/api" {
		t.Errorf("env should win and trailing slash be trimmed, got %q", cfg.APIBase)
	}
	if cfg.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v, want 5s", cfg.Timeout)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if len(cfg.Notify.URLs) != 1 || cfg.Notify.URLs[0] != "generic://example.com" {
		t.Errorf("Notify.URLs = %v", cfg.Notify.URLs)
	}
	if cfg.Notify.MinSeverity != "critical" {
		t.Errorf("MinSeverity = %q, want critical", cfg.Notify.MinSeverity)
	}
}

func TestLoadNotifyURLsFromEnv(t *testing.T) {
	path := writeConfig(t, "log_level: info\n")
	t.Setenv("CHEMVIZ_NOTIFY_URLS", "generic://a.example, generic://b.example")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Notify.URLs) != 2 {
		t.Fatalf("expected 2 urls, got %v", cfg.Notify.URLs)
	}
}

func TestLoadRejectsBadAPIBase(t *testing.T) {
	path := writeConfig(t, "api_base: ftp://nowhere\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for non-http api_base")
	}
}

func TestLoadRejectsBadSeverity(t *testing.T) {
	path := writeConfig(t, "notify:\n  min_severity: loud\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown severity")
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestPaths(t *testing.T) {
	cfg := &Config{DataDir: "/tmp/cv"}
	if got := cfg.DBPath(); got != "/tmp/cv/chemviz.db" {
		t.Errorf("DBPath = %q", got)
	}
	if got := cfg.KeyPath(); got != "/tmp/cv/chemviz.key" {
		t.Errorf("KeyPath = %q", got)
	}
}
