package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"tasksync/internal/utils"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), CONFIG_FILE_PATH)
	if err := os.WriteFile(path, []byte(content), CONFIG_FILE_PERM); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	want := Default()
	if cfg.Remote.URL != want.Remote.URL {
		t.Errorf("Remote.URL = %q, want %q", cfg.Remote.URL, want.Remote.URL)
	}
	if cfg.Sync.Interval != want.Sync.Interval {
		t.Errorf("Sync.Interval = %v, want %v", cfg.Sync.Interval, want.Sync.Interval)
	}
	if cfg.Sync.MaxBackoff != want.Sync.MaxBackoff {
		t.Errorf("Sync.MaxBackoff = %v, want %v", cfg.Sync.MaxBackoff, want.Sync.MaxBackoff)
	}
	if !cfg.Sync.Entitled {
		t.Error("Sync.Entitled should default to true")
	}
	if cfg.Server.Addr != ":8787" {
		t.Errorf("Server.Addr = %q, want :8787", cfg.Server.Addr)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
user_id: alice
remote:
  url: https://sync.example.com
  timeout: 5s
sync:
  interval: 1m
  debounce: 500ms
  max_backoff: 20m
  watch_db: false
database:
  path: /tmp/tasks.db
log:
  verbose: true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.UserID != "alice" {
		t.Errorf("UserID = %q, want alice", cfg.UserID)
	}
	if cfg.Remote.URL != "https://sync.example.com" {
		t.Errorf("Remote.URL = %q", cfg.Remote.URL)
	}
	if cfg.Remote.Timeout != 5*time.Second {
		t.Errorf("Remote.Timeout = %v, want 5s", cfg.Remote.Timeout)
	}
	if cfg.Sync.Interval != time.Minute {
		t.Errorf("Sync.Interval = %v, want 1m", cfg.Sync.Interval)
	}
	if cfg.Sync.Debounce != 500*time.Millisecond {
		t.Errorf("Sync.Debounce = %v, want 500ms", cfg.Sync.Debounce)
	}
	if cfg.Sync.WatchDB {
		t.Error("Sync.WatchDB should be false")
	}
	if cfg.Database.Path != "/tmp/tasks.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if !cfg.Log.Verbose {
		t.Error("Log.Verbose should be true")
	}
	// Keys absent from the file keep their defaults
	if cfg.Log.MaxSizeMB != 10 {
		t.Errorf("Log.MaxSizeMB = %d, want 10", cfg.Log.MaxSizeMB)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, "user_id: alice\n")
	t.Setenv("TASKSYNC_USER_ID", "bob")
	t.Setenv("TASKSYNC_SYNC_INTERVAL", "45s")
	t.Setenv("TASKSYNC_REMOTE_URL", "http://127.0.0.1:9999")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.UserID != "bob" {
		t.Errorf("UserID = %q, want bob", cfg.UserID)
	}
	if cfg.Sync.Interval != 45*time.Second {
		t.Errorf("Sync.Interval = %v, want 45s", cfg.Sync.Interval)
	}
	if cfg.Remote.URL != "http://127.0.0.1:9999" {
		t.Errorf("Remote.URL = %q", cfg.Remote.URL)
	}
}

func TestLoadExpandsPaths(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home directory: %v", err)
	}
	path := writeConfig(t, "database:\n  path: ~/tasks.db\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Path != filepath.Join(home, "tasks.db") {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, filepath.Join(home, "tasks.db"))
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"interval below one second", "sync:\n  interval: 10ms\n"},
		{"backoff shorter than interval", "sync:\n  interval: 1m\n  max_backoff: 30s\n"},
		{"malformed url", "remote:\n  url: \"not a url\"\n"},
		{"broken yaml", "sync: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.content)); err == nil {
				t.Errorf("Load() should fail for %s", tt.name)
			}
		})
	}
}

func TestCanSync(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"ready", func(c *Config) {}, ""},
		{"not entitled", func(c *Config) { c.Sync.Entitled = false }, "not included"},
		{"no user", func(c *Config) { c.UserID = "  " }, "user identifier"},
		{"no remote", func(c *Config) { c.Remote.URL = "" }, "remote URL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.UserID = "alice"
			tt.mutate(cfg)

			err := cfg.CanSync()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("CanSync() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("CanSync() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}

	cfg := Default()
	cfg.UserID = "alice"
	cfg.Sync.Entitled = false
	if !errors.Is(cfg.CanSync(), utils.ErrNotEntitled) {
		t.Error("CanSync() should wrap ErrNotEntitled")
	}
}

func TestWriteSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", CONFIG_FILE_PATH)

	if err := WriteSample(path, "alice", false); err != nil {
		t.Fatalf("WriteSample() error = %v", err)
	}
	if err := WriteSample(path, "alice", false); err == nil {
		t.Error("WriteSample() should refuse to overwrite without force")
	}
	if err := WriteSample(path, "carol", true); err != nil {
		t.Fatalf("WriteSample(force) error = %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() of the sample failed: %v", err)
	}
	if cfg.UserID != "carol" {
		t.Errorf("UserID = %q, want carol", cfg.UserID)
	}
	if cfg.Sync.Interval != Default().Sync.Interval {
		t.Errorf("Sync.Interval = %v, want default", cfg.Sync.Interval)
	}
}

func TestSetCustomConfigPath(t *testing.T) {
	t.Cleanup(func() { customConfigPath = "" })

	dir := t.TempDir()
	SetCustomConfigPath(dir)
	got, err := GetConfigPath()
	if err != nil {
		t.Fatalf("GetConfigPath() error = %v", err)
	}
	if got != filepath.Join(dir, CONFIG_FILE_PATH) {
		t.Errorf("GetConfigPath() = %q, want config.yaml inside %q", got, dir)
	}

	file := filepath.Join(dir, "custom.yaml")
	SetCustomConfigPath(file)
	if got, _ := GetConfigPath(); got != file {
		t.Errorf("GetConfigPath() = %q, want %q", got, file)
	}
}
