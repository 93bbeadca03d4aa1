package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func isolate(t *testing.T) string {
	t.Helper()
	tempDir := t.TempDir()
	t.Setenv("HOME", tempDir)
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Chdir(tempDir)
	return tempDir
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.CDN != DefaultCDN {
		t.Errorf("CDN = %q, want %q", cfg.CDN, DefaultCDN)
	}
	if cfg.Minifier != DefaultMinifier {
		t.Errorf("Minifier = %q, want %q", cfg.Minifier, DefaultMinifier)
	}
	if cfg.Debug || cfg.UseWebContainer || cfg.IncludeDependencySizes {
		t.Error("feature flags should default to false")
	}
	if cfg.ParseTimeLimit != DefaultParseTimeLimit {
		t.Errorf("ParseTimeLimit = %v, want %v", cfg.ParseTimeLimit, DefaultParseTimeLimit)
	}
	if !cfg.Cache.Enabled {
		t.Error("Cache.Enabled = false, want true")
	}
	if cfg.Cache.MemoryEntries != DefaultMemoryEntries {
		t.Errorf("Cache.MemoryEntries = %d, want %d", cfg.Cache.MemoryEntries, DefaultMemoryEntries)
	}
	if cfg.History.Retention != DefaultHistoryRetention {
		t.Errorf("History.Retention = %d, want %d", cfg.History.Retention, DefaultHistoryRetention)
	}
	if cfg.Logging.Components["cache"] != "warn" {
		t.Errorf("Logging.Components[cache] = %q, want warn", cfg.Logging.Components["cache"])
	}
}

func TestLoad_FromFile(t *testing.T) {
	tempDir := isolate(t)
	configDir := filepath.Join(tempDir, ".config", "pkgsize")
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}

	configContent := `
cdn: jsdelivr
minifier: ast-based
custom_imports:
  - lib/a.js
  - lib/b.js
parse_time_limit: 250ms
rate_limit: 12.5
cache:
  enabled: false
  path: ~/results
history:
  retention: 7
daemon:
  socket_path: ~/run/pkgsize.sock
  pid_path: ~/run/pkgsize.pid
`
	if err := os.WriteFile(filepath.Join(configDir, "config.yaml"), []byte(configContent), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.CDN != "jsdelivr" {
		t.Errorf("CDN = %q, want jsdelivr", cfg.CDN)
	}
	if cfg.Minifier != "ast-based" {
		t.Errorf("Minifier = %q, want ast-based", cfg.Minifier)
	}
	if len(cfg.CustomImports) != 2 || cfg.CustomImports[1] != "lib/b.js" {
		t.Errorf("CustomImports = %v", cfg.CustomImports)
	}
	if cfg.ParseTimeLimit != 250*time.Millisecond {
		t.Errorf("ParseTimeLimit = %v, want 250ms", cfg.ParseTimeLimit)
	}
	if cfg.RateLimit != 12.5 {
		t.Errorf("RateLimit = %v, want 12.5", cfg.RateLimit)
	}
	if cfg.Cache.Enabled {
		t.Error("Cache.Enabled = true, want false")
	}
	if want := filepath.Join(tempDir, "results"); cfg.CachePath() != want {
		t.Errorf("CachePath() = %q, want %q", cfg.CachePath(), want)
	}
	if cfg.History.Retention != 7 {
		t.Errorf("History.Retention = %d, want 7", cfg.History.Retention)
	}
	if want := filepath.Join(tempDir, "run", "pkgsize.sock"); cfg.SocketPath() != want {
		t.Errorf("SocketPath() = %q, want %q", cfg.SocketPath(), want)
	}
	if want := filepath.Join(tempDir, "run", "pkgsize.pid"); cfg.PIDPath() != want {
		t.Errorf("PIDPath() = %q, want %q", cfg.PIDPath(), want)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("PKGSIZE_CDN", "esm")
	t.Setenv("PKGSIZE_CACHE_MEMORY_ENTRIES", "9")
	t.Setenv("PKGSIZE_DAEMON_SOCKET_PATH", "/tmp/other.sock")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.CDN != "esm" {
		t.Errorf("CDN = %q, want esm", cfg.CDN)
	}
	if cfg.Cache.MemoryEntries != 9 {
		t.Errorf("Cache.MemoryEntries = %d, want 9", cfg.Cache.MemoryEntries)
	}
	if cfg.SocketPath() != "/tmp/other.sock" {
		t.Errorf("SocketPath() = %q, want /tmp/other.sock", cfg.SocketPath())
	}
}

func TestLoad_DotEnv(t *testing.T) {
	dir := isolate(t)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("PKGSIZE_MINIFIER=ast-based\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	// Make sure the variable does not leak into other tests.
	t.Setenv("PKGSIZE_MINIFIER", "")
	if err := os.Unsetenv("PKGSIZE_MINIFIER"); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Minifier != "ast-based" {
		t.Errorf("Minifier = %q, want ast-based from .env", cfg.Minifier)
	}
}

func TestLoadFile_Invalid(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("cdn: [unterminated"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadFile(path); err == nil {
		t.Error("LoadFile() should fail on invalid YAML")
	}
}

func TestWriteDefault(t *testing.T) {
	dir := isolate(t)

	path, err := WriteDefault()
	if err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}
	if want := filepath.Join(dir, ".config", "pkgsize", "config.yaml"); path != want {
		t.Errorf("path = %q, want %q", path, want)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("default config does not load: %v", err)
	}
	if cfg.CDN != DefaultCDN || cfg.Output != DefaultOutput {
		t.Errorf("default file content mismatch: cdn=%q output=%q", cfg.CDN, cfg.Output)
	}

	if err := os.WriteFile(path, []byte("cdn: skypack\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := WriteDefault(); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "skypack") {
		t.Error("WriteDefault() overwrote an existing file")
	}
}

func TestLoggingOptions(t *testing.T) {
	isolate(t)
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}

	opts, err := cfg.LoggingOptions()
	if err != nil {
		t.Fatalf("LoggingOptions() error = %v", err)
	}
	if opts.Rotation.MaxSize != 10_000_000 {
		t.Errorf("Rotation.MaxSize = %d, want 10000000", opts.Rotation.MaxSize)
	}
	if opts.Path != DefaultLogPath() {
		t.Errorf("Path = %q, want default", opts.Path)
	}

	cfg.Logging.Rotation.MaxSize = "lots"
	if _, err := cfg.LoggingOptions(); err == nil {
		t.Error("LoggingOptions() should reject an invalid size")
	}
}

func TestExpandPath(t *testing.T) {
	dir := isolate(t)

	got, err := ExpandPath("~/x/y")
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, "x", "y"); got != want {
		t.Errorf("ExpandPath() = %q, want %q", got, want)
	}
	if got, _ := ExpandPath("/abs"); got != "/abs" {
		t.Errorf("ExpandPath(/abs) = %q", got)
	}
}

func TestWatchReloads(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("cdn: unpkg\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *Config, 4)
	done := make(chan error, 1)
	go func() { done <- Watch(ctx, path, func(c *Config) { changes <- c }) }()

	// Give the watcher time to register.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte("cdn: jsdelivr\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-changes:
		if cfg.CDN != "jsdelivr" {
			t.Errorf("reloaded CDN = %q, want jsdelivr", cfg.CDN)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after write")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Watch() error = %v", err)
	}
}
