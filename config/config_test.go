package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, dir, contents string) string {
	t.Helper()
	path := filepath.Join(dir, "server.conf")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAppliesDefaultsAndOverrides(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "PORT=9090\n# a comment\n\nNUM_WORKERS=4\nDOCUMENT_ROOT=/srv/www\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Port)
	}
	if cfg.NumWorkers != 4 {
		t.Errorf("NumWorkers = %d, want 4", cfg.NumWorkers)
	}
	if cfg.DocumentRoot != "/srv/www" {
		t.Errorf("DocumentRoot = %q, want /srv/www", cfg.DocumentRoot)
	}
	// untouched keys keep their defaults
	if cfg.ThreadsPerWorker != 10 {
		t.Errorf("ThreadsPerWorker = %d, want default 10", cfg.ThreadsPerWorker)
	}
}

func TestLoadIgnoresUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "PORT=8081\nSOME_FUTURE_KEY=whatever\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 8081 {
		t.Errorf("Port = %d, want 8081", cfg.Port)
	}
}

func TestLoadAppliesJSONCOverrides(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "PORT=8080\n")
	overridePath := path + ".overrides.jsonc"
	if err := os.WriteFile(overridePath, []byte(`{
		// operator override, not from the KEY=VALUE file
		"port": 9999,
	}`), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 9999 {
		t.Errorf("Port = %d, want 9999 (from jsonc overlay)", cfg.Port)
	}
}

func TestCachePerWorkerBytesFloor(t *testing.T) {
	cfg := Config{CacheSizeMB: 1, NumWorkers: 10}
	if got := cfg.CachePerWorkerBytes(); got != 1<<20 {
		t.Errorf("CachePerWorkerBytes() = %d, want floor of 1MiB", got)
	}
}
