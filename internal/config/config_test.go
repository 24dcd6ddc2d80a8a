package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadJSONResolvesSqlitePath(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.json", `{
		"basic_config": {"server_address": ":9000", "provider": "openai", "max_workers": 2},
		"providers": {"openai": {"model": "gpt-4o-mini", "api_key": "k"}},
		"databases": {"sqlite3": {"dsn": "chats.db"}}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BasicConfig.ServerAddress != ":9000" {
		t.Fatalf("server address mismatch: %q", cfg.BasicConfig.ServerAddress)
	}
	name, prov, err := cfg.Provider()
	if err != nil {
		t.Fatalf("provider: %v", err)
	}
	if name != "openai" || prov.Model != "gpt-4o-mini" {
		t.Fatalf("unexpected provider %s %+v", name, prov)
	}
	if want := filepath.Join(dir, "chats.db"); cfg.Databases["sqlite3"].DSN != want {
		t.Fatalf("dsn not resolved: want %s got %s", want, cfg.Databases["sqlite3"].DSN)
	}
	if cfg.BasicConfig.MinWorkers != 1 || cfg.BasicConfig.MaxWorkers != 2 {
		t.Fatalf("worker bounds not kept: %+v", cfg.BasicConfig)
	}
	if cfg.Storage.Key != "dsa-instructor-chats" {
		t.Fatalf("default storage key missing: %q", cfg.Storage.Key)
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
basic_config:
  provider: gemini
  save_interval: 0
storage:
  backend: redis
redis:
  host: cache.local
  port: 6380
logging:
  level: debug
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage.Backend != "redis" || cfg.Redis.Host != "cache.local" || cfg.Redis.Port != 6380 {
		t.Fatalf("yaml not decoded: %+v %+v", cfg.Storage, cfg.Redis)
	}
	if cfg.BasicConfig.SaveInterval != 0 {
		t.Fatalf("explicit zero save interval overwritten: %d", cfg.BasicConfig.SaveInterval)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("logging level mismatch: %q", cfg.Logging.Level)
	}
}

func TestLoadMissingExplicitPathFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatalf("expected error for missing explicit config")
	}
}

func TestLoadDefaultsAndEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DSA_TUTOR_ADDR", ":7777")
	t.Setenv("DSA_TUTOR_MODEL", "gemini-2.5-pro")
	t.Setenv("API_KEY", "secret")
	t.Setenv("DSA_TUTOR_STORAGE", "mysql")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	if cfg.BasicConfig.ServerAddress != ":7777" {
		t.Fatalf("addr override ignored: %q", cfg.BasicConfig.ServerAddress)
	}
	_, prov, err := cfg.Provider()
	if err != nil {
		t.Fatalf("provider: %v", err)
	}
	if prov.Model != "gemini-2.5-pro" || prov.APIKey != "secret" {
		t.Fatalf("provider overrides ignored: %+v", prov)
	}
	if cfg.Storage.Backend != "mysql" {
		t.Fatalf("storage override ignored: %q", cfg.Storage.Backend)
	}
}

func TestProviderNotConfigured(t *testing.T) {
	cfg := Default()
	cfg.BasicConfig.Provider = "claude"
	if _, _, err := cfg.Provider(); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
}

func TestSqliteBackendAliasNormalized(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DSA_TUTOR_STORAGE", "sqlite")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage.Backend != "sqlite3" {
		t.Fatalf("alias not mapped: %q", cfg.Storage.Backend)
	}
	if _, ok := cfg.Databases[cfg.Storage.Backend]; !ok {
		t.Fatalf("no database entry for %q", cfg.Storage.Backend)
	}
}
