package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Datastore.InsertChunkSize != 100 {
		t.Errorf("got chunk size %d, want 100", cfg.Datastore.InsertChunkSize)
	}
	if cfg.Datastore.EstimatedBytesPerEvent != 150 {
		t.Errorf("got estimated bytes %d, want 150", cfg.Datastore.EstimatedBytesPerEvent)
	}
}

func TestSQLiteFilename(t *testing.T) {
	if got := SQLiteFilename(false); got != "gfps-aw-sqlite.v2.db" {
		t.Errorf("got %q, want %q", got, "gfps-aw-sqlite.v2.db")
	}
	if got := SQLiteFilename(true); got != "gfps-aw-sqlite-testing.v2.db" {
		t.Errorf("got %q, want %q", got, "gfps-aw-sqlite-testing.v2.db")
	}
}

func TestResolve_TestingSwitchesFile(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Testing = true
	cfg.Resolve()

	want := filepath.Join(cfg.DataDir, "gfps-aw-sqlite-testing.v2.db")
	if cfg.Storage.SQLite.Path != want {
		t.Errorf("got %q, want %q", cfg.Storage.SQLite.Path, want)
	}
}

func TestStatsWindow(t *testing.T) {
	cfg := DefaultConfig()
	want := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	if got := cfg.StatsWindow(); !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}

	cfg.Datastore.StatsWindowStart = "2023-06-15"
	want = time.Date(2023, 6, 15, 0, 0, 0, 0, time.UTC)
	if got := cfg.StatsWindow(); !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown storage type", func(c *Config) { c.Storage.Type = "etcd" }},
		{"postgres without dsn", func(c *Config) { c.Storage.Type = BackendPostgres }},
		{"zero chunk size", func(c *Config) { c.Datastore.InsertChunkSize = 0 }},
		{"zero estimated bytes", func(c *Config) { c.Datastore.EstimatedBytesPerEvent = 0 }},
		{"bad stats window", func(c *Config) { c.Datastore.StatsWindowStart = "last tuesday" }},
		{"unknown export sink", func(c *Config) { c.Export.Sink = "ftp" }},
		{"s3 sink without bucket", func(c *Config) { c.Export.Sink = "s3" }},
	}

	for _, tt := range tests {
		cfg := DefaultConfig()
		tt.mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tt.name)
		}
	}
}

func TestLoadFromFile_YAML(t *testing.T) {
	content := `
data_dir: /tmp/aw-test
testing: true
storage:
  type: memory
datastore:
  insert_chunk_size: 50
  estimated_bytes_per_event: 200
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if cfg.DataDir != "/tmp/aw-test" {
		t.Errorf("got data_dir %q, want %q", cfg.DataDir, "/tmp/aw-test")
	}
	if !cfg.Testing {
		t.Error("testing flag should be set")
	}
	if cfg.Storage.Type != BackendMemory {
		t.Errorf("got storage type %q, want %q", cfg.Storage.Type, BackendMemory)
	}
	if cfg.Datastore.InsertChunkSize != 50 {
		t.Errorf("got chunk size %d, want 50", cfg.Datastore.InsertChunkSize)
	}
	// Untouched fields keep defaults
	if cfg.Datastore.StatsWindowStart != "2020-01-01" {
		t.Errorf("got stats window %q, want default", cfg.Datastore.StatsWindowStart)
	}
}

func TestLoadFromFile_UnsupportedExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("x = 1"), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	if _, err := LoadFromFile(path); err == nil {
		t.Error("expected error for unsupported extension")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("GFPS_AW_DATA_DIR", "/var/lib/aw")
	t.Setenv("GFPS_AW_STORAGE_TYPE", "postgres")
	t.Setenv("GFPS_AW_POSTGRES_DSN", "postgres://localhost/aw")
	t.Setenv("GFPS_AW_INSERT_CHUNK_SIZE", "25")
	t.Setenv("GFPS_AW_EXPORT_COMPRESS", "false")

	cfg := DefaultConfig()
	LoadFromEnv(cfg)

	if cfg.DataDir != "/var/lib/aw" {
		t.Errorf("got data_dir %q, want %q", cfg.DataDir, "/var/lib/aw")
	}
	if cfg.Storage.Type != BackendPostgres {
		t.Errorf("got storage type %q, want postgres", cfg.Storage.Type)
	}
	if cfg.Storage.Postgres.DSN != "postgres://localhost/aw" {
		t.Errorf("got dsn %q", cfg.Storage.Postgres.DSN)
	}
	if cfg.Datastore.InsertChunkSize != 25 {
		t.Errorf("got chunk size %d, want 25", cfg.Datastore.InsertChunkSize)
	}
	if cfg.Export.Compress {
		t.Error("compress should be disabled by env")
	}
}

func TestEnsureDirectories(t *testing.T) {
	base := t.TempDir()
	cfg := DefaultConfig()
	cfg.DataDir = filepath.Join(base, "data")
	cfg.Resolve()

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.DataDir, cfg.Export.Dir} {
		if st, err := os.Stat(dir); err != nil || !st.IsDir() {
			t.Errorf("directory %q not created", dir)
		}
	}
}
