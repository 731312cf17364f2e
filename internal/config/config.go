// Package config provides unified configuration for the GFPS-AW datastore.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// BackendType selects the storage backend implementation.
type BackendType string

const (
	BackendSQLite   BackendType = "sqlite"
	BackendMemory   BackendType = "memory"
	BackendPostgres BackendType = "postgres"
)

// statsWindowLayout is the date format accepted for stats_window_start.
const statsWindowLayout = "2006-01-02"

// Config holds the unified configuration for the datastore.
type Config struct {
	// DataDir is the base directory for all data files
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// Testing switches the store to a separate database file so test data
	// never mixes with real data
	Testing bool `json:"testing" yaml:"testing"`

	// Storage configuration
	Storage StorageConfig `json:"storage" yaml:"storage"`

	// Datastore behaviour configuration
	Datastore DatastoreConfig `json:"datastore" yaml:"datastore"`

	// Export configuration
	Export ExportConfig `json:"export" yaml:"export"`
}

// StorageConfig holds storage backend configuration.
type StorageConfig struct {
	// Type is the backend type: sqlite, memory, postgres
	Type BackendType `json:"type" yaml:"type"`

	// SQLite configuration (for sqlite type)
	SQLite SQLiteConfig `json:"sqlite" yaml:"sqlite"`

	// Postgres configuration (for postgres type)
	Postgres PostgresConfig `json:"postgres" yaml:"postgres"`
}

// SQLiteConfig holds SQLite backend configuration.
type SQLiteConfig struct {
	// Path is the database file path. Empty means a versioned file
	// under DataDir.
	Path string `json:"path" yaml:"path"`
}

// PostgresConfig holds Postgres backend configuration.
type PostgresConfig struct {
	// DSN is the connection string
	DSN string `json:"dsn" yaml:"dsn"`

	// MaxConns is the connection pool size
	MaxConns int `json:"max_conns" yaml:"max_conns"`
}

// DatastoreConfig holds behaviour knobs for the bucket registry.
type DatastoreConfig struct {
	// InsertChunkSize is the batch size for bulk inserts of events
	// without explicit ids
	InsertChunkSize int `json:"insert_chunk_size" yaml:"insert_chunk_size"`

	// StatsWindowStart is the lower bound (YYYY-MM-DD) of the window
	// used when counting events for per-owner bucket statistics
	StatsWindowStart string `json:"stats_window_start" yaml:"stats_window_start"`

	// EstimatedBytesPerEvent is the multiplier used to estimate bucket
	// size from its event count
	EstimatedBytesPerEvent int64 `json:"estimated_bytes_per_event" yaml:"estimated_bytes_per_event"`
}

// ExportConfig holds snapshot export configuration.
type ExportConfig struct {
	// Dir is the directory for snapshot work files
	Dir string `json:"dir" yaml:"dir"`

	// Compress controls Snappy compression of exported snapshots
	Compress bool `json:"compress" yaml:"compress"`

	// Sink is the snapshot destination: local, s3
	Sink string `json:"sink" yaml:"sink"`

	// S3 configuration (for s3 sink)
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 sink configuration.
type S3Config struct {
	// Bucket is the S3 bucket name
	Bucket string `json:"bucket" yaml:"bucket"`

	// Region is the AWS region
	Region string `json:"region" yaml:"region"`

	// Endpoint is the S3 endpoint (for S3-compatible storage)
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// UsePathStyle forces path-style addressing (needed by MinIO and
	// most S3-compatible endpoints)
	UsePathStyle bool `json:"use_path_style" yaml:"use_path_style"`
}

// DefaultConfig returns the default configuration for local use.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data/gfps-aw",
		Testing: false,
		Storage: StorageConfig{
			Type: BackendSQLite,
			Postgres: PostgresConfig{
				MaxConns: 4,
			},
		},
		Datastore: DatastoreConfig{
			InsertChunkSize:        100,
			StatsWindowStart:       "2020-01-01",
			EstimatedBytesPerEvent: 150,
		},
		Export: ExportConfig{
			Dir:      "",
			Compress: true,
			Sink:     "local",
		},
	}
}

// SQLiteFilename returns the versioned database filename. Testing stores
// get their own file so test runs never touch real data.
func SQLiteFilename(testing bool) string {
	suffix := ""
	if testing {
		suffix = "-testing"
	}
	return fmt.Sprintf("gfps-aw-sqlite%s.v2.db", suffix)
}

// Resolve resolves relative paths and sets defaults based on DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/gfps-aw"
	}

	// Resolve sqlite path
	if c.Storage.SQLite.Path == "" {
		c.Storage.SQLite.Path = filepath.Join(c.DataDir, SQLiteFilename(c.Testing))
	}

	// Resolve export paths
	if c.Export.Dir == "" {
		c.Export.Dir = filepath.Join(c.DataDir, "exports")
	}

	if c.Storage.Postgres.MaxConns <= 0 {
		c.Storage.Postgres.MaxConns = 4
	}
}

// StatsWindow returns the parsed stats window start. Call Validate first;
// unparseable values fall back to the default window start.
func (c *Config) StatsWindow() time.Time {
	t, err := time.Parse(statsWindowLayout, c.Datastore.StatsWindowStart)
	if err != nil {
		return time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	return t.UTC()
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	switch c.Storage.Type {
	case BackendSQLite, BackendMemory, BackendPostgres:
		// Valid backends
	default:
		return fmt.Errorf("invalid storage type: %s (must be sqlite, memory, or postgres)", c.Storage.Type)
	}

	if c.Storage.Type == BackendPostgres && c.Storage.Postgres.DSN == "" {
		return fmt.Errorf("postgres.dsn is required when storage type is postgres")
	}

	if c.Datastore.InsertChunkSize < 1 {
		return fmt.Errorf("datastore.insert_chunk_size must be at least 1, got %d", c.Datastore.InsertChunkSize)
	}

	if c.Datastore.EstimatedBytesPerEvent < 1 {
		return fmt.Errorf("datastore.estimated_bytes_per_event must be at least 1, got %d", c.Datastore.EstimatedBytesPerEvent)
	}

	if c.Datastore.StatsWindowStart != "" {
		if _, err := time.Parse(statsWindowLayout, c.Datastore.StatsWindowStart); err != nil {
			return fmt.Errorf("invalid datastore.stats_window_start: %s (must be YYYY-MM-DD)", c.Datastore.StatsWindowStart)
		}
	}

	if c.Export.Sink != "" && c.Export.Sink != "local" && c.Export.Sink != "s3" {
		return fmt.Errorf("invalid export sink: %s (must be local or s3)", c.Export.Sink)
	}

	if c.Export.Sink == "s3" && c.Export.S3.Bucket == "" {
		return fmt.Errorf("s3.bucket is required when export sink is s3")
	}

	return nil
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the GFPS_AW_ prefix.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("GFPS_AW_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("GFPS_AW_TESTING"); v != "" {
		cfg.Testing = v == "true" || v == "1"
	}

	// Storage configuration
	if v := os.Getenv("GFPS_AW_STORAGE_TYPE"); v != "" {
		cfg.Storage.Type = BackendType(v)
	}
	if v := os.Getenv("GFPS_AW_SQLITE_PATH"); v != "" {
		cfg.Storage.SQLite.Path = v
	}
	if v := os.Getenv("GFPS_AW_POSTGRES_DSN"); v != "" {
		cfg.Storage.Postgres.DSN = v
	}
	if v := os.Getenv("GFPS_AW_POSTGRES_MAX_CONNS"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Storage.Postgres.MaxConns)
	}

	// Datastore configuration
	if v := os.Getenv("GFPS_AW_INSERT_CHUNK_SIZE"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Datastore.InsertChunkSize)
	}
	if v := os.Getenv("GFPS_AW_STATS_WINDOW_START"); v != "" {
		cfg.Datastore.StatsWindowStart = v
	}
	if v := os.Getenv("GFPS_AW_ESTIMATED_BYTES_PER_EVENT"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Datastore.EstimatedBytesPerEvent)
	}

	// Export configuration
	if v := os.Getenv("GFPS_AW_EXPORT_DIR"); v != "" {
		cfg.Export.Dir = v
	}
	if v := os.Getenv("GFPS_AW_EXPORT_COMPRESS"); v != "" {
		cfg.Export.Compress = v == "true" || v == "1"
	}
	if v := os.Getenv("GFPS_AW_EXPORT_SINK"); v != "" {
		cfg.Export.Sink = v
	}
	if v := os.Getenv("GFPS_AW_S3_BUCKET"); v != "" {
		cfg.Export.S3.Bucket = v
	}
	if v := os.Getenv("GFPS_AW_S3_REGION"); v != "" {
		cfg.Export.S3.Region = v
	}
	if v := os.Getenv("GFPS_AW_S3_ENDPOINT"); v != "" {
		cfg.Export.S3.Endpoint = v
	}
	if v := os.Getenv("GFPS_AW_S3_USE_PATH_STYLE"); v != "" {
		cfg.Export.S3.UsePathStyle = v == "true" || v == "1"
	}
}

// EnsureDirectories creates all required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.DataDir,
		c.Export.Dir,
	}
	if c.Storage.Type == BackendSQLite && c.Storage.SQLite.Path != "" {
		dirs = append(dirs, filepath.Dir(c.Storage.SQLite.Path))
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
