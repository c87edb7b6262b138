// Package config provides unified configuration for the Fluxtable service.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fluxtable/fluxtable/internal/backend"
)

// BackendKind selects where records live.
type BackendKind string

const (
	// BackendLocal runs an embedded engine against a database file.
	BackendLocal BackendKind = "local"
	// BackendRemote runs against a Snowflake warehouse.
	BackendRemote BackendKind = "remote"
)

// Local drivers.
const (
	DriverDuckDB = "duckdb"
	DriverSQLite = "sqlite"
)

// Config holds the unified configuration for the Fluxtable service.
type Config struct {
	// Backend selects the engine family: local or remote
	Backend BackendKind `json:"backend" yaml:"backend"`

	// DataDir is the base directory for local data files
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// Local configuration (embedded engines)
	Local LocalConfig `json:"local" yaml:"local"`

	// Snowflake configuration (remote warehouse)
	Snowflake backend.SnowflakeConfig `json:"snowflake" yaml:"snowflake"`

	// Table configuration
	Table TableConfig `json:"table" yaml:"table"`

	// Executor configuration
	Executor ExecutorConfig `json:"executor" yaml:"executor"`

	// Readiness probe configuration
	Readiness ReadinessConfig `json:"readiness" yaml:"readiness"`

	// HTTP configuration
	HTTP HTTPConfig `json:"http" yaml:"http"`

	// Snapshot storage configuration
	Snapshot SnapshotConfig `json:"snapshot" yaml:"snapshot"`
}

// LocalConfig holds embedded-engine configuration.
type LocalConfig struct {
	// Driver is the embedded engine: duckdb, sqlite
	Driver string `json:"driver" yaml:"driver"`

	// Path is the database file path; resolved under DataDir when relative
	Path string `json:"path" yaml:"path"`
}

// TableConfig holds the record table configuration.
type TableConfig struct {
	// Name is the record table name
	Name string `json:"name" yaml:"name"`

	// OrderBy is the column list results are ordered by
	OrderBy string `json:"order_by" yaml:"order_by"`
}

// ExecutorConfig holds worker pool configuration.
type ExecutorConfig struct {
	// Workers is the number of pool workers, each with its own connection
	Workers int `json:"workers" yaml:"workers"`

	// QueueDepth is the submission queue capacity
	QueueDepth int `json:"queue_depth" yaml:"queue_depth"`
}

// ReadinessConfig holds readiness probe configuration.
type ReadinessConfig struct {
	// Retries is the number of ping attempts per check
	Retries int `json:"retries" yaml:"retries"`

	// Delay is the pause between attempts
	Delay time.Duration `json:"delay" yaml:"delay"`

	// Timeout bounds the whole check
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	// Addr is the listen address
	Addr string `json:"addr" yaml:"addr"`

	// ReadTimeout is the HTTP read timeout
	ReadTimeout time.Duration `json:"read_timeout" yaml:"read_timeout"`

	// WriteTimeout is the HTTP write timeout
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`

	// IdleTimeout is the HTTP idle timeout
	IdleTimeout time.Duration `json:"idle_timeout" yaml:"idle_timeout"`
}

// SnapshotConfig holds snapshot storage configuration.
type SnapshotConfig struct {
	// Type is the storage type: local, s3
	Type string `json:"type" yaml:"type"`

	// Path is the local snapshot directory (for local type)
	Path string `json:"path" yaml:"path"`

	// S3 configuration (for s3 type)
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 storage configuration.
type S3Config struct {
	// Bucket is the S3 bucket name
	Bucket string `json:"bucket" yaml:"bucket"`

	// Region is the AWS region
	Region string `json:"region" yaml:"region"`

	// Endpoint is the S3 endpoint (for S3-compatible storage)
	Endpoint string `json:"endpoint" yaml:"endpoint"`
}

// DefaultConfig returns the default configuration for local development.
func DefaultConfig() *Config {
	return &Config{
		Backend: BackendLocal,
		DataDir: "./data/fluxtable",
		Local: LocalConfig{
			Driver: DriverDuckDB,
			Path:   "data.db",
		},
		Snowflake: backend.SnowflakeConfig{
			Schema: "PUBLIC",
			Login:  backend.LoginPassword,
		},
		Table: TableConfig{
			Name:    "items",
			OrderBy: "id",
		},
		Executor: ExecutorConfig{
			Workers:    100,
			QueueDepth: 1024,
		},
		Readiness: ReadinessConfig{
			Retries: 3,
			Delay:   100 * time.Millisecond,
			Timeout: time.Second,
		},
		HTTP: HTTPConfig{
			Addr:         ":8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		Snapshot: SnapshotConfig{
			Type: "local",
			Path: "",
		},
	}
}

// Resolve resolves relative paths and sets defaults based on DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/fluxtable"
	}

	if c.Local.Path == "" {
		c.Local.Path = "data.db"
	}
	if !filepath.IsAbs(c.Local.Path) {
		c.Local.Path = filepath.Join(c.DataDir, c.Local.Path)
	}

	if c.Snapshot.Path == "" {
		c.Snapshot.Path = filepath.Join(c.DataDir, "snapshots")
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendLocal, BackendRemote:
		// Valid backends
	default:
		return fmt.Errorf("invalid backend: %s (must be local or remote)", c.Backend)
	}

	if c.Backend == BackendLocal {
		if c.Local.Driver != DriverDuckDB && c.Local.Driver != DriverSQLite {
			return fmt.Errorf("invalid local driver: %s (must be duckdb or sqlite)", c.Local.Driver)
		}
		if c.DataDir == "" {
			return fmt.Errorf("data_dir is required")
		}
	}

	if c.Backend == BackendRemote {
		if c.Snowflake.Account == "" || c.Snowflake.User == "" {
			return fmt.Errorf("snowflake.account and snowflake.user are required when backend is remote")
		}
		if c.Snowflake.Database == "" || c.Snowflake.Warehouse == "" {
			return fmt.Errorf("snowflake.database and snowflake.warehouse are required when backend is remote")
		}
	}

	if c.Table.Name == "" {
		return fmt.Errorf("table.name is required")
	}

	if c.Executor.Workers < 1 {
		return fmt.Errorf("executor.workers must be at least 1, got %d", c.Executor.Workers)
	}
	if c.Executor.QueueDepth < 1 {
		return fmt.Errorf("executor.queue_depth must be at least 1, got %d", c.Executor.QueueDepth)
	}

	if c.Readiness.Retries < 1 {
		return fmt.Errorf("readiness.retries must be at least 1, got %d", c.Readiness.Retries)
	}

	if c.Snapshot.Type != "local" && c.Snapshot.Type != "s3" {
		return fmt.Errorf("invalid snapshot storage type: %s (must be local or s3)", c.Snapshot.Type)
	}
	if c.Snapshot.Type == "s3" && c.Snapshot.S3.Bucket == "" {
		return fmt.Errorf("snapshot.s3.bucket is required when snapshot storage type is s3")
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
// Environment variables use the FLUXTABLE_ prefix.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("FLUXTABLE_BACKEND"); v != "" {
		cfg.Backend = BackendKind(v)
	}
	if v := os.Getenv("FLUXTABLE_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	// Local engine configuration
	if v := os.Getenv("FLUXTABLE_LOCAL_DRIVER"); v != "" {
		cfg.Local.Driver = v
	}
	if v := os.Getenv("FLUXTABLE_LOCAL_PATH"); v != "" {
		cfg.Local.Path = v
	}

	// Snowflake configuration
	if v := os.Getenv("FLUXTABLE_SNOWFLAKE_ACCOUNT"); v != "" {
		cfg.Snowflake.Account = v
	}
	if v := os.Getenv("FLUXTABLE_SNOWFLAKE_USER"); v != "" {
		cfg.Snowflake.User = v
	}
	if v := os.Getenv("FLUXTABLE_SNOWFLAKE_PASSWORD"); v != "" {
		cfg.Snowflake.Password = v
	}
	if v := os.Getenv("FLUXTABLE_SNOWFLAKE_DATABASE"); v != "" {
		cfg.Snowflake.Database = v
	}
	if v := os.Getenv("FLUXTABLE_SNOWFLAKE_SCHEMA"); v != "" {
		cfg.Snowflake.Schema = v
	}
	if v := os.Getenv("FLUXTABLE_SNOWFLAKE_WAREHOUSE"); v != "" {
		cfg.Snowflake.Warehouse = v
	}
	if v := os.Getenv("FLUXTABLE_SNOWFLAKE_PRIVATE_KEY_PATH"); v != "" {
		cfg.Snowflake.PrivateKeyPath = v
	}
	if v := os.Getenv("FLUXTABLE_SNOWFLAKE_OAUTH_TOKEN"); v != "" {
		cfg.Snowflake.OAuthToken = v
	}
	if v := os.Getenv("FLUXTABLE_SNOWFLAKE_LOGIN"); v != "" {
		cfg.Snowflake.Login = v
	}

	// Table configuration
	if v := os.Getenv("FLUXTABLE_TABLE_NAME"); v != "" {
		cfg.Table.Name = v
	}
	if v := os.Getenv("FLUXTABLE_TABLE_ORDER_BY"); v != "" {
		cfg.Table.OrderBy = v
	}

	// Executor configuration
	if v := os.Getenv("FLUXTABLE_WORKERS"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Executor.Workers)
	}
	if v := os.Getenv("FLUXTABLE_QUEUE_DEPTH"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Executor.QueueDepth)
	}

	// Readiness configuration
	if v := os.Getenv("FLUXTABLE_READINESS_RETRIES"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Readiness.Retries)
	}
	if v := os.Getenv("FLUXTABLE_READINESS_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Readiness.Delay = d
		}
	}
	if v := os.Getenv("FLUXTABLE_READINESS_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Readiness.Timeout = d
		}
	}

	// HTTP configuration
	if v := os.Getenv("FLUXTABLE_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}

	// Snapshot storage configuration
	if v := os.Getenv("FLUXTABLE_SNAPSHOT_TYPE"); v != "" {
		cfg.Snapshot.Type = v
	}
	if v := os.Getenv("FLUXTABLE_SNAPSHOT_PATH"); v != "" {
		cfg.Snapshot.Path = v
	}
	if v := os.Getenv("FLUXTABLE_S3_BUCKET"); v != "" {
		cfg.Snapshot.S3.Bucket = v
	}
	if v := os.Getenv("FLUXTABLE_S3_REGION"); v != "" {
		cfg.Snapshot.S3.Region = v
	}
	if v := os.Getenv("FLUXTABLE_S3_ENDPOINT"); v != "" {
		cfg.Snapshot.S3.Endpoint = v
	}
}

// EnsureDirectories creates all required local directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.DataDir}
	if c.Backend == BackendLocal {
		dirs = append(dirs, filepath.Dir(c.Local.Path))
	}
	if c.Snapshot.Type == "local" {
		dirs = append(dirs, c.Snapshot.Path)
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
