package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for davis-storage.
// Configuration can come from a YAML file (config.yaml) or environment
// variables; environment variables always override YAML values. Secrets
// (PGPASSWORD) must only come from environment variables.
type Config struct {
	// Server configuration (health/metrics endpoint)
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3445"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Database configuration (PostgreSQL)
	Database DatabaseConfig `yaml:"database"`

	// Storage layer behavior
	Storage StorageConfig `yaml:"storage"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"davis"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"davis"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// StorageConfig holds storage-layer behavior settings.
type StorageConfig struct {
	// TransactionTimeout is the default deadline for a transaction scope that
	// has received no commit or rollback signal.
	TransactionTimeout time.Duration `yaml:"transaction_timeout" env:"STORAGE_TRANSACTION_TIMEOUT" env-default:"10s"`

	// MigrationsPath is the directory holding SQL migrations.
	MigrationsPath string `yaml:"migrations_path" env:"STORAGE_MIGRATIONS_PATH" env-default:"migrations"`

	// ExtendedProperties is the per-entity-type allowlist of extended
	// property keys. Keys outside an entity type's list are rejected at
	// record-build time; an absent list means the type stores none.
	ExtendedProperties map[string][]string `yaml:"extended_properties"`
}

// Load reads configuration from config.yaml with environment variable
// overrides. The version parameter is injected at build time and set on the
// returned Config. A missing config.yaml is not an error; environment
// variables and defaults apply alone.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	err := cleanenv.ReadConfig("config.yaml", cfg)
	if errors.Is(err, fs.ErrNotExist) {
		err = cleanenv.ReadEnv(cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	return cfg, nil
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
