// Package config provides centralized configuration management for the loader.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Supported values for DB_DRIVER and DB_BACKEND.
const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite"

	BackendPgx  = "pgx"
	BackendGorm = "gorm"
)

// Config holds all loader configuration.
// All settings can be configured via environment variables.
type Config struct {
	Database DatabaseConfig
	Load     LoadConfig
	Logging  LoggingConfig
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Backend selects the store implementation: pgx or gorm (default: pgx)
	Backend string `env:"DB_BACKEND" default:"pgx"`

	// Driver is the database dialect: postgres, mysql, sqlite (default: postgres)
	Driver string `env:"DB_DRIVER" default:"postgres"`

	// URL is a full connection string. When set it wins over the parts below.
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	Host string `env:"DB_HOST" default:"localhost"`

	// Port defaults to 5432 for postgres and 3306 for mysql when unset
	Port int `env:"DB_PORT"`

	User     string `env:"DB_USER"`
	Password string `env:"DB_PASSWORD" envAlt:"DB_PASS"`

	// Name is the database name, or the file path for sqlite
	Name string `env:"DB_NAME"`

	SSLMode string `env:"DB_SSLMODE" default:"disable"`

	// MaxConns is the maximum number of connections in the pool (default: 4)
	MaxConns int `env:"DB_MAX_CONNS" default:"4"`

	// MinConns is the minimum number of connections to keep open (default: 1)
	MinConns int `env:"DB_MIN_CONNS" default:"1"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// ConnectTimeout bounds the initial connect and ping (default: 10s)
	ConnectTimeout time.Duration `env:"DB_CONNECT_TIMEOUT" default:"10s"`
}

// LoadConfig holds batch processing settings.
type LoadConfig struct {
	// ItemPolicy is strict (fail on bad items) or lenient (drop them) (default: strict)
	ItemPolicy string `env:"LOAD_ITEM_POLICY" default:"strict"`

	// Timeout is the maximum duration of one batch (default: 10m)
	Timeout time.Duration `env:"LOAD_TIMEOUT" default:"10m"`

	// CreateSchema creates missing tables before loading (default: false)
	CreateSchema bool `env:"LOAD_CREATE_SCHEMA" default:"false"`

	// MaxFileSize is the maximum input size in bytes (default: 100MB)
	MaxFileSize int64 `env:"LOAD_MAX_FILE_SIZE" default:"104857600"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`

	// File receives a copy of every log entry; empty disables it (default: etl.log)
	File string `env:"LOG_FILE" default:"etl.log"`
}

// EffectivePort returns Port, or the driver's default port when unset.
func (c *DatabaseConfig) EffectivePort() int {
	if c.Port != 0 {
		return c.Port
	}
	if c.Driver == DriverMySQL {
		return 3306
	}
	return 5432
}

// DSN returns the connection string for the configured driver.
func (c *DatabaseConfig) DSN() (string, error) {
	if c.URL != "" {
		return c.URL, nil
	}
	if c.Name == "" {
		return "", fmt.Errorf("DB_NAME or DATABASE_URL is required")
	}

	hostPort := net.JoinHostPort(c.Host, strconv.Itoa(c.EffectivePort()))

	switch c.Driver {
	case DriverPostgres:
		u := url.URL{
			Scheme:   "postgres",
			Host:     hostPort,
			Path:     "/" + c.Name,
			RawQuery: url.Values{"sslmode": {c.SSLMode}}.Encode(),
		}
		if c.User != "" {
			u.User = url.UserPassword(c.User, c.Password)
		}
		return u.String(), nil

	case DriverMySQL:
		mc := mysql.NewConfig()
		mc.User = c.User
		mc.Passwd = c.Password
		mc.Net = "tcp"
		mc.Addr = hostPort
		mc.DBName = c.Name
		mc.ParseTime = true
		mc.Loc = time.UTC
		mc.Timeout = c.ConnectTimeout
		mc.Params = map[string]string{"charset": "utf8mb4"}
		return mc.FormatDSN(), nil

	case DriverSQLite:
		return c.Name, nil

	default:
		return "", fmt.Errorf("unsupported DB_DRIVER %q", c.Driver)
	}
}
