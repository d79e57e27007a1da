// Package db wires the DBAdapter capability interface spec.md §6 requires: create staging
// tables, bulk insert, execute a scalar audit query, and merge (publish) staging rows into
// the target table. A Postgres adapter over lib/pq is the only dialect fully implemented;
// MySQL, MSSQL, and BigQuery are registered as interface-only stubs that return
// ErrDialectNotImplemented, since the domain this module serves has production traffic on
// Postgres only.
package db

import (
	"errors"
	"strings"
	"time"

	"github.com/fileloader-io/fileloader/internal/config"
)

const (
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 30 * time.Minute
	defaultConnMaxIdleTime = 10 * time.Minute
)

// ErrDatabaseURLEmpty is returned when the configured database URL is empty.
var ErrDatabaseURLEmpty = errors.New("database URL cannot be empty")

// Config holds connection configuration for a target database, independent of dialect.
type Config struct {
	Dialect         string
	databaseURL     string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// LoadConfig loads database configuration from environment variables, falling back to
// production-ready defaults for anything unset.
func LoadConfig() *Config {
	return &Config{
		Dialect:         config.GetEnvStr("DATABASE_DIALECT", string(DialectPostgres)),
		databaseURL:     config.GetEnvStr("DATABASE_URL", ""),
		MaxOpenConns:    config.GetEnvInt("DATABASE_MAX_OPEN_CONNS", defaultMaxOpenConns),
		MaxIdleConns:    config.GetEnvInt("DATABASE_MAX_IDLE_CONNS", defaultMaxIdleConns),
		ConnMaxLifetime: config.GetEnvDuration("DATABASE_CONN_MAX_LIFETIME", defaultConnMaxLifetime),
		ConnMaxIdleTime: config.GetEnvDuration("DATABASE_CONN_MAX_IDLE_TIME", defaultConnMaxIdleTime),
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.databaseURL) == "" {
		return ErrDatabaseURLEmpty
	}

	return nil
}

// MaskDatabaseURL returns the configured URL with any password replaced by "***", safe to
// include in logs.
func (c *Config) MaskDatabaseURL() string {
	if c.databaseURL == "" {
		return ""
	}

	schemeEnd := strings.Index(c.databaseURL, "://")
	if schemeEnd == -1 {
		return c.databaseURL
	}

	afterScheme := c.databaseURL[schemeEnd+3:]

	lastAt := strings.LastIndex(afterScheme, "@")
	if lastAt == -1 {
		return c.databaseURL
	}

	userInfo := afterScheme[:lastAt]

	colon := strings.Index(userInfo, ":")
	if colon == -1 {
		return c.databaseURL
	}

	username := userInfo[:colon]
	password := userInfo[colon+1:]

	if password == "" {
		return c.databaseURL
	}

	scheme := c.databaseURL[:schemeEnd]
	hostAndRest := afterScheme[lastAt:]

	return scheme + "://" + username + ":***" + hostAndRest
}
