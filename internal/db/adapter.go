package db

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Dialect names a supported (or reserved) SQL dialect.
type Dialect string

const (
	DialectPostgres Dialect = "postgresql"
	DialectMySQL    Dialect = "mysql"
	DialectMSSQL    Dialect = "mssql"
	DialectBigQuery Dialect = "bigquery"
)

// ErrDialectNotImplemented is returned by every Adapter method except Close (which
// returns nil) on a dialect stub that has no working implementation.
var ErrDialectNotImplemented = errors.New("database dialect not implemented")

// ColumnDef declares one staging table column, derived from a sourceconfig.Field.
type ColumnDef struct {
	Name     string
	SQLType  string
	Nullable bool
}

// Adapter is the dialect-parameterized capability interface the pipeline's stage-create,
// write, audit, and publish steps use. Exactly one FileLoad (one file run) drives each
// method call; callers are responsible for overall transaction/retry orchestration.
type Adapter interface {
	// CreateStagingTable creates (or truncates, if it already exists) a staging table
	// shaped by columns, scoped to a single file_load_id so concurrent loads of the same
	// source never collide.
	CreateStagingTable(ctx context.Context, table string, columns []ColumnDef) error

	// DropStagingTable drops a staging table. Called during cleanup, and during
	// quarantine unwind for failures at or after the Staged state.
	DropStagingTable(ctx context.Context, table string) error

	// BulkInsert inserts rows into a staging table in as few round-trips as the dialect
	// allows, returning the number of rows actually written.
	BulkInsert(ctx context.Context, table string, columns []string, rows [][]any) (int64, error)

	// ExecuteScalar runs a single-row, single-column query — used for audit predicates
	// and grain-uniqueness counts — and returns the scalar result.
	ExecuteScalar(ctx context.Context, query string, args ...any) (any, error)

	// Merge upserts every row from stagingTable into targetTable, keyed by grain,
	// atomically. Returns the number of rows published (inserted or updated).
	Merge(ctx context.Context, stagingTable, targetTable string, columns []string, grain []string) (int64, error)

	// Close releases adapter resources. Safe to call multiple times.
	Close() error
}

// NewAdapter constructs the Adapter registered for dialect, using conn as the underlying
// connection pool for dialects that are implemented. Dialects without a working
// implementation still return a usable Adapter whose methods all fail with
// ErrDialectNotImplemented, except Close, which returns nil — this lets the Dispatcher wire source configs declaring those
// dialects without a nil-pointer surprise deep in a worker goroutine.
func NewAdapter(dialect Dialect, conn *Connection) (Adapter, error) {
	switch dialect {
	case DialectPostgres:
		return NewPostgresAdapter(conn), nil
	case DialectMySQL, DialectMSSQL, DialectBigQuery:
		return &unimplementedAdapter{dialect: dialect}, nil
	default:
		return nil, errors.New("unknown database dialect: " + string(dialect))
	}
}

// unimplementedAdapter satisfies Adapter for dialects reserved in SourceConfig but not yet
// wired to a driver. Every method except Close (which returns nil) returns
// ErrDialectNotImplemented wrapped with the dialect name, so operators see exactly which
// dialect needs a real adapter.
type unimplementedAdapter struct {
	dialect Dialect
}

func (a *unimplementedAdapter) err() error {
	return &dialectError{dialect: a.dialect}
}

func (a *unimplementedAdapter) CreateStagingTable(context.Context, string, []ColumnDef) error {
	return a.err()
}

func (a *unimplementedAdapter) DropStagingTable(context.Context, string) error {
	return a.err()
}

func (a *unimplementedAdapter) BulkInsert(context.Context, string, []string, [][]any) (int64, error) {
	return 0, a.err()
}

func (a *unimplementedAdapter) ExecuteScalar(context.Context, string, ...any) (any, error) {
	return nil, a.err()
}

func (a *unimplementedAdapter) Merge(context.Context, string, string, []string, []string) (int64, error) {
	return 0, a.err()
}

func (a *unimplementedAdapter) Close() error { return nil }

type dialectError struct {
	dialect Dialect
}

func (e *dialectError) Error() string {
	return string(e.dialect) + ": " + ErrDialectNotImplemented.Error()
}

func (e *dialectError) Unwrap() error { return ErrDialectNotImplemented }

// Connection wraps a database connection pool with health-check and pool-stat helpers
// shared by every dialect adapter.
type Connection struct {
	*sql.DB
}

const pingTimeout = 5 * time.Second

// NewConnection opens a connection pool for the given driver name and config, applying
// pool sizing and performing an immediate health check.
func NewConnection(driverName string, cfg *Config) (*Connection, error) {
	dbConn, err := sql.Open(driverName, cfg.databaseURL)
	if err != nil {
		return nil, err
	}

	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	if err := dbConn.PingContext(ctx); err != nil {
		_ = dbConn.Close()

		return nil, err
	}

	return &Connection{dbConn}, nil
}

// HealthCheck pings the connection with a bounded timeout.
func (c *Connection) HealthCheck(ctx context.Context) error {
	if ctx == nil {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(context.Background(), pingTimeout)
		defer cancel()
	}

	return c.PingContext(ctx)
}

// Close closes the connection pool. Safe to call multiple times.
func (c *Connection) Close() error {
	return c.DB.Close()
}

// Stats returns connection pool statistics for monitoring.
func (c *Connection) Stats() sql.DBStats {
	return c.DB.Stats()
}
