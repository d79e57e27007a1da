package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq" // registers the "postgres" sql.DB driver
)

// PostgresDriverName is the database/sql driver name registered by lib/pq.
const PostgresDriverName = "postgres"

// PostgresAdapter is the Adapter implementation used when the configured database
// dialect (DATABASE_DIALECT) is "postgresql". Every staging table is scoped to one file_load_id, so
// CreateStagingTable is idempotent per load and safe to call again during a quarantine
// retry.
type PostgresAdapter struct {
	conn *Connection
}

// NewPostgresAdapter builds a PostgresAdapter over an already-opened Connection.
func NewPostgresAdapter(conn *Connection) *PostgresAdapter {
	return &PostgresAdapter{conn: conn}
}

// CreateStagingTable implements Adapter.
func (a *PostgresAdapter) CreateStagingTable(ctx context.Context, table string, columns []ColumnDef) error {
	defs := make([]string, 0, len(columns))

	for _, c := range columns {
		nullability := "NOT NULL"
		if c.Nullable {
			nullability = "NULL"
		}

		defs = append(defs, fmt.Sprintf("%s %s %s", quoteIdent(c.Name), c.SQLType, nullability))
	}

	query := fmt.Sprintf("CREATE UNLOGGED TABLE IF NOT EXISTS %s (%s)", quoteIdent(table), strings.Join(defs, ", "))

	if _, err := a.conn.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("creating staging table %s: %w", table, err)
	}

	if _, err := a.conn.ExecContext(ctx, fmt.Sprintf("TRUNCATE TABLE %s", quoteIdent(table))); err != nil {
		return fmt.Errorf("truncating staging table %s: %w", table, err)
	}

	return nil
}

// DropStagingTable implements Adapter.
func (a *PostgresAdapter) DropStagingTable(ctx context.Context, table string) error {
	query := fmt.Sprintf("DROP TABLE IF EXISTS %s", quoteIdent(table))

	if _, err := a.conn.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("dropping staging table %s: %w", table, err)
	}

	return nil
}

// maxBulkInsertRows bounds how many rows go into a single multi-row INSERT, keeping each
// statement under Postgres's 65,535 parameter-count ceiling for tables of up to 131 columns.
const maxBulkInsertRows = 500

// BulkInsert implements Adapter using batched multi-row INSERT statements.
func (a *PostgresAdapter) BulkInsert(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	quotedCols := make([]string, len(columns))
	for i, c := range columns {
		quotedCols[i] = quoteIdent(c)
	}

	tx, err := a.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning bulk insert transaction for %s: %w", table, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op once committed

	var inserted int64

	for start := 0; start < len(rows); start += maxBulkInsertRows {
		end := min(start+maxBulkInsertRows, len(rows))
		chunk := rows[start:end]

		query, args := buildInsertStatement(table, quotedCols, chunk)

		result, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return inserted, fmt.Errorf("bulk inserting into %s: %w", table, err)
		}

		n, err := result.RowsAffected()
		if err != nil {
			return inserted, fmt.Errorf("reading rows affected for %s: %w", table, err)
		}

		inserted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing bulk insert into %s: %w", table, err)
	}

	return inserted, nil
}

func buildInsertStatement(table string, quotedCols []string, rows [][]any) (string, []any) {
	placeholders := make([]string, len(rows))
	args := make([]any, 0, len(rows)*len(quotedCols))

	argIdx := 1

	for i, row := range rows {
		rowPlaceholders := make([]string, len(row))

		for j, v := range row {
			rowPlaceholders[j] = fmt.Sprintf("$%d", argIdx)
			args = append(args, v)
			argIdx++
		}

		placeholders[i] = "(" + strings.Join(rowPlaceholders, ", ") + ")"
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES %s",
		quoteIdent(table),
		strings.Join(quotedCols, ", "),
		strings.Join(placeholders, ", "),
	)

	return query, args
}

// ExecuteScalar implements Adapter.
func (a *PostgresAdapter) ExecuteScalar(ctx context.Context, query string, args ...any) (any, error) {
	var result any

	row := a.conn.QueryRowContext(ctx, query, args...)
	if err := row.Scan(&result); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}

		return nil, fmt.Errorf("executing scalar query: %w", err)
	}

	return result, nil
}

// Merge implements Adapter with an INSERT ... ON CONFLICT (grain) DO UPDATE keyed on the
// SourceConfig's declared grain. The update is unconditional: a staged row always replaces
// the target row with the same grain, with no timestamp comparison.
func (a *PostgresAdapter) Merge(ctx context.Context, stagingTable, targetTable string, columns, grain []string) (int64, error) {
	quotedCols := make([]string, len(columns))
	for i, c := range columns {
		quotedCols[i] = quoteIdent(c)
	}

	quotedGrain := make([]string, len(grain))
	for i, g := range grain {
		quotedGrain[i] = quoteIdent(g)
	}

	updateCols := make([]string, 0, len(columns))

	for _, c := range columns {
		if containsString(grain, c) {
			continue
		}

		updateCols = append(updateCols, fmt.Sprintf("%s = EXCLUDED.%s", quoteIdent(c), quoteIdent(c)))
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT (%s) DO UPDATE SET %s",
		quoteIdent(targetTable),
		strings.Join(quotedCols, ", "),
		strings.Join(quotedCols, ", "),
		quoteIdent(stagingTable),
		strings.Join(quotedGrain, ", "),
		strings.Join(updateCols, ", "),
	)

	result, err := a.conn.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("merging %s into %s: %w", stagingTable, targetTable, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reading rows affected for merge into %s: %w", targetTable, err)
	}

	return n, nil
}

// Close implements Adapter. The underlying Connection is owned by the caller (it is
// shared across every SourceConfig using this dialect), so Close is a no-op here.
func (a *PostgresAdapter) Close() error {
	return nil
}

func containsString(haystack []string, needle string) bool {
	for _, h := range haystack {
		if h == needle {
			return true
		}
	}

	return false
}

// quoteIdent double-quotes a Postgres identifier, doubling any embedded quote. Identifiers
// passed here originate from SourceConfig (operator-controlled YAML), not end-user input,
// but are still quoted defensively since table/column names are interpolated into SQL text.
func quoteIdent(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}
