package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/fileloader-io/fileloader/internal/db"
)

// LogStore persists file_load_log and file_load_dlq state — the cross-file bookkeeping a
// PipelineRunner consults for id allocation, deduplication, final status, and DLQ
// self-healing. Implemented directly against *sql.DB rather than db.Adapter: these tables
// have a fixed schema known at compile time, unlike per-source staging tables.
type LogStore interface {
	// AllocateFileLoadID claims a new file_load_id. Postgres draws from file_load_id_seq;
	// dialects with no session-scoped sequence primitive insert into
	// file_load_id_allocator and use the new row's identity instead.
	AllocateFileLoadID(ctx context.Context) (int64, error)

	// InsertRunning inserts the file_load_log row for a new run, in State Archived with
	// zeroed row counters.
	InsertRunning(ctx context.Context, fileLoadID int64, sourceName, filename, contentHash string) error

	// FindSucceeded reports whether (filename, contentHash) already has a Succeeded
	// file_load_log row — the dedup check.
	FindSucceeded(ctx context.Context, sourceName, filename, contentHash string) (bool, error)

	// Complete updates a file_load_log row with its terminal state and row counters.
	Complete(ctx context.Context, fileLoadID int64, state State, rowsRead, rowsValid, rowsInvalid, rowsPublished int64, errKind FailureKind, errDetail string) error

	// InsertDLQ bulk-inserts ValidationFailure rows into file_load_dlq.
	InsertDLQ(ctx context.Context, failures []ValidationFailure) error

	// DeleteByGrain deletes file_load_dlq rows for sourceName whose grain_key is in
	// grainKeys — DLQ self-healing after a successful publish. Satisfies the Publisher's
	// DLQCleaner contract.
	DeleteByGrain(ctx context.Context, sourceName string, grainKeys []string) (int64, error)
}

// succeededState is the file_load_log.state value FindSucceeded matches against.
const succeededState = string(StateCleaned)

// PostgresLogStore implements LogStore against a Postgres connection.
type PostgresLogStore struct {
	conn *db.Connection
}

// NewPostgresLogStore creates a PostgresLogStore.
func NewPostgresLogStore(conn *db.Connection) *PostgresLogStore {
	return &PostgresLogStore{conn: conn}
}

// AllocateFileLoadID implements LogStore.
func (s *PostgresLogStore) AllocateFileLoadID(ctx context.Context) (int64, error) {
	var id int64

	err := s.conn.QueryRowContext(ctx, `SELECT nextval('file_load_id_seq')`).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("allocating file_load_id: %w", err)
	}

	return id, nil
}

// InsertRunning implements LogStore.
func (s *PostgresLogStore) InsertRunning(ctx context.Context, fileLoadID int64, sourceName, filename, contentHash string) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO file_load_log (file_load_id, source_name, filename, content_hash, started_at, state)
		VALUES ($1, $2, $3, $4, now(), $5)
	`, fileLoadID, sourceName, filename, contentHash, string(StateArchived))
	if err != nil {
		return fmt.Errorf("inserting file_load_log row: %w", err)
	}

	return nil
}

// FindSucceeded implements LogStore.
func (s *PostgresLogStore) FindSucceeded(ctx context.Context, sourceName, filename, contentHash string) (bool, error) {
	var exists bool

	err := s.conn.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM file_load_log
			WHERE source_name = $1 AND filename = $2 AND content_hash = $3 AND state = $4
		)
	`, sourceName, filename, contentHash, succeededState).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking dedup: %w", err)
	}

	return exists, nil
}

// Complete implements LogStore.
func (s *PostgresLogStore) Complete(
	ctx context.Context,
	fileLoadID int64,
	state State,
	rowsRead, rowsValid, rowsInvalid, rowsPublished int64,
	errKind FailureKind,
	errDetail string,
) error {
	var kind, detail sql.NullString

	if errKind != "" {
		kind = sql.NullString{String: string(errKind), Valid: true}
	}

	if errDetail != "" {
		detail = sql.NullString{String: errDetail, Valid: true}
	}

	_, err := s.conn.ExecContext(ctx, `
		UPDATE file_load_log
		SET ended_at = now(), state = $2, rows_read = $3, rows_valid = $4,
		    rows_invalid = $5, rows_published = $6, error_kind = $7, error_detail = $8
		WHERE file_load_id = $1
	`, fileLoadID, string(state), rowsRead, rowsValid, rowsInvalid, rowsPublished, kind, detail)
	if err != nil {
		return fmt.Errorf("completing file_load_log row: %w", err)
	}

	return nil
}

// InsertDLQ implements LogStore.
func (s *PostgresLogStore) InsertDLQ(ctx context.Context, failures []ValidationFailure) error {
	if len(failures) == 0 {
		return nil
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning dlq transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO file_load_dlq
			(file_load_id, source_name, source_row_number, grain_key, failed_fields, reasons, original_row_json, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (file_load_id, source_row_number) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("preparing dlq insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, f := range failures {
		_, err := stmt.ExecContext(ctx, f.FileLoadID, f.SourceName, f.SourceRowNumber, f.GrainKey,
			strings.Join(f.FailedFields, ","), strings.Join(f.Reasons, "; "), f.OriginalRowJSON)
		if err != nil {
			return fmt.Errorf("inserting dlq row (row %d): %w", f.SourceRowNumber, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing dlq transaction: %w", err)
	}

	return nil
}

// DeleteByGrain implements LogStore and Publisher's DLQCleaner contract.
func (s *PostgresLogStore) DeleteByGrain(ctx context.Context, sourceName string, grainKeys []string) (int64, error) {
	if len(grainKeys) == 0 {
		return 0, nil
	}

	result, err := s.conn.ExecContext(ctx, `
		DELETE FROM file_load_dlq WHERE source_name = $1 AND grain_key = ANY($2)
	`, sourceName, pqStringArray(grainKeys))
	if err != nil {
		return 0, fmt.Errorf("deleting dlq rows by grain: %w", err)
	}

	return result.RowsAffected()
}

// pqStringArray formats a Go string slice as a Postgres array literal for use with = ANY().
// lib/pq's pq.Array would also work here, but a literal keeps this package free of a
// direct lib/pq import — db.Connection already owns the driver dependency.
func pqStringArray(values []string) string {
	escaped := make([]string, len(values))
	for i, v := range values {
		escaped[i] = `"` + strings.ReplaceAll(v, `"`, `\"`) + `"`
	}

	return "{" + strings.Join(escaped, ",") + "}"
}

// ErrLogStoreUnavailable wraps any LogStore failure that should surface as DBUnavailable
// rather than a more specific pipeline failure kind.
var ErrLogStoreUnavailable = errors.New("file load log store unavailable")
