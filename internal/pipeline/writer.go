package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"github.com/fileloader-io/fileloader/internal/db"
	"github.com/fileloader-io/fileloader/internal/sourceconfig"
)

// Writer drains validated Batches, bulk-inserting valid records into the staging table
// and returning the invalid ones as ValidationFailure rows for the caller to write to
// file_load_dlq. One Writer is scoped to exactly one
// file's StageTable.
type Writer struct {
	adapter    db.Adapter
	stageTable string
	fileLoadID int64
	sourceName string
	columns    []string
	schema     []sourceconfig.Field
	grain      []string
	rowsRead   int64
	rowsValid  int64
}

// NewWriter creates a Writer targeting stageTable, using adapter for bulk inserts.
func NewWriter(adapter db.Adapter, stageTable string, fileLoadID int64, cfg *sourceconfig.SourceConfig) *Writer {
	columns := make([]string, len(cfg.Schema))
	for i, f := range cfg.Schema {
		columns[i] = f.Name
	}

	return &Writer{
		adapter:    adapter,
		stageTable: stageTable,
		fileLoadID: fileLoadID,
		sourceName: cfg.Name,
		columns:    columns,
		schema:     cfg.Schema,
		grain:      cfg.Grain,
	}
}

// WriteBatch partitions batch into valid rows (bulk-inserted into the staging table) and
// invalid rows (converted to ValidationFailure rows for the DLQ). Returns the
// ValidationFailure rows so the caller can bulk-insert them into file_load_dlq, since DLQ
// writes are cross-file and not owned by this Writer's staging-table adapter calls.
func (w *Writer) WriteBatch(ctx context.Context, batch *Batch) ([]ValidationFailure, error) {
	var stageRows [][]any

	var failures []ValidationFailure

	for _, rec := range batch.Records {
		w.rowsRead++

		if rec.Valid {
			stageRows = append(stageRows, w.rowToColumns(rec))
			w.rowsValid++
			continue
		}

		failures = append(failures, w.toValidationFailure(rec))
	}

	if len(stageRows) > 0 {
		if _, err := w.adapter.BulkInsert(ctx, w.stageTable, w.columns, stageRows); err != nil {
			return nil, NewError(FailureBulkInsertFailed, w.sourceName, "", fmt.Errorf("writing stage rows: %w", err))
		}
	}

	return failures, nil
}

// RowsRead returns the cumulative number of records seen across all WriteBatch calls.
func (w *Writer) RowsRead() int64 { return w.rowsRead }

// RowsValid returns the cumulative number of valid records written to stage.
func (w *Writer) RowsValid() int64 { return w.rowsValid }

// rowToColumns converts a validated record's typed Values into a column-ordered row,
// the driver-native type conversion hook spec.md's Writer contract calls for — each
// db.Adapter implementation accepts Go's native int64/float64/bool/string/time.Time,
// so no further conversion happens here; dialect-specific quirks live in the adapter.
func (w *Writer) rowToColumns(rec Record) []any {
	row := make([]any, len(w.schema))
	for i, f := range w.schema {
		row[i] = rec.Values[f.Name]
	}

	return row
}

// toValidationFailure converts an invalid record into a DLQ row, JSON-serializing the raw
// (pre-coercion) values for operator inspection.
func (w *Writer) toValidationFailure(rec Record) ValidationFailure {
	raw, err := json.Marshal(rec.Values)
	if err != nil {
		raw = []byte(`{}`)
	}

	return ValidationFailure{
		FileLoadID:      w.fileLoadID,
		SourceName:      w.sourceName,
		SourceRowNumber: rec.SourceRowNumber,
		GrainKey:        w.grainKeyFor(rec),
		FailedFields:    rec.FailedFields,
		Reasons:         rec.Reasons,
		OriginalRowJSON: string(raw),
	}
}

// grainKeyFor builds a best-effort grain key from the record's raw values, so DLQ
// self-healing (delete by source+grain on a later successful publish) can still match
// this row even though it never reached the staging table. Must stay in the same format
// the Publisher's self-heal grain keys use (grainValuesKey in runner.go).
func (w *Writer) grainKeyFor(rec Record) string {
	parts := make([]string, len(w.grain))
	for i, g := range w.grain {
		parts[i] = fmt.Sprintf("%v", rec.Values[g])
	}

	return strings.Join(parts, "\x1f")
}
