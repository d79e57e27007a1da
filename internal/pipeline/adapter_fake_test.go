package pipeline

import (
	"context"

	"github.com/fileloader-io/fileloader/internal/db"
)

// fakeAdapter is an in-memory stand-in for db.Adapter, used by writer/auditor/publisher
// tests so they don't need a live database connection.
type fakeAdapter struct {
	createdTables []string
	droppedTables []string
	insertedRows  [][]any
	insertErr     error
	scalarResults []any
	scalarIdx     int
	scalarErr     error
	mergeRows     int64
	mergeErr      error
}

func (a *fakeAdapter) CreateStagingTable(_ context.Context, table string, _ []db.ColumnDef) error {
	a.createdTables = append(a.createdTables, table)
	return nil
}

func (a *fakeAdapter) DropStagingTable(_ context.Context, table string) error {
	a.droppedTables = append(a.droppedTables, table)
	return nil
}

func (a *fakeAdapter) BulkInsert(_ context.Context, _ string, _ []string, rows [][]any) (int64, error) {
	if a.insertErr != nil {
		return 0, a.insertErr
	}

	a.insertedRows = append(a.insertedRows, rows...)

	return int64(len(rows)), nil
}

func (a *fakeAdapter) ExecuteScalar(_ context.Context, _ string, _ ...any) (any, error) {
	if a.scalarErr != nil {
		return nil, a.scalarErr
	}

	if a.scalarIdx >= len(a.scalarResults) {
		return int64(0), nil
	}

	result := a.scalarResults[a.scalarIdx]
	a.scalarIdx++

	return result, nil
}

func (a *fakeAdapter) Merge(_ context.Context, _, _ string, _ []string, _ []string) (int64, error) {
	if a.mergeErr != nil {
		return 0, a.mergeErr
	}

	return a.mergeRows, nil
}

func (a *fakeAdapter) Close() error { return nil }

// fakeDLQCleaner records self-heal delete calls.
type fakeDLQCleaner struct {
	deletedSource string
	deletedKeys   []string
	err           error
}

func (d *fakeDLQCleaner) DeleteByGrain(_ context.Context, sourceName string, grainKeys []string) (int64, error) {
	if d.err != nil {
		return 0, d.err
	}

	d.deletedSource = sourceName
	d.deletedKeys = grainKeys

	return int64(len(grainKeys)), nil
}
