package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAdapter_PostgresReturnsWorkingAdapter(t *testing.T) {
	adapter, err := NewAdapter(DialectPostgres, &Connection{})
	require.NoError(t, err)
	assert.IsType(t, &PostgresAdapter{}, adapter)
}

func TestNewAdapter_UnimplementedDialectsFailPredictably(t *testing.T) {
	for _, dialect := range []Dialect{DialectMySQL, DialectMSSQL, DialectBigQuery} {
		adapter, err := NewAdapter(dialect, nil)
		require.NoError(t, err)

		_, err = adapter.BulkInsert(context.Background(), "t", nil, nil)
		require.ErrorIs(t, err, ErrDialectNotImplemented)

		err = adapter.CreateStagingTable(context.Background(), "t", nil)
		require.ErrorIs(t, err, ErrDialectNotImplemented)

		_, err = adapter.Merge(context.Background(), "stage", "target", nil, nil)
		require.ErrorIs(t, err, ErrDialectNotImplemented)
	}
}

func TestNewAdapter_UnknownDialectIsError(t *testing.T) {
	_, err := NewAdapter(Dialect("oracle"), nil)
	require.Error(t, err)
}

func TestQuoteIdent(t *testing.T) {
	assert.Equal(t, `"customers"`, quoteIdent("customers"))
	assert.Equal(t, `"weird""name"`, quoteIdent(`weird"name`))
}

func TestBuildInsertStatement(t *testing.T) {
	query, args := buildInsertStatement("stage_customers", []string{`"id"`, `"name"`}, [][]any{
		{1, "alice"},
		{2, "bob"},
	})

	assert.Equal(t, `INSERT INTO "stage_customers" ("id", "name") VALUES ($1, $2), ($3, $4)`, query)
	assert.Equal(t, []any{1, "alice", 2, "bob"}, args)
}

func TestContainsString(t *testing.T) {
	assert.True(t, containsString([]string{"id", "name"}, "id"))
	assert.False(t, containsString([]string{"id", "name"}, "age"))
}
