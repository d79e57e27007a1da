package filestore

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_PutOpenRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	s.Put("/drop/customers.csv", []byte("id,name\n1,alice\n"))

	rc, err := s.Open(context.Background(), "/drop/customers.csv")
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "id,name\n1,alice\n", string(data))
}

func TestMemoryStore_MoveThenOpenAtDestination(t *testing.T) {
	s := NewMemoryStore()
	s.Put("/drop/customers.csv", []byte("data"))

	require.NoError(t, s.Move(context.Background(), "/drop/customers.csv", "/archive/customers.csv"))

	_, err := s.Open(context.Background(), "/drop/customers.csv")
	require.ErrorIs(t, err, ErrNotExist)

	rc, err := s.Open(context.Background(), "/archive/customers.csv")
	require.NoError(t, err)
	rc.Close()
}

func TestMemoryStore_MoveRefusesOverwrite(t *testing.T) {
	s := NewMemoryStore()
	s.Put("/drop/a.csv", []byte("a"))
	s.Put("/archive/a.csv", []byte("already here"))

	err := s.Move(context.Background(), "/drop/a.csv", "/archive/a.csv")
	require.ErrorIs(t, err, ErrAlreadyExists)
}

func TestMemoryStore_ListOnlyDirectChildren(t *testing.T) {
	s := NewMemoryStore()
	s.Put("/drop/a.csv", []byte("a"))
	s.Put("/drop/b.csv", []byte("b"))
	s.Put("/drop/nested/c.csv", []byte("c"))

	entries, err := s.List(context.Background(), "/drop")
	require.NoError(t, err)

	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}

	assert.Equal(t, []string{"a.csv", "b.csv"}, names)
}

func TestMemoryStore_HashStableAcrossGzip(t *testing.T) {
	s := NewMemoryStore()
	s.Put("/drop/plain.csv", []byte("id\n1\n"))

	plainHash, err := s.Hash(context.Background(), "/drop/plain.csv", false)
	require.NoError(t, err)
	assert.NotEmpty(t, plainHash)

	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	_, err = gw.Write([]byte("id\n1\n"))
	require.NoError(t, err)
	require.NoError(t, gw.Close())
	s.Put("/drop/gz.csv.gz", buf.Bytes())

	gzHash, err := s.Hash(context.Background(), "/drop/gz.csv.gz", true)
	require.NoError(t, err)
	assert.Equal(t, plainHash, gzHash)
}

func TestMemoryStore_DeleteMissingIsErrNotExist(t *testing.T) {
	s := NewMemoryStore()
	err := s.Delete(context.Background(), "/drop/missing.csv")

	require.ErrorIs(t, err, ErrNotExist)
}
