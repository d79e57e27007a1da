// Package filestore abstracts the drop directory and archive directory as a capability
// interface, so the pipeline's archive/dedup/stage steps are agnostic to the underlying
// storage. A local-disk adapter is the only concrete implementation shipped; object-store
// adapters (S3, GCS, Azure Blob) are out of scope per spec.md's Non-goals and are not stubbed.
package filestore

import (
	"context"
	"errors"
	"io"
	"time"
)

// Sentinel errors returned by Store implementations. Callers use errors.Is to classify
// failures into pipeline.FailureKind.
var (
	ErrNotExist      = errors.New("file does not exist")
	ErrAlreadyExists = errors.New("file already exists at destination")
)

// FileInfo describes one entry returned by List.
type FileInfo struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// Store is the capability interface spec.md §6 requires of the drop/archive directory:
// list, open, move, delete, and content hash. Implementations must be safe for concurrent
// use by multiple Dispatcher workers.
type Store interface {
	// List returns the files directly under dir, sorted by name, skipping subdirectories.
	List(ctx context.Context, dir string) ([]FileInfo, error)

	// Open returns a reader for the file at path. The caller must Close it.
	Open(ctx context.Context, path string) (io.ReadCloser, error)

	// Move relocates a file from src to dst, creating dst's parent directories as needed.
	// Returns ErrAlreadyExists if dst is already occupied — callers must not silently
	// overwrite an archived file.
	Move(ctx context.Context, src, dst string) error

	// Delete removes the file at path. Returns ErrNotExist if it is already gone.
	Delete(ctx context.Context, path string) error

	// Hash returns a stable content hash for the file at path, decoded through gzip
	// transparently when the source declares gzip: true, so the same logical content
	// hashes identically whether or not it arrived compressed.
	Hash(ctx context.Context, path string, gzipped bool) (string, error)
}
