package filestore

import (
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
)

// LocalStore is a Store backed by the local filesystem. It is the only concrete adapter
// this package ships — drop directories and archive directories both live on disk in the
// topology spec.md §2 describes.
type LocalStore struct{}

// NewLocalStore constructs a LocalStore.
func NewLocalStore() *LocalStore {
	return &LocalStore{}
}

// List implements Store.
func (s *LocalStore) List(ctx context.Context, dir string) ([]FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotExist, dir)
		}

		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}

	out := make([]FileInfo, 0, len(entries))

	for _, e := range entries {
		if e.IsDir() {
			continue
		}

		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", e.Name(), err)
		}

		out = append(out, FileInfo{Name: e.Name(), Size: info.Size(), ModTime: info.ModTime()})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	return out, nil
}

// Open implements Store.
func (s *LocalStore) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(path) //nolint:gosec // path is built from a listed drop-directory entry
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotExist, path)
		}

		return nil, fmt.Errorf("opening %s: %w", path, err)
	}

	return f, nil
}

// Move implements Store. The destination's parent directory is created if missing, so the
// archive step does not need the archive tree to be pre-provisioned.
func (s *LocalStore) Move(ctx context.Context, src, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if _, err := os.Stat(dst); err == nil {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, dst)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return fmt.Errorf("creating archive directory for %s: %w", dst, err)
	}

	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("moving %s to %s: %w", src, dst, err)
	}

	return nil
}

// Delete implements Store.
func (s *LocalStore) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotExist, path)
		}

		return fmt.Errorf("deleting %s: %w", path, err)
	}

	return nil
}

// Hash implements Store using a streaming sha256 digest, so arbitrarily large files never
// need to be buffered whole in memory just to compute a content hash.
func (s *LocalStore) Hash(ctx context.Context, path string, gzipped bool) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	f, err := os.Open(path) //nolint:gosec // path is built from a listed drop-directory entry
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotExist, path)
		}

		return "", fmt.Errorf("opening %s for hashing: %w", path, err)
	}
	defer f.Close() //nolint:errcheck // read-only handle, nothing to flush

	var r io.Reader = f

	if gzipped {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return "", fmt.Errorf("decompressing %s for hashing: %w", path, err)
		}
		defer gz.Close() //nolint:errcheck // read-only handle, nothing to flush

		r = gz
	}

	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
