package pipeline

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/fileloader-io/fileloader/internal/filestore"
)

// fakeStore is an in-memory stand-in for filestore.Store, used by discovery/dispatcher/
// runner tests so they don't need a real disk.
type fakeStore struct {
	files     map[string][]filestore.FileInfo
	moves     []moveCall
	moveErr   error
	listErr   error
	openErr   error
	hashValue string
}

type moveCall struct {
	src, dst string
}

func newFakeStore() *fakeStore {
	return &fakeStore{files: make(map[string][]filestore.FileInfo)}
}

func (s *fakeStore) List(_ context.Context, dir string) ([]filestore.FileInfo, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}

	return s.files[dir], nil
}

func (s *fakeStore) Open(_ context.Context, _ string) (io.ReadCloser, error) {
	if s.openErr != nil {
		return nil, s.openErr
	}

	return io.NopCloser(strings.NewReader("")), nil
}

func (s *fakeStore) Move(_ context.Context, src, dst string) error {
	s.moves = append(s.moves, moveCall{src: src, dst: dst})

	return s.moveErr
}

func (s *fakeStore) Delete(_ context.Context, _ string) error {
	return nil
}

func (s *fakeStore) Hash(_ context.Context, _ string, _ bool) (string, error) {
	if s.hashValue == "" {
		return "", errors.New("hash not configured")
	}

	return s.hashValue, nil
}
