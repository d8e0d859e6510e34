package session

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// Storage persists plain string values under fixed keys. Values survive
// process restarts; a missing key reads back as the empty string.
type Storage interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Delete(key string) error
}

// FileStorage keeps one file per key under a data folder.
type FileStorage struct {
	fs     afero.Fs
	folder string
}

var _ Storage = (*FileStorage)(nil)

// NewFileStorage creates a file-backed Storage rooted at folder.
// Pass afero.NewMemMapFs() in tests for an in-memory store.
func NewFileStorage(fs afero.Fs, folder string) (*FileStorage, error) {
	if fs == nil {
		return nil, errors.New("[NewFileStorage] fs is required")
	}
	if err := fs.MkdirAll(folder, 0o700); err != nil {
		return nil, errors.Wrap(err, "[NewFileStorage] MkdirAll")
	}
	return &FileStorage{fs: fs, folder: folder}, nil
}

func (s *FileStorage) Get(key string) (string, error) {
	data, err := afero.ReadFile(s.fs, s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", errors.Wrapf(err, "[FileStorage.Get] %s", key)
	}
	return strings.TrimSpace(string(data)), nil
}

func (s *FileStorage) Set(key, value string) error {
	if err := afero.WriteFile(s.fs, s.path(key), []byte(value), 0o600); err != nil {
		return errors.Wrapf(err, "[FileStorage.Set] %s", key)
	}
	return nil
}

func (s *FileStorage) Delete(key string) error {
	if err := s.fs.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "[FileStorage.Delete] %s", key)
	}
	return nil
}

func (s *FileStorage) path(key string) string {
	return filepath.Join(s.folder, key)
}
