package storage

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var _ Storage = (*FileStorage)(nil)

const fileExtension = ".json"

// FileStorage keeps one file per key in a directory, so a session survives restarts.
// Writes go to a temporary file first and are renamed into place.
type FileStorage struct {
	dir  string
	lock sync.Mutex
}

func NewFileStorage(dir string) (*FileStorage, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errors.Wrap(err, "[NewFileStorage] create directory")
	}
	return &FileStorage{dir: dir}, nil
}

func (f *FileStorage) Get(key string) (string, bool, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	data, err := os.ReadFile(f.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrapf(err, "[FileStorage.Get] read %q", key)
	}
	return string(data), true, nil
}

func (f *FileStorage) Set(key, value string) error {
	f.lock.Lock()
	defer f.lock.Unlock()

	tmp := filepath.Join(f.dir, "."+uuid.New().String()+".tmp")
	if err := os.WriteFile(tmp, []byte(value), 0o600); err != nil {
		return errors.Wrapf(err, "[FileStorage.Set] write %q", key)
	}
	if err := os.Rename(tmp, f.path(key)); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrapf(err, "[FileStorage.Set] rename %q", key)
	}
	return nil
}

func (f *FileStorage) Remove(key string) error {
	f.lock.Lock()
	defer f.lock.Unlock()

	if err := os.Remove(f.path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.Wrapf(err, "[FileStorage.Remove] remove %q", key)
	}
	return nil
}

// path encodes the key so arbitrary storage keys map to safe file names.
func (f *FileStorage) path(key string) string {
	return filepath.Join(f.dir, base64.RawURLEncoding.EncodeToString([]byte(key))+fileExtension)
}
