package cache

//go:generate go run go.uber.org/mock/mockgen@v0.5.2 -source=store.go -destination=store_mock.go -package=cache

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// Store is the storage medium behind a Cache: a directory-scoped string
// key/value store. Paths are slash-separated and relative to the store root
// ("<namespace>/<key>").
type Store interface {
	EnsureDir(ctx context.Context, dir string) error
	Exists(ctx context.Context, path string) (bool, error)
	ReadString(ctx context.Context, path string) (string, error)
	WriteString(ctx context.Context, path, value string) error
	Remove(ctx context.Context, path string) error
	CreatedAt(ctx context.Context, path string) (time.Time, error)
}

// Downloader is implemented by network-backed stores that must pull a remote
// copy before a local read. Cache calls Download before every lookup and
// treats a failure as a miss.
type Downloader interface {
	Download(ctx context.Context, path string) error
}

// FileStore is a Store on the local filesystem rooted at Base.
type FileStore struct {
	Base string
}

// NewFileStore returns a FileStore rooted at base. An empty base falls back
// to "./var/cache" so that development runs work without extra setup.
func NewFileStore(base string) *FileStore {
	if base == "" {
		base = "./var/cache"
	}
	return &FileStore{Base: base}
}

func (s *FileStore) abs(p string) string {
	return filepath.Join(s.Base, filepath.FromSlash(p))
}

func (s *FileStore) EnsureDir(_ context.Context, dir string) error {
	return os.MkdirAll(s.abs(dir), 0o700)
}

func (s *FileStore) Exists(_ context.Context, p string) (bool, error) {
	_, err := os.Stat(s.abs(p))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (s *FileStore) ReadString(_ context.Context, p string) (string, error) {
	data, err := os.ReadFile(s.abs(p))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// WriteString replaces the file atomically via a temp file + rename, so a
// reader never sees a partial entry and the entry's timestamp always
// reflects the latest write.
func (s *FileStore) WriteString(_ context.Context, p, value string) error {
	target := s.abs(p)
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".entry-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.WriteString(value); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, target)
}

func (s *FileStore) Remove(_ context.Context, p string) error {
	err := os.Remove(s.abs(p))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// CreatedAt reports the entry's modification time. Entries are only ever
// replaced whole, so this is the creation time of the current entry.
func (s *FileStore) CreatedAt(_ context.Context, p string) (time.Time, error) {
	fi, err := os.Stat(s.abs(p))
	if err != nil {
		return time.Time{}, err
	}
	return fi.ModTime(), nil
}
