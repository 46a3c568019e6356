package storage

import (
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// Local stores objects as plain files under a root directory. The
// file-based Checkpoint Store (checkpoint.FileStore) does not use it;
// it writes its own path directly.
type Local struct {
	root string
}

// NewLocal returns a Local backend rooted at dir, creating it if absent.
func NewLocal(dir string) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create storage root")
	}
	return &Local{root: dir}, nil
}

func (l *Local) path(name string) string {
	return filepath.Join(l.root, filepath.FromSlash(name))
}

func (l *Local) Save(name string, data io.Reader, size int64) error {
	path := l.path(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "create storage directory")
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	if _, err := io.Copy(f, data); err != nil {
		f.Close()
		os.Remove(tmp)
		return errors.Wrap(err, "write temp file")
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return errors.Wrap(err, "close temp file")
	}
	return errors.Wrap(os.Rename(tmp, path), "rename temp file into place")
}

func (l *Local) SourceReader(name string) (io.ReadCloser, error) {
	f, err := os.Open(l.path(name))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	return f, errors.Wrap(err, "open object")
}

func (l *Local) FileStat(name string) (FileInfo, error) {
	fi, err := os.Stat(l.path(name))
	if os.IsNotExist(err) {
		return FileInfo{}, ErrNotFound
	}
	if err != nil {
		return FileInfo{}, errors.Wrap(err, "stat object")
	}
	return FileInfo{Name: name, Size: fi.Size()}, nil
}

func (l *Local) Delete(name string) error {
	err := os.Remove(l.path(name))
	if os.IsNotExist(err) {
		return nil
	}
	return errors.Wrap(err, "delete object")
}
