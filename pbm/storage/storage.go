// Package storage provides the pluggable blob storage the Checkpoint
// Store's remote backends persist to — the same abstraction
// pbm/restore reads backup artifacts through (stg.SourceReader,
// stg.FileStat).
package storage

import (
	"io"

	"github.com/pkg/errors"
)

// ErrNotFound is returned by SourceReader/FileStat when the named
// object does not exist.
var ErrNotFound = errors.New("storage: object not found")

// FileInfo describes a stored object.
type FileInfo struct {
	Name string
	Size int64
}

// Storage is the target-agnostic blob store contract. All
// implementations must be safe for concurrent use: the Supervisor and,
// in multi-process deployments, other Supervisor instances may read
// and write the same key.
type Storage interface {
	// Save writes data under name, replacing any prior object.
	Save(name string, data io.Reader, size int64) error
	// SourceReader opens the named object for reading. Callers must
	// Close it.
	SourceReader(name string) (io.ReadCloser, error)
	// FileStat returns metadata for the named object.
	FileStat(name string) (FileInfo, error)
	// Delete removes the named object. Deleting a missing object is
	// not an error.
	Delete(name string) error
}
