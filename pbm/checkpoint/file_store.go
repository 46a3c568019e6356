package checkpoint

import (
	"os"

	"github.com/pkg/errors"

	"github.com/percona/mongo-shard-replicator/pbm"
	"github.com/percona/mongo-shard-replicator/pbm/log"
)

// FileStore is the default Checkpoint Store: a single file path,
// rewritten atomically with a ".backup" sidecar rotation, grounded
// directly on connector.py's write_oplog_progress/read_oplog_progress
// (spec §4.1 "Checkpoint flush", §6 "Checkpoint file").
type FileStore struct {
	path string
	log  *log.Event
}

// NewFileStore validates that path is writable (spec §4.1 "Unwritable
// checkpoint path is fatal at startup") and returns a FileStore.
func NewFileStore(path string, lg *log.Event) (*FileStore, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "checkpoint path is not writable")
	}
	f.Close()
	return &FileStore{path: path, log: lg}, nil
}

// Load reads the checkpoint file. An unreadable or corrupt file is
// treated as empty and info-logged, per spec §4.1 "Failure semantics".
func (s *FileStore) Load() (map[string]pbm.LogPosition, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		s.log.Info("checkpoint file %s unreadable, starting fresh: %v", s.path, err)
		return make(map[string]pbm.LogPosition), nil
	}

	snapshot, err := decode(data)
	if err != nil {
		s.log.Info("checkpoint file %s unreadable, starting fresh: %v", s.path, err)
		return make(map[string]pbm.LogPosition), nil
	}
	return snapshot, nil
}

// Save writes snapshot with write-then-rename semantics: the existing
// file is first renamed to a ".backup" sidecar, the new content is
// written to the original path, and the backup is removed only on
// success (spec §4.1 "Checkpoint flush").
func (s *FileStore) Save(snapshot map[string]pbm.LogPosition) error {
	data, err := encode(snapshot)
	if err != nil {
		return err
	}

	backup := s.path + ".backup"
	hadExisting := true
	if err := os.Rename(s.path, backup); err != nil {
		if !os.IsNotExist(err) {
			return errors.Wrap(err, "rotate checkpoint backup")
		}
		hadExisting = false
	}

	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		// best-effort restore so a failed flush doesn't lose progress
		if hadExisting {
			os.Rename(backup, s.path)
		}
		return errors.Wrap(err, "write checkpoint file")
	}

	if hadExisting {
		if err := os.Remove(backup); err != nil {
			return errors.Wrap(err, "remove checkpoint backup")
		}
	}
	return nil
}
