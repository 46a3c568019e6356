package oplog

import (
	"context"

	"github.com/percona/mongo-shard-replicator/pbm"
)

// Cursor is a tailable handle on a shard's change log: it blocks
// awaiting new entries rather than returning end-of-stream (spec
// GLOSSARY "Tailable cursor").
type Cursor interface {
	Next(ctx context.Context) bool
	Entry() LogEntry
	Err() error
	Close(ctx context.Context) error
}

// DocStream is a lazy, finite stream of source documents, used by the
// initial dump (spec §4.3.1).
type DocStream interface {
	Next(ctx context.Context) bool
	Doc() map[string]interface{}
	Err() error
	Close(ctx context.Context) error
}

// Source abstracts the shard-primary connection a Tailer drives. The
// production implementation (MongoSource) wraps a mongo-driver Client;
// tests substitute a fake, the same way the teacher abstracts storage
// behind pbm/storage.Storage rather than coupling pbm/restore directly
// to a filesystem or S3 SDK.
type Source interface {
	// LastPosition returns the most recent position in the log right
	// now — used both to seed dump_start (spec §4.3.1 step 1) and to
	// detect a fresh (post-rollback) shard.
	LastPosition(ctx context.Context) (pbm.LogPosition, error)

	// FirstPosition returns the oldest position still present in the
	// log — "the first log position on the new primary" spec §4.3.3
	// uses to bound the safe rollback floor once a shard has failed
	// over and its log has been truncated to the new primary's history.
	FirstPosition(ctx context.Context) (pbm.LogPosition, error)

	// TailFrom opens a tailable cursor that yields every log entry
	// strictly after from (spec §4.3.2 / invariant P4). If from is the
	// zero position, it starts at the oldest entry still in the log.
	TailFrom(ctx context.Context, from pbm.LogPosition) (Cursor, error)

	// HasEntryAt reports whether the log still contains an entry at
	// exactly pos — used to detect divergence (spec §4.3.3 trigger).
	HasEntryAt(ctx context.Context, pos pbm.LogPosition) (bool, error)

	// StreamCollection opens a DocStream over every document in ns,
	// for the initial dump.
	StreamCollection(ctx context.Context, ns string) (DocStream, error)

	// NamespaceExists reports whether ns exists on this shard (spec
	// §4.3.1 step 2: "For each namespace in the included set that
	// exists on this shard").
	NamespaceExists(ctx context.Context, ns string) (bool, error)

	// FetchDocument resolves the current state of (ns, id) from the
	// source, used to compute an update's post-image (spec §4.3.2).
	FetchDocument(ctx context.Context, ns string, id interface{}) (map[string]interface{}, bool, error)

	// Close releases the shard connection.
	Close(ctx context.Context) error
}
