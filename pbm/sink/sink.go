// Package sink defines the target-adapter contract (C3, spec §4.5) and
// the fan-out dispatcher that applies it across multiple configured
// sinks (spec §4.4), plus two built-in reference implementations.
package sink

import (
	"context"

	"github.com/mongodb/mongo-tools/common/idx"

	"github.com/percona/mongo-shard-replicator/pbm"
)

// Doc is a source document or sink-bound payload: an arbitrary
// key/value tree addressable by its unique id field (spec §3
// "SourceDocument").
type Doc = map[string]interface{}

// DocIterator is a lazy, finite stream of documents, used for
// BulkUpsert and Search results.
type DocIterator interface {
	Next(ctx context.Context) bool
	Doc() Doc
	Err() error
	Close() error
}

// Sink is the target-adapter contract. Every operation must be
// idempotent under replay (spec §4.5) — the engine promises
// at-least-once delivery, never exactly-once.
type Sink interface {
	// Upsert writes doc (which must contain the configured id field)
	// into ns, recording position as the source-side provenance.
	Upsert(ctx context.Context, doc Doc, ns string, position pbm.LogPosition) error

	// BulkUpsert drains the (possibly large) stream into ns. An empty
	// stream is tolerated silently (pbm.ErrEmptyStream semantics).
	BulkUpsert(ctx context.Context, docs DocIterator, ns string, position pbm.LogPosition) error

	// Remove deletes the document identified by id from ns. A missing
	// document is not an error.
	Remove(ctx context.Context, id interface{}, ns string, position pbm.LogPosition) error

	// Search returns every document in ns whose _ts falls in
	// [startTS, endTS], used only during rollback reconciliation.
	Search(ctx context.Context, ns string, startTS, endTS pbm.LogPosition) (DocIterator, error)

	// GetLastDoc returns the document with the maximum _ts in ns, or
	// ok=false if the sink holds nothing for that namespace.
	GetLastDoc(ctx context.Context, ns string) (doc Doc, ok bool, err error)

	// Commit synchronously flushes any buffered writes.
	Commit(ctx context.Context) error

	// Stop releases any resources held by the sink, including its
	// background committer if one is running.
	Stop(ctx context.Context) error
}

// Updater is an optional Sink extension: a sink that can apply an
// update specification itself rather than have the engine fetch the
// post-image and call Upsert (spec §4.5 table, "update ... optional;
// defaults to fetch+upsert").
type Updater interface {
	Update(ctx context.Context, id interface{}, spec Doc, ns string, position pbm.LogPosition) (Doc, error)
}

// CommandHandler is an optional Sink extension for command oplog
// entries (drop collection, drop database, rename) — spec §4.3.2
// "command → passed to a command helper ... if the sink declares
// support; otherwise ignored."
type CommandHandler interface {
	HandleCommand(ctx context.Context, cmd Doc, ns string, position pbm.LogPosition) error
}

// IndexAware is an optional Sink extension for receiving a source
// namespace's index catalog, for sinks that want to mirror unique-key
// or secondary-index structure (spec §9's `idx.IndexCatalog` usage in
// the teacher's restore path). The engine never calls Indexes: the
// dump captures no index catalog, so no sink receives one.
type IndexAware interface {
	Indexes(ns string, catalog *idx.IndexCatalog)
}
