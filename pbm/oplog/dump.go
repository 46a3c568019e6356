package oplog

import (
	"context"

	"github.com/pkg/errors"

	"github.com/percona/mongo-shard-replicator/pbm"
	"github.com/percona/mongo-shard-replicator/pbm/sink"
)

// dump implements spec §4.3.1: stream every included namespace that
// exists on this shard into the sinks in batch_size chunks, tagging
// every document with dumpStart, then publish dumpStart as the
// shard's checkpoint. Grounded on the teacher's chunked-restore shape
// (replayChunk/applyOplog batching) and connector.py's `dump_collection`.
func (t *Tailer) dump(ctx context.Context, dumpStart pbm.LogPosition) error {
	for _, ns := range t.dumpNamespaces() {
		exists, err := t.cfg.Source.NamespaceExists(ctx, ns)
		if err != nil {
			return errors.Wrapf(err, "check namespace %s", ns)
		}
		if !exists {
			continue
		}
		if err := t.dumpNamespace(ctx, ns, dumpStart); err != nil {
			return err
		}
	}

	if err := t.cfg.Sinks.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit dump")
	}

	t.cfg.Progress.Set(t.cfg.Shard.ID, dumpStart)
	t.cfg.Log.Info("dump complete, checkpoint at %s", dumpStart)
	return nil
}

func (t *Tailer) dumpNamespace(ctx context.Context, ns string, dumpStart pbm.LogPosition) error {
	stream, err := t.cfg.Source.StreamCollection(ctx, ns)
	if err != nil {
		return errors.Wrapf(err, "open stream for %s", ns)
	}
	defer stream.Close(ctx)

	destNs := t.cfg.Namespaces.Rewrite(ns)
	batchSize := t.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 1
	}

	batch := make([]sink.Doc, 0, batchSize)
	for stream.Next(ctx) {
		if !t.canRun() {
			return errors.New("dump interrupted")
		}

		doc := t.project(stream.Doc())
		doc["ns"] = destNs
		doc["_ts"] = dumpStart.ToInt64()
		batch = append(batch, doc)

		if len(batch) >= batchSize {
			if err := t.flushDumpBatch(ctx, batch, destNs, dumpStart); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := stream.Err(); err != nil {
		return errors.Wrapf(err, "stream %s", ns)
	}
	if len(batch) > 0 {
		if err := t.flushDumpBatch(ctx, batch, destNs, dumpStart); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tailer) flushDumpBatch(ctx context.Context, batch []sink.Doc, destNs string, dumpStart pbm.LogPosition) error {
	// copy: BulkUpsert's iterator reads lazily and the caller reuses
	// the backing slice for the next batch.
	docs := make([]sink.Doc, len(batch))
	copy(docs, batch)

	err := t.cfg.Sinks.BulkUpsert(ctx, docs, destNs, dumpStart)
	if err == nil {
		return nil
	}
	if t.cfg.ContinueOnError {
		t.cfg.Log.Warn("dump batch for %s failed, continuing: %v", destNs, err)
		return nil
	}
	return errors.Wrapf(err, "bulk upsert into %s", destNs)
}

// dumpNamespaces returns the namespaces to dump: the explicit included
// set only. When no set is configured it returns nothing; the shard's
// own database/collection list is not enumerated, as Source has no
// catalog call for it. Here we dump the
// configured set, matching spec §6 where `namespace-set` is the
// primary selection mechanism; an empty set with CollectionDump
// enabled dumps nothing (there is nothing to enumerate without a
// catalog call), the same restriction connector.py places on users who
// skip its `--namespace-set` knob while using a plain cursor source.
func (t *Tailer) dumpNamespaces() []string {
	return t.cfg.Namespaces.Namespaces()
}
