package oplog

import (
	"context"

	"github.com/pkg/errors"

	"github.com/percona/mongo-shard-replicator/pbm"
)

// tail implements spec §4.3.2: open a cursor just past the shard's
// checkpoint and apply every entry, publishing the advancing position
// to the Progress Map every batch_size entries or whenever the cursor
// would otherwise block waiting for new data. Returns pbm.ErrLogDivergence
// when the cursor breaks and the last checkpointed position no longer
// exists in the log (the rollback trigger), nil on a clean cooperative
// stop, and any other error as fatal.
func (t *Tailer) tail(ctx context.Context) error {
	shard := t.cfg.Shard.ID
	pos, _ := t.cfg.Progress.Get(shard)

	cur, err := t.cfg.Source.TailFrom(ctx, pos)
	if err != nil {
		return errors.Wrap(err, "open tail cursor")
	}
	defer cur.Close(ctx)

	batchSize := t.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 1
	}
	sinceSeen := 0

	for t.canRun() {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if !cur.Next(ctx) {
			if err := cur.Err(); err != nil {
				has, herr := t.cfg.Source.HasEntryAt(ctx, pos)
				if herr == nil && !has {
					return pbm.ErrLogDivergence
				}
				return errors.Wrap(err, "tail cursor")
			}
			// cursor would block: publish and keep waiting.
			t.cfg.Progress.Set(shard, pos)
			sinceSeen = 0
			continue
		}

		entry := cur.Entry()
		newPos, err := t.applyEntry(ctx, entry)
		if err != nil {
			var opErr *pbm.OperationError
			if errors.As(err, &opErr) {
				t.cfg.Log.Warn("dropping entry at %s: %v", entry.Position, opErr)
				newPos = entry.Position
			} else {
				return err
			}
		}

		pos = newPos
		sinceSeen++
		if sinceSeen >= batchSize {
			t.cfg.Progress.Set(shard, pos)
			sinceSeen = 0
		}
	}

	t.cfg.Progress.Set(shard, pos)
	return nil
}

// applyEntry dispatches one log entry to the sinks and returns the
// position it advances the checkpoint to — the entry's own position on
// success, or on any skip (dropped migration chunk, filtered
// namespace, noop, deleted-before-fetch) since a skipped entry still
// must not be replayed on restart.
func (t *Tailer) applyEntry(ctx context.Context, entry LogEntry) (pbm.LogPosition, error) {
	if entry.FromMigrate {
		// spec §4.3.2: "chunk-migration artifacts (fromMigrate) are
		// dropped" — the owning shard already saw this write natively.
		return entry.Position, nil
	}

	switch entry.Op {
	case OpNoop:
		return entry.Position, nil

	case OpCommand:
		cmd, err := entry.ObjectMap()
		if err != nil {
			return entry.Position, &pbm.OperationError{Op: "decode command", Err: err}
		}
		destNs := t.cfg.Namespaces.Rewrite(entry.Namespace)
		if err := t.cfg.Sinks.HandleCommand(ctx, cmd, destNs, entry.Position); err != nil {
			return entry.Position, &pbm.OperationError{Op: "handle command", Err: err}
		}
		return entry.Position, nil
	}

	if !t.cfg.Namespaces.Allowed(entry.Namespace) {
		return entry.Position, nil
	}
	destNs := t.cfg.Namespaces.Rewrite(entry.Namespace)

	switch entry.Op {
	case OpInsert:
		doc, err := entry.ObjectMap()
		if err != nil {
			return entry.Position, &pbm.OperationError{Op: "decode insert", Err: err}
		}
		doc = t.project(doc)
		if err := t.dispatchUpsert(ctx, doc, destNs, entry.Position); err != nil {
			return entry.Position, err
		}

	case OpUpdate:
		id, err := updateTargetID(entry)
		if err != nil {
			return entry.Position, &pbm.OperationError{Op: "decode update selector", Err: err}
		}
		spec, err := entry.ObjectMap()
		if err != nil {
			return entry.Position, &pbm.OperationError{Op: "decode update spec", Err: err}
		}

		post, applied, err := t.applyUpdate(ctx, destNs, entry.Namespace, id, spec, entry.Position)
		if err != nil {
			return entry.Position, err
		}
		if !applied {
			// document no longer exists on the source; nothing to upsert.
			return entry.Position, nil
		}
		if err := t.dispatchUpsert(ctx, post, destNs, entry.Position); err != nil {
			return entry.Position, err
		}

	case OpDelete:
		id, err := deleteTargetID(entry)
		if err != nil {
			return entry.Position, &pbm.OperationError{Op: "decode delete selector", Err: err}
		}
		if err := t.dispatchRemove(ctx, id, destNs, entry.Position); err != nil {
			return entry.Position, err
		}
	}

	return entry.Position, nil
}

// applyUpdate resolves an update's post-image: it fetches the current
// document from the source and applies the update spec in memory. A
// sink's optional sink.Updater extension is not consulted here.
func (t *Tailer) applyUpdate(ctx context.Context, destNs, srcNs string, id interface{}, spec map[string]interface{}, position pbm.LogPosition) (map[string]interface{}, bool, error) {
	var doc map[string]interface{}
	var found bool

	err := retryBackoff(ctx, t.canRun, func() error {
		var err error
		doc, found, err = t.cfg.Source.FetchDocument(ctx, srcNs, id)
		return err
	})
	if err != nil {
		return nil, false, &pbm.ConnectionError{Op: "fetch post-image", Err: err}
	}
	if !found {
		return nil, false, nil
	}

	post, err := ApplyUpdateSpec(doc, spec, t.cfg.UpdateFallback)
	if err != nil {
		return nil, false, &pbm.OperationError{Op: "apply update spec", Err: err}
	}
	return t.project(post), true, nil
}

func (t *Tailer) dispatchUpsert(ctx context.Context, doc map[string]interface{}, ns string, position pbm.LogPosition) error {
	err := retryTransient(ctx, t.canRun, func() error {
		return t.cfg.Sinks.Upsert(ctx, doc, ns, position)
	})
	if err != nil {
		return &pbm.OperationError{Op: "sink upsert", Err: err}
	}
	return nil
}

func (t *Tailer) dispatchRemove(ctx context.Context, id interface{}, ns string, position pbm.LogPosition) error {
	err := retryTransient(ctx, t.canRun, func() error {
		return t.cfg.Sinks.Remove(ctx, id, ns, position)
	})
	if err != nil {
		return &pbm.OperationError{Op: "sink remove", Err: err}
	}
	return nil
}

// updateTargetID extracts the document id an update applies to from
// the oplog's o2 selector, which is always {_id: <id>} for update ops.
func updateTargetID(entry LogEntry) (interface{}, error) {
	sel, err := entry.Object2Map()
	if err != nil {
		return nil, err
	}
	id, ok := sel["_id"]
	if !ok {
		return nil, errors.New("update selector missing _id")
	}
	return id, nil
}

// deleteTargetID extracts the deleted document's id, held directly in o.
func deleteTargetID(entry LogEntry) (interface{}, error) {
	doc, err := entry.ObjectMap()
	if err != nil {
		return nil, err
	}
	id, ok := doc["_id"]
	if !ok {
		return nil, errors.New("delete object missing _id")
	}
	return id, nil
}
