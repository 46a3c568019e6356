package oplog

import (
	"context"

	"github.com/pkg/errors"

	"github.com/percona/mongo-shard-replicator/pbm"
	"github.com/percona/mongo-shard-replicator/pbm/sink"
)

// rollback implements spec §4.3.3's reconciliation procedure:
//
//  1. For each Sink, query GetLastDoc across the shard's namespaces and
//     take the maximum _ts — that Sink's own high-water mark.
//  2. The safe floor T_sink is the minimum of those per-sink marks
//     ("if multiple Sinks disagree, the minimum _ts across them is
//     used"); T_safe further clamps that to the first position still
//     present in the log after the failover.
//  3. For each Sink, Search(T_safe, <that Sink's own mark>) and remove
//     every document returned — undoing writes the old primary made
//     that the new primary never saw.
//  4. The checkpoint resumes at T_safe.
//
// A Sink with nothing in any of the shard's namespaces (GetLastDoc
// ok=false for all of them) is treated as already fresh and excluded
// from both the minimum computation and the purge pass — there is
// nothing stale in it to remove.
func (t *Tailer) rollback(ctx context.Context) error {
	sinks := t.cfg.Sinks.Sinks()
	namespaces := t.rollbackNamespaces()

	if len(sinks) == 0 {
		return t.jumpToTail(ctx)
	}

	marks := make([]pbm.LogPosition, len(sinks))
	found := make([]bool, len(sinks))
	anyFound := false

	for i, s := range sinks {
		mark, ok, err := sinkHighWaterMark(ctx, s, namespaces)
		if err != nil {
			return errors.Wrap(err, "query sink high-water mark")
		}
		marks[i], found[i] = mark, ok
		if ok {
			anyFound = true
		}
	}

	if !anyFound {
		// every configured sink is empty for this shard: nothing to
		// reconcile, resume at the current tail.
		return t.jumpToTail(ctx)
	}

	tSink := pbm.Zero
	first := true
	for i := range sinks {
		if !found[i] {
			continue
		}
		if first || marks[i].Before(tSink) {
			tSink = marks[i]
			first = false
		}
	}

	firstPos, err := t.cfg.Source.FirstPosition(ctx)
	if err != nil {
		return errors.Wrap(err, "read first log position on new primary")
	}
	tSafe := pbm.MinPosition(tSink, firstPos)

	for i, s := range sinks {
		if !found[i] {
			continue
		}
		if err := purgeSink(ctx, s, namespaces, tSafe, marks[i], t.cfg.idField()); err != nil {
			return errors.Wrap(err, "purge sink")
		}
	}

	t.cfg.Progress.Set(t.cfg.Shard.ID, tSafe)
	t.cfg.Log.Warn("rollback reconciled, checkpoint now %s", tSafe)
	return nil
}

func (t *Tailer) jumpToTail(ctx context.Context) error {
	last, err := t.cfg.Source.LastPosition(ctx)
	if err != nil {
		return errors.Wrap(err, "read current log tail")
	}
	t.cfg.Progress.Set(t.cfg.Shard.ID, last)
	t.cfg.Log.Warn("sinks fresh for this shard, resuming at current tail %s", last)
	return nil
}

// rollbackNamespaces returns the destination (sink-side) namespaces
// this shard may have written, used to scope both GetLastDoc and
// Search calls during reconciliation.
func (t *Tailer) rollbackNamespaces() []string {
	src := t.cfg.Namespaces.Namespaces()
	out := make([]string, 0, len(src))
	for _, ns := range src {
		out = append(out, t.cfg.Namespaces.Rewrite(ns))
	}
	return out
}

func sinkHighWaterMark(ctx context.Context, s sink.Sink, namespaces []string) (pbm.LogPosition, bool, error) {
	mark := pbm.Zero
	found := false
	for _, ns := range namespaces {
		doc, ok, err := s.GetLastDoc(ctx, ns)
		if err != nil {
			return pbm.Zero, false, err
		}
		if !ok {
			continue
		}
		ts, _ := doc["_ts"].(int64)
		pos := pbm.FromInt64(ts)
		if !found || pos.After(mark) {
			mark = pos
			found = true
		}
	}
	return mark, found, nil
}

func purgeSink(ctx context.Context, s sink.Sink, namespaces []string, tSafe, tSink pbm.LogPosition, idField string) error {
	for _, ns := range namespaces {
		it, err := s.Search(ctx, ns, tSafe, tSink)
		if err != nil {
			return errors.Wrapf(err, "search %s", ns)
		}
		err = drainAndRemove(ctx, s, it, ns, tSafe, idField)
		closeErr := it.Close()
		if err != nil {
			return err
		}
		if closeErr != nil {
			return errors.Wrapf(closeErr, "close search result for %s", ns)
		}
	}
	return nil
}

func drainAndRemove(ctx context.Context, s sink.Sink, it sink.DocIterator, ns string, at pbm.LogPosition, idField string) error {
	for it.Next(ctx) {
		doc := it.Doc()
		id, ok := doc[idField]
		if !ok {
			id = doc["_id"]
		}
		if err := s.Remove(ctx, id, ns, at); err != nil {
			return errors.Wrapf(err, "remove stale doc from %s", ns)
		}
	}
	return errors.Wrapf(it.Err(), "search %s", ns)
}
