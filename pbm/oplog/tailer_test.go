package oplog

import (
	"context"
	"testing"
	"time"

	"github.com/percona/mongo-shard-replicator/pbm"
	"github.com/percona/mongo-shard-replicator/pbm/checkpoint"
	"github.com/percona/mongo-shard-replicator/pbm/sink"
)

func ts(t, i uint32) pbm.LogPosition {
	return pbm.LogPosition{T: t, I: i}
}

func testConfig(t *testing.T, source Source, sinks *sink.FanOut, progress *checkpoint.Map, namespaces *pbm.NamespaceFilter) Config {
	t.Helper()
	if namespaces == nil {
		var err error
		namespaces, err = pbm.NewNamespaceFilter(nil, nil)
		if err != nil {
			t.Fatal(err)
		}
	}
	return Config{
		Shard:          pbm.ShardDescriptor{ID: "rs0"},
		Source:         source,
		Sinks:          sinks,
		Namespaces:     namespaces,
		UniqueKey:      "_id",
		BatchSize:      1,
		CollectionDump: true,
		Progress:       progress,
	}
}

// runUntilStopped starts the Tailer in the background and returns a
// function that stops it and waits for Run to return.
func runUntilStopped(t *testing.T, tlr *Tailer) func() error {
	t.Helper()
	errCh := make(chan error, 1)
	go func() { errCh <- tlr.Run(context.Background()) }()
	return func() error {
		tlr.Stop()
		select {
		case err := <-errCh:
			return err
		case <-time.After(2 * time.Second):
			t.Fatal("tailer did not stop in time")
			return nil
		}
	}
}

func TestTailerEmptyLogStopsImmediately(t *testing.T) {
	src := newFakeSource()
	sim := sink.NewSimulator("_id")
	fo := sink.NewFanOut([]sink.Sink{sim}, false, 0, nil)
	progress := checkpoint.NewMap()

	tlr := NewTailer(testConfig(t, src, fo, progress, nil))

	done := make(chan error, 1)
	go func() { done <- tlr.Run(context.Background()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("tailer did not exit on empty log")
	}
	if got := tlr.State(); got != StateStopped {
		t.Fatalf("state = %s, want stopped", got)
	}
}

func TestTailerDumpThenInsert(t *testing.T) {
	src := newFakeSource()
	src.setCollection("db.coll", []map[string]interface{}{
		{"_id": int32(1), "name": "alice"},
	})
	src.append(LogEntry{Position: ts(1, 1), Op: OpNoop})

	namespaces, err := pbm.NewNamespaceFilter([]string{"db.coll"}, nil)
	if err != nil {
		t.Fatal(err)
	}

	sim := sink.NewSimulator("_id")
	fo := sink.NewFanOut([]sink.Sink{sim}, false, 0, nil)
	progress := checkpoint.NewMap()

	tlr := NewTailer(testConfig(t, src, fo, progress, namespaces))
	stop := runUntilStopped(t, tlr)

	deadline := time.After(2 * time.Second)
	for sim.Count() == 0 {
		select {
		case <-deadline:
			t.Fatal("dumped document never reached the sink")
		case <-time.After(5 * time.Millisecond):
		}
	}

	src.append(LogEntry{
		Position:  ts(2, 1),
		Op:        OpInsert,
		Namespace: "db.coll",
		Object:    rawDoc(map[string]interface{}{"_id": int32(2), "name": "bob"}),
	})

	deadline = time.After(2 * time.Second)
	for sim.Count() < 2 {
		select {
		case <-deadline:
			t.Fatal("inserted document never reached the sink")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if err := stop(); err != nil {
		t.Fatalf("unexpected error on stop: %v", err)
	}

	if pos, ok := progress.Get("rs0"); !ok || pos.Before(ts(2, 1)) {
		t.Fatalf("checkpoint not advanced past insert: %v (ok=%v)", pos, ok)
	}
}

func TestTailerUpdateFetchesPostImage(t *testing.T) {
	src := newFakeSource()
	src.setCollection("db.coll", nil)
	src.append(LogEntry{Position: ts(1, 1), Op: OpNoop})

	namespaces, err := pbm.NewNamespaceFilter([]string{"db.coll"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	sim := sink.NewSimulator("_id")
	fo := sink.NewFanOut([]sink.Sink{sim}, false, 0, nil)
	progress := checkpoint.NewMap()

	tlr := NewTailer(testConfig(t, src, fo, progress, namespaces))
	stop := runUntilStopped(t, tlr)

	// seed the source with the current document, then deliver an
	// update oplog entry; the tailer must fetch the post-image rather
	// than replaying the update spec against its own view.
	src.setCollection("db.coll", []map[string]interface{}{
		{"_id": int32(1), "name": "alice", "age": 31},
	})
	src.append(LogEntry{
		Position:  ts(2, 1),
		Op:        OpUpdate,
		Namespace: "db.coll",
		Object:    rawDoc(map[string]interface{}{"$set": map[string]interface{}{"age": 31}}),
		Object2:   rawDoc(map[string]interface{}{"_id": int32(1)}),
	})

	deadline := time.After(2 * time.Second)
	for sim.Count() == 0 {
		select {
		case <-deadline:
			t.Fatal("updated document never reached the sink")
		case <-time.After(5 * time.Millisecond):
		}
	}
	if err := stop(); err != nil {
		t.Fatalf("unexpected error on stop: %v", err)
	}

	doc, ok, err := sim.GetLastDoc(context.Background(), "db.coll")
	if err != nil || !ok {
		t.Fatalf("GetLastDoc: ok=%v err=%v", ok, err)
	}
	if doc["age"] != int32(31) && doc["age"] != 31 {
		t.Fatalf("post-image age = %v, want 31", doc["age"])
	}
}

func TestTailerNamespaceFilterAndRename(t *testing.T) {
	src := newFakeSource()
	src.setCollection("db.skip", nil)
	src.append(LogEntry{Position: ts(1, 1), Op: OpNoop})

	namespaces, err := pbm.NewNamespaceFilter([]string{"db.src"}, []string{"db.dest"})
	if err != nil {
		t.Fatal(err)
	}
	sim := sink.NewSimulator("_id")
	fo := sink.NewFanOut([]sink.Sink{sim}, false, 0, nil)
	progress := checkpoint.NewMap()

	tlr := NewTailer(testConfig(t, src, fo, progress, namespaces))
	stop := runUntilStopped(t, tlr)

	src.append(LogEntry{
		Position:  ts(2, 1),
		Op:        OpInsert,
		Namespace: "db.skip",
		Object:    rawDoc(map[string]interface{}{"_id": int32(1)}),
	})
	src.append(LogEntry{
		Position:  ts(2, 2),
		Op:        OpInsert,
		Namespace: "db.src",
		Object:    rawDoc(map[string]interface{}{"_id": int32(2)}),
	})

	deadline := time.After(2 * time.Second)
	for sim.Count() == 0 {
		select {
		case <-deadline:
			t.Fatal("renamed-namespace document never reached the sink")
		case <-time.After(5 * time.Millisecond):
		}
	}
	if err := stop(); err != nil {
		t.Fatalf("unexpected error on stop: %v", err)
	}

	if sim.Count() != 1 {
		t.Fatalf("sink holds %d documents, want exactly the one from the allowed namespace", sim.Count())
	}
	if _, ok, _ := sim.GetLastDoc(context.Background(), "db.skip"); ok {
		t.Fatal("filtered namespace should never reach the sink")
	}
	if _, ok, _ := sim.GetLastDoc(context.Background(), "db.dest"); !ok {
		t.Fatal("allowed namespace should have been rewritten to its destination name")
	}
}

func TestTailerFieldProjection(t *testing.T) {
	src := newFakeSource()
	src.append(LogEntry{Position: ts(1, 1), Op: OpNoop})

	namespaces, err := pbm.NewNamespaceFilter([]string{"db.coll"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	sim := sink.NewSimulator("_id")
	fo := sink.NewFanOut([]sink.Sink{sim}, false, 0, nil)
	progress := checkpoint.NewMap()

	cfg := testConfig(t, src, fo, progress, namespaces)
	cfg.Fields = []string{"name"}
	tlr := NewTailer(cfg)
	stop := runUntilStopped(t, tlr)

	src.append(LogEntry{
		Position:  ts(2, 1),
		Op:        OpInsert,
		Namespace: "db.coll",
		Object:    rawDoc(map[string]interface{}{"_id": int32(1), "name": "alice", "ssn": "secret"}),
	})

	deadline := time.After(2 * time.Second)
	for sim.Count() == 0 {
		select {
		case <-deadline:
			t.Fatal("document never reached the sink")
		case <-time.After(5 * time.Millisecond):
		}
	}
	if err := stop(); err != nil {
		t.Fatalf("unexpected error on stop: %v", err)
	}

	doc, ok, err := sim.GetLastDoc(context.Background(), "db.coll")
	if err != nil || !ok {
		t.Fatalf("GetLastDoc: ok=%v err=%v", ok, err)
	}
	if _, present := doc["ssn"]; present {
		t.Fatal("projection allow-list should have dropped ssn")
	}
	if doc["name"] != "alice" {
		t.Fatalf("projection dropped an allow-listed field: %#v", doc)
	}
}

// TestTailerRollbackPurgesDivergedWrites simulates a failover: the
// primary accepted a write at ts(2,1) that the new primary's history
// never saw. The tailer must detect the cursor break, purge the sink's
// documents above the safe floor, and resume tailing.
func TestTailerRollbackPurgesDivergedWrites(t *testing.T) {
	src := newFakeSource()
	src.append(LogEntry{Position: ts(1, 1), Op: OpNoop})

	namespaces, err := pbm.NewNamespaceFilter([]string{"db.coll"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	sim := sink.NewSimulator("_id")
	fo := sink.NewFanOut([]sink.Sink{sim}, false, 0, nil)
	progress := checkpoint.NewMap()

	tlr := NewTailer(testConfig(t, src, fo, progress, namespaces))
	stop := runUntilStopped(t, tlr)

	src.append(LogEntry{
		Position:  ts(2, 1),
		Op:        OpInsert,
		Namespace: "db.coll",
		Object:    rawDoc(map[string]interface{}{"_id": int32(1), "name": "stale"}),
	})

	deadline := time.After(2 * time.Second)
	for sim.Count() == 0 {
		select {
		case <-deadline:
			t.Fatal("pre-rollback document never reached the sink")
		case <-time.After(5 * time.Millisecond):
		}
	}

	// the new primary's history only goes back to ts(1,1); everything
	// the old primary wrote at ts(2,1) never made it across the failover.
	src.truncateTo(ts(2, 1))

	deadline = time.After(2 * time.Second)
	for {
		if tlr.State() == StateTailing && sim.Count() == 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("rollback never purged the stale write (state=%s, count=%d)", tlr.State(), sim.Count())
		case <-time.After(5 * time.Millisecond):
		}
	}

	if err := stop(); err != nil {
		t.Fatalf("unexpected error on stop: %v", err)
	}

	pos, ok := progress.Get("rs0")
	if !ok {
		t.Fatal("rollback should have republished a checkpoint")
	}
	if pos.After(ts(2, 1)) {
		t.Fatalf("checkpoint %s was not rolled back below the diverged write", pos)
	}
}
