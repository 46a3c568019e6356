package sink

import (
	"context"
	"testing"

	"github.com/percona/mongo-shard-replicator/pbm"
)

func TestSimulatorUpsertCollapsesRepeatedWrites(t *testing.T) {
	s := NewSimulator("_id")
	ctx := context.Background()

	if err := s.Upsert(ctx, Doc{"_id": 1, "v": "a"}, "db.coll", pbm.LogPosition{T: 1, I: 1}); err != nil {
		t.Fatal(err)
	}
	if err := s.Upsert(ctx, Doc{"_id": 1, "v": "b"}, "db.coll", pbm.LogPosition{T: 2, I: 1}); err != nil {
		t.Fatal(err)
	}
	if got := s.Count(); got != 1 {
		t.Fatalf("Count() = %d, want 1 (repeated writes to the same id collapse)", got)
	}

	doc, ok, err := s.GetLastDoc(ctx, "db.coll")
	if err != nil || !ok {
		t.Fatalf("GetLastDoc: ok=%v err=%v", ok, err)
	}
	if doc["v"] != "b" {
		t.Fatalf("GetLastDoc() returned stale content: %#v", doc)
	}
}

func TestSimulatorRemoveMissingIsNotAnError(t *testing.T) {
	s := NewSimulator("_id")
	if err := s.Remove(context.Background(), 42, "db.coll", pbm.LogPosition{T: 1, I: 1}); err != nil {
		t.Fatalf("removing an absent document must not error: %v", err)
	}
}

func TestSimulatorSearchBoundsByTimestamp(t *testing.T) {
	s := NewSimulator("_id")
	ctx := context.Background()

	_ = s.Upsert(ctx, Doc{"_id": 1}, "db.coll", pbm.LogPosition{T: 1, I: 0})
	_ = s.Upsert(ctx, Doc{"_id": 2}, "db.coll", pbm.LogPosition{T: 2, I: 0})
	_ = s.Upsert(ctx, Doc{"_id": 3}, "db.coll", pbm.LogPosition{T: 3, I: 0})

	it, err := s.Search(ctx, "db.coll", pbm.LogPosition{T: 2, I: 0}, pbm.LogPosition{T: 3, I: 0})
	if err != nil {
		t.Fatal(err)
	}
	defer it.Close()

	var ids []interface{}
	for it.Next(ctx) {
		ids = append(ids, it.Doc()["_id"])
	}
	if err := it.Err(); err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 {
		t.Fatalf("Search returned %d docs, want 2 (ids 2 and 3)", len(ids))
	}
}

func TestSimulatorBulkUpsertEmptyStreamIsEmptyStreamError(t *testing.T) {
	s := NewSimulator("_id")
	err := s.BulkUpsert(context.Background(), newSliceIterator(nil), "db.coll", pbm.LogPosition{T: 1, I: 0})
	if err != pbm.ErrEmptyStream {
		t.Fatalf("BulkUpsert(empty) = %v, want pbm.ErrEmptyStream", err)
	}
}

func TestSimulatorGetLastDocIncludesRemovedDocs(t *testing.T) {
	s := NewSimulator("_id")
	ctx := context.Background()

	_ = s.Upsert(ctx, Doc{"_id": 1}, "db.coll", pbm.LogPosition{T: 1, I: 0})
	_ = s.Remove(ctx, 1, "db.coll", pbm.LogPosition{T: 5, I: 0})

	doc, ok, err := s.GetLastDoc(ctx, "db.coll")
	if err != nil || !ok {
		t.Fatalf("GetLastDoc: ok=%v err=%v", ok, err)
	}
	if doc["_ts"] != (pbm.LogPosition{T: 5, I: 0}).ToInt64() {
		t.Fatalf("GetLastDoc after removal should still report the removal's ts, got %#v", doc)
	}
}
