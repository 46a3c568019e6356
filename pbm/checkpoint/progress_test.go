package checkpoint

import (
	"testing"

	"github.com/percona/mongo-shard-replicator/pbm"
)

func TestMapGetSet(t *testing.T) {
	m := NewMap()
	if _, ok := m.Get("rs0"); ok {
		t.Fatal("empty map should report no position for any shard")
	}

	pos := pbm.LogPosition{T: 10, I: 1}
	m.Set("rs0", pos)
	got, ok := m.Get("rs0")
	if !ok || got != pos {
		t.Fatalf("Get(rs0) = %v, %v; want %v, true", got, ok, pos)
	}
}

func TestMapLoadReplacesContents(t *testing.T) {
	m := NewMap()
	m.Set("rs0", pbm.LogPosition{T: 1, I: 1})

	m.Load(map[string]pbm.LogPosition{"rs1": {T: 2, I: 2}})

	if _, ok := m.Get("rs0"); ok {
		t.Fatal("Load must replace the whole map, not merge into it")
	}
	if got, ok := m.Get("rs1"); !ok || got != (pbm.LogPosition{T: 2, I: 2}) {
		t.Fatalf("Get(rs1) = %v, %v", got, ok)
	}
}

func TestMapWithExclusiveSectionSnapshotsIndependently(t *testing.T) {
	m := NewMap()
	m.Set("rs0", pbm.LogPosition{T: 1, I: 1})

	var snapshot map[string]pbm.LogPosition
	m.WithExclusiveSection(func(s map[string]pbm.LogPosition) {
		snapshot = s
	})

	m.Set("rs0", pbm.LogPosition{T: 99, I: 99})

	if snapshot["rs0"] != (pbm.LogPosition{T: 1, I: 1}) {
		t.Fatalf("snapshot must be a copy unaffected by later Set calls, got %v", snapshot["rs0"])
	}
}
