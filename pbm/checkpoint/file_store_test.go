package checkpoint

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/percona/mongo-shard-replicator/pbm"
)

func TestFileStoreSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "replicator.checkpoint")
	store, err := NewFileStore(path, nil)
	if err != nil {
		t.Fatal(err)
	}

	snapshot := map[string]pbm.LogPosition{
		"rs0": {T: 100, I: 1},
		"rs1": {T: 100, I: 2},
	}
	if err := store.Save(snapshot); err != nil {
		t.Fatal(err)
	}

	got, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(snapshot) {
		t.Fatalf("Load() = %v, want %v", got, snapshot)
	}
	for shard, pos := range snapshot {
		if got[shard] != pos {
			t.Fatalf("Load()[%s] = %v, want %v", shard, got[shard], pos)
		}
	}

	if _, err := os.Stat(path + ".backup"); !os.IsNotExist(err) {
		t.Fatal("a successful Save must remove the rotated backup file")
	}
}

func TestFileStoreLoadMissingFileIsEmptyNotError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "replicator.checkpoint")
	store, err := NewFileStore(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("a missing checkpoint file must not be an error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("Load() = %v, want empty", got)
	}
}

func TestFileStoreLoadCorruptFileIsEmptyNotError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "replicator.checkpoint")
	store, err := NewFileStore(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("a corrupt checkpoint file must not be an error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("Load() = %v, want empty", got)
	}
}

func TestFileStoreSaveTwiceLeavesNoBackupResidue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "replicator.checkpoint")
	store, err := NewFileStore(path, nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := store.Save(map[string]pbm.LogPosition{"rs0": {T: 1, I: 1}}); err != nil {
		t.Fatal(err)
	}
	if err := store.Save(map[string]pbm.LogPosition{"rs0": {T: 2, I: 2}}); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(path + ".backup"); !os.IsNotExist(err) {
		t.Fatal("repeated saves must not leave a stale .backup sidecar behind")
	}

	got, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if got["rs0"] != (pbm.LogPosition{T: 2, I: 2}) {
		t.Fatalf("Load() = %v, want the second save's content", got)
	}
}
