package sink

import (
	"context"
	"testing"

	"github.com/percona/mongo-shard-replicator/pbm"
)

func TestFanOutWritesToEverySink(t *testing.T) {
	a := NewSimulator("_id")
	b := NewSimulator("_id")
	fo := NewFanOut([]Sink{a, b}, false, 0, nil)

	err := fo.Upsert(context.Background(), Doc{"_id": 1}, "db.coll", pbm.LogPosition{T: 1, I: 0})
	if err != nil {
		t.Fatal(err)
	}
	if a.Count() != 1 || b.Count() != 1 {
		t.Fatalf("expected both sinks to receive the write, got a=%d b=%d", a.Count(), b.Count())
	}
}

// failingSink always fails Upsert, used to exercise continueOnError.
type failingSink struct{ Sink }

func (failingSink) Upsert(context.Context, Doc, string, pbm.LogPosition) error {
	return errBoom
}

var errBoom = &boomErr{}

type boomErr struct{}

func (*boomErr) Error() string { return "boom" }

func TestFanOutReturnsSinkErrorByDefault(t *testing.T) {
	good := NewSimulator("_id")
	fo := NewFanOut([]Sink{failingSink{good}, good}, false, 0, nil)

	err := fo.Upsert(context.Background(), Doc{"_id": 1}, "db.coll", pbm.LogPosition{T: 1, I: 0})
	if err == nil {
		t.Fatal("expected the failing sink's error to propagate when continueOnError is false")
	}
}

func TestFanOutContinuesPastErrorsWhenConfigured(t *testing.T) {
	good := NewSimulator("_id")
	fo := NewFanOut([]Sink{failingSink{good}, good}, true, 0, nil)

	err := fo.Upsert(context.Background(), Doc{"_id": 1}, "db.coll", pbm.LogPosition{T: 1, I: 0})
	if err != nil {
		t.Fatalf("continueOnError should swallow per-sink errors, got %v", err)
	}
	if good.Count() != 1 {
		t.Fatal("the healthy sink must still receive the write")
	}
}

func TestFanOutSinksPreservesDeclarationOrder(t *testing.T) {
	a := NewSimulator("_id")
	b := NewSimulator("_id")
	c := NewSimulator("_id")
	fo := NewFanOut([]Sink{a, b, c}, false, 0, nil)

	got := fo.Sinks()
	if len(got) != 3 || got[0] != Sink(a) || got[1] != Sink(b) || got[2] != Sink(c) {
		t.Fatal("Sinks() must return the configured sinks in declaration order")
	}
}
