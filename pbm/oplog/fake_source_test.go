package oplog

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/percona/mongo-shard-replicator/pbm"
)

// errCursorBroken simulates a tailable cursor that was invalidated by a
// failover, the trigger condition tail() uses to probe HasEntryAt.
var errCursorBroken = errors.New("cursor invalidated")

// fakeSource is an in-memory Source double: the log is a plain slice a
// test appends to directly, collections are plain maps keyed by id.
// No network, no goroutine of its own — Next polls with a short timeout
// so tests never block indefinitely on an idle tail.
type fakeSource struct {
	mu      sync.Mutex
	log     []LogEntry
	coll    map[string]map[interface{}]map[string]interface{}
	exists  map[string]bool
	invalid bool
	notify  chan struct{}
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		coll:   make(map[string]map[interface{}]map[string]interface{}),
		exists: make(map[string]bool),
		notify: make(chan struct{}),
	}
}

func (s *fakeSource) wake() {
	close(s.notify)
	s.notify = make(chan struct{})
}

// append adds an entry to the log, waking any blocked cursor.
func (s *fakeSource) append(e LogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = append(s.log, e)
	s.wake()
}

// truncateTo drops every entry with Position >= pos and marks the
// cursor invalid, simulating a failover that rewrote the shard's history.
func (s *fakeSource) truncateTo(pos pbm.LogPosition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.log[:0:0]
	for _, e := range s.log {
		if e.Position.Before(pos) {
			kept = append(kept, e)
		}
	}
	s.log = kept
	s.invalid = true
	s.wake()
}

func (s *fakeSource) setCollection(ns string, docs []map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := make(map[interface{}]map[string]interface{}, len(docs))
	for _, d := range docs {
		m[d["_id"]] = d
	}
	s.coll[ns] = m
	s.exists[ns] = true
}

func (s *fakeSource) LastPosition(context.Context) (pbm.LogPosition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.log) == 0 {
		return pbm.Zero, nil
	}
	return s.log[len(s.log)-1].Position, nil
}

func (s *fakeSource) FirstPosition(context.Context) (pbm.LogPosition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.log) == 0 {
		return pbm.Zero, nil
	}
	return s.log[0].Position, nil
}

func (s *fakeSource) HasEntryAt(_ context.Context, pos pbm.LogPosition) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pos == pbm.Zero {
		return true, nil
	}
	for _, e := range s.log {
		if e.Position == pos {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeSource) TailFrom(_ context.Context, from pbm.LogPosition) (Cursor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := 0
	for i, e := range s.log {
		if e.Position.After(from) {
			idx = i
			break
		}
		idx = i + 1
	}
	return &fakeCursor{src: s, idx: idx}, nil
}

func (s *fakeSource) NamespaceExists(_ context.Context, ns string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exists[ns], nil
}

func (s *fakeSource) StreamCollection(_ context.Context, ns string) (DocStream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	docs := make([]map[string]interface{}, 0, len(s.coll[ns]))
	for _, d := range s.coll[ns] {
		docs = append(docs, d)
	}
	return &fakeDocStream{docs: docs, i: -1}, nil
}

func (s *fakeSource) FetchDocument(_ context.Context, ns string, id interface{}) (map[string]interface{}, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.coll[ns][id]
	return d, ok, nil
}

func (s *fakeSource) Close(context.Context) error { return nil }

type fakeCursor struct {
	src   *fakeSource
	idx   int
	entry LogEntry
	err   error
}

func (c *fakeCursor) Next(ctx context.Context) bool {
	for {
		c.src.mu.Lock()
		if c.src.invalid {
			// consumed once: the next TailFrom call opens a fresh cursor
			// against the (already truncated) log, the way a real driver
			// reconnects cleanly after the failover that broke this one.
			c.src.invalid = false
			c.src.mu.Unlock()
			c.err = errCursorBroken
			return false
		}
		if c.idx < len(c.src.log) {
			c.entry = c.src.log[c.idx]
			c.idx++
			c.src.mu.Unlock()
			return true
		}
		ch := c.src.notify
		c.src.mu.Unlock()

		select {
		case <-ctx.Done():
			return false
		case <-ch:
		case <-time.After(5 * time.Millisecond):
			return false
		}
	}
}

func (c *fakeCursor) Entry() LogEntry        { return c.entry }
func (c *fakeCursor) Err() error             { return c.err }
func (c *fakeCursor) Close(context.Context) error { return nil }

type fakeDocStream struct {
	docs []map[string]interface{}
	i    int
}

func (d *fakeDocStream) Next(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	d.i++
	return d.i < len(d.docs)
}

func (d *fakeDocStream) Doc() map[string]interface{}   { return d.docs[d.i] }
func (d *fakeDocStream) Err() error                     { return nil }
func (d *fakeDocStream) Close(context.Context) error    { return nil }

// rawDoc bson-encodes m for use as a LogEntry's Object/Object2.
func rawDoc(m map[string]interface{}) bson.Raw {
	b, err := bson.Marshal(m)
	if err != nil {
		panic(err)
	}
	return bson.Raw(b)
}
