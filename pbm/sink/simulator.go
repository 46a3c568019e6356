package sink

import (
	"context"
	"sync"

	"github.com/percona/mongo-shard-replicator/pbm"
)

// Simulator is a reference Sink with no external target: it emulates
// both a backend and a "server", storing id/doc pairs in memory so
// repeated updates to the same document collapse instead of
// accumulating. Grounded 1:1 on
// original_source/mongo_connector/doc_managers/doc_manager_simulator.py;
// used as the default sink when none is configured (spec's original
// behavior, "If no DocManagers are given, the simulator will be used").
type Simulator struct {
	uniqueKey string

	mu      sync.Mutex
	docs    map[interface{}]Doc
	removed map[interface{}]Doc
}

// NewSimulator returns an empty Simulator keyed on uniqueKey (the
// configured id field, default "_id").
func NewSimulator(uniqueKey string) *Simulator {
	if uniqueKey == "" {
		uniqueKey = "_id"
	}
	return &Simulator{
		uniqueKey: uniqueKey,
		docs:      make(map[interface{}]Doc),
		removed:   make(map[interface{}]Doc),
	}
}

func (s *Simulator) Upsert(_ context.Context, doc Doc, ns string, position pbm.LogPosition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc = cloneDoc(doc)
	doc["ns"] = ns
	doc["_ts"] = position.ToInt64()
	id := doc[s.uniqueKey]
	s.docs[id] = doc
	delete(s.removed, id)
	return nil
}

func (s *Simulator) BulkUpsert(ctx context.Context, docs DocIterator, ns string, position pbm.LogPosition) error {
	any := false
	for docs.Next(ctx) {
		any = true
		if err := s.Upsert(ctx, docs.Doc(), ns, position); err != nil {
			return err
		}
	}
	if !any {
		return pbm.ErrEmptyStream
	}
	return docs.Err()
}

func (s *Simulator) Remove(_ context.Context, id interface{}, ns string, position pbm.LogPosition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.docs[id]; !ok {
		// missing-at-sink is not an error, spec §4.3.2
		return nil
	}
	delete(s.docs, id)
	s.removed[id] = Doc{s.uniqueKey: id, "ns": ns, "_ts": position.ToInt64()}
	return nil
}

func (s *Simulator) Search(_ context.Context, ns string, startTS, endTS pbm.LogPosition) (DocIterator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Doc
	consider := func(doc Doc) {
		if doc["ns"] != ns {
			return
		}
		ts, _ := doc["_ts"].(int64)
		if ts >= startTS.ToInt64() && ts <= endTS.ToInt64() {
			out = append(out, cloneDoc(doc))
		}
	}
	for _, d := range s.docs {
		consider(d)
	}
	for _, d := range s.removed {
		consider(d)
	}
	return newSliceIterator(out), nil
}

func (s *Simulator) GetLastDoc(_ context.Context, ns string) (Doc, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best Doc
	var bestTS int64 = -1
	consider := func(doc Doc) {
		if doc["ns"] != ns {
			return
		}
		ts, _ := doc["_ts"].(int64)
		if ts > bestTS {
			bestTS = ts
			best = doc
		}
	}
	for _, d := range s.docs {
		consider(d)
	}
	for _, d := range s.removed {
		consider(d)
	}
	if best == nil {
		return nil, false, nil
	}
	return cloneDoc(best), true, nil
}

func (s *Simulator) Commit(context.Context) error { return nil }
func (s *Simulator) Stop(context.Context) error   { return nil }

// Count returns the number of live (non-removed) documents, used by
// tests that assert on fan-out behavior (spec §8 scenario 6).
func (s *Simulator) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docs)
}

func cloneDoc(doc Doc) Doc {
	out := make(Doc, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out
}
