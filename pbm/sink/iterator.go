package sink

import "context"

// sliceIterator adapts an in-memory slice of documents to DocIterator,
// used to hand BulkUpsert a batch the Tailer already assembled in
// memory during the initial dump (spec §4.3.1).
type sliceIterator struct {
	docs []Doc
	i    int
}

func newSliceIterator(docs []Doc) *sliceIterator {
	return &sliceIterator{docs: docs, i: -1}
}

func (s *sliceIterator) Next(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	s.i++
	return s.i < len(s.docs)
}

func (s *sliceIterator) Doc() Doc   { return s.docs[s.i] }
func (s *sliceIterator) Err() error { return nil }
func (s *sliceIterator) Close() error { return nil }
