package sink

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/percona/mongo-shard-replicator/pbm"
	"github.com/percona/mongo-shard-replicator/pbm/log"
)

// FanOut dispatches every write event to every configured Sink,
// honoring ContinueOnError per spec §4.4. Sinks are written
// concurrently, so the order in which the sinks receive one event is
// not defined; their errors are examined in declaration order. A single
// FanOut call blocks until every sink has been given the event, so two
// FanOut calls from the same Tailer never interleave per-sink — this
// is what keeps the per-shard, per-sink ordering invariant (spec I1)
// even though sinks are dispatched concurrently with each other.
type FanOut struct {
	sinks           []Sink
	continueOnError bool
	sem             *semaphore.Weighted
	log             *log.Event

	committerWG   sync.WaitGroup
	committerStop chan struct{}
}

// NewFanOut builds a dispatcher over sinks. maxConcurrency bounds how
// many sinks are written to in parallel for a single event (0 means
// unbounded).
func NewFanOut(sinks []Sink, continueOnError bool, maxConcurrency int64, lg *log.Event) *FanOut {
	var sem *semaphore.Weighted
	if maxConcurrency > 0 {
		sem = semaphore.NewWeighted(maxConcurrency)
	}
	return &FanOut{
		sinks:           sinks,
		continueOnError: continueOnError,
		sem:             sem,
		log:             lg,
		committerStop:   make(chan struct{}),
	}
}

// Sinks returns the configured sinks in declaration order, used by the
// rollback path which must operate on each sink individually (spec
// §4.4 "Rollback is performed per sink").
func (f *FanOut) Sinks() []Sink { return f.sinks }

func (f *FanOut) acquire(ctx context.Context) error {
	if f.sem == nil {
		return nil
	}
	return f.sem.Acquire(ctx, 1)
}

func (f *FanOut) release() {
	if f.sem != nil {
		f.sem.Release(1)
	}
}

// dispatch runs fn against every sink, respecting continueOnError.
func (f *FanOut) dispatch(ctx context.Context, fn func(Sink) error) error {
	var wg sync.WaitGroup
	errs := make([]error, len(f.sinks))

	for i, s := range f.sinks {
		if err := f.acquire(ctx); err != nil {
			return err
		}
		wg.Add(1)
		go func(i int, s Sink) {
			defer wg.Done()
			defer f.release()
			errs[i] = fn(s)
		}(i, s)
	}
	wg.Wait()

	for _, err := range errs {
		if err == nil {
			continue
		}
		if f.continueOnError {
			f.log.Warn("sink write failed, continuing: %v", err)
			continue
		}
		return err
	}
	return nil
}

func (f *FanOut) Upsert(ctx context.Context, doc Doc, ns string, position pbm.LogPosition) error {
	return f.dispatch(ctx, func(s Sink) error { return s.Upsert(ctx, doc, ns, position) })
}

func (f *FanOut) Remove(ctx context.Context, id interface{}, ns string, position pbm.LogPosition) error {
	return f.dispatch(ctx, func(s Sink) error { return s.Remove(ctx, id, ns, position) })
}

func (f *FanOut) BulkUpsert(ctx context.Context, docs []Doc, ns string, position pbm.LogPosition) error {
	if len(docs) == 0 {
		return nil
	}
	return f.dispatch(ctx, func(s Sink) error {
		return s.BulkUpsert(ctx, newSliceIterator(docs), ns, position)
	})
}

func (f *FanOut) HandleCommand(ctx context.Context, cmd Doc, ns string, position pbm.LogPosition) error {
	return f.dispatch(ctx, func(s Sink) error {
		ch, ok := s.(CommandHandler)
		if !ok {
			return nil
		}
		return ch.HandleCommand(ctx, cmd, ns, position)
	})
}

func (f *FanOut) Commit(ctx context.Context) error {
	return f.dispatch(ctx, func(s Sink) error { return s.Commit(ctx) })
}

// StartCommitters launches one background committer goroutine per
// sink when interval != nil, the redesign described in spec §9
// ("single dedicated committer task per sink that sleeps ... cancel
// wakes it to exit cleanly"). A nil or zero interval starts no
// committer; FanOut does not commit after individual writes, so with
// either setting the only explicit commit is the one after the initial
// dump.
func (f *FanOut) StartCommitters(ctx context.Context, interval *time.Duration) {
	if interval == nil || *interval <= 0 {
		return
	}
	for _, s := range f.sinks {
		f.committerWG.Add(1)
		go f.runCommitter(ctx, s, *interval)
	}
}

func (f *FanOut) runCommitter(ctx context.Context, s Sink, interval time.Duration) {
	defer f.committerWG.Done()
	tk := time.NewTicker(interval)
	defer tk.Stop()
	for {
		select {
		case <-tk.C:
			if err := s.Commit(ctx); err != nil {
				f.log.Error("background commit failed: %v", err)
			}
		case <-f.committerStop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop stops every committer and every sink.
func (f *FanOut) Stop(ctx context.Context) error {
	close(f.committerStop)
	f.committerWG.Wait()

	return f.dispatch(ctx, func(s Sink) error { return s.Stop(ctx) })
}
