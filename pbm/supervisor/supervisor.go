package supervisor

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/percona/mongo-shard-replicator/pbm"
	"github.com/percona/mongo-shard-replicator/pbm/oplog"
)

// Supervisor is the top-level driver: one per running process,
// grounded on connector.py's `Connector.run()` loop (`while
// self.can_run: ... time.sleep(1)`) and the teacher's
// ticker/select-on-context convergence loops in pbm/restore/restore.go.
type Supervisor struct {
	cfg     Config
	cluster *pbm.Cluster

	mu      sync.Mutex
	tailers map[string]*oplog.Tailer
}

// New builds a Supervisor. Run must be called to do anything.
func New(cfg Config) *Supervisor {
	return &Supervisor{cfg: cfg, tailers: make(map[string]*oplog.Tailer)}
}

type exitEvent struct {
	shard string
	err   error
}

// Run executes the full lifecycle described in spec §4.1 and blocks
// until ctx is cancelled or a Tailer exits unexpectedly, at which
// point every Tailer and Sink is stopped before returning.
func (s *Supervisor) Run(ctx context.Context) error {
	cluster, err := pbm.Connect(ctx, s.cfg.MainAddress, s.cfg.Username, s.cfg.Password)
	if err != nil {
		return errors.Wrap(err, "connect to cluster entry point")
	}
	s.cluster = cluster
	defer cluster.Close(context.Background())

	sharded, err := cluster.IsSharded(ctx)
	if err != nil {
		return errors.Wrap(err, "probe cluster topology")
	}

	snapshot, err := s.cfg.CheckpointStore.Load()
	if err != nil {
		return errors.Wrap(err, "load checkpoint store")
	}
	s.cfg.Progress.Load(snapshot)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)
	s.cfg.Sinks.StartCommitters(runCtx, s.cfg.CommitInterval)

	doneCh := make(chan exitEvent, 64)
	startShard := func(sd pbm.ShardDescriptor) error {
		return s.startTailer(gctx, g, doneCh, sd)
	}

	shards, err := cluster.DiscoverShards(gctx)
	if err != nil {
		return errors.Wrap(err, "discover shards")
	}
	for _, sd := range shards {
		if err := startShard(sd); err != nil {
			return errors.Wrapf(err, "start tailer for shard %s", sd.ID)
		}
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	var runErr error
loop:
	for {
		select {
		case <-ctx.Done():
			break loop

		case ev := <-doneCh:
			if ev.err != nil {
				s.cfg.Log.Error("tailer for shard %s exited: %v", ev.shard, ev.err)
				runErr = errors.Wrapf(ev.err, "tailer for shard %s", ev.shard)
			} else {
				s.cfg.Log.Warn("tailer for shard %s stopped unexpectedly", ev.shard)
				runErr = errors.Errorf("tailer for shard %s stopped unexpectedly", ev.shard)
			}
			break loop

		case <-ticker.C:
			s.flush()
			if sharded {
				if err := s.discoverNew(gctx, startShard); err != nil {
					s.cfg.Log.Warn("shard re-discovery failed: %v", err)
				}
			}
		}
	}

	// graceful stop: signal every tailer, unblock their blocking I/O via
	// cancellation, wait for them to finish, flush one last time, then
	// release the sinks.
	cancel()
	s.mu.Lock()
	for _, t := range s.tailers {
		t.Stop()
	}
	s.mu.Unlock()
	g.Wait()

	s.flush()
	if err := s.cfg.Sinks.Stop(context.Background()); err != nil {
		s.cfg.Log.Error("stopping sinks: %v", err)
	}

	return runErr
}

func (s *Supervisor) startTailer(ctx context.Context, g *errgroup.Group, doneCh chan<- exitEvent, sd pbm.ShardDescriptor) error {
	source, err := oplog.NewMongoSource(ctx, sd.ConnString())
	if err != nil {
		return errors.Wrapf(err, "connect to shard %s primary", sd.ID)
	}

	t := oplog.NewTailer(oplog.Config{
		Shard:           sd,
		Source:          source,
		Sinks:           s.cfg.Sinks,
		Namespaces:      s.cfg.Namespaces,
		Fields:          s.cfg.Fields,
		UniqueKey:       s.cfg.UniqueKey,
		BatchSize:       s.cfg.BatchSize,
		ContinueOnError: s.cfg.ContinueOnError,
		CollectionDump:  s.cfg.CollectionDump,
		UpdateFallback:  s.cfg.UpdateFallback,
		Progress:        s.cfg.Progress,
		Log:             s.cfg.Log.With(sd.ID),
	})

	s.mu.Lock()
	s.tailers[sd.ID] = t
	s.mu.Unlock()

	g.Go(func() error {
		err := t.Run(ctx)
		doneCh <- exitEvent{shard: sd.ID, err: err}
		return err
	})
	return nil
}

// discoverNew re-enumerates shards and starts a Tailer for any not
// already running (spec §4.1 step 5, sharded-mode re-discovery).
func (s *Supervisor) discoverNew(ctx context.Context, startShard func(pbm.ShardDescriptor) error) error {
	shards, err := s.cluster.DiscoverShards(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	var fresh []pbm.ShardDescriptor
	for _, sd := range shards {
		if _, ok := s.tailers[sd.ID]; !ok {
			fresh = append(fresh, sd)
		}
	}
	s.mu.Unlock()

	for _, sd := range fresh {
		if err := startShard(sd); err != nil {
			return err
		}
	}
	return nil
}

// flush serializes the Progress Map's current snapshot to the
// Checkpoint Store under its exclusive section (spec invariant I4).
func (s *Supervisor) flush() {
	s.cfg.Progress.WithExclusiveSection(func(snapshot map[string]pbm.LogPosition) {
		if err := s.cfg.CheckpointStore.Save(snapshot); err != nil {
			s.cfg.Log.Error("checkpoint flush failed: %v", err)
		}
	})
}
