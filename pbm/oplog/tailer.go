package oplog

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/percona/mongo-shard-replicator/pbm"
)

// Tailer drives one shard through the lifecycle described in spec §3
// ("TailerState"): init, an optional dump, tailing, rollback
// reconciliation on demand, and a cooperative stop. It is grounded on
// connector.py's OplogThread — dump-then-tail, a `can_run` flag polled
// between units of work rather than a hard cancel — reshaped around
// Go's context.Context plus an explicit atomic flag for the same
// cooperative-stop semantics restore.go's waitForStatus loops use.
type Tailer struct {
	cfg   Config
	state int32 // atomic State
	run   int32 // atomic bool, 1 = keep running
	id    string
}

// NewTailer builds a Tailer for one shard. It does not start running
// until Run is called.
func NewTailer(cfg Config) *Tailer {
	return &Tailer{
		cfg: cfg,
		run: 1,
		id:  uuid.NewString(),
	}
}

// State returns the Tailer's current lifecycle state.
func (t *Tailer) State() State {
	return State(atomic.LoadInt32(&t.state))
}

func (t *Tailer) setState(s State) {
	atomic.StoreInt32(&t.state, int32(s))
}

func (t *Tailer) canRun() bool {
	return atomic.LoadInt32(&t.run) == 1
}

// Stop requests a graceful stop: the Tailer finishes its current unit
// of work (one log entry, one dump batch) and transitions through
// stopping to stopped.
func (t *Tailer) Stop() {
	atomic.StoreInt32(&t.run, 0)
}

// Run executes the Tailer's full lifecycle and blocks until it stops,
// either because Stop was called, ctx was cancelled, or an
// unrecoverable error occurred. A nil return means a clean stop.
func (t *Tailer) Run(ctx context.Context) error {
	shard := t.cfg.Shard.ID
	t.cfg.Log.Info("tailer starting [op=%s]", t.id)
	t.setState(StateInit)

	pos, hasCheckpoint := t.cfg.Progress.Get(shard)
	if !hasCheckpoint {
		last, err := t.cfg.Source.LastPosition(ctx)
		if err != nil {
			t.setState(StateStopped)
			return errors.Wrap(err, "probe initial log position")
		}
		if last == pbm.Zero {
			// spec §3 TailerState: init -> stopped(None) when the log
			// is empty and no checkpoint exists — nothing to dump, no
			// position to tail from yet.
			t.cfg.Log.Info("log is empty, nothing to do")
			t.setState(StateStopped)
			return nil
		}

		if t.cfg.CollectionDump {
			t.setState(StateDumping)
			if err := t.dump(ctx, last); err != nil {
				if !t.canRun() {
					// Stop was called mid-dump: a cooperative stop, not a
					// failure. No checkpoint is published for the partial dump.
					t.setState(StateStopping)
					t.cfg.Log.Info("tailer stopping during dump")
					t.setState(StateStopped)
					return nil
				}
				t.setState(StateStopped)
				return errors.Wrap(err, "initial dump")
			}
		} else {
			// no-dump mode: start tailing from the current tail,
			// accepting only writes that happen from now on.
			t.cfg.Progress.Set(shard, last)
		}
	}

	t.setState(StateTailing)
	for t.canRun() {
		switch t.State() {
		case StateTailing:
			err := t.tail(ctx)
			if err == nil {
				// tail only returns nil once canRun() has gone false;
				// the loop condition re-checks it and exits cleanly.
				continue
			}
			if errors.Is(err, pbm.ErrLogDivergence) {
				pos, _ = t.cfg.Progress.Get(shard)
				t.cfg.Log.Warn("log divergence detected at %s, rolling back", pos)
				t.setState(StateRollingBack)
				continue
			}
			t.setState(StateStopped)
			return errors.Wrap(err, "tail")

		case StateRollingBack:
			if err := t.rollback(ctx); err != nil {
				t.setState(StateStopped)
				return errors.Wrap(err, "rollback")
			}
			t.setState(StateTailing)

		default:
			t.setState(StateStopped)
			return nil
		}
	}

	t.setState(StateStopping)
	t.cfg.Log.Info("tailer stopping")
	t.setState(StateStopped)
	return nil
}

// project applies the configured field allow-list to doc, always
// preserving _id, ns, _ts and the configured unique-key field (spec §3
// "Projection allow-list", invariant P8). An empty allow-list means no
// projection: the full document is kept.
func (t *Tailer) project(doc map[string]interface{}) map[string]interface{} {
	if len(t.cfg.Fields) == 0 {
		return doc
	}
	keep := make(map[string]bool, len(t.cfg.Fields)+3)
	for _, f := range t.cfg.Fields {
		keep[f] = true
	}
	keep["_id"] = true
	keep["ns"] = true
	keep["_ts"] = true
	keep[t.cfg.idField()] = true

	out := make(map[string]interface{}, len(keep))
	for k, v := range doc {
		if keep[k] {
			out[k] = v
		}
	}
	return out
}
