package oplog

import (
	"context"
	"time"

	"github.com/percona/mongo-shard-replicator/pbm"
)

// retryBackoff implements the exponential, uncapped-attempt retry
// spec §5 prescribes for read-only source operations: "retried with
// exponential backoff until it succeeds or the Tailer is stopped."
// Sink write retries (bounded by whether the error is Transient) reuse
// the same shape.
func retryBackoff(ctx context.Context, canRun func() bool, fn func() error) error {
	delay := 100 * time.Millisecond
	const maxDelay = 30 * time.Second

	for {
		err := fn()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !canRun() {
			return err
		}

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}

// retryTransient retries fn only while it fails with a pbm.Transient
// error (spec §5: "Sink writes are retried only if the Sink surfaces a
// typed transient error; all other errors are fatal unless
// continue-on-error is on"). A non-transient error is returned to the
// caller unchanged on the first failure.
func retryTransient(ctx context.Context, canRun func() bool, fn func() error) error {
	delay := 100 * time.Millisecond
	const maxDelay = 10 * time.Second

	for {
		err := fn()
		if err == nil {
			return nil
		}
		if !pbm.IsTransient(err) {
			return err
		}
		if ctx.Err() != nil {
			return err
		}
		if !canRun() {
			return err
		}

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return err
		case <-t.C:
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}
