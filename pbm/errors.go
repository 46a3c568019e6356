package pbm

import "github.com/pkg/errors"

// Error taxonomy per spec §7. These are sentinels that call sites wrap
// with context via github.com/pkg/errors; callers use errors.Is/As to
// branch on kind rather than matching message text.
var (
	// ErrNotFound mirrors the teacher's pbm.ErrNotFound: a lookup (a
	// document, a checkpoint entry, a lock) came back empty.
	ErrNotFound = errors.New("not found")

	// ErrConfiguration marks a fatal-at-startup configuration problem
	// (mismatched namespace lengths, duplicate namespaces, unreadable
	// auth file).
	ErrConfiguration = errors.New("configuration error")

	// ErrLogDivergence marks the trigger condition for rollback
	// reconciliation: the tailer's cursor was invalidated and the last
	// checkpointed position no longer appears in the log.
	ErrLogDivergence = errors.New("log divergence")

	// ErrEmptyStream marks an attempted bulk write with no documents;
	// callers tolerate it silently per spec §7.
	ErrEmptyStream = errors.New("empty stream")
)

// ConnectionError wraps a transport failure to the source or a sink.
// Read-only source operations retry until cancelled; sink writes retry
// only when the sink itself reports Transient().
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string { return "connection failed: " + e.Op + ": " + e.Err.Error() }
func (e *ConnectionError) Unwrap() error { return e.Err }

// OperationError wraps a semantic failure (missing document on rollback
// search, malformed update spec) that is logged and does not stop the
// tailer, unless it happened during a dump with continue-on-error=false.
type OperationError struct {
	Op  string
	Err error
}

func (e *OperationError) Error() string { return "operation failed: " + e.Op + ": " + e.Err.Error() }
func (e *OperationError) Unwrap() error { return e.Err }

// Transient is implemented by sink errors that the engine should retry
// rather than treat as fatal (spec §5 "Retry discipline").
type Transient interface {
	Transient() bool
}

// IsTransient reports whether err identifies itself as retryable.
func IsTransient(err error) bool {
	var t Transient
	if errors.As(err, &t) {
		return t.Transient()
	}
	return false
}
