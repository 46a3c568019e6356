package checkpoint

import "github.com/percona/mongo-shard-replicator/pbm"

// Store is the Checkpoint Store contract (C1): a durable mapping of
// shard-id to last-applied LogPosition.
type Store interface {
	// Load reads the whole mapping. A missing or empty store returns
	// an empty (not nil) map and no error — spec §4.1 "Failure
	// semantics".
	Load() (map[string]pbm.LogPosition, error)
	// Save durably replaces the whole mapping.
	Save(snapshot map[string]pbm.LogPosition) error
}
