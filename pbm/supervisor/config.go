// Package supervisor implements the Supervisor (C6, spec §4.1): it
// connects to the source deployment, discovers shards, starts and
// monitors one Tailer per shard, and owns the Progress Map's flush
// cadence.
package supervisor

import (
	"time"

	"github.com/percona/mongo-shard-replicator/pbm"
	"github.com/percona/mongo-shard-replicator/pbm/checkpoint"
	"github.com/percona/mongo-shard-replicator/pbm/log"
	"github.com/percona/mongo-shard-replicator/pbm/oplog"
	"github.com/percona/mongo-shard-replicator/pbm/sink"
)

// Config holds everything the Supervisor needs to bring the system up.
type Config struct {
	MainAddress string
	Username    string
	Password    string

	CheckpointStore checkpoint.Store
	Progress        *checkpoint.Map
	Sinks           *sink.FanOut

	Namespaces *pbm.NamespaceFilter
	Fields     []string
	UniqueKey  string

	BatchSize       int
	ContinueOnError bool
	CollectionDump  bool
	UpdateFallback  oplog.UpdateFallbackPolicy

	// CommitInterval drives each sink's background committer: k>0
	// commits every k (spec §4.5). nil and a zero duration both start no
	// committer, and no commit is issued after individual writes.
	CommitInterval *time.Duration

	Log *log.Event
}
