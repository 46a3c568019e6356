package oplog

import (
	"github.com/percona/mongo-shard-replicator/pbm"
	"github.com/percona/mongo-shard-replicator/pbm/checkpoint"
	"github.com/percona/mongo-shard-replicator/pbm/log"
	"github.com/percona/mongo-shard-replicator/pbm/sink"
)

// Config wires one shard's Tailer to its Source, the shared sink
// fan-out, the shared Progress Map and the engine's namespace/field
// policy (spec §4.3, §6).
type Config struct {
	Shard  pbm.ShardDescriptor
	Source Source
	Sinks  *sink.FanOut

	Namespaces *pbm.NamespaceFilter
	// Fields is the projection allow-list; empty means "no projection,
	// keep the full document" (spec §3 "Projection allow-list").
	Fields []string
	// UniqueKey names the document field the engine and sinks address
	// documents by; almost always "_id" but configurable per spec §6's
	// `unique-key` option.
	UniqueKey string

	BatchSize       int
	ContinueOnError bool
	CollectionDump  bool
	UpdateFallback  UpdateFallbackPolicy

	Progress *checkpoint.Map
	Log      *log.Event
}

func (c Config) idField() string {
	if c.UniqueKey != "" {
		return c.UniqueKey
	}
	return "_id"
}
