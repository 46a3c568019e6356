// Package oplog implements the per-shard log-tailing state machine
// (C5, spec §4.3): LogEntry decoding, update-spec application, the
// initial dump, live tailing, and rollback reconciliation.
package oplog

import (
	"go.mongodb.org/mongo-driver/bson"

	"github.com/percona/mongo-shard-replicator/pbm"
)

// OpType mirrors the single-letter MongoDB oplog operation codes
// (spec §3 "LogEntry").
type OpType string

const (
	OpInsert  OpType = "i"
	OpUpdate  OpType = "u"
	OpDelete  OpType = "d"
	OpCommand OpType = "c"
	OpNoop    OpType = "n"
)

// LogEntry is a single record from a shard's change log (spec §3).
type LogEntry struct {
	Position    pbm.LogPosition `bson:"ts"`
	Op          OpType          `bson:"op"`
	Namespace   string          `bson:"ns"`
	Object      bson.Raw        `bson:"o"`
	Object2     bson.Raw        `bson:"o2"`
	FromMigrate bool            `bson:"fromMigrate"`
}

// ObjectMap decodes Object into a generic document.
func (e LogEntry) ObjectMap() (map[string]interface{}, error) {
	return rawToMap(e.Object)
}

// Object2Map decodes Object2 (the update selector) into a generic document.
func (e LogEntry) Object2Map() (map[string]interface{}, error) {
	return rawToMap(e.Object2)
}

func rawToMap(raw bson.Raw) (map[string]interface{}, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var m map[string]interface{}
	if err := bson.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}
