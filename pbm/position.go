// Package pbm holds the data model shared by every component of the
// replication engine: log positions, namespaces, shard descriptors and
// the cluster handle used to discover them.
package pbm

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// LogPosition is an opaque, totally-ordered token produced by a shard's
// change log. It round-trips to a 64-bit integer for on-disk storage:
// the high 32 bits are seconds, the low 32 bits an intra-second counter,
// mirroring the shape of a MongoDB oplog timestamp.
type LogPosition primitive.Timestamp

// Zero is the position before any event has ever been observed.
var Zero = LogPosition{}

// ToInt64 packs the position into a single int64 for the checkpoint file.
func (p LogPosition) ToInt64() int64 {
	return int64(p.T)<<32 | int64(p.I)
}

// FromInt64 unpacks a checkpoint file value back into a LogPosition.
func FromInt64(v int64) LogPosition {
	return LogPosition{
		T: uint32(v >> 32),
		I: uint32(v & 0xffffffff),
	}
}

// Compare returns -1, 0 or 1 the way primitive.CompareTimestamp does.
func (p LogPosition) Compare(o LogPosition) int {
	return primitive.CompareTimestamp(primitive.Timestamp(p), primitive.Timestamp(o))
}

// After reports whether p is strictly greater than o.
func (p LogPosition) After(o LogPosition) bool {
	return p.Compare(o) > 0
}

// Before reports whether p is strictly less than o.
func (p LogPosition) Before(o LogPosition) bool {
	return p.Compare(o) < 0
}

func (p LogPosition) String() string {
	return primitive.Timestamp(p).String()
}

// Timestamp exposes the underlying driver type for cursor/filter building.
func (p LogPosition) Timestamp() primitive.Timestamp {
	return primitive.Timestamp(p)
}

// PositionFromTimestamp adapts a driver timestamp into our position type.
func PositionFromTimestamp(ts primitive.Timestamp) LogPosition {
	return LogPosition(ts)
}

// MinPosition returns whichever of a, b compares smaller.
func MinPosition(a, b LogPosition) LogPosition {
	if a.Before(b) {
		return a
	}
	return b
}

// MaxPosition returns whichever of a, b compares larger.
func MaxPosition(a, b LogPosition) LogPosition {
	if a.After(b) {
		return a
	}
	return b
}
