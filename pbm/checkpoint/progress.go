// Package checkpoint implements the Checkpoint Store (C1) and the
// in-memory Progress Map (C2) described in spec §4.2.
package checkpoint

import (
	"sync"

	"github.com/percona/mongo-shard-replicator/pbm"
)

// Map is the in-memory, mutex-guarded mirror of the Checkpoint Store.
// Every Tailer publishes its advancing position here; only the
// Supervisor reads the whole map, and only while holding the exclusive
// section (spec invariant I4).
type Map struct {
	mu sync.RWMutex
	m  map[string]pbm.LogPosition
}

// NewMap returns an empty Progress Map.
func NewMap() *Map {
	return &Map{m: make(map[string]pbm.LogPosition)}
}

// Get returns the last published position for shard, and whether one
// has ever been published.
func (p *Map) Get(shard string) (pbm.LogPosition, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	pos, ok := p.m[shard]
	return pos, ok
}

// Set publishes shard's new position. Only the owning Tailer may call
// this for its shard (spec "Lifecycle").
func (p *Map) Set(shard string, pos pbm.LogPosition) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.m[shard] = pos
}

// Load replaces the whole map, used once at startup to seed it from
// the Checkpoint Store (spec §4.1 step 3).
func (p *Map) Load(snapshot map[string]pbm.LogPosition) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.m = make(map[string]pbm.LogPosition, len(snapshot))
	for k, v := range snapshot {
		p.m[k] = v
	}
}

// WithExclusiveSection runs fn with exclusive access to the map,
// guaranteeing no Tailer's Set() interleaves with it — the contract
// the Supervisor relies on while serializing a snapshot to the
// Checkpoint Store (spec invariant I4).
func (p *Map) WithExclusiveSection(fn func(snapshot map[string]pbm.LogPosition)) {
	p.mu.Lock()
	defer p.mu.Unlock()

	snapshot := make(map[string]pbm.LogPosition, len(p.m))
	for k, v := range p.m {
		snapshot[k] = v
	}
	fn(snapshot)
}
