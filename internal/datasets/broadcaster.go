// Package datasets maintains the client's view of server-held tables: a
// catalog cache, cursor-based page windows over table data, and the
// epoch-based invalidation that ties them to remote mutations.
package datasets

import (
	"sync/atomic"

	"go.uber.org/zap"
)

// MutationKind names the operations that invalidate cached table state.
type MutationKind string

const (
	MutationIngest MutationKind = "ingest"
	MutationRename MutationKind = "rename"
	MutationDelete MutationKind = "delete"
)

// Broadcaster is a monotonically increasing mutation counter. Consumers
// stamp their cached state with the epoch at fetch time and compare at
// read time (versioned read); anything stamped older than the current
// epoch is stale. A mutation anywhere invalidates everything: precision is
// traded for correctness.
type Broadcaster struct {
	epoch atomic.Uint64
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{}
}

// Epoch returns the current mutation epoch.
func (b *Broadcaster) Epoch() uint64 {
	return b.epoch.Load()
}

// OnMutation records that a mutating operation of the given kind completed.
func (b *Broadcaster) OnMutation(kind MutationKind) {
	e := b.epoch.Add(1)
	zap.S().Named("datasets").Debugf("mutation %s, epoch now %d", kind, e)
}
