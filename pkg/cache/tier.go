package cache

import (
	"context"

	"github.com/siderium/astrocalc/pkg/engine"
)

// Tier is one storage layer in the cache chain. Tiers only store; they
// never compute. A Get that finds nothing returns ErrMiss; any other
// error means the tier is unhealthy and will be skipped by the manager.
// Operational failures are reported as *engine.CacheError naming the
// tier and operation.
type Tier interface {
	// Name identifies the tier in logs, metrics and stats.
	Name() string

	// Get retrieves an entry or ErrMiss.
	Get(ctx context.Context, fp engine.Fingerprint) (*Entry, error)

	// Put stores an entry, replacing any previous one.
	Put(ctx context.Context, entry *Entry) error

	// Delete removes an entry. Removing an absent entry is not an error.
	Delete(ctx context.Context, fp engine.Fingerprint) error

	// Clear drops every entry in the tier.
	Clear(ctx context.Context) error
}
