// Package cache implements the multi-tier result cache: a byte-bounded
// in-memory tier, a shared Redis tier and a durable disk tier, chained
// with promotion on hit and write-through on store.
package cache

import (
	"errors"
	"time"

	"github.com/siderium/astrocalc/pkg/engine"
)

var (
	// ErrMiss indicates the fingerprint was not found in a tier.
	ErrMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates a stored entry could not be decoded.
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// DefaultShortLivedTTL is the expiry window for short-lived entries when
// the manager is not configured otherwise.
const DefaultShortLivedTTL = 5 * time.Minute

// Entry is one cached calculation result.
type Entry struct {
	// Fingerprint is the deterministic request digest keying this entry.
	Fingerprint engine.Fingerprint `json:"fingerprint"`

	// Data is the serialized result payload, byte-identical to what the
	// original computation produced.
	Data []byte `json:"data"`

	// Freshness governs the expiry policy.
	Freshness engine.Freshness `json:"freshness"`

	// Tier records which tier served this entry (set on read).
	Tier string `json:"-"`

	// CreatedAt is when the entry was computed and stored.
	CreatedAt time.Time `json:"created_at"`

	// Expires is the absolute expiry instant. Zero for immutable entries,
	// which never expire.
	Expires time.Time `json:"expires"`
}

// NewEntry builds an entry for a freshly computed payload. The expiry is
// derived from the freshness class.
func NewEntry(fp engine.Fingerprint, data []byte, freshness engine.Freshness, shortTTL time.Duration) *Entry {
	if shortTTL <= 0 {
		shortTTL = DefaultShortLivedTTL
	}
	now := time.Now().UTC()
	e := &Entry{
		Fingerprint: fp,
		Data:        data,
		Freshness:   freshness,
		CreatedAt:   now,
	}
	switch freshness {
	case engine.FreshnessImmutable:
		// No expiry.
	case engine.FreshnessShortLived:
		e.Expires = now.Add(shortTTL)
	default:
		e.Expires = now.Add(24 * time.Hour)
	}
	return e
}

// IsExpired reports whether the entry is past its freshness window.
// Immutable entries never expire.
func (e *Entry) IsExpired() bool {
	if e.Expires.IsZero() {
		return false
	}
	return time.Now().After(e.Expires)
}

// TTL returns the remaining time until expiry. Zero means either expired
// or, for immutable entries, no expiry at all; check Freshness.
func (e *Entry) TTL() time.Duration {
	if e.Expires.IsZero() {
		return 0
	}
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}

// Size is the byte footprint charged against tier capacity budgets.
func (e *Entry) Size() int {
	return len(e.Data) + len(e.Fingerprint)
}
