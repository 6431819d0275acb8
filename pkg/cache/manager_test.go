package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/siderium/astrocalc/pkg/engine"
)

// failingTier simulates an unavailable backing store.
type failingTier struct{ name string }

func (f *failingTier) Name() string { return f.name }
func (f *failingTier) Get(context.Context, engine.Fingerprint) (*Entry, error) {
	return nil, errors.New("connection refused")
}
func (f *failingTier) Put(context.Context, *Entry) error { return errors.New("connection refused") }
func (f *failingTier) Delete(context.Context, engine.Fingerprint) error {
	return errors.New("connection refused")
}
func (f *failingTier) Clear(context.Context) error { return errors.New("connection refused") }

func newTestManager(tiers ...Tier) *Manager {
	return NewManager(zerolog.Nop(), time.Minute, tiers...)
}

func TestManagerWriteThroughAndGet(t *testing.T) {
	fast := NewMemoryTier(0)
	slow := NewMemoryTier(0)
	mgr := newTestManager(fast, slow)
	ctx := context.Background()

	mgr.Store(ctx, "fp-1", []byte(`{"longitude": 1}`), engine.FreshnessDaily)

	// Both tiers hold the entry after a store.
	if _, err := fast.Get(ctx, "fp-1"); err != nil {
		t.Errorf("fast tier missing entry: %v", err)
	}
	if _, err := slow.Get(ctx, "fp-1"); err != nil {
		t.Errorf("slow tier missing entry: %v", err)
	}

	entry, err := mgr.Get(ctx, "fp-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if entry.Tier != "memory" {
		t.Errorf("served from %q, want the fastest tier", entry.Tier)
	}
}

func TestManagerPromotesOnHit(t *testing.T) {
	fast := NewMemoryTier(0)
	slow := NewMemoryTier(0)
	mgr := newTestManager(fast, slow)
	ctx := context.Background()

	// Seed only the slow tier, as after a fast-tier eviction.
	entry := testEntry("fp-deep", 64, engine.FreshnessDaily)
	if err := slow.Put(ctx, entry); err != nil {
		t.Fatal(err)
	}

	if _, err := mgr.Get(ctx, "fp-deep"); err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	// The hit was promoted into the fast tier.
	if _, err := fast.Get(ctx, "fp-deep"); err != nil {
		t.Errorf("entry not promoted to fast tier: %v", err)
	}
}

func TestManagerSkipsFailingTier(t *testing.T) {
	broken := &failingTier{name: "redis"}
	healthy := NewMemoryTier(0)
	mgr := newTestManager(broken, healthy)
	ctx := context.Background()

	if err := healthy.Put(ctx, testEntry("fp-ok", 32, engine.FreshnessDaily)); err != nil {
		t.Fatal(err)
	}

	// The broken tier must not fail the lookup.
	entry, err := mgr.Get(ctx, "fp-ok")
	if err != nil {
		t.Fatalf("Get failed despite healthy tier: %v", err)
	}
	if entry.Tier != "memory" {
		t.Errorf("served from %q, want memory", entry.Tier)
	}

	// Stores skip the broken tier without failing.
	mgr.Store(ctx, "fp-new", []byte("{}"), engine.FreshnessDaily)
	if _, err := healthy.Get(ctx, "fp-new"); err != nil {
		t.Errorf("healthy tier missing stored entry: %v", err)
	}

	stats := mgr.Stats()
	if stats.Tiers[0].Errors == 0 {
		t.Error("failing tier errors not counted")
	}
}

func TestManagerFullMiss(t *testing.T) {
	mgr := newTestManager(NewMemoryTier(0))
	if _, err := mgr.Get(context.Background(), "absent"); err != ErrMiss {
		t.Errorf("expected ErrMiss, got %v", err)
	}

	stats := mgr.Stats()
	if stats.Misses != 1 {
		t.Errorf("full misses = %d, want 1", stats.Misses)
	}
}

func TestManagerInvalidate(t *testing.T) {
	fast := NewMemoryTier(0)
	slow := NewMemoryTier(0)
	mgr := newTestManager(fast, slow)
	ctx := context.Background()

	mgr.Store(ctx, "fp-gone", []byte("{}"), engine.FreshnessImmutable)
	mgr.Invalidate(ctx, "fp-gone")

	if _, err := mgr.Get(ctx, "fp-gone"); err != ErrMiss {
		t.Error("invalidated entry still served")
	}
}

func TestManagerStatsHitRate(t *testing.T) {
	mgr := newTestManager(NewMemoryTier(0))
	ctx := context.Background()

	mgr.Store(ctx, "fp", []byte("{}"), engine.FreshnessDaily)
	if _, err := mgr.Get(ctx, "fp"); err != nil {
		t.Fatal(err)
	}
	if _, err := mgr.Get(ctx, "fp"); err != nil {
		t.Fatal(err)
	}
	if _, err := mgr.Get(ctx, "absent"); err != ErrMiss {
		t.Fatal(err)
	}

	stats := mgr.Stats()
	if got := stats.HitRate(); got < 0.66 || got > 0.67 {
		t.Errorf("hit rate = %f, want 2/3", got)
	}

	mgr.ResetStats()
	if mgr.Stats().HitRate() != 0 {
		t.Error("stats not reset")
	}
}
