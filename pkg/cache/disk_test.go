package cache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/siderium/astrocalc/pkg/engine"
)

func TestDiskTierRoundTrip(t *testing.T) {
	tier, err := NewDiskTier(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	entry := testEntry("fp-disk", 128, engine.FreshnessImmutable)
	if err := tier.Put(ctx, entry); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := tier.Get(ctx, "fp-disk")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Tier != "disk" {
		t.Errorf("tier = %q, want disk", got.Tier)
	}
	if len(got.Data) != 128 {
		t.Errorf("data length = %d, want 128", len(got.Data))
	}
}

func TestDiskTierSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	tier1, err := NewDiskTier(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := tier1.Put(ctx, testEntry("durable", 64, engine.FreshnessImmutable)); err != nil {
		t.Fatal(err)
	}

	// A fresh tier over the same directory sees the entry.
	tier2, err := NewDiskTier(dir)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tier2.Get(ctx, "durable"); err != nil {
		t.Errorf("entry did not survive reopen: %v", err)
	}
}

func TestDiskTierMiss(t *testing.T) {
	tier, err := NewDiskTier(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tier.Get(context.Background(), "absent"); err != ErrMiss {
		t.Errorf("expected ErrMiss, got %v", err)
	}
}

func TestDiskTierDropsExpired(t *testing.T) {
	dir := t.TempDir()
	tier, err := NewDiskTier(dir)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	entry := testEntry("stale", 32, engine.FreshnessShortLived)
	entry.Expires = time.Now().Add(-time.Minute)
	if err := tier.Put(ctx, entry); err != nil {
		t.Fatal(err)
	}

	if _, err := tier.Get(ctx, "stale"); err != ErrMiss {
		t.Errorf("expected miss for expired entry, got %v", err)
	}
	// The expired file is removed on read.
	if _, err := os.Stat(filepath.Join(dir, "stale.json")); !os.IsNotExist(err) {
		t.Error("expired entry file should be deleted")
	}
}

func TestDiskTierCorruptFile(t *testing.T) {
	dir := t.TempDir()
	tier, err := NewDiskTier(dir)
	if err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err = tier.Get(context.Background(), "bad")
	var cacheErr *engine.CacheError
	if !errors.As(err, &cacheErr) {
		t.Fatalf("expected CacheError for corrupt file, got %v", err)
	}
	if cacheErr.Tier != "disk" || cacheErr.Op != "get" {
		t.Errorf("CacheError = %s/%s, want disk/get", cacheErr.Tier, cacheErr.Op)
	}
	if !errors.Is(err, ErrInvalidEntry) {
		t.Errorf("expected ErrInvalidEntry in the chain, got %v", err)
	}
}

func TestDiskTierDeleteAndClear(t *testing.T) {
	dir := t.TempDir()
	tier, err := NewDiskTier(dir)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if err := tier.Put(ctx, testEntry("a", 32, engine.FreshnessDaily)); err != nil {
		t.Fatal(err)
	}
	if err := tier.Put(ctx, testEntry("b", 32, engine.FreshnessDaily)); err != nil {
		t.Fatal(err)
	}

	if err := tier.Delete(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	// Deleting twice is not an error.
	if err := tier.Delete(ctx, "a"); err != nil {
		t.Errorf("second delete failed: %v", err)
	}

	if err := tier.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	matches, _ := filepath.Glob(filepath.Join(dir, "*.json"))
	if len(matches) != 0 {
		t.Errorf("clear left %d files", len(matches))
	}
}
