package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/siderium/astrocalc/pkg/engine"
)

// DiskTier is the durable tier 3: one JSON file per fingerprint under a
// base directory. Slowest, effectively unbounded, survives restarts.
// Fingerprints are hex digests, so they are safe as file names.
type DiskTier struct {
	dir string
}

// NewDiskTier creates the durable tier rooted at dir, creating it if
// needed.
func NewDiskTier(dir string) (*DiskTier, error) {
	if dir == "" {
		return nil, fmt.Errorf("disk cache directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	return &DiskTier{dir: dir}, nil
}

// Name implements Tier.
func (d *DiskTier) Name() string { return "disk" }

func (d *DiskTier) path(fp engine.Fingerprint) string {
	return filepath.Join(d.dir, fp.String()+".json")
}

// Get implements Tier.
func (d *DiskTier) Get(ctx context.Context, fp engine.Fingerprint) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(d.path(fp))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrMiss
		}
		return nil, &engine.CacheError{Tier: d.Name(), Op: "get", Err: err}
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, &engine.CacheError{Tier: d.Name(), Op: "get", Err: fmt.Errorf("%w: %v", ErrInvalidEntry, err)}
	}
	if entry.IsExpired() {
		_ = d.Delete(ctx, fp)
		return nil, ErrMiss
	}

	entry.Tier = d.Name()
	return &entry, nil
}

// Put implements Tier. The file is written to a temp name and renamed so
// readers never observe a partial entry.
func (d *DiskTier) Put(ctx context.Context, entry *Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return &engine.CacheError{Tier: d.Name(), Op: "put", Err: err}
	}

	tmp, err := os.CreateTemp(d.dir, "put-*")
	if err != nil {
		return &engine.CacheError{Tier: d.Name(), Op: "put", Err: err}
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return &engine.CacheError{Tier: d.Name(), Op: "put", Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return &engine.CacheError{Tier: d.Name(), Op: "put", Err: err}
	}
	if err := os.Rename(tmp.Name(), d.path(entry.Fingerprint)); err != nil {
		os.Remove(tmp.Name())
		return &engine.CacheError{Tier: d.Name(), Op: "put", Err: err}
	}
	return nil
}

// Delete implements Tier.
func (d *DiskTier) Delete(_ context.Context, fp engine.Fingerprint) error {
	if err := os.Remove(d.path(fp)); err != nil && !os.IsNotExist(err) {
		return &engine.CacheError{Tier: d.Name(), Op: "delete", Err: err}
	}
	return nil
}

// Clear implements Tier.
func (d *DiskTier) Clear(_ context.Context) error {
	matches, err := filepath.Glob(filepath.Join(d.dir, "*.json"))
	if err != nil {
		return &engine.CacheError{Tier: d.Name(), Op: "clear", Err: err}
	}
	for _, path := range matches {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return &engine.CacheError{Tier: d.Name(), Op: "clear", Err: err}
		}
	}
	return nil
}
