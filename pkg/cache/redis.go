package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/siderium/astrocalc/pkg/engine"
)

// redisKeyPrefix namespaces all entries in the shared store.
const redisKeyPrefix = "astro:result:"

// RedisTier is the shared tier 2: visible to every process instance.
// Entries carry their freshness TTL; Redis expires daily and short-lived
// entries itself, immutable entries are stored without expiry.
type RedisTier struct {
	client *redis.Client
}

// NewRedisTier creates the shared tier on an existing Redis client.
func NewRedisTier(client *redis.Client) *RedisTier {
	if client == nil {
		panic("redis client cannot be nil")
	}
	return &RedisTier{client: client}
}

// Name implements Tier.
func (r *RedisTier) Name() string { return "redis" }

// Get implements Tier.
func (r *RedisTier) Get(ctx context.Context, fp engine.Fingerprint) (*Entry, error) {
	data, err := r.client.Get(ctx, redisKeyPrefix+fp.String()).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrMiss
		}
		return nil, &engine.CacheError{Tier: r.Name(), Op: "get", Err: err}
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, &engine.CacheError{Tier: r.Name(), Op: "get", Err: fmt.Errorf("%w: %v", ErrInvalidEntry, err)}
	}
	if entry.IsExpired() {
		_ = r.Delete(ctx, fp)
		return nil, ErrMiss
	}

	entry.Tier = r.Name()
	return &entry, nil
}

// Put implements Tier.
func (r *RedisTier) Put(ctx context.Context, entry *Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return &engine.CacheError{Tier: r.Name(), Op: "put", Err: err}
	}

	ttl := entry.TTL()
	if entry.Freshness != engine.FreshnessImmutable && ttl <= 0 {
		// Already expired, don't store.
		return nil
	}

	if err := r.client.Set(ctx, redisKeyPrefix+entry.Fingerprint.String(), data, ttl).Err(); err != nil {
		return &engine.CacheError{Tier: r.Name(), Op: "put", Err: err}
	}
	return nil
}

// Delete implements Tier.
func (r *RedisTier) Delete(ctx context.Context, fp engine.Fingerprint) error {
	if err := r.client.Del(ctx, redisKeyPrefix+fp.String()).Err(); err != nil {
		return &engine.CacheError{Tier: r.Name(), Op: "delete", Err: err}
	}
	return nil
}

// Clear implements Tier. Only keys under the cache prefix are removed.
func (r *RedisTier) Clear(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			return &engine.CacheError{Tier: r.Name(), Op: "clear", Err: err}
		}
	}
	if err := iter.Err(); err != nil {
		return &engine.CacheError{Tier: r.Name(), Op: "clear", Err: err}
	}
	return nil
}
