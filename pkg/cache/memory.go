package cache

import (
	"container/list"
	"context"
	"sync"

	"github.com/siderium/astrocalc/pkg/engine"
)

// DefaultMemoryMaxBytes is the in-memory tier budget when none is
// configured.
const DefaultMemoryMaxBytes = 32 * 1024 * 1024

// MemoryTier is the process-local tier 1: fastest, byte-bounded, LRU.
// Immutable entries are evicted only when no other candidate exists.
type MemoryTier struct {
	mu       sync.Mutex
	entries  map[engine.Fingerprint]*list.Element
	order    *list.List // front = most recently used
	maxBytes int
	curBytes int
}

type memoryItem struct {
	entry *Entry
}

// NewMemoryTier creates the in-process tier with the given byte budget.
func NewMemoryTier(maxBytes int) *MemoryTier {
	if maxBytes <= 0 {
		maxBytes = DefaultMemoryMaxBytes
	}
	return &MemoryTier{
		entries:  make(map[engine.Fingerprint]*list.Element),
		order:    list.New(),
		maxBytes: maxBytes,
	}
}

// Name implements Tier.
func (m *MemoryTier) Name() string { return "memory" }

// Get implements Tier. Expired entries are dropped on read.
func (m *MemoryTier) Get(_ context.Context, fp engine.Fingerprint) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	elem, ok := m.entries[fp]
	if !ok {
		return nil, ErrMiss
	}
	entry := elem.Value.(*memoryItem).entry
	if entry.IsExpired() {
		m.removeLocked(fp, elem)
		return nil, ErrMiss
	}
	m.order.MoveToFront(elem)

	copied := *entry
	copied.Tier = m.Name()
	return &copied, nil
}

// Put implements Tier, evicting LRU entries to stay within budget.
func (m *MemoryTier) Put(_ context.Context, entry *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if elem, ok := m.entries[entry.Fingerprint]; ok {
		m.removeLocked(entry.Fingerprint, elem)
	}

	size := entry.Size()
	if size > m.maxBytes {
		// Too large to ever fit; not a tier failure.
		return nil
	}

	m.evictLocked(size)

	elem := m.order.PushFront(&memoryItem{entry: entry})
	m.entries[entry.Fingerprint] = elem
	m.curBytes += size
	return nil
}

// Delete implements Tier.
func (m *MemoryTier) Delete(_ context.Context, fp engine.Fingerprint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if elem, ok := m.entries[fp]; ok {
		m.removeLocked(fp, elem)
	}
	return nil
}

// Clear implements Tier.
func (m *MemoryTier) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[engine.Fingerprint]*list.Element)
	m.order.Init()
	m.curBytes = 0
	return nil
}

// Len returns the number of resident entries.
func (m *MemoryTier) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Bytes returns the current byte footprint.
func (m *MemoryTier) Bytes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.curBytes
}

// evictLocked frees room for an incoming entry. Two passes from the LRU
// end: first non-immutable entries, then immutable ones as a last resort.
func (m *MemoryTier) evictLocked(incoming int) {
	for pass := 0; pass < 2 && m.curBytes+incoming > m.maxBytes; pass++ {
		immutablePass := pass == 1
		for elem := m.order.Back(); elem != nil && m.curBytes+incoming > m.maxBytes; {
			prev := elem.Prev()
			entry := elem.Value.(*memoryItem).entry
			if (entry.Freshness == engine.FreshnessImmutable) == immutablePass {
				m.removeLocked(entry.Fingerprint, elem)
				Evictions.WithLabelValues(m.Name()).Inc()
			}
			elem = prev
		}
	}
}

func (m *MemoryTier) removeLocked(fp engine.Fingerprint, elem *list.Element) {
	m.order.Remove(elem)
	delete(m.entries, fp)
	m.curBytes -= elem.Value.(*memoryItem).entry.Size()
	if m.curBytes < 0 {
		m.curBytes = 0
	}
}
