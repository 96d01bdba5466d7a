package cache

import (
	"context"
	"sync"
	"time"

	"github.com/msc-platform/ivr/pkg/common/models"
	"github.com/msc-platform/ivr/pkg/observability/metrics"
)

type memoryEntry struct {
	value     models.FactMap
	expiresAt time.Time
}

type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]memoryEntry), now: time.Now}
}

func (m *Memory) GetOrCompute(ctx context.Context, key string, ttl time.Duration, compute Loader) (models.FactMap, error) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()

	if ok && m.now().Before(entry.expiresAt) {
		metrics.CacheHit()
		return entry.value.Clone(), nil
	}
	metrics.CacheMiss()

	value, err := compute(ctx)
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		return value, nil
	}

	// concurrent misses may both compute; last writer wins
	m.mu.Lock()
	m.entries[key] = memoryEntry{value: value.Clone(), expiresAt: m.now().Add(ttl)}
	m.mu.Unlock()

	return value, nil
}

func (m *Memory) Invalidate(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}
