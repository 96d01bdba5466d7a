// Package cache provides the get-or-compute contract used for episode fact maps.
//
// The same contract is served by redis, an in-process map, or nothing at all,
// so callers never know which backend is behind it.
package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/msc-platform/ivr/pkg/common/models"
	"github.com/redis/go-redis/v9"
)

// Loader computes the value on a miss.
type Loader func(ctx context.Context) (models.FactMap, error)

type Cache interface {
	// GetOrCompute returns the cached value for key or runs compute and stores
	// its result for ttl. A ttl <= 0 never stores. Loader errors are returned
	// as is and nothing is stored.
	GetOrCompute(ctx context.Context, key string, ttl time.Duration, compute Loader) (models.FactMap, error)
	Invalidate(ctx context.Context, key string) error
}

// New picks a backend by name: redis, memory or none.
func New(backend string, client *redis.Client) (Cache, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "redis":
		if client == nil {
			return nil, fmt.Errorf("redis cache requires a client")
		}
		return NewRedis(client, ""), nil
	case "memory", "":
		return NewMemory(), nil
	case "none", "off":
		return None{}, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", backend)
	}
}

// None computes on every call.
type None struct{}

func (None) GetOrCompute(ctx context.Context, _ string, _ time.Duration, compute Loader) (models.FactMap, error) {
	return compute(ctx)
}

func (None) Invalidate(context.Context, string) error {
	return nil
}
