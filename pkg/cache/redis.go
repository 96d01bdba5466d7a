package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/msc-platform/ivr/pkg/common/logger"
	"github.com/msc-platform/ivr/pkg/common/models"
	"github.com/msc-platform/ivr/pkg/observability/metrics"
	"github.com/redis/go-redis/v9"
)

type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis namespaces every key with prefix.
func NewRedis(client *redis.Client, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) GetOrCompute(ctx context.Context, key string, ttl time.Duration, compute Loader) (models.FactMap, error) {
	fullKey := r.prefix + key

	raw, err := r.client.Get(ctx, fullKey).Bytes()
	switch {
	case err == nil:
		var value models.FactMap
		jsonErr := json.Unmarshal(raw, &value)
		if jsonErr == nil {
			metrics.CacheHit()
			return value, nil
		}
		logger.Log.WithError(jsonErr).WithField("key", fullKey).Warn("Discarding undecodable cache entry")
	case errors.Is(err, redis.Nil):
	default:
		// a cache outage degrades to recomputing
		logger.Log.WithError(err).WithField("key", fullKey).Warn("Cache read failed")
	}
	metrics.CacheMiss()

	value, err := compute(ctx)
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		return value, nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		logger.Log.WithError(err).WithField("key", fullKey).Warn("Cache value not serializable")
		return value, nil
	}
	if err := r.client.Set(ctx, fullKey, data, ttl).Err(); err != nil {
		logger.Log.WithError(err).WithField("key", fullKey).Warn("Cache write failed")
	}

	return value, nil
}

func (r *Redis) Invalidate(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.prefix+key).Err()
}
