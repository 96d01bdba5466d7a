package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/msc-platform/ivr/pkg/common/models"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countingLoader(calls *int) Loader {
	return func(ctx context.Context) (models.FactMap, error) {
		*calls++
		return models.FactMap{"episode_id": "42", "wound_size_total": 16.12}, nil
	}
}

func TestMemoryGetOrCompute(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()
	calls := 0

	first, err := c.GetOrCompute(ctx, "episode_data_42", time.Minute, countingLoader(&calls))
	require.NoError(t, err)
	second, err := c.GetOrCompute(ctx, "episode_data_42", time.Minute, countingLoader(&calls))
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.Equal(t, first, second)

	require.NoError(t, c.Invalidate(ctx, "episode_data_42"))
	_, err = c.GetOrCompute(ctx, "episode_data_42", time.Minute, countingLoader(&calls))
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestMemoryExpires(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	calls := 0

	_, _ = c.GetOrCompute(ctx, "k", 5*time.Minute, countingLoader(&calls))
	now = now.Add(6 * time.Minute)
	_, _ = c.GetOrCompute(ctx, "k", 5*time.Minute, countingLoader(&calls))

	assert.Equal(t, 2, calls)
}

func TestMemoryCallerCannotMutateEntry(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()
	calls := 0

	got, _ := c.GetOrCompute(ctx, "k", time.Minute, countingLoader(&calls))
	got["episode_id"] = "changed"

	again, _ := c.GetOrCompute(ctx, "k", time.Minute, countingLoader(&calls))
	assert.Equal(t, "42", again["episode_id"])
}

func TestZeroTTLNeverStores(t *testing.T) {
	ctx := context.Background()
	calls := 0
	for _, c := range []Cache{NewMemory(), None{}} {
		_, _ = c.GetOrCompute(ctx, "k", 0, countingLoader(&calls))
		_, _ = c.GetOrCompute(ctx, "k", 0, countingLoader(&calls))
	}
	assert.Equal(t, 4, calls)
}

func TestLoaderErrorIsNotCached(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()
	boom := errors.New("boom")
	_, err := c.GetOrCompute(ctx, "k", time.Minute, func(context.Context) (models.FactMap, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)

	calls := 0
	_, err = c.GetOrCompute(ctx, "k", time.Minute, countingLoader(&calls))
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRedisGetOrCompute(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	c := NewRedis(client, "ivr:")
	calls := 0

	_, err := c.GetOrCompute(ctx, "episode_data_42", 5*time.Minute, countingLoader(&calls))
	require.NoError(t, err)
	assert.True(t, srv.Exists("ivr:episode_data_42"))
	assert.Equal(t, 5*time.Minute, srv.TTL("ivr:episode_data_42"))

	cached, err := c.GetOrCompute(ctx, "episode_data_42", 5*time.Minute, countingLoader(&calls))
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "42", cached["episode_id"])
	assert.InDelta(t, 16.12, cached["wound_size_total"], 1e-9)

	require.NoError(t, c.Invalidate(ctx, "episode_data_42"))
	assert.False(t, srv.Exists("ivr:episode_data_42"))
}

func TestRedisOutageFallsBackToCompute(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	srv.Close()

	calls := 0
	got, err := NewRedis(client, "").GetOrCompute(context.Background(), "k", time.Minute, countingLoader(&calls))
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "42", got["episode_id"])
}

func TestNewBackends(t *testing.T) {
	c, err := New("memory", nil)
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, c)

	c, err = New("none", nil)
	require.NoError(t, err)
	assert.IsType(t, None{}, c)

	_, err = New("redis", nil)
	assert.Error(t, err)

	_, err = New("memcached", nil)
	assert.Error(t, err)
}
