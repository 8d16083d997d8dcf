package catalog

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shophub/storefront/internal/domain"
)

// setupTestRedis creates a miniredis server and returns a RedisCache instance
func setupTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { client.Close() })

	return NewRedisCache(client, 15*time.Minute), mr
}

func testProducts() []domain.Product {
	return []domain.Product{
		{
			ID:       "1",
			Title:    "Backpack",
			Price:    decimal.RequireFromString("109.95"),
			Category: "men's clothing",
			Image:    "https://img.example/1.png",
			Rating:   domain.Rating{Rate: 3.9, Count: 120},
		},
		{
			ID:       "2",
			Title:    "T-Shirt",
			Price:    decimal.RequireFromString("22.3"),
			Category: "men's clothing",
			Image:    "https://img.example/2.png",
			Rating:   domain.Rating{Rate: 4.1, Count: 259},
		},
	}
}

func TestRedisGet_Success(t *testing.T) {
	cache, mr := setupTestRedis(t)

	data, err := json.Marshal(testProducts())
	require.NoError(t, err)
	require.NoError(t, mr.Set(cacheKey, string(data)))

	result, err := cache.Get(context.Background())
	require.NoError(t, err)
	require.Len(t, result, 2)
	assert.Equal(t, domain.ProductID("1"), result[0].ID)
	assert.True(t, decimal.RequireFromString("109.95").Equal(result[0].Price))
}

func TestRedisGet_CacheMiss(t *testing.T) {
	cache, _ := setupTestRedis(t)

	result, err := cache.Get(context.Background())
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.Nil(t, result)
}

func TestRedisGet_InvalidJSON(t *testing.T) {
	cache, mr := setupTestRedis(t)

	data, err := json.Marshal(testProducts())
	require.NoError(t, err)
	require.NoError(t, mr.Set(cacheKey, string(data[:10])))

	_, err = cache.Get(context.Background())
	require.ErrorContains(t, err, "unmarshal catalog failed")
}

func TestRedisSet_RoundTrip(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, testProducts()))
	assert.True(t, mr.Exists(cacheKey))

	result, err := cache.Get(ctx)
	require.NoError(t, err)
	assert.Len(t, result, 2)
	assert.Equal(t, "T-Shirt", result[1].Title)
}

func TestRedisSet_WithTTL(t *testing.T) {
	cache, mr := setupTestRedis(t)

	require.NoError(t, cache.Set(context.Background(), testProducts()))

	ttl := mr.TTL(cacheKey)
	assert.True(t, ttl >= 15*time.Minute, "TTL should be at least base TTL")
	assert.True(t, ttl <= 20*time.Minute, "TTL should be base + max jitter")
}

func TestRedisDelete(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, testProducts()))
	require.NoError(t, cache.Delete(ctx))
	assert.False(t, mr.Exists(cacheKey))

	// Deleting non-existent key should not error
	assert.NoError(t, cache.Delete(ctx))
}
