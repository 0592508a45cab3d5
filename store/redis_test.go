package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonwraymond/mealgen/meal"
)

func newRedisStore(t *testing.T, clock *testClock, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	var now func() time.Time
	if clock != nil {
		now = clock.Now
	}
	return NewRedisStore(client, RedisOptions{IdleTTL: ttl, Now: now}), mr
}

func TestRedisStore_Contract(t *testing.T) {
	runStoreContract(t, func(t *testing.T, clock *testClock) Store {
		s, _ := newRedisStore(t, clock, 0)
		return s
	})
}

func TestRedisStore_KeyLayout(t *testing.T) {
	s, mr := newRedisStore(t, nil, 0)
	ctx := context.Background()

	_, err := s.Insert(ctx, testRecord("abc", meal.Dinner))
	require.NoError(t, err)

	key := DefaultRedisPrefix + "dinner:abc"
	assert.True(t, mr.Exists(key), "expected key %s", key)
	assert.Equal(t, "0", mr.HGet(key, "hit_count"))
	assert.Equal(t, "450", mr.HGet(key, "calories"))
	assert.Equal(t, "24.5", mr.HGet(key, "protein_g"))
	assert.Zero(t, mr.TTL(key), "no TTL expected without an idle policy")
}

func TestRedisStore_IdleTTL(t *testing.T) {
	s, mr := newRedisStore(t, nil, time.Minute)
	ctx := context.Background()
	key := DefaultRedisPrefix + "lunch:abc"

	_, err := s.Insert(ctx, testRecord("abc", meal.Lunch))
	require.NoError(t, err)
	assert.Equal(t, time.Minute, mr.TTL(key))

	// A hit pushes expiry out again.
	mr.FastForward(40 * time.Second)
	_, ok, err := s.Lookup(ctx, "abc", meal.Lunch)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, time.Minute, mr.TTL(key))

	mr.FastForward(61 * time.Second)
	_, ok, err = s.Lookup(ctx, "abc", meal.Lunch)
	require.NoError(t, err)
	assert.False(t, ok, "entry should have expired")
}

func TestRedisStore_CustomPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	s := NewRedisStore(client, RedisOptions{Prefix: "tenant-a:"})
	_, err := s.Insert(context.Background(), testRecord("abc", meal.Snack))
	require.NoError(t, err)
	assert.True(t, mr.Exists("tenant-a:snack:abc"))
}

func TestRedisStore_Ping(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()

	s := NewRedisStore(client, RedisOptions{})
	require.NoError(t, s.Ping(context.Background()))

	mr.Close()
	assert.Error(t, s.Ping(context.Background()))
}

func TestRedisStore_MalformedEntry(t *testing.T) {
	s, mr := newRedisStore(t, nil, 0)
	key := DefaultRedisPrefix + "dinner:broken"
	mr.HSet(key, "signature_hash", "broken", "calories", "not-a-number")

	_, _, err := s.Lookup(context.Background(), "broken", meal.Dinner)
	assert.Error(t, err)
}

func TestDecodeRedisEntry_OddFields(t *testing.T) {
	_, err := decodeRedisEntry([]any{"only-key"})
	assert.Error(t, err)
}
