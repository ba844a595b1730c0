package ratelimit

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedisTokenBucketValidation(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	t.Cleanup(func() { _ = client.Close() })

	_, err := NewRedisTokenBucket(nil, Config{Capacity: 1, Window: time.Second})
	assert.ErrorIs(t, err, ErrClientRequired)

	_, err = NewRedisTokenBucket(client, Config{Capacity: 0, Window: time.Second})
	assert.Error(t, err)

	_, err = NewRedisTokenBucket(client, Config{Capacity: 5, Window: 0})
	assert.Error(t, err)

	limiter, err := NewRedisTokenBucket(client, Config{Capacity: 10, Window: 5 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, defaultKeyPrefix, limiter.keyPrefix)
	assert.Equal(t, 10*time.Second, limiter.ttl)
	assert.InDelta(t, 0.002, limiter.refillPerMS, 1e-9)
}

func TestToInt64(t *testing.T) {
	cases := []struct {
		in   any
		want int64
	}{
		{int64(7), 7},
		{3, 3},
		{float64(4.9), 4},
		{"12", 12},
	}
	for _, tc := range cases {
		got, err := toInt64(tc.in)
		if err != nil {
			t.Fatalf("toInt64(%v): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("toInt64(%v) = %d, want %d", tc.in, got, tc.want)
		}
	}

	if _, err := toInt64("x"); err == nil {
		t.Fatal("expected error for non numeric string")
	}
	if _, err := toInt64([]byte("1")); err == nil {
		t.Fatal("expected error for unsupported type")
	}
}

// TestRedisTokenBucketAgainstServer needs a reachable Redis, for example
// PIXELVAULT_TEST_REDIS_ADDR=localhost:6379.
func TestRedisTokenBucketAgainstServer(t *testing.T) {
	addr := os.Getenv("PIXELVAULT_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("PIXELVAULT_TEST_REDIS_ADDR not set")
	}

	ctx := context.Background()
	client, err := Dial(ctx, addr, "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	limiter, err := NewRedisTokenBucket(client, Config{
		Capacity:  2,
		Window:    time.Minute,
		KeyPrefix: "pixelvault:test:" + uuid.NewString(),
	})
	require.NoError(t, err)
	frozen := time.Now()
	limiter.now = func() time.Time { return frozen }

	for i := 0; i < 2; i++ {
		d, err := limiter.Allow(ctx, "alice")
		require.NoError(t, err)
		assert.True(t, d.Allowed, "request %d should pass", i)
	}

	d, err := limiter.Allow(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, int64(0), d.Remaining)
	assert.InDelta(t, 30*time.Second, d.RetryAfter, float64(5*time.Millisecond))

	d, err = limiter.Allow(ctx, "bob")
	require.NoError(t, err)
	assert.True(t, d.Allowed, "buckets are per subject")
}

func TestParseDecision(t *testing.T) {
	d, err := parseDecision([]any{int64(0), int64(0), int64(1250)})
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 1250*time.Millisecond, d.RetryAfter)

	d, err = parseDecision([]any{int64(1), int64(9), int64(0)})
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, int64(9), d.Remaining)

	_, err = parseDecision([]any{int64(1)})
	assert.Error(t, err)
	_, err = parseDecision("OK")
	assert.Error(t, err)
}
