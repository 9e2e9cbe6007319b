package redis

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestVoteRateLimit_Integration_InitialBurst verifies the full burst is
// available to a fresh bucket.
func TestVoteRateLimit_Integration_InitialBurst(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	client := setupTestClient(t)
	clock := clockwork.NewFakeClock()
	limiter := NewVoteRateLimiter(client, clock, 50, 25)

	ctx := context.Background()

	// Should allow 50 votes immediately (burst capacity)
	for i := 0; i < 50; i++ {
		allowed, err := limiter.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, allowed, "Vote %d should be allowed (burst)", i+1)
	}

	// 51st vote should be rejected (bucket empty)
	allowed, err := limiter.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, allowed, "Vote 51 should be rejected (bucket exhausted)")
}

// TestVoteRateLimit_Integration_Refill verifies token refill over time.
func TestVoteRateLimit_Integration_Refill(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	client := setupTestClient(t)
	clock := clockwork.NewFakeClock()
	limiter := NewVoteRateLimiter(client, clock, 50, 25)

	ctx := context.Background()

	// Exhaust the burst
	for i := 0; i < 50; i++ {
		_, err := limiter.Allow(ctx, "10.0.0.2")
		require.NoError(t, err)
	}

	allowed, err := limiter.Allow(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.False(t, allowed, "Bucket should be exhausted")

	// 2 seconds at 25 tokens/sec refills 50 tokens (capped at capacity)
	clock.Advance(2 * time.Second)

	for i := 0; i < 50; i++ {
		allowed, err := limiter.Allow(ctx, "10.0.0.2")
		require.NoError(t, err)
		assert.True(t, allowed, "Vote %d should be allowed after refill", i+1)
	}

	allowed, err = limiter.Allow(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.False(t, allowed, "Vote 51 should be rejected after refill")
}

// TestVoteRateLimit_Integration_PartialRefill verifies partial token refill.
func TestVoteRateLimit_Integration_PartialRefill(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	client := setupTestClient(t)
	clock := clockwork.NewFakeClock()
	limiter := NewVoteRateLimiter(client, clock, 50, 25)

	ctx := context.Background()

	// Use 25 tokens
	for i := 0; i < 25; i++ {
		_, err := limiter.Allow(ctx, "10.0.0.3")
		require.NoError(t, err)
	}

	// 1 second at 25 tokens/sec refills the 25 spent, capped at 50
	clock.Advance(time.Second)

	for i := 0; i < 50; i++ {
		allowed, err := limiter.Allow(ctx, "10.0.0.3")
		require.NoError(t, err)
		assert.True(t, allowed, "Vote %d should be allowed", i+1)
	}

	allowed, err := limiter.Allow(ctx, "10.0.0.3")
	require.NoError(t, err)
	assert.False(t, allowed, "Vote 51 should be rejected")
}

// TestVoteRateLimit_Integration_SustainedRate verifies the sustained rate
// holds once the burst is spent.
func TestVoteRateLimit_Integration_SustainedRate(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	client := setupTestClient(t)
	clock := clockwork.NewFakeClock()
	limiter := NewVoteRateLimiter(client, clock, 50, 25)

	ctx := context.Background()

	// Exhaust initial burst
	for i := 0; i < 50; i++ {
		_, err := limiter.Allow(ctx, "10.0.0.4")
		require.NoError(t, err)
	}

	// Over 3 seconds, exactly 25 votes/sec should pass
	totalAllowed := 0
	for second := 0; second < 3; second++ {
		clock.Advance(time.Second)

		for i := 0; i < 40; i++ {
			allowed, err := limiter.Allow(ctx, "10.0.0.4")
			require.NoError(t, err)
			if allowed {
				totalAllowed++
			}
		}
	}

	assert.Equal(t, 75, totalAllowed, "Sustained rate should be 25 votes/second")
}

// TestVoteRateLimit_Integration_TTL verifies idle buckets expire.
func TestVoteRateLimit_Integration_TTL(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	client := setupTestClient(t)
	clock := clockwork.NewFakeClock()
	limiter := NewVoteRateLimiter(client, clock, 50, 25)

	ctx := context.Background()
	key := rateLimitKeyPrefix + "10.0.0.5"

	_, err := limiter.Allow(ctx, "10.0.0.5")
	require.NoError(t, err)

	ttl := client.TTL(ctx, key).Val()
	assert.Greater(t, ttl.Seconds(), float64(290), "TTL should be ~300 seconds")
	assert.LessOrEqual(t, ttl.Seconds(), float64(300), "TTL should not exceed 300 seconds")
}

// TestVoteRateLimit_Integration_PerKey verifies buckets are independent.
func TestVoteRateLimit_Integration_PerKey(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	client := setupTestClient(t)
	clock := clockwork.NewFakeClock()
	limiter := NewVoteRateLimiter(client, clock, 50, 25)

	ctx := context.Background()

	// Exhaust the bucket for the first address
	for i := 0; i < 50; i++ {
		_, err := limiter.Allow(ctx, "10.0.0.6")
		require.NoError(t, err)
	}

	allowed, err := limiter.Allow(ctx, "10.0.0.6")
	require.NoError(t, err)
	assert.False(t, allowed, "First address should be rate limited")

	// A different address still has its full budget
	allowed, err = limiter.Allow(ctx, "10.0.0.7")
	require.NoError(t, err)
	assert.True(t, allowed, "Second address should have an independent bucket")
}

// TestVoteRateLimit_Integration_ZeroTimeDelta verifies no tokens appear when
// no time passes.
func TestVoteRateLimit_Integration_ZeroTimeDelta(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	client := setupTestClient(t)
	clock := clockwork.NewFakeClock()
	limiter := NewVoteRateLimiter(client, clock, 50, 25)

	ctx := context.Background()

	for i := 0; i < 50; i++ {
		_, err := limiter.Allow(ctx, "10.0.0.8")
		require.NoError(t, err)
	}

	allowed, err := limiter.Allow(ctx, "10.0.0.8")
	require.NoError(t, err)
	assert.False(t, allowed, "Should remain rate limited when no time passes")
}
