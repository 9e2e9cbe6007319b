package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
)

// rateLimitKeyPrefix namespaces the token bucket keys.
const rateLimitKeyPrefix = "rate_limit:votes:"

// rateLimitTTL expires idle buckets so one-off voters do not accumulate keys.
const rateLimitTTL = 5 * time.Minute

// voteRateLimitScript implements a token bucket in one atomic round trip.
// The caller supplies the current time, so refill math is driven by the
// application clock rather than Redis server time.
// KEYS: [1]=bucket hash
// ARGV: [1]=now (unix ms), [2]=capacity, [3]=refill rate (tokens/sec), [4]=ttl ms
// Returns 1 when a token was consumed, 0 when the bucket is empty.
var voteRateLimitScript = goredis.NewScript(`
local tokens = tonumber(redis.call('HGET', KEYS[1], 'tokens'))
local stamp = tonumber(redis.call('HGET', KEYS[1], 'stamp'))
local now = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local rate = tonumber(ARGV[3])

if tokens == nil then
  tokens = capacity
  stamp = now
end

local elapsed = (now - stamp) / 1000.0
if elapsed > 0 then
  tokens = math.min(capacity, tokens + elapsed * rate)
  stamp = now
end

local allowed = 0
if tokens >= 1 then
  tokens = tokens - 1
  allowed = 1
end

redis.call('HSET', KEYS[1], 'tokens', tokens, 'stamp', stamp)
redis.call('PEXPIRE', KEYS[1], ARGV[4])
return allowed
`)

// VoteRateLimiter enforces a per-voter token bucket through Redis, so the
// vote budget holds across every instance instead of multiplying with the
// replica count.
type VoteRateLimiter struct {
	rdb      *goredis.Client
	clock    clockwork.Clock
	capacity int
	rate     float64 // tokens per second
}

// NewVoteRateLimiter creates a vote rate limiter.
// capacity is the burst size, rate the sustained tokens per second.
func NewVoteRateLimiter(rdb *goredis.Client, clock clockwork.Clock, capacity int, rate float64) *VoteRateLimiter {
	return &VoteRateLimiter{
		rdb:      rdb,
		clock:    clock,
		capacity: capacity,
		rate:     rate,
	}
}

// Allow consumes one token from the bucket belonging to key (typically the
// client IP). It returns true when the vote may proceed, false when the
// bucket is empty.
func (v *VoteRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	result, err := voteRateLimitScript.Run(ctx, v.rdb,
		[]string{rateLimitKeyPrefix + key},
		v.clock.Now().UnixMilli(),
		v.capacity,
		v.rate,
		rateLimitTTL.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("rate limit check failed: %w", err)
	}

	return result == 1, nil
}
