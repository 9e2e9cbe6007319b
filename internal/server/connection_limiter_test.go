package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIPConnectionLimiter_EnforcesPerIPMax(t *testing.T) {
	limiter := NewIPConnectionLimiter(2)

	assert.True(t, limiter.Acquire("1.2.3.4"))
	assert.True(t, limiter.Acquire("1.2.3.4"))
	assert.False(t, limiter.Acquire("1.2.3.4"), "third connection should be rejected")

	// Other IPs are unaffected
	assert.True(t, limiter.Acquire("5.6.7.8"))
}

func TestIPConnectionLimiter_ReleaseFreesSlot(t *testing.T) {
	limiter := NewIPConnectionLimiter(1)

	assert.True(t, limiter.Acquire("1.2.3.4"))
	assert.False(t, limiter.Acquire("1.2.3.4"))

	limiter.Release("1.2.3.4")
	assert.True(t, limiter.Acquire("1.2.3.4"))
}

func TestIPConnectionLimiter_CountAndUniqueIPs(t *testing.T) {
	limiter := NewIPConnectionLimiter(5)

	limiter.Acquire("1.2.3.4")
	limiter.Acquire("1.2.3.4")
	limiter.Acquire("5.6.7.8")

	assert.Equal(t, 2, limiter.Count("1.2.3.4"))
	assert.Equal(t, 1, limiter.Count("5.6.7.8"))
	assert.Equal(t, 0, limiter.Count("9.9.9.9"))
	assert.Equal(t, 2, limiter.UniqueIPs())

	// Releasing the last slot drops the IP from tracking
	limiter.Release("5.6.7.8")
	assert.Equal(t, 1, limiter.UniqueIPs())
}

func TestIPConnectionLimiter_ReleaseWithoutAcquireIsSafe(t *testing.T) {
	limiter := NewIPConnectionLimiter(1)

	limiter.Release("1.2.3.4")
	assert.Equal(t, 0, limiter.Count("1.2.3.4"))
	assert.True(t, limiter.Acquire("1.2.3.4"))
}

func TestConnectionRateLimiter_BurstThenDeny(t *testing.T) {
	limiter := NewConnectionRateLimiter(0.01, 2) // near-zero refill, burst 2

	assert.True(t, limiter.Allow("1.2.3.4"))
	assert.True(t, limiter.Allow("1.2.3.4"))
	assert.False(t, limiter.Allow("1.2.3.4"), "burst exhausted")
}

func TestConnectionRateLimiter_PerIPBuckets(t *testing.T) {
	limiter := NewConnectionRateLimiter(0.01, 1)

	assert.True(t, limiter.Allow("1.2.3.4"))
	assert.False(t, limiter.Allow("1.2.3.4"))
	assert.True(t, limiter.Allow("5.6.7.8"), "second IP has its own bucket")
	assert.Equal(t, 2, limiter.ActiveLimiters())
}

func TestConnectionLimits_RateCheckedBeforeSlot(t *testing.T) {
	limits := NewConnectionLimits(10, 0.01, 1)

	ok, reason := limits.Acquire("1.2.3.4")
	assert.True(t, ok)
	assert.Empty(t, string(reason))

	// Second attempt fails the rate check; no slot is consumed.
	ok, reason = limits.Acquire("1.2.3.4")
	assert.False(t, ok)
	assert.Equal(t, LimitReasonRate, reason)
	assert.Equal(t, 1, limits.perIP.Count("1.2.3.4"))
}

func TestConnectionLimits_PerIPReason(t *testing.T) {
	limits := NewConnectionLimits(1, 1000, 1000)

	ok, _ := limits.Acquire("1.2.3.4")
	assert.True(t, ok)

	ok, reason := limits.Acquire("1.2.3.4")
	assert.False(t, ok)
	assert.Equal(t, LimitReasonPerIP, reason)
}

func TestConnectionLimits_ReleaseFreesPerIPSlot(t *testing.T) {
	limits := NewConnectionLimits(1, 1000, 1000)

	ok, _ := limits.Acquire("1.2.3.4")
	assert.True(t, ok)

	limits.Release("1.2.3.4")

	ok, _ = limits.Acquire("1.2.3.4")
	assert.True(t, ok)
}
