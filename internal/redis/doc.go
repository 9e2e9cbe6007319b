// Package redis implements the Redis-backed poll store and event publisher.
//
// PollStore keeps each poll in a hash plus a per-option tally hash and a
// monotonic sequence counter. Vote, close, and delete use Lua scripts so
// each state change is a single atomic backend operation. Publisher fans
// change events out over Redis Pub/Sub for cross-instance delivery.
//
// The package also carries the client hooks (metrics, circuit breaker), the
// vote rate limiter, the instance heartbeat registry, and the orphaned-key
// scanner used by the cleanup tool.
package redis
