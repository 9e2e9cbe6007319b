package redis

import (
	goredis "github.com/redis/go-redis/v9"
)

// Lua scripts for poll state changes. Each script performs its validation,
// mutation, and sequence increment in one atomic round trip, so concurrent
// callers can never observe or produce a torn state.
//
// Status codes returned as the first table element:
//   0 = ok, 1 = poll not found, 2 = poll closed, 3 = unknown option

// castVoteScript increments one option tally.
// KEYS: [1]=poll hash, [2]=votes hash, [3]=sequence counter
// ARGV: [1]=option label
// Returns {0, new_count, seq, labels_json, counts} on success.
var castVoteScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return {1}
end
if redis.call('HGET', KEYS[1], 'closed') == '1' then
  return {2}
end
if redis.call('HEXISTS', KEYS[2], ARGV[1]) == 0 then
  return {3}
end
local count = redis.call('HINCRBY', KEYS[2], ARGV[1], 1)
local seq = redis.call('INCR', KEYS[3])
local labels = redis.call('HGET', KEYS[1], 'labels')
local counts = redis.call('HGETALL', KEYS[2])
return {0, count, seq, labels, counts}
`)

// closePollScript marks a poll closed. Closing an already-closed poll is a
// no-op and does not consume a sequence number.
// KEYS: [1]=poll hash, [2]=votes hash, [3]=sequence counter
// Returns {0, seq, labels_json, counts} on transition, {2} when already closed.
var closePollScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return {1}
end
if redis.call('HGET', KEYS[1], 'closed') == '1' then
  return {2}
end
redis.call('HSET', KEYS[1], 'closed', '1')
local seq = redis.call('INCR', KEYS[3])
local labels = redis.call('HGET', KEYS[1], 'labels')
local counts = redis.call('HGETALL', KEYS[2])
return {0, seq, labels, counts}
`)

// deletePollScript removes all keys belonging to a poll and takes it out of
// the index. The sequence is read before deletion so the terminal event can
// still carry a value newer than any prior event.
// KEYS: [1]=poll hash, [2]=votes hash, [3]=sequence counter, [4]=poll index set
// ARGV: [1]=poll id
// Returns {0, seq} on success.
var deletePollScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return {1}
end
local seq = redis.call('INCR', KEYS[3])
redis.call('DEL', KEYS[1], KEYS[2], KEYS[3])
redis.call('SREM', KEYS[4], ARGV[1])
return {0, seq}
`)
