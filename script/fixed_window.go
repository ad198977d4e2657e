// Package script holds the Lua kernels rlcore's Redis-backed Store runs
// atomically server-side. Each kernel is compiled once into a
// *redis.Script and executed via EVALSHA, with transparent reload on
// NOSCRIPT — the same pattern go-redis documents for redis.Script.Run.
package script

import "github.com/redis/go-redis/v9"

// FixedWindowLua implements the fixed-window kernel (§4.4): INCRBY
// against the current window's counter key runs unconditionally on
// every call, admitted or not — a denied request still contributes to
// the counter; admission is the contract, accounting is eventual at
// window expiry. EXPIREAT is (re)asserted to the window's absolute end
// whenever the key carries no TTL, so the counter dies with the window
// it belongs to even if a prior EXPIREAT was somehow lost.
//
// KEYS[1] = counter key
// ARGV[1] = limit, scaled
// ARGV[2] = window length, seconds
// ARGV[3] = window end, absolute unix epoch seconds
// ARGV[4] = cost, scaled
//
// Returns {allowed (0/1), remaining (scaled), retry_after_ms}.
const FixedWindowLua = `
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local window_end = tonumber(ARGV[3])
local cost = tonumber(ARGV[4])

local current = redis.call("INCRBY", key, cost)

if current == cost then
	redis.call("EXPIREAT", key, window_end)
end

local ttl_rem = redis.call("TTL", key)
if ttl_rem < 0 then
	redis.call("EXPIREAT", key, window_end)
	ttl_rem = window
end

local allowed = 0
if current <= limit then
	allowed = 1
end

local remaining = limit - current
if remaining < 0 then remaining = 0 end

local retry_after_ms = ttl_rem * 1000

return {allowed, remaining, retry_after_ms}
`

// FixedWindowScript is the pre-compiled handle for FixedWindowLua.
var FixedWindowScript = redis.NewScript(FixedWindowLua)
