package script

import "github.com/redis/go-redis/v9"

// TokenBucketLua implements the token-bucket kernel (§4.5): lazy
// continuous refill computed from elapsed milliseconds since the
// bucket's last touch, capped at capacity, persisted via HSET.
//
// Refill is derived directly from capacity and window — never through an
// intermediate floor(L·S/W) per-second rate — so a low rate such as
// 1/hour still accrues fractional progress every call instead of
// flooring to zero and starving the bucket forever (spec.md scenario
// S3). The only floor in the computation is the final one, applied to
// the ms-domain result.
//
// KEYS[1] = bucket key
// ARGV[1] = capacity, scaled (L·S)
// ARGV[2] = window length, seconds (also the full-refill period)
// ARGV[3] = now, unix epoch milliseconds (store's own clock)
// ARGV[4] = cost, scaled
//
// Returns {allowed (0/1), tokens_remaining (scaled), retry_after_ms}.
const TokenBucketLua = `
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local now_ms = tonumber(ARGV[3])
local cost = tonumber(ARGV[4])
local window_ms = window * 1000

local entry = redis.call("HMGET", key, "tokens", "last_ms")
local tokens
local last_ms

if entry[1] == false then
	tokens = capacity
	last_ms = now_ms
else
	tokens = tonumber(entry[1])
	last_ms = tonumber(entry[2])
end

local elapsed_ms = now_ms - last_ms
if elapsed_ms > 0 then
	local refilled = math.floor((elapsed_ms * capacity) / window_ms)
	tokens = tokens + refilled
	if tokens > capacity then
		tokens = capacity
	end
	last_ms = now_ms
end

local allowed = 0
local retry_after_ms = 0
if tokens >= cost then
	tokens = tokens - cost
	allowed = 1
else
	local needed = cost - tokens
	if capacity > 0 then
		retry_after_ms = math.ceil((needed * window_ms) / capacity)
	else
		retry_after_ms = window_ms
	end
end

redis.call("HSET", key, "tokens", tokens, "last_ms", last_ms)
local ttl = window * 2 + 60
redis.call("EXPIRE", key, ttl)

return {allowed, tokens, retry_after_ms}
`

// TokenBucketScript is the pre-compiled handle for TokenBucketLua.
var TokenBucketScript = redis.NewScript(TokenBucketLua)
