package script

import "github.com/redis/go-redis/v9"

// SlidingWindowLua implements the sliding-window kernel (§4.6): the
// request is admitted against a weighted blend of the current window's
// counter and a decaying fraction of the previous window's counter,
// carried entirely in fixed-point integer arithmetic — no per-request
// log, no floating point.
//
// KEYS[1] = current window counter key
// KEYS[2] = previous window counter key
// ARGV[1] = limit, scaled
// ARGV[2] = window length, seconds
// ARGV[3] = now, unix epoch seconds (store's own clock)
// ARGV[4] = cost, scaled
//
// Returns {allowed (0/1), remaining (scaled), retry_after_ms}.
const SlidingWindowLua = `
local cur_key = KEYS[1]
local prev_key = KEYS[2]
local limit = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local cost = tonumber(ARGV[4])

local w_start = now - (now % window)
local elapsed = now - w_start
local remaining_in_window = window - elapsed
local prev_weight_fp = math.floor(remaining_in_window * 1000 / window)

local current = tonumber(redis.call("GET", cur_key) or "0")
local previous = tonumber(redis.call("GET", prev_key) or "0")
local weighted_prev = math.floor(previous * prev_weight_fp / 1000)
local weighted = current + weighted_prev

local allowed = 0
local remaining = limit - weighted
if remaining < 0 then remaining = 0 end

local retry_after_ms = 0

if weighted + cost <= limit then
	current = redis.call("INCRBY", cur_key, cost)
	redis.call("EXPIRE", cur_key, window * 2)
	allowed = 1
	remaining = limit - (weighted + cost)
else
	-- Solve for the earliest future elapsed time at which the decaying
	-- previous-window contribution has dropped enough to admit, instead
	-- of naively waiting out the full window.
	local avail = limit - cost - current
	if avail < 0 or previous == 0 then
		retry_after_ms = remaining_in_window * 1000
	else
		local target_elapsed_ms = window * 1000 - math.floor((avail * window * 1000) / previous)
		local wait_ms = target_elapsed_ms - elapsed * 1000
		if wait_ms < 1000 then wait_ms = 1000 end
		local max_wait_ms = remaining_in_window * 1000
		if wait_ms > max_wait_ms then wait_ms = max_wait_ms end
		retry_after_ms = wait_ms
	end
end

return {allowed, remaining, retry_after_ms}
`

// SlidingWindowScript is the pre-compiled handle for SlidingWindowLua.
var SlidingWindowScript = redis.NewScript(SlidingWindowLua)
