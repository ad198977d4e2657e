package store_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/jassus213/rlcore"
	"github.com/jassus213/rlcore/store"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newMiniredisStore(t *testing.T) (*store.RedisStore, *miniredis.Miniredis) {
	t.Helper()
	s, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(s.Close)

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return store.NewRedis(client), s
}

func TestRedisStoreExecFixedWindowAdmitsThenDenies(t *testing.T) {
	rs, _ := newMiniredisStore(t)
	ctx := context.Background()

	sec, _, err := rs.Now(ctx)
	require.NoError(t, err)

	wEnd := sec + 60
	key := "fw:test"

	for i := 0; i < 3; i++ {
		res, err := rs.ExecFixedWindow(ctx, key, 3*rlcore.Scale, 60, wEnd, rlcore.Scale)
		require.NoError(t, err)
		require.True(t, res.Allowed, "call %d should be allowed", i)
	}

	res, err := rs.ExecFixedWindow(ctx, key, 3*rlcore.Scale, 60, wEnd, rlcore.Scale)
	require.NoError(t, err)
	require.False(t, res.Allowed)
	require.Equal(t, int64(0), res.RemainingScaled)
	require.Greater(t, res.RetryAfterMs, int64(0))
}

// A denied fixed-window request still contributes to the stored
// counter — admission is the contract, accounting is eventual at
// window expiry (spec.md §4.4).
func TestRedisStoreExecFixedWindowDenialStillIncrementsCounter(t *testing.T) {
	rs, _ := newMiniredisStore(t)
	ctx := context.Background()

	sec, _, err := rs.Now(ctx)
	require.NoError(t, err)

	wEnd := sec + 60
	key := "fw:denial-accounting"
	limit := 2 * rlcore.Scale

	for i := 0; i < 2; i++ {
		res, err := rs.ExecFixedWindow(ctx, key, limit, 60, wEnd, rlcore.Scale)
		require.NoError(t, err)
		require.True(t, res.Allowed)
	}

	res, err := rs.ExecFixedWindow(ctx, key, limit, 60, wEnd, rlcore.Scale)
	require.NoError(t, err)
	require.False(t, res.Allowed)

	counter, err := rs.GetCounter(ctx, key)
	require.NoError(t, err)
	require.Equal(t, 3*rlcore.Scale, counter, "counter must reflect all three admitted-or-not calls")

	// A further denied call keeps advancing the counter past the limit.
	res, err = rs.ExecFixedWindow(ctx, key, limit, 60, wEnd, rlcore.Scale)
	require.NoError(t, err)
	require.False(t, res.Allowed)
	counter, err = rs.GetCounter(ctx, key)
	require.NoError(t, err)
	require.Equal(t, 4*rlcore.Scale, counter)
}

func TestRedisStoreExecTokenBucketRefillsAndThrottles(t *testing.T) {
	rs, _ := newMiniredisStore(t)
	ctx := context.Background()

	key := "tb:test"
	capacity := 5 * rlcore.Scale
	cost := rlcore.Scale

	nowMs := int64(1_000_000)
	for i := 0; i < 5; i++ {
		res, err := rs.ExecTokenBucket(ctx, key, capacity, 1, nowMs, cost)
		require.NoError(t, err)
		require.True(t, res.Allowed, "call %d should be allowed", i)
	}

	res, err := rs.ExecTokenBucket(ctx, key, capacity, 1, nowMs, cost)
	require.NoError(t, err)
	require.False(t, res.Allowed)

	res, err = rs.ExecTokenBucket(ctx, key, capacity, 1, nowMs+1000, cost)
	require.NoError(t, err)
	require.True(t, res.Allowed, "a full second of refill should restore a token")
}

// spec.md scenario S3: a 1/hour-class rate must not starve the bucket
// just because floor(L·S/W) would floor to 0 tokens/sec under a naive
// per-second rate — refill must be derived directly from capacity and
// window so fractional progress still accrues every call.
func TestRedisStoreExecTokenBucketLowRateDoesNotStarve(t *testing.T) {
	rs, _ := newMiniredisStore(t)
	ctx := context.Background()

	key := "tb:low-rate"
	window := int64(3600) // 1 hour
	capacity := rlcore.Scale
	cost := rlcore.Scale

	nowMs := int64(0)
	res, err := rs.ExecTokenBucket(ctx, key, capacity, window, nowMs, cost)
	require.NoError(t, err)
	require.True(t, res.Allowed, "initial bucket starts full")

	// Immediately denied: bucket just emptied.
	res, err = rs.ExecTokenBucket(ctx, key, capacity, window, nowMs, cost)
	require.NoError(t, err)
	require.False(t, res.Allowed)
	require.Greater(t, res.RetryAfterMs, int64(0), "must not get stuck at retry_after_ms=0 forever")

	// Half the window elapses: bucket should have refilled halfway,
	// still short of a full token, so still denied but moving.
	halfWindowMs := nowMs + (window*1000)/2
	res, err = rs.ExecTokenBucket(ctx, key, capacity, window, halfWindowMs, cost)
	require.NoError(t, err)
	require.False(t, res.Allowed)

	tokens, err := rs.PeekBucket(ctx, key, capacity, window, halfWindowMs)
	require.NoError(t, err)
	require.Greater(t, tokens, int64(0), "fractional refill must accrue rather than floor to zero")

	// A full window elapses from the last touch: bucket is full again.
	fullWindowMs := halfWindowMs + window*1000
	res, err = rs.ExecTokenBucket(ctx, key, capacity, window, fullWindowMs, cost)
	require.NoError(t, err)
	require.True(t, res.Allowed, "a full window of elapsed time must fully refill a 1/hour-class bucket")
}

func TestRedisStoreExecSlidingWindowBlendsWindows(t *testing.T) {
	rs, _ := newMiniredisStore(t)
	ctx := context.Background()

	curKey, prevKey := "sw:cur", "sw:prev"
	limit := 4 * rlcore.Scale
	window := int64(10)

	res, err := rs.ExecSlidingWindow(ctx, curKey, prevKey, limit, window, 100, rlcore.Scale)
	require.NoError(t, err)
	require.True(t, res.Allowed)

	cur, prev, err := rs.GetSlidingCounters(ctx, curKey, prevKey)
	require.NoError(t, err)
	require.Equal(t, rlcore.Scale, cur)
	require.Equal(t, int64(0), prev)
}

// On denial, retry_after_ms must reflect the decay of the previous
// window's weighted contribution, not a naive wait-for-the-boundary —
// spec.md §4.6 step 7 / scenario S4.
func TestRedisStoreExecSlidingWindowDenialRetryReflectsDecay(t *testing.T) {
	rs, _ := newMiniredisStore(t)
	ctx := context.Background()

	window := int64(60)
	limit := 10 * rlcore.Scale

	// Seed the previous window with a heavy count and leave the current
	// window empty, at the very start of the window (elapsed == 0, so
	// the previous window's weight is at its maximum).
	wStart := int64(600) // aligned to a 60s boundary
	curKey := "sw:decay:cur"
	prevKey := "sw:decay:prev"

	_, err := rs.ExecSlidingWindow(ctx, prevKey, "sw:decay:prev-of-prev", 1_000_000*rlcore.Scale, window, wStart-window, 10*rlcore.Scale)
	require.NoError(t, err)

	res, err := rs.ExecSlidingWindow(ctx, curKey, prevKey, limit, window, wStart, rlcore.Scale)
	require.NoError(t, err)
	require.False(t, res.Allowed, "previous window's full weight plus cost should exceed the limit")
	require.Greater(t, res.RetryAfterMs, int64(0))
	require.Less(t, res.RetryAfterMs, window*1000, "decay math must yield a hint under the full window, not remaining_in_window*1000")
}

func TestRedisStoreGetCounterMissingKeyIsZero(t *testing.T) {
	rs, _ := newMiniredisStore(t)
	ctx := context.Background()

	n, err := rs.GetCounter(ctx, "fw:missing")
	require.NoError(t, err)
	require.Equal(t, int64(0), n)
}

func TestRedisStorePeekBucketMissingKeyReturnsCapacity(t *testing.T) {
	rs, _ := newMiniredisStore(t)
	ctx := context.Background()

	tokens, err := rs.PeekBucket(ctx, "tb:missing", 5*rlcore.Scale, 1, 0)
	require.NoError(t, err)
	require.Equal(t, 5*rlcore.Scale, tokens)
}

func TestRedisStoreDeleteIsNoopOnMissingKey(t *testing.T) {
	rs, _ := newMiniredisStore(t)
	ctx := context.Background()
	require.NoError(t, rs.Delete(ctx, "does-not-exist"))
}

func TestRedisStoreNowUsesServerClock(t *testing.T) {
	rs, _ := newMiniredisStore(t)
	ctx := context.Background()

	sec, _, err := rs.Now(ctx)
	require.NoError(t, err)
	require.Greater(t, sec, int64(0))
}
