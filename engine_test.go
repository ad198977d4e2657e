package rlcore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jassus213/rlcore"
	"github.com/jassus213/rlcore/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemoryEngine(t *testing.T, algo rlcore.Algorithm) *rlcore.Engine {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	s := store.NewMemory(ctx, 0)
	return rlcore.NewEngine(s, rlcore.WithDefaultAlgorithm(algo))
}

// S1: fixed window admits up to the limit within a window, then denies.
func TestFixedWindowAdmitsUpToLimitThenDenies(t *testing.T) {
	engine := newMemoryEngine(t, rlcore.FixedWindow)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := engine.CheckInfo(ctx, "user-1", "3/minute")
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d should be allowed", i)
	}

	res, err := engine.CheckInfo(ctx, "user-1", "3/minute")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, int64(0), res.Remaining)
}

// S2: Check returns LimitExceededError on denial, matched via errors.Is.
func TestCheckReturnsLimitExceededError(t *testing.T) {
	engine := newMemoryEngine(t, rlcore.FixedWindow)
	ctx := context.Background()

	_, err := engine.Check(ctx, "user-2", "1/minute")
	require.NoError(t, err)

	_, err = engine.Check(ctx, "user-2", "1/minute")
	require.Error(t, err)
	assert.True(t, errors.Is(err, rlcore.ErrLimitExceeded))

	var leErr *rlcore.LimitExceededError
	require.True(t, errors.As(err, &leErr))
	assert.Equal(t, int64(1), leErr.Limit)
	assert.Equal(t, int64(0), leErr.Remaining)
}

// S3: token bucket allows an initial burst up to capacity, then throttles
// to the refill rate.
func TestTokenBucketBurstThenThrottles(t *testing.T) {
	engine := newMemoryEngine(t, rlcore.TokenBucket)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		res, err := engine.CheckInfo(ctx, "user-3", "5/second")
		require.NoError(t, err)
		assert.True(t, res.Allowed, "burst request %d should be allowed", i)
	}

	res, err := engine.CheckInfo(ctx, "user-3", "5/second")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Greater(t, res.RetryAfterMs, int64(0))
}

// S4: distinct tenants under the same id never share state.
func TestTenantIsolation(t *testing.T) {
	engine := newMemoryEngine(t, rlcore.FixedWindow)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := engine.CheckInfo(ctx, "shared-id", "2/minute", rlcore.WithTenant("tenant-a"))
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}
	res, err := engine.CheckInfo(ctx, "shared-id", "2/minute", rlcore.WithTenant("tenant-a"))
	require.NoError(t, err)
	assert.False(t, res.Allowed)

	res, err = engine.CheckInfo(ctx, "shared-id", "2/minute", rlcore.WithTenant("tenant-b"))
	require.NoError(t, err)
	assert.True(t, res.Allowed, "tenant-b must not share tenant-a's counter")
}

// S5: cost > 1 consumes proportionally more headroom per call.
func TestCostConsumesProportionally(t *testing.T) {
	engine := newMemoryEngine(t, rlcore.FixedWindow)
	ctx := context.Background()

	res, err := engine.CheckInfo(ctx, "user-5", "10/minute", rlcore.WithCost(7))
	require.NoError(t, err)
	require.True(t, res.Allowed)
	assert.Equal(t, int64(3), res.Remaining)

	res, err = engine.CheckInfo(ctx, "user-5", "10/minute", rlcore.WithCost(4))
	require.NoError(t, err)
	assert.False(t, res.Allowed)
}

// S6: GetUsage never mutates state — repeated calls return the same
// snapshot, and a subsequent Check still has the full limit available.
func TestGetUsageDoesNotMutate(t *testing.T) {
	engine := newMemoryEngine(t, rlcore.FixedWindow)
	ctx := context.Background()

	usage, err := engine.GetUsage(ctx, "user-6", "5/minute")
	require.NoError(t, err)
	assert.Equal(t, int64(5), usage.Limit)
	assert.Equal(t, int64(0), usage.Used)
	assert.Equal(t, int64(5), usage.Remaining)

	again, err := engine.GetUsage(ctx, "user-6", "5/minute")
	require.NoError(t, err)
	assert.Equal(t, usage, again)

	for i := 0; i < 5; i++ {
		res, err := engine.CheckInfo(ctx, "user-6", "5/minute")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}
}

// Reset clears accumulated state so a subsequent call sees a fresh window.
func TestResetClearsState(t *testing.T) {
	engine := newMemoryEngine(t, rlcore.FixedWindow)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := engine.CheckInfo(ctx, "user-7", "2/minute")
		require.NoError(t, err)
	}
	res, err := engine.CheckInfo(ctx, "user-7", "2/minute")
	require.NoError(t, err)
	require.False(t, res.Allowed)

	require.NoError(t, engine.Reset(ctx, "user-7", "2/minute"))

	res, err = engine.CheckInfo(ctx, "user-7", "2/minute")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestUnknownAlgorithmRejected(t *testing.T) {
	engine := newMemoryEngine(t, rlcore.FixedWindow)
	ctx := context.Background()

	_, err := engine.CheckInfo(ctx, "user-8", "5/minute", rlcore.WithAlgorithm(rlcore.Algorithm("nonsense")))
	require.Error(t, err)
	var rlErr *rlcore.Error
	require.True(t, errors.As(err, &rlErr))
	assert.Equal(t, rlcore.KindUnknownAlgorithm, rlErr.Kind)
}

func TestInvalidCostRejected(t *testing.T) {
	engine := newMemoryEngine(t, rlcore.FixedWindow)
	ctx := context.Background()

	_, err := engine.CheckInfo(ctx, "user-9", "5/minute", rlcore.WithCost(0))
	require.Error(t, err)
	var rlErr *rlcore.Error
	require.True(t, errors.As(err, &rlErr))
	assert.Equal(t, rlcore.KindInvalidCost, rlErr.Kind)
}

// Sliding window smooths the edge-of-window burst that fixed window
// allows: consuming the full limit just before a boundary still leaves
// the blended count above zero just after it.
func TestSlidingWindowBlendsAcrossBoundary(t *testing.T) {
	engine := newMemoryEngine(t, rlcore.SlidingWindow)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		res, err := engine.CheckInfo(ctx, "user-10", "4/second")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}

	res, err := engine.CheckInfo(ctx, "user-10", "4/second")
	require.NoError(t, err)
	assert.False(t, res.Allowed)

	time.Sleep(1100 * time.Millisecond)
	usage, err := engine.GetUsage(ctx, "user-10", "4/second")
	require.NoError(t, err)
	assert.Less(t, usage.Used, int64(4))
}

// spec.md scenario S3: a 1/hour-class rate must not starve the bucket
// forever — refill is driven directly by capacity and window, never
// through a floor(L·S/W) per-second rate that would floor to zero.
// Exercised against MemoryStore directly so nowMs can be controlled
// precisely, since Engine always sources Now from the real wall clock.
func TestMemoryStoreTokenBucketLowRateDoesNotStarve(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory(ctx, 0)

	key := "tb:engine-level-low-rate"
	window := int64(3600)
	capacity := rlcore.Scale
	cost := rlcore.Scale

	res, err := s.ExecTokenBucket(ctx, key, capacity, window, 0, cost)
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = s.ExecTokenBucket(ctx, key, capacity, window, 0, cost)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Greater(t, res.RetryAfterMs, int64(0))

	halfWindowMs := (window * 1000) / 2
	tokens, err := s.PeekBucket(ctx, key, capacity, window, halfWindowMs)
	require.NoError(t, err)
	assert.Greater(t, tokens, int64(0), "fractional refill must accrue rather than floor to zero")

	res, err = s.ExecTokenBucket(ctx, key, capacity, window, window*1000, cost)
	require.NoError(t, err)
	assert.True(t, res.Allowed, "a full window of elapsed time must fully refill a 1/hour-class bucket")
}

// A denied fixed-window request still advances the stored counter —
// admission is the contract, accounting is eventual at window expiry
// (spec.md §4.4).
func TestMemoryStoreFixedWindowDenialStillIncrementsCounter(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory(ctx, 0)

	sec, _, err := s.Now(ctx)
	require.NoError(t, err)
	wEnd := sec + 60
	key := "fw:engine-level-denial-accounting"
	limit := 2 * rlcore.Scale

	for i := 0; i < 2; i++ {
		res, err := s.ExecFixedWindow(ctx, key, limit, 60, wEnd, rlcore.Scale)
		require.NoError(t, err)
		require.True(t, res.Allowed)
	}

	res, err := s.ExecFixedWindow(ctx, key, limit, 60, wEnd, rlcore.Scale)
	require.NoError(t, err)
	assert.False(t, res.Allowed)

	counter, err := s.GetCounter(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 3*rlcore.Scale, counter, "counter must reflect the denied call too")
}

// On denial, retry_after_ms must reflect the decay of the previous
// window's weighted contribution rather than a naive wait-for-boundary
// (spec.md §4.6 step 7 / scenario S4).
func TestMemoryStoreSlidingWindowDenialRetryReflectsDecay(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory(ctx, 0)

	window := int64(60)
	limit := 10 * rlcore.Scale
	wStart := int64(600)
	curKey := "sw:engine-level-decay:cur"
	prevKey := "sw:engine-level-decay:prev"

	_, err := s.ExecSlidingWindow(ctx, prevKey, "sw:engine-level-decay:prev-of-prev", 1_000_000*rlcore.Scale, window, wStart-window, 10*rlcore.Scale)
	require.NoError(t, err)

	res, err := s.ExecSlidingWindow(ctx, curKey, prevKey, limit, window, wStart, rlcore.Scale)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Greater(t, res.RetryAfterMs, int64(0))
	assert.Less(t, res.RetryAfterMs, window*1000, "decay math must yield a hint under the full window")
}
