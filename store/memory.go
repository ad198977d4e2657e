package store

import (
	"context"
	"sync"
	"time"

	"github.com/jassus213/rlcore"
)

// counterEntry backs both the fixed-window and sliding-window counters:
// a scaled count that expires at a fixed point in time.
type counterEntry struct {
	count     int64
	expiresAt time.Time
}

// bucketEntry stores the state of a token bucket key.
type bucketEntry struct {
	tokensScaled int64
	lastMs       int64
	expiresAt    time.Time
}

// MemoryStore is an in-memory implementation of rlcore.Store, suitable
// for single-instance applications and tests. It runs the same
// arithmetic as the Redis Lua kernels, just under a mutex instead of
// inside the server.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]counterEntry
	buckets  map[string]bucketEntry
}

var _ rlcore.Store = (*MemoryStore)(nil)

// NewMemory creates a new MemoryStore.
//
// ctx is the parent context for the background cleanup goroutine;
// cleanupInterval is how often stale entries are swept. Pass 0 to
// disable cleanup.
func NewMemory(ctx context.Context, cleanupInterval time.Duration) *MemoryStore {
	s := &MemoryStore{
		counters: make(map[string]counterEntry),
		buckets:  make(map[string]bucketEntry),
	}
	if cleanupInterval > 0 {
		go s.runCleanup(ctx, cleanupInterval)
	}
	return s
}

// Now reports the process's own wall clock. MemoryStore has no
// distributed-skew concern, so there is no separate store clock to
// consult.
func (s *MemoryStore) Now(ctx context.Context) (int64, int64, error) {
	now := time.Now()
	return now.Unix(), int64(now.Nanosecond()), nil
}

func (s *MemoryStore) ExecFixedWindow(ctx context.Context, key string, limitScaled, windowSeconds, windowEndEpoch, costScaled int64) (rlcore.ScriptResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	e, found := s.counters[key]
	if found && now.After(e.expiresAt) {
		found = false
	}

	// The counter is incremented unconditionally, admitted or not — a
	// denied request still contributes to the count; admission is the
	// contract, accounting is eventual at window expiry. Every stored
	// entry always carries an expiresAt, so there is no "key present
	// without a TTL" case to defensively repair here the way the Redis
	// kernel must; a fresh expiresAt is set only on first admission into
	// this window (found == false).
	current := int64(0)
	expiresAt := time.Unix(windowEndEpoch, 0)
	if found {
		current = e.count
		expiresAt = e.expiresAt
	}

	newVal := current + costScaled
	s.counters[key] = counterEntry{count: newVal, expiresAt: expiresAt}

	allowed := newVal <= limitScaled
	remaining := limitScaled - newVal
	if remaining < 0 {
		remaining = 0
	}

	retryAfterMs := int64(expiresAt.Sub(now) / time.Millisecond)
	if retryAfterMs < 0 {
		retryAfterMs = 0
	}

	return rlcore.ScriptResult{Allowed: allowed, RemainingScaled: remaining, RetryAfterMs: retryAfterMs}, nil
}

// ExecTokenBucket refills directly from capacityScaled and windowSeconds
// (capacityScaled tokens accrue over windowSeconds of elapsed time),
// never through an intermediate floor(L·S/W) per-second rate — a low
// rate such as 1/hour must still accrue fractional progress every call
// instead of flooring to zero and starving permanently (spec.md
// scenario S3).
func (s *MemoryStore) ExecTokenBucket(ctx context.Context, key string, capacityScaled, windowSeconds, nowMs, costScaled int64) (rlcore.ScriptResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, found := s.buckets[key]
	tokens := capacityScaled
	lastMs := nowMs
	if found {
		tokens = b.tokensScaled
		lastMs = b.lastMs
	}

	windowMs := windowSeconds * 1000
	elapsed := nowMs - lastMs
	if elapsed > 0 {
		tokens += (elapsed * capacityScaled) / windowMs
		if tokens > capacityScaled {
			tokens = capacityScaled
		}
		lastMs = nowMs
	}

	var allowed bool
	var retryAfterMs int64
	if tokens >= costScaled {
		tokens -= costScaled
		allowed = true
	} else {
		needed := costScaled - tokens
		if capacityScaled > 0 {
			retryAfterMs = (needed*windowMs + capacityScaled - 1) / capacityScaled
		} else {
			retryAfterMs = windowMs
		}
	}

	ttl := time.Duration(windowSeconds*2+60) * time.Second
	s.buckets[key] = bucketEntry{tokensScaled: tokens, lastMs: lastMs, expiresAt: time.Now().Add(ttl)}

	return rlcore.ScriptResult{Allowed: allowed, RemainingScaled: tokens, RetryAfterMs: retryAfterMs}, nil
}

func (s *MemoryStore) ExecSlidingWindow(ctx context.Context, currentKey, previousKey string, limitScaled, windowSeconds, nowEpoch, costScaled int64) (rlcore.ScriptResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wStart := nowEpoch - (nowEpoch % windowSeconds)
	elapsed := nowEpoch - wStart
	remainingInWindow := windowSeconds - elapsed
	prevWeightFp := (remainingInWindow * 1000) / windowSeconds

	current := s.readCounterLocked(currentKey)
	previous := s.readCounterLocked(previousKey)
	weightedPrev := (previous * prevWeightFp) / 1000
	weighted := current + weightedPrev

	remaining := limitScaled - weighted
	if remaining < 0 {
		remaining = 0
	}

	if weighted+costScaled > limitScaled {
		// Solve for the earliest future elapsed time at which the
		// decaying previous-window contribution has dropped enough to
		// admit, instead of naively waiting out the full window.
		var retryAfterMs int64
		avail := limitScaled - costScaled - current
		if avail < 0 || previous == 0 {
			retryAfterMs = remainingInWindow * 1000
		} else {
			targetElapsedMs := windowSeconds*1000 - (avail*windowSeconds*1000)/previous
			waitMs := targetElapsedMs - elapsed*1000
			if waitMs < 1000 {
				waitMs = 1000
			}
			maxWaitMs := remainingInWindow * 1000
			if waitMs > maxWaitMs {
				waitMs = maxWaitMs
			}
			retryAfterMs = waitMs
		}
		return rlcore.ScriptResult{Allowed: false, RemainingScaled: remaining, RetryAfterMs: retryAfterMs}, nil
	}

	newCurrent := current + costScaled
	s.counters[currentKey] = counterEntry{
		count:     newCurrent,
		expiresAt: time.Now().Add(time.Duration(windowSeconds*2) * time.Second),
	}
	return rlcore.ScriptResult{Allowed: true, RemainingScaled: limitScaled - (weighted + costScaled)}, nil
}

func (s *MemoryStore) readCounterLocked(key string) int64 {
	e, found := s.counters[key]
	if !found || time.Now().After(e.expiresAt) {
		return 0
	}
	return e.count
}

func (s *MemoryStore) GetCounter(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readCounterLocked(key), nil
}

func (s *MemoryStore) PeekBucket(ctx context.Context, key string, capacityScaled, windowSeconds, nowMs int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, found := s.buckets[key]
	if !found {
		return capacityScaled, nil
	}
	windowMs := windowSeconds * 1000
	tokens := b.tokensScaled
	elapsed := nowMs - b.lastMs
	if elapsed > 0 {
		tokens += (elapsed * capacityScaled) / windowMs
		if tokens > capacityScaled {
			tokens = capacityScaled
		}
	}
	return tokens, nil
}

func (s *MemoryStore) GetSlidingCounters(ctx context.Context, currentKey, previousKey string) (int64, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readCounterLocked(currentKey), s.readCounterLocked(previousKey), nil
}

func (s *MemoryStore) Delete(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.counters, key)
		delete(s.buckets, key)
	}
	return nil
}

// runCleanup periodically removes expired counters and stale buckets.
func (s *MemoryStore) runCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := time.Now()
			s.mu.Lock()
			for key, e := range s.counters {
				if now.After(e.expiresAt) {
					delete(s.counters, key)
				}
			}
			for key, b := range s.buckets {
				if now.After(b.expiresAt) {
					delete(s.buckets, key)
				}
			}
			s.mu.Unlock()
		case <-ctx.Done():
			return
		}
	}
}
