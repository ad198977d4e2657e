package rlcore

import "context"

// ScriptResult is the three-tuple every algorithm kernel returns: whether
// the request was admitted, the remaining headroom in scaled units, and
// how long (in milliseconds) until the caller should retry on denial.
type ScriptResult struct {
	Allowed         bool
	RemainingScaled int64
	RetryAfterMs    int64
}

// Store is the atomic key-value backend the core executes its three
// algorithm scripts against. Implementations must guarantee that each
// Exec* method is a single atomic operation from the perspective of
// concurrent callers, and that any key it creates or mutates carries an
// expiration set within that same atomic operation.
//
// store.RedisStore and store.MemoryStore are the two implementations
// shipped alongside rlcore; callers may supply their own as long as it
// honors the atomicity contract.
type Store interface {
	// Now returns the store's own clock, so window boundaries and token
	// refill math never mix clock sources across callers with skewed
	// local clocks.
	Now(ctx context.Context) (seconds int64, nanos int64, err error)

	// ExecFixedWindow runs the fixed-window kernel (§4.4) against key.
	// limitScaled and costScaled are already multiplied by Scale.
	ExecFixedWindow(ctx context.Context, key string, limitScaled, windowSeconds, windowEndEpoch, costScaled int64) (ScriptResult, error)

	// ExecTokenBucket runs the token-bucket kernel (§4.5) against key.
	// Refill is derived from capacityScaled and windowSeconds directly
	// (capacityScaled tokens accrue over windowSeconds of elapsed time),
	// never through a lossy intermediate per-second rate — a low rate
	// such as 1/hour must still refill fractionally on every call rather
	// than flooring to zero. nowMs is the store's own clock in
	// milliseconds.
	ExecTokenBucket(ctx context.Context, key string, capacityScaled, windowSeconds, nowMs, costScaled int64) (ScriptResult, error)

	// ExecSlidingWindow runs the sliding-window kernel (§4.6) against the
	// current and previous window keys.
	ExecSlidingWindow(ctx context.Context, currentKey, previousKey string, limitScaled, windowSeconds, nowEpoch, costScaled int64) (ScriptResult, error)

	// GetCounter reads the fixed-window counter at key without mutating
	// it. Returns 0 for a missing key.
	GetCounter(ctx context.Context, key string) (int64, error)

	// PeekBucket virtually refills the token bucket at key as of nowMs
	// without persisting the result, returning the scaled token count
	// that would be visible to the next Exec call. Refill uses the same
	// capacityScaled/windowSeconds-derived rate as ExecTokenBucket.
	PeekBucket(ctx context.Context, key string, capacityScaled, windowSeconds, nowMs int64) (tokensScaled int64, err error)

	// GetSlidingCounters reads both sliding-window counters without
	// mutating them. Returns 0 for either missing key.
	GetSlidingCounters(ctx context.Context, currentKey, previousKey string) (current, previous int64, err error)

	// Delete removes the given keys. Deleting a key that does not exist
	// is a no-op, not an error.
	Delete(ctx context.Context, keys ...string) error
}
