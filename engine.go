package rlcore

import (
	"context"
	"time"
)

// Engine is the decision-engine facade: algorithm selection, fixed-point
// scaling, and CheckResult assembly over a Store. It holds no state of
// its own beyond configuration. Each decision makes two store calls:
// Store.Now to read the store's clock, then one atomic Exec* kernel run.
type Engine struct {
	store Store
	cfg   *Config
}

// NewEngine binds an Engine to a Store. The Store is not owned by the
// Engine; closing/teardown of any underlying connection pool is the
// caller's responsibility.
func NewEngine(store Store, opts ...EngineOption) *Engine {
	return &Engine{
		store: store,
		cfg:   NewConfig(opts...),
	}
}

func (e *Engine) resolve(opts []CheckOption) checkParams {
	p := checkParams{
		algorithm: e.cfg.DefaultAlgorithm,
		cost:      1,
	}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

// Check parses rateStr, derives the key(s) for id under the selected
// algorithm, and executes a single atomic decision. On denial it returns
// the CheckResult alongside a *LimitExceededError — use errors.Is(err,
// ErrLimitExceeded) to distinguish it from a fault.
func (e *Engine) Check(ctx context.Context, id, rateStr string, opts ...CheckOption) (CheckResult, error) {
	result, err := e.decide(ctx, id, rateStr, opts)
	if err != nil {
		return result, err
	}
	if !result.Allowed {
		return result, &LimitExceededError{
			Limit:        result.Limit,
			Remaining:    result.Remaining,
			RetryAfterMs: result.RetryAfterMs,
		}
	}
	return result, nil
}

// CheckInfo behaves like Check but never treats denial as an error: the
// caller inspects CheckResult.Allowed directly. Only infrastructural
// faults (BackendUnavailable, ScriptFailure) and programmer errors
// (MalformedRate, UnknownAlgorithm, InvalidCost) are returned as errors.
func (e *Engine) CheckInfo(ctx context.Context, id, rateStr string, opts ...CheckOption) (CheckResult, error) {
	return e.decide(ctx, id, rateStr, opts)
}

func (e *Engine) decide(ctx context.Context, id, rateStr string, opts []CheckOption) (CheckResult, error) {
	params := e.resolve(opts)

	if !params.algorithm.valid() {
		return CheckResult{}, &Error{Kind: KindUnknownAlgorithm, Op: "Check"}
	}
	if params.cost <= 0 || params.cost > 1_000_000 {
		return CheckResult{}, &Error{Kind: KindInvalidCost, Op: "Check"}
	}
	rate, err := ParseRate(rateStr)
	if err != nil {
		return CheckResult{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()

	start := time.Now()
	var result CheckResult
	switch params.algorithm {
	case FixedWindow:
		result, err = e.checkFixedWindow(ctx, id, params.tenant, rate, params.cost)
	case TokenBucket:
		result, err = e.checkTokenBucket(ctx, id, params.tenant, rate, params.cost)
	case SlidingWindow:
		result, err = e.checkSlidingWindow(ctx, id, params.tenant, rate, params.cost)
	}
	if err != nil {
		e.cfg.Logger.Errorf("rlcore: check failed for id=%q algorithm=%s: %v", id, params.algorithm, err)
		return CheckResult{}, err
	}

	if e.cfg.MetricsEnabled {
		e.cfg.Metrics.ObserveCheck(params.algorithm, result.Allowed, time.Since(start))
	}
	if !result.Allowed {
		e.cfg.Logger.Debugf("rlcore: denied id=%q algorithm=%s remaining=%d retry_after_ms=%d",
			id, params.algorithm, result.Remaining, result.RetryAfterMs)
	}
	return result, nil
}

func (e *Engine) checkFixedWindow(ctx context.Context, id, tenant string, rate Rate, cost int64) (CheckResult, error) {
	sec, _, err := e.store.Now(ctx)
	if err != nil {
		return CheckResult{}, err
	}

	wStart := windowStart(sec, rate.Window)
	wEnd := wStart + rate.Window
	key := fixedWindowKey(e.cfg.KeyPrefix, id, tenant, wStart)

	res, err := e.store.ExecFixedWindow(ctx, key, rate.Limit*Scale, rate.Window, wEnd, cost*Scale)
	if err != nil {
		return CheckResult{}, err
	}

	return CheckResult{
		Allowed:      res.Allowed,
		Limit:        rate.Limit,
		Remaining:    res.RemainingScaled / Scale,
		RetryAfterMs: res.RetryAfterMs,
		ResetEpoch:   wEnd,
	}, nil
}

func (e *Engine) checkTokenBucket(ctx context.Context, id, tenant string, rate Rate, cost int64) (CheckResult, error) {
	sec, nanos, err := e.store.Now(ctx)
	if err != nil {
		return CheckResult{}, err
	}

	nowMs := sec*1000 + nanos/1_000_000
	key := tokenBucketKey(e.cfg.KeyPrefix, id, tenant)

	res, err := e.store.ExecTokenBucket(ctx, key, rate.Limit*Scale, rate.Window, nowMs, cost*Scale)
	if err != nil {
		return CheckResult{}, err
	}

	return CheckResult{
		Allowed:      res.Allowed,
		Limit:        rate.Limit,
		Remaining:    res.RemainingScaled / Scale,
		RetryAfterMs: res.RetryAfterMs,
		ResetEpoch:   sec + res.RetryAfterMs/1000,
	}, nil
}

func (e *Engine) checkSlidingWindow(ctx context.Context, id, tenant string, rate Rate, cost int64) (CheckResult, error) {
	sec, _, err := e.store.Now(ctx)
	if err != nil {
		return CheckResult{}, err
	}

	wStart := windowStart(sec, rate.Window)
	wEnd := wStart + rate.Window
	curKey, prevKey := slidingWindowKeys(e.cfg.KeyPrefix, id, tenant, wStart, rate.Window)

	res, err := e.store.ExecSlidingWindow(ctx, curKey, prevKey, rate.Limit*Scale, rate.Window, sec, cost*Scale)
	if err != nil {
		return CheckResult{}, err
	}

	return CheckResult{
		Allowed:      res.Allowed,
		Limit:        rate.Limit,
		Remaining:    res.RemainingScaled / Scale,
		RetryAfterMs: res.RetryAfterMs,
		ResetEpoch:   wEnd,
	}, nil
}

// GetUsage returns a read-only snapshot of the algorithm's state for id.
// It never mutates store state: token-bucket refill is computed
// virtually, and sliding-window's weighted count is computed from the two
// counters without incrementing either.
func (e *Engine) GetUsage(ctx context.Context, id, rateStr string, opts ...CheckOption) (Usage, error) {
	params := e.resolve(opts)
	if !params.algorithm.valid() {
		return Usage{}, &Error{Kind: KindUnknownAlgorithm, Op: "GetUsage"}
	}
	rate, err := ParseRate(rateStr)
	if err != nil {
		return Usage{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()

	sec, nanos, err := e.store.Now(ctx)
	if err != nil {
		return Usage{}, err
	}

	switch params.algorithm {
	case FixedWindow:
		wStart := windowStart(sec, rate.Window)
		key := fixedWindowKey(e.cfg.KeyPrefix, id, params.tenant, wStart)
		usedScaled, err := e.store.GetCounter(ctx, key)
		if err != nil {
			return Usage{}, err
		}
		return usageFromScaled(rate.Limit, usedScaled), nil

	case TokenBucket:
		key := tokenBucketKey(e.cfg.KeyPrefix, id, params.tenant)
		nowMs := sec*1000 + nanos/1_000_000
		tokensScaled, err := e.store.PeekBucket(ctx, key, rate.Limit*Scale, rate.Window, nowMs)
		if err != nil {
			return Usage{}, err
		}
		usedScaled := rate.Limit*Scale - tokensScaled
		if usedScaled < 0 {
			usedScaled = 0
		}
		return usageFromScaled(rate.Limit, usedScaled), nil

	case SlidingWindow:
		wStart := windowStart(sec, rate.Window)
		curKey, prevKey := slidingWindowKeys(e.cfg.KeyPrefix, id, params.tenant, wStart, rate.Window)
		cur, prev, err := e.store.GetSlidingCounters(ctx, curKey, prevKey)
		if err != nil {
			return Usage{}, err
		}
		elapsed := sec - wStart
		remainingInWindow := rate.Window - elapsed
		prevWeightFp := (remainingInWindow * 1000) / rate.Window
		weightedPrev := (prev * prevWeightFp) / 1000
		weighted := cur + weightedPrev
		return usageFromScaled(rate.Limit, weighted), nil
	}

	return Usage{}, &Error{Kind: KindUnknownAlgorithm, Op: "GetUsage"}
}

func usageFromScaled(limit, usedScaled int64) Usage {
	used := usedScaled / Scale
	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}
	return Usage{Limit: limit, Used: used, Remaining: remaining}
}

// Reset deletes the algorithm's key(s) for id. Resetting an id with no
// existing state is a no-op, not an error.
func (e *Engine) Reset(ctx context.Context, id, rateStr string, opts ...CheckOption) error {
	params := e.resolve(opts)
	if !params.algorithm.valid() {
		return &Error{Kind: KindUnknownAlgorithm, Op: "Reset"}
	}
	rate, err := ParseRate(rateStr)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()

	sec, _, err := e.store.Now(ctx)
	if err != nil {
		return err
	}

	switch params.algorithm {
	case FixedWindow:
		wStart := windowStart(sec, rate.Window)
		key := fixedWindowKey(e.cfg.KeyPrefix, id, params.tenant, wStart)
		return e.store.Delete(ctx, key)

	case TokenBucket:
		key := tokenBucketKey(e.cfg.KeyPrefix, id, params.tenant)
		return e.store.Delete(ctx, key)

	case SlidingWindow:
		wStart := windowStart(sec, rate.Window)
		curKey, prevKey := slidingWindowKeys(e.cfg.KeyPrefix, id, params.tenant, wStart, rate.Window)
		return e.store.Delete(ctx, curKey, prevKey)
	}

	return &Error{Kind: KindUnknownAlgorithm, Op: "Reset"}
}
