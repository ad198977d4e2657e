// Package store provides the two Store backends shipped alongside
// rlcore: RedisStore for distributed deployments and MemoryStore for
// single-process use and tests.
package store

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/jassus213/rlcore"
	"github.com/jassus213/rlcore/script"
	"github.com/redis/go-redis/v9"
)

// RedisStore implements rlcore.Store using Redis as the backend. It is
// suitable for distributed systems where multiple application instances
// need to share rate-limiting state. Every decision runs as a single
// pre-compiled Lua script to guarantee atomicity.
type RedisStore struct {
	client *redis.Client
}

var _ rlcore.Store = (*RedisStore)(nil)

// NewRedis wraps an existing *redis.Client. The client's connection pool,
// TLS, and retry settings are the caller's responsibility; RedisStore
// only issues commands against it.
func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// DialRedis is a convenience constructor for the common case: parse a
// redis:// URL, cap the pool, and verify connectivity with PING.
func DialRedis(ctx context.Context, url string, poolSize int) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, &rlcore.Error{Kind: rlcore.KindBackendUnavailable, Op: "DialRedis", Err: err}
	}
	if poolSize > 0 {
		opt.PoolSize = poolSize
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, &rlcore.Error{Kind: rlcore.KindBackendUnavailable, Op: "DialRedis", Err: err}
	}
	return client, nil
}

// Now reports Redis's own clock via the TIME command, so window
// boundaries and refill math never mix a caller's local clock with the
// store's.
func (s *RedisStore) Now(ctx context.Context) (int64, int64, error) {
	res, err := s.client.Time(ctx).Result()
	if err != nil {
		return 0, 0, wrapConnErr("Now", err)
	}
	return res.Unix(), int64(res.Nanosecond()), nil
}

// ExecFixedWindow runs script.FixedWindowScript.
func (s *RedisStore) ExecFixedWindow(ctx context.Context, key string, limitScaled, windowSeconds, windowEndEpoch, costScaled int64) (rlcore.ScriptResult, error) {
	res, err := runScript(ctx, s.client, script.FixedWindowScript, []string{key},
		limitScaled, windowSeconds, windowEndEpoch, costScaled)
	if err != nil {
		return rlcore.ScriptResult{}, err
	}
	return parseScriptResult("ExecFixedWindow", res)
}

// ExecTokenBucket runs script.TokenBucketScript.
func (s *RedisStore) ExecTokenBucket(ctx context.Context, key string, capacityScaled, windowSeconds, nowMs, costScaled int64) (rlcore.ScriptResult, error) {
	res, err := runScript(ctx, s.client, script.TokenBucketScript, []string{key},
		capacityScaled, windowSeconds, nowMs, costScaled)
	if err != nil {
		return rlcore.ScriptResult{}, err
	}
	return parseScriptResult("ExecTokenBucket", res)
}

// ExecSlidingWindow runs script.SlidingWindowScript.
func (s *RedisStore) ExecSlidingWindow(ctx context.Context, currentKey, previousKey string, limitScaled, windowSeconds, nowEpoch, costScaled int64) (rlcore.ScriptResult, error) {
	res, err := runScript(ctx, s.client, script.SlidingWindowScript, []string{currentKey, previousKey},
		limitScaled, windowSeconds, nowEpoch, costScaled)
	if err != nil {
		return rlcore.ScriptResult{}, err
	}
	return parseScriptResult("ExecSlidingWindow", res)
}

// GetCounter reads the fixed-window counter without mutating it.
func (s *RedisStore) GetCounter(ctx context.Context, key string) (int64, error) {
	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, wrapConnErr("GetCounter", err)
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, &rlcore.Error{Kind: rlcore.KindScriptFailure, Op: "GetCounter", Err: err}
	}
	return n, nil
}

// PeekBucket virtually refills the bucket without persisting the result.
func (s *RedisStore) PeekBucket(ctx context.Context, key string, capacityScaled, windowSeconds, nowMs int64) (int64, error) {
	vals, err := s.client.HMGet(ctx, key, "tokens", "last_ms").Result()
	if err != nil {
		return 0, wrapConnErr("PeekBucket", err)
	}
	if vals[0] == nil {
		return capacityScaled, nil
	}
	tokensStr, _ := vals[0].(string)
	lastMsStr, _ := vals[1].(string)
	tokens, err := strconv.ParseInt(tokensStr, 10, 64)
	if err != nil {
		return 0, &rlcore.Error{Kind: rlcore.KindScriptFailure, Op: "PeekBucket", Err: err}
	}
	lastMs, err := strconv.ParseInt(lastMsStr, 10, 64)
	if err != nil {
		return 0, &rlcore.Error{Kind: rlcore.KindScriptFailure, Op: "PeekBucket", Err: err}
	}

	windowMs := windowSeconds * 1000
	elapsed := nowMs - lastMs
	if elapsed > 0 {
		tokens += (elapsed * capacityScaled) / windowMs
		if tokens > capacityScaled {
			tokens = capacityScaled
		}
	}
	return tokens, nil
}

// GetSlidingCounters reads both counters without mutating them.
func (s *RedisStore) GetSlidingCounters(ctx context.Context, currentKey, previousKey string) (int64, int64, error) {
	vals, err := s.client.MGet(ctx, currentKey, previousKey).Result()
	if err != nil {
		return 0, 0, wrapConnErr("GetSlidingCounters", err)
	}
	cur, err := parseMGetInt(vals, 0)
	if err != nil {
		return 0, 0, &rlcore.Error{Kind: rlcore.KindScriptFailure, Op: "GetSlidingCounters", Err: err}
	}
	prev, err := parseMGetInt(vals, 1)
	if err != nil {
		return 0, 0, &rlcore.Error{Kind: rlcore.KindScriptFailure, Op: "GetSlidingCounters", Err: err}
	}
	return cur, prev, nil
}

func parseMGetInt(vals []interface{}, i int) (int64, error) {
	if vals[i] == nil {
		return 0, nil
	}
	s, ok := vals[i].(string)
	if !ok {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}

// Delete removes the given keys. Deleting a key that does not exist is a
// no-op, not an error.
func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return wrapConnErr("Delete", err)
	}
	return nil
}

// runScript executes sc with EVALSHA via redis.Script.Run, which already
// falls back to EVAL on a cache miss; we additionally detect NOSCRIPT
// surfaced after a FLUSHSCRIPT or a failover to an unwarmed replica and
// retry once.
func runScript(ctx context.Context, client *redis.Client, sc *redis.Script, keys []string, args ...interface{}) (interface{}, error) {
	res, err := sc.Run(ctx, client, keys, args...).Result()
	if err != nil && isNoScript(err) {
		res, err = sc.Run(ctx, client, keys, args...).Result()
		if err != nil {
			return nil, &rlcore.Error{Kind: rlcore.KindScriptFailure, Op: "runScript", Err: err}
		}
	}
	if err != nil {
		return nil, wrapConnErr("runScript", err)
	}
	return res, nil
}

func isNoScript(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "NOSCRIPT")
}

func parseScriptResult(op string, res interface{}) (rlcore.ScriptResult, error) {
	arr, ok := res.([]interface{})
	if !ok || len(arr) < 3 {
		return rlcore.ScriptResult{}, &rlcore.Error{Kind: rlcore.KindScriptFailure, Op: op, Err: errors.New("malformed script response")}
	}
	allowed, ok1 := arr[0].(int64)
	remaining, ok2 := arr[1].(int64)
	retryAfterMs, ok3 := arr[2].(int64)
	if !ok1 || !ok2 || !ok3 {
		return rlcore.ScriptResult{}, &rlcore.Error{Kind: rlcore.KindScriptFailure, Op: op, Err: errors.New("malformed script response types")}
	}
	return rlcore.ScriptResult{
		Allowed:         allowed == 1,
		RemainingScaled: remaining,
		RetryAfterMs:    retryAfterMs,
	}, nil
}

func wrapConnErr(op string, err error) error {
	return &rlcore.Error{Kind: rlcore.KindBackendUnavailable, Op: op, Err: err}
}
