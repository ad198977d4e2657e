package rlcore

import (
	"errors"
	"fmt"
)

// Kind tags the category of a core Error so callers can branch on fault vs.
// expected-deny without string matching.
type Kind int

const (
	// KindMalformedRate means the rate string did not parse (§4.1).
	KindMalformedRate Kind = iota
	// KindUnknownAlgorithm means the algorithm tag was outside the fixed set.
	KindUnknownAlgorithm
	// KindInvalidCost means cost was <= 0 or > 1,000,000.
	KindInvalidCost
	// KindBackendUnavailable means the store was unreachable, timed out, or
	// returned a protocol-level error.
	KindBackendUnavailable
	// KindScriptFailure means a script executed but returned an unexpected
	// shape, or the store reported failure after the one allowed reload retry.
	KindScriptFailure
)

func (k Kind) String() string {
	switch k {
	case KindMalformedRate:
		return "malformed_rate"
	case KindUnknownAlgorithm:
		return "unknown_algorithm"
	case KindInvalidCost:
		return "invalid_cost"
	case KindBackendUnavailable:
		return "backend_unavailable"
	case KindScriptFailure:
		return "script_failure"
	default:
		return "unknown"
	}
}

// Error is the core's fault type. MalformedRate, UnknownAlgorithm, and
// InvalidCost are programmer errors surfaced without contacting the store;
// BackendUnavailable and ScriptFailure are infrastructural. LimitExceeded is
// NOT represented by Error — it is expected, not a fault, and is carried by
// LimitExceededError instead (see errors.Is / errors.As usage below).
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("rlcore: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("rlcore: %s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets callers write errors.Is(err, rlcore.ErrMalformedRate) and the
// like without caring about Op or the wrapped cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinel values for errors.Is. Each carries only a Kind; match on Kind,
// not identity, via Error.Is above.
var (
	ErrMalformedRate      = &Error{Kind: KindMalformedRate}
	ErrUnknownAlgorithm   = &Error{Kind: KindUnknownAlgorithm}
	ErrInvalidCost        = &Error{Kind: KindInvalidCost}
	ErrBackendUnavailable = &Error{Kind: KindBackendUnavailable}
	ErrScriptFailure      = &Error{Kind: KindScriptFailure}
)

// ErrLimitExceeded is the sentinel matched by LimitExceededError.Is. It is
// expected, not a fault: callers map it to a 429-equivalent response.
var ErrLimitExceeded = errors.New("rlcore: limit exceeded")

// LimitExceededError is returned by Engine.Check (not Engine.CheckInfo) on
// denial. It carries everything a caller needs to build a Retry-After
// response without a second round trip.
type LimitExceededError struct {
	Limit        int64
	Remaining    int64
	RetryAfterMs int64
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("rlcore: limit exceeded: limit=%d remaining=%d retry_after_ms=%d",
		e.Limit, e.Remaining, e.RetryAfterMs)
}

// Is allows errors.Is(err, rlcore.ErrLimitExceeded).
func (e *LimitExceededError) Is(target error) bool {
	return target == ErrLimitExceeded
}
