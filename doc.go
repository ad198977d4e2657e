// Package rlcore is the decision engine behind a distributed rate limiter.
//
// It implements three rate-limiting algorithms — fixed window, token
// bucket, and sliding window — as atomic server-side scripts executed
// against a shared Store, along with the fixed-point arithmetic, key
// derivation, and error taxonomy that make the decisions reproducible
// across runtime versions and safe under concurrency.
//
// rlcore does not talk to a particular backend by itself. A Store
// implementation (see the store subpackage for a Redis-backed and an
// in-process one) supplies the atomic primitives; rlcore wires them
// together behind an Engine.
//
// HTTP framework bindings, metrics export, and logging backends are
// deliberately kept out of this package — see the middleware, metrics,
// and adapters subpackages, each of which consumes rlcore only through
// its exported interfaces.
package rlcore

// Scale is the fixed-point multiplier applied to every externally
// meaningful count (limits, costs, token levels) before it crosses into
// a script. Scripts never see a floating-point value; all division
// inside a script happens last, on pre-scaled integers.
const Scale int64 = 1000
