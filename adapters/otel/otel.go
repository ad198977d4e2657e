// Package otel decorates an rlcore.Store with OpenTelemetry tracing:
// every Exec* call opens a child span so a check's store round trip is
// visible in a distributed trace alongside the caller's own spans.
package otel

import (
	"context"

	"github.com/jassus213/rlcore"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracingStore wraps an rlcore.Store, starting one span per Exec* call
// via the given tracer. GetCounter, PeekBucket, GetSlidingCounters, and
// Delete — the cheap reads and deletes behind GetUsage/Reset — are not
// traced, and neither is Now, although every check calls it before its
// kernel. Only the three Exec* kernels, the ones §4.3's latency budget
// applies to, get spans.
type TracingStore struct {
	rlcore.Store
	tracer trace.Tracer
}

// NewTracingStore wraps store, using tracer to start spans named
// "rlcore.<method>".
func NewTracingStore(store rlcore.Store, tracer trace.Tracer) *TracingStore {
	return &TracingStore{Store: store, tracer: tracer}
}

func (t *TracingStore) ExecFixedWindow(ctx context.Context, key string, limitScaled, windowSeconds, windowEndEpoch, costScaled int64) (rlcore.ScriptResult, error) {
	ctx, span := t.tracer.Start(ctx, "rlcore.ExecFixedWindow", trace.WithAttributes(
		attribute.String("rlcore.key", key),
	))
	defer span.End()

	res, err := t.Store.ExecFixedWindow(ctx, key, limitScaled, windowSeconds, windowEndEpoch, costScaled)
	finishSpan(span, res, err)
	return res, err
}

func (t *TracingStore) ExecTokenBucket(ctx context.Context, key string, capacityScaled, windowSeconds, nowMs, costScaled int64) (rlcore.ScriptResult, error) {
	ctx, span := t.tracer.Start(ctx, "rlcore.ExecTokenBucket", trace.WithAttributes(
		attribute.String("rlcore.key", key),
	))
	defer span.End()

	res, err := t.Store.ExecTokenBucket(ctx, key, capacityScaled, windowSeconds, nowMs, costScaled)
	finishSpan(span, res, err)
	return res, err
}

func (t *TracingStore) ExecSlidingWindow(ctx context.Context, currentKey, previousKey string, limitScaled, windowSeconds, nowEpoch, costScaled int64) (rlcore.ScriptResult, error) {
	ctx, span := t.tracer.Start(ctx, "rlcore.ExecSlidingWindow", trace.WithAttributes(
		attribute.String("rlcore.current_key", currentKey),
		attribute.String("rlcore.previous_key", previousKey),
	))
	defer span.End()

	res, err := t.Store.ExecSlidingWindow(ctx, currentKey, previousKey, limitScaled, windowSeconds, nowEpoch, costScaled)
	finishSpan(span, res, err)
	return res, err
}

func finishSpan(span trace.Span, res rlcore.ScriptResult, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		return
	}
	span.SetAttributes(attribute.Bool("rlcore.allowed", res.Allowed))
}

var _ rlcore.Store = (*TracingStore)(nil)
