// Package observe records tool invocation signals into OpenTelemetry.
package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ScopeName is the instrumentation scope used by NewGlobal.
const ScopeName = "github.com/germanamz/toolplex"

// Observer records invocations, denials and latency. A nil *Observer is a
// valid no-op.
type Observer struct {
	tracer trace.Tracer

	invocations metric.Int64Counter
	denials     metric.Int64Counter
	latency     metric.Float64Histogram
}

// New creates an observer bound to the provided meter and tracer. A nil
// tracer disables spans.
func New(meter metric.Meter, tracer trace.Tracer) (*Observer, error) {
	invocations, err := meter.Int64Counter(
		"toolplex.tool.invocations",
		metric.WithDescription("Number of tool invocations"),
	)
	if err != nil {
		return nil, err
	}
	denials, err := meter.Int64Counter(
		"toolplex.tool.denials",
		metric.WithDescription("Number of tool calls denied at confirmation"),
	)
	if err != nil {
		return nil, err
	}
	latency, err := meter.Float64Histogram(
		"toolplex.tool.latency",
		metric.WithDescription("Tool latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &Observer{
		tracer:      tracer,
		invocations: invocations,
		denials:     denials,
		latency:     latency,
	}, nil
}

// NewGlobal creates an observer on the global meter and tracer providers.
func NewGlobal() (*Observer, error) {
	return New(otel.Meter(ScopeName), otel.Tracer(ScopeName))
}

// Invocation is one in-flight call started by Start.
type Invocation struct {
	o       *Observer
	span    trace.Span
	attrs   []attribute.KeyValue
	started time.Time
}

// Start begins observing a call. The returned context carries the span.
func (o *Observer) Start(ctx context.Context, toolbox, tool string) (context.Context, *Invocation) {
	if o == nil {
		return ctx, nil
	}

	inv := &Invocation{
		o: o,
		attrs: []attribute.KeyValue{
			attribute.String("toolbox", toolbox),
			attribute.String("tool_name", tool),
		},
		started: time.Now(),
	}
	if o.tracer != nil {
		ctx, inv.span = o.tracer.Start(ctx, "tool.invoke", trace.WithAttributes(inv.attrs...))
	}

	return ctx, inv
}

// End records the outcome. success is false for transport errors and for
// results the backend flagged as errors.
func (inv *Invocation) End(ctx context.Context, success bool, err error) {
	if inv == nil {
		return
	}

	attrs := append(inv.attrs, attribute.Bool("success", success))
	options := metric.WithAttributes(attrs...)
	inv.o.invocations.Add(ctx, 1, options)
	inv.o.latency.Record(ctx, time.Since(inv.started).Seconds(), options)

	if inv.span == nil {
		return
	}
	inv.span.SetAttributes(attribute.Bool("success", success))
	switch {
	case err != nil:
		inv.span.RecordError(err)
		inv.span.SetStatus(codes.Error, err.Error())
	case !success:
		inv.span.SetStatus(codes.Error, "tool reported an error")
	default:
		inv.span.SetStatus(codes.Ok, "")
	}
	inv.span.End()
}

// Decision records a confirmation decision; only denials are counted.
func (o *Observer) Decision(ctx context.Context, toolbox, tool string, approved bool) {
	if o == nil || approved {
		return
	}

	o.denials.Add(ctx, 1, metric.WithAttributes(
		attribute.String("toolbox", toolbox),
		attribute.String("tool_name", tool),
	))
}
