// Package spanz provides a Jaeger-style span core for distributed tracing.
//
// spanz focuses on the single span: a mutable record of one unit of work
// that many goroutines may write concurrently and that is frozen and handed
// off to reporting exactly once.
//
// Core Components:.
//   - SpanContext: Immutable identity and baggage, replaced on every update.
//   - Span: Operation name, timing, tags and logs behind one mutex.
//   - Tracer: Span factory, report hand-off and debug throttling.
//   - Collector: Buffers finished span records for export.
//
// Basic Usage:.
//
//	cfg := spanz.DefaultConfig()
//	cfg.ServiceName = "checkout"
//
//	tracer, err := spanz.New(cfg)
//	if err != nil {
//		return err
//	}
//	defer tracer.Close()
//
//	ctx, span := tracer.StartSpan(ctx, "charge-card")
//	defer span.Finish()
//
//	span.SetTag("user.id", 123)
//	span.LogFields(log.String("event", "card-authorized"))
//
// Thread Safety:.
//
// Every Span method is safe for concurrent use. Tags, logs, the operation
// name and the finished flag are guarded by one mutex per span. The
// SpanContext is swapped atomically, so identity and flag reads never take
// the lock and never observe a half-built context.
//
// Sampling:.
//
// Unsampled spans drop tags and logs without allocating and are never
// reported. Setting the sampling.priority tag clears (0) or elevates
// (non-zero, rate limited per operation) the span's SAMPLED and DEBUG flags.
//
// Resource Cleanup:.
//
// Call tracer.Close() to stop background goroutines and close collectors.
package spanz

import (
	"github.com/opentracing/opentracing-go/ext"
)

// Flags is the bitmask carried in a SpanContext.
type Flags byte

const (
	// FlagSampled marks a span whose data is retained and reported.
	FlagSampled Flags = 1
	// FlagDebug forces retention regardless of normal sampling.
	FlagDebug Flags = 2
)

// Reserved tag keys.
var (
	SamplingPriorityKey = string(ext.SamplingPriority)
	SpanKindKey         = string(ext.SpanKind)
	ErrorKey            = string(ext.Error)
)

// RPC span kind markers recognized by IsRPC and IsRPCClient.
var (
	SpanKindRPCClient = string(ext.SpanKindRPCClientEnum)
	SpanKindRPCServer = string(ext.SpanKindRPCServerEnum)
)

// Key represents a span operation name.
type Key = string
