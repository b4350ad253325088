package spanz

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opentracing/opentracing-go/log"
	"github.com/zoobzio/clockz"
	"go.uber.org/zap"
)

// bundleKeyType is a private type for context keys to avoid collisions.
type bundleKeyType string

const (
	bundleKey bundleKeyType = "spanz"
)

// Limits caps encoded tag and log values.
type Limits struct {
	MaxTagValueLength  int
	MaxLogFieldLength  int
	MaxTracebackLength int
}

// SpanTracer is what a span needs from the tracer that created it.
//
//go:generate mockgen -source=span.go -destination=mock_tracer.go -package=spanz
type SpanTracer interface {
	// ReportSpan receives a finished span exactly once. It must not block.
	ReportSpan(span *Span)
	// IsDebugAllowed rate limits sampling priority elevation per operation.
	IsDebugAllowed(operation string) bool
	ServiceName() string
	Limits() Limits
}

// noopTracer backs spans created without a tracer: nothing is reported
// and debug elevation is always allowed.
type noopTracer struct{}

func (noopTracer) ReportSpan(*Span)           {}
func (noopTracer) IsDebugAllowed(string) bool { return true }
func (noopTracer) ServiceName() string        { return "" }
func (noopTracer) Limits() Limits             { return Limits{} }

// Span is a timed record of one traced operation.
// Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Lock-guarded fields are grouped after mu
type Span struct {
	tracer     SpanTracer
	encoder    Encoder
	clock      clockz.Clock
	logger     *zap.Logger
	metrics    *Metrics
	ctx        atomic.Pointer[SpanContext]
	references []Reference
	startTime  time.Time

	mu            sync.Mutex // Protects the fields below.
	operationName string
	endTime       time.Time
	tags          []Tag
	logs          []Log
	finished      bool
}

// NewSpan creates an active span around ctx. Seed tags from opts are
// applied through SetTag, so they obey sampling and priority rules.
func NewSpan(ctx SpanContext, tracer SpanTracer, operation string, opts ...SpanOption) *Span {
	o := newSpanOptions(opts)
	if tracer == nil {
		tracer = noopTracer{}
	}

	s := &Span{
		tracer:        tracer,
		encoder:       o.encoder,
		clock:         o.clock,
		logger:        o.logger,
		metrics:       o.metrics,
		references:    o.references,
		startTime:     o.startTime,
		operationName: operation,
	}
	if s.startTime.IsZero() {
		s.startTime = s.clock.Now()
	}
	s.ctx.Store(&ctx)

	for _, t := range o.tags {
		s.SetTag(t.Key, t.Value)
	}
	return s
}

// Context returns the current context snapshot. No lock is taken.
func (s *Span) Context() SpanContext {
	return *s.ctx.Load()
}

// swapContext replaces the context. Caller must hold s.mu.
func (s *Span) swapContext(next SpanContext) {
	s.ctx.Store(&next)
}

// Tracer returns the tracer that owns the span.
func (s *Span) Tracer() SpanTracer {
	return s.tracer
}

// SetOperationName replaces the operation name.
func (s *Span) SetOperationName(name string) *Span {
	s.mu.Lock()
	s.operationName = name
	s.mu.Unlock()
	return s
}

// OperationName returns the current operation name.
func (s *Span) OperationName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.operationName
}

// Finish ends the span now and hands it to the tracer for reporting.
func (s *Span) Finish() {
	s.FinishAt(time.Time{})
}

// FinishAt ends the span at finishTime, or now when finishTime is zero.
//
// Unsampled spans are never reported. A second call is a no-op that logs
// a warning.
func (s *Span) FinishAt(finishTime time.Time) {
	if !s.IsSampled() {
		return
	}

	s.mu.Lock()
	if s.finished {
		operation := s.operationName
		s.mu.Unlock()

		ctx := s.Context()
		s.logger.Warn("span has already been finished; will not be reported again",
			zap.Stringer("trace_id", ctx.TraceID()),
			zap.Stringer("span_id", ctx.SpanID()),
			zap.String("operation", operation),
		)
		s.metrics.doubleFinish()
		return
	}
	s.finished = true
	if finishTime.IsZero() {
		finishTime = s.clock.Now()
	}
	s.endTime = finishTime
	s.mu.Unlock()

	s.metrics.spanFinished()
	s.tracer.ReportSpan(s)
}

// SetTag adds a typed tag. Tags on unsampled spans are dropped.
//
// The sampling.priority key is never stored: it clears or elevates the
// span's sampling flags instead.
func (s *Span) SetTag(key string, value interface{}) *Span {
	if key == SamplingPriorityKey {
		s.mu.Lock()
		s.setSamplingPriority(value)
		s.mu.Unlock()
		return s
	}

	if !s.IsSampled() {
		return s
	}

	limits := s.tracer.Limits()
	tag := s.encoder.MakeTag(key, value, limits.MaxTagValueLength, limits.MaxTracebackLength)

	s.mu.Lock()
	s.tags = append(s.tags, tag)
	s.mu.Unlock()
	return s
}

// LogFields records fields as one log event stamped now.
func (s *Span) LogFields(fields ...log.Field) *Span {
	return s.LogFieldsAt(time.Time{}, fields...)
}

// LogFieldsAt records fields as one log event at timestamp, or now when
// timestamp is zero. No-op on unsampled spans.
func (s *Span) LogFieldsAt(timestamp time.Time, fields ...log.Field) *Span {
	if !s.IsSampled() {
		return s
	}
	if timestamp.IsZero() {
		timestamp = s.clock.Now()
	}

	limits := s.tracer.Limits()
	record := s.encoder.MakeLog(timestamp, fields, limits.MaxLogFieldLength, limits.MaxTracebackLength)

	s.mu.Lock()
	s.logs = append(s.logs, record)
	s.mu.Unlock()
	return s
}

// LogKV records alternating key/value pairs as one log event.
func (s *Span) LogKV(alternatingKeyValues ...interface{}) *Span {
	if !s.IsSampled() {
		return s
	}
	fields, err := log.InterleavedKVToFields(alternatingKeyValues...)
	if err != nil {
		return s.LogFields(log.Error(err), log.String("function", "LogKV"))
	}
	return s.LogFields(fields...)
}

// SetBaggageItem sets a baggage item on a new context and swaps it in.
// Sampled spans also get a log event recording the change.
func (s *Span) SetBaggageItem(key, value string) *Span {
	_, override := s.BaggageItem(key)

	// Derive from the context current under the lock so a concurrent
	// flag change is not lost.
	s.mu.Lock()
	next := s.Context().WithBaggageItem(key, value)
	s.swapContext(next)
	s.mu.Unlock()

	s.metrics.baggageUpdated(override)

	if next.IsSampled() {
		fields := []log.Field{
			log.String("event", "baggage"),
			log.String("key", key),
			log.String("value", value),
		}
		if override {
			fields = append(fields, log.String("override", "true"))
		}
		s.LogFields(fields...)
	}
	return s
}

// BaggageItem returns the baggage value for key from the current context.
func (s *Span) BaggageItem(key string) (string, bool) {
	return s.Context().BaggageItem(key)
}

// IsSampled reports whether the span's data is retained.
func (s *Span) IsSampled() bool {
	return s.Context().IsSampled()
}

// IsDebug reports whether the span was forced into debug mode.
func (s *Span) IsDebug() bool {
	return s.Context().IsDebug()
}

// IsRPC reports whether the span.kind tag marks an RPC client or server.
func (s *Span) IsRPC() bool {
	kind, ok := s.spanKind()
	return ok && (kind == SpanKindRPCClient || kind == SpanKindRPCServer)
}

// IsRPCClient reports whether the span.kind tag marks an RPC client.
func (s *Span) IsRPCClient() bool {
	kind, ok := s.spanKind()
	return ok && kind == SpanKindRPCClient
}

// spanKind returns the first span.kind tag value.
func (s *Span) spanKind() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.tags {
		if s.tags[i].Key == SpanKindKey {
			return s.tags[i].VStr, true
		}
	}
	return "", false
}

// TraceID returns the trace id of the current context.
func (s *Span) TraceID() TraceID { return s.Context().TraceID() }

// SpanID returns the span id of the current context.
func (s *Span) SpanID() SpanID { return s.Context().SpanID() }

// ParentID returns the parent span id, zero for a root span.
func (s *Span) ParentID() SpanID { return s.Context().ParentID() }

// Flags returns the current sampling flags.
func (s *Span) Flags() Flags { return s.Context().Flags() }

// References returns the references the span was created with.
func (s *Span) References() []Reference {
	if len(s.references) == 0 {
		return nil
	}
	out := make([]Reference, len(s.references))
	copy(out, s.references)
	return out
}

// StartTime returns when the span started.
func (s *Span) StartTime() time.Time {
	return s.startTime
}

// EndTime returns when the span finished. ok is false while active.
func (s *Span) EndTime() (end time.Time, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endTime, s.finished
}

// IsFinished reports whether Finish has taken effect.
func (s *Span) IsFinished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished
}

// Tags returns a copy of the recorded tags in insertion order.
func (s *Span) Tags() []Tag {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneTags(s.tags)
}

// Logs returns a copy of the recorded logs in insertion order.
func (s *Span) Logs() []Log {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneLogs(s.logs)
}

// String renders "<trace>:<span>:<parent>:<flags> <service>.<operation>".
func (s *Span) String() string {
	return fmt.Sprintf("%s %s.%s", s.Context(), s.tracer.ServiceName(), s.OperationName())
}

// ContextWithSpan returns a copy of parent carrying span.
// The returned context can be used to start child spans.
func ContextWithSpan(parent context.Context, span *Span) context.Context {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithValue(parent, bundleKey, span)
}

// SpanFromContext extracts the current span from a context.
// Returns nil if no span is present.
func SpanFromContext(ctx context.Context) *Span {
	if ctx == nil {
		return nil
	}
	if span, ok := ctx.Value(bundleKey).(*Span); ok {
		return span
	}
	return nil
}
