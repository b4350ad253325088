package spanz

import (
	"fmt"
	"strconv"

	"github.com/opentracing/opentracing-go"
)

// TraceID is a 128-bit trace identifier split into high and low words.
type TraceID struct {
	High uint64 `json:"high,omitempty"`
	Low  uint64 `json:"low"`
}

// IsValid reports whether the trace id is non-zero.
func (t TraceID) IsValid() bool {
	return t.High != 0 || t.Low != 0
}

// String renders the id as lowercase hex. The high word is omitted when zero.
func (t TraceID) String() string {
	if t.High == 0 {
		return strconv.FormatUint(t.Low, 16)
	}
	return fmt.Sprintf("%x%016x", t.High, t.Low)
}

// SpanID is a 64-bit span identifier. Zero means "no span".
type SpanID uint64

// String renders the id as lowercase hex.
func (s SpanID) String() string {
	return strconv.FormatUint(uint64(s), 16)
}

// SpanContext is the identity and propagation state of a span.
//
// A SpanContext is never modified after construction. WithBaggageItem and
// WithFlags return new values, so a snapshot held by a reader stays valid
// while the owning span moves on to a newer context.
type SpanContext struct {
	baggage  map[string]string
	traceID  TraceID
	spanID   SpanID
	parentID SpanID
	flags    Flags
}

var _ opentracing.SpanContext = SpanContext{}

// NewSpanContext builds a context. The baggage map is copied.
func NewSpanContext(traceID TraceID, spanID, parentID SpanID, flags Flags, baggage map[string]string) SpanContext {
	var own map[string]string
	if len(baggage) > 0 {
		own = make(map[string]string, len(baggage))
		for k, v := range baggage {
			own[k] = v
		}
	}
	return SpanContext{
		traceID:  traceID,
		spanID:   spanID,
		parentID: parentID,
		flags:    flags,
		baggage:  own,
	}
}

// TraceID returns the trace id.
func (c SpanContext) TraceID() TraceID { return c.traceID }

// SpanID returns the span id.
func (c SpanContext) SpanID() SpanID { return c.spanID }

// ParentID returns the parent span id, zero for a root span.
func (c SpanContext) ParentID() SpanID { return c.parentID }

// Flags returns the sampling flags.
func (c SpanContext) Flags() Flags { return c.flags }

// IsSampled reports whether the SAMPLED bit is set.
func (c SpanContext) IsSampled() bool { return c.flags&FlagSampled == FlagSampled }

// IsDebug reports whether the DEBUG bit is set.
func (c SpanContext) IsDebug() bool { return c.flags&FlagDebug == FlagDebug }

// IsValid reports whether both trace and span ids are set.
func (c SpanContext) IsValid() bool {
	return c.traceID.IsValid() && c.spanID != 0
}

// BaggageItem looks up a baggage value.
func (c SpanContext) BaggageItem(key string) (string, bool) {
	v, ok := c.baggage[key]
	return v, ok
}

// ForeachBaggageItem belongs to the opentracing.SpanContext interface.
func (c SpanContext) ForeachBaggageItem(handler func(k, v string) bool) {
	for k, v := range c.baggage {
		if !handler(k, v) {
			break
		}
	}
}

// WithBaggageItem returns a new context with key set to value.
// An empty value removes the key.
func (c SpanContext) WithBaggageItem(key, value string) SpanContext {
	baggage := make(map[string]string, len(c.baggage)+1)
	for k, v := range c.baggage {
		baggage[k] = v
	}
	if value == "" {
		delete(baggage, key)
	} else {
		baggage[key] = value
	}
	if len(baggage) == 0 {
		baggage = nil
	}
	next := c
	next.baggage = baggage
	return next
}

// WithFlags returns a new context carrying flags.
func (c SpanContext) WithFlags(flags Flags) SpanContext {
	next := c
	next.flags = flags
	return next
}

// String renders trace:span:parent:flags in hex.
func (c SpanContext) String() string {
	return fmt.Sprintf("%s:%s:%s:%x", c.traceID, c.spanID, c.parentID, byte(c.flags))
}
