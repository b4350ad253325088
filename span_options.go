package spanz

import (
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/zoobzio/clockz"
	"go.uber.org/zap"
)

// Reference links a span to a span it depends on or follows.
type Reference struct {
	Context SpanContext
	Type    opentracing.SpanReferenceType
}

type spanOptions struct {
	startTime  time.Time
	encoder    Encoder
	clock      clockz.Clock
	logger     *zap.Logger
	metrics    *Metrics
	tags       []opentracing.Tag
	references []Reference
}

// SpanOption configures a span at creation.
type SpanOption func(*spanOptions)

// WithTag seeds a tag. Seed tags are applied in order through SetTag.
func WithTag(key string, value interface{}) SpanOption {
	return func(o *spanOptions) {
		o.tags = append(o.tags, opentracing.Tag{Key: key, Value: value})
	}
}

// WithStartTime sets an explicit start timestamp.
func WithStartTime(t time.Time) SpanOption {
	return func(o *spanOptions) {
		o.startTime = t
	}
}

// ChildOf adds a ChildOf reference to parent.
func ChildOf(parent SpanContext) SpanOption {
	return func(o *spanOptions) {
		o.references = append(o.references, Reference{Type: opentracing.ChildOfRef, Context: parent})
	}
}

// FollowsFrom adds a FollowsFrom reference to parent.
func FollowsFrom(parent SpanContext) SpanOption {
	return func(o *spanOptions) {
		o.references = append(o.references, Reference{Type: opentracing.FollowsFromRef, Context: parent})
	}
}

// WithSpanEncoder overrides the tag and log encoder.
func WithSpanEncoder(e Encoder) SpanOption {
	return func(o *spanOptions) {
		if e != nil {
			o.encoder = e
		}
	}
}

// WithSpanClock overrides the clock used for default timestamps.
func WithSpanClock(c clockz.Clock) SpanOption {
	return func(o *spanOptions) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithSpanLogger sets the logger receiving span warnings.
func WithSpanLogger(l *zap.Logger) SpanOption {
	return func(o *spanOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithSpanMetrics sets the metrics a span reports into.
func WithSpanMetrics(m *Metrics) SpanOption {
	return func(o *spanOptions) {
		o.metrics = m
	}
}

func newSpanOptions(opts []SpanOption) spanOptions {
	o := spanOptions{
		encoder: DefaultEncoder,
		clock:   clockz.RealClock,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// parentReference picks the first ChildOf reference, else the first one.
func parentReference(refs []Reference) (Reference, bool) {
	for _, r := range refs {
		if r.Type == opentracing.ChildOfRef && r.Context.IsValid() {
			return r, true
		}
	}
	for _, r := range refs {
		if r.Context.IsValid() {
			return r, true
		}
	}
	return Reference{}, false
}
