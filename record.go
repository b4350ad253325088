package spanz

import (
	"time"

	"github.com/opentracing/opentracing-go"
)

// SpanRecord is an immutable snapshot of a finished span, handed to
// collectors and completion handlers.
//
//nolint:govet // Field alignment optimized for JSON serialization order
type SpanRecord struct {
	Baggage    map[string]string `json:"baggage,omitempty"`
	StartTime  time.Time         `json:"start_time"`
	EndTime    time.Time         `json:"end_time"`
	Duration   time.Duration     `json:"duration"`
	TraceID    string            `json:"trace_id"`
	SpanID     string            `json:"span_id"`
	ParentID   string            `json:"parent_id,omitempty"`
	Service    string            `json:"service"`
	Name       string            `json:"name"`
	Tags       []Tag             `json:"tags,omitempty"`
	Logs       []Log             `json:"logs,omitempty"`
	References []SpanRef         `json:"references,omitempty"`
	Flags      Flags             `json:"flags"`
}

// SpanRef is the serializable form of a Reference.
type SpanRef struct {
	Type    string `json:"type"`
	TraceID string `json:"trace_id"`
	SpanID  string `json:"span_id"`
}

// IsSampled reports whether the recorded flags carry SAMPLED.
func (r SpanRecord) IsSampled() bool { return r.Flags&FlagSampled == FlagSampled }

// IsDebug reports whether the recorded flags carry DEBUG.
func (r SpanRecord) IsDebug() bool { return r.Flags&FlagDebug == FlagDebug }

// Tag returns the first tag recorded under key.
func (r SpanRecord) Tag(key string) (Tag, bool) {
	for i := range r.Tags {
		if r.Tags[i].Key == key {
			return r.Tags[i], true
		}
	}
	return Tag{}, false
}

// clone deep copies slices and maps so the copy can be handed out freely.
func (r SpanRecord) clone() SpanRecord {
	out := r
	out.Tags = cloneTags(r.Tags)
	out.Logs = cloneLogs(r.Logs)
	if r.References != nil {
		out.References = make([]SpanRef, len(r.References))
		copy(out.References, r.References)
	}
	if r.Baggage != nil {
		out.Baggage = make(map[string]string, len(r.Baggage))
		for k, v := range r.Baggage {
			out.Baggage[k] = v
		}
	}
	return out
}

// Record snapshots the span. Tags and logs are copied under the lock.
func (s *Span) Record() SpanRecord {
	ctx := s.Context()

	s.mu.Lock()
	rec := SpanRecord{
		Name:      s.operationName,
		StartTime: s.startTime,
		EndTime:   s.endTime,
		Tags:      cloneTags(s.tags),
		Logs:      cloneLogs(s.logs),
	}
	s.mu.Unlock()

	rec.TraceID = ctx.TraceID().String()
	rec.SpanID = ctx.SpanID().String()
	if ctx.ParentID() != 0 {
		rec.ParentID = ctx.ParentID().String()
	}
	rec.Flags = ctx.Flags()
	rec.Service = s.tracer.ServiceName()
	if !rec.EndTime.IsZero() {
		rec.Duration = rec.EndTime.Sub(rec.StartTime)
	}
	ctx.ForeachBaggageItem(func(k, v string) bool {
		if rec.Baggage == nil {
			rec.Baggage = make(map[string]string)
		}
		rec.Baggage[k] = v
		return true
	})
	for _, ref := range s.references {
		rec.References = append(rec.References, SpanRef{
			Type:    refTypeName(ref.Type),
			TraceID: ref.Context.TraceID().String(),
			SpanID:  ref.Context.SpanID().String(),
		})
	}
	return rec
}

func refTypeName(t opentracing.SpanReferenceType) string {
	switch t {
	case opentracing.ChildOfRef:
		return "child_of"
	case opentracing.FollowsFromRef:
		return "follows_from"
	default:
		return "unknown"
	}
}
