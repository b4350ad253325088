package spanz

import (
	"reflect"

	"github.com/opentracing/opentracing-go/log"
)

// Info logs message as an event, with payload unless it is empty or zero.
//
// Deprecated: use LogFields with log.String("event", ...) instead.
func (s *Span) Info(message string, payload interface{}) *Span {
	return s.LogFields(eventFields(message, payload)...)
}

// Error marks the span as failed and logs message as an event, with
// payload unless it is empty or zero.
//
// Deprecated: use SetTag(ErrorKey, true) and LogFields instead.
func (s *Span) Error(message string, payload interface{}) *Span {
	s.SetTag(ErrorKey, true)
	return s.LogFields(eventFields(message, payload)...)
}

func eventFields(message string, payload interface{}) []log.Field {
	fields := []log.Field{log.String("event", message)}
	if hasPayload(payload) {
		fields = append(fields, log.Object("payload", payload))
	}
	return fields
}

// hasPayload reports false for nil, zero values and empty collections.
func hasPayload(payload interface{}) bool {
	switch v := reflect.ValueOf(payload); v.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array:
		return v.Len() > 0
	}
	return truthy(payload)
}
