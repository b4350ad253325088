package spanz

import (
	"time"

	"github.com/opentracing/opentracing-go/log"
)

// TagType identifies which value of a Tag is populated.
type TagType int

const (
	TagString TagType = iota
	TagBool
	TagLong
	TagDouble
	TagBinary
)

func (t TagType) String() string {
	switch t {
	case TagString:
		return "string"
	case TagBool:
		return "bool"
	case TagLong:
		return "long"
	case TagDouble:
		return "double"
	case TagBinary:
		return "binary"
	default:
		return "unknown"
	}
}

// Tag is a typed key/value annotation. Exactly one value field is
// meaningful, selected by Type.
//
//nolint:govet // Field order mirrors the wire layout
type Tag struct {
	Key     string  `json:"key"`
	Type    TagType `json:"type"`
	VStr    string  `json:"v_str,omitempty"`
	VBool   bool    `json:"v_bool,omitempty"`
	VLong   int64   `json:"v_long,omitempty"`
	VDouble float64 `json:"v_double,omitempty"`
	VBinary []byte  `json:"v_binary,omitempty"`
}

// Value returns the populated value as an interface.
func (t Tag) Value() interface{} {
	switch t.Type {
	case TagBool:
		return t.VBool
	case TagLong:
		return t.VLong
	case TagDouble:
		return t.VDouble
	case TagBinary:
		return t.VBinary
	default:
		return t.VStr
	}
}

// Log is one timestamped structured event recorded on a span.
type Log struct {
	Timestamp time.Time `json:"timestamp"`
	Fields    []Tag     `json:"fields"`
}

// Encoder turns application values into Tag and Log records.
// Implementations must never panic on unsupported values; they substitute
// a truncated or textual representation instead.
type Encoder interface {
	MakeTag(key string, value interface{}, maxLength, maxTracebackLength int) Tag
	MakeLog(timestamp time.Time, fields []log.Field, maxLength, maxTracebackLength int) Log
}

func cloneTags(tags []Tag) []Tag {
	if len(tags) == 0 {
		return nil
	}
	out := make([]Tag, len(tags))
	copy(out, tags)
	return out
}

func cloneLogs(logs []Log) []Log {
	if len(logs) == 0 {
		return nil
	}
	out := make([]Log, len(logs))
	for i := range logs {
		out[i] = Log{Timestamp: logs[i].Timestamp, Fields: cloneTags(logs[i].Fields)}
	}
	return out
}
