package spanz

import (
	"fmt"
	"math"
	"time"
	"unicode/utf8"

	"github.com/opentracing/opentracing-go/log"
)

// DefaultEncoder is the Encoder used when none is configured.
var DefaultEncoder Encoder = encoder{}

type encoder struct{}

// MakeTag converts value into the closest Tag kind. Strings and binary
// payloads are truncated to maxLength, errors to maxTracebackLength.
// Anything else is rendered with fmt and truncated.
func (encoder) MakeTag(key string, value interface{}, maxLength, maxTracebackLength int) Tag {
	switch v := value.(type) {
	case string:
		return Tag{Key: key, Type: TagString, VStr: truncate(v, maxLength)}
	case bool:
		return Tag{Key: key, Type: TagBool, VBool: v}
	case int:
		return longTag(key, int64(v))
	case int8:
		return longTag(key, int64(v))
	case int16:
		return longTag(key, int64(v))
	case int32:
		return longTag(key, int64(v))
	case int64:
		return longTag(key, v)
	case uint:
		return unsignedTag(key, uint64(v), maxLength)
	case uint8:
		return longTag(key, int64(v))
	case uint16:
		return longTag(key, int64(v))
	case uint32:
		return longTag(key, int64(v))
	case uint64:
		return unsignedTag(key, v, maxLength)
	case float32:
		return Tag{Key: key, Type: TagDouble, VDouble: float64(v)}
	case float64:
		return Tag{Key: key, Type: TagDouble, VDouble: v}
	case []byte:
		return Tag{Key: key, Type: TagBinary, VBinary: truncateBytes(v, maxLength)}
	case error:
		// fmt recovers from panicking Error and String methods.
		return Tag{Key: key, Type: TagString, VStr: truncate(fmt.Sprintf("%+v", v), maxTracebackLength)}
	case nil:
		return Tag{Key: key, Type: TagString, VStr: "<nil>"}
	default:
		return Tag{Key: key, Type: TagString, VStr: truncate(fmt.Sprint(v), maxLength)}
	}
}

// MakeLog encodes fields in order into one Log record.
func (e encoder) MakeLog(timestamp time.Time, fields []log.Field, maxLength, maxTracebackLength int) Log {
	fe := &fieldEncoder{
		enc:                e,
		maxLength:          maxLength,
		maxTracebackLength: maxTracebackLength,
		tags:               make([]Tag, 0, len(fields)),
	}
	for _, f := range fields {
		f.Marshal(fe)
	}
	return Log{Timestamp: timestamp, Fields: fe.tags}
}

// fieldEncoder adapts log.Field marshalling onto Tag records.
type fieldEncoder struct {
	enc                encoder
	tags               []Tag
	maxLength          int
	maxTracebackLength int
}

var _ log.Encoder = (*fieldEncoder)(nil)

func (f *fieldEncoder) add(key string, value interface{}) {
	f.tags = append(f.tags, f.enc.MakeTag(key, value, f.maxLength, f.maxTracebackLength))
}

func (f *fieldEncoder) EmitString(key, value string)          { f.add(key, value) }
func (f *fieldEncoder) EmitBool(key string, value bool)       { f.add(key, value) }
func (f *fieldEncoder) EmitInt(key string, value int)         { f.add(key, value) }
func (f *fieldEncoder) EmitInt32(key string, value int32)     { f.add(key, value) }
func (f *fieldEncoder) EmitInt64(key string, value int64)     { f.add(key, value) }
func (f *fieldEncoder) EmitUint32(key string, value uint32)   { f.add(key, value) }
func (f *fieldEncoder) EmitUint64(key string, value uint64)   { f.add(key, value) }
func (f *fieldEncoder) EmitFloat32(key string, value float32) { f.add(key, value) }
func (f *fieldEncoder) EmitFloat64(key string, value float64) { f.add(key, value) }

func (f *fieldEncoder) EmitObject(key string, value interface{}) { f.add(key, value) }

func (f *fieldEncoder) EmitLazyLogger(value log.LazyLogger) {
	if value == nil {
		return
	}
	value(f)
}

func longTag(key string, v int64) Tag {
	return Tag{Key: key, Type: TagLong, VLong: v}
}

// unsignedTag keeps values above MaxInt64 exact by falling back to text.
func unsignedTag(key string, v uint64, maxLength int) Tag {
	if v > math.MaxInt64 {
		return Tag{Key: key, Type: TagString, VStr: truncate(fmt.Sprintf("%d", v), maxLength)}
	}
	return longTag(key, int64(v))
}

// truncate cuts s to at most maxLength bytes without splitting a rune.
// A non-positive maxLength disables truncation.
func truncate(s string, maxLength int) string {
	if maxLength <= 0 || len(s) <= maxLength {
		return s
	}
	cut := maxLength
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func truncateBytes(b []byte, maxLength int) []byte {
	if maxLength > 0 && len(b) > maxLength {
		b = b[:maxLength]
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
