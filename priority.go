package spanz

import (
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// setSamplingPriority applies a sampling.priority value to the span flags
// and reports whether the span was elevated to debug. Zero clears SAMPLED
// and DEBUG. Non-zero sets both when the tracer allows a debug span for
// this operation. Debug spans cannot be elevated again.
//
// Caller must hold s.mu.
func (s *Span) setSamplingPriority(value interface{}) bool {
	ctx := s.Context()

	if ctx.IsDebug() && truthy(value) {
		s.metrics.samplingPriority(priorityAlreadyDebug)
		return false
	}

	priority, ok := parsePriority(value)
	if !ok {
		s.logger.Debug("ignoring non-numeric sampling priority",
			zap.Stringer("span_id", ctx.SpanID()),
			zap.Any("value", value),
		)
		s.metrics.samplingPriority(priorityInvalid)
		return false
	}

	if priority == 0 {
		s.swapContext(ctx.WithFlags(ctx.Flags() &^ (FlagSampled | FlagDebug)))
		s.metrics.samplingPriority(priorityCleared)
		return false
	}

	if s.tracer.IsDebugAllowed(s.operationName) {
		s.swapContext(ctx.WithFlags(ctx.Flags() | FlagSampled | FlagDebug))
		s.metrics.samplingPriority(priorityElevated)
		return true
	}

	s.logger.Debug("sampling priority elevation throttled",
		zap.Stringer("span_id", ctx.SpanID()),
		zap.String("operation", s.operationName),
	)
	s.metrics.samplingPriority(priorityThrottled)
	return false
}

// parsePriority converts a priority value to an integer. Floats truncate
// toward zero and strings must hold a base 10 integer.
func parsePriority(value interface{}) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint:
		return clampUnsigned(uint64(v)), true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		return clampUnsigned(v), true
	case float32:
		return parseFloatPriority(float64(v))
	case float64:
		return parseFloatPriority(v)
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

func clampUnsigned(v uint64) int64 {
	if v > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(v)
}

func parseFloatPriority(v float64) (int64, bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	// Out of range values only need to stay non-zero.
	if v >= math.MaxInt64 || v <= math.MinInt64 {
		return 1, true
	}
	return int64(v), true
}

// truthy follows the usual "empty or zero is false" convention.
// The string "0" is truthy.
func truthy(value interface{}) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	case []byte:
		return len(v) > 0
	case float32:
		return v != 0
	case float64:
		return v != 0
	default:
		n, ok := parsePriority(value)
		return !ok || n != 0
	}
}
