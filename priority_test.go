package spanz

import (
	"math"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func debugContext() SpanContext {
	return NewSpanContext(TraceID{Low: 0xabc}, 0x1, 0x2, FlagSampled|FlagDebug, nil)
}

func TestSamplingPriorityZeroClearsSampling(t *testing.T) {
	// Any ReportSpan call would fail the mock.
	span := NewSpan(sampledContext(), newMockTracer(t), "op")
	span.SetTag("before", "kept")

	span.SetTag(SamplingPriorityKey, 0)

	assert.False(t, span.IsSampled())
	assert.False(t, span.IsDebug())

	span.SetTag("after", "dropped")
	span.Finish()

	tags := span.Tags()
	require.Len(t, tags, 1)
	assert.Equal(t, "before", tags[0].Key)
}

func TestSamplingPriorityStringZeroClearsNonDebugSpan(t *testing.T) {
	span := NewSpan(sampledContext(), newMockTracer(t), "op")

	span.SetTag(SamplingPriorityKey, "0")

	assert.False(t, span.IsSampled())
}

func TestSamplingPriorityElevatesToDebug(t *testing.T) {
	tracer := newMockTracer(t)
	tracer.EXPECT().IsDebugAllowed("op").Return(true)

	span := NewSpan(unsampledContext(), tracer, "op")
	span.SetTag(SamplingPriorityKey, 1)

	assert.True(t, span.IsSampled())
	assert.True(t, span.IsDebug())
	assert.Empty(t, span.Tags(), "the priority key is never stored")

	tracer.EXPECT().ReportSpan(span)
	span.Finish()
}

func TestSamplingPrioritySeedTagElevates(t *testing.T) {
	tracer := newMockTracer(t)
	tracer.EXPECT().IsDebugAllowed("checkout").Return(true)

	span := NewSpan(unsampledContext(), tracer, "checkout", WithTag(SamplingPriorityKey, uint16(1)))

	assert.True(t, span.IsDebug())
	assert.Empty(t, span.Tags())
}

func TestSamplingPriorityThrottled(t *testing.T) {
	tracer := newMockTracer(t)
	tracer.EXPECT().IsDebugAllowed("op").Return(false)

	span := NewSpan(sampledContext(), tracer, "op")
	span.SetTag(SamplingPriorityKey, 1)

	assert.True(t, span.IsSampled())
	assert.False(t, span.IsDebug())
}

func TestSamplingPriorityUsesCurrentOperationName(t *testing.T) {
	tracer := newMockTracer(t)
	tracer.EXPECT().IsDebugAllowed("renamed").Return(true)

	span := NewSpan(sampledContext(), tracer, "op")
	span.SetOperationName("renamed")
	span.SetTag(SamplingPriorityKey, 5)

	assert.True(t, span.IsDebug())
}

func TestSamplingPriorityDebugSpanCannotBeElevatedAgain(t *testing.T) {
	// IsDebugAllowed has no expectation and must not be consulted.
	for _, value := range []interface{}{1, "1", "0", true, 2.5, []byte("x")} {
		span := NewSpan(debugContext(), newMockTracer(t), "op")

		span.SetTag(SamplingPriorityKey, value)

		assert.True(t, span.IsDebug(), "value %v", value)
		assert.True(t, span.IsSampled(), "value %v", value)
		assert.Empty(t, span.Tags())
	}
}

func TestSamplingPriorityFalsyClearsDebugSpan(t *testing.T) {
	for _, value := range []interface{}{0, int64(0), false, 0.0} {
		span := NewSpan(debugContext(), newMockTracer(t), "op")

		span.SetTag(SamplingPriorityKey, value)

		assert.False(t, span.IsSampled(), "value %v", value)
		assert.False(t, span.IsDebug(), "value %v", value)
	}
}

func TestSamplingPriorityInvalidValueIgnored(t *testing.T) {
	for _, value := range []interface{}{"high", "", nil, struct{}{}, math.NaN()} {
		span := NewSpan(sampledContext(), newMockTracer(t), "op")

		span.SetTag(SamplingPriorityKey, value)

		assert.True(t, span.IsSampled(), "value %v", value)
		assert.False(t, span.IsDebug(), "value %v", value)
		assert.Empty(t, span.Tags())
	}
}

func TestSamplingPriorityMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := NewMetrics(reg, "test")
	require.NoError(t, err)

	tracer := newMockTracer(t)
	tracer.EXPECT().IsDebugAllowed("op").Return(false)
	tracer.EXPECT().IsDebugAllowed("op").Return(true)

	span := NewSpan(sampledContext(), tracer, "op", WithSpanMetrics(metrics))
	span.SetTag(SamplingPriorityKey, "bogus")
	span.SetTag(SamplingPriorityKey, 1)
	span.SetTag(SamplingPriorityKey, 1)
	span.SetTag(SamplingPriorityKey, 1)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.priorities.WithLabelValues(priorityInvalid)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.priorities.WithLabelValues(priorityThrottled)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.priorities.WithLabelValues(priorityElevated)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.priorities.WithLabelValues(priorityAlreadyDebug)))
}

func TestParsePriority(t *testing.T) {
	tests := []struct {
		name  string
		value interface{}
		want  int64
		ok    bool
	}{
		{"int", 3, 3, true},
		{"negative int8", int8(-1), -1, true},
		{"int64", int64(7), 7, true},
		{"uint", uint(4), 4, true},
		{"uint64 clamps", uint64(math.MaxUint64), math.MaxInt64, true},
		{"float truncates", 1.9, 1, true},
		{"small float truncates to zero", float32(0.4), 0, true},
		{"huge float stays non-zero", 1e300, 1, true},
		{"infinity", math.Inf(1), 0, false},
		{"true", true, 1, true},
		{"false", false, 0, true},
		{"numeric string", " 12 ", 12, true},
		{"hex string", "0x1", 0, false},
		{"word", "yes", 0, false},
		{"nil", nil, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parsePriority(tt.value)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTruthy(t *testing.T) {
	tests := []struct {
		value interface{}
		want  bool
	}{
		{nil, false},
		{false, false},
		{true, true},
		{"", false},
		{"0", true},
		{"anything", true},
		{[]byte{}, false},
		{[]byte("x"), true},
		{0, false},
		{-1, true},
		{uint8(0), false},
		{0.0, false},
		{float32(0.1), true},
		{struct{}{}, true},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, truthy(tt.value), "truthy(%#v)", tt.value)
	}
}
