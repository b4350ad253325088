package integration

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zoobzio/spanz"
)

// TestCrossGoroutineContextPropagation verifies parent-child relationships
// across goroutine boundaries.
func TestCrossGoroutineContextPropagation(t *testing.T) {
	tracer, collector := NewTestTracer(t, "test-service")

	ctx, parent := tracer.StartSpan(context.Background(), "parent-operation")
	parentTraceID := parent.TraceID().String()
	parentSpanID := parent.SpanID().String()

	const childCount = 10
	var wg sync.WaitGroup
	for i := 0; i < childCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, child := tracer.StartSpan(ctx, "child-operation")
			child.SetTag("goroutine.index", i)
			child.Finish()
		}()
	}
	wg.Wait()
	parent.Finish()

	records := collector.Export()
	require.Len(t, records, childCount+1)

	children := 0
	for _, rec := range records {
		assert.Equal(t, parentTraceID, rec.TraceID, "span %s", rec.Name)
		if rec.Name == "child-operation" {
			assert.Equal(t, parentSpanID, rec.ParentID)
			children++
		}
	}
	assert.Equal(t, childCount, children)
}

// TestContextCancellationDuringTracing verifies spans keep working when
// the context carrying them is canceled.
func TestContextCancellationDuringTracing(t *testing.T) {
	tracer, collector := NewTestTracer(t, "test-service")

	ctx, cancel := context.WithCancel(context.Background())
	ctx, parent := tracer.StartSpan(ctx, "parent")
	cancel()

	_, child := tracer.StartSpan(ctx, "after-cancel")
	child.SetTag("ctx.err", ctx.Err())
	child.Finish()
	parent.Finish()

	collector.AssertParentChild("parent", "after-cancel")
	NewSpanMatcher(t, collector.AssertSpanNamed("after-cancel")).HasTag("ctx.err", context.Canceled.Error())
}

// TestContextDeadlineExceeded records a timed out operation on a fake
// clock.
func TestContextDeadlineExceeded(t *testing.T) {
	tracer, collector, clock := NewFakeClockTracer(t, "test-service")

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	_, span := tracer.StartSpan(ctx, "slow-query")
	clock.Advance(2 * time.Second)
	if ctx.Err() != nil {
		span.SetTag(spanz.ErrorKey, true)
		span.LogKV("event", "timeout", "error", ctx.Err())
	}
	span.Finish()

	rec := collector.AssertSpanNamed("slow-query")
	NewSpanMatcher(t, rec).HasTag(spanz.ErrorKey, true).HasDuration(2 * time.Second)
	require.Len(t, rec.Logs, 1)
	assert.Equal(t, context.DeadlineExceeded.Error(), rec.Logs[0].Fields[1].VStr)
}

// TestBaggagePropagatesThroughServices checks baggage set at the edge is
// visible to every downstream span in the trace.
func TestBaggagePropagatesThroughServices(t *testing.T) {
	tracer, collector := NewTestTracer(t, "gateway")
	inventory := NewMockService("inventory", tracer)
	billing := NewMockService("billing", tracer)
	billing.SetFailEvery(2)

	ctx, edge := tracer.StartSpan(context.Background(), "checkout",
		spanz.WithTag(spanz.SpanKindKey, spanz.SpanKindRPCClient),
	)
	edge.SetBaggageItem("tenant", "acme")

	// The span stored in ctx is the same pointer, so later baggage is seen.
	require.NoError(t, inventory.Call(ctx, "reserve"))
	require.NoError(t, billing.Call(ctx, "charge"))
	require.Error(t, billing.Call(ctx, "charge"))
	assert.True(t, edge.IsRPCClient())
	edge.Finish()

	records := collector.GetAll()
	require.Len(t, records, 4)
	for _, rec := range records {
		assert.Equal(t, "acme", rec.Baggage["tenant"], "span %s", rec.Name)
	}

	charges := NewTraceAnalyzer(records).GetSpansByName("billing.charge")
	require.Len(t, charges, 2)
	NewSpanMatcher(t, &charges[0]).HasTag("tenant", "acme").HasTag(spanz.SpanKindKey, "server")
	_, failed := charges[1].Tag(spanz.ErrorKey)
	assert.True(t, failed)
}

// TestNestedContextPropagation overrides baggage in a child and checks the
// override does not leak back to the parent or to siblings.
func TestNestedContextPropagation(t *testing.T) {
	tracer, collector := NewTestTracer(t, "test-service")

	ctx, root := tracer.StartSpan(context.Background(), "root")
	root.SetBaggageItem("region", "eu")

	childCtx, child := tracer.StartSpan(ctx, "child")
	child.SetBaggageItem("region", "us")
	_, grandchild := tracer.StartSpan(childCtx, "grandchild")
	_, sibling := tracer.StartSpan(ctx, "sibling")

	for _, s := range []*spanz.Span{grandchild, sibling, child, root} {
		s.Finish()
	}

	analyzer := NewTraceAnalyzer(collector.GetAll())
	region := func(name string) string {
		return analyzer.GetSpansByName(name)[0].Baggage["region"]
	}
	assert.Equal(t, "eu", region("root"))
	assert.Equal(t, "us", region("child"))
	assert.Equal(t, "us", region("grandchild"))
	assert.Equal(t, "eu", region("sibling"))
	require.NoError(t, analyzer.VerifyChain("root", "child", "grandchild"))
}

// TestSamplingPriorityAcrossTrace checks a debug decision made on the root
// flows to children started after it.
func TestSamplingPriorityAcrossTrace(t *testing.T) {
	cfg := spanz.DefaultConfig()
	cfg.ServiceName = "test-service"
	cfg.Sampler.Param = 0
	tracer, collector := NewTestTracerWithConfig(t, cfg)

	ctx, skipped := tracer.StartSpan(context.Background(), "before")
	_, skippedChild := tracer.StartSpan(ctx, "before-child")
	skippedChild.Finish()
	skipped.Finish()
	collector.AssertSpanCount(0)

	ctx, root := tracer.StartSpan(context.Background(), "debug-root")
	root.SetTag(spanz.SamplingPriorityKey, 1)
	_, child := tracer.StartSpan(ctx, "debug-child")
	child.Finish()
	root.Finish()

	records := collector.GetAll()
	require.Len(t, records, 2)
	for _, rec := range records {
		assert.True(t, rec.IsDebug(), "span %s", rec.Name)
	}
}
