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

// TestChannelSaturation floods an async collector and checks every record
// is either buffered or counted as dropped.
func TestChannelSaturation(t *testing.T) {
	cfg := spanz.DefaultConfig()
	cfg.ServiceName = "saturation-test"
	tracer, err := spanz.New(cfg)
	require.NoError(t, err)
	defer tracer.Close()

	collector := spanz.NewCollector("small", 5)
	tracer.AddCollector("small", collector)

	const total = 500
	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < total/10; i++ {
				_, span := tracer.StartSpan(context.Background(), "flood")
				span.Finish()
			}
		}()
	}
	wg.Wait()

	assert.Eventually(t, func() bool {
		return collector.Count()+int(collector.DroppedCount()) == total
	}, 2*time.Second, 5*time.Millisecond)
}

// TestMultipleCollectorsReceiveIndependentCopies checks each collector gets
// its own record copy.
func TestMultipleCollectorsReceiveIndependentCopies(t *testing.T) {
	tracer, first := NewTestTracer(t, "multi-collector")
	second := NewMockCollector(t, "second", 100)
	tracer.AddCollector("second", second.Collector)

	_, span := tracer.StartSpan(context.Background(), "op")
	span.SetTag("k", "v")
	span.Finish()

	a := first.Export()
	b := second.Export()
	require.Len(t, a, 1)
	require.Len(t, b, 1)

	a[0].Tags[0].VStr = "mutated"
	assert.Equal(t, "v", b[0].Tags[0].VStr)
}

// TestCollectorShutdownUnderLoad closes the tracer while spans are still
// finishing. Nothing may panic and late records are dropped.
func TestCollectorShutdownUnderLoad(t *testing.T) {
	cfg := spanz.DefaultConfig()
	cfg.ServiceName = "shutdown-test"
	tracer, err := spanz.New(cfg)
	require.NoError(t, err)

	collector := spanz.NewCollector("c", 1000)
	tracer.AddCollector("c", collector)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for g := 0; g < 5; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					_, span := tracer.StartSpan(context.Background(), "load")
					span.Finish()
				}
			}
		}()
	}

	time.Sleep(10 * time.Millisecond)
	require.NotPanics(t, tracer.Close)
	close(stop)
	wg.Wait()

	assert.False(t, collector.Collect(spanz.SpanRecord{}))
}

// TestWorkerPoolBackpressure checks a full worker queue drops async
// handler work instead of blocking Finish.
func TestWorkerPoolBackpressure(t *testing.T) {
	cfg := spanz.DefaultConfig()
	cfg.ServiceName = "pool-test"
	cfg.Workers = 1
	cfg.QueueSize = 2
	tracer, collector := NewTestTracerWithConfig(t, cfg)

	release := make(chan struct{})
	tracer.OnSpanCompleteAsync(func(spanz.SpanRecord) { <-release })

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 20; i++ {
			_, span := tracer.StartSpan(context.Background(), "op")
			span.Finish()
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Finish blocked on a full worker queue")
	}
	close(release)

	assert.GreaterOrEqual(t, tracer.DroppedSpans(), uint64(17))
	collector.AssertSpanCount(20)
}
