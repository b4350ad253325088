package spanz

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecord(name string) SpanRecord {
	return SpanRecord{
		TraceID: "abc",
		SpanID:  name,
		Name:    name,
		Tags:    []Tag{{Key: "k", Type: TagString, VStr: "v"}},
		Baggage: map[string]string{"b": "1"},
	}
}

func TestNewCollector(t *testing.T) {
	collector := NewCollector("test-collector", 100)
	defer collector.Close()

	assert.Equal(t, "test-collector", collector.Name())
	assert.Zero(t, collector.Count())
	assert.Zero(t, collector.DroppedCount())
	assert.Nil(t, collector.Export())
}

func TestCollectorBasicCollection(t *testing.T) {
	collector := NewCollector("test", 10)
	collector.SetSyncMode(true) // Enable sync for deterministic testing.
	defer collector.Close()

	require.True(t, collector.Collect(testRecord("one")))

	records := collector.Export()
	require.Len(t, records, 1)
	assert.Equal(t, "one", records[0].Name)
	assert.Zero(t, collector.Count(), "export clears the buffer")
}

func TestCollectorAsyncCollection(t *testing.T) {
	collector := NewCollector("test", 10)
	defer collector.Close()

	for i := 0; i < 5; i++ {
		collector.Collect(testRecord(fmt.Sprint(i)))
	}

	assert.Eventually(t, func() bool {
		return collector.Count()+int(collector.DroppedCount()) == 5
	}, time.Second, time.Millisecond)
}

func TestCollectorBackpressure(t *testing.T) {
	// No receive loop: the channel fills deterministically.
	collector := &Collector{
		name:      "test",
		recordsCh: make(chan SpanRecord, 2),
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}

	assert.True(t, collector.Collect(testRecord("1")))
	assert.True(t, collector.Collect(testRecord("2")))
	assert.False(t, collector.Collect(testRecord("3")))
	assert.False(t, collector.Collect(testRecord("4")))

	assert.Equal(t, int64(2), collector.DroppedCount())
}

func TestCollectorDeepCopiesOnCollect(t *testing.T) {
	collector := NewCollector("test", 10)
	collector.SetSyncMode(true)
	defer collector.Close()

	rec := testRecord("one")
	collector.Collect(rec)
	rec.Tags[0].VStr = "mutated"
	rec.Baggage["b"] = "mutated"

	records := collector.Export()
	require.Len(t, records, 1)
	assert.Equal(t, "v", records[0].Tags[0].VStr)
	assert.Equal(t, "1", records[0].Baggage["b"])
}

func TestCollectorBufferGrowth(t *testing.T) {
	collector := NewCollector("test", 10)
	collector.SetSyncMode(true)
	defer collector.Close()

	for i := 0; i < 100; i++ {
		collector.Collect(testRecord(fmt.Sprint(i)))
	}

	records := collector.Export()
	require.Len(t, records, 100)
	for i, rec := range records {
		assert.Equal(t, fmt.Sprint(i), rec.Name, "order must be preserved")
	}
}

func TestCollectorMemoryShrink(t *testing.T) {
	collector := NewCollector("test", 10)
	collector.SetSyncMode(true)
	defer collector.Close()

	for i := 0; i < 2000; i++ {
		collector.Collect(testRecord("r"))
	}
	collector.Export()
	collector.Collect(testRecord("r"))
	collector.Export()

	collector.mu.Lock()
	capacity := cap(collector.records)
	collector.mu.Unlock()
	assert.Less(t, capacity, 2000, "oversized buffer should shrink")
}

func TestCollectorExportCopy(t *testing.T) {
	collector := NewCollector("test", 10)
	collector.SetSyncMode(true)
	defer collector.Close()

	collector.Collect(testRecord("one"))
	first := collector.Export()
	collector.Collect(testRecord("two"))

	require.Len(t, first, 1)
	assert.Equal(t, "one", first[0].Name, "later collection must not overwrite exported records")

	second := collector.Export()
	require.Len(t, second, 1)
	assert.Equal(t, "two", second[0].Name)
}

func TestCollectorReset(t *testing.T) {
	collector := &Collector{
		name:      "test",
		recordsCh: make(chan SpanRecord, 1),
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
	collector.SetSyncMode(true)
	collector.Collect(testRecord("one"))
	collector.SetSyncMode(false)
	collector.Collect(testRecord("two"))
	collector.Collect(testRecord("dropped"))
	require.Equal(t, int64(1), collector.DroppedCount())

	collector.Reset()

	assert.Zero(t, collector.Count())
	assert.Zero(t, collector.DroppedCount())
}

func TestCollectorShutdown(t *testing.T) {
	collector := NewCollector("test", 10)
	collector.SetSyncMode(true)
	collector.Collect(testRecord("kept"))

	collector.Close()
	collector.Close()

	assert.False(t, collector.Collect(testRecord("late")))
	assert.Equal(t, int64(1), collector.DroppedCount())

	records := collector.Export()
	require.Len(t, records, 1, "buffered records stay exportable after close")
	assert.Equal(t, "kept", records[0].Name)
}

func TestCollectorShutdownDrainsChannel(t *testing.T) {
	collector := NewCollector("test", 100)
	for i := 0; i < 50; i++ {
		require.True(t, collector.Collect(testRecord(fmt.Sprint(i))))
	}

	collector.Close()

	assert.Equal(t, 50, collector.Count())
}

func TestCollectorConcurrentCollection(t *testing.T) {
	collector := NewCollector("test", 10)
	collector.SetSyncMode(true)
	defer collector.Close()

	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				collector.Collect(testRecord(fmt.Sprintf("%d-%d", g, i)))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1000, collector.Count())
	assert.Zero(t, collector.DroppedCount())
}

func TestCollectorConcurrentExport(t *testing.T) {
	collector := NewCollector("test", 10)
	collector.SetSyncMode(true)
	defer collector.Close()

	var wg sync.WaitGroup
	var mu sync.Mutex
	exported := 0

	for g := 0; g < 5; g++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				collector.Collect(testRecord("r"))
			}
		}()
		go func() {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				n := len(collector.Export())
				mu.Lock()
				exported += n
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	exported += len(collector.Export())
	assert.Equal(t, 500, exported, "every record is exported exactly once")
}
