package spanz

import (
	"sync"
	"sync/atomic"
	"time"
)

// Collector buffers finished span records for batch export.
// Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field alignment optimized for readability over memory efficiency
type Collector struct {
	records      []SpanRecord
	recordsCh    chan SpanRecord
	stopCh       chan struct{}
	done         chan struct{}
	droppedCount atomic.Int64
	name         string
	mu           sync.Mutex
	closeOnce    sync.Once
	closed       atomic.Bool // Track if collector is closed.
	syncMode     atomic.Bool // Bypass channel for synchronous collection.
}

// NewCollector creates a new collector with the specified name and buffer size.
func NewCollector(name string, bufferSize int) *Collector {
	c := &Collector{
		name:      name,
		records:   make([]SpanRecord, 0, 8), // Start with small capacity.
		recordsCh: make(chan SpanRecord, bufferSize),
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
	go c.start()
	return c
}

// Name returns the collector name.
func (c *Collector) Name() string {
	return c.name
}

// start runs the collector's main loop, receiving records from the channel.
func (c *Collector) start() {
	defer close(c.done)

	for {
		select {
		case <-c.stopCh:
			// Drain remaining records before shutdown.
			for {
				select {
				case rec := <-c.recordsCh:
					c.buffer(rec)
				default:
					return // Clean shutdown.
				}
			}
		case rec := <-c.recordsCh:
			c.buffer(rec)
		}
	}
}

// Close shuts down the collector gracefully. Safe to call more than once.
func (c *Collector) Close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.stopCh)
		select {
		case <-c.done:
			// Clean shutdown completed.
		case <-time.After(100 * time.Millisecond):
			// Drain timed out; buffered records stay exportable.
		}
	})
}

// Collect attempts to buffer a record with backpressure protection.
// If the internal channel is full, the record is dropped, the drop counter
// is incremented and false is returned. In sync mode, records are buffered
// directly for deterministic testing.
func (c *Collector) Collect(rec SpanRecord) bool {
	if c.closed.Load() {
		c.droppedCount.Add(1)
		return false
	}

	// Deep copy to prevent sharing slices with other collectors.
	rec = rec.clone()

	if c.syncMode.Load() {
		c.buffer(rec)
		return true
	}

	select {
	case c.recordsCh <- rec:
		return true
	default:
		// Channel full - drop record to prevent blocking.
		c.droppedCount.Add(1)
		return false
	}
}

// buffer appends a record to the internal buffer.
func (c *Collector) buffer(rec SpanRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Check if buffer needs to grow - optimized growth strategy.
	if len(c.records) >= cap(c.records) {
		currentCap := cap(c.records)
		var newCap int
		if currentCap < 1024 {
			// Double capacity for small buffers.
			newCap = currentCap * 2
		} else {
			// Grow by 50% for large buffers to avoid excessive memory usage.
			newCap = currentCap + currentCap/2
		}
		if newCap < 32 {
			newCap = 32
		}
		grown := make([]SpanRecord, len(c.records), newCap)
		copy(grown, c.records)
		c.records = grown
	}
	c.records = append(c.records, rec)
}

// Export returns all buffered records and clears the internal buffer.
// The returned slice is safe to modify without affecting the collector.
func (c *Collector) Export() []SpanRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.records) == 0 {
		return nil
	}

	result := make([]SpanRecord, len(c.records))
	copy(result, c.records)

	// Only shrink if buffer is very oversized to avoid allocation churn.
	if cap(c.records) > 256 && len(c.records) < cap(c.records)/8 {
		newCap := cap(c.records) / 4
		if newCap < 32 {
			newCap = 32
		}
		c.records = make([]SpanRecord, 0, newCap)
	} else {
		// Fresh backing array: result still references the old one.
		c.records = make([]SpanRecord, 0, cap(c.records))
	}

	return result
}

// Count returns the current number of buffered records.
func (c *Collector) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

// DroppedCount returns the total number of records dropped due to backpressure.
func (c *Collector) DroppedCount() int64 {
	return c.droppedCount.Load()
}

// SetSyncMode enables synchronous collection for testing.
// When enabled, records are buffered directly without using the channel.
func (c *Collector) SetSyncMode(sync bool) {
	c.syncMode.Store(sync)
}

// Reset clears all buffered records and resets the drop counter.
// Does not affect the running goroutine - use Close for that.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.records = c.records[:0]
	c.droppedCount.Store(0)
}
