package spanz

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/opentracing/opentracing-go"
	"github.com/zoobzio/clockz"
	"go.uber.org/zap"
)

// ErrWorkerPoolEnabled is returned when EnableWorkerPool is called twice.
var ErrWorkerPoolEnabled = errors.New("worker pool already enabled")

// SpanHandler is called when a span completes.
type SpanHandler func(record SpanRecord)

type handlerEntry struct {
	handler SpanHandler
	id      uint64
	async   bool
}

type namedCollector struct {
	collector *Collector
	name      string
}

// Tracer creates spans and receives them back when they finish.
// Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field order optimized for functionality over memory
type Tracer struct {
	handlers     []handlerEntry
	collectors   []namedCollector
	panicHook    func(handlerID uint64, r interface{})
	workers      *workerPool
	idPool       *IDPool
	clock        clockz.Clock
	logger       *zap.Logger
	metrics      *Metrics
	encoder      Encoder
	throttler    *DebugThrottler
	serviceName  string
	limits       Limits
	sampled      bool
	handlersLock sync.RWMutex
	idPoolOnce   sync.Once
	nextID       atomic.Uint64
	droppedSpans atomic.Uint64
}

// Option configures a Tracer.
type Option func(*Tracer)

// WithClock sets the clock used for span timestamps and debug throttling.
// Enables clock injection for deterministic testing.
func WithClock(clock clockz.Clock) Option {
	return func(t *Tracer) {
		if clock != nil {
			t.clock = clock
		}
	}
}

// WithLogger sets the logger receiving tracer and span diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(t *Tracer) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithMetrics sets the metrics updated by the tracer and its spans.
func WithMetrics(m *Metrics) Option {
	return func(t *Tracer) {
		t.metrics = m
	}
}

// WithEncoder replaces the tag and log encoder.
func WithEncoder(e Encoder) Option {
	return func(t *Tracer) {
		if e != nil {
			t.encoder = e
		}
	}
}

// New creates a tracer from cfg.
func New(cfg Config, opts ...Option) (*Tracer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	t := &Tracer{
		handlers:    make([]handlerEntry, 0),
		clock:       clockz.RealClock,
		logger:      zap.NewNop(),
		encoder:     DefaultEncoder,
		serviceName: cfg.ServiceName,
		limits:      cfg.limits(),
		sampled:     cfg.Sampler.Param == 1,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	t.throttler = NewDebugThrottler(cfg.DebugRate, cfg.DebugBurst, t.clock)

	if cfg.Workers > 0 {
		if err := t.EnableWorkerPool(cfg.Workers, cfg.QueueSize); err != nil {
			return nil, fmt.Errorf("enable worker pool: %w", err)
		}
	}
	return t, nil
}

// ServiceName returns the configured service name.
func (t *Tracer) ServiceName() string {
	return t.serviceName
}

// Limits returns the tag and log value caps.
func (t *Tracer) Limits() Limits {
	return t.limits
}

// IsDebugAllowed reports whether a span of operation may be elevated to
// debug now. Each allowed call consumes one throttler token.
func (t *Tracer) IsDebugAllowed(operation string) bool {
	return t.throttler.IsAllowed(operation)
}

// ensureIDPool initializes the ID pool if not already created.
func (t *Tracer) ensureIDPool() {
	t.idPoolOnce.Do(func() {
		// Pool size based on number of CPUs for optimal contention balance.
		t.idPool = NewIDPool(runtime.NumCPU()*100, randomID)
	})
}

func (t *Tracer) newID() uint64 {
	t.ensureIDPool()
	if t.idPool == nil {
		// Closed before the pool was ever needed.
		return randomID()
	}
	return t.idPool.Get()
}

// StartSpan creates a new span. The parent is the first ChildOf reference
// in opts, else the first reference, else the span carried by ctx. Root
// spans get a new 128-bit trace id and the configured sampling decision.
func (t *Tracer) StartSpan(ctx context.Context, operation Key, opts ...SpanOption) (context.Context, *Span) {
	// Handle nil context by creating a new one.
	if ctx == nil {
		ctx = context.Background()
	}

	spanOpts := make([]SpanOption, 0, len(opts)+5)
	spanOpts = append(spanOpts,
		WithSpanEncoder(t.encoder),
		WithSpanClock(t.clock),
		WithSpanLogger(t.logger),
		WithSpanMetrics(t.metrics),
	)
	spanOpts = append(spanOpts, opts...)

	parent, ok := parentReference(newSpanOptions(opts).references)
	if !ok {
		if ps := SpanFromContext(ctx); ps != nil {
			parent = Reference{Type: opentracing.ChildOfRef, Context: ps.Context()}
			spanOpts = append(spanOpts, ChildOf(parent.Context))
			ok = true
		}
	}

	var sc SpanContext
	if ok {
		p := parent.Context
		sc = SpanContext{
			traceID:  p.traceID,
			spanID:   SpanID(t.newID()),
			parentID: p.spanID,
			flags:    p.flags,
			baggage:  p.baggage,
		}
	} else {
		var flags Flags
		if t.sampled {
			flags = FlagSampled
		}
		sc = SpanContext{
			traceID: TraceID{High: t.newID(), Low: t.newID()},
			spanID:  SpanID(t.newID()),
			flags:   flags,
		}
	}

	span := NewSpan(sc, t, operation, spanOpts...)
	t.metrics.spanStarted(span.IsSampled())

	return ContextWithSpan(ctx, span), span
}

// ReportSpan snapshots a finished span and hands the record to every
// collector and completion handler. Collectors never block; async
// handlers run on the worker pool when one is enabled.
func (t *Tracer) ReportSpan(span *Span) {
	if span == nil {
		return
	}
	rec := span.Record()
	t.metrics.spanReported()

	t.handlersLock.RLock()
	collectors := make([]namedCollector, len(t.collectors))
	copy(collectors, t.collectors)
	t.handlersLock.RUnlock()

	for _, c := range collectors {
		if !c.collector.Collect(rec) {
			t.metrics.spanDropped()
		}
	}

	t.executeHandlers(rec)
}

// AddCollector registers a collector to receive every reported span.
func (t *Tracer) AddCollector(name string, collector *Collector) {
	if collector == nil {
		return
	}
	t.handlersLock.Lock()
	defer t.handlersLock.Unlock()
	t.collectors = append(t.collectors, namedCollector{name: name, collector: collector})
}

// OnSpanComplete registers a synchronous handler called when spans complete.
func (t *Tracer) OnSpanComplete(handler SpanHandler) uint64 {
	return t.registerHandler(handler, false)
}

// OnSpanCompleteAsync registers an asynchronous handler called when spans complete.
func (t *Tracer) OnSpanCompleteAsync(handler SpanHandler) uint64 {
	return t.registerHandler(handler, true)
}

func (t *Tracer) registerHandler(handler SpanHandler, async bool) uint64 {
	if handler == nil {
		return 0
	}

	id := t.nextID.Add(1)

	t.handlersLock.Lock()
	defer t.handlersLock.Unlock()

	t.handlers = append(t.handlers, handlerEntry{
		id:      id,
		handler: handler,
		async:   async,
	})

	return id
}

// RemoveHandler removes a handler by ID.
func (t *Tracer) RemoveHandler(id uint64) {
	t.handlersLock.Lock()
	defer t.handlersLock.Unlock()

	// Preserve order
	for i, h := range t.handlers {
		if h.id == id {
			copy(t.handlers[i:], t.handlers[i+1:])
			t.handlers = t.handlers[:len(t.handlers)-1]
			return
		}
	}
}

// HasHandlers reports whether any handler or collector is registered.
func (t *Tracer) HasHandlers() bool {
	t.handlersLock.RLock()
	defer t.handlersLock.RUnlock()
	return len(t.handlers) > 0 || len(t.collectors) > 0
}

// SetPanicHook sets a function to be called when a handler panics.
func (t *Tracer) SetPanicHook(hook func(handlerID uint64, r interface{})) {
	t.handlersLock.Lock()
	defer t.handlersLock.Unlock()
	t.panicHook = hook
}

// executeHandlers calls all registered handlers with the completed record.
func (t *Tracer) executeHandlers(rec SpanRecord) {
	t.handlersLock.RLock()
	if len(t.handlers) == 0 {
		t.handlersLock.RUnlock()
		return
	}

	handlers := make([]handlerEntry, len(t.handlers))
	copy(handlers, t.handlers)
	workers := t.workers
	t.handlersLock.RUnlock()

	for _, h := range handlers {
		if h.async {
			entry := h
			if workers != nil {
				workers.submit(func() {
					t.safeCall(entry, rec.clone())
				})
			} else {
				go t.safeCall(entry, rec.clone())
			}
		} else {
			t.safeCall(h, rec)
		}
	}
}

func (t *Tracer) safeCall(entry handlerEntry, rec SpanRecord) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("span handler panicked",
				zap.Uint64("handler_id", entry.id),
				zap.Any("panic", r),
				zap.String("trace_id", rec.TraceID),
				zap.String("span_id", rec.SpanID),
			)
			t.handlersLock.RLock()
			hook := t.panicHook
			t.handlersLock.RUnlock()
			if hook != nil {
				hook(entry.id, r)
			}
		}
	}()
	entry.handler(rec)
}

// EnableWorkerPool creates a bounded worker pool for async handlers.
func (t *Tracer) EnableWorkerPool(workers, queueSize int) error {
	if workers <= 0 {
		return errors.New("workers must be > 0")
	}
	if queueSize <= 0 {
		return errors.New("queueSize must be > 0")
	}

	t.handlersLock.Lock()
	defer t.handlersLock.Unlock()

	if t.workers != nil {
		return ErrWorkerPoolEnabled
	}

	pool := &workerPool{
		tasks:   make(chan func(), queueSize),
		stop:    make(chan struct{}),
		dropped: &t.droppedSpans,
		metrics: t.metrics,
	}

	pool.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go pool.run()
	}
	t.workers = pool

	return nil
}

// DroppedSpans returns the number of records dropped due to full worker queue.
func (t *Tracer) DroppedSpans() uint64 {
	return t.droppedSpans.Load()
}

// Close shuts down the tracer gracefully and cleans up resources.
// This should be called when the tracer is no longer needed.
func (t *Tracer) Close() {
	// Stop new handler executions
	t.handlersLock.Lock()
	t.handlers = nil
	collectors := t.collectors
	t.collectors = nil
	workers := t.workers
	t.workers = nil
	t.handlersLock.Unlock()

	// Wait for in-flight async tasks
	if workers != nil {
		workers.shutdown()
	}

	for _, c := range collectors {
		c.collector.Close()
	}

	// Close ID pool, making sure a later StartSpan cannot recreate it.
	t.idPoolOnce.Do(func() {})
	if t.idPool != nil {
		t.idPool.Close()
	}
}

// workerPool manages a fixed number of workers for processing async handlers.
//
//nolint:govet // Field order optimized for functionality over memory
type workerPool struct {
	tasks   chan func()
	stop    chan struct{}
	dropped *atomic.Uint64
	metrics *Metrics
	wg      sync.WaitGroup
}

func (w *workerPool) run() {
	defer w.wg.Done()
	for {
		select {
		case task := <-w.tasks:
			task()
		case <-w.stop:
			return
		}
	}
}

func (w *workerPool) submit(task func()) {
	select {
	case w.tasks <- task:
	default:
		w.dropped.Add(1)
		w.metrics.spanDropped()
	}
}

func (w *workerPool) shutdown() {
	close(w.stop)
	w.wg.Wait()
}
