package integration

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zoobzio/clockz"
	"github.com/zoobzio/spanz"
)

// MockCollector wraps a real collector with test utilities.
// Provides synchronous collection and verification helpers.
//
//nolint:govet // Field alignment optimized for test helper readability
type MockCollector struct {
	exported []spanz.SpanRecord
	*spanz.Collector
	t  *testing.T
	mu sync.Mutex
}

// NewMockCollector creates a collector for testing.
func NewMockCollector(t *testing.T, name string, bufferSize int) *MockCollector {
	collector := spanz.NewCollector(name, bufferSize)
	collector.SetSyncMode(true) // Enable synchronous collection for testing.
	return &MockCollector{
		Collector: collector,
		t:         t,
		exported:  make([]spanz.SpanRecord, 0),
	}
}

// NewTestTracer creates a tracer with a MockCollector attached. The tracer
// is closed when the test ends.
func NewTestTracer(t *testing.T, service string, opts ...spanz.Option) (*spanz.Tracer, *MockCollector) {
	t.Helper()
	cfg := spanz.DefaultConfig()
	cfg.ServiceName = service
	return NewTestTracerWithConfig(t, cfg, opts...)
}

// NewTestTracerWithConfig is NewTestTracer for a custom config.
func NewTestTracerWithConfig(t *testing.T, cfg spanz.Config, opts ...spanz.Option) (*spanz.Tracer, *MockCollector) {
	t.Helper()
	tracer, err := spanz.New(cfg, opts...)
	if err != nil {
		t.Fatalf("create tracer: %v", err)
	}
	collector := NewMockCollector(t, "test", 1000)
	tracer.AddCollector("test", collector.Collector)
	t.Cleanup(tracer.Close)
	return tracer, collector
}

// NewFakeClockTracer creates a tracer whose timestamps come from a fake
// clock starting at a fixed instant.
func NewFakeClockTracer(t *testing.T, service string) (*spanz.Tracer, *MockCollector, interface {
	clockz.Clock
	Advance(time.Duration)
}) {
	t.Helper()
	clock := clockz.NewFakeClockAt(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	tracer, collector := NewTestTracer(t, service, spanz.WithClock(clock))
	return tracer, collector, clock
}

// Export returns collected records and clears the buffer.
func (m *MockCollector) Export() []spanz.SpanRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	records := m.Collector.Export()
	m.exported = append(m.exported, records...)
	return records
}

// GetAll returns all records exported so far, including the ones still
// buffered.
func (m *MockCollector) GetAll() []spanz.SpanRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := m.Collector.Export()
	if len(current) > 0 {
		m.exported = append(m.exported, current...)
	}

	all := make([]spanz.SpanRecord, len(m.exported))
	copy(all, m.exported)
	return all
}

// AssertSpanCount verifies exact record count.
func (m *MockCollector) AssertSpanCount(expected int) {
	records := m.Export()
	if len(records) != expected {
		m.t.Errorf("Expected %d spans, got %d", expected, len(records))
	}
}

// AssertSpanNamed checks if a record with given name exists.
func (m *MockCollector) AssertSpanNamed(name string) *spanz.SpanRecord {
	records := m.GetAll()
	for i := range records {
		if records[i].Name == name {
			return &records[i]
		}
	}
	m.t.Errorf("Span named '%s' not found", name)
	return nil
}

// AssertParentChild verifies parent-child relationship.
func (m *MockCollector) AssertParentChild(parentName, childName string) {
	records := m.GetAll()
	var parent, child *spanz.SpanRecord

	for i := range records {
		if records[i].Name == parentName {
			parent = &records[i]
		}
		if records[i].Name == childName {
			child = &records[i]
		}
	}

	if parent == nil {
		m.t.Errorf("Parent span '%s' not found", parentName)
		return
	}
	if child == nil {
		m.t.Errorf("Child span '%s' not found", childName)
		return
	}

	if child.ParentID != parent.SpanID {
		m.t.Errorf("Parent-child relationship broken: %s is not parent of %s. Child ParentID=%s, Parent SpanID=%s",
			parentName, childName, child.ParentID, parent.SpanID)
	}
	if child.TraceID != parent.TraceID {
		m.t.Errorf("Trace ID mismatch: parent=%s, child=%s", parent.TraceID, child.TraceID)
	}
}

// SpanTree represents a hierarchical view of span records.
type SpanTree struct {
	Span     spanz.SpanRecord
	Children []*SpanTree
}

// BuildSpanTree constructs a tree from a flat record list.
func BuildSpanTree(records []spanz.SpanRecord) []*SpanTree {
	nodeMap := make(map[string]*SpanTree)
	roots := make([]*SpanTree, 0)

	for i := range records {
		nodeMap[records[i].SpanID] = &SpanTree{
			Span:     records[i],
			Children: make([]*SpanTree, 0),
		}
	}

	for i := range records {
		rec := records[i]
		node := nodeMap[rec.SpanID]
		if rec.ParentID == "" {
			roots = append(roots, node)
		} else if parent, exists := nodeMap[rec.ParentID]; exists {
			parent.Children = append(parent.Children, node)
		}
	}

	return roots
}

// PrintSpanTree formats a span tree for debugging.
func PrintSpanTree(trees []*SpanTree) string {
	var sb strings.Builder
	for _, tree := range trees {
		printTreeNode(&sb, tree, 0)
	}
	return sb.String()
}

func printTreeNode(sb *strings.Builder, node *SpanTree, depth int) {
	indent := strings.Repeat("  ", depth)
	fmt.Fprintf(sb, "%s%s (%.2fms)\n",
		indent, node.Span.Name, node.Span.Duration.Seconds()*1000)
	for _, child := range node.Children {
		printTreeNode(sb, child, depth+1)
	}
}

// MockService simulates a downstream service that joins the caller's
// trace and reads its baggage.
type MockService struct {
	tracer       *spanz.Tracer
	name         string
	mu           sync.Mutex
	requestCount int
	failEvery    int
}

// NewMockService creates a simulated service.
func NewMockService(name string, tracer *spanz.Tracer) *MockService {
	return &MockService{
		name:   name,
		tracer: tracer,
	}
}

// SetFailEvery makes every nth call fail. Zero disables failures.
func (m *MockService) SetFailEvery(n int) {
	m.mu.Lock()
	m.failEvery = n
	m.mu.Unlock()
}

// Call simulates an RPC server handling operation inside the caller's
// trace.
func (m *MockService) Call(ctx context.Context, operation string) error {
	m.mu.Lock()
	m.requestCount++
	count := m.requestCount
	shouldFail := m.failEvery > 0 && count%m.failEvery == 0
	m.mu.Unlock()

	_, span := m.tracer.StartSpan(ctx, fmt.Sprintf("%s.%s", m.name, operation),
		spanz.WithTag(spanz.SpanKindKey, spanz.SpanKindRPCServer),
	)
	defer span.Finish()

	span.SetTag("service", m.name)
	span.SetTag("request_id", count)
	if tenant, ok := span.BaggageItem("tenant"); ok {
		span.SetTag("tenant", tenant)
	}

	if shouldFail {
		span.SetTag(spanz.ErrorKey, true)
		span.LogKV("event", "error", "message", "simulated failure")
		return fmt.Errorf("%s: simulated failure", m.name)
	}
	return nil
}

// SpanMatcher provides fluent assertions for span records.
type SpanMatcher struct {
	t    *testing.T
	span *spanz.SpanRecord
}

// NewSpanMatcher creates a matcher for record assertions.
func NewSpanMatcher(t *testing.T, span *spanz.SpanRecord) *SpanMatcher {
	return &SpanMatcher{t: t, span: span}
}

// HasTag verifies the first tag under key renders to value.
func (m *SpanMatcher) HasTag(key string, value interface{}) *SpanMatcher {
	if m.span == nil {
		return m
	}
	tag, exists := m.span.Tag(key)
	if !exists {
		m.t.Errorf("Span %s missing tag '%s'", m.span.Name, key)
	} else if fmt.Sprint(tag.Value()) != fmt.Sprint(value) {
		m.t.Errorf("Span %s tag '%s': expected '%v', got '%v'",
			m.span.Name, key, value, tag.Value())
	}
	return m
}

// HasParent verifies parent relationship.
func (m *SpanMatcher) HasParent(parentID string) *SpanMatcher {
	if m.span == nil {
		return m
	}
	if m.span.ParentID != parentID {
		m.t.Errorf("Span %s wrong parent: expected %s, got %s",
			m.span.Name, parentID, m.span.ParentID)
	}
	return m
}

// HasDuration verifies the exact recorded duration.
func (m *SpanMatcher) HasDuration(d time.Duration) *SpanMatcher {
	if m.span == nil {
		return m
	}
	if m.span.Duration != d {
		m.t.Errorf("Span %s duration %v, expected %v", m.span.Name, m.span.Duration, d)
	}
	return m
}

// TraceAnalyzer provides trace-level assertions.
type TraceAnalyzer struct {
	byID   map[string]spanz.SpanRecord
	byName map[string][]spanz.SpanRecord
	spans  []spanz.SpanRecord
	trees  []*SpanTree
}

// NewTraceAnalyzer creates an analyzer for a set of records.
func NewTraceAnalyzer(records []spanz.SpanRecord) *TraceAnalyzer {
	a := &TraceAnalyzer{
		spans:  records,
		byID:   make(map[string]spanz.SpanRecord),
		byName: make(map[string][]spanz.SpanRecord),
	}

	for i := range records {
		a.byID[records[i].SpanID] = records[i]
		a.byName[records[i].Name] = append(a.byName[records[i].Name], records[i])
	}

	a.trees = BuildSpanTree(records)
	return a
}

// GetSpan retrieves a record by span ID.
func (a *TraceAnalyzer) GetSpan(spanID string) (spanz.SpanRecord, bool) {
	rec, exists := a.byID[spanID]
	return rec, exists
}

// GetSpansByName retrieves all records with given name.
func (a *TraceAnalyzer) GetSpansByName(name string) []spanz.SpanRecord {
	return a.byName[name]
}

// CountSpans returns total record count.
func (a *TraceAnalyzer) CountSpans() int {
	return len(a.spans)
}

// CountTrees returns number of root spans.
func (a *TraceAnalyzer) CountTrees() int {
	return len(a.trees)
}

// VerifyChain checks if records form a valid parent-child chain.
func (a *TraceAnalyzer) VerifyChain(names ...string) error {
	if len(names) < 2 {
		return fmt.Errorf("chain requires at least 2 spans")
	}

	var prev *spanz.SpanRecord
	for i, name := range names {
		records := a.GetSpansByName(name)
		if len(records) == 0 {
			return fmt.Errorf("span '%s' not found", name)
		}

		// For simplicity, use first match.
		rec := records[0]
		if prev != nil && rec.ParentID != prev.SpanID {
			return fmt.Errorf("broken chain: %s is not child of %s", name, names[i-1])
		}
		prev = &rec
	}

	return nil
}
