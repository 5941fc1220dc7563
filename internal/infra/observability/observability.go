// Package observability provides lightweight tracing and Prometheus
// metrics for the membership service: an in-memory span recorder with
// trace/span ids carried as context.Context values, and the counters and
// gauges surfaced on /metrics. The membership core updates the metrics; it
// does not record spans.
package observability

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ═══════════════════════════════════════════════════════════════════════════
// Trace Spans — Lightweight span tracking without external OTel SDK dependency
// ═══════════════════════════════════════════════════════════════════════════

// SpanKind classifies a span.
type SpanKind int

const (
	SpanInternal SpanKind = iota
	SpanServer
	SpanClient
)

// Span represents a unit of work within a distributed trace.
type Span struct {
	TraceID   string            `json:"trace_id"`
	SpanID    string            `json:"span_id"`
	ParentID  string            `json:"parent_id,omitempty"`
	Operation string            `json:"operation"`
	Kind      SpanKind          `json:"kind"`
	StartTime time.Time         `json:"start_time"`
	EndTime   time.Time         `json:"end_time,omitempty"`
	Duration  time.Duration     `json:"duration,omitempty"`
	Status    SpanStatus        `json:"status"`
	Attrs     map[string]string `json:"attrs,omitempty"`
}

// SpanStatus indicates success/failure.
type SpanStatus int

const (
	SpanOK SpanStatus = iota
	SpanError
)

// ─── Tracer ─────────────────────────────────────────────────────────────────

// Tracer provides lightweight distributed tracing.
// In production, this would wrap OpenTelemetry SDK.
// Phase 3 implementation stores spans in-memory for inspection and export.
type Tracer struct {
	mu       sync.Mutex
	spans    []Span
	maxSpans int
	enabled  bool
}

// TracerConfig configures the tracer.
type TracerConfig struct {
	Enabled  bool
	MaxSpans int // ring buffer size (default 10_000)
}

// DefaultTracerConfig returns production defaults.
func DefaultTracerConfig() TracerConfig {
	return TracerConfig{
		Enabled:  true,
		MaxSpans: 10_000,
	}
}

// NewTracer creates a new tracer.
func NewTracer(cfg TracerConfig) *Tracer {
	return &Tracer{
		spans:    make([]Span, 0, cfg.MaxSpans),
		maxSpans: cfg.MaxSpans,
		enabled:  cfg.Enabled,
	}
}

// StartSpan begins a new span with the given operation name.
// Returns the span (caller must call EndSpan when done).
func (t *Tracer) StartSpan(ctx context.Context, operation string, attrs map[string]string) *Span {
	if !t.enabled {
		return &Span{Operation: operation}
	}

	span := &Span{
		TraceID:   traceIDFromContext(ctx),
		SpanID:    generateID(),
		ParentID:  spanIDFromContext(ctx),
		Operation: operation,
		Kind:      SpanInternal,
		StartTime: time.Now(),
		Status:    SpanOK,
		Attrs:     attrs,
	}

	return span
}

// EndSpan completes a span and records it.
func (t *Tracer) EndSpan(span *Span, err error) {
	if !t.enabled || span == nil {
		return
	}

	span.EndTime = time.Now()
	span.Duration = span.EndTime.Sub(span.StartTime)
	if err != nil {
		span.Status = SpanError
		if span.Attrs == nil {
			span.Attrs = make(map[string]string)
		}
		span.Attrs["error"] = err.Error()
	}

	TracesRecorded.Inc()
	if err != nil {
		TraceErrors.Inc()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	// Ring buffer: overwrite oldest if at capacity
	if len(t.spans) >= t.maxSpans {
		t.spans = t.spans[1:]
	}
	t.spans = append(t.spans, *span)
}

// Spans returns a copy of the recent spans.
func (t *Tracer) Spans(limit int) []Span {
	t.mu.Lock()
	defer t.mu.Unlock()

	if limit <= 0 || limit > len(t.spans) {
		limit = len(t.spans)
	}

	// Return most recent spans
	start := len(t.spans) - limit
	out := make([]Span, limit)
	copy(out, t.spans[start:])
	return out
}

// SpanCount returns the number of recorded spans.
func (t *Tracer) SpanCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.spans)
}

// Reset clears all recorded spans.
func (t *Tracer) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.spans = t.spans[:0]
}

// ─── Context Helpers ────────────────────────────────────────────────────────

type contextKey string

const (
	traceIDKey contextKey = "atomix-trace-id"
	spanIDKey  contextKey = "atomix-span-id"
)

// WithTraceID returns a context with the given trace ID.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// WithSpanID returns a context with the given span ID.
func WithSpanID(ctx context.Context, spanID string) context.Context {
	return context.WithValue(ctx, spanIDKey, spanID)
}

func traceIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDKey).(string); ok {
		return v
	}
	return generateID()
}

func spanIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(spanIDKey).(string); ok {
		return v
	}
	return ""
}

// generateID creates a short unique ID (not cryptographically secure — fine for tracing).
var spanCounter atomic.Int64

func generateID() string {
	n := spanCounter.Add(1)
	return fmt.Sprintf("%s-%d", time.Now().Format("20060102150405"), n)
}

// ═══════════════════════════════════════════════════════════════════════════
// Prometheus Metrics
// ═══════════════════════════════════════════════════════════════════════════

// ─── Registry Metrics ───────────────────────────────────────────────────────

// MembersByState tracks the current registry size broken down by state.
var MembersByState = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "atomix",
	Subsystem: "membership",
	Name:      "members",
	Help:      "Current number of registry members by state.",
}, []string{"state"})

// EventsEmitted tracks membership events posted to the event bus by type.
var EventsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "atomix",
	Subsystem: "membership",
	Name:      "events_total",
	Help:      "Total membership events emitted, by event type.",
}, []string{"type"})

// ─── Failure Detector Metrics ───────────────────────────────────────────────

// ProbesTotal tracks direct and indirect probe outcomes.
var ProbesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "atomix",
	Subsystem: "detector",
	Name:      "probes_total",
	Help:      "Total probes sent, by kind (direct, indirect) and outcome (success, failure).",
}, []string{"kind", "outcome"})

// SuspectPromotions tracks SUSPECT -> DEAD promotions from the suspicion
// timeout.
var SuspectPromotions = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "atomix",
	Subsystem: "detector",
	Name:      "suspect_promotions_total",
	Help:      "Total members promoted from SUSPECT to DEAD by the suspicion timeout.",
})

// DisputesTotal tracks dispute-triggered local term advances.
var DisputesTotal = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "atomix",
	Subsystem: "detector",
	Name:      "disputes_total",
	Help:      "Total local term advances triggered by a hostile probe.",
})

// ─── Gossip Metrics ─────────────────────────────────────────────────────────

// GossipRoundsTotal tracks completed gossip fanout rounds.
var GossipRoundsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "atomix",
	Subsystem: "gossip",
	Name:      "rounds_total",
	Help:      "Total gossip fanout rounds completed.",
})

// GossipUpdatesSent tracks the number of ImmutableMember updates
// transmitted via gossip or broadcast.
var GossipUpdatesSent = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "atomix",
	Subsystem: "gossip",
	Name:      "updates_sent_total",
	Help:      "Total update entries transmitted, by dissemination kind (fanout, broadcast, notify).",
}, []string{"kind"})

// GossipQueueDepth tracks the current size of the pending update queue.
var GossipQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "atomix",
	Subsystem: "gossip",
	Name:      "queue_depth",
	Help:      "Current number of updates pending in the gossip queue.",
})

// ─── Trace Metrics ──────────────────────────────────────────────────────────

// TracesRecorded tracks total spans recorded.
var TracesRecorded = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "atomix",
	Subsystem: "traces",
	Name:      "spans_recorded_total",
	Help:      "Total trace spans recorded.",
})

// TraceErrors tracks error spans.
var TraceErrors = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "atomix",
	Subsystem: "traces",
	Name:      "error_spans_total",
	Help:      "Total trace spans with error status.",
})
