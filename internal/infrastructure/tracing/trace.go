package tracing

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xweng-opaida/agent-viewer/internal/shared/id"
)

type contextKey int

const (
	traceIDKey contextKey = iota
	spanIDKey
)

// TraceID identifies one request's trace.
type TraceID string

// SpanID identifies one operation within a trace.
type SpanID string

// Span is a single timed operation.
type Span struct {
	TraceID   TraceID
	SpanID    SpanID
	ParentID  SpanID
	Name      string
	Service   string
	StartTime time.Time
	Duration  time.Duration
	Tags      map[string]string
	Err       error
}

// Tracer records spans and emits them through the service logger.
type Tracer struct {
	service string
	logger  *zap.Logger
	spans   chan *Span
}

// New creates a tracer that drains finished spans in the background.
func New(service string, logger *zap.Logger) *Tracer {
	t := &Tracer{
		service: service,
		logger:  logger,
		spans:   make(chan *Span, 256),
	}
	go t.drain()
	return t
}

// StartSpan begins a span, inheriting trace context from ctx when present.
func (t *Tracer) StartSpan(ctx context.Context, name string) (*Span, context.Context) {
	traceID, _ := ctx.Value(traceIDKey).(TraceID)
	if traceID == "" {
		traceID = TraceID(id.NewRequestID())
	}
	parentID, _ := ctx.Value(spanIDKey).(SpanID)

	span := &Span{
		TraceID:   traceID,
		SpanID:    SpanID(id.NewRequestID()),
		ParentID:  parentID,
		Name:      name,
		Service:   t.service,
		StartTime: time.Now(),
		Tags:      make(map[string]string),
	}

	ctx = context.WithValue(ctx, traceIDKey, traceID)
	ctx = context.WithValue(ctx, spanIDKey, span.SpanID)
	return span, ctx
}

// SetTag attaches a key/value pair to the span.
func (s *Span) SetTag(key, value string) {
	s.Tags[key] = value
}

// SetError marks the span failed.
func (s *Span) SetError(err error) {
	s.Err = err
}

// Finish computes the duration and hands the span to the collector.
// Spans are dropped rather than blocking the request path when the
// collector is saturated.
func (t *Tracer) Finish(span *Span) {
	span.Duration = time.Since(span.StartTime)
	select {
	case t.spans <- span:
	default:
	}
}

func (t *Tracer) drain() {
	for span := range t.spans {
		fields := []zap.Field{
			zap.String("trace_id", string(span.TraceID)),
			zap.String("span_id", string(span.SpanID)),
			zap.String("span", span.Name),
			zap.Duration("duration", span.Duration),
		}
		for k, v := range span.Tags {
			fields = append(fields, zap.String(k, v))
		}
		if span.Err != nil {
			fields = append(fields, zap.Error(span.Err))
			t.logger.Warn("span finished with error", fields...)
			continue
		}
		t.logger.Debug("span finished", fields...)
	}
}

// TraceIDFromContext extracts the trace id, if any.
func TraceIDFromContext(ctx context.Context) (TraceID, bool) {
	traceID, ok := ctx.Value(traceIDKey).(TraceID)
	return traceID, ok
}
