// Package tracing times nested operations through context and logs them as
// one structured record per span. There is no exporter.
package tracing

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type ctxKey struct{}

type Span struct {
	Name     string
	TraceID  string
	Start    time.Time
	Duration time.Duration
	Err      error
	Children []*Span

	mu    sync.Mutex
	ended bool
	attrs []slog.Attr
}

func newSpan(name, traceID string) *Span {
	return &Span{Name: name, TraceID: traceID, Start: time.Now()}
}

// StartSpan begins a root span for traceID.
func StartSpan(ctx context.Context, name, traceID string) (context.Context, *Span) {
	s := newSpan(name, traceID)
	return context.WithValue(ctx, ctxKey{}, s), s
}

// StartChildSpan begins a span under the one in ctx. With no parent the span
// is a root with an empty trace id.
func StartChildSpan(ctx context.Context, name string) (context.Context, *Span) {
	parent := SpanFromContext(ctx)
	if parent == nil {
		return StartSpan(ctx, name, "")
	}
	s := newSpan(name, parent.TraceID)
	parent.mu.Lock()
	parent.Children = append(parent.Children, s)
	parent.mu.Unlock()
	return context.WithValue(ctx, ctxKey{}, s), s
}

func SpanFromContext(ctx context.Context) *Span {
	s, _ := ctx.Value(ctxKey{}).(*Span)
	return s
}

// End records the outcome. Only the first call counts.
func (s *Span) End(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.ended = true
	s.Duration = time.Since(s.Start)
	s.Err = err
}

func (s *Span) SetAttr(key string, value any) {
	s.mu.Lock()
	s.attrs = append(s.attrs, slog.Any(key, value))
	s.mu.Unlock()
}

// Log writes the span and its descendants depth first. Failed spans log at
// warn, the rest at debug.
func (s *Span) Log(logger *slog.Logger) {
	s.log(logger, "")
}

func (s *Span) log(logger *slog.Logger, parent string) {
	s.mu.Lock()
	attrs := make([]slog.Attr, 0, len(s.attrs)+5)
	attrs = append(attrs,
		slog.String("trace_id", s.TraceID),
		slog.String("span", s.Name),
		slog.Int64("duration_ms", s.Duration.Milliseconds()),
	)
	if parent != "" {
		attrs = append(attrs, slog.String("parent", parent))
	}
	attrs = append(attrs, s.attrs...)
	level := slog.LevelDebug
	if s.Err != nil {
		level = slog.LevelWarn
		attrs = append(attrs, slog.String("error", s.Err.Error()))
	}
	children := append([]*Span(nil), s.Children...)
	s.mu.Unlock()

	logger.LogAttrs(context.Background(), level, "span", attrs...)
	for _, c := range children {
		c.log(logger, s.Name)
	}
}
