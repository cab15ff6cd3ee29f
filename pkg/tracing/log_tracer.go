package tracing

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// LogTracer emits a zap debug line per span start/finish instead of
// shipping spans to a collector. No tracing SDK appears anywhere in the
// retrieval pack (DESIGN.md), so this is the stand-in real implementation
// behind the Tracer interface; swapping in OpenTelemetry or Jaeger later
// only touches this file.
type LogTracer struct {
	Logger *zap.Logger
}

type logSpan struct {
	logger *zap.Logger
	name   string
	start  time.Time
}

func (s *logSpan) Finish() {
	s.logger.Debug("span finished", zap.String("span", s.name), zap.Duration("elapsed", time.Since(s.start)))
}

func (t *LogTracer) StartSpan(ctx context.Context, name string) (context.Context, Span) {
	t.Logger.Debug("span started", zap.String("span", name))
	return ctx, &logSpan{logger: t.Logger, name: name, start: time.Now()}
}
