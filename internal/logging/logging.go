// Package logging holds the process-wide zap logger. Helpers take a
// context so log lines carry the active trace and span ids.
package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var logger = zap.NewNop()

// Init replaces the package logger. The returned function flushes buffered
// entries and is meant to be deferred from main.
func Init(serviceName string) func() {
	l, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	logger = l.With(zap.String("service", serviceName))
	zap.ReplaceGlobals(logger)
	return func() {
		_ = logger.Sync()
	}
}

// L returns the package logger enriched with trace context, when present.
func L(ctx context.Context) *zap.Logger {
	span := trace.SpanFromContext(ctx)
	if sc := span.SpanContext(); sc.IsValid() {
		return logger.With(
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	return logger
}

func Info(ctx context.Context, msg string, fields ...zap.Field) {
	L(ctx).Info(msg, fields...)
}

func Warn(ctx context.Context, msg string, fields ...zap.Field) {
	L(ctx).Warn(msg, fields...)
}

func Error(ctx context.Context, msg string, err error, fields ...zap.Field) {
	L(ctx).Error(msg, append(fields, zap.Error(err))...)
}

func Fatal(ctx context.Context, msg string, err error, fields ...zap.Field) {
	L(ctx).Fatal(msg, append(fields, zap.Error(err))...)
}
