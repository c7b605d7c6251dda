package observability

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const serviceName = "linkbot"

type (
	requestIDKey struct{}
	batchIDKey   struct{}
	chatIDKey    struct{}
)

func NewLogger(level string) (*zap.Logger, error) {
	parsedLevel, err := parseLevel(level)
	if err != nil {
		return nil, err
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(parsedLevel)
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.DisableStacktrace = true
	cfg.InitialFields = map[string]any{"service": serviceName}

	logger, err := cfg.Build(zap.AddCaller())
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	return logger, nil
}

func parseLevel(level string) (zapcore.Level, error) {
	var parsed zapcore.Level
	normalized := strings.ToLower(strings.TrimSpace(level))
	if normalized == "" {
		normalized = "info"
	}

	if err := parsed.UnmarshalText([]byte(normalized)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	return parsed, nil
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return withValue(ctx, requestIDKey{}, requestID)
}

func RequestIDFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, requestIDKey{})
}

// WithBatchID tags ctx so that loggers derived from it carry the batch id.
func WithBatchID(ctx context.Context, batchID string) context.Context {
	return withValue(ctx, batchIDKey{}, batchID)
}

func BatchIDFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, batchIDKey{})
}

// WithChatID tags ctx with the chat a batch reports to.
func WithChatID(ctx context.Context, chatID string) context.Context {
	return withValue(ctx, chatIDKey{}, chatID)
}

func ChatIDFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, chatIDKey{})
}

// WithContextLogger returns logger enriched with the ids found in ctx.
func WithContextLogger(logger *zap.Logger, ctx context.Context) *zap.Logger {
	if logger == nil {
		return nil
	}

	fields := make([]zap.Field, 0, 3)
	if requestID, ok := RequestIDFromContext(ctx); ok {
		fields = append(fields, zap.String("requestId", requestID))
	}
	if batchID, ok := BatchIDFromContext(ctx); ok {
		fields = append(fields, zap.String("batchId", batchID))
	}
	if chatID, ok := ChatIDFromContext(ctx); ok {
		fields = append(fields, zap.String("chatId", chatID))
	}
	if len(fields) == 0 {
		return logger
	}

	return logger.With(fields...)
}

func withValue(ctx context.Context, key any, value string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, key, value)
}

func stringValue(ctx context.Context, key any) (string, bool) {
	if ctx == nil {
		return "", false
	}

	value, ok := ctx.Value(key).(string)
	if !ok || value == "" {
		return "", false
	}
	return value, true
}
