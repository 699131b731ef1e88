package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
)

type Logger struct {
	service  string
	hostname string
	handler  *slog.Logger
}

func New(service string) *Logger {
	return NewWithWriter(service, os.Stdout, slog.LevelDebug)
}

// NewWithWriter builds a logger that writes JSON lines to w.
func NewWithWriter(service string, w io.Writer, level slog.Level) *Logger {
	hostname, _ := os.Hostname()

	handler := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))

	return &Logger{
		service:  service,
		hostname: hostname,
		handler:  handler,
	}
}

type requestIDKey struct{}

// WithRequestID returns a copy of ctx carrying the correlation id.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestIDFromContext returns the correlation id stored in ctx, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// GenerateRequestID returns a fresh correlation id for one request or message.
func GenerateRequestID() string {
	return uuid.NewString()
}

func (l *Logger) attrs(action, requestID string, fields map[string]any) []slog.Attr {
	attrs := []slog.Attr{
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
		slog.String("service", l.service),
		slog.String("hostname", l.hostname),
		slog.String("action", action),
		slog.String("request_id", requestID),
	}
	if len(fields) > 0 {
		details := make([]any, 0, len(fields))
		for k, v := range fields {
			details = append(details, slog.Any(k, v))
		}
		attrs = append(attrs, slog.Group("details", details...))
	}
	return attrs
}

func (l *Logger) Info(action, message, requestID string, fields map[string]any) {
	l.handler.LogAttrs(context.TODO(), slog.LevelInfo, message, l.attrs(action, requestID, fields)...)
}

func (l *Logger) Debug(action, message, requestID string, fields map[string]any) {
	l.handler.LogAttrs(context.TODO(), slog.LevelDebug, message, l.attrs(action, requestID, fields)...)
}

func (l *Logger) Warn(action, message, requestID string, fields map[string]any) {
	l.handler.LogAttrs(context.TODO(), slog.LevelWarn, message, l.attrs(action, requestID, fields)...)
}

func (l *Logger) Error(action, message, requestID string, err error, fields map[string]any) {
	attrs := l.attrs(action, requestID, fields)
	if err != nil {
		attrs = append(attrs, slog.Group("error",
			slog.String("msg", err.Error()),
			slog.String("stack", string(debug.Stack())),
		))
	}
	l.handler.LogAttrs(context.TODO(), slog.LevelError, message, attrs...)
}
