// Package observability provides logging, metrics, and tracing.
package observability

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger to provide specialized logging methods.
type Logger struct {
	*slog.Logger
}

// GlobalLogger is the default logger instance for the application.
var GlobalLogger *Logger

func init() {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	GlobalLogger = &Logger{Logger: slog.New(handler)}
}

// SyncLogger provides structured logging for chat sync operations.
type SyncLogger struct {
	component string
	logger    *Logger
}

// NewSyncLogger creates a new SyncLogger for the given component.
func NewSyncLogger(component string) *SyncLogger {
	return &SyncLogger{
		component: component,
		logger:    GlobalLogger,
	}
}

// LogMerge logs a store merge operation.
func (l *SyncLogger) LogMerge(ctx context.Context, conversationID, origin string) {
	l.logger.InfoContext(ctx, "store merge",
		slog.String("component", l.component),
		slog.String("conversation_id", conversationID),
		slog.String("origin", origin),
	)
}

// LogSkip logs a push payload rejected before merge.
func (l *SyncLogger) LogSkip(ctx context.Context, reason string, err error) {
	l.logger.WarnContext(ctx, "push payload skipped",
		slog.String("component", l.component),
		slog.String("reason", reason),
		slog.String("error", err.Error()),
	)
}

// LogError logs a sync-core error.
func (l *SyncLogger) LogError(ctx context.Context, operation string, err error) {
	l.logger.ErrorContext(ctx, "sync error",
		slog.String("component", l.component),
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)
}

// WSLogger provides structured logging for WebSocket operations.
type WSLogger struct {
	name   string
	logger *Logger
}

// NewWSLogger creates a new WSLogger for the given connection owner.
func NewWSLogger(name string) *WSLogger {
	return &WSLogger{
		name:   name,
		logger: GlobalLogger,
	}
}

// LogConnect logs a WebSocket connection event.
func (l *WSLogger) LogConnect(ctx context.Context, userID string) {
	l.logger.InfoContext(ctx, "websocket connected",
		slog.String("owner", l.name),
		slog.String("user_id", userID),
	)
}

// LogDisconnect logs a WebSocket disconnection event.
func (l *WSLogger) LogDisconnect(ctx context.Context, userID string, reason string) {
	l.logger.InfoContext(ctx, "websocket disconnected",
		slog.String("owner", l.name),
		slog.String("user_id", userID),
		slog.String("reason", reason),
	)
}

// LogError logs a WebSocket error event.
func (l *WSLogger) LogError(ctx context.Context, userID string, err error, eventType string) {
	l.logger.ErrorContext(ctx, "websocket error",
		slog.String("owner", l.name),
		slog.String("user_id", userID),
		slog.String("event_type", eventType),
		slog.String("error", err.Error()),
	)
}

// LogEvent logs an incoming WebSocket event.
func (l *WSLogger) LogEvent(ctx context.Context, userID string, eventType string) {
	l.logger.InfoContext(ctx, "websocket event",
		slog.String("owner", l.name),
		slog.String("user_id", userID),
		slog.String("event_type", eventType),
	)
}
