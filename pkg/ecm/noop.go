package ecm

import (
	"context"
	"log/slog"
)

// NoopEventSink is a no-operation implementation of EventSink
type NoopEventSink struct{}

// NewNoopEventSink creates a new no-operation event sink
func NewNoopEventSink() EventSink {
	return &NoopEventSink{}
}

// ContentSaved does nothing and returns nil
func (n *NoopEventSink) ContentSaved(ctx context.Context, item *ContentItem) error {
	return nil
}

// ContentMoved does nothing and returns nil
func (n *NoopEventSink) ContentMoved(ctx context.Context, item *ContentItem, fromPath string) error {
	return nil
}

// ContentDeleted does nothing and returns nil
func (n *NoopEventSink) ContentDeleted(ctx context.Context, path string) error {
	return nil
}

// VersionDeleted does nothing and returns nil
func (n *NoopEventSink) VersionDeleted(ctx context.Context, path, label string) error {
	return nil
}

// LoggingEventSink writes every event to a structured logger
// Useful for development and debugging
type LoggingEventSink struct {
	logger *slog.Logger
}

// NewLoggingEventSink creates a new logging event sink. A nil logger uses slog.Default.
func NewLoggingEventSink(logger *slog.Logger) EventSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingEventSink{logger: logger}
}

func (l *LoggingEventSink) ContentSaved(ctx context.Context, item *ContentItem) error {
	l.logger.InfoContext(ctx, "content saved", "path", item.Path, "view_id", item.ViewID, "language", item.Language)
	return nil
}

func (l *LoggingEventSink) ContentMoved(ctx context.Context, item *ContentItem, fromPath string) error {
	l.logger.InfoContext(ctx, "content moved", "from", fromPath, "to", item.Path, "view_id", item.ViewID)
	return nil
}

func (l *LoggingEventSink) ContentDeleted(ctx context.Context, path string) error {
	l.logger.InfoContext(ctx, "content deleted", "path", path)
	return nil
}

func (l *LoggingEventSink) VersionDeleted(ctx context.Context, path, label string) error {
	l.logger.InfoContext(ctx, "version deleted", "path", path, "label", label)
	return nil
}
