// Package activity is the fire-and-forget audit sink consumed by the upload
// broker and ledger. Feed rendering and retention live elsewhere.
package activity

import (
	"context"
	"log/slog"
)

// Event types emitted by this core.
const (
	EventFileUploaded = "file.uploaded"
	EventFileDeleted  = "file.deleted"
	EventFileSynced   = "file.synced"
	EventDriveLinked  = "drive.linked"
)

// Sink records audit events. Implementations must never fail the caller;
// recording is best-effort.
type Sink interface {
	Record(ctx context.Context, eventType, description, actorID string)
}

// LogSink writes events to the structured log.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Record(ctx context.Context, eventType, description, actorID string) {
	s.logger.InfoContext(ctx, "activity",
		"event", eventType,
		"description", description,
		"actor", actorID,
	)
}
