package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/horecaops/backoffice/pkg/contextkeys"
)

// Logger is the interface for audit logging
type Logger interface {
	// Log records an audit event
	Log(ctx context.Context, event *Event) error

	// Close flushes and releases the logger
	Close() error
}

// Searcher reads back recorded events
type Searcher interface {
	Search(ctx context.Context, filter SearchFilter) ([]*Event, error)
}

// NewEvent builds an event stamped with an ID, the current time and the
// request ID carried by ctx.
func NewEvent(ctx context.Context, eventType EventType, status EventStatus) *Event {
	event := &Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Status:    status,
		Metadata:  make(map[string]interface{}),
	}
	if requestID := contextkeys.GetRequestID(ctx); requestID != "" {
		event.Metadata["request_id"] = requestID
	}
	return event
}

// NoopLogger discards every event
type NoopLogger struct{}

// Log implements Logger
func (NoopLogger) Log(context.Context, *Event) error { return nil }

// Close implements Logger
func (NoopLogger) Close() error { return nil }
