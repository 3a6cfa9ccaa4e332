package audit

import (
	"context"
	"errors"

	"github.com/horecaops/backoffice/pkg/observability"
)

// MultiLogger writes every event to each of its loggers in order
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger creates a logger that fans out to loggers
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{loggers: loggers}
}

// Log writes event to every logger, continuing past failures, and returns
// the joined errors.
func (m *MultiLogger) Log(ctx context.Context, event *Event) error {
	var errs []error
	for _, logger := range m.loggers {
		if err := logger.Log(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every logger
func (m *MultiLogger) Close() error {
	var errs []error
	for _, logger := range m.loggers {
		if err := logger.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// StructuredLogger mirrors audit events onto the application log
type StructuredLogger struct {
	logger *observability.Logger
}

// NewStructuredLogger creates an audit logger that writes to logger
func NewStructuredLogger(logger *observability.Logger) *StructuredLogger {
	return &StructuredLogger{logger: logger}
}

// Log implements Logger
func (s *StructuredLogger) Log(_ context.Context, event *Event) error {
	entry := s.logger.WithFields(map[string]interface{}{
		"audit_id":      event.ID,
		"event_type":    string(event.EventType),
		"status":        string(event.Status),
		"actor_id":      event.ActorID,
		"tenant_id":     event.TenantID,
		"resource_type": string(event.ResourceType),
		"resource_id":   event.ResourceID,
	})
	if event.ErrorMessage != "" {
		entry = entry.WithField("error", event.ErrorMessage)
	}
	entry.Info(event.Message)
	return nil
}

// Close implements Logger
func (s *StructuredLogger) Close() error {
	return nil
}
