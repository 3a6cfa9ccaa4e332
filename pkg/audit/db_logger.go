package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

const eventColumns = "id, timestamp, event_type, status, actor_id, tenant_id, resource_type, resource_id, message, error_message, metadata"

// DBLogger writes audit events to the audit_logs table
type DBLogger struct {
	db  *sql.DB
	sql sq.StatementBuilderType
}

// NewDBLogger creates a new database-backed audit logger. The audit_logs
// table is created by the schema migrations.
func NewDBLogger(db *sql.DB) (*DBLogger, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return &DBLogger{db: db, sql: sq.StatementBuilder.PlaceholderFormat(sq.Dollar)}, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Log inserts an audit event
func (l *DBLogger) Log(ctx context.Context, event *Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	var metadataJSON sql.NullString
	if len(event.Metadata) > 0 {
		raw, err := json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		metadataJSON = sql.NullString{String: string(raw), Valid: true}
	}

	query := `
		INSERT INTO audit_logs (
			id, timestamp, event_type, status,
			actor_id, tenant_id,
			resource_type, resource_id,
			message, error_message, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := l.db.ExecContext(ctx, query,
		event.ID, event.Timestamp, string(event.EventType), string(event.Status),
		nullString(event.ActorID), nullString(event.TenantID),
		nullString(string(event.ResourceType)), nullString(event.ResourceID),
		nullString(event.Message), nullString(event.ErrorMessage), metadataJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}
	return nil
}

// Search returns audit events matching filter, newest first
func (l *DBLogger) Search(ctx context.Context, filter SearchFilter) ([]*Event, error) {
	where := sq.And{}
	if filter.StartTime != nil {
		where = append(where, sq.GtOrEq{"timestamp": *filter.StartTime})
	}
	if filter.EndTime != nil {
		where = append(where, sq.LtOrEq{"timestamp": *filter.EndTime})
	}
	if filter.ActorID != "" {
		where = append(where, sq.Eq{"actor_id": filter.ActorID})
	}
	if filter.TenantID != "" {
		where = append(where, sq.Eq{"tenant_id": filter.TenantID})
	}
	if len(filter.EventTypes) > 0 {
		types := make([]string, len(filter.EventTypes))
		for i, t := range filter.EventTypes {
			types[i] = string(t)
		}
		where = append(where, sq.Eq{"event_type": types})
	}
	if filter.Status != nil {
		where = append(where, sq.Eq{"status": string(*filter.Status)})
	}
	if filter.ResourceType != "" {
		where = append(where, sq.Eq{"resource_type": string(filter.ResourceType)})
	}
	if filter.ResourceID != "" {
		where = append(where, sq.Eq{"resource_id": filter.ResourceID})
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	builder := l.sql.Select(eventColumns).
		From("audit_logs").
		OrderBy("timestamp DESC", "id").
		Limit(uint64(limit))
	if len(where) > 0 {
		builder = builder.Where(where)
	}
	if filter.Offset > 0 {
		builder = builder.Offset(uint64(filter.Offset))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build audit query: %w", err)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search audit logs: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var event Event
		var eventType, status string
		var actorID, tenantID, resourceType, resourceID, message, errorMessage, metadata sql.NullString
		if err := rows.Scan(
			&event.ID, &event.Timestamp, &eventType, &status,
			&actorID, &tenantID, &resourceType, &resourceID,
			&message, &errorMessage, &metadata,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}

		event.EventType = EventType(eventType)
		event.Status = EventStatus(status)
		event.ActorID = actorID.String
		event.TenantID = tenantID.String
		event.ResourceType = ResourceType(resourceType.String)
		event.ResourceID = resourceID.String
		event.Message = message.String
		event.ErrorMessage = errorMessage.String
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &event.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}
		events = append(events, &event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit logs: %w", err)
	}
	return events, nil
}

// Close implements Logger. The connection belongs to the caller.
func (l *DBLogger) Close() error {
	return nil
}
