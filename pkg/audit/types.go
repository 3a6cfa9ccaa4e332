package audit

import (
	"time"
)

// EventType represents the category of audit event
type EventType string

const (
	// Authorization events
	EventTypeRoleCreate       EventType = "authz.role_create"
	EventTypeRoleUpdate       EventType = "authz.role_update"
	EventTypeRoleDelete       EventType = "authz.role_delete"
	EventTypeRoleAssign       EventType = "authz.role_assign"
	EventTypePageMatrixUpdate EventType = "authz.page_matrix_update"
	EventTypeAccessDenied     EventType = "authz.access_denied"

	// Admin events
	EventTypeTenantCreate EventType = "admin.tenant_create"
	EventTypePointUpdate  EventType = "admin.point_update"
	EventTypeUserCreate   EventType = "admin.user_create"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// ResourceType represents the type of resource being acted on
type ResourceType string

const (
	ResourceTypeRole       ResourceType = "role"
	ResourceTypeUserRole   ResourceType = "user_role"
	ResourceTypePageMatrix ResourceType = "page_matrix"
	ResourceTypeTenant     ResourceType = "tenant"
	ResourceTypePoint      ResourceType = "point"
	ResourceTypeUser       ResourceType = "user"
)

// Event represents a single audit log entry
type Event struct {
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// Actor information
	ActorID  string `json:"actor_id,omitempty"`
	TenantID string `json:"tenant_id,omitempty"`

	// Resource information
	ResourceType ResourceType `json:"resource_type,omitempty"`
	ResourceID   string       `json:"resource_id,omitempty"`

	// Additional details
	Message      string                 `json:"message,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// SearchFilter represents filters for searching audit logs
type SearchFilter struct {
	// Time range
	StartTime *time.Time
	EndTime   *time.Time

	ActorID    string
	TenantID   string
	EventTypes []EventType
	Status     *EventStatus

	ResourceType ResourceType
	ResourceID   string

	// Pagination
	Limit  int
	Offset int
}
