// Package audit records who changed roles, assignments and page visibility,
// and every denied authorization decision.
//
// # Loggers
//
// DBLogger writes to the audit_logs table created by the schema
// migrations and supports Search. StructuredLogger mirrors events onto the
// application log. MultiLogger fans out to several loggers, and NoopLogger
// discards everything.
//
// # Usage
//
//	logger, err := audit.NewDBLogger(db)
//	event := audit.NewEvent(ctx, audit.EventTypeRoleAssign, audit.EventStatusSuccess)
//	event.ActorID = actor.UserID
//	event.TenantID = tenantID
//	event.ResourceType = audit.ResourceTypeUserRole
//	event.ResourceID = targetUserID
//	logger.Log(ctx, event)
//
// Audit write failures never fail the audited operation; callers log them
// and continue.
package audit
