package rbac

import (
	"time"
)

// Role is a named, reusable permission bundle. TenantID is nil for system
// roles.
type Role struct {
	ID             string        `json:"id"`
	Name           string        `json:"name"`
	TenantID       *string       `json:"tenant_id,omitempty"`
	Permissions    PermissionDoc `json:"permissions"`
	InheritsFrom   *string       `json:"inherits_from,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	LastModifiedAt time.Time     `json:"last_modified_at"`
	LastModifiedBy *string       `json:"last_modified_by,omitempty"`
}

// IsSystem reports whether the role is shared by all tenants
func (r *Role) IsSystem() bool {
	return r.TenantID == nil
}

// VisibleTo reports whether a tenant may reference the role
func (r *Role) VisibleTo(tenantID string) bool {
	return r.TenantID == nil || *r.TenantID == tenantID
}

// UserRole binds a user to one role within one tenant
type UserRole struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	RoleID     string    `json:"role_id"`
	TenantID   string    `json:"tenant_id"`
	AssignedBy *string   `json:"assigned_by,omitempty"`
	AssignedAt time.Time `json:"assigned_at"`
}

// CreateRoleParams are the inputs to Store.CreateRole
type CreateRoleParams struct {
	ID           string
	Name         string
	Permissions  PermissionDoc
	InheritsFrom *string
	TenantID     *string
	ActorID      string
}

// RolePatch changes selected fields of a role. Nil fields are left alone.
type RolePatch struct {
	Name         *string
	Permissions  PermissionDoc
	InheritsFrom *string
	ClearParent  bool
}

// AssignParams are the inputs to Store.AssignRole
type AssignParams struct {
	UserID   string
	TenantID string
	RoleID   string
	ActorID  string
	// Strict fails with DuplicateAssignment when the user already holds
	// RoleID in TenantID.
	Strict bool
}
