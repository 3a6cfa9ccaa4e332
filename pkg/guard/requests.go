package guard

import (
	"github.com/horecaops/backoffice/pkg/pageaccess"
	"github.com/horecaops/backoffice/pkg/principal"
	"github.com/horecaops/backoffice/pkg/rbac"
)

// AssignRoleRequest names the user, tenant and role of an assignment
type AssignRoleRequest struct {
	UserID   string `json:"user_id" validate:"required"`
	TenantID string `json:"tenant_id" validate:"required"`
	RoleName string `json:"role_name" validate:"required,max=100"`
	// Strict rejects re-assigning the role the user already holds
	Strict bool `json:"strict,omitempty"`
}

// CreateRoleRequest describes a new role. An empty TenantID means the
// actor's tenant; System creates a role shared by every tenant.
type CreateRoleRequest struct {
	Name         string             `json:"name" validate:"required,max=100"`
	TenantID     string             `json:"tenant_id,omitempty"`
	System       bool               `json:"system,omitempty"`
	Permissions  rbac.PermissionDoc `json:"permissions,omitempty"`
	InheritsFrom string             `json:"inherits_from,omitempty"`
}

// UpdateRoleRequest changes selected fields of a role
type UpdateRoleRequest struct {
	Name         *string            `json:"name,omitempty" validate:"omitempty,min=1,max=100"`
	Permissions  rbac.PermissionDoc `json:"permissions,omitempty"`
	InheritsFrom *string            `json:"inherits_from,omitempty"`
	ClearParent  bool               `json:"clear_parent,omitempty"`
}

// SetPageMatrixRequest is a batch of page visibility changes
type SetPageMatrixRequest struct {
	TenantID string              `json:"tenant_id" validate:"required"`
	Role     principal.Role      `json:"role" validate:"required"`
	Updates  []pageaccess.Update `json:"updates" validate:"required,min=1,dive"`
}

// CreateTenantRequest names a new tenant
type CreateTenantRequest struct {
	Name         string `json:"name" validate:"required,max=200"`
	BillingEmail string `json:"billing_email,omitempty" validate:"omitempty,email"`
}

// SignupRequest creates a tenant together with its owner account
type SignupRequest struct {
	TenantName   string `json:"tenant_name" validate:"required,max=200"`
	BillingEmail string `json:"billing_email,omitempty" validate:"omitempty,email"`
	OwnerEmail   string `json:"owner_email" validate:"required,email"`
	PasswordHash string `json:"-"`
}

// CreateUserRequest describes a new account. A PointID without a TenantID
// places the user in the point's tenant.
type CreateUserRequest struct {
	Email         string `json:"email" validate:"required,email"`
	TenantID      string `json:"tenant_id,omitempty"`
	PointID       string `json:"point_id,omitempty"`
	PlatformOwner bool   `json:"platform_owner,omitempty"`
	PasswordHash  string `json:"-"`
}

// CreatePointRequest names a new point of a tenant
type CreatePointRequest struct {
	TenantID string `json:"tenant_id" validate:"required"`
	Name     string `json:"name" validate:"required,max=200"`
}
