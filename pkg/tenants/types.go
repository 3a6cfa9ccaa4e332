package tenants

import (
	"strings"
	"time"
)

// Tenant is a customer organization. Tenants are never hard-deleted.
type Tenant struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	BillingEmail string    `json:"billing_email,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Point is a physical location of a tenant
type Point struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// User is a back-office account. Its structural role is derived from
// IsPlatformOwner, TenantID and PointID and is never stored.
type User struct {
	ID              string    `json:"id"`
	Email           string    `json:"email"`
	PasswordHash    string    `json:"-"`
	IsPlatformOwner bool      `json:"is_platform_owner"`
	TenantID        *string   `json:"tenant_id,omitempty"`
	PointID         *string   `json:"point_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// CreateUserParams are the inputs to Store.CreateUser
type CreateUserParams struct {
	ID              string
	Email           string
	PasswordHash    string
	IsPlatformOwner bool
	TenantID        string
	PointID         string
}

// SignupParams create a tenant together with its owner account
type SignupParams struct {
	TenantName   string
	BillingEmail string
	OwnerEmail   string
	PasswordHash string
}

// SignupResult is what Signup created
type SignupResult struct {
	Tenant *Tenant `json:"tenant"`
	Owner  *User   `json:"owner"`
}

// NormalizeEmail lower-cases and trims an address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
