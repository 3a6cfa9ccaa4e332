// Package principal turns a persisted user identity into the Principal every
// access decision is made against.
package principal

import (
	"context"

	"github.com/horecaops/backoffice/pkg/accesserr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("github.com/horecaops/backoffice/pkg/principal")

// Principal is the resolved identity of the caller
type Principal struct {
	UserID          string `json:"user_id"`
	TenantID        string `json:"tenant_id,omitempty"`
	PointID         string `json:"point_id,omitempty"`
	IsPlatformOwner bool   `json:"is_platform_owner"`
	StructuralRole  Role   `json:"structural_role"`
	// OwnsTenant is true when the user holds the OWNER named role in TenantID
	// (or in the target tenant for ResolveForTenant).
	OwnsTenant bool `json:"owns_tenant"`
}

// HasTenant reports whether the principal is scoped to a tenant
func (p *Principal) HasTenant() bool {
	return p != nil && p.TenantID != ""
}

// HasPoint reports whether the principal is attached to a point
func (p *Principal) HasPoint() bool {
	return p != nil && p.PointID != ""
}

// PageRole is the role the page matrix is consulted with
func (p *Principal) PageRole() Role {
	if p.IsPlatformOwner || p.OwnsTenant {
		return RoleOwner
	}
	return p.StructuralRole
}

// Identity is the persisted relationship data a principal is derived from
type Identity struct {
	UserID          string
	TenantID        string
	PointID         string
	IsPlatformOwner bool
}

// UserSource loads identities by user ID. It returns an accesserr NotFound
// error when the user does not exist.
type UserSource interface {
	LookupIdentity(ctx context.Context, userID string) (*Identity, error)
}

// OwnershipSource answers whether a user holds a named role in a tenant
type OwnershipSource interface {
	HoldsRole(ctx context.Context, userID, tenantID, roleName string) (bool, error)
}

// Resolver builds principals from the user directory and role assignments
type Resolver struct {
	users     UserSource
	ownership OwnershipSource
}

// NewResolver creates a new principal resolver
func NewResolver(users UserSource, ownership OwnershipSource) *Resolver {
	return &Resolver{users: users, ownership: ownership}
}

// Resolve loads the principal for userID, evaluating ownership against the
// user's own tenant.
func (r *Resolver) Resolve(ctx context.Context, userID string) (*Principal, error) {
	return r.resolve(ctx, "principal.Resolve", userID, "")
}

// ResolveForTenant loads the principal for userID, evaluating ownership
// against tenantID instead of the user's own tenant.
func (r *Resolver) ResolveForTenant(ctx context.Context, userID, tenantID string) (*Principal, error) {
	return r.resolve(ctx, "principal.ResolveForTenant", userID, tenantID)
}

func (r *Resolver) resolve(ctx context.Context, op, userID, ownershipTenant string) (*Principal, error) {
	ctx, span := tracer.Start(ctx, op)
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	if userID == "" {
		return nil, accesserr.New(accesserr.Unauthorized, op, "no authenticated user")
	}

	ident, err := r.users.LookupIdentity(ctx, userID)
	if err != nil {
		span.RecordError(err)
		return nil, accesserr.Store(op, err)
	}

	p := FromIdentity(ident)
	if ownershipTenant == "" {
		ownershipTenant = p.TenantID
	}
	if ownershipTenant != "" {
		owns, err := r.ownership.HoldsRole(ctx, userID, ownershipTenant, string(RoleOwner))
		if err != nil {
			span.RecordError(err)
			return nil, accesserr.Store(op, err)
		}
		p.OwnsTenant = owns
	}

	span.SetAttributes(attribute.String("principal.structural_role", string(p.StructuralRole)))
	return p, nil
}

// FromIdentity builds a principal without consulting role assignments
func FromIdentity(ident *Identity) *Principal {
	return &Principal{
		UserID:          ident.UserID,
		TenantID:        ident.TenantID,
		PointID:         ident.PointID,
		IsPlatformOwner: ident.IsPlatformOwner,
		StructuralRole:  InferStructuralRole(ident.IsPlatformOwner, ident.TenantID != "", ident.PointID != ""),
	}
}

// Claims are already-verified session claims supplied by an upstream
// authenticator
type Claims struct {
	UserID          string `json:"sub"`
	TenantID        string `json:"tenant_id,omitempty"`
	PointID         string `json:"point_id,omitempty"`
	IsPlatformOwner bool   `json:"is_platform_owner"`
	OwnsTenant      bool   `json:"owns_tenant"`
}

// FromClaims builds a principal from verified claims without a store read
func FromClaims(c Claims) (*Principal, error) {
	if c.UserID == "" {
		return nil, accesserr.New(accesserr.Unauthorized, "principal.FromClaims", "claims carry no subject")
	}
	p := FromIdentity(&Identity{
		UserID:          c.UserID,
		TenantID:        c.TenantID,
		PointID:         c.PointID,
		IsPlatformOwner: c.IsPlatformOwner,
	})
	p.OwnsTenant = c.OwnsTenant && c.TenantID != ""
	return p, nil
}
