package guard

import (
	"context"
	"slices"

	"github.com/horecaops/backoffice/pkg/accesserr"
	"github.com/horecaops/backoffice/pkg/principal"
	"github.com/horecaops/backoffice/pkg/rbac"
)

// RequireAuthenticated fails with Unauthorized when there is no principal
func RequireAuthenticated(p *principal.Principal) error {
	if p == nil || p.UserID == "" {
		return accesserr.New(accesserr.Unauthorized, "guard.RequireAuthenticated", "authentication required")
	}
	return nil
}

// RequireTenantScoped fails with NoTenant when the principal has no tenant
func RequireTenantScoped(p *principal.Principal) error {
	if err := RequireAuthenticated(p); err != nil {
		return err
	}
	if !p.HasTenant() {
		return accesserr.New(accesserr.NoTenant, "guard.RequireTenantScoped", "user %s is not scoped to a tenant", p.UserID)
	}
	return nil
}

// RequireStructuralRole fails with Forbidden unless the principal has role
func RequireStructuralRole(p *principal.Principal, role principal.Role) error {
	return RequireAnyStructuralRole(p, role)
}

// RequireAnyStructuralRole fails with Forbidden unless the principal has
// one of roles. OWNER matches a principal holding the OWNER role for its
// tenant.
func RequireAnyStructuralRole(p *principal.Principal, roles ...principal.Role) error {
	if err := RequireAuthenticated(p); err != nil {
		return err
	}
	if slices.Contains(roles, p.StructuralRole) {
		return nil
	}
	if p.OwnsTenant && slices.Contains(roles, principal.RoleOwner) {
		return nil
	}
	return accesserr.New(accesserr.Forbidden, "guard.RequireStructuralRole", "role %s is not one of %v", p.StructuralRole, roles)
}

// RequireCapability fails with Forbidden unless the principal's resolved
// permissions grant flag
func (g *Guard) RequireCapability(ctx context.Context, p *principal.Principal, flag rbac.Flag) (err error) {
	defer func() { g.observe(ctx, "capability:"+string(flag), p, err) }()

	if err := RequireAuthenticated(p); err != nil {
		return err
	}
	ok, err := g.evaluator.HasCapability(ctx, p, flag)
	if err != nil {
		return err
	}
	if !ok {
		return accesserr.New(accesserr.Forbidden, "guard.RequireCapability", "missing capability %s", flag)
	}
	return nil
}

// CanAssignRole reports whether actor may change role assignments in
// targetTenantID: platform owners anywhere, the tenant's OWNER, and tenant
// members granted assignRoles through a custom role. No structural
// default other than PLATFORM_OWNER carries assignRoles.
func (g *Guard) CanAssignRole(ctx context.Context, actor *principal.Principal, targetTenantID string) (bool, error) {
	if err := RequireAuthenticated(actor); err != nil {
		return false, err
	}
	if actor.IsPlatformOwner {
		return true, nil
	}
	if targetTenantID == "" || actor.TenantID != targetTenantID {
		return false, nil
	}
	if actor.OwnsTenant {
		return true, nil
	}
	return g.evaluator.HasCapability(ctx, actor, rbac.FlagAssignRoles)
}

// authorizeTenantAdmin allows platform owners, the tenant's owner, and
// members of tenantID whose permissions grant flag.
func (g *Guard) authorizeTenantAdmin(ctx context.Context, op string, actor *principal.Principal, tenantID string, flag rbac.Flag) error {
	if err := RequireAuthenticated(actor); err != nil {
		return err
	}
	if actor.IsPlatformOwner {
		return nil
	}
	if err := RequireTenantScoped(actor); err != nil {
		return err
	}
	if tenantID != actor.TenantID {
		return accesserr.New(accesserr.Forbidden, op, "tenant %s is outside the actor's tenant", tenantID)
	}
	if actor.OwnsTenant {
		return nil
	}
	ok, err := g.evaluator.HasCapability(ctx, actor, flag)
	if err != nil {
		return err
	}
	if !ok {
		return accesserr.New(accesserr.Forbidden, op, "missing capability %s", flag)
	}
	return nil
}

// requireMatrixOwner checks the actor holds the OWNER role for tenantID by
// an explicit assignment lookup. The platform-owner flag alone does not
// qualify.
func (g *Guard) requireMatrixOwner(ctx context.Context, op string, actor *principal.Principal, tenantID string) error {
	if err := RequireAuthenticated(actor); err != nil {
		return err
	}
	if tenantID == "" {
		return accesserr.New(accesserr.NoTenant, op, "tenant is required")
	}
	owns, err := g.roles.HoldsRole(ctx, actor.UserID, tenantID, rbac.BaseRoleOwner)
	if err != nil {
		return accesserr.Store(op, err)
	}
	if !owns {
		return accesserr.New(accesserr.Forbidden, op, "user %s is not OWNER of tenant %s", actor.UserID, tenantID)
	}
	return nil
}
