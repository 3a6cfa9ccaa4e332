package guard

import (
	"context"
	"strings"

	"github.com/horecaops/backoffice/pkg/accesserr"
	"github.com/horecaops/backoffice/pkg/audit"
	"github.com/horecaops/backoffice/pkg/principal"
	"github.com/horecaops/backoffice/pkg/rbac"
	"go.opentelemetry.io/otel/attribute"
)

// lookupRoleByName finds a role by name. Base role names are also matched
// through their aliases, so "owner" and "Владелец" find OWNER.
func (g *Guard) lookupRoleByName(ctx context.Context, name string) (*rbac.Role, error) {
	name = strings.TrimSpace(name)
	role, err := g.roles.GetRoleByName(ctx, name)
	if err == nil || !accesserr.IsNotFound(err) {
		return role, err
	}
	if base, perr := principal.ParseRole(name); perr == nil && rbac.IsProtectedRoleName(string(base)) && string(base) != name {
		return g.roles.GetRoleByName(ctx, string(base))
	}
	return nil, err
}

// AssignRole replaces the target user's role in a tenant
func (g *Guard) AssignRole(ctx context.Context, actor *principal.Principal, req AssignRoleRequest) (ur *rbac.UserRole, err error) {
	const op = "guard.AssignRole"
	ctx, span := tracer.Start(ctx, op)
	defer span.End()
	span.SetAttributes(attribute.String("target.user_id", req.UserID), attribute.String("target.tenant_id", req.TenantID))
	defer func() {
		g.observe(ctx, "assign_role", actor, err)
		if !isDenial(err) {
			g.metrics.RecordAssignment(err)
		}
	}()

	if err := RequireAuthenticated(actor); err != nil {
		return nil, err
	}
	if err := g.validateRequest(op, req); err != nil {
		return nil, err
	}

	allowed, err := g.CanAssignRole(ctx, actor, req.TenantID)
	if err != nil {
		return nil, accesserr.Store(op, err)
	}
	if !allowed {
		return nil, accesserr.New(accesserr.Forbidden, op, "user %s may not assign roles in tenant %s", actor.UserID, req.TenantID)
	}

	target, err := g.users.LookupIdentity(ctx, req.UserID)
	if err != nil {
		return nil, accesserr.Store(op, err)
	}
	if target.TenantID != "" && target.TenantID != req.TenantID {
		return nil, accesserr.New(accesserr.Forbidden, op, "user %s belongs to another tenant", req.UserID)
	}

	role, err := g.lookupRoleByName(ctx, req.RoleName)
	if err != nil {
		return nil, accesserr.Store(op, err)
	}
	if !role.VisibleTo(req.TenantID) {
		return nil, accesserr.New(accesserr.Forbidden, op, "role %q belongs to another tenant", role.Name)
	}
	// Only platform owners and existing owners may grant OWNER.
	if role.Name == rbac.BaseRoleOwner && !actor.IsPlatformOwner && !actor.OwnsTenant {
		return nil, accesserr.New(accesserr.Forbidden, op, "only an owner may grant %s", rbac.BaseRoleOwner)
	}
	if !actor.IsPlatformOwner && !actor.OwnsTenant {
		if err := g.checkDelegatedAssignment(ctx, op, actor, req, role); err != nil {
			return nil, err
		}
	}

	ur, err = g.roles.AssignRole(ctx, rbac.AssignParams{
		UserID:   req.UserID,
		TenantID: req.TenantID,
		RoleID:   role.ID,
		ActorID:  actor.UserID,
		Strict:   req.Strict,
	})
	if err != nil {
		return nil, err
	}

	event := audit.NewEvent(ctx, audit.EventTypeRoleAssign, audit.EventStatusSuccess)
	event.ActorID = actor.UserID
	event.TenantID = req.TenantID
	event.ResourceType = audit.ResourceTypeUserRole
	event.ResourceID = req.UserID
	event.Message = "assigned role " + role.Name
	event.Metadata["role_id"] = role.ID
	g.record(ctx, event)

	g.logger.WithFields(map[string]interface{}{
		"actor_id":  actor.UserID,
		"user_id":   req.UserID,
		"tenant_id": req.TenantID,
		"role":      role.Name,
	}).Info("role assigned")
	return ur, nil
}

// checkDelegatedAssignment applies to actors that assign through the
// assignRoles capability rather than ownership: they cannot replace an
// OWNER assignment, and cannot hand out a role granting flags they lack.
func (g *Guard) checkDelegatedAssignment(ctx context.Context, op string, actor *principal.Principal, req AssignRoleRequest, role *rbac.Role) error {
	isOwner, err := g.roles.HoldsRole(ctx, req.UserID, req.TenantID, rbac.BaseRoleOwner)
	if err != nil {
		return accesserr.Store(op, err)
	}
	if isOwner {
		return accesserr.New(accesserr.Forbidden, op, "only an owner may replace the %s assignment of user %s", rbac.BaseRoleOwner, req.UserID)
	}

	doc := role.Permissions
	if role.InheritsFrom != nil {
		parent, err := g.roles.GetRole(ctx, *role.InheritsFrom)
		if err != nil && !accesserr.IsNotFound(err) {
			return accesserr.Store(op, err)
		}
		if parent != nil {
			doc = parent.Permissions.Merge(role.Permissions)
		}
	}
	if !role.IsSystem() {
		doc = doc.WithoutSpecial()
	}

	held, err := g.evaluator.ResolvePermissions(ctx, actor)
	if err != nil {
		return err
	}
	for _, flag := range rbac.AllFlags() {
		cat, key := flag.Split()
		if doc[cat][key] && !held.Has(flag) {
			return accesserr.New(accesserr.Forbidden, op, "role %q grants %s, which user %s does not hold", role.Name, flag, actor.UserID)
		}
	}
	return nil
}

// ListRoles lists the roles the actor may see: system roles plus its
// tenant's roles, or every role for a platform owner.
func (g *Guard) ListRoles(ctx context.Context, actor *principal.Principal) (roles []*rbac.Role, err error) {
	const op = "guard.ListRoles"
	ctx, span := tracer.Start(ctx, op)
	defer span.End()
	defer func() { g.observe(ctx, "list_roles", actor, err) }()

	if err := RequireAuthenticated(actor); err != nil {
		return nil, err
	}
	if actor.IsPlatformOwner {
		return g.roles.ListRoles(ctx, nil)
	}
	if err := g.authorizeTenantAdmin(ctx, op, actor, actor.TenantID, rbac.FlagViewRoles); err != nil {
		return nil, err
	}
	tenantID := actor.TenantID
	return g.roles.ListRoles(ctx, &tenantID)
}

// CreateRole creates a tenant role, or a system role for platform owners
func (g *Guard) CreateRole(ctx context.Context, actor *principal.Principal, req CreateRoleRequest) (role *rbac.Role, err error) {
	const op = "guard.CreateRole"
	ctx, span := tracer.Start(ctx, op)
	defer span.End()
	defer func() { g.observe(ctx, "create_role", actor, err) }()

	if err := RequireAuthenticated(actor); err != nil {
		return nil, err
	}
	if err := g.validateRequest(op, req); err != nil {
		return nil, err
	}

	params := rbac.CreateRoleParams{
		Name:        req.Name,
		Permissions: req.Permissions,
		ActorID:     actor.UserID,
	}
	if req.InheritsFrom != "" {
		parent := req.InheritsFrom
		params.InheritsFrom = &parent
	}

	if req.System {
		if !actor.IsPlatformOwner {
			return nil, accesserr.New(accesserr.Forbidden, op, "only platform owners create system roles")
		}
	} else {
		tenantID := req.TenantID
		if tenantID == "" {
			if err := RequireTenantScoped(actor); err != nil {
				return nil, err
			}
			tenantID = actor.TenantID
		}
		if err := g.authorizeTenantAdmin(ctx, op, actor, tenantID, rbac.FlagCreateRoles); err != nil {
			return nil, err
		}
		params.TenantID = &tenantID
	}

	role, err = g.roles.CreateRole(ctx, params)
	if err != nil {
		return nil, err
	}

	event := audit.NewEvent(ctx, audit.EventTypeRoleCreate, audit.EventStatusSuccess)
	event.ActorID = actor.UserID
	if role.TenantID != nil {
		event.TenantID = *role.TenantID
	}
	event.ResourceType = audit.ResourceTypeRole
	event.ResourceID = role.ID
	event.Message = "created role " + role.Name
	g.record(ctx, event)
	return role, nil
}

// authorizeRoleChange checks the actor may change role
func (g *Guard) authorizeRoleChange(ctx context.Context, op string, actor *principal.Principal, role *rbac.Role, flag rbac.Flag) error {
	if err := RequireAuthenticated(actor); err != nil {
		return err
	}
	if role.IsSystem() {
		if !actor.IsPlatformOwner {
			return accesserr.New(accesserr.Forbidden, op, "system role %q can only be changed by a platform owner", role.Name)
		}
		return nil
	}
	return g.authorizeTenantAdmin(ctx, op, actor, *role.TenantID, flag)
}

// UpdateRole changes a role's name, permissions or parent
func (g *Guard) UpdateRole(ctx context.Context, actor *principal.Principal, roleID string, req UpdateRoleRequest) (role *rbac.Role, err error) {
	const op = "guard.UpdateRole"
	ctx, span := tracer.Start(ctx, op)
	defer span.End()
	defer func() { g.observe(ctx, "update_role", actor, err) }()

	if err := RequireAuthenticated(actor); err != nil {
		return nil, err
	}
	if err := g.validateRequest(op, req); err != nil {
		return nil, err
	}
	current, err := g.roles.GetRole(ctx, roleID)
	if err != nil {
		return nil, err
	}
	if err := g.authorizeRoleChange(ctx, op, actor, current, rbac.FlagEditRoles); err != nil {
		return nil, err
	}

	role, err = g.roles.UpdateRole(ctx, roleID, rbac.RolePatch{
		Name:         req.Name,
		Permissions:  req.Permissions,
		InheritsFrom: req.InheritsFrom,
		ClearParent:  req.ClearParent,
	}, actor.UserID)
	if err != nil {
		return nil, err
	}

	event := audit.NewEvent(ctx, audit.EventTypeRoleUpdate, audit.EventStatusSuccess)
	event.ActorID = actor.UserID
	if role.TenantID != nil {
		event.TenantID = *role.TenantID
	}
	event.ResourceType = audit.ResourceTypeRole
	event.ResourceID = role.ID
	event.Message = "updated role " + role.Name
	g.record(ctx, event)
	return role, nil
}

// DeleteRole deletes an unused, non-base role
func (g *Guard) DeleteRole(ctx context.Context, actor *principal.Principal, roleID string) (err error) {
	const op = "guard.DeleteRole"
	ctx, span := tracer.Start(ctx, op)
	defer span.End()
	defer func() { g.observe(ctx, "delete_role", actor, err) }()

	if err := RequireAuthenticated(actor); err != nil {
		return err
	}
	role, err := g.roles.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	// Base roles are never deletable, whoever asks.
	if rbac.IsProtectedRoleName(role.Name) {
		return accesserr.New(accesserr.ProtectedRole, op, "base role %q cannot be deleted", role.Name)
	}
	if err := g.authorizeRoleChange(ctx, op, actor, role, rbac.FlagDeleteRoles); err != nil {
		return err
	}
	if err := g.roles.DeleteRole(ctx, roleID); err != nil {
		return err
	}

	event := audit.NewEvent(ctx, audit.EventTypeRoleDelete, audit.EventStatusSuccess)
	event.ActorID = actor.UserID
	if role.TenantID != nil {
		event.TenantID = *role.TenantID
	}
	event.ResourceType = audit.ResourceTypeRole
	event.ResourceID = role.ID
	event.Message = "deleted role " + role.Name
	g.record(ctx, event)
	return nil
}
