package guard

import (
	"context"

	"github.com/horecaops/backoffice/pkg/accesserr"
	"github.com/horecaops/backoffice/pkg/audit"
	"github.com/horecaops/backoffice/pkg/principal"
	"github.com/horecaops/backoffice/pkg/rbac"
	"github.com/horecaops/backoffice/pkg/tenants"
)

// Directory is the tenant, point and user store behind the admin
// operations
type Directory interface {
	principal.UserSource
	CreateTenant(ctx context.Context, name, billingEmail string) (*tenants.Tenant, error)
	ListTenants(ctx context.Context) ([]*tenants.Tenant, error)
	Signup(ctx context.Context, params tenants.SignupParams) (*tenants.SignupResult, error)
	CreateUser(ctx context.Context, params tenants.CreateUserParams) (*tenants.User, error)
	GetUser(ctx context.Context, id string) (*tenants.User, error)
	CreatePoint(ctx context.Context, tenantID, name string) (*tenants.Point, error)
	GetPoint(ctx context.Context, id string) (*tenants.Point, error)
	ListPoints(ctx context.Context, tenantID string, includeInactive bool) ([]*tenants.Point, error)
	SetPointActive(ctx context.Context, id string, active bool) (*tenants.Point, error)
	DeletePoint(ctx context.Context, id string) error
}

func (g *Guard) requireDirectory(op string) error {
	if g.directory == nil {
		return accesserr.New(accesserr.Unknown, op, "no directory configured")
	}
	return nil
}

// RequirePlatformOwner fails with Forbidden unless p is a platform owner
func RequirePlatformOwner(p *principal.Principal) error {
	return RequireStructuralRole(p, principal.RolePlatformOwner)
}

// RequireTenantCapability allows platform owners, the tenant's owner and
// members of tenantID whose permissions grant flag.
func (g *Guard) RequireTenantCapability(ctx context.Context, actor *principal.Principal, tenantID string, flag rbac.Flag) (err error) {
	defer func() { g.observe(ctx, "tenant_capability:"+string(flag), actor, err) }()
	return g.authorizeTenantAdmin(ctx, "guard.RequireTenantCapability", actor, tenantID, flag)
}

// CreateTenant creates an empty tenant. Platform owners only.
func (g *Guard) CreateTenant(ctx context.Context, actor *principal.Principal, req CreateTenantRequest) (tenant *tenants.Tenant, err error) {
	const op = "guard.CreateTenant"
	ctx, span := tracer.Start(ctx, op)
	defer span.End()
	defer func() { g.observe(ctx, "create_tenant", actor, err) }()

	if err := RequirePlatformOwner(actor); err != nil {
		return nil, err
	}
	if err := g.validateRequest(op, req); err != nil {
		return nil, err
	}
	if err := g.requireDirectory(op); err != nil {
		return nil, err
	}

	tenant, err = g.directory.CreateTenant(ctx, req.Name, req.BillingEmail)
	if err != nil {
		return nil, err
	}
	g.recordTenant(ctx, actor, tenant, "created tenant "+tenant.Name)
	return tenant, nil
}

// Signup creates a tenant with its owner account. Platform owners only.
func (g *Guard) Signup(ctx context.Context, actor *principal.Principal, req SignupRequest) (result *tenants.SignupResult, err error) {
	const op = "guard.Signup"
	ctx, span := tracer.Start(ctx, op)
	defer span.End()
	defer func() { g.observe(ctx, "signup", actor, err) }()

	if err := RequirePlatformOwner(actor); err != nil {
		return nil, err
	}
	if err := g.validateRequest(op, req); err != nil {
		return nil, err
	}
	if err := g.requireDirectory(op); err != nil {
		return nil, err
	}

	result, err = g.directory.Signup(ctx, tenants.SignupParams{
		TenantName:   req.TenantName,
		BillingEmail: req.BillingEmail,
		OwnerEmail:   req.OwnerEmail,
		PasswordHash: req.PasswordHash,
	})
	if err != nil {
		return nil, err
	}
	g.recordTenant(ctx, actor, result.Tenant, "signed up tenant "+result.Tenant.Name+" with owner "+result.Owner.Email)
	return result, nil
}

func (g *Guard) recordTenant(ctx context.Context, actor *principal.Principal, tenant *tenants.Tenant, message string) {
	event := audit.NewEvent(ctx, audit.EventTypeTenantCreate, audit.EventStatusSuccess)
	event.ActorID = actor.UserID
	event.TenantID = tenant.ID
	event.ResourceType = audit.ResourceTypeTenant
	event.ResourceID = tenant.ID
	event.Message = message
	g.record(ctx, event)
}

// ListTenants lists every tenant. Platform owners only.
func (g *Guard) ListTenants(ctx context.Context, actor *principal.Principal) (list []*tenants.Tenant, err error) {
	const op = "guard.ListTenants"
	defer func() { g.observe(ctx, "list_tenants", actor, err) }()

	if err := RequirePlatformOwner(actor); err != nil {
		return nil, err
	}
	if err := g.requireDirectory(op); err != nil {
		return nil, err
	}
	return g.directory.ListTenants(ctx)
}

// CreateUser creates an account. Platform-owner accounts and accounts
// outside any tenant need a platform owner; tenant accounts need
// createUsers in that tenant.
func (g *Guard) CreateUser(ctx context.Context, actor *principal.Principal, req CreateUserRequest) (user *tenants.User, err error) {
	const op = "guard.CreateUser"
	ctx, span := tracer.Start(ctx, op)
	defer span.End()
	defer func() { g.observe(ctx, "create_user", actor, err) }()

	if err := RequireAuthenticated(actor); err != nil {
		return nil, err
	}
	if err := g.validateRequest(op, req); err != nil {
		return nil, err
	}
	if err := g.requireDirectory(op); err != nil {
		return nil, err
	}

	tenantID := req.TenantID
	if tenantID == "" && req.PointID != "" {
		point, err := g.directory.GetPoint(ctx, req.PointID)
		if err != nil {
			return nil, err
		}
		tenantID = point.TenantID
	}

	switch {
	case req.PlatformOwner || tenantID == "":
		if err := RequirePlatformOwner(actor); err != nil {
			return nil, err
		}
	default:
		if err := g.authorizeTenantAdmin(ctx, op, actor, tenantID, rbac.FlagCreateUsers); err != nil {
			return nil, err
		}
	}

	user, err = g.directory.CreateUser(ctx, tenants.CreateUserParams{
		Email:           req.Email,
		PasswordHash:    req.PasswordHash,
		IsPlatformOwner: req.PlatformOwner,
		TenantID:        tenantID,
		PointID:         req.PointID,
	})
	if err != nil {
		return nil, err
	}

	event := audit.NewEvent(ctx, audit.EventTypeUserCreate, audit.EventStatusSuccess)
	event.ActorID = actor.UserID
	event.TenantID = tenantID
	event.ResourceType = audit.ResourceTypeUser
	event.ResourceID = user.ID
	event.Message = "created user " + user.Email
	g.record(ctx, event)
	return user, nil
}

// CreatePoint adds a point to a tenant; needs managePoints there
func (g *Guard) CreatePoint(ctx context.Context, actor *principal.Principal, req CreatePointRequest) (point *tenants.Point, err error) {
	const op = "guard.CreatePoint"
	ctx, span := tracer.Start(ctx, op)
	defer span.End()
	defer func() { g.observe(ctx, "create_point", actor, err) }()

	if err := RequireAuthenticated(actor); err != nil {
		return nil, err
	}
	if err := g.validateRequest(op, req); err != nil {
		return nil, err
	}
	if err := g.requireDirectory(op); err != nil {
		return nil, err
	}
	if err := g.authorizeTenantAdmin(ctx, op, actor, req.TenantID, rbac.FlagManagePoints); err != nil {
		return nil, err
	}

	point, err = g.directory.CreatePoint(ctx, req.TenantID, req.Name)
	if err != nil {
		return nil, err
	}
	g.recordPoint(ctx, actor, point, "created point "+point.Name)
	return point, nil
}

// ListPoints lists a tenant's points to its members and platform owners
func (g *Guard) ListPoints(ctx context.Context, actor *principal.Principal, tenantID string, includeInactive bool) (points []*tenants.Point, err error) {
	const op = "guard.ListPoints"
	defer func() { g.observe(ctx, "list_points", actor, err) }()

	if err := RequireAuthenticated(actor); err != nil {
		return nil, err
	}
	if err := g.requireDirectory(op); err != nil {
		return nil, err
	}
	if !actor.IsPlatformOwner {
		if err := RequireTenantScoped(actor); err != nil {
			return nil, err
		}
		if tenantID != actor.TenantID {
			return nil, accesserr.New(accesserr.Forbidden, op, "tenant %s is outside the actor's tenant", tenantID)
		}
	}
	return g.directory.ListPoints(ctx, tenantID, includeInactive)
}

// SetPointActive activates or deactivates a point
func (g *Guard) SetPointActive(ctx context.Context, actor *principal.Principal, pointID string, active bool) (point *tenants.Point, err error) {
	const op = "guard.SetPointActive"
	ctx, span := tracer.Start(ctx, op)
	defer span.End()
	defer func() { g.observe(ctx, "set_point_active", actor, err) }()

	if err := g.authorizePoint(ctx, op, actor, pointID); err != nil {
		return nil, err
	}
	point, err = g.directory.SetPointActive(ctx, pointID, active)
	if err != nil {
		return nil, err
	}

	message := "deactivated point " + point.Name
	if active {
		message = "activated point " + point.Name
	}
	g.recordPoint(ctx, actor, point, message)
	return point, nil
}

// DeletePoint deletes a point no user is attached to
func (g *Guard) DeletePoint(ctx context.Context, actor *principal.Principal, pointID string) (err error) {
	const op = "guard.DeletePoint"
	ctx, span := tracer.Start(ctx, op)
	defer span.End()
	defer func() { g.observe(ctx, "delete_point", actor, err) }()

	if err := g.authorizePoint(ctx, op, actor, pointID); err != nil {
		return err
	}
	point, err := g.directory.GetPoint(ctx, pointID)
	if err != nil {
		return err
	}
	if err := g.directory.DeletePoint(ctx, pointID); err != nil {
		return err
	}
	g.recordPoint(ctx, actor, point, "deleted point "+point.Name)
	return nil
}

func (g *Guard) authorizePoint(ctx context.Context, op string, actor *principal.Principal, pointID string) error {
	if err := RequireAuthenticated(actor); err != nil {
		return err
	}
	if err := g.requireDirectory(op); err != nil {
		return err
	}
	point, err := g.directory.GetPoint(ctx, pointID)
	if err != nil {
		return err
	}
	return g.authorizeTenantAdmin(ctx, op, actor, point.TenantID, rbac.FlagManagePoints)
}

func (g *Guard) recordPoint(ctx context.Context, actor *principal.Principal, point *tenants.Point, message string) {
	event := audit.NewEvent(ctx, audit.EventTypePointUpdate, audit.EventStatusSuccess)
	event.ActorID = actor.UserID
	event.TenantID = point.TenantID
	event.ResourceType = audit.ResourceTypePoint
	event.ResourceID = point.ID
	event.Message = message
	event.Metadata["is_active"] = point.IsActive
	g.record(ctx, event)
}

// InspectUser returns another user's access profile. Users may always
// inspect themselves; otherwise viewUsers in the target's tenant is
// required.
func (g *Guard) InspectUser(ctx context.Context, actor *principal.Principal, userID string) (profile *Profile, err error) {
	const op = "guard.InspectUser"
	defer func() {
		if isDenial(err) {
			g.observe(ctx, "inspect_user", actor, err)
		}
	}()

	if err := RequireAuthenticated(actor); err != nil {
		return nil, err
	}
	if userID == actor.UserID {
		return g.AccessProfile(ctx, actor)
	}

	target, err := g.resolver.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !actor.IsPlatformOwner {
		if !target.HasTenant() {
			return nil, accesserr.New(accesserr.Forbidden, op, "user %s is outside any tenant", userID)
		}
		if err := g.authorizeTenantAdmin(ctx, op, actor, target.TenantID, rbac.FlagViewUsers); err != nil {
			return nil, err
		}
	}
	return g.AccessProfile(ctx, target)
}

// SearchAudit reads the audit trail. Platform owners see every tenant;
// a tenant's owner sees only its own tenant.
func (g *Guard) SearchAudit(ctx context.Context, actor *principal.Principal, filter audit.SearchFilter) (events []*audit.Event, err error) {
	const op = "guard.SearchAudit"
	defer func() { g.observe(ctx, "search_audit", actor, err) }()

	if err := RequireAuthenticated(actor); err != nil {
		return nil, err
	}
	if g.auditReader == nil {
		return nil, accesserr.New(accesserr.Unknown, op, "audit trail is not readable")
	}
	if !actor.IsPlatformOwner {
		if err := RequireTenantScoped(actor); err != nil {
			return nil, err
		}
		if !actor.OwnsTenant {
			return nil, accesserr.New(accesserr.Forbidden, op, "only the tenant owner may read its audit trail")
		}
		filter.TenantID = actor.TenantID
	}
	return g.auditReader.Search(ctx, filter)
}
