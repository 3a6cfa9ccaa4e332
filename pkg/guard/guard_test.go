package guard

import (
	"context"
	"errors"
	"testing"

	"github.com/horecaops/backoffice/pkg/accesserr"
	"github.com/horecaops/backoffice/pkg/audit"
	"github.com/horecaops/backoffice/pkg/db/dbtest"
	"github.com/horecaops/backoffice/pkg/observability"
	"github.com/horecaops/backoffice/pkg/pageaccess"
	"github.com/horecaops/backoffice/pkg/principal"
	"github.com/horecaops/backoffice/pkg/rbac"
	"github.com/horecaops/backoffice/pkg/tenants"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	guard   *Guard
	roles   *rbac.Store
	dir     *tenants.Store
	audit   *audit.DBLogger
	metrics *observability.Metrics

	tenant1, tenant2 string
	point1           string

	owner, otherOwner, partner, point, employee, platform *principal.Principal
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	conn := dbtest.NewSQLite(t)

	f := &fixture{
		roles:   rbac.NewStore(conn),
		dir:     tenants.NewStore(conn),
		metrics: observability.NewMetrics(prometheus.NewRegistry()),
	}
	_, err := f.roles.SeedBaseRoles(ctx)
	require.NoError(t, err)

	f.audit, err = audit.NewDBLogger(conn)
	require.NoError(t, err)

	registry, err := pageaccess.NewRegistry([]pageaccess.MenuItem{
		{Slug: "dashboard", Label: "Dashboard", System: true},
		{Slug: "labeling", Label: "Labeling"},
		{Slug: "reports", Label: "Reports"},
		{Slug: "roles", Label: "Roles", System: true},
	})
	require.NoError(t, err)

	f.guard = New(Deps{
		Users:   f.dir,
		Roles:   f.roles,
		Matrix:  pageaccess.NewMatrix(registry, pageaccess.NewStore(conn)),
		Audit:   f.audit,
		Metrics: f.metrics,
	})

	s1, err := f.dir.Signup(ctx, tenants.SignupParams{TenantName: "Cafe One", OwnerEmail: "owner1@example.com"})
	require.NoError(t, err)
	s2, err := f.dir.Signup(ctx, tenants.SignupParams{TenantName: "Bistro Two", OwnerEmail: "owner2@example.com"})
	require.NoError(t, err)
	f.tenant1, f.tenant2 = s1.Tenant.ID, s2.Tenant.ID

	p1, err := f.dir.CreatePoint(ctx, f.tenant1, "Main Street")
	require.NoError(t, err)
	f.point1 = p1.ID

	mkUser := func(params tenants.CreateUserParams) string {
		u, err := f.dir.CreateUser(ctx, params)
		require.NoError(t, err)
		return u.ID
	}
	partnerID := mkUser(tenants.CreateUserParams{Email: "partner@example.com", TenantID: f.tenant1})
	pointID := mkUser(tenants.CreateUserParams{Email: "point@example.com", PointID: f.point1})
	employeeID := mkUser(tenants.CreateUserParams{Email: "staff@example.com"})
	platformID := mkUser(tenants.CreateUserParams{Email: "root@example.com", IsPlatformOwner: true})

	resolve := func(userID string) *principal.Principal {
		p, err := f.guard.ResolvePrincipal(ctx, userID)
		require.NoError(t, err)
		return p
	}
	f.owner = resolve(s1.Owner.ID)
	f.otherOwner = resolve(s2.Owner.ID)
	f.partner = resolve(partnerID)
	f.point = resolve(pointID)
	f.employee = resolve(employeeID)
	f.platform = resolve(platformID)
	return f
}

func (f *fixture) createRole(t *testing.T, actor *principal.Principal, name string, flags map[rbac.Flag]bool) *rbac.Role {
	t.Helper()
	role, err := f.guard.CreateRole(context.Background(), actor, CreateRoleRequest{
		Name:        name,
		Permissions: rbac.DocFromFlags(flags),
	})
	require.NoError(t, err)
	return role
}

func isKind(t *testing.T, err error, kind accesserr.Kind) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, kind, accesserr.KindOf(err), "got %v", err)
}

func TestFixturePrincipals(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, principal.RolePartner, f.owner.StructuralRole)
	assert.True(t, f.owner.OwnsTenant)
	assert.Equal(t, principal.RolePartner, f.partner.StructuralRole)
	assert.False(t, f.partner.OwnsTenant)
	assert.Equal(t, principal.RolePoint, f.point.StructuralRole)
	assert.Equal(t, principal.RoleEmployee, f.employee.StructuralRole)
	assert.Equal(t, principal.RolePlatformOwner, f.platform.StructuralRole)
}

func TestResolvePrincipal_Unresolvable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.guard.ResolvePrincipal(ctx, "")
	isKind(t, err, accesserr.Unauthorized)

	_, err = f.guard.ResolvePrincipal(ctx, "ghost")
	isKind(t, err, accesserr.NotFound)

	_, err = f.guard.AuthenticateUser(ctx, "ghost")
	isKind(t, err, accesserr.Unauthorized)
	assert.True(t, accesserr.IsNotFound(errors.Unwrap(err)), "cause is kept: %v", err)

	p, err := f.guard.AuthenticateUser(ctx, f.owner.UserID)
	require.NoError(t, err)
	assert.True(t, p.OwnsTenant)
}

func TestStructuralPredicates(t *testing.T) {
	f := newFixture(t)

	isKind(t, RequireAuthenticated(nil), accesserr.Unauthorized)
	isKind(t, RequireAuthenticated(&principal.Principal{}), accesserr.Unauthorized)
	assert.NoError(t, RequireAuthenticated(f.employee))

	isKind(t, RequireTenantScoped(f.employee), accesserr.NoTenant)
	isKind(t, RequireTenantScoped(f.platform), accesserr.NoTenant)
	assert.NoError(t, RequireTenantScoped(f.point))

	assert.NoError(t, RequireStructuralRole(f.owner, principal.RoleOwner), "explicit OWNER assignment counts as OWNER")
	assert.NoError(t, RequireStructuralRole(f.owner, principal.RolePartner))
	isKind(t, RequireStructuralRole(f.partner, principal.RoleOwner), accesserr.Forbidden)
	isKind(t, RequireAnyStructuralRole(f.point, principal.RolePartner, principal.RoleOwner), accesserr.Forbidden)
	assert.NoError(t, RequireAnyStructuralRole(f.point, principal.RolePartner, principal.RolePoint))
	isKind(t, RequireStructuralRole(nil, principal.RoleOwner), accesserr.Unauthorized)
}

func TestRequireCapability(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.NoError(t, f.guard.RequireCapability(ctx, f.partner, rbac.FlagViewUsers))
	assert.NoError(t, f.guard.RequireCapability(ctx, f.owner, rbac.FlagCreateRoles))
	assert.NoError(t, f.guard.RequireCapability(ctx, f.platform, rbac.FlagCanManageBilling))

	err := f.guard.RequireCapability(ctx, f.point, rbac.FlagAssignRoles)
	isKind(t, err, accesserr.Forbidden)

	err = f.guard.RequireCapability(ctx, f.point, rbac.Flag("modules.teleport"))
	isKind(t, err, accesserr.Validation)

	err = f.guard.RequireCapability(ctx, nil, rbac.FlagViewUsers)
	isKind(t, err, accesserr.Unauthorized)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.AuthzDecisionsTotal.WithLabelValues("capability:roleManagement.assignRoles", "forbidden")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.AuthzDecisionsTotal.WithLabelValues("capability:userManagement.viewUsers", "allowed")))
}

func TestCanAssignRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		actor  *principal.Principal
		tenant func() string
		want   bool
	}{
		{"platform owner anywhere", f.platform, func() string { return f.tenant2 }, true},
		{"owner in own tenant", f.owner, func() string { return f.tenant1 }, true},
		{"owner in another tenant", f.owner, func() string { return f.tenant2 }, false},
		{"partner without delegated assignRoles", f.partner, func() string { return f.tenant1 }, false},
		{"point without capability", f.point, func() string { return f.tenant1 }, false},
		{"employee without tenant", f.employee, func() string { return f.tenant1 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.guard.CanAssignRole(ctx, tt.actor, tt.tenant())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := f.guard.CanAssignRole(ctx, nil, f.tenant1)
	isKind(t, err, accesserr.Unauthorized)
}

func TestAssignRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.createRole(t, f.owner, "Shift Lead", map[rbac.Flag]bool{rbac.FlagViewUsers: true})
	second := f.createRole(t, f.owner, "Head Chef", map[rbac.Flag]bool{rbac.FlagModulesReports: true})
	foreign := f.createRole(t, f.otherOwner, "Bistro Manager", nil)

	t.Run("replace not append", func(t *testing.T) {
		_, err := f.guard.AssignRole(ctx, f.owner, AssignRoleRequest{UserID: f.point.UserID, TenantID: f.tenant1, RoleName: first.Name})
		require.NoError(t, err)
		_, err = f.guard.AssignRole(ctx, f.owner, AssignRoleRequest{UserID: f.point.UserID, TenantID: f.tenant1, RoleName: second.Name})
		require.NoError(t, err)

		n, err := f.roles.CountAssignments(ctx, first.ID)
		require.NoError(t, err)
		assert.Zero(t, n)

		ur, err := f.roles.GetUserRole(ctx, f.point.UserID, f.tenant1)
		require.NoError(t, err)
		require.NotNil(t, ur)
		assert.Equal(t, second.ID, ur.RoleID)
		require.NotNil(t, ur.AssignedBy)
		assert.Equal(t, f.owner.UserID, *ur.AssignedBy)

		set, err := f.guard.ResolvePermissions(ctx, f.point)
		require.NoError(t, err)
		assert.True(t, set.Has(rbac.FlagModulesReports))
		assert.False(t, set.Has(rbac.FlagViewUsers))
	})

	t.Run("strict mode rejects the same role", func(t *testing.T) {
		_, err := f.guard.AssignRole(ctx, f.owner, AssignRoleRequest{UserID: f.point.UserID, TenantID: f.tenant1, RoleName: second.Name, Strict: true})
		isKind(t, err, accesserr.DuplicateAssignment)
	})

	t.Run("partner needs a delegated assignRoles", func(t *testing.T) {
		_, err := f.guard.AssignRole(ctx, f.partner, AssignRoleRequest{UserID: f.employee.UserID, TenantID: f.tenant1, RoleName: rbac.BaseRolePoint})
		isKind(t, err, accesserr.Forbidden)
	})

	t.Run("partner may not grant OWNER", func(t *testing.T) {
		_, err := f.guard.AssignRole(ctx, f.partner, AssignRoleRequest{UserID: f.partner.UserID, TenantID: f.tenant1, RoleName: rbac.BaseRoleOwner})
		isKind(t, err, accesserr.Forbidden)
	})

	t.Run("owner grants OWNER through an alias", func(t *testing.T) {
		_, err := f.guard.AssignRole(ctx, f.owner, AssignRoleRequest{UserID: f.partner.UserID, TenantID: f.tenant1, RoleName: "Владелец"})
		require.NoError(t, err)

		holds, err := f.roles.HoldsRole(ctx, f.partner.UserID, f.tenant1, rbac.BaseRoleOwner)
		require.NoError(t, err)
		assert.True(t, holds)
	})

	t.Run("point user cannot assign", func(t *testing.T) {
		_, err := f.guard.AssignRole(ctx, f.point, AssignRoleRequest{UserID: f.employee.UserID, TenantID: f.tenant1, RoleName: first.Name})
		isKind(t, err, accesserr.Forbidden)
	})

	t.Run("cross tenant target", func(t *testing.T) {
		_, err := f.guard.AssignRole(ctx, f.owner, AssignRoleRequest{UserID: f.otherOwner.UserID, TenantID: f.tenant1, RoleName: first.Name})
		isKind(t, err, accesserr.Forbidden)
	})

	t.Run("role of another tenant", func(t *testing.T) {
		_, err := f.guard.AssignRole(ctx, f.owner, AssignRoleRequest{UserID: f.point.UserID, TenantID: f.tenant1, RoleName: foreign.Name})
		isKind(t, err, accesserr.Forbidden)
	})

	t.Run("unknown user and role", func(t *testing.T) {
		_, err := f.guard.AssignRole(ctx, f.owner, AssignRoleRequest{UserID: "ghost", TenantID: f.tenant1, RoleName: first.Name})
		isKind(t, err, accesserr.NotFound)

		_, err = f.guard.AssignRole(ctx, f.owner, AssignRoleRequest{UserID: f.point.UserID, TenantID: f.tenant1, RoleName: "Sommelier"})
		isKind(t, err, accesserr.NotFound)
	})

	t.Run("missing fields", func(t *testing.T) {
		_, err := f.guard.AssignRole(ctx, f.owner, AssignRoleRequest{UserID: f.point.UserID})
		isKind(t, err, accesserr.Validation)
	})

	t.Run("platform owner assigns anywhere", func(t *testing.T) {
		_, err := f.guard.AssignRole(ctx, f.platform, AssignRoleRequest{UserID: f.otherOwner.UserID, TenantID: f.tenant2, RoleName: foreign.Name})
		require.NoError(t, err)

		// the platform owner may replace an OWNER assignment
		holds, err := f.roles.HoldsRole(ctx, f.otherOwner.UserID, f.tenant2, rbac.BaseRoleOwner)
		require.NoError(t, err)
		assert.False(t, holds)
	})

	assigned, err := f.audit.Search(ctx, audit.SearchFilter{EventTypes: []audit.EventType{audit.EventTypeRoleAssign}})
	require.NoError(t, err)
	assert.Len(t, assigned, 4)

	assert.Equal(t, 4.0, testutil.ToFloat64(f.metrics.RoleAssignmentsTotal.WithLabelValues("allowed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.RoleAssignmentsTotal.WithLabelValues("duplicate_assignment")))
}

func TestDelegatedAssignment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	manager := f.createRole(t, f.owner, "Floor Manager", map[rbac.Flag]bool{
		rbac.FlagAssignRoles: true,
		rbac.FlagViewUsers:   true,
	})
	admin := f.createRole(t, f.owner, "Admin", map[rbac.Flag]bool{rbac.FlagCreateRoles: true})
	_, err := f.guard.AssignRole(ctx, f.owner, AssignRoleRequest{UserID: f.partner.UserID, TenantID: f.tenant1, RoleName: manager.Name})
	require.NoError(t, err)

	delegate, err := f.guard.ResolvePrincipal(ctx, f.partner.UserID)
	require.NoError(t, err)
	require.False(t, delegate.OwnsTenant)

	ok, err := f.guard.CanAssignRole(ctx, delegate, f.tenant1)
	require.NoError(t, err)
	assert.True(t, ok)

	t.Run("roles within the delegate's own permissions", func(t *testing.T) {
		_, err := f.guard.AssignRole(ctx, delegate, AssignRoleRequest{UserID: f.point.UserID, TenantID: f.tenant1, RoleName: rbac.BaseRolePoint})
		assert.NoError(t, err)
	})

	t.Run("cannot self escalate", func(t *testing.T) {
		_, err := f.guard.AssignRole(ctx, delegate, AssignRoleRequest{UserID: delegate.UserID, TenantID: f.tenant1, RoleName: admin.Name})
		isKind(t, err, accesserr.Forbidden)

		set, err := f.guard.ResolvePermissions(ctx, delegate)
		require.NoError(t, err)
		assert.False(t, set.Has(rbac.FlagCreateRoles))
		assert.True(t, set.Has(rbac.FlagAssignRoles))
	})

	t.Run("cannot hand out a stronger role", func(t *testing.T) {
		_, err := f.guard.AssignRole(ctx, delegate, AssignRoleRequest{UserID: f.point.UserID, TenantID: f.tenant1, RoleName: admin.Name})
		isKind(t, err, accesserr.Forbidden)
	})

	t.Run("inherited permissions count", func(t *testing.T) {
		junior, err := f.guard.CreateRole(ctx, f.owner, CreateRoleRequest{Name: "Junior Admin", InheritsFrom: admin.ID})
		require.NoError(t, err)

		_, err = f.guard.AssignRole(ctx, delegate, AssignRoleRequest{UserID: f.point.UserID, TenantID: f.tenant1, RoleName: junior.Name})
		isKind(t, err, accesserr.Forbidden)
	})

	t.Run("cannot replace the owner", func(t *testing.T) {
		_, err := f.guard.AssignRole(ctx, delegate, AssignRoleRequest{UserID: f.owner.UserID, TenantID: f.tenant1, RoleName: rbac.BaseRolePoint})
		isKind(t, err, accesserr.Forbidden)

		holds, err := f.roles.HoldsRole(ctx, f.owner.UserID, f.tenant1, rbac.BaseRoleOwner)
		require.NoError(t, err)
		assert.True(t, holds)
	})

	t.Run("plain partner cannot replace the owner either", func(t *testing.T) {
		_, err := f.guard.AssignRole(ctx, f.partner, AssignRoleRequest{UserID: f.owner.UserID, TenantID: f.tenant1, RoleName: rbac.BaseRolePoint})
		isKind(t, err, accesserr.Forbidden)
	})
}

func TestCreateRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("owner creates in own tenant", func(t *testing.T) {
		role := f.createRole(t, f.owner, "Barista", map[rbac.Flag]bool{rbac.FlagModulesMenu: true})
		require.NotNil(t, role.TenantID)
		assert.Equal(t, f.tenant1, *role.TenantID)
	})

	t.Run("partner lacks createRoles", func(t *testing.T) {
		_, err := f.guard.CreateRole(ctx, f.partner, CreateRoleRequest{Name: "Runner"})
		isKind(t, err, accesserr.Forbidden)
	})

	t.Run("tenant roles cannot carry special flags", func(t *testing.T) {
		_, err := f.guard.CreateRole(ctx, f.owner, CreateRoleRequest{
			Name:        "Bookkeeper",
			Permissions: rbac.DocFromFlags(map[rbac.Flag]bool{rbac.FlagCanManageBilling: true}),
		})
		isKind(t, err, accesserr.Validation)

		role := f.createRole(t, f.owner, "Cashier", map[rbac.Flag]bool{rbac.FlagModulesReports: true})
		_, err = f.guard.UpdateRole(ctx, f.owner, role.ID, UpdateRoleRequest{
			Permissions: rbac.DocFromFlags(map[rbac.Flag]bool{rbac.FlagIsPlatformOwner: true}),
		})
		isKind(t, err, accesserr.Validation)

		_, err = f.guard.AssignRole(ctx, f.owner, AssignRoleRequest{UserID: f.partner.UserID, TenantID: f.tenant1, RoleName: role.Name})
		require.NoError(t, err)
		err = f.guard.RequireCapability(ctx, f.partner, rbac.FlagCanManageBilling)
		isKind(t, err, accesserr.Forbidden)
	})

	t.Run("employee has no tenant", func(t *testing.T) {
		_, err := f.guard.CreateRole(ctx, f.employee, CreateRoleRequest{Name: "Runner"})
		isKind(t, err, accesserr.NoTenant)
	})

	t.Run("owner cannot create in another tenant", func(t *testing.T) {
		_, err := f.guard.CreateRole(ctx, f.owner, CreateRoleRequest{Name: "Runner", TenantID: f.tenant2})
		isKind(t, err, accesserr.Forbidden)
	})

	t.Run("system roles are platform-owner only", func(t *testing.T) {
		_, err := f.guard.CreateRole(ctx, f.owner, CreateRoleRequest{Name: "Auditor", System: true})
		isKind(t, err, accesserr.Forbidden)

		role, err := f.guard.CreateRole(ctx, f.platform, CreateRoleRequest{Name: "Auditor", System: true})
		require.NoError(t, err)
		assert.True(t, role.IsSystem())
	})

	t.Run("platform owner creates for a tenant", func(t *testing.T) {
		role, err := f.guard.CreateRole(ctx, f.platform, CreateRoleRequest{Name: "Bistro Host", TenantID: f.tenant2})
		require.NoError(t, err)
		assert.Equal(t, f.tenant2, *role.TenantID)
	})

	t.Run("duplicate name across tenants", func(t *testing.T) {
		_, err := f.guard.CreateRole(ctx, f.otherOwner, CreateRoleRequest{Name: "Barista"})
		isKind(t, err, accesserr.DuplicateName)
	})

	t.Run("validation", func(t *testing.T) {
		_, err := f.guard.CreateRole(ctx, f.owner, CreateRoleRequest{})
		isKind(t, err, accesserr.Validation)
	})
}

func TestUpdateAndDeleteRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	role := f.createRole(t, f.owner, "Barista", map[rbac.Flag]bool{rbac.FlagModulesMenu: true})

	t.Run("owner renames own role", func(t *testing.T) {
		name := "Senior Barista"
		updated, err := f.guard.UpdateRole(ctx, f.owner, role.ID, UpdateRoleRequest{Name: &name})
		require.NoError(t, err)
		assert.Equal(t, name, updated.Name)
	})

	t.Run("other tenant cannot touch it", func(t *testing.T) {
		_, err := f.guard.UpdateRole(ctx, f.otherOwner, role.ID, UpdateRoleRequest{Permissions: rbac.PermissionDoc{}})
		isKind(t, err, accesserr.Forbidden)

		isKind(t, f.guard.DeleteRole(ctx, f.otherOwner, role.ID), accesserr.Forbidden)
	})

	t.Run("system roles need a platform owner", func(t *testing.T) {
		partnerRole, err := f.roles.GetRoleByName(ctx, rbac.BaseRolePartner)
		require.NoError(t, err)

		_, err = f.guard.UpdateRole(ctx, f.owner, partnerRole.ID, UpdateRoleRequest{Permissions: rbac.PermissionDoc{}})
		isKind(t, err, accesserr.Forbidden)

		_, err = f.guard.UpdateRole(ctx, f.platform, partnerRole.ID, UpdateRoleRequest{
			Permissions: rbac.DocFromFlags(map[rbac.Flag]bool{rbac.FlagModulesLabeling: true}),
		})
		require.NoError(t, err)
	})

	t.Run("protected roles are never deleted", func(t *testing.T) {
		for _, name := range []string{rbac.BaseRoleOwner, rbac.BaseRolePartner, rbac.BaseRolePoint} {
			base, err := f.roles.GetRoleByName(ctx, name)
			require.NoError(t, err)

			isKind(t, f.guard.DeleteRole(ctx, f.platform, base.ID), accesserr.ProtectedRole)
			isKind(t, f.guard.DeleteRole(ctx, f.owner, base.ID), accesserr.ProtectedRole)
		}
	})

	t.Run("role in use", func(t *testing.T) {
		_, err := f.guard.AssignRole(ctx, f.owner, AssignRoleRequest{UserID: f.point.UserID, TenantID: f.tenant1, RoleName: "Senior Barista"})
		require.NoError(t, err)

		isKind(t, f.guard.DeleteRole(ctx, f.owner, role.ID), accesserr.RoleInUse)
	})

	t.Run("delete unused role", func(t *testing.T) {
		spare := f.createRole(t, f.owner, "Spare", nil)
		require.NoError(t, f.guard.DeleteRole(ctx, f.owner, spare.ID))

		_, err := f.roles.GetRole(ctx, spare.ID)
		assert.True(t, accesserr.IsNotFound(err))
	})

	t.Run("unknown role", func(t *testing.T) {
		isKind(t, f.guard.DeleteRole(ctx, f.owner, "missing"), accesserr.NotFound)
	})
}

func TestListRoles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.createRole(t, f.owner, "Barista", nil)
	f.createRole(t, f.otherOwner, "Sommelier", nil)

	names := func(roles []*rbac.Role) []string {
		out := make([]string, len(roles))
		for i, r := range roles {
			out[i] = r.Name
		}
		return out
	}

	roles, err := f.guard.ListRoles(ctx, f.partner)
	require.NoError(t, err)
	assert.Equal(t, []string{"OWNER", "PARTNER", "POINT", "Barista"}, names(roles))

	roles, err = f.guard.ListRoles(ctx, f.platform)
	require.NoError(t, err)
	assert.Len(t, roles, 5)

	_, err = f.guard.ListRoles(ctx, f.point)
	isKind(t, err, accesserr.Forbidden)
}

func TestDenialsAreAudited(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.guard.CreateRole(ctx, f.point, CreateRoleRequest{Name: "Sneaky"})
	isKind(t, err, accesserr.Forbidden)

	events, err := f.audit.Search(ctx, audit.SearchFilter{EventTypes: []audit.EventType{audit.EventTypeAccessDenied}})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, f.point.UserID, events[0].ActorID)
	assert.Equal(t, audit.EventStatusDenied, events[0].Status)
	assert.Equal(t, "create_role", events[0].Message)
	assert.Equal(t, "forbidden", events[0].Metadata["kind"])
}

type failingAudit struct{}

func (failingAudit) Log(context.Context, *audit.Event) error { return errors.New("audit store down") }
func (failingAudit) Close() error                            { return nil }

func TestAuditFailureDoesNotFailOperation(t *testing.T) {
	f := newFixture(t)
	f.guard.audit = failingAudit{}

	_, err := f.guard.CreateRole(context.Background(), f.owner, CreateRoleRequest{Name: "Barista"})
	assert.NoError(t, err)
}

func TestPageMatrix(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("owner reads defaults", func(t *testing.T) {
		pages, err := f.guard.GetPageMatrix(ctx, f.owner, f.tenant1, principal.RolePartner)
		require.NoError(t, err)
		require.Len(t, pages, 4)
		for _, page := range pages {
			assert.False(t, page.Allowed, page.Slug)
		}
	})

	t.Run("only the tenant owner", func(t *testing.T) {
		_, err := f.guard.GetPageMatrix(ctx, f.partner, f.tenant1, principal.RolePartner)
		isKind(t, err, accesserr.Forbidden)

		_, err = f.guard.GetPageMatrix(ctx, f.otherOwner, f.tenant1, principal.RolePartner)
		isKind(t, err, accesserr.Forbidden)

		err = f.guard.SetPageMatrix(ctx, f.platform, SetPageMatrixRequest{
			TenantID: f.tenant1,
			Role:     principal.RolePartner,
			Updates:  []pageaccess.Update{{Slug: "labeling", Allowed: true}},
		})
		isKind(t, err, accesserr.Forbidden)
	})

	t.Run("employee has no tenant", func(t *testing.T) {
		_, err := f.guard.GetPageMatrix(ctx, f.employee, f.employee.TenantID, principal.RolePartner)
		isKind(t, err, accesserr.NoTenant)
	})

	t.Run("owner writes overrides", func(t *testing.T) {
		err := f.guard.SetPageMatrix(ctx, f.owner, SetPageMatrixRequest{
			TenantID: f.tenant1,
			Role:     principal.RolePartner,
			Updates: []pageaccess.Update{
				{Slug: "labeling", Allowed: true},
				{Slug: "roles", Allowed: true},
			},
		})
		require.NoError(t, err)

		pages, err := f.guard.GetPageMatrix(ctx, f.owner, f.tenant1, principal.RolePartner)
		require.NoError(t, err)
		allowed := map[string]bool{}
		for _, page := range pages {
			allowed[page.Slug] = page.Allowed
		}
		assert.Equal(t, map[string]bool{"dashboard": false, "labeling": true, "reports": false, "roles": true}, allowed)
	})

	t.Run("system pages stay visible to owners", func(t *testing.T) {
		err := f.guard.SetPageMatrix(ctx, f.owner, SetPageMatrixRequest{
			TenantID: f.tenant1,
			Role:     principal.RoleOwner,
			Updates: []pageaccess.Update{
				{Slug: "reports", Allowed: false},
				{Slug: "dashboard", Allowed: false},
			},
		})
		isKind(t, err, accesserr.CannotDisableSystemPage)

		pages, err := f.guard.GetPageMatrix(ctx, f.owner, f.tenant1, principal.RoleOwner)
		require.NoError(t, err)
		for _, page := range pages {
			assert.True(t, page.Allowed, "batch must not be partially applied: %s", page.Slug)
		}
	})

	t.Run("unknown slug and empty batch", func(t *testing.T) {
		err := f.guard.SetPageMatrix(ctx, f.owner, SetPageMatrixRequest{
			TenantID: f.tenant1,
			Role:     principal.RolePoint,
			Updates:  []pageaccess.Update{{Slug: "kitchen", Allowed: true}},
		})
		isKind(t, err, accesserr.NotFound)

		err = f.guard.SetPageMatrix(ctx, f.owner, SetPageMatrixRequest{TenantID: f.tenant1, Role: principal.RolePoint})
		isKind(t, err, accesserr.Validation)
	})

	events, err := f.audit.Search(ctx, audit.SearchFilter{EventTypes: []audit.EventType{audit.EventTypePageMatrixUpdate}})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, string(principal.RolePartner), events[0].ResourceID)
}

func menuSlugs(items []pageaccess.MenuItem) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.Slug
	}
	return out
}

func TestFilterMenu(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.guard.SetPageMatrix(ctx, f.owner, SetPageMatrixRequest{
		TenantID: f.tenant1,
		Role:     principal.RolePoint,
		Updates: []pageaccess.Update{
			{Slug: "reports", Allowed: true},
			{Slug: "dashboard", Allowed: true},
		},
	}))

	all := []string{"dashboard", "labeling", "reports", "roles"}
	tests := []struct {
		name string
		p    *principal.Principal
		want []string
	}{
		{"owner sees everything", f.owner, all},
		{"platform owner sees everything", f.platform, all},
		{"partner sees nothing by default", f.partner, []string{}},
		{"point sees overrides in menu order", f.point, []string{"dashboard", "reports"}},
		{"employee without tenant sees nothing", f.employee, []string{}},
		{"other tenant is unaffected", f.otherOwner, all},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := f.guard.FilterMenu(ctx, tt.p)
			require.NoError(t, err)
			assert.Equal(t, tt.want, menuSlugs(items))
		})
	}

	_, err := f.guard.FilterMenu(ctx, nil)
	isKind(t, err, accesserr.Unauthorized)
}

func TestAccessProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	profile, err := f.guard.AccessProfile(ctx, f.owner)
	require.NoError(t, err)
	assert.Equal(t, principal.RoleOwner, profile.PageRole)
	assert.Len(t, profile.Menu, 4)
	assert.Contains(t, profile.Granted, rbac.FlagCreateRoles)
	assert.True(t, profile.Permissions.Has(rbac.FlagAssignRoles))

	profile, err = f.guard.AccessProfile(ctx, f.employee)
	require.NoError(t, err)
	assert.Equal(t, principal.RoleEmployee, profile.PageRole)
	assert.Empty(t, profile.Menu)
	assert.ElementsMatch(t, []rbac.Flag{rbac.FlagModulesLearning, rbac.FlagModulesMenu}, profile.Granted)

	_, err = f.guard.AccessProfile(ctx, nil)
	isKind(t, err, accesserr.Unauthorized)
}
