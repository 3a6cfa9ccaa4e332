package rbac

import (
	"context"
	"time"

	"github.com/horecaops/backoffice/pkg/accesserr"
	"github.com/horecaops/backoffice/pkg/observability"
	"github.com/horecaops/backoffice/pkg/principal"
	"go.opentelemetry.io/otel/attribute"
)

// RoleReader is the read side of the role store used during evaluation
type RoleReader interface {
	GetUserRole(ctx context.Context, userID, tenantID string) (*UserRole, error)
	GetRole(ctx context.Context, roleID string) (*Role, error)
}

// Evaluator resolves a principal's effective permissions. Every call reads
// the current rows; nothing is cached between calls.
type Evaluator struct {
	roles   RoleReader
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewEvaluator creates a new permission evaluator. metrics may be nil.
func NewEvaluator(roles RoleReader, logger *observability.Logger, metrics *observability.Metrics) *Evaluator {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Evaluator{roles: roles, logger: logger, metrics: metrics}
}

// templateRole picks the structural template for a principal
func templateRole(p *principal.Principal) principal.Role {
	if !p.IsPlatformOwner && p.OwnsTenant {
		return principal.RoleOwner
	}
	return p.StructuralRole
}

// ResolvePermissions merges, from low to high precedence: the structural
// default template, the assigned role's parent, the assigned role. Tenant
// roles never change special flags. The platform-owner flag then forces
// every special flag on.
func (e *Evaluator) ResolvePermissions(ctx context.Context, p *principal.Principal) (PermissionSet, error) {
	const op = "rbac.ResolvePermissions"
	ctx, span := tracer.Start(ctx, op)
	defer span.End()
	start := time.Now()
	defer func() { e.metrics.ObserveEvaluation("resolve_permissions", time.Since(start)) }()

	if p == nil || p.UserID == "" {
		return nil, accesserr.New(accesserr.Unauthorized, op, "no principal")
	}
	span.SetAttributes(
		attribute.String("user.id", p.UserID),
		attribute.String("principal.structural_role", string(p.StructuralRole)),
	)

	set := DefaultsFor(templateRole(p))
	log := e.logger.WithFields(map[string]interface{}{
		"user_id":   p.UserID,
		"tenant_id": p.TenantID,
	})

	if p.HasTenant() {
		role, parent, err := e.loadAssignedRole(ctx, p, log)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		if parent != nil {
			set.Overlay(scopedDoc(parent))
		}
		if role != nil {
			set.Overlay(scopedDoc(role))
			span.SetAttributes(attribute.String("role.name", role.Name))
		}
	}

	if p.IsPlatformOwner {
		for _, key := range categoryKeys[CategorySpecial] {
			set[CategorySpecial][key] = true
		}
	}

	return set, nil
}

// scopedDoc drops special flags from tenant roles. Only system roles, which
// only a platform owner can write, may grant them.
func scopedDoc(r *Role) PermissionDoc {
	if r.IsSystem() {
		return r.Permissions
	}
	return r.Permissions.WithoutSpecial()
}

func (e *Evaluator) loadAssignedRole(ctx context.Context, p *principal.Principal, log *observability.Logger) (*Role, *Role, error) {
	const op = "rbac.ResolvePermissions"

	ur, err := e.roles.GetUserRole(ctx, p.UserID, p.TenantID)
	if err != nil {
		return nil, nil, accesserr.Store(op, err)
	}
	if ur == nil {
		return nil, nil, nil
	}

	role, err := e.roles.GetRole(ctx, ur.RoleID)
	if accesserr.IsNotFound(err) {
		log.WithField("role_id", ur.RoleID).Warn("assigned role no longer exists, using structural defaults")
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, accesserr.Store(op, err)
	}

	if role.InheritsFrom == nil {
		return role, nil, nil
	}

	// Exactly one hop: the parent's own parent, if any, is ignored.
	parent, err := e.roles.GetRole(ctx, *role.InheritsFrom)
	if accesserr.IsNotFound(err) {
		log.WithField("role_id", *role.InheritsFrom).Warn("parent role no longer exists, ignoring inheritance")
		return role, nil, nil
	}
	if err != nil {
		return nil, nil, accesserr.Store(op, err)
	}
	return role, parent, nil
}

// HasCapability resolves permissions and checks a single flag
func (e *Evaluator) HasCapability(ctx context.Context, p *principal.Principal, flag Flag) (bool, error) {
	if !flag.Valid() {
		return false, accesserr.New(accesserr.Validation, "rbac.HasCapability", "unknown permission flag %q", flag)
	}
	set, err := e.ResolvePermissions(ctx, p)
	if err != nil {
		return false, err
	}
	return set.Has(flag), nil
}
