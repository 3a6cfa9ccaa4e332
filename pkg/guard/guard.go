package guard

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/horecaops/backoffice/pkg/accesserr"
	"github.com/horecaops/backoffice/pkg/audit"
	"github.com/horecaops/backoffice/pkg/observability"
	"github.com/horecaops/backoffice/pkg/pageaccess"
	"github.com/horecaops/backoffice/pkg/principal"
	"github.com/horecaops/backoffice/pkg/rbac"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/horecaops/backoffice/pkg/guard")

// RoleStore is the role persistence the guard drives
type RoleStore interface {
	rbac.RoleReader
	principal.OwnershipSource
	GetRoleByName(ctx context.Context, name string) (*rbac.Role, error)
	ListRoles(ctx context.Context, tenantID *string) ([]*rbac.Role, error)
	CreateRole(ctx context.Context, params rbac.CreateRoleParams) (*rbac.Role, error)
	UpdateRole(ctx context.Context, roleID string, patch rbac.RolePatch, actorID string) (*rbac.Role, error)
	DeleteRole(ctx context.Context, roleID string) error
	AssignRole(ctx context.Context, params rbac.AssignParams) (*rbac.UserRole, error)
}

// Deps are the components a Guard composes. Directory defaults to Users
// when Users implements it.
type Deps struct {
	Users       principal.UserSource
	Directory   Directory
	Roles       RoleStore
	Matrix      *pageaccess.Matrix
	Audit       audit.Logger
	AuditReader audit.Searcher
	Logger      *observability.Logger
	Metrics     *observability.Metrics
}

// Guard is the single place authorization decisions are made. Handlers,
// the CLI and admin tooling call its predicates and operations and never
// inspect roles themselves.
type Guard struct {
	resolver    *principal.Resolver
	evaluator   *rbac.Evaluator
	users       principal.UserSource
	directory   Directory
	roles       RoleStore
	matrix      *pageaccess.Matrix
	audit       audit.Logger
	auditReader audit.Searcher
	logger      *observability.Logger
	metrics     *observability.Metrics
	validate    *validator.Validate
}

// New creates a guard. Audit, Logger and Metrics are optional.
func New(deps Deps) *Guard {
	logger := deps.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}
	auditLogger := deps.Audit
	if auditLogger == nil {
		auditLogger = audit.NoopLogger{}
	}
	directory := deps.Directory
	if directory == nil {
		directory, _ = deps.Users.(Directory)
	}

	return &Guard{
		resolver:    principal.NewResolver(deps.Users, deps.Roles),
		evaluator:   rbac.NewEvaluator(deps.Roles, logger, deps.Metrics),
		users:       deps.Users,
		directory:   directory,
		roles:       deps.Roles,
		matrix:      deps.Matrix,
		audit:       auditLogger,
		auditReader: deps.AuditReader,
		logger:      logger,
		metrics:     deps.Metrics,
		validate:    validator.New(),
	}
}

// isDenial reports whether err is an authorization refusal rather than a
// data or store problem.
func isDenial(err error) bool {
	switch accesserr.KindOf(err) {
	case accesserr.Unauthorized, accesserr.NoTenant, accesserr.Forbidden:
		return true
	}
	return false
}

// observe records the outcome of a check: the decision counter always, and
// for denials an info log line and an access_denied audit event.
func (g *Guard) observe(ctx context.Context, check string, actor *principal.Principal, err error) {
	g.metrics.RecordDecision(check, err)

	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attribute.String("authz.outcome", observability.Outcome(err)))

	if !isDenial(err) {
		if err != nil && accesserr.IsStoreUnavailable(err) {
			observability.UpdateLoggerWithTraceContext(ctx, g.logger).WithError(err).WithField("check", check).Error("authorization check could not reach the store")
		}
		return
	}

	event := audit.NewEvent(ctx, audit.EventTypeAccessDenied, audit.EventStatusDenied)
	event.Message = check
	event.ErrorMessage = err.Error()
	event.Metadata["kind"] = accesserr.KindOf(err).String()
	fields := map[string]interface{}{"check": check, "kind": accesserr.KindOf(err).String()}
	if actor != nil {
		event.ActorID = actor.UserID
		event.TenantID = actor.TenantID
		fields["user_id"] = actor.UserID
		fields["tenant_id"] = actor.TenantID
	}
	observability.UpdateLoggerWithTraceContext(ctx, g.logger).WithFields(fields).Info("access denied")
	g.record(ctx, event)
}

// record writes an audit event. A failed write is logged and otherwise
// ignored.
func (g *Guard) record(ctx context.Context, event *audit.Event) {
	if err := g.audit.Log(ctx, event); err != nil {
		g.logger.WithError(err).WithField("event_type", string(event.EventType)).Warn("failed to write audit event")
	}
}

func (g *Guard) validateRequest(op string, req interface{}) error {
	if err := g.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return accesserr.New(accesserr.Validation, op, "invalid field %s: %s", verrs[0].Field(), verrs[0].Tag())
		}
		return accesserr.Wrap(accesserr.Validation, op, err)
	}
	return nil
}

// ResolvePrincipal resolves the principal of userID. An unknown user is
// NotFound.
func (g *Guard) ResolvePrincipal(ctx context.Context, userID string) (p *principal.Principal, err error) {
	defer func() { g.observe(ctx, "resolve_principal", p, err) }()

	return g.resolver.Resolve(ctx, userID)
}

// AuthenticateUser resolves the principal of a caller-supplied identity.
// An identity with no user behind it is Unauthorized rather than NotFound.
func (g *Guard) AuthenticateUser(ctx context.Context, userID string) (*principal.Principal, error) {
	p, err := g.ResolvePrincipal(ctx, userID)
	if accesserr.IsNotFound(err) {
		err = accesserr.Wrap(accesserr.Unauthorized, "guard.AuthenticateUser", err)
		g.observe(ctx, "authenticate", nil, err)
		return nil, err
	}
	return p, err
}

// ResolvePermissions returns the principal's effective permission set
func (g *Guard) ResolvePermissions(ctx context.Context, p *principal.Principal) (rbac.PermissionSet, error) {
	if err := RequireAuthenticated(p); err != nil {
		g.observe(ctx, "resolve_permissions", p, err)
		return nil, err
	}
	return g.evaluator.ResolvePermissions(ctx, p)
}
