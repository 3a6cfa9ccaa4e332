package guard

import (
	"context"

	"github.com/horecaops/backoffice/pkg/accesserr"
	"github.com/horecaops/backoffice/pkg/audit"
	"github.com/horecaops/backoffice/pkg/pageaccess"
	"github.com/horecaops/backoffice/pkg/principal"
	"github.com/horecaops/backoffice/pkg/rbac"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// GetPageMatrix returns the page visibility of role in tenantID. Only the
// tenant's OWNER may read it.
func (g *Guard) GetPageMatrix(ctx context.Context, actor *principal.Principal, tenantID string, role principal.Role) (pages []pageaccess.PageAccess, err error) {
	const op = "guard.GetPageMatrix"
	ctx, span := tracer.Start(ctx, op)
	defer span.End()
	defer func() { g.observe(ctx, "get_page_matrix", actor, err) }()

	if err := g.requireMatrixOwner(ctx, op, actor, tenantID); err != nil {
		return nil, err
	}
	return g.matrix.GetPageMatrix(ctx, tenantID, role)
}

// SetPageMatrix applies a batch of page overrides. Only the tenant's OWNER
// may write it; the batch is applied entirely or not at all.
func (g *Guard) SetPageMatrix(ctx context.Context, actor *principal.Principal, req SetPageMatrixRequest) (err error) {
	const op = "guard.SetPageMatrix"
	ctx, span := tracer.Start(ctx, op)
	defer span.End()
	span.SetAttributes(attribute.String("tenant.id", req.TenantID), attribute.Int("updates", len(req.Updates)))
	defer func() {
		g.observe(ctx, "set_page_matrix", actor, err)
		if !isDenial(err) {
			g.metrics.RecordMatrixWrite(err)
		}
	}()

	if err := RequireAuthenticated(actor); err != nil {
		return err
	}
	if err := g.validateRequest(op, req); err != nil {
		return err
	}
	if err := g.requireMatrixOwner(ctx, op, actor, req.TenantID); err != nil {
		return err
	}
	if err := g.matrix.SetOverrides(ctx, req.TenantID, req.Role, req.Updates, actor.UserID); err != nil {
		return err
	}

	event := audit.NewEvent(ctx, audit.EventTypePageMatrixUpdate, audit.EventStatusSuccess)
	event.ActorID = actor.UserID
	event.TenantID = req.TenantID
	event.ResourceType = audit.ResourceTypePageMatrix
	event.ResourceID = string(req.Role)
	event.Metadata["updates"] = req.Updates
	g.record(ctx, event)
	return nil
}

// FilterMenu returns the pages the principal may see, in menu order.
// Owners and platform owners see the whole menu; principals without a
// tenant see nothing.
func (g *Guard) FilterMenu(ctx context.Context, p *principal.Principal) (items []pageaccess.MenuItem, err error) {
	const op = "guard.FilterMenu"
	ctx, span := tracer.Start(ctx, op)
	defer span.End()
	defer func() { g.observe(ctx, "filter_menu", p, err) }()

	if err := RequireAuthenticated(p); err != nil {
		return nil, err
	}

	registry := g.matrix.Registry()
	if p.PageRole() == principal.RoleOwner {
		return registry.Items(), nil
	}
	if !p.HasTenant() {
		return []pageaccess.MenuItem{}, nil
	}

	slugs, err := g.matrix.AllowedSlugs(ctx, p.TenantID, p.StructuralRole)
	if err != nil {
		return nil, accesserr.Store(op, err)
	}

	items = []pageaccess.MenuItem{}
	for slug := range slugs {
		if item, ok := registry.Lookup(slug); ok {
			items = append(items, item)
		}
	}
	return items, nil
}

// Profile is everything a client needs after login to render the
// back-office for a principal.
type Profile struct {
	Principal   *principal.Principal  `json:"principal"`
	PageRole    principal.Role        `json:"page_role"`
	Permissions rbac.PermissionSet    `json:"permissions"`
	Granted     []rbac.Flag           `json:"granted"`
	Menu        []pageaccess.MenuItem `json:"menu"`
}

// AccessProfile resolves permissions and the filtered menu concurrently
func (g *Guard) AccessProfile(ctx context.Context, p *principal.Principal) (*Profile, error) {
	const op = "guard.AccessProfile"
	ctx, span := tracer.Start(ctx, op)
	defer span.End()

	if err := RequireAuthenticated(p); err != nil {
		g.observe(ctx, "access_profile", p, err)
		return nil, err
	}

	profile := &Profile{Principal: p, PageRole: p.PageRole()}
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		perms, err := g.evaluator.ResolvePermissions(egCtx, p)
		if err != nil {
			return err
		}
		profile.Permissions = perms
		profile.Granted = perms.Granted()
		return nil
	})
	eg.Go(func() error {
		menu, err := g.FilterMenu(egCtx, p)
		if err != nil {
			return err
		}
		profile.Menu = menu
		return nil
	})
	if err := eg.Wait(); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return profile, nil
}
