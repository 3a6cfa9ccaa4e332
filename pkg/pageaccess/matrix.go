package pageaccess

import (
	"context"
	"iter"

	"github.com/horecaops/backoffice/pkg/accesserr"
	"github.com/horecaops/backoffice/pkg/principal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("github.com/horecaops/backoffice/pkg/pageaccess")

// OverrideStore reads and writes page overrides
type OverrideStore interface {
	Overrides(ctx context.Context, tenantID string, role principal.Role) (map[string]bool, error)
	Upsert(ctx context.Context, tenantID string, role principal.Role, updates []Update, actorID string) error
}

// PageAccess is one resolved row of the matrix
type PageAccess struct {
	Slug    string `json:"slug"`
	Label   string `json:"label"`
	System  bool   `json:"system"`
	Allowed bool   `json:"allowed"`
}

// MatrixRoles are the roles the matrix stores overrides for
var MatrixRoles = []principal.Role{
	principal.RoleOwner,
	principal.RolePartner,
	principal.RolePoint,
	principal.RoleEmployee,
}

// Matrix resolves page visibility per (tenant, role) from the registry and
// stored overrides.
type Matrix struct {
	registry *Registry
	store    OverrideStore
}

// NewMatrix creates a page access matrix
func NewMatrix(registry *Registry, store OverrideStore) *Matrix {
	return &Matrix{registry: registry, store: store}
}

// Registry returns the menu registry the matrix is defined over
func (m *Matrix) Registry() *Registry {
	return m.registry
}

func checkRole(op string, role principal.Role) error {
	switch role {
	case principal.RoleOwner, principal.RolePartner, principal.RolePoint, principal.RoleEmployee:
		return nil
	}
	return accesserr.New(accesserr.Validation, op, "role %q has no page matrix", role)
}

// defaultAllowed: OWNER sees every page unless overridden, everyone else sees nothing
func defaultAllowed(role principal.Role) bool {
	return role == principal.RoleOwner
}

func (m *Matrix) resolve(ctx context.Context, op, tenantID string, role principal.Role) ([]PageAccess, error) {
	if err := checkRole(op, role); err != nil {
		return nil, err
	}
	if tenantID == "" {
		return nil, accesserr.New(accesserr.NoTenant, op, "page matrix requires a tenant")
	}

	overrides, err := m.store.Overrides(ctx, tenantID, role)
	if err != nil {
		return nil, accesserr.Store(op, err)
	}

	pages := make([]PageAccess, 0, m.registry.Len())
	for _, item := range m.registry.items {
		allowed, ok := overrides[item.Slug]
		if !ok {
			allowed = defaultAllowed(role)
		}
		pages = append(pages, PageAccess{Slug: item.Slug, Label: item.Label, System: item.System, Allowed: allowed})
	}
	return pages, nil
}

// IsPageAllowed reports whether role may see slug in tenantID
func (m *Matrix) IsPageAllowed(ctx context.Context, tenantID string, role principal.Role, slug string) (bool, error) {
	const op = "pageaccess.IsPageAllowed"
	ctx, span := tracer.Start(ctx, op)
	defer span.End()

	if _, ok := m.registry.Lookup(slug); !ok {
		return false, accesserr.New(accesserr.NotFound, op, "unknown page %q", slug)
	}
	if err := checkRole(op, role); err != nil {
		return false, err
	}
	if tenantID == "" {
		return false, accesserr.New(accesserr.NoTenant, op, "page matrix requires a tenant")
	}

	overrides, err := m.store.Overrides(ctx, tenantID, role)
	if err != nil {
		span.RecordError(err)
		return false, accesserr.Store(op, err)
	}
	if allowed, ok := overrides[slug]; ok {
		return allowed, nil
	}
	return defaultAllowed(role), nil
}

// AllowedSlugs returns the visible slugs in registry order. Overrides are
// read once; the sequence can be ranged over any number of times.
func (m *Matrix) AllowedSlugs(ctx context.Context, tenantID string, role principal.Role) (iter.Seq[string], error) {
	const op = "pageaccess.AllowedSlugs"
	ctx, span := tracer.Start(ctx, op)
	defer span.End()

	pages, err := m.resolve(ctx, op, tenantID, role)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	return func(yield func(string) bool) {
		for _, p := range pages {
			if p.Allowed && !yield(p.Slug) {
				return
			}
		}
	}, nil
}

// GetPageMatrix returns every page with its resolved visibility
func (m *Matrix) GetPageMatrix(ctx context.Context, tenantID string, role principal.Role) ([]PageAccess, error) {
	const op = "pageaccess.GetPageMatrix"
	ctx, span := tracer.Start(ctx, op)
	defer span.End()
	span.SetAttributes(attribute.String("tenant.id", tenantID), attribute.String("role", string(role)))

	pages, err := m.resolve(ctx, op, tenantID, role)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return pages, nil
}

// SetOverrides validates the whole batch and then writes it atomically.
// No row is written if any entry is rejected.
func (m *Matrix) SetOverrides(ctx context.Context, tenantID string, role principal.Role, updates []Update, actorID string) error {
	const op = "pageaccess.SetOverrides"
	ctx, span := tracer.Start(ctx, op)
	defer span.End()
	span.SetAttributes(attribute.String("tenant.id", tenantID), attribute.Int("updates", len(updates)))

	if err := checkRole(op, role); err != nil {
		return err
	}
	if tenantID == "" {
		return accesserr.New(accesserr.NoTenant, op, "page matrix requires a tenant")
	}

	for _, u := range updates {
		item, ok := m.registry.Lookup(u.Slug)
		if !ok {
			return accesserr.New(accesserr.NotFound, op, "unknown page %q", u.Slug)
		}
		if role == principal.RoleOwner && item.System && !u.Allowed {
			return accesserr.New(accesserr.CannotDisableSystemPage, op, "system page %q cannot be hidden from OWNER", u.Slug)
		}
	}
	if len(updates) == 0 {
		return nil
	}

	if err := m.store.Upsert(ctx, tenantID, role, updates, actorID); err != nil {
		span.RecordError(err)
		return accesserr.Store(op, err)
	}
	return nil
}
