package pageaccess

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/horecaops/backoffice/pkg/accesserr"
	"github.com/horecaops/backoffice/pkg/db"
	"github.com/horecaops/backoffice/pkg/principal"
)

// Update sets one page's visibility
type Update struct {
	Slug    string `json:"slug" validate:"required"`
	Allowed bool   `json:"allowed"`
}

// Store persists per-tenant page overrides
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore creates a page override store
func NewStore(conn *sql.DB) *Store {
	return &Store{db: conn, now: func() time.Time { return time.Now().UTC() }}
}

// Overrides returns the stored overrides for a tenant and role, keyed by slug
func (s *Store) Overrides(ctx context.Context, tenantID string, role principal.Role) (map[string]bool, error) {
	const op = "pageaccess.Overrides"

	rows, err := s.db.QueryContext(ctx,
		`SELECT slug, allowed FROM role_page_access WHERE tenant_id = $1 AND role = $2`,
		tenantID, string(role),
	)
	if err != nil {
		return nil, accesserr.Store(op, fmt.Errorf("failed to query page access: %w", err))
	}
	defer rows.Close()

	overrides := make(map[string]bool)
	for rows.Next() {
		var slug string
		var allowed bool
		if err := rows.Scan(&slug, &allowed); err != nil {
			return nil, accesserr.Store(op, fmt.Errorf("failed to scan page access: %w", err))
		}
		overrides[slug] = allowed
	}
	if err := rows.Err(); err != nil {
		return nil, accesserr.Store(op, err)
	}
	return overrides, nil
}

// Upsert writes every update in one transaction
func (s *Store) Upsert(ctx context.Context, tenantID string, role principal.Role, updates []Update, actorID string) error {
	const op = "pageaccess.Upsert"

	now := s.now()
	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		for _, u := range updates {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO role_page_access (tenant_id, role, slug, allowed, updated_at, updated_by)
				VALUES ($1, $2, $3, $4, $5, $6)
				ON CONFLICT (tenant_id, role, slug) DO UPDATE SET
					allowed = excluded.allowed,
					updated_at = excluded.updated_at,
					updated_by = excluded.updated_by
			`, tenantID, string(role), u.Slug, u.Allowed, now, sql.NullString{String: actorID, Valid: actorID != ""})
			if err != nil {
				return fmt.Errorf("failed to upsert page %s: %w", u.Slug, err)
			}
		}
		return nil
	})
	if err != nil {
		return accesserr.Store(op, err)
	}
	return nil
}
