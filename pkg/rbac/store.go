package rbac

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/horecaops/backoffice/pkg/accesserr"
	"github.com/horecaops/backoffice/pkg/db"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("github.com/horecaops/backoffice/pkg/rbac")

const roleColumns = "id, name, tenant_id, permissions, inherits_from, created_at, last_modified_at, last_modified_by"

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Store handles role and role assignment persistence
type Store struct {
	db  *sql.DB
	sql sq.StatementBuilderType
	now func() time.Time
}

// NewStore creates a new role store
func NewStore(conn *sql.DB) *Store {
	return &Store{
		db:  conn,
		sql: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		now: func() time.Time { return time.Now().UTC() },
	}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRole(row rowScanner) (*Role, error) {
	var role Role
	var permissionsJSON string
	var tenantID, inheritsFrom, modifiedBy sql.NullString

	if err := row.Scan(
		&role.ID,
		&role.Name,
		&tenantID,
		&permissionsJSON,
		&inheritsFrom,
		&role.CreatedAt,
		&role.LastModifiedAt,
		&modifiedBy,
	); err != nil {
		return nil, err
	}

	doc, err := ParsePermissionDoc([]byte(permissionsJSON))
	if err != nil {
		return nil, fmt.Errorf("role %s has invalid permissions: %w", role.ID, err)
	}
	role.Permissions = doc

	if tenantID.Valid {
		role.TenantID = &tenantID.String
	}
	if inheritsFrom.Valid {
		role.InheritsFrom = &inheritsFrom.String
	}
	if modifiedBy.Valid {
		role.LastModifiedBy = &modifiedBy.String
	}
	return &role, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func derefOrNull(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return nullString(*s)
}

// CreateRole creates a new role
func (s *Store) CreateRole(ctx context.Context, params CreateRoleParams) (*Role, error) {
	const op = "rbac.CreateRole"
	ctx, span := tracer.Start(ctx, op)
	defer span.End()

	name := strings.TrimSpace(params.Name)
	if name == "" {
		return nil, accesserr.New(accesserr.Validation, op, "role name is required")
	}
	validate := params.Permissions.Validate
	if params.TenantID != nil {
		validate = params.Permissions.ValidateTenantScoped
	}
	if err := validate(); err != nil {
		return nil, err
	}

	if existing, err := s.getRoleByName(ctx, s.db, name); err == nil {
		return nil, accesserr.New(accesserr.DuplicateName, op, "role %q already exists (%s)", name, existing.ID)
	} else if !accesserr.IsNotFound(err) {
		return nil, err
	}

	if params.InheritsFrom != nil {
		if err := s.validateParent(ctx, s.db, op, "", *params.InheritsFrom, params.TenantID); err != nil {
			return nil, err
		}
	}

	permissionsJSON, err := params.Permissions.Marshal()
	if err != nil {
		return nil, err
	}

	id := params.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := s.now()

	query, args, err := s.sql.Insert("roles").
		Columns("id", "name", "tenant_id", "permissions", "inherits_from", "created_at", "last_modified_at", "last_modified_by").
		Values(id, name, derefOrNull(params.TenantID), permissionsJSON, derefOrNull(params.InheritsFrom), now, now, nullString(params.ActorID)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build insert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		if db.IsUniqueViolation(err) {
			return nil, accesserr.New(accesserr.DuplicateName, op, "role %q already exists", name)
		}
		span.RecordError(err)
		return nil, accesserr.Store(op, fmt.Errorf("failed to create role: %w", err))
	}

	role := &Role{
		ID:             id,
		Name:           name,
		TenantID:       params.TenantID,
		Permissions:    params.Permissions,
		InheritsFrom:   params.InheritsFrom,
		CreatedAt:      now,
		LastModifiedAt: now,
	}
	if params.ActorID != "" {
		actor := params.ActorID
		role.LastModifiedBy = &actor
	}
	if role.Permissions == nil {
		role.Permissions = PermissionDoc{}
	}
	return role, nil
}

// validateParent enforces one level of inheritance. selfID is empty on
// create.
func (s *Store) validateParent(ctx context.Context, q querier, op, selfID, parentID string, tenantID *string) error {
	if parentID == selfID {
		return accesserr.New(accesserr.Validation, op, "role cannot inherit from itself")
	}

	parent, err := s.getRole(ctx, q, parentID)
	if err != nil {
		return err
	}
	if parent.InheritsFrom != nil {
		return accesserr.New(accesserr.Validation, op, "parent role %q already inherits from another role; inheritance deeper than one level is not supported", parent.Name)
	}
	if tenantID != nil && !parent.VisibleTo(*tenantID) {
		return accesserr.New(accesserr.Forbidden, op, "parent role %q belongs to another tenant", parent.Name)
	}
	if tenantID == nil && !parent.IsSystem() {
		return accesserr.New(accesserr.Validation, op, "system role cannot inherit from tenant role %q", parent.Name)
	}

	if selfID != "" {
		var children int
		err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM roles WHERE inherits_from = $1`, selfID).Scan(&children)
		if err != nil {
			return accesserr.Store(op, fmt.Errorf("failed to count child roles: %w", err))
		}
		if children > 0 {
			return accesserr.New(accesserr.Validation, op, "role is a parent of %d roles and cannot inherit itself", children)
		}
	}
	return nil
}

// GetRole retrieves a role by ID
func (s *Store) GetRole(ctx context.Context, roleID string) (*Role, error) {
	ctx, span := tracer.Start(ctx, "rbac.GetRole")
	defer span.End()
	return s.getRole(ctx, s.db, roleID)
}

func (s *Store) getRole(ctx context.Context, q querier, roleID string) (*Role, error) {
	query := `SELECT ` + roleColumns + ` FROM roles WHERE id = $1`

	role, err := scanRole(q.QueryRowContext(ctx, query, roleID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, accesserr.New(accesserr.NotFound, "rbac.GetRole", "role not found: %s", roleID)
	}
	if err != nil {
		return nil, accesserr.Store("rbac.GetRole", fmt.Errorf("failed to get role: %w", err))
	}
	return role, nil
}

// GetRoleByName retrieves a role by its globally unique name
func (s *Store) GetRoleByName(ctx context.Context, name string) (*Role, error) {
	ctx, span := tracer.Start(ctx, "rbac.GetRoleByName")
	defer span.End()
	return s.getRoleByName(ctx, s.db, strings.TrimSpace(name))
}

func (s *Store) getRoleByName(ctx context.Context, q querier, name string) (*Role, error) {
	query := `SELECT ` + roleColumns + ` FROM roles WHERE name = $1`

	role, err := scanRole(q.QueryRowContext(ctx, query, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, accesserr.New(accesserr.NotFound, "rbac.GetRoleByName", "role not found: %s", name)
	}
	if err != nil {
		return nil, accesserr.Store("rbac.GetRoleByName", fmt.Errorf("failed to get role: %w", err))
	}
	return role, nil
}

// ListRoles lists system roles plus the roles of tenantID. A nil tenantID
// lists every role.
func (s *Store) ListRoles(ctx context.Context, tenantID *string) ([]*Role, error) {
	const op = "rbac.ListRoles"
	ctx, span := tracer.Start(ctx, op)
	defer span.End()

	q := s.sql.Select(roleColumns).From("roles")
	if tenantID != nil {
		q = q.Where(sq.Or{sq.Eq{"tenant_id": nil}, sq.Eq{"tenant_id": *tenantID}})
	}
	q = q.OrderBy("CASE WHEN tenant_id IS NULL THEN 0 ELSE 1 END", "name ASC")

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, accesserr.Store(op, fmt.Errorf("failed to list roles: %w", err))
	}
	defer rows.Close()

	var roles []*Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, accesserr.Store(op, fmt.Errorf("failed to scan role: %w", err))
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, accesserr.Store(op, err)
	}
	return roles, nil
}

// UpdateRole applies a patch and stamps the modification audit fields
func (s *Store) UpdateRole(ctx context.Context, roleID string, patch RolePatch, actorID string) (*Role, error) {
	const op = "rbac.UpdateRole"
	ctx, span := tracer.Start(ctx, op)
	defer span.End()

	if patch.Permissions != nil {
		if err := patch.Permissions.Validate(); err != nil {
			return nil, err
		}
	}

	var updated *Role
	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		current, err := s.getRole(ctx, tx, roleID)
		if err != nil {
			return err
		}
		if patch.Permissions != nil && current.TenantID != nil {
			if err := patch.Permissions.ValidateTenantScoped(); err != nil {
				return err
			}
		}

		now := s.now()
		upd := s.sql.Update("roles").
			Set("last_modified_at", now).
			Set("last_modified_by", nullString(actorID))

		if patch.Name != nil {
			name := strings.TrimSpace(*patch.Name)
			if name == "" {
				return accesserr.New(accesserr.Validation, op, "role name cannot be empty")
			}
			if name != current.Name {
				if IsProtectedRoleName(current.Name) {
					return accesserr.New(accesserr.ProtectedRole, op, "base role %q cannot be renamed", current.Name)
				}
				other, err := s.getRoleByName(ctx, tx, name)
				if err == nil && other.ID != current.ID {
					return accesserr.New(accesserr.DuplicateName, op, "role %q already exists", name)
				}
				if err != nil && !accesserr.IsNotFound(err) {
					return err
				}
				upd = upd.Set("name", name)
				current.Name = name
			}
		}

		if patch.Permissions != nil {
			permissionsJSON, err := patch.Permissions.Marshal()
			if err != nil {
				return err
			}
			upd = upd.Set("permissions", permissionsJSON)
			current.Permissions = patch.Permissions
		}

		switch {
		case patch.ClearParent:
			upd = upd.Set("inherits_from", nil)
			current.InheritsFrom = nil
		case patch.InheritsFrom != nil:
			if err := s.validateParent(ctx, tx, op, current.ID, *patch.InheritsFrom, current.TenantID); err != nil {
				return err
			}
			upd = upd.Set("inherits_from", *patch.InheritsFrom)
			parent := *patch.InheritsFrom
			current.InheritsFrom = &parent
		}

		query, args, err := upd.Where(sq.Eq{"id": roleID}).ToSql()
		if err != nil {
			return fmt.Errorf("failed to build update: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			if db.IsUniqueViolation(err) {
				return accesserr.New(accesserr.DuplicateName, op, "role %q already exists", current.Name)
			}
			return accesserr.Store(op, fmt.Errorf("failed to update role: %w", err))
		}

		current.LastModifiedAt = now
		if actorID != "" {
			actor := actorID
			current.LastModifiedBy = &actor
		} else {
			current.LastModifiedBy = nil
		}
		updated = current
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, accesserr.Store(op, err)
	}
	return updated, nil
}

// DeleteRole deletes a role that is neither reserved nor in use
func (s *Store) DeleteRole(ctx context.Context, roleID string) error {
	const op = "rbac.DeleteRole"
	ctx, span := tracer.Start(ctx, op)
	defer span.End()

	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		role, err := s.getRole(ctx, tx, roleID)
		if err != nil {
			return err
		}
		if IsProtectedRoleName(role.Name) {
			return accesserr.New(accesserr.ProtectedRole, op, "base role %q cannot be deleted", role.Name)
		}

		var assigned int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM user_roles WHERE role_id = $1`, roleID).Scan(&assigned); err != nil {
			return accesserr.Store(op, fmt.Errorf("failed to count assignments: %w", err))
		}
		if assigned > 0 {
			return accesserr.New(accesserr.RoleInUse, op, "role %q is assigned to %d users", role.Name, assigned)
		}

		var children int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM roles WHERE inherits_from = $1`, roleID).Scan(&children); err != nil {
			return accesserr.Store(op, fmt.Errorf("failed to count child roles: %w", err))
		}
		if children > 0 {
			return accesserr.New(accesserr.RoleInUse, op, "role %q is inherited by %d roles", role.Name, children)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM roles WHERE id = $1`, roleID); err != nil {
			return accesserr.Store(op, fmt.Errorf("failed to delete role: %w", err))
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return accesserr.Store(op, err)
	}
	return nil
}

// AssignRole replaces the user's role in a tenant. The delete and insert run
// in one transaction so no reader sees the user without a role.
func (s *Store) AssignRole(ctx context.Context, params AssignParams) (*UserRole, error) {
	const op = "rbac.AssignRole"
	ctx, span := tracer.Start(ctx, op)
	defer span.End()

	if params.UserID == "" || params.TenantID == "" || params.RoleID == "" {
		return nil, accesserr.New(accesserr.Validation, op, "user, tenant and role are required")
	}

	ur := &UserRole{
		ID:         uuid.NewString(),
		UserID:     params.UserID,
		RoleID:     params.RoleID,
		TenantID:   params.TenantID,
		AssignedAt: s.now(),
	}
	if params.ActorID != "" {
		actor := params.ActorID
		ur.AssignedBy = &actor
	}

	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if params.Strict {
			current, err := s.getUserRole(ctx, tx, params.UserID, params.TenantID)
			if err != nil {
				return err
			}
			if current != nil && current.RoleID == params.RoleID {
				return accesserr.New(accesserr.DuplicateAssignment, op, "user %s already holds role %s in tenant %s", params.UserID, params.RoleID, params.TenantID)
			}
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM user_roles WHERE user_id = $1 AND tenant_id = $2`,
			params.UserID, params.TenantID,
		); err != nil {
			return accesserr.Store(op, fmt.Errorf("failed to clear user roles: %w", err))
		}

		// A concurrent assignment that committed after our delete is
		// overwritten, so the last commit wins.
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO user_roles (id, user_id, role_id, tenant_id, assigned_by, assigned_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (user_id, tenant_id) DO UPDATE SET
				role_id = excluded.role_id,
				assigned_by = excluded.assigned_by,
				assigned_at = excluded.assigned_at
		`, ur.ID, ur.UserID, ur.RoleID, ur.TenantID, derefOrNull(ur.AssignedBy), ur.AssignedAt); err != nil {
			return accesserr.Store(op, fmt.Errorf("failed to assign role: %w", err))
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, accesserr.Store(op, err)
	}
	return ur, nil
}

// GetUserRole returns the user's assignment in a tenant, or nil when none
func (s *Store) GetUserRole(ctx context.Context, userID, tenantID string) (*UserRole, error) {
	ctx, span := tracer.Start(ctx, "rbac.GetUserRole")
	defer span.End()
	return s.getUserRole(ctx, s.db, userID, tenantID)
}

func (s *Store) getUserRole(ctx context.Context, q querier, userID, tenantID string) (*UserRole, error) {
	query := `
		SELECT id, user_id, role_id, tenant_id, assigned_by, assigned_at
		FROM user_roles
		WHERE user_id = $1 AND tenant_id = $2
		ORDER BY assigned_at DESC
		LIMIT 1
	`

	var ur UserRole
	var assignedBy sql.NullString
	err := q.QueryRowContext(ctx, query, userID, tenantID).Scan(
		&ur.ID,
		&ur.UserID,
		&ur.RoleID,
		&ur.TenantID,
		&assignedBy,
		&ur.AssignedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, accesserr.Store("rbac.GetUserRole", fmt.Errorf("failed to get user role: %w", err))
	}
	if assignedBy.Valid {
		ur.AssignedBy = &assignedBy.String
	}
	return &ur, nil
}

// HoldsRole reports whether the user's assignment in tenantID names roleName
func (s *Store) HoldsRole(ctx context.Context, userID, tenantID, roleName string) (bool, error) {
	ctx, span := tracer.Start(ctx, "rbac.HoldsRole")
	defer span.End()

	query := `
		SELECT COUNT(*)
		FROM user_roles ur
		JOIN roles r ON r.id = ur.role_id
		WHERE ur.user_id = $1 AND ur.tenant_id = $2 AND r.name = $3
	`

	var n int
	if err := s.db.QueryRowContext(ctx, query, userID, tenantID, roleName).Scan(&n); err != nil {
		return false, accesserr.Store("rbac.HoldsRole", fmt.Errorf("failed to check role: %w", err))
	}
	return n > 0, nil
}

// CountAssignments returns how many users hold a role
func (s *Store) CountAssignments(ctx context.Context, roleID string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM user_roles WHERE role_id = $1`, roleID).Scan(&n); err != nil {
		return 0, accesserr.Store("rbac.CountAssignments", fmt.Errorf("failed to count assignments: %w", err))
	}
	return n, nil
}

// SeedBaseRoles creates the reserved system roles that do not exist yet
func (s *Store) SeedBaseRoles(ctx context.Context) ([]*Role, error) {
	var created []*Role
	docs := BaseRoleDocs()
	for _, name := range []string{BaseRoleOwner, BaseRolePartner, BaseRolePoint} {
		_, err := s.GetRoleByName(ctx, name)
		if err == nil {
			continue
		}
		if !accesserr.IsNotFound(err) {
			return created, err
		}
		role, err := s.CreateRole(ctx, CreateRoleParams{Name: name, Permissions: docs[name]})
		if err != nil {
			return created, fmt.Errorf("failed to seed role %s: %w", name, err)
		}
		created = append(created, role)
	}
	return created, nil
}
