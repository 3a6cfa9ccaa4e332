package tenants

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/horecaops/backoffice/pkg/accesserr"
	"github.com/horecaops/backoffice/pkg/db"
	"github.com/horecaops/backoffice/pkg/principal"
	"go.opentelemetry.io/otel"
)

var (
	tracer   = otel.Tracer("github.com/horecaops/backoffice/pkg/tenants")
	validate = validator.New()
)

// ownerRoleName is the base role granted to the account that signs a tenant up
const ownerRoleName = "OWNER"

const (
	tenantColumns = "id, name, billing_email, created_at, updated_at"
	pointColumns  = "id, tenant_id, name, is_active, created_at, updated_at"
	userColumns   = "id, email, password_hash, is_platform_owner, tenant_id, point_id, created_at, updated_at"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Store persists tenants, points and users
type Store struct {
	db  *sql.DB
	sql sq.StatementBuilderType
	now func() time.Time
}

// NewStore creates a tenant store
func NewStore(conn *sql.DB) *Store {
	return &Store{
		db:  conn,
		sql: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		now: func() time.Time { return time.Now().UTC() },
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// CreateTenant creates a new tenant
func (s *Store) CreateTenant(ctx context.Context, name, billingEmail string) (*Tenant, error) {
	const op = "tenants.CreateTenant"
	ctx, span := tracer.Start(ctx, op)
	defer span.End()

	tenant, err := s.insertTenant(ctx, s.db, op, name, billingEmail)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return tenant, nil
}

func (s *Store) insertTenant(ctx context.Context, q querier, op, name, billingEmail string) (*Tenant, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, accesserr.New(accesserr.Validation, op, "tenant name is required")
	}
	billingEmail = NormalizeEmail(billingEmail)
	if billingEmail != "" {
		if err := validate.Var(billingEmail, "email"); err != nil {
			return nil, accesserr.New(accesserr.Validation, op, "invalid billing email %q", billingEmail)
		}
	}

	now := s.now()
	tenant := &Tenant{
		ID:           uuid.NewString(),
		Name:         name,
		BillingEmail: billingEmail,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	_, err := q.ExecContext(ctx,
		`INSERT INTO tenants (id, name, billing_email, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		tenant.ID, tenant.Name, nullString(tenant.BillingEmail), tenant.CreatedAt, tenant.UpdatedAt,
	)
	if err != nil {
		return nil, accesserr.Store(op, fmt.Errorf("failed to create tenant: %w", err))
	}
	return tenant, nil
}

// GetTenant retrieves a tenant by ID
func (s *Store) GetTenant(ctx context.Context, id string) (*Tenant, error) {
	const op = "tenants.GetTenant"
	ctx, span := tracer.Start(ctx, op)
	defer span.End()

	var tenant Tenant
	var billingEmail sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id).Scan(
		&tenant.ID,
		&tenant.Name,
		&billingEmail,
		&tenant.CreatedAt,
		&tenant.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, accesserr.New(accesserr.NotFound, op, "tenant not found: %s", id)
	}
	if err != nil {
		return nil, accesserr.Store(op, fmt.Errorf("failed to get tenant: %w", err))
	}
	tenant.BillingEmail = billingEmail.String
	return &tenant, nil
}

// ListTenants returns all tenants ordered by name
func (s *Store) ListTenants(ctx context.Context) ([]*Tenant, error) {
	const op = "tenants.ListTenants"
	ctx, span := tracer.Start(ctx, op)
	defer span.End()

	rows, err := s.db.QueryContext(ctx, `SELECT `+tenantColumns+` FROM tenants ORDER BY name, id`)
	if err != nil {
		return nil, accesserr.Store(op, fmt.Errorf("failed to list tenants: %w", err))
	}
	defer rows.Close()

	var tenants []*Tenant
	for rows.Next() {
		var tenant Tenant
		var billingEmail sql.NullString
		if err := rows.Scan(&tenant.ID, &tenant.Name, &billingEmail, &tenant.CreatedAt, &tenant.UpdatedAt); err != nil {
			return nil, accesserr.Store(op, fmt.Errorf("failed to scan tenant: %w", err))
		}
		tenant.BillingEmail = billingEmail.String
		tenants = append(tenants, &tenant)
	}
	if err := rows.Err(); err != nil {
		return nil, accesserr.Store(op, err)
	}
	return tenants, nil
}

// Signup creates a tenant, its owner account and the owner's OWNER role
// assignment in one transaction. The base roles must already be seeded.
func (s *Store) Signup(ctx context.Context, params SignupParams) (*SignupResult, error) {
	const op = "tenants.Signup"
	ctx, span := tracer.Start(ctx, op)
	defer span.End()

	var result SignupResult
	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		tenant, err := s.insertTenant(ctx, tx, op, params.TenantName, params.BillingEmail)
		if err != nil {
			return err
		}

		owner, err := s.insertUser(ctx, tx, op, CreateUserParams{
			Email:        params.OwnerEmail,
			PasswordHash: params.PasswordHash,
			TenantID:     tenant.ID,
		})
		if err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO user_roles (id, user_id, role_id, tenant_id, assigned_by, assigned_at)
			SELECT $1, $2, id, $3, NULL, $4 FROM roles WHERE name = $5 AND tenant_id IS NULL
		`, uuid.NewString(), owner.ID, tenant.ID, s.now(), ownerRoleName)
		if err != nil {
			return accesserr.Store(op, fmt.Errorf("failed to grant owner role: %w", err))
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return accesserr.New(accesserr.NotFound, op, "base role %s is not seeded", ownerRoleName)
		}

		result.Tenant = tenant
		result.Owner = owner
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, accesserr.Store(op, err)
	}
	return &result, nil
}

// CreateUser creates a user account. A user attached to a point inherits
// the point's tenant when no tenant is given.
func (s *Store) CreateUser(ctx context.Context, params CreateUserParams) (*User, error) {
	const op = "tenants.CreateUser"
	ctx, span := tracer.Start(ctx, op)
	defer span.End()

	var user *User
	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if params.PointID != "" {
			point, err := s.getPoint(ctx, tx, op, params.PointID)
			if err != nil {
				return err
			}
			if params.TenantID == "" {
				params.TenantID = point.TenantID
			}
			if point.TenantID != params.TenantID {
				return accesserr.New(accesserr.Validation, op, "point %s does not belong to tenant %s", point.ID, params.TenantID)
			}
		} else if params.TenantID != "" {
			if err := s.tenantExists(ctx, tx, op, params.TenantID); err != nil {
				return err
			}
		}

		var err error
		user, err = s.insertUser(ctx, tx, op, params)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return nil, accesserr.Store(op, err)
	}
	return user, nil
}

func (s *Store) tenantExists(ctx context.Context, q querier, op, tenantID string) error {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM tenants WHERE id = $1`, tenantID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return accesserr.New(accesserr.NotFound, op, "tenant not found: %s", tenantID)
	}
	if err != nil {
		return accesserr.Store(op, fmt.Errorf("failed to check tenant: %w", err))
	}
	return nil
}

func (s *Store) insertUser(ctx context.Context, q querier, op string, params CreateUserParams) (*User, error) {
	email := NormalizeEmail(params.Email)
	if err := validate.Var(email, "required,email"); err != nil {
		return nil, accesserr.New(accesserr.Validation, op, "invalid email %q", params.Email)
	}

	id := params.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := s.now()
	user := &User{
		ID:              id,
		Email:           email,
		PasswordHash:    params.PasswordHash,
		IsPlatformOwner: params.IsPlatformOwner,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if params.TenantID != "" {
		tenantID := params.TenantID
		user.TenantID = &tenantID
	}
	if params.PointID != "" {
		pointID := params.PointID
		user.PointID = &pointID
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, is_platform_owner, tenant_id, point_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, user.ID, user.Email, user.PasswordHash, user.IsPlatformOwner,
		nullString(params.TenantID), nullString(params.PointID), user.CreatedAt, user.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, accesserr.New(accesserr.DuplicateName, op, "user with email %q already exists", email)
		}
		return nil, accesserr.Store(op, fmt.Errorf("failed to create user: %w", err))
	}
	return user, nil
}

func scanUser(row *sql.Row) (*User, error) {
	var user User
	var passwordHash, tenantID, pointID sql.NullString
	if err := row.Scan(
		&user.ID,
		&user.Email,
		&passwordHash,
		&user.IsPlatformOwner,
		&tenantID,
		&pointID,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return nil, err
	}
	user.PasswordHash = passwordHash.String
	if tenantID.Valid {
		user.TenantID = &tenantID.String
	}
	if pointID.Valid {
		user.PointID = &pointID.String
	}
	return &user, nil
}

// GetUser retrieves a user by ID
func (s *Store) GetUser(ctx context.Context, id string) (*User, error) {
	const op = "tenants.GetUser"
	ctx, span := tracer.Start(ctx, op)
	defer span.End()

	user, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, accesserr.New(accesserr.NotFound, op, "user not found: %s", id)
	}
	if err != nil {
		return nil, accesserr.Store(op, fmt.Errorf("failed to get user: %w", err))
	}
	return user, nil
}

// GetUserByEmail retrieves a user by email, case-insensitively
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	const op = "tenants.GetUserByEmail"
	ctx, span := tracer.Start(ctx, op)
	defer span.End()

	email = NormalizeEmail(email)
	user, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, accesserr.New(accesserr.NotFound, op, "user not found: %s", email)
	}
	if err != nil {
		return nil, accesserr.Store(op, fmt.Errorf("failed to get user: %w", err))
	}
	return user, nil
}

// LookupIdentity returns the identity fields of a user for principal resolution
func (s *Store) LookupIdentity(ctx context.Context, userID string) (*principal.Identity, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	ident := &principal.Identity{UserID: user.ID, IsPlatformOwner: user.IsPlatformOwner}
	if user.TenantID != nil {
		ident.TenantID = *user.TenantID
	}
	if user.PointID != nil {
		ident.PointID = *user.PointID
	}
	return ident, nil
}

// CreatePoint creates an active point in a tenant
func (s *Store) CreatePoint(ctx context.Context, tenantID, name string) (*Point, error) {
	const op = "tenants.CreatePoint"
	ctx, span := tracer.Start(ctx, op)
	defer span.End()

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, accesserr.New(accesserr.Validation, op, "point name is required")
	}

	now := s.now()
	point := &Point{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Name:      name,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := s.tenantExists(ctx, tx, op, tenantID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO points (id, tenant_id, name, is_active, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
			point.ID, point.TenantID, point.Name, point.IsActive, point.CreatedAt, point.UpdatedAt,
		)
		if err != nil {
			return accesserr.Store(op, fmt.Errorf("failed to create point: %w", err))
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, accesserr.Store(op, err)
	}
	return point, nil
}

// GetPoint retrieves a point by ID
func (s *Store) GetPoint(ctx context.Context, id string) (*Point, error) {
	ctx, span := tracer.Start(ctx, "tenants.GetPoint")
	defer span.End()
	return s.getPoint(ctx, s.db, "tenants.GetPoint", id)
}

func (s *Store) getPoint(ctx context.Context, q querier, op, id string) (*Point, error) {
	var point Point
	err := q.QueryRowContext(ctx, `SELECT `+pointColumns+` FROM points WHERE id = $1`, id).Scan(
		&point.ID,
		&point.TenantID,
		&point.Name,
		&point.IsActive,
		&point.CreatedAt,
		&point.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, accesserr.New(accesserr.NotFound, op, "point not found: %s", id)
	}
	if err != nil {
		return nil, accesserr.Store(op, fmt.Errorf("failed to get point: %w", err))
	}
	return &point, nil
}

// ListPoints returns a tenant's points. Inactive points are included only
// when includeInactive is set.
func (s *Store) ListPoints(ctx context.Context, tenantID string, includeInactive bool) ([]*Point, error) {
	const op = "tenants.ListPoints"
	ctx, span := tracer.Start(ctx, op)
	defer span.End()

	where := sq.And{sq.Eq{"tenant_id": tenantID}}
	if !includeInactive {
		where = append(where, sq.Eq{"is_active": true})
	}
	query, args, err := s.sql.Select(strings.Split(pointColumns, ", ")...).
		From("points").
		Where(where).
		OrderBy("name", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, accesserr.Store(op, fmt.Errorf("failed to list points: %w", err))
	}
	defer rows.Close()

	var points []*Point
	for rows.Next() {
		var point Point
		if err := rows.Scan(&point.ID, &point.TenantID, &point.Name, &point.IsActive, &point.CreatedAt, &point.UpdatedAt); err != nil {
			return nil, accesserr.Store(op, fmt.Errorf("failed to scan point: %w", err))
		}
		points = append(points, &point)
	}
	if err := rows.Err(); err != nil {
		return nil, accesserr.Store(op, err)
	}
	return points, nil
}

// SetPointActive activates or deactivates a point. Deactivation keeps the
// point's users attached.
func (s *Store) SetPointActive(ctx context.Context, id string, active bool) (*Point, error) {
	const op = "tenants.SetPointActive"
	ctx, span := tracer.Start(ctx, op)
	defer span.End()

	now := s.now()
	res, err := s.db.ExecContext(ctx,
		`UPDATE points SET is_active = $1, updated_at = $2 WHERE id = $3`,
		active, now, id,
	)
	if err != nil {
		return nil, accesserr.Store(op, fmt.Errorf("failed to update point: %w", err))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, accesserr.New(accesserr.NotFound, op, "point not found: %s", id)
	}
	return s.GetPoint(ctx, id)
}

// DeletePoint removes a point with no attached users
func (s *Store) DeletePoint(ctx context.Context, id string) error {
	const op = "tenants.DeletePoint"
	ctx, span := tracer.Start(ctx, op)
	defer span.End()

	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := s.getPoint(ctx, tx, op, id); err != nil {
			return err
		}

		var attached int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE point_id = $1`, id).Scan(&attached); err != nil {
			return accesserr.Store(op, fmt.Errorf("failed to count point users: %w", err))
		}
		if attached > 0 {
			return accesserr.New(accesserr.PointInUse, op, "point %s has %d attached users", id, attached)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM points WHERE id = $1`, id); err != nil {
			return accesserr.Store(op, fmt.Errorf("failed to delete point: %w", err))
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return accesserr.Store(op, err)
	}
	return nil
}
