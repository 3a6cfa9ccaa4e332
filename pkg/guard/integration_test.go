//go:build integration

package guard

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/horecaops/backoffice/pkg/db"
	"github.com/horecaops/backoffice/pkg/pageaccess"
	"github.com/horecaops/backoffice/pkg/rbac"
	"github.com/horecaops/backoffice/pkg/tenants"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupPostgres starts a PostgreSQL container with the schema applied
func setupPostgres(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("access_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
		postgres.BasicWaitStrategies(),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	conn, err := db.Open(ctx, db.ConnectionConfig{URL: connStr, MaxConns: 20, MinConns: 2})
	require.NoError(t, err)

	_, err = db.Migrate(ctx, conn, goose.DialectPostgres)
	require.NoError(t, err, "Failed to run migrations")

	t.Cleanup(func() {
		conn.Close()
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(cleanupCtx); err != nil {
			t.Logf("Warning: Failed to terminate container: %v", err)
		}
	})
	return conn
}

func newPostgresGuard(t *testing.T, conn *sql.DB, dir *tenants.Store, roles *rbac.Store) *Guard {
	t.Helper()
	registry, err := pageaccess.DefaultRegistry()
	require.NoError(t, err)
	return New(Deps{
		Users:  dir,
		Roles:  roles,
		Matrix: pageaccess.NewMatrix(registry, pageaccess.NewStore(conn)),
	})
}

func TestIntegration_ConcurrentAssignmentsKeepOneRole(t *testing.T) {
	conn := setupPostgres(t)
	ctx := context.Background()

	roles := rbac.NewStore(conn)
	dir := tenants.NewStore(conn)
	_, err := roles.SeedBaseRoles(ctx)
	require.NoError(t, err)

	g := newPostgresGuard(t, conn, dir, roles)

	signup, err := dir.Signup(ctx, tenants.SignupParams{TenantName: "Cafe", OwnerEmail: "owner@example.com"})
	require.NoError(t, err)
	tenantID := signup.Tenant.ID
	owner, err := g.ResolvePrincipal(ctx, signup.Owner.ID)
	require.NoError(t, err)

	target, err := dir.CreateUser(ctx, tenants.CreateUserParams{Email: "staff@example.com", TenantID: tenantID})
	require.NoError(t, err)

	var names []string
	for i := 0; i < 8; i++ {
		name := fmt.Sprintf("Shift %d", i)
		_, err := g.CreateRole(ctx, owner, CreateRoleRequest{Name: name})
		require.NoError(t, err)
		names = append(names, name)
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(names))
	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			_, err := g.AssignRole(ctx, owner, AssignRoleRequest{UserID: target.ID, TenantID: tenantID, RoleName: name})
			errs <- err
		}(name)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	var count int
	require.NoError(t, conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM user_roles WHERE user_id = $1 AND tenant_id = $2`, target.ID, tenantID,
	).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestIntegration_SignupAndMatrixOnPostgres(t *testing.T) {
	conn := setupPostgres(t)
	ctx := context.Background()

	roles := rbac.NewStore(conn)
	dir := tenants.NewStore(conn)
	_, err := roles.SeedBaseRoles(ctx)
	require.NoError(t, err)

	g := newPostgresGuard(t, conn, dir, roles)

	signup, err := dir.Signup(ctx, tenants.SignupParams{TenantName: "Cafe", OwnerEmail: "owner@example.com"})
	require.NoError(t, err)
	owner, err := g.ResolvePrincipal(ctx, signup.Owner.ID)
	require.NoError(t, err)
	require.True(t, owner.OwnsTenant)

	for i := 0; i < 2; i++ {
		require.NoError(t, g.SetPageMatrix(ctx, owner, SetPageMatrixRequest{
			TenantID: signup.Tenant.ID,
			Role:     "POINT",
			Updates:  []pageaccess.Update{{Slug: "reports", Allowed: i == 0}},
		}))
	}

	pages, err := g.GetPageMatrix(ctx, owner, signup.Tenant.ID, "POINT")
	require.NoError(t, err)
	for _, page := range pages {
		assert.False(t, page.Allowed, page.Slug)
	}
}
