package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	"github.com/horecaops/backoffice/pkg/audit"
	"github.com/horecaops/backoffice/pkg/config"
	"github.com/horecaops/backoffice/pkg/db"
	"github.com/horecaops/backoffice/pkg/guard"
	"github.com/horecaops/backoffice/pkg/observability"
	"github.com/horecaops/backoffice/pkg/pageaccess"
	"github.com/horecaops/backoffice/pkg/rbac"
	"github.com/horecaops/backoffice/pkg/tenants"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/pressly/goose/v3"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// App holds the wired components a command runs against
type App struct {
	Config    *config.Config
	Logger    *observability.Logger
	Metrics   *observability.Metrics
	Registry  *prometheus.Registry
	DB        *sql.DB
	Dialect   goose.Dialect
	Roles     *rbac.Store
	Directory *tenants.Store
	Menu      *pageaccess.Registry
	AuditLog  *audit.DBLogger
	Guard     *guard.Guard

	audit  audit.Logger
	tracer *sdktrace.TracerProvider
	ownsDB bool
}

// NewApp opens the configured database and wires every component over it.
// Tracing starts when enabled.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stderr)

	tp, err := observability.InitTracing(ctx, cfg.Observability.OTel, logger)
	if err != nil {
		return nil, err
	}

	conn, err := db.Open(ctx, cfg.Database)
	if err != nil {
		_ = observability.ShutdownTracing(ctx, tp, logger)
		return nil, err
	}

	app, err := NewAppFromDB(conn, goose.DialectPostgres, cfg, logger)
	if err != nil {
		conn.Close()
		_ = observability.ShutdownTracing(ctx, tp, logger)
		return nil, err
	}
	app.tracer = tp
	app.ownsDB = true
	return app, nil
}

// NewAppFromDB wires the components over an open connection. The caller
// keeps ownership of conn.
func NewAppFromDB(conn *sql.DB, dialect goose.Dialect, cfg *config.Config, logger *observability.Logger) (*App, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}

	menu, err := pageaccess.LoadRegistry(cfg.MenuRegistryPath)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config:    cfg,
		Logger:    logger,
		DB:        conn,
		Dialect:   dialect,
		Roles:     rbac.NewStore(conn),
		Directory: tenants.NewStore(conn),
		Menu:      menu,
	}

	if cfg.Observability.MetricsEnabled {
		app.Registry = prometheus.NewRegistry()
		app.Metrics = observability.NewMetrics(app.Registry)
	}

	app.AuditLog, err = audit.NewDBLogger(conn)
	if err != nil {
		return nil, err
	}
	app.audit = audit.NoopLogger{}
	if cfg.AuditEnabled {
		app.audit = audit.NewMultiLogger(app.AuditLog, audit.NewStructuredLogger(logger))
	}

	app.Guard = guard.New(guard.Deps{
		Users:       app.Directory,
		Roles:       app.Roles,
		Matrix:      pageaccess.NewMatrix(menu, pageaccess.NewStore(conn)),
		Audit:       app.audit,
		AuditReader: app.AuditLog,
		Logger:      logger,
		Metrics:     app.Metrics,
	})
	return app, nil
}

// WriteMetrics writes the collected metrics in the Prometheus text format
func (a *App) WriteMetrics(path string) error {
	if a.Registry == nil {
		return fmt.Errorf("metrics are disabled")
	}
	return prometheus.WriteToTextfile(path, a.Registry)
}

// Close flushes tracing and closes the database when the App opened it
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.tracer != nil {
		errs = append(errs, observability.ShutdownTracing(ctx, a.tracer, a.Logger))
	}
	if a.ownsDB {
		errs = append(errs, a.audit.Close())
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}
