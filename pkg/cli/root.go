package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/horecaops/backoffice/pkg/accesserr"
	"github.com/horecaops/backoffice/pkg/config"
	"github.com/horecaops/backoffice/pkg/principal"
	"github.com/spf13/cobra"
)

// AppFactory builds the App a command runs against
type AppFactory func(ctx context.Context) (*App, error)

// Option configures the root command
type Option func(*state)

// WithAppFactory replaces the environment-driven App construction
func WithAppFactory(factory AppFactory) Option {
	return func(s *state) { s.factory = factory }
}

// state is shared by every command of one root
type state struct {
	factory     AppFactory
	app         *App
	as          string
	output      string
	metricsFile string
}

func defaultFactory(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return NewApp(ctx, cfg)
}

// load builds the App on first use
func (s *state) load(ctx context.Context) (*App, error) {
	if s.app != nil {
		return s.app, nil
	}
	app, err := s.factory(ctx)
	if err != nil {
		return nil, err
	}
	s.app = app
	return app, nil
}

// run builds the App, runs fn against it and releases the App afterwards
func (s *state) run(cmd *cobra.Command, fn func(ctx context.Context, app *App) error) (err error) {
	ctx := cmd.Context()
	app, err := s.load(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if ferr := s.finish(ctx); err == nil {
			err = ferr
		}
	}()
	return fn(ctx, app)
}

// runAs is run with the --as user resolved through the guard
func (s *state) runAs(cmd *cobra.Command, fn func(ctx context.Context, app *App, actor *principal.Principal) error) error {
	return s.run(cmd, func(ctx context.Context, app *App) error {
		if s.as == "" {
			return accesserr.New(accesserr.Unauthorized, "cli", "--as <user-id> is required")
		}
		actor, err := app.Guard.AuthenticateUser(ctx, s.as)
		if err != nil {
			return err
		}
		return fn(ctx, app, actor)
	})
}

func (s *state) finish(ctx context.Context) error {
	if s.app == nil {
		return nil
	}
	app := s.app
	s.app = nil
	if s.metricsFile != "" && app.Registry != nil {
		if err := app.WriteMetrics(s.metricsFile); err != nil {
			app.Close(ctx)
			return fmt.Errorf("failed to write metrics: %w", err)
		}
	}
	return app.Close(ctx)
}

// render writes v as JSON, or as a table through table
func (s *state) render(out io.Writer, v interface{}, table func(tw *tabwriter.Writer)) error {
	if s.output == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	table(tw)
	return tw.Flush()
}

// NewRootCommand creates the horeca-access command tree
func NewRootCommand(opts ...Option) *cobra.Command {
	s := &state{factory: defaultFactory}
	for _, opt := range opts {
		opt(s)
	}

	root := &cobra.Command{
		Use:           "horeca-access",
		Short:         "HoReCa back-office access control",
		Long:          `Administer tenants, points, users, roles and page visibility of the HoReCa back-office.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch s.output {
			case "text", "json":
				return nil
			}
			return fmt.Errorf("invalid output format %q", s.output)
		},
	}

	root.PersistentFlags().StringVar(&s.as, "as", "", "User ID the command acts as")
	root.PersistentFlags().StringVarP(&s.output, "output", "o", "text", "Output format (text or json)")
	root.PersistentFlags().StringVar(&s.metricsFile, "metrics-file", "", "Write Prometheus metrics to this file on exit")

	root.AddCommand(
		newMigrateCommand(s),
		newSeedCommand(s),
		newTenantCommand(s),
		newPointCommand(s),
		newUserCommand(s),
		newRoleCommand(s),
		newAssignCommand(s),
		newPermissionsCommand(s),
		newMenuCommand(s),
		newMatrixCommand(s),
		newAuditCommand(s),
	)
	return root
}
