package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/horecaops/backoffice/pkg/accesserr"
	"github.com/horecaops/backoffice/pkg/guard"
	"github.com/horecaops/backoffice/pkg/pageaccess"
	"github.com/horecaops/backoffice/pkg/principal"
	"github.com/spf13/cobra"
)

// parseUpdates reads slug=true|false pairs
func parseUpdates(args []string) ([]pageaccess.Update, error) {
	updates := make([]pageaccess.Update, 0, len(args))
	for _, arg := range args {
		slug, value, ok := strings.Cut(arg, "=")
		if !ok || slug == "" {
			return nil, accesserr.New(accesserr.Validation, "cli.matrix", "expected slug=true|false, got %q", arg)
		}
		allowed, err := strconv.ParseBool(value)
		if err != nil {
			return nil, accesserr.New(accesserr.Validation, "cli.matrix", "invalid value for %s: %q", slug, value)
		}
		updates = append(updates, pageaccess.Update{Slug: slug, Allowed: allowed})
	}
	return updates, nil
}

func newMatrixCommand(s *state) *cobra.Command {
	var tenantID, roleName string

	cmd := &cobra.Command{
		Use:   "matrix",
		Short: "Read or change which pages a role sees in a tenant (tenant owner only)",
	}
	cmd.PersistentFlags().StringVar(&tenantID, "tenant", "", "Tenant ID (defaults to the actor's tenant)")
	cmd.PersistentFlags().StringVar(&roleName, "role", "", "Role: OWNER, PARTNER, POINT or EMPLOYEE")
	_ = cmd.MarkPersistentFlagRequired("role")

	target := func(actor *principal.Principal) (string, principal.Role, error) {
		role, err := principal.ParseRole(roleName)
		if err != nil {
			return "", "", err
		}
		if tenantID == "" {
			return actor.TenantID, role, nil
		}
		return tenantID, role, nil
	}

	get := &cobra.Command{
		Use:   "get",
		Short: "Show the page matrix of a role",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runAs(cmd, func(ctx context.Context, app *App, actor *principal.Principal) error {
				tenant, role, err := target(actor)
				if err != nil {
					return err
				}
				pages, err := app.Guard.GetPageMatrix(ctx, actor, tenant, role)
				if err != nil {
					return err
				}
				return s.render(cmd.OutOrStdout(), pages, func(tw *tabwriter.Writer) {
					fmt.Fprintln(tw, "SLUG\tLABEL\tSYSTEM\tALLOWED")
					for _, p := range pages {
						fmt.Fprintf(tw, "%s\t%s\t%t\t%t\n", p.Slug, p.Label, p.System, p.Allowed)
					}
				})
			})
		},
	}

	set := &cobra.Command{
		Use:   "set slug=true|false...",
		Short: "Apply page overrides as one batch",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			updates, err := parseUpdates(args)
			if err != nil {
				return err
			}
			return s.runAs(cmd, func(ctx context.Context, app *App, actor *principal.Principal) error {
				tenant, role, err := target(actor)
				if err != nil {
					return err
				}
				err = app.Guard.SetPageMatrix(ctx, actor, guard.SetPageMatrixRequest{
					TenantID: tenant,
					Role:     role,
					Updates:  updates,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "updated %d pages for %s\n", len(updates), role)
				return nil
			})
		},
	}

	cmd.AddCommand(get, set)
	return cmd
}
