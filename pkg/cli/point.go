package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/horecaops/backoffice/pkg/guard"
	"github.com/horecaops/backoffice/pkg/principal"
	"github.com/horecaops/backoffice/pkg/tenants"
	"github.com/spf13/cobra"
)

func newPointCommand(s *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "point",
		Short: "Manage the points of a tenant",
	}
	cmd.AddCommand(
		newPointCreateCommand(s),
		newPointListCommand(s),
		newPointActiveCommand(s, "activate", true),
		newPointActiveCommand(s, "deactivate", false),
		newPointDeleteCommand(s),
	)
	return cmd
}

func newPointCreateCommand(s *state) *cobra.Command {
	var req guard.CreatePointRequest

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a point",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runAs(cmd, func(ctx context.Context, app *App, actor *principal.Principal) error {
				if req.TenantID == "" {
					req.TenantID = actor.TenantID
				}
				point, err := app.Guard.CreatePoint(ctx, actor, req)
				if err != nil {
					return err
				}
				return s.render(cmd.OutOrStdout(), point, func(tw *tabwriter.Writer) {
					printPoints(tw, []*tenants.Point{point})
				})
			})
		},
	}
	cmd.Flags().StringVar(&req.TenantID, "tenant", "", "Tenant ID (defaults to the actor's tenant)")
	cmd.Flags().StringVar(&req.Name, "name", "", "Point name")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newPointListCommand(s *state) *cobra.Command {
	var tenantID string
	var all bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List points",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runAs(cmd, func(ctx context.Context, app *App, actor *principal.Principal) error {
				if tenantID == "" {
					tenantID = actor.TenantID
				}
				points, err := app.Guard.ListPoints(ctx, actor, tenantID, all)
				if err != nil {
					return err
				}
				return s.render(cmd.OutOrStdout(), points, func(tw *tabwriter.Writer) {
					printPoints(tw, points)
				})
			})
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant", "", "Tenant ID (defaults to the actor's tenant)")
	cmd.Flags().BoolVar(&all, "all", false, "Include inactive points")
	return cmd
}

func newPointActiveCommand(s *state, use string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <point-id>",
		Short: fmt.Sprintf("Mark a point %sd", use),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runAs(cmd, func(ctx context.Context, app *App, actor *principal.Principal) error {
				point, err := app.Guard.SetPointActive(ctx, actor, args[0], active)
				if err != nil {
					return err
				}
				return s.render(cmd.OutOrStdout(), point, func(tw *tabwriter.Writer) {
					printPoints(tw, []*tenants.Point{point})
				})
			})
		},
	}
}

func newPointDeleteCommand(s *state) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <point-id>",
		Short: "Delete a point without attached users",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runAs(cmd, func(ctx context.Context, app *App, actor *principal.Principal) error {
				if err := app.Guard.DeletePoint(ctx, actor, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted point %s\n", args[0])
				return nil
			})
		},
	}
}

func printPoints(tw *tabwriter.Writer, points []*tenants.Point) {
	fmt.Fprintln(tw, "ID\tTENANT\tNAME\tACTIVE")
	for _, p := range points {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\n", p.ID, p.TenantID, p.Name, p.IsActive)
	}
}
