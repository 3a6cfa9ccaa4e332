package cli

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/horecaops/backoffice/pkg/guard"
	"github.com/horecaops/backoffice/pkg/principal"
	"github.com/horecaops/backoffice/pkg/tenants"
	"github.com/spf13/cobra"
)

func newTenantCommand(s *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage tenants (platform owners only)",
	}
	cmd.AddCommand(newTenantCreateCommand(s), newTenantSignupCommand(s), newTenantListCommand(s))
	return cmd
}

func newTenantCreateCommand(s *state) *cobra.Command {
	var req guard.CreateTenantRequest

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an empty tenant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runAs(cmd, func(ctx context.Context, app *App, actor *principal.Principal) error {
				tenant, err := app.Guard.CreateTenant(ctx, actor, req)
				if err != nil {
					return err
				}
				return s.render(cmd.OutOrStdout(), tenant, func(tw *tabwriter.Writer) {
					printTenants(tw, []*tenants.Tenant{tenant})
				})
			})
		},
	}
	cmd.Flags().StringVar(&req.Name, "name", "", "Tenant name")
	cmd.Flags().StringVar(&req.BillingEmail, "billing-email", "", "Billing contact")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newTenantSignupCommand(s *state) *cobra.Command {
	var req guard.SignupRequest

	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create a tenant together with its owner account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runAs(cmd, func(ctx context.Context, app *App, actor *principal.Principal) error {
				result, err := app.Guard.Signup(ctx, actor, req)
				if err != nil {
					return err
				}
				return s.render(cmd.OutOrStdout(), result, func(tw *tabwriter.Writer) {
					fmt.Fprintf(tw, "tenant\t%s\t%s\n", result.Tenant.Name, result.Tenant.ID)
					fmt.Fprintf(tw, "owner\t%s\t%s\n", result.Owner.Email, result.Owner.ID)
				})
			})
		},
	}
	cmd.Flags().StringVar(&req.TenantName, "name", "", "Tenant name")
	cmd.Flags().StringVar(&req.OwnerEmail, "owner-email", "", "Email of the owner account")
	cmd.Flags().StringVar(&req.BillingEmail, "billing-email", "", "Billing contact")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("owner-email")
	return cmd
}

func newTenantListCommand(s *state) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List tenants",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runAs(cmd, func(ctx context.Context, app *App, actor *principal.Principal) error {
				list, err := app.Guard.ListTenants(ctx, actor)
				if err != nil {
					return err
				}
				return s.render(cmd.OutOrStdout(), list, func(tw *tabwriter.Writer) {
					printTenants(tw, list)
				})
			})
		},
	}
}

func printTenants(tw *tabwriter.Writer, list []*tenants.Tenant) {
	fmt.Fprintln(tw, "ID\tNAME\tBILLING EMAIL\tCREATED")
	for _, t := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", t.ID, t.Name, t.BillingEmail, t.CreatedAt.Format(time.RFC3339))
	}
}
