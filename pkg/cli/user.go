package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/horecaops/backoffice/pkg/guard"
	"github.com/horecaops/backoffice/pkg/principal"
	"github.com/spf13/cobra"
)

func newUserCommand(s *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
	}
	cmd.AddCommand(newUserCreateCommand(s))
	return cmd
}

func newUserCreateCommand(s *state) *cobra.Command {
	var req guard.CreateUserRequest

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user account",
		Long: `Create a user account. The structural role follows from the placement:
--platform-owner for a platform owner, --point for point staff, --tenant alone
for a partner, and neither for an employee outside any tenant.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runAs(cmd, func(ctx context.Context, app *App, actor *principal.Principal) error {
				user, err := app.Guard.CreateUser(ctx, actor, req)
				if err != nil {
					return err
				}
				role := principal.InferStructuralRole(user.IsPlatformOwner, user.TenantID != nil, user.PointID != nil)
				return s.render(cmd.OutOrStdout(), user, func(tw *tabwriter.Writer) {
					fmt.Fprintln(tw, "ID\tEMAIL\tSTRUCTURAL ROLE")
					fmt.Fprintf(tw, "%s\t%s\t%s\n", user.ID, user.Email, role)
				})
			})
		},
	}
	cmd.Flags().StringVar(&req.Email, "email", "", "Email address")
	cmd.Flags().StringVar(&req.TenantID, "tenant", "", "Tenant ID")
	cmd.Flags().StringVar(&req.PointID, "point", "", "Point ID")
	cmd.Flags().BoolVar(&req.PlatformOwner, "platform-owner", false, "Create a platform owner")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}
