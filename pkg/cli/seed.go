package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/horecaops/backoffice/pkg/accesserr"
	"github.com/horecaops/backoffice/pkg/rbac"
	"github.com/horecaops/backoffice/pkg/tenants"
	"github.com/spf13/cobra"
)

type seedResult struct {
	Roles         []*rbac.Role  `json:"roles"`
	PlatformOwner *tenants.User `json:"platform_owner,omitempty"`
}

func newSeedCommand(s *state) *cobra.Command {
	var ownerEmail string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Seed the base roles and optionally the first platform owner",
		Long: `Seed creates the OWNER, PARTNER and POINT system roles when missing.
With --platform-owner-email it also creates that platform owner account unless
it already exists. Seeding needs database access only, not an --as user.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.run(cmd, func(ctx context.Context, app *App) error {
				roles, err := app.Roles.SeedBaseRoles(ctx)
				if err != nil {
					return err
				}
				result := seedResult{Roles: roles}

				if ownerEmail != "" {
					user, err := app.Directory.GetUserByEmail(ctx, ownerEmail)
					if accesserr.IsNotFound(err) {
						user, err = app.Directory.CreateUser(ctx, tenants.CreateUserParams{Email: ownerEmail, IsPlatformOwner: true})
					}
					if err != nil {
						return err
					}
					if !user.IsPlatformOwner {
						return accesserr.New(accesserr.Validation, "cli.seed", "user %s exists and is not a platform owner", user.Email)
					}
					result.PlatformOwner = user
				}

				return s.render(cmd.OutOrStdout(), result, func(tw *tabwriter.Writer) {
					for _, r := range roles {
						fmt.Fprintf(tw, "role\t%s\t%s\n", r.Name, r.ID)
					}
					if result.PlatformOwner != nil {
						fmt.Fprintf(tw, "platform owner\t%s\t%s\n", result.PlatformOwner.Email, result.PlatformOwner.ID)
					}
				})
			})
		},
	}
	cmd.Flags().StringVar(&ownerEmail, "platform-owner-email", "", "Create this platform owner account")
	return cmd
}
