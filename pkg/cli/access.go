package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/horecaops/backoffice/pkg/guard"
	"github.com/horecaops/backoffice/pkg/principal"
	"github.com/horecaops/backoffice/pkg/rbac"
	"github.com/spf13/cobra"
)

// inspect returns the profile of userID, or of the actor when empty
func inspect(ctx context.Context, app *App, actor *principal.Principal, args []string) (*guard.Profile, error) {
	if len(args) == 0 {
		return app.Guard.AccessProfile(ctx, actor)
	}
	return app.Guard.InspectUser(ctx, actor, args[0])
}

func newPermissionsCommand(s *state) *cobra.Command {
	return &cobra.Command{
		Use:   "permissions [user-id]",
		Short: "Show the effective permissions of a user (default: the actor)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runAs(cmd, func(ctx context.Context, app *App, actor *principal.Principal) error {
				profile, err := inspect(ctx, app, actor, args)
				if err != nil {
					return err
				}
				return s.render(cmd.OutOrStdout(), profile.Permissions, func(tw *tabwriter.Writer) {
					p := profile.Principal
					fmt.Fprintf(tw, "user\t%s\n", p.UserID)
					fmt.Fprintf(tw, "structural role\t%s\n", p.StructuralRole)
					fmt.Fprintf(tw, "page role\t%s\n", profile.PageRole)
					fmt.Fprintln(tw, "\t")
					for _, f := range rbac.AllFlags() {
						fmt.Fprintf(tw, "%s\t%t\n", f, profile.Permissions.Has(f))
					}
				})
			})
		},
	}
}

func newMenuCommand(s *state) *cobra.Command {
	return &cobra.Command{
		Use:   "menu [user-id]",
		Short: "Show the menu a user sees (default: the actor)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runAs(cmd, func(ctx context.Context, app *App, actor *principal.Principal) error {
				profile, err := inspect(ctx, app, actor, args)
				if err != nil {
					return err
				}
				return s.render(cmd.OutOrStdout(), profile.Menu, func(tw *tabwriter.Writer) {
					fmt.Fprintln(tw, "SLUG\tLABEL\tPATH")
					for _, item := range profile.Menu {
						fmt.Fprintf(tw, "%s\t%s\t%s\n", item.Slug, item.Label, item.Path)
					}
				})
			})
		},
	}
}
