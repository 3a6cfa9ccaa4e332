package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/horecaops/backoffice/pkg/guard"
	"github.com/horecaops/backoffice/pkg/principal"
	"github.com/horecaops/backoffice/pkg/rbac"
	"github.com/spf13/cobra"
)

// permissionFlags collects a permission document from --permissions,
// --grant and --deny
type permissionFlags struct {
	raw   string
	grant []string
	deny  []string
}

func (pf *permissionFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&pf.raw, "permissions", "", `Permission document as JSON, e.g. '{"modules":{"labeling":true}}'`)
	cmd.Flags().StringSliceVar(&pf.grant, "grant", nil, "Flags to grant, e.g. modules.labeling")
	cmd.Flags().StringSliceVar(&pf.deny, "deny", nil, "Flags to deny explicitly")
}

func (pf *permissionFlags) set() bool {
	return pf.raw != "" || len(pf.grant) > 0 || len(pf.deny) > 0
}

// doc builds the document. --grant and --deny are applied over --permissions.
func (pf *permissionFlags) doc() (rbac.PermissionDoc, error) {
	doc, err := rbac.ParsePermissionDoc([]byte(pf.raw))
	if err != nil {
		return nil, err
	}
	flags := map[rbac.Flag]bool{}
	for _, list := range []struct {
		names []string
		value bool
	}{{pf.grant, true}, {pf.deny, false}} {
		for _, name := range list.names {
			f, err := rbac.ParseFlag(name)
			if err != nil {
				return nil, err
			}
			flags[f] = list.value
		}
	}
	return doc.Merge(rbac.DocFromFlags(flags)), nil
}

func newRoleCommand(s *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "role",
		Short: "Manage roles",
	}
	cmd.AddCommand(newRoleListCommand(s), newRoleCreateCommand(s), newRoleUpdateCommand(s), newRoleDeleteCommand(s))
	return cmd
}

func newRoleListCommand(s *state) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the roles visible to the actor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runAs(cmd, func(ctx context.Context, app *App, actor *principal.Principal) error {
				roles, err := app.Guard.ListRoles(ctx, actor)
				if err != nil {
					return err
				}
				return s.render(cmd.OutOrStdout(), roles, func(tw *tabwriter.Writer) {
					printRoles(tw, roles)
				})
			})
		},
	}
}

func newRoleCreateCommand(s *state) *cobra.Command {
	var req guard.CreateRoleRequest
	var perms permissionFlags

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a role",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := perms.doc()
			if err != nil {
				return err
			}
			req.Permissions = doc

			return s.runAs(cmd, func(ctx context.Context, app *App, actor *principal.Principal) error {
				role, err := app.Guard.CreateRole(ctx, actor, req)
				if err != nil {
					return err
				}
				return s.render(cmd.OutOrStdout(), role, func(tw *tabwriter.Writer) {
					printRoles(tw, []*rbac.Role{role})
				})
			})
		},
	}
	cmd.Flags().StringVar(&req.Name, "name", "", "Role name")
	cmd.Flags().StringVar(&req.TenantID, "tenant", "", "Tenant ID (defaults to the actor's tenant)")
	cmd.Flags().BoolVar(&req.System, "system", false, "Create a system role shared by all tenants")
	cmd.Flags().StringVar(&req.InheritsFrom, "inherits-from", "", "Parent role ID")
	perms.register(cmd)
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newRoleUpdateCommand(s *state) *cobra.Command {
	var req guard.UpdateRoleRequest
	var name, parent string
	var perms permissionFlags

	cmd := &cobra.Command{
		Use:   "update <role-id>",
		Short: "Rename a role or change its permissions or parent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("name") {
				req.Name = &name
			}
			if cmd.Flags().Changed("inherits-from") {
				req.InheritsFrom = &parent
			}
			if perms.set() {
				doc, err := perms.doc()
				if err != nil {
					return err
				}
				req.Permissions = doc
			}

			return s.runAs(cmd, func(ctx context.Context, app *App, actor *principal.Principal) error {
				role, err := app.Guard.UpdateRole(ctx, actor, args[0], req)
				if err != nil {
					return err
				}
				return s.render(cmd.OutOrStdout(), role, func(tw *tabwriter.Writer) {
					printRoles(tw, []*rbac.Role{role})
				})
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "New role name")
	cmd.Flags().StringVar(&parent, "inherits-from", "", "New parent role ID")
	cmd.Flags().BoolVar(&req.ClearParent, "clear-parent", false, "Remove the parent role")
	perms.register(cmd)
	return cmd
}

func newRoleDeleteCommand(s *state) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <role-id>",
		Short: "Delete an unused role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runAs(cmd, func(ctx context.Context, app *App, actor *principal.Principal) error {
				if err := app.Guard.DeleteRole(ctx, actor, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted role %s\n", args[0])
				return nil
			})
		},
	}
}

func printRoles(tw *tabwriter.Writer, roles []*rbac.Role) {
	fmt.Fprintln(tw, "ID\tNAME\tSCOPE\tPARENT\tGRANTS")
	for _, r := range roles {
		scope := "system"
		if r.TenantID != nil {
			scope = *r.TenantID
		}
		parent := "-"
		if r.InheritsFrom != nil {
			parent = *r.InheritsFrom
		}
		set := rbac.NewPermissionSet()
		set.Overlay(r.Permissions)
		grants := make([]string, 0)
		for _, f := range set.Granted() {
			grants = append(grants, string(f))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.Name, scope, parent, strings.Join(grants, ","))
	}
}

func newAssignCommand(s *state) *cobra.Command {
	var req guard.AssignRoleRequest

	cmd := &cobra.Command{
		Use:   "assign",
		Short: "Replace a user's role in a tenant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runAs(cmd, func(ctx context.Context, app *App, actor *principal.Principal) error {
				if req.TenantID == "" {
					req.TenantID = actor.TenantID
				}
				ur, err := app.Guard.AssignRole(ctx, actor, req)
				if err != nil {
					return err
				}
				return s.render(cmd.OutOrStdout(), ur, func(tw *tabwriter.Writer) {
					fmt.Fprintf(tw, "assigned role %s to user %s in tenant %s\n", req.RoleName, ur.UserID, ur.TenantID)
				})
			})
		},
	}
	cmd.Flags().StringVar(&req.UserID, "user", "", "Target user ID")
	cmd.Flags().StringVar(&req.TenantID, "tenant", "", "Tenant ID (defaults to the actor's tenant)")
	cmd.Flags().StringVar(&req.RoleName, "role", "", "Role name")
	cmd.Flags().BoolVar(&req.Strict, "strict", false, "Fail when the user already holds the role")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}
