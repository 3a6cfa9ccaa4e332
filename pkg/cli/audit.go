package cli

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/horecaops/backoffice/pkg/audit"
	"github.com/horecaops/backoffice/pkg/principal"
	"github.com/spf13/cobra"
)

func newAuditCommand(s *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Read the audit trail",
	}
	cmd.AddCommand(newAuditListCommand(s))
	return cmd
}

func newAuditListCommand(s *state) *cobra.Command {
	var (
		filter audit.SearchFilter
		types  []string
		since  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List audit events, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, t := range types {
				filter.EventTypes = append(filter.EventTypes, audit.EventType(t))
			}
			if since > 0 {
				start := time.Now().Add(-since)
				filter.StartTime = &start
			}

			return s.runAs(cmd, func(ctx context.Context, app *App, actor *principal.Principal) error {
				events, err := app.Guard.SearchAudit(ctx, actor, filter)
				if err != nil {
					return err
				}
				return s.render(cmd.OutOrStdout(), events, func(tw *tabwriter.Writer) {
					fmt.Fprintln(tw, "TIME\tTYPE\tSTATUS\tACTOR\tTENANT\tMESSAGE")
					for _, e := range events {
						fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
							e.Timestamp.Format(time.RFC3339), e.EventType, e.Status, e.ActorID, e.TenantID, e.Message)
					}
				})
			})
		},
	}
	cmd.Flags().StringVar(&filter.TenantID, "tenant", "", "Tenant ID")
	cmd.Flags().StringVar(&filter.ActorID, "actor", "", "Actor user ID")
	cmd.Flags().StringSliceVar(&types, "type", nil, "Event types, e.g. authz.access_denied")
	cmd.Flags().DurationVar(&since, "since", 0, "Only events newer than this, e.g. 24h")
	cmd.Flags().IntVar(&filter.Limit, "limit", 100, "Maximum number of events")
	return cmd
}
