package cli

import (
	"context"
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/horecaops/backoffice/pkg/db"
	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"
)

func migrateArgs(cmd *cobra.Command, args []string) error {
	if err := cobra.RangeArgs(0, 2)(cmd, args); err != nil {
		return err
	}
	if len(args) == 0 {
		return nil
	}

	switch args[0] {
	case "up", "down", "status":
	default:
		return fmt.Errorf("invalid first argument: %q", args[0])
	}

	if len(args) == 2 {
		if args[0] != "down" {
			return fmt.Errorf("invalid argument combination: %q", args)
		}
		if version, err := strconv.Atoi(args[1]); err != nil || version < 0 {
			return fmt.Errorf("invalid version number: %q", args[1])
		}
	}
	return nil
}

func newMigrateCommand(s *state) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate [up|down [version]|status]",
		Short: "Run database migrations",
		Args:  migrateArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			command := "up"
			if len(args) > 0 {
				command = args[0]
			}
			version := int64(-1)
			if len(args) > 1 {
				v, _ := strconv.Atoi(args[1])
				version = int64(v)
			}

			return s.run(cmd, func(ctx context.Context, app *App) error {
				provider, err := db.NewMigrator(app.DB, app.Dialect, goose.WithLogger(goose.NopLogger()))
				if err != nil {
					return err
				}

				var results []*goose.MigrationResult
				switch command {
				case "status":
					return printStatus(ctx, s, cmd, provider)
				case "down":
					if version < 0 {
						var result *goose.MigrationResult
						result, err = provider.Down(ctx)
						if result != nil {
							results = append(results, result)
						}
					} else {
						results, err = provider.DownTo(ctx, version)
					}
				default:
					results, err = provider.Up(ctx)
				}
				if err != nil {
					return fmt.Errorf("migrate %s failed: %w", command, err)
				}

				if results == nil {
					results = []*goose.MigrationResult{}
				}
				return s.render(cmd.OutOrStdout(), map[string]interface{}{"applied": results}, func(tw *tabwriter.Writer) {
					if len(results) == 0 {
						fmt.Fprintln(tw, "no migrations to apply")
						return
					}
					for _, r := range results {
						fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Direction, r.Source.Path, r.Duration.Round(time.Millisecond))
					}
				})
			})
		},
	}
}

func printStatus(ctx context.Context, s *state, cmd *cobra.Command, provider *goose.Provider) error {
	statuses, err := provider.Status(ctx)
	if err != nil {
		return err
	}
	return s.render(cmd.OutOrStdout(), statuses, func(tw *tabwriter.Writer) {
		fmt.Fprintln(tw, "APPLIED AT\tMIGRATION")
		for _, st := range statuses {
			appliedAt := "Pending"
			if st.State == goose.StateApplied {
				appliedAt = st.AppliedAt.Format(time.RFC3339)
			}
			fmt.Fprintf(tw, "%s\t%s\n", appliedAt, st.Source.Path)
		}
	})
}
