package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/temporadb/tempora/internal/dialect"
	"github.com/temporadb/tempora/internal/diff"
	"github.com/temporadb/tempora/internal/manager"
	"github.com/temporadb/tempora/internal/ui"
)

func planCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Show the changes a sync would apply",
		Long: `Plan introspects the live schema and prints the full ordered change list,
including destructive candidates a plain sync would skip. Nothing is applied.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, models, _, err := openDatabase()
			if err != nil {
				return err
			}
			defer db.Close()

			m := manager.New(db, dialect.Postgres(), slog.Default())
			changes, err := m.Plan(cmd.Context(), models)
			if err != nil {
				return err
			}

			if len(changes) == 0 {
				fmt.Println(ui.Success("schema is up to date"))
				return nil
			}

			for _, c := range changes {
				line := "  " + c.String()
				if c.Destructive() {
					line += " (destructive; requires --allow-destructive)"
					fmt.Println(ui.Yellow(line))
				} else {
					fmt.Println(line)
				}
			}

			s := diff.Summarize(changes)
			fmt.Println()
			fmt.Println(ui.Bold(fmt.Sprintf(
				"%d change(s): +%d/-%d tables, +%d/-%d/~%d columns, +%d/-%d indexes",
				len(changes),
				s.TablesToAdd, s.TablesToDrop,
				s.ColumnsToAdd, s.ColumnsToDrop, s.ColumnsToAlter,
				s.IndexesToAdd, s.IndexesToDrop,
			)))
			return nil
		},
	}
}
