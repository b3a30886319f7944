package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/temporadb/tempora/internal/drift"
	"github.com/temporadb/tempora/internal/ui"
)

func driftCmd() *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "drift",
		Short: "Compare schema fingerprints and report drift",
		Long: `Drift hashes the declared tables and the live schema into merkle
fingerprints and compares them. Exit code 1 signals drift, for use in CI.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, models, _, err := openDatabase()
			if err != nil {
				return err
			}
			defer db.Close()

			result, err := drift.NewDetector(db).Detect(cmd.Context(), models)
			if err != nil {
				return err
			}

			if !quiet {
				for i, line := range drift.Describe(result) {
					if i == 0 && result.HasDrift {
						fmt.Println(ui.Warning(line))
						continue
					}
					fmt.Println(line)
				}
			}
			if result.HasDrift {
				cmd.SilenceUsage = true
				cmd.SilenceErrors = true
				return fmt.Errorf("schema drift detected")
			}
			if quiet {
				fmt.Println(ui.Success("no drift"))
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Suppress per-table details")
	return cmd
}
