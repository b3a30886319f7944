// Package main provides the CLI for tempora, a schema synchronization and
// temporal versioning engine for PostgreSQL.
//
// Usage:
//
//	tempora plan                 # Show the changes a sync would apply
//	tempora sync                 # Bring the database schema to the declared tables
//	tempora sync --watch         # Re-sync whenever the models file changes
//	tempora drift                # Compare schema fingerprints and report drift
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	_ "github.com/lib/pq"

	"github.com/temporadb/tempora/internal/ui"
)

// version is set via ldflags during build: -ldflags="-X main.version=v1.0.0"
var version = "dev"

// Global flags
var (
	configFile  string
	databaseURL string
	modelsFile  string
	noColor     bool
	verbose     bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "tempora",
		Short: "Schema synchronization and temporal versioning for PostgreSQL",
		Long: `Tempora keeps a PostgreSQL schema in sync with declared table models and
provides temporal versioning (SCD2 and field-level audit trails) for the
records stored in them.`,
		Version: version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor {
				ui.SetColors(false)
			}
			setupLogging(verbose)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to config file (default: tempora.yaml)")
	rootCmd.PersistentFlags().StringVarP(&databaseURL, "database-url", "d", "", "Database connection URL")
	rootCmd.PersistentFlags().StringVarP(&modelsFile, "models", "m", "", "Path to the models file")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(
		planCmd(),
		syncCmd(),
		driftCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ui.FormatError(err))
		os.Exit(1)
	}
}
