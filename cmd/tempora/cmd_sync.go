package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/temporadb/tempora/internal/config"
	"github.com/temporadb/tempora/internal/dialect"
	"github.com/temporadb/tempora/internal/manager"
	"github.com/temporadb/tempora/internal/schema"
	"github.com/temporadb/tempora/internal/terr"
	"github.com/temporadb/tempora/internal/ui"
)

func syncCmd() *cobra.Command {
	var (
		dryRun           bool
		allowDestructive bool
		reason           string
		watch            bool
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Bring the database schema to the declared tables",
		Long: `Sync introspects the live schema, diffs it against the declared models,
and applies the resulting DDL. Destructive changes (drop table, drop column,
drop index) are skipped and reported unless --allow-destructive is set, which
also requires --reason.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if allowDestructive && reason == "" {
				return terr.New(terr.ErrConfigInvalid,
					"--allow-destructive requires --reason")
			}

			db, models, cfg, err := openDatabase()
			if err != nil {
				return err
			}
			defer db.Close()

			opts := manager.SyncOptions{
				AllowDestructive: allowDestructive,
				DryRun:           dryRun,
				Reason:           reason,
			}
			m := manager.New(db, dialect.Postgres(), slog.Default())

			if !watch {
				return runSync(cmd.Context(), m, models, opts)
			}
			return watchAndSync(cmd.Context(), m, cfg, opts)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report changes without applying them")
	cmd.Flags().BoolVar(&allowDestructive, "allow-destructive", false, "Apply drop changes instead of skipping them")
	cmd.Flags().StringVar(&reason, "reason", "", "Why destructive changes are authorized (required with --allow-destructive)")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Re-sync whenever the models file changes")
	return cmd
}

func runSync(ctx context.Context, m *manager.Manager, models []*schema.TableDef, opts manager.SyncOptions) error {
	count, err := m.Sync(ctx, models, opts)
	if err != nil {
		return err
	}
	switch {
	case opts.DryRun:
		fmt.Println(ui.Info(fmt.Sprintf("dry run: %d change(s) would be applied", count)))
	case count == 0:
		fmt.Println(ui.Success("schema is up to date"))
	default:
		fmt.Println(ui.Success(fmt.Sprintf("applied %d change(s)", count)))
	}
	return nil
}

// watchAndSync runs one sync, then re-runs whenever the models file changes.
// Events are debounced; editors often emit several writes per save.
func watchAndSync(ctx context.Context, m *manager.Manager, cfg *config.Config, opts manager.SyncOptions) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	syncOnce := func() {
		models, err := config.LoadModels(cfg.ModelsFile)
		if err != nil {
			fmt.Fprintln(os.Stderr, ui.FormatError(err))
			return
		}
		if err := runSync(ctx, m, models, opts); err != nil {
			fmt.Fprintln(os.Stderr, ui.FormatError(err))
		}
	}
	syncOnce()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return terr.Wrap(terr.ErrConfigInvalid, err, "failed to create file watcher")
	}
	defer watcher.Close()

	// Watch the directory, not the file: editors replace files on save,
	// which drops a direct file watch.
	dir := filepath.Dir(cfg.ModelsFile)
	if err := watcher.Add(dir); err != nil {
		return terr.Wrap(terr.ErrConfigInvalid, err, "failed to watch models directory").
			With("dir", dir)
	}
	fmt.Println(ui.Info("watching " + cfg.ModelsFile + " for changes"))

	target := filepath.Clean(cfg.ModelsFile)
	var debounce *time.Timer
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(250*time.Millisecond, syncOnce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintln(os.Stderr, ui.FormatError(err))
		}
	}
}
