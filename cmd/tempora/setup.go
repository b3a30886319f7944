package main

import (
	"database/sql"
	"log/slog"
	"os"

	"github.com/temporadb/tempora/internal/config"
	"github.com/temporadb/tempora/internal/schema"
	"github.com/temporadb/tempora/internal/terr"
)

// setupLogging configures the process-wide slog handler. Logs go to stderr
// so command output on stdout stays parseable.
func setupLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))
}

// loadConfig loads the config file and applies flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	if databaseURL != "" {
		cfg.DatabaseURL = databaseURL
	}
	if modelsFile != "" {
		cfg.ModelsFile = modelsFile
	}
	return cfg, nil
}

// openDatabase loads config, validates it, opens the connection pool, and
// loads the declared models. The caller owns the returned pool.
func openDatabase() (*sql.DB, []*schema.TableDef, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, err
	}

	models, err := config.LoadModels(cfg.ModelsFile)
	if err != nil {
		return nil, nil, nil, err
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, terr.Wrap(terr.ErrConfigInvalid, err, "failed to open database connection")
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, nil, nil, terr.Wrap(terr.ErrConfigInvalid, err, "failed to reach database")
	}
	return db, models, cfg, nil
}
