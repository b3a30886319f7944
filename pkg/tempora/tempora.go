// Package tempora is the public API for the tempora engine: declarative
// schema synchronization plus temporal record versioning on PostgreSQL.
//
// Declare tables once at startup, sync them, then read and write records
// through strategy-aware repositories:
//
//	client, err := tempora.New(tempora.WithDatabaseURL(url))
//	if err != nil { ... }
//	defer client.Close()
//
//	products := tempora.Table{
//		Name:     "products",
//		Strategy: tempora.SCD2,
//		Columns: []tempora.Column{
//			{Name: "name", Type: tempora.String},
//			{Name: "price", Type: tempora.Float},
//		},
//	}
//	if _, err := client.Sync(ctx, []tempora.Table{products}); err != nil { ... }
//
//	repo, err := client.Repository(products)
//	rec, err := repo.Create(ctx, tempora.Record{"name": "X", "price": 10}, "svc")
package tempora

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	_ "github.com/lib/pq"

	"github.com/temporadb/tempora/internal/dialect"
	"github.com/temporadb/tempora/internal/drift"
	"github.com/temporadb/tempora/internal/manager"
	"github.com/temporadb/tempora/internal/repository"
	"github.com/temporadb/tempora/internal/terr"
)

// Client is the entry point for schema synchronization, drift detection, and
// repository access. Safe for concurrent use.
type Client struct {
	db      *sql.DB
	ownsDB  bool
	timeout time.Duration
	log     *slog.Logger
	manager *manager.Manager
}

// New creates a Client from the given options. Either WithDatabaseURL or
// WithDB is required.
func New(opts ...Option) (*Client, error) {
	cfg := &Config{
		Timeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	db := cfg.DB
	ownsDB := false
	if db == nil {
		if cfg.DatabaseURL == "" {
			return nil, ErrMissingDatabaseURL
		}
		opened, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, terr.Wrap(terr.ErrConfigInvalid, err, "failed to open database connection")
		}
		if err := opened.Ping(); err != nil {
			opened.Close()
			return nil, terr.Wrap(terr.ErrConfigInvalid, err, "failed to reach database")
		}
		db = opened
		ownsDB = true
	}

	return &Client{
		db:      db,
		ownsDB:  ownsDB,
		timeout: cfg.Timeout,
		log:     cfg.Logger,
		manager: manager.New(db, dialect.Postgres(), cfg.Logger),
	}, nil
}

// Close releases the connection pool if the client opened it. Injected pools
// stay open.
func (c *Client) Close() error {
	if c.ownsDB {
		return c.db.Close()
	}
	return nil
}

// DB exposes the underlying connection pool.
func (c *Client) DB() *sql.DB {
	return c.db
}

// Sync brings the live schema to the declared tables and returns the number
// of changes applied.
func (c *Client) Sync(ctx context.Context, tables []Table, opts ...SyncOption) (int, error) {
	cfg := applySyncOptions(opts)
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	return c.manager.Sync(ctx, toInternalTables(tables), manager.SyncOptions{
		AllowDestructive: cfg.AllowDestructive,
		DryRun:           cfg.DryRun,
		Reason:           cfg.Reason,
	})
}

// Plan returns a human-readable description of every change a sync would
// consider, destructive candidates included. Nothing is applied.
func (c *Client) Plan(ctx context.Context, tables []Table) ([]string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	changes, err := c.manager.Plan(ctx, toInternalTables(tables))
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(changes))
	for _, change := range changes {
		out = append(out, change.String())
	}
	return out, nil
}

// DriftReport is the outcome of a fingerprint comparison.
type DriftReport struct {
	HasDrift bool
	// Details are human-readable drift lines, one per difference.
	Details []string
}

// Drift compares the fingerprint of the declared tables against the live
// schema.
func (c *Client) Drift(ctx context.Context, tables []Table) (*DriftReport, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	result, err := drift.NewDetector(c.db).Detect(ctx, toInternalTables(tables))
	if err != nil {
		return nil, err
	}
	return &DriftReport{
		HasDrift: result.HasDrift,
		Details:  drift.Describe(result),
	}, nil
}

// Repository returns the record store for one declared table, dispatched on
// the table's strategy.
func (c *Client) Repository(table Table) (*Repo, error) {
	inner, err := repository.New(c.db, dialect.Postgres(), table.toInternal(), c.log)
	if err != nil {
		return nil, err
	}
	return &Repo{inner: inner, timeout: c.timeout}, nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}
