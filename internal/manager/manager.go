// Package manager reconciles declared table definitions against the live
// database schema. It normalizes declarations, synthesizes audit tables,
// diffs against introspection, and applies DDL per table in transactions.
package manager

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/temporadb/tempora/internal/dialect"
	"github.com/temporadb/tempora/internal/diff"
	"github.com/temporadb/tempora/internal/introspect"
	"github.com/temporadb/tempora/internal/schema"
	"github.com/temporadb/tempora/internal/sqlgen"
	"github.com/temporadb/tempora/internal/terr"
)

// Manager owns schema synchronization for one database.
type Manager struct {
	db      *sql.DB
	builder *sqlgen.Builder
	intro   *introspect.Introspector
	log     *slog.Logger
}

// New creates a Manager over the caller-owned connection pool.
func New(db *sql.DB, d dialect.Dialect, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		db:      db,
		builder: sqlgen.New(d),
		intro:   introspect.New(db),
		log:     log,
	}
}

// SyncOptions controls a Sync run.
type SyncOptions struct {
	// AllowDestructive applies drop changes instead of skipping them.
	// Requires Reason.
	AllowDestructive bool
	// DryRun computes and logs the plan without touching the database.
	DryRun bool
	// Reason is recorded in the log when destructive changes are enabled.
	Reason string
}

// Sync brings the live schema to the declared one and returns the number of
// changes applied (or, under DryRun, the number that would be applied).
// Destructive changes are skipped and logged unless opts.AllowDestructive is
// set. A failed statement aborts the remaining changes for that table only;
// other tables still apply, and the failures are returned joined.
func (m *Manager) Sync(ctx context.Context, models []*schema.TableDef, opts SyncOptions) (int, error) {
	if opts.AllowDestructive && opts.Reason == "" {
		return 0, terr.New(terr.ErrConfigInvalid,
			"destructive sync requires a reason; pass SyncOptions.Reason")
	}

	changes, err := m.Plan(ctx, models)
	if err != nil {
		return 0, err
	}

	toApply := m.gate(changes, opts)

	if opts.DryRun {
		for _, c := range toApply {
			m.log.Info("would apply", "change", c.String())
		}
		return len(toApply), nil
	}

	if opts.AllowDestructive && len(toApply) > 0 {
		m.log.Warn("destructive changes enabled", "reason", opts.Reason)
	}

	return m.apply(ctx, toApply)
}

// Plan normalizes the declared models, introspects the live schema, and
// returns the full ordered change list, destructive candidates included.
func (m *Manager) Plan(ctx context.Context, models []*schema.TableDef) ([]diff.Change, error) {
	declared, err := NormalizeModels(models)
	if err != nil {
		return nil, err
	}

	live, err := m.intro.Schema(ctx)
	if err != nil {
		return nil, err
	}

	return diff.Diff(declared, live), nil
}

// NormalizeModels validates each declared table, fills in the engine-managed
// columns for its strategy, and appends the synthesized audit table for every
// copy_on_change table. Duplicate table names are rejected.
func NormalizeModels(models []*schema.TableDef) ([]*schema.TableDef, error) {
	seen := make(map[string]bool, len(models)*2)
	out := make([]*schema.TableDef, 0, len(models)*2)

	add := func(t *schema.TableDef) error {
		if seen[t.Name] {
			return terr.New(terr.ErrSchemaDuplicate, "duplicate table name").
				WithTable(t.Name)
		}
		seen[t.Name] = true
		out = append(out, t)
		return nil
	}

	for _, model := range models {
		if err := model.Validate(); err != nil {
			return nil, err
		}
		normalized := schema.Normalize(model)
		if err := add(normalized); err != nil {
			return nil, err
		}
		if model.Strategy == schema.StrategyCopyOnChange {
			if err := add(schema.AuditTableFor(model)); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// gate filters the change list per options: destructive changes are skipped
// (with a warning) unless allowed. When a gated DropIndex was half of an
// index rebuild, the paired AddIndex under the same name is skipped too;
// creating it would collide with the still-existing index.
func (m *Manager) gate(changes []diff.Change, opts SyncOptions) []diff.Change {
	if opts.AllowDestructive {
		return changes
	}

	type key struct{ table, index string }
	gatedDrops := make(map[key]bool)

	var kept []diff.Change
	for _, c := range changes {
		if c.Destructive() {
			if c.Kind == diff.DropIndex {
				gatedDrops[key{c.Table.Name, c.Index.Name}] = true
			}
			m.log.Warn("skipping destructive change; re-run with allow-destructive to apply",
				"change", c.String())
			continue
		}
		if c.Kind == diff.AddIndex && c.Index != nil &&
			gatedDrops[key{c.Table.Name, c.Index.Name}] {
			m.log.Warn("skipping index rebuild; its drop was skipped",
				"change", c.String())
			continue
		}
		kept = append(kept, c)
	}
	return kept
}

// apply executes the change list grouped per table, one transaction per
// table, preserving the differ's ordering within each group.
func (m *Manager) apply(ctx context.Context, changes []diff.Change) (int, error) {
	groups, order := groupByTable(changes)

	applied := 0
	var errs []error
	for _, table := range order {
		n, err := m.applyTable(ctx, table, groups[table])
		applied += n
		if err != nil {
			errs = append(errs, err)
		}
	}
	return applied, errors.Join(errs...)
}

// groupByTable splits changes into per-table groups, keeping the groups in
// first-occurrence order and the changes within each group in input order.
func groupByTable(changes []diff.Change) (map[string][]diff.Change, []string) {
	groups := make(map[string][]diff.Change)
	var order []string
	for _, c := range changes {
		name := c.Table.Name
		if _, exists := groups[name]; !exists {
			order = append(order, name)
		}
		groups[name] = append(groups[name], c)
	}
	return groups, order
}

// applyTable runs one table's changes inside a single transaction. Returns
// the number of changes committed; on any failure the whole group rolls back
// and the count is zero.
func (m *Manager) applyTable(ctx context.Context, table string, changes []diff.Change) (int, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, terr.Wrap(terr.ErrSQLTransaction, err, "failed to begin transaction").
			WithTable(table)
	}
	defer tx.Rollback()

	for _, c := range changes {
		if c.Kind == diff.AlterColumn {
			if err := narrowingConflict(c.Column, c.LiveColumn); err != nil {
				return 0, err
			}
		}
		stmts, err := m.statementsFor(c)
		if err != nil {
			return 0, terr.Wrap(terr.ErrDDLApplication, err, "failed to render change").
				WithTable(table).
				WithChange(c.String())
		}
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return 0, terr.Wrap(terr.ErrDDLApplication, err, "failed to apply change").
					WithTable(table).
					WithChange(c.String()).
					WithSQL(stmt)
			}
		}
		m.log.Info("applied", "change", c.String())
	}

	if err := tx.Commit(); err != nil {
		return 0, terr.Wrap(terr.ErrSQLTransaction, err, "failed to commit changes").
			WithTable(table)
	}
	return len(changes), nil
}

// widenings lists the cross-type alterations Postgres can perform without
// losing values. Any other type change is a conflict, not a migration.
var widenings = map[schema.ColumnType]map[schema.ColumnType]bool{
	schema.TypeInteger: {schema.TypeBigInt: true, schema.TypeFloat: true, schema.TypeDecimal: true},
	schema.TypeBigInt:  {schema.TypeDecimal: true},
	schema.TypeFloat:   {schema.TypeDecimal: true},
	schema.TypeString:  {schema.TypeText: true},
}

// narrowingConflict rejects an AlterColumn the live data may not survive:
// a type change outside the widening set, a VARCHAR bound smaller than the
// live one, or a NUMERIC precision/scale shrink. These are never attempted;
// the caller gets a schema conflict instead of a failed (or silently
// truncating) ALTER.
func narrowingConflict(declared, live *schema.ColumnDef) error {
	if live == nil || declared.Type == "" || live.Type == "" {
		return nil
	}

	conflict := func(msg string) error {
		return terr.New(terr.ErrSchemaConflict, msg).
			WithColumn(declared.Name).
			With("declared", declared.NativeType).
			With("live", live.NativeType)
	}

	if declared.Type != live.Type {
		if !widenings[live.Type][declared.Type] {
			return conflict("declared type cannot hold the live column's values")
		}
		return nil
	}

	switch declared.Type {
	case schema.TypeString:
		if declared.MaxLength != 0 && (live.MaxLength == 0 || declared.MaxLength < live.MaxLength) {
			return conflict("declared length is smaller than the live column's")
		}
	case schema.TypeDecimal:
		if declared.Precision != 0 && live.Precision != 0 &&
			(declared.Precision < live.Precision || declared.Scale < live.Scale) {
			return conflict("declared precision is smaller than the live column's")
		}
	}
	return nil
}

// statementsFor renders the SQL for one change. AddTable expands to the
// CREATE TABLE plus every declared index; AlterColumn may expand to several
// ALTER statements.
func (m *Manager) statementsFor(c diff.Change) ([]string, error) {
	switch c.Kind {
	case diff.AddTable:
		create, err := m.builder.CreateTableSQL(c.Table)
		if err != nil {
			return nil, err
		}
		stmts := []string{create}
		for _, idx := range c.Table.Indexes {
			idxSQL, err := m.builder.CreateIndexSQL(c.Table.Name, idx)
			if err != nil {
				return nil, err
			}
			stmts = append(stmts, idxSQL)
		}
		return stmts, nil

	case diff.DropTable:
		stmt, err := m.builder.DropTableSQL(c.Table)
		if err != nil {
			return nil, err
		}
		return []string{stmt}, nil

	case diff.AddColumn:
		stmt, err := m.builder.AddColumnSQL(c.Table.Name, c.Column)
		if err != nil {
			return nil, err
		}
		return []string{stmt}, nil

	case diff.DropColumn:
		stmt, err := m.builder.DropColumnSQL(c.Table.Name, c.Column)
		if err != nil {
			return nil, err
		}
		return []string{stmt}, nil

	case diff.AlterColumn:
		return m.builder.AlterColumnSQL(c.Table.Name, c.Column, c.LiveColumn)

	case diff.AddIndex:
		stmt, err := m.builder.CreateIndexSQL(c.Table.Name, c.Index)
		if err != nil {
			return nil, err
		}
		return []string{stmt}, nil

	case diff.DropIndex:
		stmt, err := m.builder.DropIndexSQL(c.Index)
		if err != nil {
			return nil, err
		}
		return []string{stmt}, nil

	default:
		return nil, terr.Newf(terr.ErrDDLApplication, "unknown change kind %d", c.Kind)
	}
}
