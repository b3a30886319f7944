// Package repository implements record CRUD per versioning strategy on top
// of the query builder: plain rows (none), in-place rows with a field-level
// audit trail (copy_on_change), and immutable row versions with validity
// windows (scd2). One implementation per strategy, all sharing the same
// statement rendering and scan path.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/temporadb/tempora/internal/dialect"
	"github.com/temporadb/tempora/internal/schema"
	"github.com/temporadb/tempora/internal/sqlgen"
	"github.com/temporadb/tempora/internal/terr"
)

// Record is one row keyed by column name.
type Record map[string]any

// GetOpts adjusts point reads.
type GetOpts struct {
	// AsOf selects the version whose validity window contains the timestamp
	// (scd2 only). Nil means the current version.
	AsOf *time.Time
	// IncludeDeleted returns soft-deleted records instead of filtering them.
	IncludeDeleted bool
}

// FieldDiff is one field's difference between two versions.
type FieldDiff struct {
	Old     any
	New     any
	Changed bool
}

// Repository is the strategy-dispatched record store for one table. Reads
// return a nil Record when nothing matches; writes against a missing record
// return ErrRecordNotFound.
type Repository interface {
	// Table returns the normalized table definition the repository serves.
	Table() *schema.TableDef

	Create(ctx context.Context, values Record, actor string) (Record, error)
	Update(ctx context.Context, id any, values Record, actor string) (Record, error)
	// Delete removes the record: soft (deleted_at/deleted_by) when the table
	// enables soft delete, physical otherwise. Force always deletes
	// physically. Returns whether a record was affected.
	Delete(ctx context.Context, id any, actor string, force bool) (bool, error)

	Get(ctx context.Context, id any, opts GetOpts) (Record, error)
	List(ctx context.Context, filters Record, limit int) ([]Record, error)

	// Version operations. Strategies without version retention return
	// ErrSchemaInvalid.
	GetVersion(ctx context.Context, id any, version int) (Record, error)
	GetVersionHistory(ctx context.Context, id any) ([]Record, error)
	CompareVersions(ctx context.Context, id any, v1, v2 int) (map[string]FieldDiff, error)
}

// New creates the Repository for the table's declared strategy. The table is
// normalized (engine columns appended) before use; pass the same definition
// given to the schema manager. Multi-tenant tables must be scoped with
// WithTenant before any call.
func New(db *sql.DB, d dialect.Dialect, table *schema.TableDef, log *slog.Logger) (Repository, error) {
	if err := table.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}

	b := base{
		db:      db,
		builder: sqlgen.New(d),
		table:   schema.Normalize(table),
		log:     log,
	}

	switch table.Strategy {
	case schema.StrategyNone:
		return &noneRepo{base: b}, nil
	case schema.StrategyCopyOnChange:
		return &auditRepo{base: b, audit: schema.AuditTableFor(table)}, nil
	case schema.StrategySCD2:
		return &scd2Repo{base: b}, nil
	default:
		return nil, terr.Newf(terr.ErrSchemaInvalid, "unknown strategy %q", table.Strategy).
			WithTable(table.Name)
	}
}

// WithTenant returns a copy of the repository scoped to one tenant. Every
// statement the copy renders carries the tenant id; callers cannot widen or
// override the scope through values or filters.
func WithTenant(r Repository, tenantID uuid.UUID) Repository {
	switch repo := r.(type) {
	case *noneRepo:
		c := *repo
		c.tenantID = tenantID
		return &c
	case *auditRepo:
		c := *repo
		c.tenantID = tenantID
		return &c
	case *scd2Repo:
		c := *repo
		c.tenantID = tenantID
		return &c
	default:
		return r
	}
}

// -----------------------------------------------------------------------------
// Shared plumbing
// -----------------------------------------------------------------------------

// base holds the state every strategy shares.
type base struct {
	db       *sql.DB
	builder  *sqlgen.Builder
	table    *schema.TableDef
	tenantID uuid.UUID
	log      *slog.Logger
}

// Table returns the normalized table definition.
func (b *base) Table() *schema.TableDef {
	return b.table
}

// checkScope verifies a multi-tenant table has been scoped.
func (b *base) checkScope() error {
	if b.table.MultiTenant && b.tenantID == uuid.Nil {
		return terr.New(terr.ErrSchemaInvalid,
			"multi-tenant table requires a tenant scope; use WithTenant").
			WithTable(b.table.Name)
	}
	return nil
}

// dataValues validates caller-supplied values: every key must be a declared
// data column. Engine-managed columns and unknown names are rejected before
// any SQL is rendered.
func (b *base) dataValues(values Record) (Record, error) {
	out := make(Record, len(values))
	for k, v := range values {
		if schema.IsEngineColumn(k) {
			return nil, terr.Newf(terr.ErrValidationBypass,
				"column %q is managed by the engine and cannot be written directly", k).
				WithTable(b.table.Name)
		}
		col := b.table.GetColumn(k)
		if col == nil {
			return nil, terr.Newf(terr.ErrValidationBypass, "unknown column %q", k).
				WithTable(b.table.Name)
		}
		out[k] = v
	}
	return out, nil
}

// scopeFilters copies filters and stamps the tenant id on multi-tenant
// tables, overwriting any caller-supplied value.
func (b *base) scopeFilters(filters Record) map[string]any {
	out := make(map[string]any, len(filters)+1)
	for k, v := range filters {
		out[k] = v
	}
	if b.table.MultiTenant {
		out[schema.ColTenantID] = b.tenantID
	}
	return out
}

// queryRecords runs a rendered SELECT and scans every row into a Record.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (b *base) queryRecords(ctx context.Context, q querier, stmt *sqlgen.Statement) ([]Record, error) {
	rows, err := q.QueryContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, terr.WrapSQL(err, "query records", b.table.Name)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, terr.WrapSQL(err, "read result columns", b.table.Name)
	}

	var records []Record
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, terr.WrapSQL(err, "scan record", b.table.Name)
		}

		rec := make(Record, len(cols))
		for i, name := range cols {
			rec[name] = normalizeScanned(values[i])
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// queryOne returns the first record of a rendered SELECT, or nil.
func (b *base) queryOne(ctx context.Context, q querier, stmt *sqlgen.Statement) (Record, error) {
	records, err := b.queryRecords(ctx, q, stmt)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

// normalizeScanned converts driver byte slices (text, jsonb, numeric) to
// strings so records compare and marshal predictably.
func normalizeScanned(v any) any {
	if raw, ok := v.([]byte); ok {
		return string(raw)
	}
	return v
}

// valuesEqual compares a stored value against an incoming one for the given
// column. Numeric columns compare by value, so a NUMERIC scanned back as
// "10.00" equals a re-sent decimal or float of the same amount and produces
// no audit row. Everything else compares through JSON encodings, which
// absorbs driver representation differences (int64 vs int, []byte vs string).
func valuesEqual(col *schema.ColumnDef, stored, incoming any) bool {
	if col != nil && stored != nil && incoming != nil {
		switch col.Type {
		case schema.TypeDecimal, schema.TypeFloat, schema.TypeInteger, schema.TypeBigInt:
			if a, ok := toDecimal(stored); ok {
				if b, ok := toDecimal(incoming); ok {
					return a.Equal(b)
				}
			}
		}
	}

	a, errA := json.Marshal(normalizeScanned(stored))
	b, errB := json.Marshal(normalizeScanned(incoming))
	if errA != nil || errB != nil {
		return false
	}
	return string(a) == string(b)
}

// toDecimal converts the numeric representations the driver and callers
// produce into an exact decimal.
func toDecimal(v any) (decimal.Decimal, bool) {
	switch n := normalizeScanned(v).(type) {
	case decimal.Decimal:
		return n, true
	case *decimal.Decimal:
		if n == nil {
			return decimal.Decimal{}, false
		}
		return *n, true
	case string:
		d, err := decimal.NewFromString(n)
		return d, err == nil
	case float64:
		return decimal.NewFromFloat(n), true
	case float32:
		return decimal.NewFromFloat32(n), true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int64:
		return decimal.NewFromInt(n), true
	default:
		return decimal.Decimal{}, false
	}
}

// jsonValue marshals a value for an audit old_value/new_value column. Nil
// stays nil so the column is NULL rather than the JSON literal "null".
func jsonValue(v any) any {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(normalizeScanned(v))
	if err != nil {
		return nil
	}
	return string(raw)
}

// execTx runs fn inside a transaction, rolling back on error or context
// cancellation.
func (b *base) execTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return terr.Wrap(terr.ErrSQLTransaction, err, "failed to begin transaction").
			WithTable(b.table.Name)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return terr.Wrap(terr.ErrSQLTransaction, err, "failed to commit").
			WithTable(b.table.Name)
	}
	return nil
}

// exec runs a rendered mutation and returns the affected row count.
func (b *base) exec(ctx context.Context, tx *sql.Tx, stmt *sqlgen.Statement, op string) (int64, error) {
	res, err := tx.ExecContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return 0, terr.WrapSQL(err, op, b.table.Name).WithSQL(stmt.SQL)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, terr.WrapSQL(err, op, b.table.Name)
	}
	return n, nil
}

// versionsUnsupported is the shared answer for strategies without version
// retention.
func (b *base) versionsUnsupported() error {
	return terr.Newf(terr.ErrSchemaInvalid,
		"table %q does not retain versions (strategy %s)", b.table.Name, b.table.Strategy).
		WithTable(b.table.Name)
}
