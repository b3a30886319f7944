package repository

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/temporadb/tempora/internal/schema"
	"github.com/temporadb/tempora/internal/sqlgen"
	"github.com/temporadb/tempora/internal/terr"
)

// auditRepo mutates a single current row in place and appends one audit row
// per changed field, inside the same transaction as the main-row write.
type auditRepo struct {
	base
	audit *schema.TableDef
}

func (r *auditRepo) Create(ctx context.Context, values Record, actor string) (Record, error) {
	if err := r.checkScope(); err != nil {
		return nil, err
	}
	data, err := r.dataValues(values)
	if err != nil {
		return nil, err
	}

	id := uuid.New()
	row := r.scopeFilters(data)
	row[schema.ColID] = id
	row[schema.ColCreatedAt] = time.Now().UTC()

	stmt, err := r.builder.Insert(r.table, row)
	if err != nil {
		return nil, err
	}

	txID := uuid.New()
	err = r.execTx(ctx, func(tx *sql.Tx) error {
		if _, err := r.exec(ctx, tx, stmt, "insert record"); err != nil {
			return err
		}
		for _, field := range sortedFields(data) {
			if err := r.appendAudit(ctx, tx, id, field, nil, data[field],
				schema.AuditOpInsert, actor, txID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, id, GetOpts{IncludeDeleted: true})
}

func (r *auditRepo) Update(ctx context.Context, id any, values Record, actor string) (Record, error) {
	if err := r.checkScope(); err != nil {
		return nil, err
	}
	data, err := r.dataValues(values)
	if err != nil {
		return nil, err
	}

	txID := uuid.New()
	err = r.execTx(ctx, func(tx *sql.Tx) error {
		current, err := r.fetch(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if current == nil {
			return terr.Newf(terr.ErrRecordNotFound, "no record with id %v", id).
				WithTable(r.table.Name)
		}

		// Only fields whose value actually differs produce audit rows.
		changed := make(Record, len(data))
		for k, v := range data {
			if !valuesEqual(r.table.GetColumn(k), current[k], v) {
				changed[k] = v
			}
		}
		if len(changed) == 0 {
			return nil
		}

		set := make(map[string]any, len(changed)+1)
		for k, v := range changed {
			set[k] = v
		}
		set[schema.ColUpdatedAt] = time.Now().UTC()

		stmt, err := r.builder.Update(r.table, set, r.scopeFilters(Record{schema.ColID: id}))
		if err != nil {
			return err
		}
		if _, err := r.exec(ctx, tx, stmt, "update record"); err != nil {
			return err
		}

		for _, field := range sortedFields(changed) {
			if err := r.appendAudit(ctx, tx, id, field, current[field], changed[field],
				schema.AuditOpUpdate, actor, txID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, id, GetOpts{IncludeDeleted: true})
}

// Delete soft-deletes the main row and appends one audit row marking the
// operation. Force removes the row physically; the audit trail stays.
func (r *auditRepo) Delete(ctx context.Context, id any, actor string, force bool) (bool, error) {
	if err := r.checkScope(); err != nil {
		return false, err
	}

	deletedAt := time.Now().UTC()
	var affected int64
	txID := uuid.New()

	err := r.execTx(ctx, func(tx *sql.Tx) error {
		var stmt *sqlgen.Statement
		var err error
		if force {
			stmt, err = r.builder.Delete(r.table, r.scopeFilters(Record{schema.ColID: id}))
		} else {
			set := map[string]any{
				schema.ColDeletedAt: deletedAt,
				schema.ColDeletedBy: actorOrNil(actor),
			}
			where := r.scopeFilters(Record{schema.ColID: id})
			where[schema.ColDeletedAt] = nil
			stmt, err = r.builder.Update(r.table, set, where)
		}
		if err != nil {
			return err
		}

		affected, err = r.exec(ctx, tx, stmt, "delete record")
		if err != nil {
			return err
		}
		if affected == 0 {
			return nil
		}
		return r.appendAudit(ctx, tx, id, schema.ColDeletedAt, nil, deletedAt,
			schema.AuditOpDelete, actor, txID)
	})
	return affected > 0, err
}

func (r *auditRepo) Get(ctx context.Context, id any, opts GetOpts) (Record, error) {
	if err := r.checkScope(); err != nil {
		return nil, err
	}
	if opts.AsOf != nil {
		return nil, terr.New(terr.ErrSchemaInvalid,
			"as-of lookup requires the scd2 strategy").
			WithTable(r.table.Name)
	}

	stmt, err := r.builder.Select(r.table, r.scopeFilters(Record{schema.ColID: id}), sqlgen.SelectOpts{
		ExcludeDeleted: !opts.IncludeDeleted,
	})
	if err != nil {
		return nil, err
	}
	return r.queryOne(ctx, r.db, stmt)
}

func (r *auditRepo) List(ctx context.Context, filters Record, limit int) ([]Record, error) {
	if err := r.checkScope(); err != nil {
		return nil, err
	}
	data, err := r.dataValues(filters)
	if err != nil {
		return nil, err
	}

	stmt, err := r.builder.Select(r.table, r.scopeFilters(data), sqlgen.SelectOpts{
		ExcludeDeleted: true,
		OrderBy:        schema.ColCreatedAt,
		Limit:          limit,
	})
	if err != nil {
		return nil, err
	}
	return r.queryRecords(ctx, r.db, stmt)
}

func (r *auditRepo) GetVersion(ctx context.Context, id any, version int) (Record, error) {
	return nil, r.versionsUnsupported()
}

func (r *auditRepo) GetVersionHistory(ctx context.Context, id any) ([]Record, error) {
	return nil, r.versionsUnsupported()
}

func (r *auditRepo) CompareVersions(ctx context.Context, id any, v1, v2 int) (map[string]FieldDiff, error) {
	return nil, r.versionsUnsupported()
}

// AuditTrail returns the audit rows for one record, oldest first. An empty
// field returns the trail across all fields.
func (r *auditRepo) AuditTrail(ctx context.Context, id any, field string) ([]Record, error) {
	if err := r.checkScope(); err != nil {
		return nil, err
	}

	filters := map[string]any{schema.AuditColRecordID: id}
	if field != "" {
		filters[schema.AuditColFieldName] = field
	}
	if r.table.MultiTenant {
		filters[schema.AuditColTenantID] = r.tenantID
	}

	stmt, err := r.builder.Select(r.audit, filters, sqlgen.SelectOpts{
		OrderBy: schema.AuditColChangedAt,
	})
	if err != nil {
		return nil, err
	}
	return r.queryRecords(ctx, r.db, stmt)
}

// fetch reads the current row inside the caller's transaction.
func (r *auditRepo) fetch(ctx context.Context, tx *sql.Tx, id any, includeDeleted bool) (Record, error) {
	stmt, err := r.builder.Select(r.table, r.scopeFilters(Record{schema.ColID: id}), sqlgen.SelectOpts{
		ExcludeDeleted: !includeDeleted,
	})
	if err != nil {
		return nil, err
	}
	return r.queryOne(ctx, tx, stmt)
}

// appendAudit inserts one audit row in the caller's transaction.
func (r *auditRepo) appendAudit(ctx context.Context, tx *sql.Tx, recordID any,
	field string, oldValue, newValue any, op, actor string, txID uuid.UUID) error {

	row := map[string]any{
		schema.AuditColID:            uuid.New(),
		schema.AuditColRecordID:      recordID,
		schema.AuditColFieldName:     field,
		schema.AuditColOldValue:      jsonValue(oldValue),
		schema.AuditColNewValue:      jsonValue(newValue),
		schema.AuditColOperation:     op,
		schema.AuditColChangedAt:     time.Now().UTC(),
		schema.AuditColChangedBy:     actorOrNil(actor),
		schema.AuditColTransactionID: txID,
	}
	if r.table.MultiTenant {
		row[schema.AuditColTenantID] = r.tenantID
	}

	stmt, err := r.builder.Insert(r.audit, row)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, stmt.SQL, stmt.Args...); err != nil {
		return terr.WrapSQL(err, "append audit entry", r.audit.Name).WithSQL(stmt.SQL)
	}
	return nil
}

// sortedFields returns record keys in sorted order so audit rows append
// deterministically.
func sortedFields(values Record) []string {
	fields := make([]string, 0, len(values))
	for k := range values {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	return fields
}
