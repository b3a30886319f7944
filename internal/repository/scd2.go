package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/temporadb/tempora/internal/schema"
	"github.com/temporadb/tempora/internal/sqlgen"
	"github.com/temporadb/tempora/internal/terr"
)

// scd2Repo keeps every version of a record as its own immutable row with a
// [valid_from, valid_to) validity window. The public record id is the stable
// record_id; the row id is internal. Exactly one row per record has
// valid_to IS NULL at any time.
type scd2Repo struct {
	base
}

func (r *scd2Repo) Create(ctx context.Context, values Record, actor string) (Record, error) {
	if err := r.checkScope(); err != nil {
		return nil, err
	}
	data, err := r.dataValues(values)
	if err != nil {
		return nil, err
	}

	recordID := uuid.New()
	now := time.Now().UTC()

	row := r.scopeFilters(data)
	row[schema.ColID] = uuid.New()
	row[schema.ColRecordID] = recordID
	row[schema.ColVersion] = 1
	row[schema.ColValidFrom] = now
	row[schema.ColCreatedAt] = now

	stmt, err := r.builder.Insert(r.table, row)
	if err != nil {
		return nil, err
	}

	err = r.execTx(ctx, func(tx *sql.Tx) error {
		_, err := r.exec(ctx, tx, stmt, "insert version")
		return err
	})
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, recordID, GetOpts{IncludeDeleted: true})
}

// Update closes the current version and inserts the next one in a single
// transaction. The close is a conditional update matching the open window
// and the observed version number; losing a race against a concurrent
// updater surfaces as ErrOptimisticConflict.
func (r *scd2Repo) Update(ctx context.Context, id any, values Record, actor string) (Record, error) {
	if err := r.checkScope(); err != nil {
		return nil, err
	}
	data, err := r.dataValues(values)
	if err != nil {
		return nil, err
	}

	err = r.execTx(ctx, func(tx *sql.Tx) error {
		current, err := r.currentVersion(ctx, tx, id)
		if err != nil {
			return err
		}
		if current == nil {
			return terr.Newf(terr.ErrRecordNotFound, "no record with id %v", id).
				WithTable(r.table.Name)
		}

		version, err := versionOf(current)
		if err != nil {
			return err
		}
		now := time.Now().UTC()

		closeWhere := r.scopeFilters(Record{
			schema.ColRecordID: id,
			schema.ColVersion:  version,
			schema.ColValidTo:  nil,
		})
		closeStmt, err := r.builder.Update(r.table, map[string]any{
			schema.ColValidTo:   now,
			schema.ColUpdatedAt: now,
		}, closeWhere)
		if err != nil {
			return err
		}
		n, err := r.exec(ctx, tx, closeStmt, "close version")
		if err != nil {
			return err
		}
		if n == 0 {
			return terr.Newf(terr.ErrOptimisticConflict,
				"record %v version %d was updated concurrently; retry with fresh data", id, version).
				WithTable(r.table.Name)
		}

		row := r.scopeFilters(r.mergeData(current, data))
		row[schema.ColID] = uuid.New()
		row[schema.ColRecordID] = id
		row[schema.ColVersion] = version + 1
		row[schema.ColValidFrom] = now
		row[schema.ColCreatedAt] = now

		insertStmt, err := r.builder.Insert(r.table, row)
		if err != nil {
			return err
		}
		_, err = r.exec(ctx, tx, insertStmt, "insert version")
		return err
	})
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, id, GetOpts{IncludeDeleted: true})
}

// Delete soft-deletes the current version in place: the open window stays
// open and no new version is created, so history remains queryable. Force
// removes every version of the record.
func (r *scd2Repo) Delete(ctx context.Context, id any, actor string, force bool) (bool, error) {
	if err := r.checkScope(); err != nil {
		return false, err
	}

	var stmt *sqlgen.Statement
	var err error
	if force {
		stmt, err = r.builder.Delete(r.table, r.scopeFilters(Record{schema.ColRecordID: id}))
	} else {
		where := r.scopeFilters(Record{
			schema.ColRecordID:  id,
			schema.ColValidTo:   nil,
			schema.ColDeletedAt: nil,
		})
		stmt, err = r.builder.Update(r.table, map[string]any{
			schema.ColDeletedAt: time.Now().UTC(),
			schema.ColDeletedBy: actorOrNil(actor),
		}, where)
	}
	if err != nil {
		return false, err
	}

	var affected int64
	err = r.execTx(ctx, func(tx *sql.Tx) error {
		affected, err = r.exec(ctx, tx, stmt, "delete record")
		return err
	})
	return affected > 0, err
}

// Get returns the current version, or, with AsOf, the unique version whose
// validity window contains the timestamp.
func (r *scd2Repo) Get(ctx context.Context, id any, opts GetOpts) (Record, error) {
	if err := r.checkScope(); err != nil {
		return nil, err
	}

	selOpts := sqlgen.SelectOpts{
		ExcludeDeleted: !opts.IncludeDeleted,
	}
	if opts.AsOf != nil {
		selOpts.AsOfParam = opts.AsOf.UTC()
	} else {
		selOpts.CurrentOnly = true
	}

	stmt, err := r.builder.Select(r.table, r.scopeFilters(Record{schema.ColRecordID: id}), selOpts)
	if err != nil {
		return nil, err
	}
	return r.queryOne(ctx, r.db, stmt)
}

// List returns the current version of every record matching the filters.
func (r *scd2Repo) List(ctx context.Context, filters Record, limit int) ([]Record, error) {
	if err := r.checkScope(); err != nil {
		return nil, err
	}
	data, err := r.dataValues(filters)
	if err != nil {
		return nil, err
	}

	stmt, err := r.builder.Select(r.table, r.scopeFilters(data), sqlgen.SelectOpts{
		CurrentOnly:    true,
		ExcludeDeleted: true,
		OrderBy:        schema.ColValidFrom,
		Limit:          limit,
	})
	if err != nil {
		return nil, err
	}
	return r.queryRecords(ctx, r.db, stmt)
}

// GetVersion looks up an exact version, independent of validity window or
// soft-delete state.
func (r *scd2Repo) GetVersion(ctx context.Context, id any, version int) (Record, error) {
	if err := r.checkScope(); err != nil {
		return nil, err
	}

	filters := r.scopeFilters(Record{
		schema.ColRecordID: id,
		schema.ColVersion:  version,
	})
	stmt, err := r.builder.Select(r.table, filters, sqlgen.SelectOpts{})
	if err != nil {
		return nil, err
	}
	return r.queryOne(ctx, r.db, stmt)
}

// GetVersionHistory returns every version ordered ascending. Soft-delete
// does not shorten history.
func (r *scd2Repo) GetVersionHistory(ctx context.Context, id any) ([]Record, error) {
	if err := r.checkScope(); err != nil {
		return nil, err
	}

	stmt, err := r.builder.Select(r.table, r.scopeFilters(Record{schema.ColRecordID: id}), sqlgen.SelectOpts{
		OrderBy: schema.ColVersion,
	})
	if err != nil {
		return nil, err
	}
	return r.queryRecords(ctx, r.db, stmt)
}

// CompareVersions reports the field-by-field difference between two versions
// across the table's data columns.
func (r *scd2Repo) CompareVersions(ctx context.Context, id any, v1, v2 int) (map[string]FieldDiff, error) {
	a, err := r.GetVersion(ctx, id, v1)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, terr.Newf(terr.ErrRecordNotFound, "record %v has no version %d", id, v1).
			WithTable(r.table.Name)
	}
	b, err := r.GetVersion(ctx, id, v2)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, terr.Newf(terr.ErrRecordNotFound, "record %v has no version %d", id, v2).
			WithTable(r.table.Name)
	}

	diff := make(map[string]FieldDiff)
	for _, col := range r.table.DataColumns() {
		oldV, newV := a[col.Name], b[col.Name]
		diff[col.Name] = FieldDiff{
			Old:     oldV,
			New:     newV,
			Changed: !valuesEqual(col, oldV, newV),
		}
	}
	return diff, nil
}

// currentVersion reads the open-window row inside the caller's transaction.
func (r *scd2Repo) currentVersion(ctx context.Context, tx *sql.Tx, id any) (Record, error) {
	stmt, err := r.builder.Select(r.table, r.scopeFilters(Record{schema.ColRecordID: id}), sqlgen.SelectOpts{
		CurrentOnly: true,
	})
	if err != nil {
		return nil, err
	}
	return r.queryOne(ctx, tx, stmt)
}

// mergeData carries unchanged data-column values from the prior version and
// overlays the caller's new values. Values read back from the database wrap
// as raw JSON for json columns so they re-bind without re-encoding.
func (r *scd2Repo) mergeData(current Record, data Record) Record {
	merged := make(Record)
	for _, col := range r.table.DataColumns() {
		if v, ok := data[col.Name]; ok {
			merged[col.Name] = v
			continue
		}
		v, ok := current[col.Name]
		if !ok || v == nil {
			continue
		}
		if col.Type == schema.TypeJSON {
			if s, isStr := v.(string); isStr {
				v = json.RawMessage(s)
			}
		}
		merged[col.Name] = v
	}
	return merged
}

// versionOf extracts the integer version from a scanned record.
func versionOf(rec Record) (int, error) {
	switch n := rec[schema.ColVersion].(type) {
	case int64:
		return int(n), nil
	case int:
		return n, nil
	default:
		return 0, terr.Newf(terr.ErrSQLExecution,
			"unexpected version representation %T", rec[schema.ColVersion])
	}
}
