package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/temporadb/tempora/internal/schema"
	"github.com/temporadb/tempora/internal/sqlgen"
	"github.com/temporadb/tempora/internal/terr"
)

// noneRepo stores a single current row per record with no history.
type noneRepo struct {
	base
}

func (r *noneRepo) Create(ctx context.Context, values Record, actor string) (Record, error) {
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

	err = r.execTx(ctx, func(tx *sql.Tx) error {
		_, err := r.exec(ctx, tx, stmt, "insert record")
		return err
	})
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, id, GetOpts{IncludeDeleted: true})
}

func (r *noneRepo) Update(ctx context.Context, id any, values Record, actor string) (Record, error) {
	if err := r.checkScope(); err != nil {
		return nil, err
	}
	data, err := r.dataValues(values)
	if err != nil {
		return nil, err
	}

	set := map[string]any(data)
	set[schema.ColUpdatedAt] = time.Now().UTC()

	where := r.scopeFilters(Record{schema.ColID: id})
	stmt, err := r.builder.Update(r.table, set, where)
	if err != nil {
		return nil, err
	}

	err = r.execTx(ctx, func(tx *sql.Tx) error {
		n, err := r.exec(ctx, tx, stmt, "update record")
		if err != nil {
			return err
		}
		if n == 0 {
			return terr.Newf(terr.ErrRecordNotFound, "no record with id %v", id).
				WithTable(r.table.Name)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, id, GetOpts{IncludeDeleted: true})
}

func (r *noneRepo) Delete(ctx context.Context, id any, actor string, force bool) (bool, error) {
	if err := r.checkScope(); err != nil {
		return false, err
	}

	var stmt *sqlgen.Statement
	var err error
	if r.table.SoftDelete && !force {
		set := map[string]any{
			schema.ColDeletedAt: time.Now().UTC(),
			schema.ColDeletedBy: actorOrNil(actor),
		}
		where := r.scopeFilters(Record{schema.ColID: id})
		where[schema.ColDeletedAt] = nil
		stmt, err = r.builder.Update(r.table, set, where)
	} else {
		stmt, err = r.builder.Delete(r.table, r.scopeFilters(Record{schema.ColID: id}))
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

func (r *noneRepo) Get(ctx context.Context, id any, opts GetOpts) (Record, error) {
	if err := r.checkScope(); err != nil {
		return nil, err
	}
	if opts.AsOf != nil {
		return nil, terr.New(terr.ErrSchemaInvalid,
			"as-of lookup requires the scd2 strategy").
			WithTable(r.table.Name)
	}

	stmt, err := r.builder.Select(r.table, r.scopeFilters(Record{schema.ColID: id}), sqlgen.SelectOpts{
		ExcludeDeleted: r.table.SoftDelete && !opts.IncludeDeleted,
	})
	if err != nil {
		return nil, err
	}
	return r.queryOne(ctx, r.db, stmt)
}

func (r *noneRepo) List(ctx context.Context, filters Record, limit int) ([]Record, error) {
	if err := r.checkScope(); err != nil {
		return nil, err
	}
	data, err := r.dataValues(filters)
	if err != nil {
		return nil, err
	}

	stmt, err := r.builder.Select(r.table, r.scopeFilters(data), sqlgen.SelectOpts{
		ExcludeDeleted: r.table.SoftDelete,
		OrderBy:        schema.ColCreatedAt,
		Limit:          limit,
	})
	if err != nil {
		return nil, err
	}
	return r.queryRecords(ctx, r.db, stmt)
}

func (r *noneRepo) GetVersion(ctx context.Context, id any, version int) (Record, error) {
	return nil, r.versionsUnsupported()
}

func (r *noneRepo) GetVersionHistory(ctx context.Context, id any) ([]Record, error) {
	return nil, r.versionsUnsupported()
}

func (r *noneRepo) CompareVersions(ctx context.Context, id any, v1, v2 int) (map[string]FieldDiff, error) {
	return nil, r.versionsUnsupported()
}

// actorOrNil maps an empty actor to NULL.
func actorOrNil(actor string) any {
	if actor == "" {
		return nil
	}
	return actor
}
