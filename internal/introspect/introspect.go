// Package introspect queries the PostgreSQL system catalogs to discover the
// live schema: tables, columns with defaults and nullability, and indexes
// with their partial predicates. The result feeds the differ.
package introspect

import (
	"context"
	"database/sql"

	"github.com/temporadb/tempora/internal/schema"
	"github.com/temporadb/tempora/internal/terr"
)

// Introspector reads schema metadata from the database catalogs.
type Introspector struct {
	db *sql.DB
}

// New creates an Introspector over the caller-owned connection pool.
func New(db *sql.DB) *Introspector {
	return &Introspector{db: db}
}

// Schema returns every table in the current schema with its columns and
// indexes. Tables are returned sorted by name (the catalog query orders).
func (in *Introspector) Schema(ctx context.Context) ([]*schema.TableDef, error) {
	names, err := in.listTables(ctx)
	if err != nil {
		return nil, err
	}

	tables := make([]*schema.TableDef, 0, len(names))
	for _, name := range names {
		t, err := in.Table(ctx, name)
		if err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, nil
}

// Table returns a single table definition, or nil if the table does not exist.
func (in *Introspector) Table(ctx context.Context, name string) (*schema.TableDef, error) {
	exists, err := in.TableExists(ctx, name)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}

	cols, err := in.columns(ctx, name)
	if err != nil {
		return nil, err
	}
	idxs, err := in.indexes(ctx, name)
	if err != nil {
		return nil, err
	}

	return &schema.TableDef{
		Name:    name,
		Columns: cols,
		Indexes: idxs,
	}, nil
}

// TableExists checks whether a table exists in the current schema.
func (in *Introspector) TableExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := in.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM pg_tables
			WHERE schemaname = current_schema() AND tablename = $1
		)
	`, name).Scan(&exists)
	if err != nil {
		return false, terr.WrapSQL(err, "check table existence", name)
	}
	return exists, nil
}

func (in *Introspector) listTables(ctx context.Context) ([]string, error) {
	rows, err := in.db.QueryContext(ctx, `
		SELECT tablename FROM pg_tables
		WHERE schemaname = current_schema()
		ORDER BY tablename
	`)
	if err != nil {
		return nil, terr.Wrap(terr.ErrIntrospection, err, "failed to list tables")
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, terr.Wrap(terr.ErrIntrospection, err, "failed to scan table name")
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

func (in *Introspector) columns(ctx context.Context, table string) ([]*schema.ColumnDef, error) {
	rows, err := in.db.QueryContext(ctx, `
		SELECT
			c.column_name,
			c.data_type,
			c.is_nullable,
			c.column_default,
			c.character_maximum_length,
			c.numeric_precision,
			c.numeric_scale,
			COALESCE(pk.is_pk, FALSE) AS is_primary_key
		FROM information_schema.columns c
		LEFT JOIN (
			SELECT kcu.column_name, TRUE AS is_pk
			FROM information_schema.table_constraints tc
			JOIN information_schema.key_column_usage kcu
				ON tc.constraint_name = kcu.constraint_name
				AND tc.table_schema = kcu.table_schema
			WHERE tc.table_name = $1
				AND tc.constraint_type = 'PRIMARY KEY'
				AND tc.table_schema = current_schema()
		) pk ON c.column_name = pk.column_name
		WHERE c.table_schema = current_schema()
			AND c.table_name = $1
		ORDER BY c.ordinal_position
	`, table)
	if err != nil {
		return nil, terr.WrapSQL(err, "introspect columns", table)
	}
	defer rows.Close()

	var cols []*schema.ColumnDef
	for rows.Next() {
		var (
			name, dataType, isNullable string
			colDefault                 sql.NullString
			maxLen, precision, scale   sql.NullInt64
			isPK                       bool
		)
		if err := rows.Scan(&name, &dataType, &isNullable, &colDefault,
			&maxLen, &precision, &scale, &isPK); err != nil {
			return nil, terr.WrapSQL(err, "scan column", table)
		}

		col := &schema.ColumnDef{
			Name:       name,
			Type:       MapNativeType(dataType, maxLen, precision, scale),
			NativeType: nativeSpelling(dataType, maxLen, precision, scale),
			Nullable:   isNullable == "YES" && !isPK,
			PrimaryKey: isPK,
		}
		if colDefault.Valid {
			col.Default = colDefault.String
		}
		if maxLen.Valid {
			col.MaxLength = int(maxLen.Int64)
		}
		if precision.Valid {
			col.Precision = int(precision.Int64)
		}
		if scale.Valid {
			col.Scale = int(scale.Int64)
		}
		cols = append(cols, col)
	}
	return cols, rows.Err()
}

// indexes reads non-primary indexes from pg_index, including the partial
// predicate text via pg_get_expr. The catalog stores predicates in its own
// parenthesization; the differ normalizes before comparing.
func (in *Introspector) indexes(ctx context.Context, table string) ([]*schema.IndexDef, error) {
	rows, err := in.db.QueryContext(ctx, `
		SELECT
			i.relname AS index_name,
			ix.indisunique AS is_unique,
			am.amname AS index_method,
			array_to_string(array_agg(a.attname ORDER BY x.n), ',') AS columns,
			COALESCE(pg_get_expr(ix.indpred, ix.indrelid), '') AS predicate
		FROM pg_index ix
		JOIN pg_class t ON t.oid = ix.indrelid
		JOIN pg_class i ON i.oid = ix.indexrelid
		JOIN pg_am am ON am.oid = i.relam
		JOIN LATERAL unnest(ix.indkey) WITH ORDINALITY AS x(attnum, n) ON TRUE
		JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = x.attnum
		WHERE t.relname = $1
			AND t.relnamespace = (SELECT oid FROM pg_namespace WHERE nspname = current_schema())
			AND NOT ix.indisprimary
		GROUP BY i.relname, ix.indisunique, am.amname, ix.indpred, ix.indrelid
		ORDER BY i.relname
	`, table)
	if err != nil {
		return nil, terr.WrapSQL(err, "introspect indexes", table)
	}
	defer rows.Close()

	var idxs []*schema.IndexDef
	for rows.Next() {
		var (
			name, method, columns, predicate string
			unique                           bool
		)
		if err := rows.Scan(&name, &unique, &method, &columns, &predicate); err != nil {
			return nil, terr.WrapSQL(err, "scan index", table)
		}
		idxs = append(idxs, &schema.IndexDef{
			Name:    name,
			Columns: splitColumns(columns),
			Unique:  unique,
			Method:  method,
			Where:   predicate,
		})
	}
	return idxs, rows.Err()
}

func splitColumns(s string) []string {
	if s == "" {
		return nil
	}
	var cols []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			cols = append(cols, s[start:i])
			start = i + 1
		}
	}
	return cols
}
