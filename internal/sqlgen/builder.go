// Package sqlgen renders parameterized SQL from table metadata. All
// identifiers are quoted through the dialect and all values are bound as
// placeholders; nothing caller-supplied is ever interpolated into SQL text.
package sqlgen

import (
	"sort"
	"strings"

	"github.com/temporadb/tempora/internal/dialect"
	"github.com/temporadb/tempora/internal/schema"
)

// Builder renders SQL statements for one dialect.
type Builder struct {
	dialect dialect.Dialect
}

// New creates a Builder for the given dialect.
func New(d dialect.Dialect) *Builder {
	return &Builder{dialect: d}
}

// Dialect returns the builder's dialect.
func (b *Builder) Dialect() dialect.Dialect {
	return b.dialect
}

// Statement is a rendered SQL statement with its positional arguments.
type Statement struct {
	SQL  string
	Args []any
}

// sortedKeys returns map keys in sorted order so rendered SQL is
// deterministic for identical inputs.
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// -----------------------------------------------------------------------------
// DML
// -----------------------------------------------------------------------------

// Insert renders INSERT INTO t (...) VALUES (...). Values are coerced to the
// column's logical type before binding; callers re-read the row to observe
// database-generated columns.
func (b *Builder) Insert(t *schema.TableDef, values map[string]any) (*Statement, error) {
	keys := sortedKeys(values)

	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(b.dialect.QuoteIdent(t.Name))
	sb.WriteString(" (")

	args := make([]any, 0, len(keys))
	for i, k := range keys {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(b.dialect.QuoteIdent(k))

		v, err := b.coerce(t, k, values[k])
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}

	sb.WriteString(") VALUES (")
	for i := range keys {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(b.dialect.Placeholder(i + 1))
	}
	sb.WriteString(")")

	return &Statement{SQL: sb.String(), Args: args}, nil
}

// Update renders UPDATE t SET ... WHERE ... with every identifier quoted in
// both the SET and WHERE clauses. The where map is combined with AND; a nil
// value in where renders as IS NULL.
func (b *Builder) Update(t *schema.TableDef, set, where map[string]any) (*Statement, error) {
	setKeys := sortedKeys(set)

	var sb strings.Builder
	sb.WriteString("UPDATE ")
	sb.WriteString(b.dialect.QuoteIdent(t.Name))
	sb.WriteString(" SET ")

	var args []any
	n := 0
	for i, k := range setKeys {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(b.dialect.QuoteIdent(k))
		sb.WriteString(" = ")

		v, err := b.coerce(t, k, set[k])
		if err != nil {
			return nil, err
		}
		n++
		sb.WriteString(b.dialect.Placeholder(n))
		args = append(args, v)
	}

	whereSQL, whereArgs, err := b.whereClause(t, where, n)
	if err != nil {
		return nil, err
	}
	sb.WriteString(whereSQL)
	args = append(args, whereArgs...)

	return &Statement{SQL: sb.String(), Args: args}, nil
}

// Delete renders DELETE FROM t WHERE ....
func (b *Builder) Delete(t *schema.TableDef, where map[string]any) (*Statement, error) {
	var sb strings.Builder
	sb.WriteString("DELETE FROM ")
	sb.WriteString(b.dialect.QuoteIdent(t.Name))

	whereSQL, args, err := b.whereClause(t, where, 0)
	if err != nil {
		return nil, err
	}
	sb.WriteString(whereSQL)

	return &Statement{SQL: sb.String(), Args: args}, nil
}

// SelectOpts adjusts the rendered SELECT beyond plain equality filters.
type SelectOpts struct {
	// AsOfParam, when true, appends the SCD2 time-travel window predicate
	// (valid_from <= $n AND (valid_to > $n OR valid_to IS NULL)) binding the
	// caller-supplied timestamp argument.
	AsOfParam any
	// CurrentOnly appends "valid_to IS NULL".
	CurrentOnly bool
	// ExcludeDeleted appends "deleted_at IS NULL".
	ExcludeDeleted bool
	// OrderBy appends ORDER BY on the named column when set.
	OrderBy string
	// Descending reverses the order.
	Descending bool
	// Limit appends LIMIT when > 0 (bound as a placeholder).
	Limit int
}

// Select renders SELECT <cols> FROM t WHERE ... for equality filters plus
// the temporal predicates in opts. Columns are the table's declared columns
// in declaration order, each quoted.
func (b *Builder) Select(t *schema.TableDef, filters map[string]any, opts SelectOpts) (*Statement, error) {
	var sb strings.Builder
	sb.WriteString("SELECT ")
	for i, col := range t.Columns {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(b.dialect.QuoteIdent(col.Name))
	}
	sb.WriteString(" FROM ")
	sb.WriteString(b.dialect.QuoteIdent(t.Name))

	var args []any
	conds := make([]string, 0, len(filters)+3)
	n := 0

	for _, k := range sortedKeys(filters) {
		v, err := b.coerce(t, k, filters[k])
		if err != nil {
			return nil, err
		}
		if v == nil {
			conds = append(conds, b.dialect.QuoteIdent(k)+" IS NULL")
			continue
		}
		n++
		conds = append(conds, b.dialect.QuoteIdent(k)+" = "+b.dialect.Placeholder(n))
		args = append(args, v)
	}

	if opts.AsOfParam != nil {
		from := b.dialect.QuoteIdent(schema.ColValidFrom)
		to := b.dialect.QuoteIdent(schema.ColValidTo)
		n++
		p1 := b.dialect.Placeholder(n)
		n++
		p2 := b.dialect.Placeholder(n)
		conds = append(conds, from+" <= "+p1+" AND ("+to+" > "+p2+" OR "+to+" IS NULL)")
		args = append(args, opts.AsOfParam, opts.AsOfParam)
	}
	if opts.CurrentOnly {
		conds = append(conds, b.dialect.QuoteIdent(schema.ColValidTo)+" IS NULL")
	}
	if opts.ExcludeDeleted {
		conds = append(conds, b.dialect.QuoteIdent(schema.ColDeletedAt)+" IS NULL")
	}

	if len(conds) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(conds, " AND "))
	}

	if opts.OrderBy != "" {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(b.dialect.QuoteIdent(opts.OrderBy))
		if opts.Descending {
			sb.WriteString(" DESC")
		}
	}
	if opts.Limit > 0 {
		n++
		sb.WriteString(" LIMIT ")
		sb.WriteString(b.dialect.Placeholder(n))
		args = append(args, opts.Limit)
	}

	return &Statement{SQL: sb.String(), Args: args}, nil
}

// whereClause renders " WHERE a = $n AND b IS NULL ..." starting placeholder
// numbering after offset. Returns empty string for an empty map.
func (b *Builder) whereClause(t *schema.TableDef, where map[string]any, offset int) (string, []any, error) {
	if len(where) == 0 {
		return "", nil, nil
	}

	var args []any
	conds := make([]string, 0, len(where))
	n := offset
	for _, k := range sortedKeys(where) {
		v, err := b.coerce(t, k, where[k])
		if err != nil {
			return "", nil, err
		}
		if v == nil {
			conds = append(conds, b.dialect.QuoteIdent(k)+" IS NULL")
			continue
		}
		n++
		conds = append(conds, b.dialect.QuoteIdent(k)+" = "+b.dialect.Placeholder(n))
		args = append(args, v)
	}
	return " WHERE " + strings.Join(conds, " AND "), args, nil
}

// coerce applies logical-type coercion when the column is declared; values
// for columns the engine appends at runtime (timestamps, ids) pass through.
func (b *Builder) coerce(t *schema.TableDef, column string, v any) (any, error) {
	col := t.GetColumn(column)
	if col == nil {
		return v, nil
	}
	return CoerceValue(col, v)
}
