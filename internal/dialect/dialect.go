// Package dialect provides PostgreSQL-specific SQL spelling: identifier
// quoting, parameter placeholders, and the mapping from logical column types
// to native type SQL. The engine targets a single relational dialect; the
// interface exists so the query builder stays independent of the spelling.
package dialect

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/temporadb/tempora/internal/schema"
	"github.com/temporadb/tempora/internal/terr"
)

// Dialect defines database-specific SQL spelling.
type Dialect interface {
	// Name returns the dialect name.
	Name() string

	// QuoteIdent quotes an identifier (table/column name). Every identifier
	// the engine emits goes through this, so reserved words like "limit",
	// "order", "user", and "select" are always safe.
	QuoteIdent(name string) string

	// Placeholder returns a parameter placeholder for the given index (1-based).
	Placeholder(index int) string

	// TypeSQL returns the native type spelling for a column's logical type.
	TypeSQL(col *schema.ColumnDef) (string, error)

	// NowExpr returns the SQL expression for the current timestamp.
	NowExpr() string

	// SupportsTransactionalDDL reports whether DDL can run inside a transaction.
	SupportsTransactionalDDL() bool
}

// postgres implements the Dialect interface for PostgreSQL.
type postgres struct{}

// Postgres returns the PostgreSQL dialect implementation.
func Postgres() Dialect {
	return &postgres{}
}

func (d *postgres) Name() string {
	return "postgres"
}

func (d *postgres) QuoteIdent(name string) string {
	// PostgreSQL uses double quotes for identifiers
	escaped := strings.ReplaceAll(name, `"`, `""`)
	return `"` + escaped + `"`
}

func (d *postgres) Placeholder(index int) string {
	return "$" + strconv.Itoa(index)
}

func (d *postgres) NowExpr() string {
	return "now()"
}

func (d *postgres) SupportsTransactionalDDL() bool {
	return true
}

// TypeSQL maps a logical column type to its PostgreSQL spelling. Columns that
// already carry a native spelling (introspected columns) keep it.
func (d *postgres) TypeSQL(col *schema.ColumnDef) (string, error) {
	if col.NativeType != "" {
		return col.NativeType, nil
	}
	switch col.Type {
	case schema.TypeInteger:
		return "INTEGER", nil
	case schema.TypeBigInt:
		return "BIGINT", nil
	case schema.TypeDecimal:
		precision, scale := col.Precision, col.Scale
		if precision == 0 {
			precision, scale = 18, 6
		}
		return fmt.Sprintf("NUMERIC(%d,%d)", precision, scale), nil
	case schema.TypeFloat:
		return "DOUBLE PRECISION", nil
	case schema.TypeBoolean:
		return "BOOLEAN", nil
	case schema.TypeString:
		length := col.MaxLength
		if length <= 0 {
			length = 255
		}
		return fmt.Sprintf("VARCHAR(%d)", length), nil
	case schema.TypeText:
		return "TEXT", nil
	case schema.TypeTimestamp:
		return "TIMESTAMPTZ", nil
	case schema.TypeJSON:
		return "JSONB", nil
	case schema.TypeUUID:
		return "UUID", nil
	default:
		return "", terr.Newf(terr.ErrUnsupportedType,
			"logical type %q has no PostgreSQL mapping", col.Type).
			WithColumn(col.Name)
	}
}
