package tempora

import (
	"github.com/temporadb/tempora/internal/schema"
)

// Strategy selects how record mutations are versioned.
type Strategy string

// Versioning strategies.
const (
	// None keeps a single current row per record with no history.
	None Strategy = "none"
	// CopyOnChange mutates the row in place and appends one audit row per
	// changed field to a generated <table>_audit table.
	CopyOnChange Strategy = "copy_on_change"
	// SCD2 keeps every version as its own immutable row with a
	// [valid_from, valid_to) validity window.
	SCD2 Strategy = "scd2"
)

// ColumnType is the logical type of a column.
type ColumnType string

// Logical column types.
const (
	Integer   ColumnType = "integer"
	BigInt    ColumnType = "bigint"
	Decimal   ColumnType = "decimal"
	Float     ColumnType = "float"
	Boolean   ColumnType = "boolean"
	String    ColumnType = "string"
	Text      ColumnType = "text"
	Timestamp ColumnType = "timestamp"
	JSON      ColumnType = "json"
	UUID      ColumnType = "uuid"
)

// Column declares one table column.
type Column struct {
	Name       string
	Type       ColumnType
	Nullable   bool
	Default    string
	PrimaryKey bool

	// Length/precision, where the logical type carries them.
	MaxLength int
	Precision int
	Scale     int
}

// Index declares one index.
type Index struct {
	Name    string // Auto-generated from the columns when empty
	Columns []string
	Unique  bool
	Method  string // btree when empty
	Where   string // Partial index predicate
}

// Table declares one table: its columns, indexes, and versioning strategy.
// Bookkeeping columns (ids, version windows, timestamps, soft-delete markers)
// are appended automatically; declare only the data fields.
type Table struct {
	Name        string
	Strategy    Strategy
	MultiTenant bool
	SoftDelete  bool
	Columns     []Column
	Indexes     []Index
}

// toInternal converts the public declaration to the engine's table metadata.
func (t Table) toInternal() *schema.TableDef {
	def := &schema.TableDef{
		Name:        t.Name,
		Strategy:    schema.Strategy(t.Strategy),
		MultiTenant: t.MultiTenant,
		SoftDelete:  t.SoftDelete,
	}
	if def.Strategy == "" {
		def.Strategy = schema.StrategyNone
	}
	for _, c := range t.Columns {
		def.Columns = append(def.Columns, &schema.ColumnDef{
			Name:       c.Name,
			Type:       schema.ColumnType(c.Type),
			Nullable:   c.Nullable,
			Default:    c.Default,
			PrimaryKey: c.PrimaryKey,
			MaxLength:  c.MaxLength,
			Precision:  c.Precision,
			Scale:      c.Scale,
		})
	}
	for _, i := range t.Indexes {
		def.Indexes = append(def.Indexes, &schema.IndexDef{
			Name:    i.Name,
			Columns: i.Columns,
			Unique:  i.Unique,
			Method:  i.Method,
			Where:   i.Where,
		})
	}
	return def
}

func toInternalTables(tables []Table) []*schema.TableDef {
	out := make([]*schema.TableDef, 0, len(tables))
	for _, t := range tables {
		out = append(out, t.toInternal())
	}
	return out
}
