// Package schema defines the declarative table metadata the engine consumes:
// tables, columns, indexes, and the versioning strategy attached to each
// table. Definitions are built once by the caller at startup and treated as
// immutable for the process lifetime.
package schema

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/temporadb/tempora/internal/terr"
)

// ColumnType is the logical type of a column, independent of the dialect
// spelling used to store it.
type ColumnType string

// Logical column types.
const (
	TypeInteger   ColumnType = "integer"
	TypeBigInt    ColumnType = "bigint"
	TypeDecimal   ColumnType = "decimal"
	TypeFloat     ColumnType = "float"
	TypeBoolean   ColumnType = "boolean"
	TypeString    ColumnType = "string"
	TypeText      ColumnType = "text"
	TypeTimestamp ColumnType = "timestamp"
	TypeJSON      ColumnType = "json"
	TypeUUID      ColumnType = "uuid"
)

// validTypes is the closed set of supported logical types.
var validTypes = map[ColumnType]bool{
	TypeInteger:   true,
	TypeBigInt:    true,
	TypeDecimal:   true,
	TypeFloat:     true,
	TypeBoolean:   true,
	TypeString:    true,
	TypeText:      true,
	TypeTimestamp: true,
	TypeJSON:      true,
	TypeUUID:      true,
}

// Strategy selects how record mutations are versioned.
type Strategy string

// Versioning strategies.
const (
	StrategyNone         Strategy = "none"
	StrategyCopyOnChange Strategy = "copy_on_change"
	StrategySCD2         Strategy = "scd2"
)

// ParseStrategy converts a string discriminator to a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case StrategyNone, "":
		return StrategyNone, nil
	case StrategyCopyOnChange:
		return StrategyCopyOnChange, nil
	case StrategySCD2:
		return StrategySCD2, nil
	default:
		return "", terr.Newf(terr.ErrSchemaInvalid,
			"unknown versioning strategy %q; must be one of: none, copy_on_change, scd2", s)
	}
}

// validIdentifierPattern matches safe SQL identifiers (lowercase snake_case).
var validIdentifierPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// ValidateIdentifier checks that a name is a safe SQL identifier
// (lowercase snake_case). Reserved SQL keywords are allowed: the query
// builder quotes every identifier it emits.
func ValidateIdentifier(name string) error {
	if !validIdentifierPattern.MatchString(name) {
		return terr.Newf(terr.ErrSchemaInvalid,
			"invalid identifier %q; must match [a-z_][a-z0-9_]*", name)
	}
	return nil
}

// -----------------------------------------------------------------------------
// ColumnDef
// -----------------------------------------------------------------------------

// ColumnDef describes one column. Two ColumnDefs are equal iff the name
// matches and the normalized native type, normalized default, and nullability
// match; that comparison lives in the typenorm package.
type ColumnDef struct {
	Name       string     // Column name (snake_case; may be a reserved word)
	Type       ColumnType // Logical type
	NativeType string     // Dialect spelling; filled by the dialect or introspection
	Nullable   bool       // True if column allows NULL (default NOT NULL)
	Default    string     // Raw default expression; empty means no default
	PrimaryKey bool       // PRIMARY KEY constraint

	// Length/precision, where the logical type carries them.
	MaxLength int // string: VARCHAR(n); 0 means unbounded
	Precision int // decimal: total digits
	Scale     int // decimal: fractional digits
}

// Validate checks that the column definition is well-formed.
func (c *ColumnDef) Validate() error {
	if c.Name == "" {
		return terr.New(terr.ErrSchemaInvalid, "column name is required")
	}
	if err := ValidateIdentifier(c.Name); err != nil {
		return err
	}
	if !validTypes[c.Type] {
		return terr.Newf(terr.ErrUnsupportedType,
			"column %q declares unsupported logical type %q", c.Name, c.Type)
	}
	return nil
}

// HasDefault returns true if a default expression is set.
func (c *ColumnDef) HasDefault() bool {
	return c.Default != ""
}

// -----------------------------------------------------------------------------
// IndexDef
// -----------------------------------------------------------------------------

// IndexDef describes an index. Equality compares normalized predicate text;
// that comparison lives in the typenorm package.
type IndexDef struct {
	Name    string   // Index name (auto-generated if empty)
	Columns []string // Columns to index, in order
	Unique  bool     // UNIQUE index
	Method  string   // Index method (btree when empty)
	Where   string   // Partial index predicate (raw text, optional)
}

// Validate checks that the index definition is well-formed.
func (i *IndexDef) Validate() error {
	if len(i.Columns) == 0 {
		return terr.New(terr.ErrSchemaInvalid, "index must have at least one column")
	}
	for _, col := range i.Columns {
		if err := ValidateIdentifier(col); err != nil {
			return err
		}
	}
	return nil
}

// DefaultName returns the conventional index name for the owning table:
// idx_<table>_<cols> or uniq_<table>_<cols> for unique indexes.
func (i *IndexDef) DefaultName(table string) string {
	prefix := "idx_"
	if i.Unique {
		prefix = "uniq_"
	}
	return prefix + table + "_" + strings.Join(i.Columns, "_")
}

// -----------------------------------------------------------------------------
// TableDef
// -----------------------------------------------------------------------------

// TableDef describes a complete table: columns, indexes, and the versioning
// strategy the repository applies to its records.
type TableDef struct {
	Schema      string       // Database schema qualifier ("" means current schema)
	Name        string       // Table name (snake_case)
	Columns     []*ColumnDef // Column definitions in order
	Indexes     []*IndexDef  // Index definitions
	Strategy    Strategy     // Versioning strategy
	MultiTenant bool         // Adds implicit tenant scoping to every query
	SoftDelete  bool         // Delete marks deleted_at instead of removing rows
}

// QualifiedName returns schema.name, or just name when unqualified.
func (t *TableDef) QualifiedName() string {
	if t.Schema != "" {
		return t.Schema + "." + t.Name
	}
	return t.Name
}

// GetColumn returns the column with the given name, or nil if not found.
func (t *TableDef) GetColumn(name string) *ColumnDef {
	for _, col := range t.Columns {
		if col.Name == name {
			return col
		}
	}
	return nil
}

// HasColumn returns true if the table has a column with the given name.
func (t *TableDef) HasColumn(name string) bool {
	return t.GetColumn(name) != nil
}

// PrimaryKey returns the primary key column, or nil if none.
func (t *TableDef) PrimaryKey() *ColumnDef {
	for _, col := range t.Columns {
		if col.PrimaryKey {
			return col
		}
	}
	return nil
}

// DataColumns returns the caller-declared columns, excluding the bookkeeping
// columns the engine manages (version window, soft-delete markers, tenant id).
func (t *TableDef) DataColumns() []*ColumnDef {
	var cols []*ColumnDef
	for _, col := range t.Columns {
		if IsEngineColumn(col.Name) {
			continue
		}
		cols = append(cols, col)
	}
	return cols
}

// Validate checks that the table definition is well-formed.
func (t *TableDef) Validate() error {
	if t.Name == "" {
		return terr.New(terr.ErrSchemaInvalid, "table name is required")
	}
	if err := ValidateIdentifier(t.Name); err != nil {
		return err
	}
	if len(t.Columns) == 0 {
		return terr.New(terr.ErrSchemaInvalid, "table must have at least one column").
			WithTable(t.Name)
	}
	seen := make(map[string]bool)
	for _, col := range t.Columns {
		if err := col.Validate(); err != nil {
			return terr.Wrap(terr.ErrSchemaInvalid, err, "invalid column").
				WithTable(t.Name).
				WithColumn(col.Name)
		}
		if seen[col.Name] {
			return terr.New(terr.ErrSchemaDuplicate, "duplicate column name").
				WithTable(t.Name).
				WithColumn(col.Name)
		}
		seen[col.Name] = true
	}
	for _, idx := range t.Indexes {
		if err := idx.Validate(); err != nil {
			return terr.Wrap(terr.ErrSchemaInvalid, err, "invalid index").
				WithTable(t.Name)
		}
		for _, col := range idx.Columns {
			if !t.HasColumn(col) {
				return terr.Newf(terr.ErrSchemaInvalid,
					"index references unknown column %q", col).
					WithTable(t.Name)
			}
		}
	}
	switch t.Strategy {
	case StrategyNone, StrategyCopyOnChange, StrategySCD2:
	default:
		return terr.Newf(terr.ErrSchemaInvalid, "unknown strategy %q", t.Strategy).
			WithTable(t.Name)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Engine-managed columns
// -----------------------------------------------------------------------------

// Engine-managed column names. These are appended to declared tables
// according to the table's strategy and are never treated as data fields.
const (
	ColID        = "id"
	ColRecordID  = "record_id"
	ColVersion   = "version"
	ColValidFrom = "valid_from"
	ColValidTo   = "valid_to"
	ColTenantID  = "tenant_id"
	ColDeletedAt = "deleted_at"
	ColDeletedBy = "deleted_by"
	ColCreatedAt = "created_at"
	ColCreatedBy = "created_by"
	ColUpdatedAt = "updated_at"
	ColUpdatedBy = "updated_by"
)

var engineColumns = map[string]bool{
	ColID:        true,
	ColRecordID:  true,
	ColVersion:   true,
	ColValidFrom: true,
	ColValidTo:   true,
	ColTenantID:  true,
	ColDeletedAt: true,
	ColDeletedBy: true,
	ColCreatedAt: true,
	ColCreatedBy: true,
	ColUpdatedAt: true,
	ColUpdatedBy: true,
}

// IsEngineColumn reports whether name is a bookkeeping column the engine
// manages rather than a caller data field.
func IsEngineColumn(name string) bool {
	return engineColumns[name]
}

// Normalize fills in engine-managed columns required by the table's strategy
// and soft-delete/multi-tenant flags, returning a copy. Caller columns are
// never modified; already-present engine columns are kept as declared.
func Normalize(t *TableDef) *TableDef {
	out := *t
	out.Columns = make([]*ColumnDef, 0, len(t.Columns)+8)

	ensure := func(col *ColumnDef) {
		for _, existing := range out.Columns {
			if existing.Name == col.Name {
				return
			}
		}
		out.Columns = append(out.Columns, col)
	}

	// Identity columns first.
	switch t.Strategy {
	case StrategySCD2:
		ensure(&ColumnDef{Name: ColID, Type: TypeUUID, PrimaryKey: true})
		ensure(&ColumnDef{Name: ColRecordID, Type: TypeUUID})
		ensure(&ColumnDef{Name: ColVersion, Type: TypeInteger})
		ensure(&ColumnDef{Name: ColValidFrom, Type: TypeTimestamp})
		ensure(&ColumnDef{Name: ColValidTo, Type: TypeTimestamp, Nullable: true})
	default:
		ensure(&ColumnDef{Name: ColID, Type: TypeUUID, PrimaryKey: true})
	}

	if t.MultiTenant {
		ensure(&ColumnDef{Name: ColTenantID, Type: TypeUUID})
	}

	for _, col := range t.Columns {
		ensure(col)
	}

	ensure(&ColumnDef{Name: ColCreatedAt, Type: TypeTimestamp, Default: "now()"})
	ensure(&ColumnDef{Name: ColUpdatedAt, Type: TypeTimestamp, Nullable: true})
	if t.SoftDelete || t.Strategy == StrategySCD2 || t.Strategy == StrategyCopyOnChange {
		ensure(&ColumnDef{Name: ColDeletedAt, Type: TypeTimestamp, Nullable: true})
		ensure(&ColumnDef{Name: ColDeletedBy, Type: TypeString, MaxLength: 255, Nullable: true})
	}

	// Strategy-supporting indexes.
	out.Indexes = append([]*IndexDef{}, t.Indexes...)
	if t.Strategy == StrategySCD2 {
		hasCurrentIdx := false
		for _, idx := range out.Indexes {
			if idx.Name == "uniq_"+t.Name+"_record_current" {
				hasCurrentIdx = true
			}
		}
		if !hasCurrentIdx {
			cols := []string{ColRecordID}
			if t.MultiTenant {
				cols = []string{ColTenantID, ColRecordID}
			}
			// Exactly one open version per record id.
			out.Indexes = append(out.Indexes, &IndexDef{
				Name:    "uniq_" + t.Name + "_record_current",
				Columns: cols,
				Unique:  true,
				Where:   "valid_to IS NULL",
			})
			out.Indexes = append(out.Indexes, &IndexDef{
				Name:    "uniq_" + t.Name + "_record_version",
				Columns: append(append([]string{}, cols...), ColVersion),
				Unique:  true,
			})
		}
	}
	return &out
}

// String implements fmt.Stringer for diagnostics.
func (t *TableDef) String() string {
	return fmt.Sprintf("table %s (%d columns, %d indexes, strategy=%s)",
		t.QualifiedName(), len(t.Columns), len(t.Indexes), t.Strategy)
}
