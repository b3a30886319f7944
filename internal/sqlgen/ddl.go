package sqlgen

import (
	"strings"

	"github.com/temporadb/tempora/internal/schema"
	"github.com/temporadb/tempora/internal/typenorm"
)

// CreateTableSQL renders a CREATE TABLE statement for the full table
// definition. Index creation is rendered separately by CreateIndexSQL.
func (b *Builder) CreateTableSQL(t *schema.TableDef) (string, error) {
	var sb strings.Builder
	sb.WriteString("CREATE TABLE ")
	sb.WriteString(b.dialect.QuoteIdent(t.Name))
	sb.WriteString(" (\n")

	for i, col := range t.Columns {
		if i > 0 {
			sb.WriteString(",\n")
		}
		sb.WriteString("  ")
		def, err := b.columnDefSQL(col)
		if err != nil {
			return "", err
		}
		sb.WriteString(def)
	}

	sb.WriteString("\n)")
	return sb.String(), nil
}

// DropTableSQL renders DROP TABLE.
func (b *Builder) DropTableSQL(t *schema.TableDef) (string, error) {
	return "DROP TABLE " + b.dialect.QuoteIdent(t.Name), nil
}

// AddColumnSQL renders ALTER TABLE ADD COLUMN.
func (b *Builder) AddColumnSQL(table string, col *schema.ColumnDef) (string, error) {
	def, err := b.columnDefSQL(col)
	if err != nil {
		return "", err
	}
	return "ALTER TABLE " + b.dialect.QuoteIdent(table) + " ADD COLUMN " + def, nil
}

// DropColumnSQL renders ALTER TABLE DROP COLUMN.
func (b *Builder) DropColumnSQL(table string, col *schema.ColumnDef) (string, error) {
	return "ALTER TABLE " + b.dialect.QuoteIdent(table) +
		" DROP COLUMN " + b.dialect.QuoteIdent(col.Name), nil
}

// AlterColumnSQL renders the statements that bring an existing column to the
// declared definition: type, nullability, and default. Multiple statements
// may be returned; the manager applies them in order inside one transaction.
func (b *Builder) AlterColumnSQL(table string, declared, live *schema.ColumnDef) ([]string, error) {
	prefix := "ALTER TABLE " + b.dialect.QuoteIdent(table) +
		" ALTER COLUMN " + b.dialect.QuoteIdent(declared.Name)

	var stmts []string

	declaredType, err := b.dialect.TypeSQL(declared)
	if err != nil {
		return nil, err
	}
	if typenorm.NormalizeNativeType(declaredType) != typenorm.NormalizeNativeType(live.NativeType) {
		stmts = append(stmts, prefix+" TYPE "+declaredType)
	}

	if declared.Nullable != live.Nullable {
		if declared.Nullable {
			stmts = append(stmts, prefix+" DROP NOT NULL")
		} else {
			stmts = append(stmts, prefix+" SET NOT NULL")
		}
	}

	declaredDefault := typenorm.NormalizeDefault(declared.Default)
	liveDefault := typenorm.NormalizeDefault(live.Default)
	if declaredDefault != liveDefault {
		if declaredDefault == "" {
			stmts = append(stmts, prefix+" DROP DEFAULT")
		} else {
			stmts = append(stmts, prefix+" SET DEFAULT "+declaredDefault)
		}
	}

	return stmts, nil
}

// CreateIndexSQL renders CREATE [UNIQUE] INDEX ... ON t (cols) [WHERE pred].
// The predicate is structural schema text declared at startup, not caller
// data, so it is embedded verbatim the way the catalog stores it.
func (b *Builder) CreateIndexSQL(table string, idx *schema.IndexDef) (string, error) {
	var sb strings.Builder
	sb.WriteString("CREATE ")
	if idx.Unique {
		sb.WriteString("UNIQUE ")
	}
	sb.WriteString("INDEX ")

	name := idx.Name
	if name == "" {
		name = idx.DefaultName(table)
	}
	sb.WriteString(b.dialect.QuoteIdent(name))
	sb.WriteString(" ON ")
	sb.WriteString(b.dialect.QuoteIdent(table))

	if idx.Method != "" && idx.Method != "btree" {
		sb.WriteString(" USING ")
		sb.WriteString(idx.Method)
	}

	sb.WriteString(" (")
	for i, col := range idx.Columns {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(b.dialect.QuoteIdent(col))
	}
	sb.WriteString(")")

	if pred := typenorm.NormalizePredicate(idx.Where); pred != "" {
		sb.WriteString(" WHERE ")
		sb.WriteString(pred)
	}

	return sb.String(), nil
}

// DropIndexSQL renders DROP INDEX.
func (b *Builder) DropIndexSQL(idx *schema.IndexDef) (string, error) {
	return "DROP INDEX " + b.dialect.QuoteIdent(idx.Name), nil
}

// columnDefSQL renders "name TYPE [PRIMARY KEY] [NOT NULL] [DEFAULT expr]".
func (b *Builder) columnDefSQL(col *schema.ColumnDef) (string, error) {
	typeSQL, err := b.dialect.TypeSQL(col)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString(b.dialect.QuoteIdent(col.Name))
	sb.WriteString(" ")
	sb.WriteString(typeSQL)

	if col.PrimaryKey {
		sb.WriteString(" PRIMARY KEY")
		if col.Type == schema.TypeUUID && !col.HasDefault() {
			sb.WriteString(" DEFAULT gen_random_uuid()")
		}
	}
	if !col.Nullable && !col.PrimaryKey {
		sb.WriteString(" NOT NULL")
	}
	if col.HasDefault() {
		sb.WriteString(" DEFAULT ")
		sb.WriteString(typenorm.NormalizeDefault(col.Default))
	}

	return sb.String(), nil
}
