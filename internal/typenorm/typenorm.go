// Package typenorm canonicalizes dialect-specific spellings of column types,
// default values, and index predicate text so that two independently produced
// representations of the same logical schema compare as equal.
//
// All functions are pure and idempotent: normalize(normalize(x)) == normalize(x).
package typenorm

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/temporadb/tempora/internal/schema"
)

// typeAliases maps lowercase dialect spellings to one canonical spelling per
// logical type. Parameterized types (varchar, numeric) are handled separately.
var typeAliases = map[string]string{
	"int":                         "INTEGER",
	"int4":                        "INTEGER",
	"integer":                     "INTEGER",
	"serial":                      "INTEGER",
	"int8":                        "BIGINT",
	"bigint":                      "BIGINT",
	"bigserial":                   "BIGINT",
	"int2":                        "SMALLINT",
	"smallint":                    "SMALLINT",
	"float4":                      "REAL",
	"real":                        "REAL",
	"float8":                      "DOUBLE PRECISION",
	"double":                      "DOUBLE PRECISION",
	"double precision":            "DOUBLE PRECISION",
	"bool":                        "BOOLEAN",
	"boolean":                     "BOOLEAN",
	"text":                        "TEXT",
	"uuid":                        "UUID",
	"json":                        "JSONB",
	"jsonb":                       "JSONB",
	"bytea":                       "BYTEA",
	"date":                        "DATE",
	"timestamptz":                 "TIMESTAMPTZ",
	"timestamp with time zone":    "TIMESTAMPTZ",
	"timestamp":                   "TIMESTAMP",
	"timestamp without time zone": "TIMESTAMP",
}

// varcharPattern matches bounded string spellings: varchar(n), character varying(n).
var varcharPattern = regexp.MustCompile(`^(?:varchar|character varying)\s*(\(\s*\d+\s*\))?$`)

// numericPattern matches arbitrary-precision spellings: numeric(p,s), decimal(p,s).
var numericPattern = regexp.MustCompile(`^(?:numeric|decimal)\s*(\(\s*\d+\s*(?:,\s*\d+\s*)?\))?$`)

// whitespacePattern collapses runs of whitespace.
var whitespacePattern = regexp.MustCompile(`\s+`)

// NormalizeNativeType canonicalizes a dialect type spelling. Matching is
// case-insensitive; unknown spellings are uppercased and whitespace-collapsed
// so at least identical unknowns still compare equal.
func NormalizeNativeType(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = whitespacePattern.ReplaceAllString(s, " ")
	if s == "" {
		return ""
	}

	if canonical, ok := typeAliases[s]; ok {
		return canonical
	}
	if m := varcharPattern.FindStringSubmatch(s); m != nil {
		if m[1] == "" {
			return "VARCHAR"
		}
		return "VARCHAR" + stripSpaces(m[1])
	}
	if m := numericPattern.FindStringSubmatch(s); m != nil {
		if m[1] == "" {
			return "NUMERIC"
		}
		return "NUMERIC" + stripSpaces(m[1])
	}
	return strings.ToUpper(s)
}

func stripSpaces(s string) string {
	return strings.ReplaceAll(s, " ", "")
}

// boolLiterals maps boolean default spellings to the two canonical forms.
var boolLiterals = map[string]string{
	"t":     "TRUE",
	"1":     "TRUE",
	"true":  "TRUE",
	"f":     "FALSE",
	"0":     "FALSE",
	"false": "FALSE",
}

// castSuffixPattern matches a trailing Postgres cast: 'abc'::character varying.
var castSuffixPattern = regexp.MustCompile(`::[a-zA-Z_][a-zA-Z0-9_ ]*(\(\d+(,\d+)?\))?$`)

// NormalizeDefault canonicalizes a default-value expression. Boolean literals
// fold to TRUE/FALSE; introspected cast suffixes are stripped; everything
// else is trimmed and passed through.
func NormalizeDefault(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	s = castSuffixPattern.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)
	if canonical, ok := boolLiterals[strings.ToLower(s)]; ok {
		return canonical
	}
	return s
}

// NormalizePredicate canonicalizes partial-index predicate text: surrounding
// whitespace is trimmed, internal whitespace runs collapse to one space, and
// balanced outer parenthesis pairs are stripped one at a time — but only when
// the outermost open/close pair wraps the entire expression. Inner
// parenthesized sub-expressions are preserved untouched. Empty stays empty.
func NormalizePredicate(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	s = whitespacePattern.ReplaceAllString(s, " ")
	for wrapsWhole(s) {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}

// wrapsWhole reports whether s is wrapped by one balanced outer paren pair.
// "(a) AND (b)" is not wrapped: the first open paren closes before the end.
func wrapsWhole(s string) bool {
	if len(s) < 2 || s[0] != '(' || s[len(s)-1] != ')' {
		return false
	}
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 && i != len(s)-1 {
				return false
			}
		}
	}
	return depth == 0
}

// DefaultSpelling returns the canonical native spelling for a column that
// declares only a logical type. Mirrors the dialect's rendering so a declared
// column compares equal to the column its own DDL produces.
func DefaultSpelling(col *schema.ColumnDef) string {
	switch col.Type {
	case schema.TypeInteger:
		return "INTEGER"
	case schema.TypeBigInt:
		return "BIGINT"
	case schema.TypeDecimal:
		p, s := col.Precision, col.Scale
		if p == 0 {
			p, s = 18, 6
		}
		return fmt.Sprintf("NUMERIC(%d,%d)", p, s)
	case schema.TypeFloat:
		return "DOUBLE PRECISION"
	case schema.TypeBoolean:
		return "BOOLEAN"
	case schema.TypeString:
		length := col.MaxLength
		if length <= 0 {
			length = 255
		}
		return fmt.Sprintf("VARCHAR(%d)", length)
	case schema.TypeText:
		return "TEXT"
	case schema.TypeTimestamp:
		return "TIMESTAMPTZ"
	case schema.TypeJSON:
		return "JSONB"
	case schema.TypeUUID:
		return "UUID"
	default:
		return strings.ToUpper(string(col.Type))
	}
}

// NormalizeColumn returns a copy of col with its native type and default in
// canonical form. A column carrying only a logical type gets the dialect's
// default spelling; a uuid primary key without an explicit default gets the
// generated default the DDL layer emits. The input is not modified.
func NormalizeColumn(col *schema.ColumnDef) *schema.ColumnDef {
	out := *col
	if out.NativeType == "" {
		out.NativeType = DefaultSpelling(col)
	}
	if out.PrimaryKey && out.Type == schema.TypeUUID && out.Default == "" {
		out.Default = "gen_random_uuid()"
	}
	out.NativeType = NormalizeNativeType(out.NativeType)
	out.Default = NormalizeDefault(out.Default)
	return &out
}

// ColumnsEqual reports whether two column definitions describe the same
// physical column: name, normalized native type, normalized default, and
// nullability all match.
func ColumnsEqual(a, b *schema.ColumnDef) bool {
	if a.Name != b.Name || a.Nullable != b.Nullable {
		return false
	}
	if NormalizeNativeType(a.NativeType) != NormalizeNativeType(b.NativeType) {
		return false
	}
	return NormalizeDefault(a.Default) == NormalizeDefault(b.Default)
}

// IndexesEqual reports whether two index definitions describe the same
// physical index: column list, uniqueness, and normalized predicate match.
// Names are not compared; the differ matches indexes by name first.
func IndexesEqual(a, b *schema.IndexDef) bool {
	if a.Unique != b.Unique || len(a.Columns) != len(b.Columns) {
		return false
	}
	for i := range a.Columns {
		if a.Columns[i] != b.Columns[i] {
			return false
		}
	}
	return NormalizePredicate(a.Where) == NormalizePredicate(b.Where)
}
