package sqlgen

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/temporadb/tempora/internal/dialect"
	"github.com/temporadb/tempora/internal/schema"
)

// reservedTable exercises identifier quoting: every column is a SQL reserved
// word, which must still work because the builder quotes everything.
func reservedTable() *schema.TableDef {
	return &schema.TableDef{
		Name:     "user",
		Strategy: schema.StrategyNone,
		Columns: []*schema.ColumnDef{
			{Name: "id", Type: schema.TypeUUID, PrimaryKey: true},
			{Name: "limit", Type: schema.TypeInteger},
			{Name: "order", Type: schema.TypeString},
			{Name: "select", Type: schema.TypeBoolean},
		},
	}
}

func newBuilder() *Builder {
	return New(dialect.Postgres())
}

// -----------------------------------------------------------------------------
// Insert
// -----------------------------------------------------------------------------

func TestInsertQuotesReservedWords(t *testing.T) {
	stmt, err := newBuilder().Insert(reservedTable(), map[string]any{
		"limit":  10,
		"order":  "asc",
		"select": true,
	})
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	want := `INSERT INTO "user" ("limit", "order", "select") VALUES ($1, $2, $3)`
	if stmt.SQL != want {
		t.Errorf("Insert() SQL = %q, want %q", stmt.SQL, want)
	}
	// Keys sort alphabetically, so args are limit, order, select.
	if !reflect.DeepEqual(stmt.Args, []any{int64(10), "asc", true}) {
		t.Errorf("Insert() args = %v", stmt.Args)
	}
}

func TestInsertDeterministic(t *testing.T) {
	b := newBuilder()
	values := map[string]any{"order": "asc", "limit": 1, "select": false}
	first, err := b.Insert(reservedTable(), values)
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := b.Insert(reservedTable(), values)
		if err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
		if again.SQL != first.SQL {
			t.Fatalf("run %d: SQL = %q, want %q", i, again.SQL, first.SQL)
		}
	}
}

func TestInsertRejectsIncompatibleValue(t *testing.T) {
	_, err := newBuilder().Insert(reservedTable(), map[string]any{"limit": "ten"})
	if err == nil {
		t.Fatal("Insert() error = nil, want coercion error")
	}
}

// -----------------------------------------------------------------------------
// Update
// -----------------------------------------------------------------------------

func TestUpdate(t *testing.T) {
	stmt, err := newBuilder().Update(reservedTable(),
		map[string]any{"order": "desc"},
		map[string]any{"limit": 5, "select": nil},
	)
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	want := `UPDATE "user" SET "order" = $1 WHERE "limit" = $2 AND "select" IS NULL`
	if stmt.SQL != want {
		t.Errorf("Update() SQL = %q, want %q", stmt.SQL, want)
	}
	if !reflect.DeepEqual(stmt.Args, []any{"desc", int64(5)}) {
		t.Errorf("Update() args = %v", stmt.Args)
	}
}

func TestUpdatePlaceholderNumberingSpansClauses(t *testing.T) {
	// Placeholders in WHERE continue after SET; nil filters consume none.
	stmt, err := newBuilder().Update(reservedTable(),
		map[string]any{"limit": 1, "order": "a"},
		map[string]any{"select": true},
	)
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	want := `UPDATE "user" SET "limit" = $1, "order" = $2 WHERE "select" = $3`
	if stmt.SQL != want {
		t.Errorf("Update() SQL = %q, want %q", stmt.SQL, want)
	}
}

// -----------------------------------------------------------------------------
// Delete
// -----------------------------------------------------------------------------

func TestDelete(t *testing.T) {
	stmt, err := newBuilder().Delete(reservedTable(), map[string]any{"limit": 1})
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	want := `DELETE FROM "user" WHERE "limit" = $1`
	if stmt.SQL != want {
		t.Errorf("Delete() SQL = %q, want %q", stmt.SQL, want)
	}
}

// -----------------------------------------------------------------------------
// Select
// -----------------------------------------------------------------------------

func scd2Table() *schema.TableDef {
	return schema.Normalize(&schema.TableDef{
		Name:     "orders",
		Strategy: schema.StrategySCD2,
		Columns:  []*schema.ColumnDef{{Name: "status", Type: schema.TypeString}},
	})
}

func TestSelectCurrentOnly(t *testing.T) {
	stmt, err := newBuilder().Select(scd2Table(),
		map[string]any{"record_id": "6a0f0cde-0000-4000-8000-000000000001"},
		SelectOpts{CurrentOnly: true, ExcludeDeleted: true},
	)
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}

	wantFragments := []string{
		`"record_id" = $1`,
		`"valid_to" IS NULL`,
		`"deleted_at" IS NULL`,
	}
	for _, frag := range wantFragments {
		if !contains(stmt.SQL, frag) {
			t.Errorf("Select() SQL missing %q:\n%s", frag, stmt.SQL)
		}
	}
	if len(stmt.Args) != 1 {
		t.Errorf("Select() args = %v, want 1 arg", stmt.Args)
	}
}

func TestSelectAsOfBindsParamTwice(t *testing.T) {
	asOf := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	stmt, err := newBuilder().Select(scd2Table(),
		map[string]any{"record_id": "6a0f0cde-0000-4000-8000-000000000001"},
		SelectOpts{AsOfParam: asOf},
	)
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}

	want := `"valid_from" <= $2 AND ("valid_to" > $3 OR "valid_to" IS NULL)`
	if !contains(stmt.SQL, want) {
		t.Errorf("Select() SQL missing as-of window %q:\n%s", want, stmt.SQL)
	}
	if len(stmt.Args) != 3 {
		t.Fatalf("Select() args = %d, want 3 (filter + timestamp twice)", len(stmt.Args))
	}
	if stmt.Args[1] != any(asOf) || stmt.Args[2] != any(asOf) {
		t.Error("as-of timestamp must bind both window placeholders")
	}
}

func TestSelectOrderAndLimit(t *testing.T) {
	stmt, err := newBuilder().Select(scd2Table(), nil,
		SelectOpts{OrderBy: "valid_from", Descending: true, Limit: 50},
	)
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if !contains(stmt.SQL, `ORDER BY "valid_from" DESC`) {
		t.Errorf("Select() SQL missing ORDER BY:\n%s", stmt.SQL)
	}
	if !contains(stmt.SQL, `LIMIT $1`) {
		t.Errorf("Select() SQL must bind LIMIT as a placeholder:\n%s", stmt.SQL)
	}
	if len(stmt.Args) != 1 || stmt.Args[0] != any(50) {
		t.Errorf("Select() args = %v, want [50]", stmt.Args)
	}
}

func TestSelectColumnsAreDeclarationOrder(t *testing.T) {
	stmt, err := newBuilder().Select(reservedTable(), nil, SelectOpts{})
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	want := `SELECT "id", "limit", "order", "select" FROM "user"`
	if stmt.SQL != want {
		t.Errorf("Select() SQL = %q, want %q", stmt.SQL, want)
	}
}

func contains(s, sub string) bool {
	return strings.Contains(s, sub)
}
