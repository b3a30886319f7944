package manager

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/temporadb/tempora/internal/dialect"
	"github.com/temporadb/tempora/internal/diff"
	"github.com/temporadb/tempora/internal/schema"
	"github.com/temporadb/tempora/internal/terr"
)

func quietManager() *Manager {
	return New(nil, dialect.Postgres(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// -----------------------------------------------------------------------------
// NormalizeModels
// -----------------------------------------------------------------------------

func TestNormalizeModels(t *testing.T) {
	models := []*schema.TableDef{
		{
			Name:     "products",
			Strategy: schema.StrategyCopyOnChange,
			Columns:  []*schema.ColumnDef{{Name: "name", Type: schema.TypeString}},
		},
		{
			Name:     "orders",
			Strategy: schema.StrategySCD2,
			Columns:  []*schema.ColumnDef{{Name: "status", Type: schema.TypeString}},
		},
	}

	out, err := NormalizeModels(models)
	if err != nil {
		t.Fatalf("NormalizeModels() error = %v", err)
	}
	// copy_on_change brings its audit table along.
	if len(out) != 3 {
		t.Fatalf("NormalizeModels() = %d tables, want 3", len(out))
	}
	names := []string{out[0].Name, out[1].Name, out[2].Name}
	want := []string{"products", "products_audit", "orders"}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("table %d = %q, want %q", i, names[i], want[i])
		}
	}
	if !out[0].HasColumn(schema.ColDeletedAt) {
		t.Error("copy_on_change table must carry soft-delete columns")
	}
	if !out[2].HasColumn(schema.ColRecordID) {
		t.Error("scd2 table must carry version window columns")
	}
}

func TestNormalizeModelsRejectsDuplicates(t *testing.T) {
	cols := []*schema.ColumnDef{{Name: "name", Type: schema.TypeString}}
	_, err := NormalizeModels([]*schema.TableDef{
		{Name: "products", Strategy: schema.StrategyNone, Columns: cols},
		{Name: "products", Strategy: schema.StrategyNone, Columns: cols},
	})
	if !terr.Is(err, terr.ErrSchemaDuplicate) {
		t.Errorf("NormalizeModels() error = %v, want duplicate table error", err)
	}
}

func TestNormalizeModelsRejectsAuditNameCollision(t *testing.T) {
	cols := []*schema.ColumnDef{{Name: "name", Type: schema.TypeString}}
	_, err := NormalizeModels([]*schema.TableDef{
		{Name: "products", Strategy: schema.StrategyCopyOnChange, Columns: cols},
		{Name: "products_audit", Strategy: schema.StrategyNone, Columns: cols},
	})
	if !terr.Is(err, terr.ErrSchemaDuplicate) {
		t.Errorf("NormalizeModels() error = %v, want duplicate table error", err)
	}
}

func TestNormalizeModelsValidates(t *testing.T) {
	_, err := NormalizeModels([]*schema.TableDef{
		{Name: "Bad Name!", Strategy: schema.StrategyNone,
			Columns: []*schema.ColumnDef{{Name: "x", Type: schema.TypeText}}},
	})
	if err == nil {
		t.Fatal("NormalizeModels() error = nil, want validation error")
	}
}

// -----------------------------------------------------------------------------
// Destructive gating
// -----------------------------------------------------------------------------

func TestGateSkipsDestructive(t *testing.T) {
	m := quietManager()
	tbl := &schema.TableDef{Name: "products"}
	changes := []diff.Change{
		{Kind: diff.AddColumn, Table: tbl, Column: &schema.ColumnDef{Name: "sku"}},
		{Kind: diff.DropColumn, Table: tbl, Column: &schema.ColumnDef{Name: "legacy"}},
		{Kind: diff.DropTable, Table: &schema.TableDef{Name: "old_stuff"}},
	}

	kept := m.gate(changes, SyncOptions{})
	if len(kept) != 1 {
		t.Fatalf("gate() kept %d changes, want 1: %v", len(kept), kept)
	}
	if kept[0].Kind != diff.AddColumn {
		t.Errorf("gate() kept %v, want add_column", kept[0])
	}

	all := m.gate(changes, SyncOptions{AllowDestructive: true, Reason: "cleanup"})
	if len(all) != 3 {
		t.Errorf("gate() with AllowDestructive kept %d changes, want 3", len(all))
	}
}

func TestGateSkipsOrphanedRebuildAdd(t *testing.T) {
	// An index rebuild is drop + add under the same name. When the drop is
	// gated, creating the replacement would collide with the surviving index,
	// so the add is skipped too.
	m := quietManager()
	tbl := &schema.TableDef{Name: "products"}
	idxOld := &schema.IndexDef{Name: "idx_products_name", Columns: []string{"name"}, Where: "price > 0"}
	idxNew := &schema.IndexDef{Name: "idx_products_name", Columns: []string{"name"}}
	other := &schema.IndexDef{Name: "idx_products_sku", Columns: []string{"sku"}}

	changes := []diff.Change{
		{Kind: diff.AddIndex, Table: tbl, Index: other},
		{Kind: diff.DropIndex, Table: tbl, Index: idxOld},
		{Kind: diff.AddIndex, Table: tbl, Index: idxNew},
	}

	kept := m.gate(changes, SyncOptions{})
	if len(kept) != 1 {
		t.Fatalf("gate() kept %d changes, want 1: %v", len(kept), kept)
	}
	if kept[0].Index.Name != "idx_products_sku" {
		t.Errorf("gate() kept %v, want the unrelated add_index", kept[0])
	}
}

func TestSyncRequiresReasonForDestructive(t *testing.T) {
	m := quietManager()
	_, err := m.Sync(context.Background(), nil, SyncOptions{AllowDestructive: true})
	if !terr.Is(err, terr.ErrConfigInvalid) {
		t.Errorf("Sync() error = %v, want config error requiring a reason", err)
	}
}

// -----------------------------------------------------------------------------
// Statement rendering
// -----------------------------------------------------------------------------

func TestStatementsForAddTableIncludesIndexes(t *testing.T) {
	m := quietManager()
	tbl := schema.Normalize(&schema.TableDef{
		Name:     "orders",
		Strategy: schema.StrategySCD2,
		Columns:  []*schema.ColumnDef{{Name: "status", Type: schema.TypeString}},
	})

	stmts, err := m.statementsFor(diff.Change{Kind: diff.AddTable, Table: tbl})
	if err != nil {
		t.Fatalf("statementsFor() error = %v", err)
	}
	// CREATE TABLE plus the two strategy indexes.
	if len(stmts) != 3 {
		t.Fatalf("statementsFor() = %d statements, want 3: %v", len(stmts), stmts)
	}
}

func TestStatementsForAlterColumn(t *testing.T) {
	m := quietManager()
	tbl := &schema.TableDef{Name: "orders"}
	stmts, err := m.statementsFor(diff.Change{
		Kind:       diff.AlterColumn,
		Table:      tbl,
		Column:     &schema.ColumnDef{Name: "note", Type: schema.TypeText, Nullable: true},
		LiveColumn: &schema.ColumnDef{Name: "note", NativeType: "varchar(255)", Nullable: false},
	})
	if err != nil {
		t.Fatalf("statementsFor() error = %v", err)
	}
	// Type change plus nullability change.
	if len(stmts) != 2 {
		t.Fatalf("statementsFor() = %d statements, want 2: %v", len(stmts), stmts)
	}
}

func TestNarrowingConflict(t *testing.T) {
	tests := []struct {
		name     string
		declared *schema.ColumnDef
		live     *schema.ColumnDef
		conflict bool
	}{
		{
			"widen_integer_to_bigint",
			&schema.ColumnDef{Name: "n", Type: schema.TypeBigInt},
			&schema.ColumnDef{Name: "n", Type: schema.TypeInteger},
			false,
		},
		{
			"narrow_bigint_to_integer",
			&schema.ColumnDef{Name: "n", Type: schema.TypeInteger},
			&schema.ColumnDef{Name: "n", Type: schema.TypeBigInt},
			true,
		},
		{
			"text_to_integer",
			&schema.ColumnDef{Name: "n", Type: schema.TypeInteger},
			&schema.ColumnDef{Name: "n", Type: schema.TypeText},
			true,
		},
		{
			"string_to_text",
			&schema.ColumnDef{Name: "n", Type: schema.TypeText},
			&schema.ColumnDef{Name: "n", Type: schema.TypeString, MaxLength: 120},
			false,
		},
		{
			"varchar_grow",
			&schema.ColumnDef{Name: "n", Type: schema.TypeString, MaxLength: 255},
			&schema.ColumnDef{Name: "n", Type: schema.TypeString, MaxLength: 120},
			false,
		},
		{
			"varchar_shrink",
			&schema.ColumnDef{Name: "n", Type: schema.TypeString, MaxLength: 64},
			&schema.ColumnDef{Name: "n", Type: schema.TypeString, MaxLength: 120},
			true,
		},
		{
			"bound_varchar_over_unbounded",
			&schema.ColumnDef{Name: "n", Type: schema.TypeString, MaxLength: 64},
			&schema.ColumnDef{Name: "n", Type: schema.TypeString},
			true,
		},
		{
			"numeric_precision_shrink",
			&schema.ColumnDef{Name: "n", Type: schema.TypeDecimal, Precision: 10, Scale: 2},
			&schema.ColumnDef{Name: "n", Type: schema.TypeDecimal, Precision: 12, Scale: 2},
			true,
		},
		{
			"numeric_grow",
			&schema.ColumnDef{Name: "n", Type: schema.TypeDecimal, Precision: 14, Scale: 4},
			&schema.ColumnDef{Name: "n", Type: schema.TypeDecimal, Precision: 12, Scale: 2},
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := narrowingConflict(tt.declared, tt.live)
			if tt.conflict && !terr.Is(err, terr.ErrSchemaConflict) {
				t.Errorf("narrowingConflict() = %v, want schema conflict", err)
			}
			if !tt.conflict && err != nil {
				t.Errorf("narrowingConflict() = %v, want nil", err)
			}
		})
	}
}

func TestGroupByTable(t *testing.T) {
	a := &schema.TableDef{Name: "a"}
	b := &schema.TableDef{Name: "b"}
	changes := []diff.Change{
		{Kind: diff.AddColumn, Table: a, Column: &schema.ColumnDef{Name: "x"}},
		{Kind: diff.AddColumn, Table: b, Column: &schema.ColumnDef{Name: "y"}},
		{Kind: diff.AddIndex, Table: a, Index: &schema.IndexDef{Name: "idx_a_x", Columns: []string{"x"}}},
	}

	groups, order := groupByTable(changes)
	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Fatalf("groupByTable() order = %v, want [a b]", order)
	}
	if len(groups["a"]) != 2 || len(groups["b"]) != 1 {
		t.Errorf("groupByTable() groups = a:%d b:%d, want a:2 b:1", len(groups["a"]), len(groups["b"]))
	}
	if groups["a"][0].Kind != diff.AddColumn || groups["a"][1].Kind != diff.AddIndex {
		t.Error("groupByTable() must preserve input order within a group")
	}
}
