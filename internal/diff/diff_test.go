package diff

import (
	"reflect"
	"testing"

	"github.com/temporadb/tempora/internal/schema"
)

func declaredProducts() *schema.TableDef {
	return schema.Normalize(&schema.TableDef{
		Name:     "products",
		Strategy: schema.StrategyNone,
		Columns: []*schema.ColumnDef{
			{Name: "name", Type: schema.TypeString, MaxLength: 120},
			{Name: "price", Type: schema.TypeFloat},
		},
	})
}

// liveProducts mirrors declaredProducts as introspection would report it:
// native spellings filled in, no logical types.
func liveProducts() *schema.TableDef {
	return &schema.TableDef{
		Name: "products",
		Columns: []*schema.ColumnDef{
			{Name: "id", NativeType: "uuid", PrimaryKey: true, Default: "gen_random_uuid()"},
			{Name: "name", NativeType: "character varying(120)"},
			{Name: "price", NativeType: "double precision"},
			{Name: "created_at", NativeType: "timestamp with time zone", Default: "now()"},
			{Name: "updated_at", NativeType: "timestamptz", Nullable: true},
		},
	}
}

// -----------------------------------------------------------------------------
// Table-level changes
// -----------------------------------------------------------------------------

func TestDiffNewTable(t *testing.T) {
	changes := Diff([]*schema.TableDef{declaredProducts()}, nil)
	if len(changes) != 1 {
		t.Fatalf("Diff() = %d changes, want 1", len(changes))
	}
	if changes[0].Kind != AddTable {
		t.Errorf("Diff() kind = %v, want add_table", changes[0].Kind)
	}
	if changes[0].Table.Name != "products" {
		t.Errorf("Diff() table = %q, want products", changes[0].Table.Name)
	}
}

func TestDiffNoChanges(t *testing.T) {
	changes := Diff([]*schema.TableDef{declaredProducts()}, []*schema.TableDef{liveProducts()})
	if len(changes) != 0 {
		t.Fatalf("Diff() = %d changes, want 0: %v", len(changes), changes)
	}
}

func TestDiffDropCandidate(t *testing.T) {
	changes := Diff(nil, []*schema.TableDef{liveProducts()})
	if len(changes) != 1 {
		t.Fatalf("Diff() = %d changes, want 1", len(changes))
	}
	if changes[0].Kind != DropTable {
		t.Errorf("Diff() kind = %v, want drop_table", changes[0].Kind)
	}
	if !changes[0].Destructive() {
		t.Error("drop_table must be destructive")
	}
}

// -----------------------------------------------------------------------------
// Column changes
// -----------------------------------------------------------------------------

func TestDiffColumns(t *testing.T) {
	t.Run("add_column", func(t *testing.T) {
		live := liveProducts()
		var cols []*schema.ColumnDef
		for _, c := range live.Columns {
			if c.Name != "price" {
				cols = append(cols, c)
			}
		}
		live.Columns = cols

		changes := Diff([]*schema.TableDef{declaredProducts()}, []*schema.TableDef{live})
		if len(changes) != 1 {
			t.Fatalf("Diff() = %d changes, want 1: %v", len(changes), changes)
		}
		if changes[0].Kind != AddColumn || changes[0].Column.Name != "price" {
			t.Errorf("Diff() = %v, want add_column products.price", changes[0])
		}
	})

	t.Run("alter_column_type", func(t *testing.T) {
		live := liveProducts()
		for _, c := range live.Columns {
			if c.Name == "price" {
				c.NativeType = "integer"
			}
		}

		changes := Diff([]*schema.TableDef{declaredProducts()}, []*schema.TableDef{live})
		if len(changes) != 1 {
			t.Fatalf("Diff() = %d changes, want 1: %v", len(changes), changes)
		}
		c := changes[0]
		if c.Kind != AlterColumn || c.Column.Name != "price" {
			t.Fatalf("Diff() = %v, want alter_column products.price", c)
		}
		if c.LiveColumn == nil || c.LiveColumn.NativeType != "integer" {
			t.Error("alter_column must carry the live definition")
		}
	})

	t.Run("alter_column_nullability", func(t *testing.T) {
		live := liveProducts()
		for _, c := range live.Columns {
			if c.Name == "name" {
				c.Nullable = true
			}
		}
		changes := Diff([]*schema.TableDef{declaredProducts()}, []*schema.TableDef{live})
		if len(changes) != 1 || changes[0].Kind != AlterColumn {
			t.Fatalf("Diff() = %v, want one alter_column", changes)
		}
	})

	t.Run("drop_column_candidate", func(t *testing.T) {
		live := liveProducts()
		live.Columns = append(live.Columns, &schema.ColumnDef{Name: "legacy", NativeType: "text", Nullable: true})

		changes := Diff([]*schema.TableDef{declaredProducts()}, []*schema.TableDef{live})
		if len(changes) != 1 {
			t.Fatalf("Diff() = %d changes, want 1: %v", len(changes), changes)
		}
		if changes[0].Kind != DropColumn || changes[0].Column.Name != "legacy" {
			t.Errorf("Diff() = %v, want drop_column products.legacy", changes[0])
		}
		if !changes[0].Destructive() {
			t.Error("drop_column must be destructive")
		}
	})

	t.Run("spelling_only_difference_is_silent", func(t *testing.T) {
		live := liveProducts()
		for _, c := range live.Columns {
			if c.Name == "price" {
				c.NativeType = "float8" // same logical type, different spelling
			}
		}
		changes := Diff([]*schema.TableDef{declaredProducts()}, []*schema.TableDef{live})
		if len(changes) != 0 {
			t.Errorf("Diff() = %v, want no changes for spelling-only difference", changes)
		}
	})
}

// -----------------------------------------------------------------------------
// Index changes
// -----------------------------------------------------------------------------

func declaredWithIndex(where string) *schema.TableDef {
	def := declaredProducts()
	def.Indexes = append(def.Indexes, &schema.IndexDef{
		Name:    "idx_products_name",
		Columns: []string{"name"},
		Where:   where,
	})
	return def
}

func TestDiffIndexes(t *testing.T) {
	t.Run("add_index", func(t *testing.T) {
		changes := Diff([]*schema.TableDef{declaredWithIndex("")}, []*schema.TableDef{liveProducts()})
		if len(changes) != 1 || changes[0].Kind != AddIndex {
			t.Fatalf("Diff() = %v, want one add_index", changes)
		}
		if changes[0].Index.Name != "idx_products_name" {
			t.Errorf("index name = %q, want idx_products_name", changes[0].Index.Name)
		}
	})

	t.Run("default_name_assigned", func(t *testing.T) {
		def := declaredProducts()
		def.Indexes = append(def.Indexes, &schema.IndexDef{Columns: []string{"name"}, Unique: true})
		changes := Diff([]*schema.TableDef{def}, []*schema.TableDef{liveProducts()})
		if len(changes) != 1 || changes[0].Index.Name != "uniq_products_name" {
			t.Fatalf("Diff() = %v, want add_index uniq_products_name", changes)
		}
	})

	t.Run("predicate_parens_equal", func(t *testing.T) {
		live := liveProducts()
		live.Indexes = []*schema.IndexDef{{
			Name:    "idx_products_name",
			Columns: []string{"name"},
			Where:   "(deleted_at IS NULL)",
		}}
		changes := Diff([]*schema.TableDef{declaredWithIndex("deleted_at IS NULL")}, []*schema.TableDef{live})
		if len(changes) != 0 {
			t.Errorf("Diff() = %v, want no changes for parenthesization-only predicate difference", changes)
		}
	})

	t.Run("rebuild_orders_drop_before_add", func(t *testing.T) {
		live := liveProducts()
		live.Indexes = []*schema.IndexDef{{
			Name:    "idx_products_name",
			Columns: []string{"name"},
			Where:   "price > 0",
		}}
		changes := Diff([]*schema.TableDef{declaredWithIndex("deleted_at IS NULL")}, []*schema.TableDef{live})
		if len(changes) != 2 {
			t.Fatalf("Diff() = %d changes, want 2 (rebuild): %v", len(changes), changes)
		}
		if changes[0].Kind != DropIndex || changes[1].Kind != AddIndex {
			t.Fatalf("rebuild order = [%v %v], want [drop_index add_index]", changes[0].Kind, changes[1].Kind)
		}
		if changes[0].Index.Name != changes[1].Index.Name {
			t.Error("rebuild drop and add must target the same index name")
		}
	})

	t.Run("stray_index_dropped", func(t *testing.T) {
		live := liveProducts()
		live.Indexes = []*schema.IndexDef{{Name: "idx_products_legacy", Columns: []string{"name"}}}
		changes := Diff([]*schema.TableDef{declaredProducts()}, []*schema.TableDef{live})
		if len(changes) != 1 || changes[0].Kind != DropIndex {
			t.Fatalf("Diff() = %v, want one drop_index", changes)
		}
	})
}

// -----------------------------------------------------------------------------
// Ordering and determinism
// -----------------------------------------------------------------------------

func TestDiffDeterministic(t *testing.T) {
	declared := []*schema.TableDef{
		declaredWithIndex("deleted_at IS NULL"),
		schema.Normalize(&schema.TableDef{
			Name:     "orders",
			Strategy: schema.StrategySCD2,
			Columns:  []*schema.ColumnDef{{Name: "status", Type: schema.TypeString}},
		}),
	}
	live := []*schema.TableDef{
		liveProducts(),
		{Name: "legacy_events", Columns: []*schema.ColumnDef{{Name: "id", NativeType: "uuid", PrimaryKey: true}}},
	}

	first := Diff(declared, live)
	for i := 0; i < 10; i++ {
		again := Diff(declared, live)
		if len(again) != len(first) {
			t.Fatalf("run %d: %d changes, want %d", i, len(again), len(first))
		}
		for j := range first {
			if first[j].String() != again[j].String() {
				t.Fatalf("run %d: change %d = %q, want %q", i, j, again[j], first[j])
			}
		}
	}
}

func TestDiffOrdering(t *testing.T) {
	// Additions come before drops so a change list never passes through a
	// transient invalid state.
	declared := []*schema.TableDef{declaredProducts()}
	live := liveProducts()
	var cols []*schema.ColumnDef
	for _, c := range live.Columns {
		if c.Name != "price" {
			cols = append(cols, c)
		}
	}
	live.Columns = append(cols, &schema.ColumnDef{Name: "legacy", NativeType: "text", Nullable: true})

	changes := Diff(declared, []*schema.TableDef{live})
	if len(changes) != 2 {
		t.Fatalf("Diff() = %d changes, want 2: %v", len(changes), changes)
	}
	if changes[0].Kind != AddColumn || changes[1].Kind != DropColumn {
		t.Errorf("order = [%v %v], want [add_column drop_column]", changes[0].Kind, changes[1].Kind)
	}
}

func TestSummarize(t *testing.T) {
	tbl := declaredProducts()
	changes := []Change{
		{Kind: AddTable, Table: tbl},
		{Kind: AddColumn, Table: tbl, Column: tbl.Columns[0]},
		{Kind: AddColumn, Table: tbl, Column: tbl.Columns[1]},
		{Kind: AlterColumn, Table: tbl, Column: tbl.Columns[0]},
		{Kind: DropIndex, Table: tbl, Index: &schema.IndexDef{Name: "x", Columns: []string{"name"}}},
		{Kind: DropTable, Table: tbl},
	}
	got := Summarize(changes)
	want := Summary{TablesToAdd: 1, TablesToDrop: 1, ColumnsToAdd: 2, ColumnsToAlter: 1, IndexesToDrop: 1}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Summarize() = %+v, want %+v", got, want)
	}
}

func TestChangeString(t *testing.T) {
	tbl := declaredProducts()
	tests := []struct {
		change Change
		want   string
	}{
		{Change{Kind: AddTable, Table: tbl}, "add_table products"},
		{Change{Kind: AddColumn, Table: tbl, Column: &schema.ColumnDef{Name: "price"}}, "add_column products.price"},
		{Change{Kind: DropIndex, Table: tbl, Index: &schema.IndexDef{Name: "idx_products_name"}}, "drop_index products.idx_products_name"},
	}
	for _, tt := range tests {
		if got := tt.change.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
