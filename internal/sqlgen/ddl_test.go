package sqlgen

import (
	"strings"
	"testing"

	"github.com/temporadb/tempora/internal/dialect"
	"github.com/temporadb/tempora/internal/schema"
)

func TestCreateTableSQL(t *testing.T) {
	def := schema.Normalize(&schema.TableDef{
		Name:     "products",
		Strategy: schema.StrategyNone,
		Columns: []*schema.ColumnDef{
			{Name: "name", Type: schema.TypeString, MaxLength: 120},
			{Name: "price", Type: schema.TypeFloat},
			{Name: "attrs", Type: schema.TypeJSON, Nullable: true},
		},
	})

	got, err := New(dialect.Postgres()).CreateTableSQL(def)
	if err != nil {
		t.Fatalf("CreateTableSQL() error = %v", err)
	}

	wantFragments := []string{
		`CREATE TABLE "products"`,
		`"id" UUID PRIMARY KEY DEFAULT gen_random_uuid()`,
		`"name" VARCHAR(120) NOT NULL`,
		`"price" DOUBLE PRECISION NOT NULL`,
		`"attrs" JSONB`,
		`"created_at" TIMESTAMPTZ NOT NULL DEFAULT now()`,
		`"updated_at" TIMESTAMPTZ`,
	}
	for _, frag := range wantFragments {
		if !strings.Contains(got, frag) {
			t.Errorf("CreateTableSQL() missing %q:\n%s", frag, got)
		}
	}
	if strings.Contains(got, `"attrs" JSONB NOT NULL`) {
		t.Error("nullable column must not render NOT NULL")
	}
}

func TestCreateTableSQLSCD2(t *testing.T) {
	def := schema.Normalize(&schema.TableDef{
		Name:     "orders",
		Strategy: schema.StrategySCD2,
		Columns:  []*schema.ColumnDef{{Name: "status", Type: schema.TypeString}},
	})

	got, err := New(dialect.Postgres()).CreateTableSQL(def)
	if err != nil {
		t.Fatalf("CreateTableSQL() error = %v", err)
	}
	for _, frag := range []string{
		`"record_id" UUID NOT NULL`,
		`"version" INTEGER NOT NULL`,
		`"valid_from" TIMESTAMPTZ NOT NULL`,
		`"valid_to" TIMESTAMPTZ`,
	} {
		if !strings.Contains(got, frag) {
			t.Errorf("CreateTableSQL() missing %q:\n%s", frag, got)
		}
	}
}

func TestAddDropColumnSQL(t *testing.T) {
	b := New(dialect.Postgres())

	add, err := b.AddColumnSQL("products", &schema.ColumnDef{Name: "sku", Type: schema.TypeString, MaxLength: 64})
	if err != nil {
		t.Fatalf("AddColumnSQL() error = %v", err)
	}
	if add != `ALTER TABLE "products" ADD COLUMN "sku" VARCHAR(64) NOT NULL` {
		t.Errorf("AddColumnSQL() = %q", add)
	}

	drop, err := b.DropColumnSQL("products", &schema.ColumnDef{Name: "sku"})
	if err != nil {
		t.Fatalf("DropColumnSQL() error = %v", err)
	}
	if drop != `ALTER TABLE "products" DROP COLUMN "sku"` {
		t.Errorf("DropColumnSQL() = %q", drop)
	}
}

func TestAlterColumnSQL(t *testing.T) {
	b := New(dialect.Postgres())

	tests := []struct {
		name     string
		declared *schema.ColumnDef
		live     *schema.ColumnDef
		want     []string
	}{
		{
			"type_change",
			&schema.ColumnDef{Name: "price", Type: schema.TypeDecimal, Precision: 12, Scale: 2},
			&schema.ColumnDef{Name: "price", NativeType: "double precision"},
			[]string{`ALTER TABLE "orders" ALTER COLUMN "price" TYPE NUMERIC(12,2)`},
		},
		{
			"make_nullable",
			&schema.ColumnDef{Name: "note", Type: schema.TypeText, Nullable: true},
			&schema.ColumnDef{Name: "note", NativeType: "text", Nullable: false},
			[]string{`ALTER TABLE "orders" ALTER COLUMN "note" DROP NOT NULL`},
		},
		{
			"make_not_null",
			&schema.ColumnDef{Name: "note", Type: schema.TypeText, Nullable: false},
			&schema.ColumnDef{Name: "note", NativeType: "text", Nullable: true},
			[]string{`ALTER TABLE "orders" ALTER COLUMN "note" SET NOT NULL`},
		},
		{
			"set_default",
			&schema.ColumnDef{Name: "status", Type: schema.TypeString, MaxLength: 32, Default: "'pending'"},
			&schema.ColumnDef{Name: "status", NativeType: "varchar(32)"},
			[]string{`ALTER TABLE "orders" ALTER COLUMN "status" SET DEFAULT 'pending'`},
		},
		{
			"drop_default",
			&schema.ColumnDef{Name: "status", Type: schema.TypeString, MaxLength: 32},
			&schema.ColumnDef{Name: "status", NativeType: "varchar(32)", Default: "'pending'::character varying"},
			[]string{`ALTER TABLE "orders" ALTER COLUMN "status" DROP DEFAULT`},
		},
		{
			"no_difference",
			&schema.ColumnDef{Name: "note", Type: schema.TypeText},
			&schema.ColumnDef{Name: "note", NativeType: "text"},
			nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := b.AlterColumnSQL("orders", tt.declared, tt.live)
			if err != nil {
				t.Fatalf("AlterColumnSQL() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("AlterColumnSQL() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("statement %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestCreateIndexSQL(t *testing.T) {
	b := New(dialect.Postgres())

	tests := []struct {
		name string
		idx  *schema.IndexDef
		want string
	}{
		{
			"plain",
			&schema.IndexDef{Name: "idx_products_name", Columns: []string{"name"}},
			`CREATE INDEX "idx_products_name" ON "products" ("name")`,
		},
		{
			"unique",
			&schema.IndexDef{Name: "uniq_products_sku", Columns: []string{"sku"}, Unique: true},
			`CREATE UNIQUE INDEX "uniq_products_sku" ON "products" ("sku")`,
		},
		{
			"partial_predicate_normalized",
			&schema.IndexDef{Name: "idx_products_live", Columns: []string{"name"}, Where: "(deleted_at IS NULL)"},
			`CREATE INDEX "idx_products_live" ON "products" ("name") WHERE deleted_at IS NULL`,
		},
		{
			"composite",
			&schema.IndexDef{Name: "uniq_products_pair", Columns: []string{"record_id", "version"}, Unique: true},
			`CREATE UNIQUE INDEX "uniq_products_pair" ON "products" ("record_id", "version")`,
		},
		{
			"default_name",
			&schema.IndexDef{Columns: []string{"name"}, Unique: true},
			`CREATE UNIQUE INDEX "uniq_products_name" ON "products" ("name")`,
		},
		{
			"gin_method",
			&schema.IndexDef{Name: "idx_products_attrs", Columns: []string{"attrs"}, Method: "gin"},
			`CREATE INDEX "idx_products_attrs" ON "products" USING gin ("attrs")`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := b.CreateIndexSQL("products", tt.idx)
			if err != nil {
				t.Fatalf("CreateIndexSQL() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("CreateIndexSQL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDropSQL(t *testing.T) {
	b := New(dialect.Postgres())

	table, err := b.DropTableSQL(&schema.TableDef{Name: "legacy"})
	if err != nil || table != `DROP TABLE "legacy"` {
		t.Errorf("DropTableSQL() = %q, %v", table, err)
	}

	idx, err := b.DropIndexSQL(&schema.IndexDef{Name: "idx_legacy_name"})
	if err != nil || idx != `DROP INDEX "idx_legacy_name"` {
		t.Errorf("DropIndexSQL() = %q, %v", idx, err)
	}
}

func TestUnsupportedTypeErrors(t *testing.T) {
	_, err := New(dialect.Postgres()).CreateTableSQL(&schema.TableDef{
		Name:    "bad",
		Columns: []*schema.ColumnDef{{Name: "x", Type: "money"}},
	})
	if err == nil {
		t.Fatal("CreateTableSQL() error = nil, want unsupported type error")
	}
}
