package introspect

import (
	"database/sql"
	"testing"

	"github.com/temporadb/tempora/internal/schema"
)

func valid(n int64) sql.NullInt64 {
	return sql.NullInt64{Int64: n, Valid: true}
}

func TestMapNativeType(t *testing.T) {
	none := sql.NullInt64{}

	tests := []struct {
		sqlType string
		want    schema.ColumnType
	}{
		{"uuid", schema.TypeUUID},
		{"character varying", schema.TypeString},
		{"varchar", schema.TypeString},
		{"text", schema.TypeText},
		{"integer", schema.TypeInteger},
		{"smallint", schema.TypeInteger},
		{"bigint", schema.TypeBigInt},
		{"double precision", schema.TypeFloat},
		{"real", schema.TypeFloat},
		{"numeric", schema.TypeDecimal},
		{"boolean", schema.TypeBoolean},
		{"timestamp with time zone", schema.TypeTimestamp},
		{"timestamp without time zone", schema.TypeTimestamp},
		{"jsonb", schema.TypeJSON},
		{"json", schema.TypeJSON},
		{"tsvector", schema.TypeText}, // unknown types fall back to text
	}

	for _, tt := range tests {
		if got := MapNativeType(tt.sqlType, none, none, none); got != tt.want {
			t.Errorf("MapNativeType(%q) = %q, want %q", tt.sqlType, got, tt.want)
		}
	}
}

func TestNativeSpelling(t *testing.T) {
	none := sql.NullInt64{}

	tests := []struct {
		name      string
		dataType  string
		maxLen    sql.NullInt64
		precision sql.NullInt64
		scale     sql.NullInt64
		want      string
	}{
		{"varchar_bounded", "character varying", valid(120), none, none, "VARCHAR(120)"},
		{"varchar_unbounded", "character varying", none, none, none, "VARCHAR"},
		{"numeric_full", "numeric", none, valid(12), valid(2), "NUMERIC(12,2)"},
		{"numeric_no_scale", "numeric", none, valid(10), none, "NUMERIC(10,0)"},
		{"numeric_bare", "numeric", none, none, none, "NUMERIC"},
		{"plain", "double precision", none, none, none, "DOUBLE PRECISION"},
		{"timestamptz", "timestamp with time zone", none, none, none, "TIMESTAMP WITH TIME ZONE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := nativeSpelling(tt.dataType, tt.maxLen, tt.precision, tt.scale); got != tt.want {
				t.Errorf("nativeSpelling(%q) = %q, want %q", tt.dataType, got, tt.want)
			}
		})
	}
}

func TestSplitColumns(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"name", 1},
		{"tenant_id,record_id,version", 3},
	}
	for _, tt := range tests {
		if got := splitColumns(tt.in); len(got) != tt.want {
			t.Errorf("splitColumns(%q) = %v, want %d parts", tt.in, got, tt.want)
		}
	}
}
