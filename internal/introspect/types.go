package introspect

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/temporadb/tempora/internal/schema"
)

// MapNativeType converts a catalog type spelling to the logical column type.
// Unknown spellings map to text; introspected tables only need to compare
// structurally, not round-trip through the declaration layer.
func MapNativeType(sqlType string, maxLen, precision, scale sql.NullInt64) schema.ColumnType {
	upper := strings.ToUpper(sqlType)

	switch {
	case upper == "UUID":
		return schema.TypeUUID

	case strings.HasPrefix(upper, "CHARACTER VARYING"), strings.HasPrefix(upper, "VARCHAR"):
		return schema.TypeString

	case upper == "TEXT":
		return schema.TypeText

	case upper == "INTEGER", upper == "INT", upper == "INT4", upper == "SMALLINT", upper == "INT2":
		return schema.TypeInteger

	case upper == "BIGINT", upper == "INT8":
		return schema.TypeBigInt

	case upper == "REAL", upper == "FLOAT4", upper == "DOUBLE PRECISION", upper == "FLOAT8":
		return schema.TypeFloat

	case strings.HasPrefix(upper, "NUMERIC"), strings.HasPrefix(upper, "DECIMAL"):
		return schema.TypeDecimal

	case upper == "BOOLEAN", upper == "BOOL":
		return schema.TypeBoolean

	case strings.HasPrefix(upper, "TIMESTAMP"):
		return schema.TypeTimestamp

	case upper == "JSONB", upper == "JSON":
		return schema.TypeJSON

	default:
		return schema.TypeText
	}
}

// nativeSpelling reconstructs the parameterized native spelling the catalog
// reports through separate length/precision columns, so the normalizer can
// compare it against declared spellings.
func nativeSpelling(dataType string, maxLen, precision, scale sql.NullInt64) string {
	upper := strings.ToUpper(dataType)
	switch {
	case upper == "CHARACTER VARYING" || upper == "VARCHAR":
		if maxLen.Valid && maxLen.Int64 > 0 {
			return fmt.Sprintf("VARCHAR(%d)", maxLen.Int64)
		}
		return "VARCHAR"
	case upper == "NUMERIC" || upper == "DECIMAL":
		if precision.Valid && precision.Int64 > 0 {
			s := int64(0)
			if scale.Valid {
				s = scale.Int64
			}
			return fmt.Sprintf("NUMERIC(%d,%d)", precision.Int64, s)
		}
		return "NUMERIC"
	default:
		return upper
	}
}
