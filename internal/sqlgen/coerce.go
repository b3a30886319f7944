package sqlgen

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/temporadb/tempora/internal/schema"
	"github.com/temporadb/tempora/internal/terr"
)

// CoerceValue converts v to a driver-compatible value for the column's
// logical type. Arbitrary-precision decimals bound for floating-point columns
// are converted to native float64; the pq driver rejects them otherwise.
// Incompatible values surface as a validation error before any SQL is sent.
func CoerceValue(col *schema.ColumnDef, v any) (any, error) {
	if v == nil {
		return nil, nil
	}

	switch col.Type {
	case schema.TypeFloat:
		return coerceFloat(col, v)
	case schema.TypeDecimal:
		return coerceDecimal(col, v)
	case schema.TypeInteger, schema.TypeBigInt:
		return coerceInteger(col, v)
	case schema.TypeBoolean:
		if b, ok := v.(bool); ok {
			return b, nil
		}
		return nil, bypassErr(col, v)
	case schema.TypeString, schema.TypeText:
		if s, ok := v.(string); ok {
			return s, nil
		}
		return nil, bypassErr(col, v)
	case schema.TypeTimestamp:
		switch t := v.(type) {
		case time.Time:
			return t, nil
		case string:
			parsed, err := time.Parse(time.RFC3339, t)
			if err != nil {
				return nil, bypassErr(col, v)
			}
			return parsed, nil
		}
		return nil, bypassErr(col, v)
	case schema.TypeUUID:
		switch id := v.(type) {
		case uuid.UUID:
			return id.String(), nil
		case string:
			if _, err := uuid.Parse(id); err != nil {
				return nil, bypassErr(col, v)
			}
			return id, nil
		}
		return nil, bypassErr(col, v)
	case schema.TypeJSON:
		// Already-encoded JSON (a value read back from the database) binds
		// as-is; marshaling it again would double-encode.
		if rm, ok := v.(json.RawMessage); ok {
			return []byte(rm), nil
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, bypassErr(col, v)
		}
		return raw, nil
	default:
		return v, nil
	}
}

// coerceFloat converts decimal and numeric representations to float64.
func coerceFloat(col *schema.ColumnDef, v any) (any, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case decimal.Decimal:
		return n.InexactFloat64(), nil
	case *decimal.Decimal:
		if n == nil {
			return nil, nil
		}
		return n.InexactFloat64(), nil
	case string:
		d, err := decimal.NewFromString(n)
		if err != nil {
			return nil, bypassErr(col, v)
		}
		return d.InexactFloat64(), nil
	default:
		return nil, bypassErr(col, v)
	}
}

// coerceDecimal keeps precision: decimals bind as their exact string form.
func coerceDecimal(col *schema.ColumnDef, v any) (any, error) {
	switch n := v.(type) {
	case decimal.Decimal:
		return n.String(), nil
	case *decimal.Decimal:
		if n == nil {
			return nil, nil
		}
		return n.String(), nil
	case string:
		d, err := decimal.NewFromString(n)
		if err != nil {
			return nil, bypassErr(col, v)
		}
		return d.String(), nil
	case float64:
		return decimal.NewFromFloat(n).String(), nil
	case int:
		return decimal.NewFromInt(int64(n)).String(), nil
	case int64:
		return decimal.NewFromInt(n).String(), nil
	default:
		return nil, bypassErr(col, v)
	}
}

func coerceInteger(col *schema.ColumnDef, v any) (any, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case float64:
		// JSON-decoded payloads arrive as float64; accept exact integers only.
		if n == float64(int64(n)) {
			return int64(n), nil
		}
		return nil, bypassErr(col, v)
	default:
		return nil, bypassErr(col, v)
	}
}

func bypassErr(col *schema.ColumnDef, v any) error {
	return terr.Newf(terr.ErrValidationBypass,
		"value of type %T is incompatible with logical type %q", v, col.Type).
		WithColumn(col.Name)
}
