package rowstore

import (
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"
)

// Row is one result row keyed by column name. The typed accessors absorb
// the value representations the two drivers produce for the same column.
type Row map[string]any

func (r Row) Has(key string) bool {
	v, ok := r[key]
	return ok && v != nil
}

func (r Row) String(key string) string {
	switch v := r[key].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return ""
	}
}

func (r Row) Int64(key string) int64 {
	switch v := r[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	case []byte:
		d, err := decimal.NewFromString(string(v))
		if err != nil {
			log.Printf("rowstore: unparseable integer %q in column %s", v, key)
			return 0
		}
		return d.IntPart()
	default:
		return 0
	}
}

// Decimal parses a money column. Money is stored as TEXT so that neither
// backend ever round-trips it through binary floating point. A stored
// value that fails to parse means the row is corrupt; it is logged loudly
// rather than absorbed, because the zero fallback would read as a wiped
// balance.
func (r Row) Decimal(key string) decimal.Decimal {
	switch v := r[key].(type) {
	case string:
		d, err := decimal.NewFromString(v)
		if err != nil {
			log.Printf("rowstore: unparseable decimal %q in column %s", v, key)
			return decimal.Zero
		}
		return d
	case []byte:
		d, err := decimal.NewFromString(string(v))
		if err != nil {
			log.Printf("rowstore: unparseable decimal %q in column %s", v, key)
			return decimal.Zero
		}
		return d
	case int64:
		return decimal.NewFromInt(v)
	case float64:
		return decimal.NewFromFloat(v)
	default:
		return decimal.Zero
	}
}

func (r Row) Time(key string) time.Time {
	switch v := r[key].(type) {
	case time.Time:
		return v
	case string:
		return parseTime(v)
	case []byte:
		return parseTime(string(v))
	default:
		return time.Time{}
	}
}

func parseTime(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// normalizeArgs converts argument types the drivers cannot bind directly.
// Decimals travel as their canonical string form.
func normalizeArgs(args []any) []any {
	out := make([]any, len(args))
	for i, a := range args {
		switch v := a.(type) {
		case decimal.Decimal:
			out[i] = v.String()
		case *decimal.Decimal:
			if v == nil {
				out[i] = nil
			} else {
				out[i] = v.String()
			}
		case time.Time:
			out[i] = v.UTC()
		case fmt.Stringer:
			out[i] = v.String()
		default:
			out[i] = a
		}
	}
	return out
}
