package rowset

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Normalize converts a driver value into something encoding/json renders faithfully:
// times become ISO-8601 strings, byte slices become strings, non-finite floats become nil,
// big integers become int64 when they fit, and Stringers become their string form.
func Normalize(v any) any {
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		if b, ok := v.(*big.Int); ok {
			return normalizeBigInt(b)
		}
		elem := rv.Elem().Interface()
		// Types such as big.Float only implement String on the pointer.
		if _, ok := elem.(fmt.Stringer); !ok {
			if s, ok := v.(fmt.Stringer); ok {
				return s.String()
			}
		}
		return Normalize(elem)
	}

	switch t := v.(type) {
	case nil:
		return nil
	case string, bool, json.Number,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return t
	case float32:
		return normalizeFloat(float64(t))
	case float64:
		return normalizeFloat(t)
	case time.Time:
		return formatTime(t)
	case []byte:
		return string(t)
	case big.Int:
		return normalizeBigInt(&t)
	case fmt.Stringer:
		return t.String()
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = Normalize(rv.Index(i).Interface())
		}
		return out
	case reflect.Map:
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[fmt.Sprint(iter.Key().Interface())] = Normalize(iter.Value().Interface())
		}
		return out
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint()
	case reflect.Float32, reflect.Float64:
		return normalizeFloat(rv.Float())
	}
	return fmt.Sprint(v)
}

// normalizeBigInt keeps HUGEINT and Int128 aggregates numeric when they fit in an int64.
func normalizeBigInt(b *big.Int) any {
	if b.IsInt64() {
		return b.Int64()
	}
	return b.String()
}

func normalizeFloat(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return f
}

// formatTime renders midnight UTC values as plain dates and everything else as RFC 3339.
func formatTime(t time.Time) string {
	if t.Location() == time.UTC && t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		return t.Format(time.DateOnly)
	}
	return t.Format(time.RFC3339Nano)
}

// FormatValue renders a cell for display. Nil renders as "None".
func FormatValue(v any) string {
	switch t := Normalize(v).(type) {
	case nil:
		return "None"
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(t, 10)
	case uint64:
		return strconv.FormatUint(t, 10)
	case json.Number:
		return t.String()
	case []any, map[string]any:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	default:
		return fmt.Sprint(t)
	}
}

func isPlaceholderCell(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "null", "nan", "<na>", "nat":
		return true
	}
	return false
}
