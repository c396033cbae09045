package schema

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vvka-141/tripmerge/pkg/tripmerge"
)

// timestampLayouts are tried in order when parsing textual timestamps.
var timestampLayouts = []string{
	tripmerge.TimestampLayout,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999999",
	time.RFC3339Nano,
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"01/02/2006 03:04:05 PM",
	"01/02/2006 15:04",
	"2006-01-02",
}

// ParseTimestamp parses a zone-less trip timestamp as UTC wall-clock time.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// FormatTimestamp renders a timestamp in the canonical text layout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(tripmerge.TimestampLayout)
}

// Coerce converts a decoded cell to the Go representation of a logical type:
// int64, float64, decimal.Decimal, string or time.Time. nil stays nil.
func Coerce(v any, t tripmerge.LogicalType) (any, error) {
	if v == nil {
		return nil, nil
	}
	if s, ok := v.(string); ok && t != tripmerge.TypeString && strings.TrimSpace(s) == "" {
		return nil, nil
	}

	switch t {
	case tripmerge.TypeInteger:
		return toInteger(v)
	case tripmerge.TypeFloat:
		return toFloat(v)
	case tripmerge.TypeDecimal:
		return toDecimal(v)
	case tripmerge.TypeTimestamp:
		return toTimestamp(v)
	default:
		return toText(v), nil
	}
}

// CoerceRow converts a row in place according to the schema.
func CoerceRow(row []any, schema tripmerge.ColumnSchema) error {
	if len(row) != len(schema) {
		return fmt.Errorf("row has %d values, schema has %d columns", len(row), len(schema))
	}
	for i, col := range schema {
		v, err := Coerce(row[i], col.Type)
		if err != nil {
			return fmt.Errorf("column %s: %w", col.Name, err)
		}
		row[i] = v
	}
	return nil
}

func toInteger(v any) (any, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case float64:
		if x != math.Trunc(x) {
			return nil, fmt.Errorf("value %v is not an integer", x)
		}
		return int64(x), nil
	case decimal.Decimal:
		if !x.IsInteger() {
			return nil, fmt.Errorf("value %s is not an integer", x)
		}
		return x.IntPart(), nil
	case bool:
		if x {
			return int64(1), nil
		}
		return int64(0), nil
	case string:
		s := strings.TrimSpace(x)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, nil
		}
		// Some monthly files write integer fields as "1.0".
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || f != math.Trunc(f) {
			return nil, fmt.Errorf("value %q is not an integer", x)
		}
		return int64(f), nil
	}
	return nil, fmt.Errorf("cannot convert %T to integer", v)
}

func toFloat(v any) (any, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case int64:
		return float64(x), nil
	case decimal.Decimal:
		f, _ := x.Float64()
		return f, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return nil, fmt.Errorf("value %q is not a number", x)
		}
		return f, nil
	}
	return nil, fmt.Errorf("cannot convert %T to float", v)
}

func toDecimal(v any) (any, error) {
	switch x := v.(type) {
	case decimal.Decimal:
		return x, nil
	case int64:
		return decimal.NewFromInt(x), nil
	case float64:
		return decimal.NewFromFloat(x), nil
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(x))
		if err != nil {
			return nil, fmt.Errorf("value %q is not a decimal", x)
		}
		return d, nil
	}
	return nil, fmt.Errorf("cannot convert %T to decimal", v)
}

func toTimestamp(v any) (any, error) {
	switch x := v.(type) {
	case time.Time:
		return x.UTC(), nil
	case string:
		return ParseTimestamp(x)
	}
	return nil, fmt.Errorf("cannot convert %T to timestamp", v)
}

func toText(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case decimal.Decimal:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return FormatTimestamp(x)
	case []byte:
		return string(x)
	}
	return fmt.Sprint(v)
}
