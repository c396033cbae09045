package schema

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vvka-141/tripmerge/pkg/tripmerge"
)

// Infer derives a schema from sampled rows. It is the autodetect path used when a
// header cannot be resolved up front: INTEGER promotes to FLOAT, and any other
// disagreement between values, or a column with no values at all, becomes STRING.
func Infer(header []string, rows [][]any) tripmerge.ColumnSchema {
	schema := make(tripmerge.ColumnSchema, len(header))
	for c, name := range header {
		var (
			seen bool
			typ  tripmerge.LogicalType
		)
		for _, row := range rows {
			if c >= len(row) || row[c] == nil {
				continue
			}
			vt := detect(row[c])
			if !seen {
				typ, seen = vt, true
				continue
			}
			typ = widen(typ, vt)
		}
		if !seen {
			typ = tripmerge.TypeString
		}
		schema[c] = tripmerge.Column{Name: NormalizeName(name), Type: typ}
	}
	return schema
}

func detect(v any) tripmerge.LogicalType {
	switch x := v.(type) {
	case int64, int:
		return tripmerge.TypeInteger
	case float64:
		return tripmerge.TypeFloat
	case decimal.Decimal:
		return tripmerge.TypeDecimal
	case time.Time:
		return tripmerge.TypeTimestamp
	case string:
		s := strings.TrimSpace(x)
		if _, err := strconv.ParseInt(s, 10, 64); err == nil {
			return tripmerge.TypeInteger
		}
		if _, err := strconv.ParseFloat(s, 64); err == nil {
			return tripmerge.TypeFloat
		}
		if _, err := ParseTimestamp(s); err == nil {
			return tripmerge.TypeTimestamp
		}
	}
	return tripmerge.TypeString
}

func widen(a, b tripmerge.LogicalType) tripmerge.LogicalType {
	if a == b {
		return a
	}
	numeric := func(t tripmerge.LogicalType) bool {
		return t == tripmerge.TypeInteger || t == tripmerge.TypeFloat || t == tripmerge.TypeDecimal
	}
	if numeric(a) && numeric(b) {
		if a == tripmerge.TypeDecimal || b == tripmerge.TypeDecimal {
			return tripmerge.TypeDecimal
		}
		return tripmerge.TypeFloat
	}
	return tripmerge.TypeString
}
