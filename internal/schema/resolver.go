// Package schema maps batch file headers to typed column schemas.
package schema

import (
	"fmt"
	"strings"

	"github.com/vvka-141/tripmerge/internal/rowsource"
	"github.com/vvka-141/tripmerge/pkg/tripmerge"
)

// knownColumns is the fixed name to type table for trip-record fields.
// Names are stored normalized (lower case).
var knownColumns = map[string]tripmerge.LogicalType{
	"vendorid":               tripmerge.TypeInteger,
	"ratecodeid":             tripmerge.TypeInteger,
	"pulocationid":           tripmerge.TypeInteger,
	"dolocationid":           tripmerge.TypeInteger,
	"locationid":             tripmerge.TypeInteger,
	"passenger_count":        tripmerge.TypeInteger,
	"trip_type":              tripmerge.TypeInteger,
	"payment_type":           tripmerge.TypeInteger,
	"sr_flag":                tripmerge.TypeInteger,
	"tpep_pickup_datetime":   tripmerge.TypeTimestamp,
	"tpep_dropoff_datetime":  tripmerge.TypeTimestamp,
	"lpep_pickup_datetime":   tripmerge.TypeTimestamp,
	"lpep_dropoff_datetime":  tripmerge.TypeTimestamp,
	"pickup_datetime":        tripmerge.TypeTimestamp,
	"dropoff_datetime":       tripmerge.TypeTimestamp,
	"store_and_fwd_flag":     tripmerge.TypeString,
	"dispatching_base_num":   tripmerge.TypeString,
	"affiliated_base_number": tripmerge.TypeString,
	"trip_distance":          tripmerge.TypeDecimal,
	"fare_amount":            tripmerge.TypeDecimal,
	"extra":                  tripmerge.TypeDecimal,
	"mta_tax":                tripmerge.TypeDecimal,
	"tip_amount":             tripmerge.TypeDecimal,
	"tolls_amount":           tripmerge.TypeDecimal,
	"ehail_fee":              tripmerge.TypeDecimal,
	"improvement_surcharge":  tripmerge.TypeDecimal,
	"total_amount":           tripmerge.TypeDecimal,
	"congestion_surcharge":   tripmerge.TypeDecimal,
	"airport_fee":            tripmerge.TypeDecimal,
	"cbd_congestion_fee":     tripmerge.TypeDecimal,
}

// NormalizeName is the column name used in every warehouse relation.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// TypeFor returns the logical type of a column name. Unknown names are strings.
func TypeFor(name string) tripmerge.LogicalType {
	if t, ok := knownColumns[NormalizeName(name)]; ok {
		return t
	}
	return tripmerge.TypeString
}

// Resolve maps a header to a schema without looking at any data value.
func Resolve(header []string) tripmerge.ColumnSchema {
	schema := make(tripmerge.ColumnSchema, len(header))
	for i, name := range header {
		schema[i] = tripmerge.Column{Name: NormalizeName(name), Type: TypeFor(name)}
	}
	return schema
}

// ReadHeader returns the column names of a local batch file.
// An empty, unreadable or corrupt file yields tripmerge.ErrSchemaUnavailable.
func ReadHeader(path string) ([]string, error) {
	rd, err := rowsource.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", tripmerge.ErrSchemaUnavailable, path, err)
	}
	defer rd.Close()

	header := rd.Header()
	if len(header) == 0 {
		return nil, fmt.Errorf("%w: %s: no columns", tripmerge.ErrSchemaUnavailable, path)
	}
	return header, nil
}

// ResolveFile reads a file header and resolves it.
func ResolveFile(path string) (tripmerge.ColumnSchema, error) {
	header, err := ReadHeader(path)
	if err != nil {
		return nil, err
	}
	return Resolve(header), nil
}
