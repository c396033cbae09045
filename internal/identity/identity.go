// Package identity derives the stable record identity used to deduplicate trips
// across batches and runs.
//
// An identity is the lower-case hex MD5 of the canonical text of five natural-key
// fields joined with "|". The canonical text is versioned: every store (Go, SQL and
// SQLite scalar function) must produce byte-identical input for the same record.
package identity

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vvka-141/tripmerge/pkg/tripmerge"
)

// Version identifies the canonical form produced by Derive. Since v2, ISO timestamp
// text renders like a typed timestamp, so a key column stored as text (the autodetect
// path) hashes the same as one loaded under an explicit schema.
const Version = "v2"

// TimestampTextPattern matches the timestamp text Canonical normalizes. Postgres
// applies the same pattern in PostgresExpression. Fractions stop at microseconds,
// the precision both sides keep without rounding.
const TimestampTextPattern = `^\d{4}-(0[1-9]|1[0-2])-(0[1-9]|[12]\d|3[01])[ T]([01]\d|2[0-3]):[0-5]\d(:[0-5]\d(\.\d{1,6})?)?$`

var timestampText = regexp.MustCompile(TimestampTextPattern)

// Separator joins canonical field texts. It cannot appear in numeric or timestamp fields.
const Separator = "|"

// KeyFields are the natural-key columns of a source type, in hashing order:
// vendor, pickup time, dropoff time, pickup location, dropoff location.
type KeyFields struct {
	Vendor          string
	Pickup          string
	Dropoff         string
	PickupLocation  string
	DropoffLocation string
}

// Columns returns the key columns in hashing order.
func (k KeyFields) Columns() []string {
	return []string{k.Vendor, k.Pickup, k.Dropoff, k.PickupLocation, k.DropoffLocation}
}

// FieldsFor returns the natural-key columns of a source type.
func FieldsFor(source tripmerge.SourceType) (KeyFields, error) {
	switch source {
	case tripmerge.SourceYellow:
		return KeyFields{"vendorid", "tpep_pickup_datetime", "tpep_dropoff_datetime", "pulocationid", "dolocationid"}, nil
	case tripmerge.SourceGreen:
		return KeyFields{"vendorid", "lpep_pickup_datetime", "lpep_dropoff_datetime", "pulocationid", "dolocationid"}, nil
	case tripmerge.SourceFHV:
		return KeyFields{"dispatching_base_num", "pickup_datetime", "dropoff_datetime", "pulocationid", "dolocationid"}, nil
	}
	return KeyFields{}, fmt.Errorf("no identity definition for source type %q", source)
}

// Canonical renders one value in its canonical text form. nil is the empty string.
func Canonical(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return canonicalText(x)
	case []byte:
		return canonicalText(string(x))
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case decimal.Decimal:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.UTC().Format(tripmerge.TimestampLayout)
	}
	return fmt.Sprint(v)
}

// canonicalText renders timestamp text at second precision in UTC and leaves
// everything else, including impossible dates, untouched.
func canonicalText(s string) string {
	if !timestampText.MatchString(s) {
		return s
	}
	text := strings.Replace(s, "T", " ", 1)
	layout := "2006-01-02 15:04:05"
	if len(text) == len("2006-01-02 15:04") {
		layout = "2006-01-02 15:04"
	}
	t, err := time.ParseInLocation(layout, text, time.UTC)
	if err != nil {
		return s
	}
	return t.Format(tripmerge.TimestampLayout)
}

// CanonicalText joins the canonical forms of values.
func CanonicalText(values ...any) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = Canonical(v)
	}
	return strings.Join(parts, Separator)
}

// Derive computes the identity of a record from its natural-key values.
// It is a pure function of its inputs.
func Derive(values ...any) string {
	sum := md5.Sum([]byte(CanonicalText(values...)))
	return hex.EncodeToString(sum[:])
}
