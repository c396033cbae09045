package identity

import (
	"crypto/md5"
	"encoding/hex"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vvka-141/tripmerge/pkg/tripmerge"
)

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func TestDerive_CanonicalForm(t *testing.T) {
	pickup := time.Date(2024, 1, 1, 0, 57, 55, 0, time.UTC)
	dropoff := time.Date(2024, 1, 1, 1, 17, 43, 0, time.UTC)

	got := Derive(int64(1), pickup, dropoff, int64(186), int64(79))

	assert.Equal(t, md5Hex("1|2024-01-01 00:57:55|2024-01-01 01:17:43|186|79"), got)
	assert.Len(t, got, 32)
}

func TestDerive_Deterministic(t *testing.T) {
	pickup := time.Date(2019, 3, 4, 5, 6, 7, 0, time.UTC)
	a := Derive(int64(2), pickup, nil, int64(1), int64(2))
	b := Derive(int64(2), pickup, nil, int64(1), int64(2))
	assert.Equal(t, a, b)
}

func TestDerive_NullsBecomeEmpty(t *testing.T) {
	assert.Equal(t, md5Hex("||||"), Derive(nil, nil, nil, nil, nil))
	assert.Equal(t, Derive(nil, "x"), Derive("", "x"))
}

func TestDerive_TextAndTypedValuesAgree(t *testing.T) {
	ts := time.Date(2020, 2, 29, 23, 59, 59, 0, time.UTC)

	typed := Derive(int64(1), ts, ts, int64(10), int64(20))
	text := Derive("1", "2020-02-29 23:59:59", "2020-02-29 23:59:59", "10", "20")
	assert.Equal(t, typed, text)

	// Non-UTC timestamps are rendered in UTC.
	est := time.FixedZone("EST", -5*3600)
	assert.Equal(t, typed, Derive(int64(1), ts.In(est), ts, int64(10), int64(20)))
}

func TestDerive_TimestampTextIsNormalized(t *testing.T) {
	pickup := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	dropoff := time.Date(2024, 1, 1, 0, 10, 0, 0, time.UTC)
	typed := Derive(int64(1), pickup, dropoff, int64(10), int64(20))

	tests := []struct {
		name    string
		pickup  string
		dropoff string
	}{
		{"canonical", "2024-01-01 00:00:00", "2024-01-01 00:10:00"},
		{"iso minutes", "2024-01-01T00:00", "2024-01-01T00:10"},
		{"space minutes", "2024-01-01 00:00", "2024-01-01 00:10"},
		{"iso seconds", "2024-01-01T00:00:00", "2024-01-01T00:10:00"},
		{"fractional seconds", "2024-01-01 00:00:00.25", "2024-01-01 00:10:00.999999"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, typed, Derive("1", tt.pickup, tt.dropoff, "10", "20"))
		})
	}
}

func TestCanonical_LeavesOtherTextAlone(t *testing.T) {
	assert.Equal(t, "B00001", Canonical("B00001"))
	assert.Equal(t, "2024-02-30 00:00:00", Canonical("2024-02-30 00:00:00"), "impossible dates stay as written")
	assert.Equal(t, "2024-01-01", Canonical("2024-01-01"))
	assert.Equal(t, "01/02/2024 03:04:05 PM", Canonical("01/02/2024 03:04:05 PM"))
}

func TestDerive_SeparatorPreventsCollisions(t *testing.T) {
	assert.NotEqual(t, Derive("1", "23"), Derive("12", "3"))
}

func TestCanonical(t *testing.T) {
	assert.Equal(t, "", Canonical(nil))
	assert.Equal(t, "42", Canonical(int64(42)))
	assert.Equal(t, "17.7", Canonical(17.7))
	assert.Equal(t, "17.7", Canonical(decimal.RequireFromString("17.70")))
	assert.Equal(t, "B00001", Canonical([]byte("B00001")))
}

func TestFieldsFor(t *testing.T) {
	yellow, err := FieldsFor(tripmerge.SourceYellow)
	require.NoError(t, err)
	assert.Equal(t, []string{"vendorid", "tpep_pickup_datetime", "tpep_dropoff_datetime", "pulocationid", "dolocationid"}, yellow.Columns())

	green, err := FieldsFor(tripmerge.SourceGreen)
	require.NoError(t, err)
	assert.Equal(t, "lpep_pickup_datetime", green.Pickup)

	fhv, err := FieldsFor(tripmerge.SourceFHV)
	require.NoError(t, err)
	assert.Equal(t, "dispatching_base_num", fhv.Vendor)

	_, err = FieldsFor("purple")
	assert.Error(t, err)
}

func TestPostgresExpression(t *testing.T) {
	expr := PostgresExpression([]KeyColumn{
		{Name: "vendorid", Type: tripmerge.TypeInteger, Present: true},
		{Name: "tpep_pickup_datetime", Type: tripmerge.TypeTimestamp, Present: true},
		{Name: "missing", Present: false},
	})

	assert.Equal(t,
		`md5(coalesce("vendorid"::text, '') || '|' || coalesce(to_char("tpep_pickup_datetime", 'YYYY-MM-DD HH24:MI:SS'), '') || '|' || '')`,
		expr)
}

func TestPostgresExpression_TextTimestamps(t *testing.T) {
	expr := PostgresExpression([]KeyColumn{{Name: "pickup_datetime", Type: tripmerge.TypeString, Present: true}})

	assert.Contains(t, expr, `CASE WHEN "pickup_datetime" ~ '`+TimestampTextPattern+`'`)
	assert.Contains(t, expr, `to_char("pickup_datetime"::timestamp, 'YYYY-MM-DD HH24:MI:SS') ELSE "pickup_datetime" END`)
}

func TestSQLiteExpression(t *testing.T) {
	expr := SQLiteExpression([]KeyColumn{
		{Name: "vendorid", Present: true},
		{Name: "gone", Present: false},
	})
	assert.Equal(t, `tripmerge_identity_v2("vendorid", NULL)`, expr)
}
