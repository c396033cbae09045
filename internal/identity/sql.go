package identity

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/vvka-141/tripmerge/pkg/tripmerge"
)

// SQLiteFunction is the name under which Derive is registered as a SQLite scalar function.
const SQLiteFunction = "tripmerge_identity_" + Version

// KeyColumn is a natural-key column as it exists in a staging relation.
// A column absent from the relation hashes as NULL.
type KeyColumn struct {
	Name    string
	Type    tripmerge.LogicalType
	Present bool
}

// PostgresExpression returns a SQL expression computing Derive over the key columns.
func PostgresExpression(keys []KeyColumn) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = postgresCanonical(k)
	}
	return fmt.Sprintf("md5(%s)", strings.Join(parts, " || '"+Separator+"' || "))
}

func postgresCanonical(k KeyColumn) string {
	if !k.Present {
		return "''"
	}
	col := pgx.Identifier{k.Name}.Sanitize()
	if k.Type == tripmerge.TypeTimestamp {
		return fmt.Sprintf("coalesce(to_char(%s, 'YYYY-MM-DD HH24:MI:SS'), '')", col)
	}
	if k.Type == tripmerge.TypeString {
		return fmt.Sprintf("coalesce(CASE WHEN %[1]s ~ '%[2]s' THEN to_char(%[1]s::timestamp, 'YYYY-MM-DD HH24:MI:SS') ELSE %[1]s END, '')",
			col, TimestampTextPattern)
	}
	return fmt.Sprintf("coalesce(%s::text, '')", col)
}

// SQLiteExpression returns a call of the registered identity function over the key columns.
func SQLiteExpression(keys []KeyColumn) string {
	args := make([]string, len(keys))
	for i, k := range keys {
		if !k.Present {
			args[i] = "NULL"
			continue
		}
		args[i] = `"` + strings.ReplaceAll(k.Name, `"`, `""`) + `"`
	}
	return fmt.Sprintf("%s(%s)", SQLiteFunction, strings.Join(args, ", "))
}
