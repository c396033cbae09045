// Package sqlite is an embedded warehouse backed by modernc.org/sqlite.
//
// A dataset is one database file. SQLite has no single-statement conditional
// merge over duplicate-bearing sources, so merges run through serializable
// transactions. Identities are computed by a registered Go scalar function that
// shares its canonical form with every other store.
package sqlite

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	msqlite "modernc.org/sqlite"

	"github.com/vvka-141/tripmerge/internal/identity"
	"github.com/vvka-141/tripmerge/internal/loadjob"
	"github.com/vvka-141/tripmerge/internal/schema"
	"github.com/vvka-141/tripmerge/pkg/tripmerge"
)

const (
	driverName = "sqlite"
	// insertBatch bounds how often a load checks for cancellation.
	insertBatch = 1000
)

var (
	registerOnce sync.Once
	registerErr  error
)

func registerIdentityFunction() error {
	registerOnce.Do(func() {
		registerErr = msqlite.RegisterDeterministicScalarFunction(identity.SQLiteFunction, 5,
			func(_ *msqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
				values := make([]any, len(args))
				for i, a := range args {
					values[i] = a
				}
				return identity.Derive(values...), nil
			})
	})
	return registerErr
}

// Config locates a dataset file.
type Config struct {
	// Dir holds one database file per dataset.
	Dir     string
	Dataset string
}

// Path returns the database file of the dataset.
func (c Config) Path() string {
	return filepath.Join(c.Dir, c.Dataset+".db")
}

// Warehouse implements tripmerge.Warehouse on a SQLite database file.
type Warehouse struct {
	db   *sql.DB
	path string
}

var (
	_ tripmerge.Warehouse           = (*Warehouse)(nil)
	_ tripmerge.TransactionalMerger = (*Warehouse)(nil)
)

// Open opens (creating when missing) the dataset database.
func Open(ctx context.Context, cfg Config) (*Warehouse, error) {
	if cfg.Dataset == "" {
		return nil, fmt.Errorf("sqlite dataset name is required: %w", tripmerge.ErrInvalidConfig)
	}
	if err := registerIdentityFunction(); err != nil {
		return nil, fmt.Errorf("register identity function: %w", err)
	}
	if cfg.Dir == "" {
		cfg.Dir = "."
	}
	if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("create dataset dir: %w", err)
	}

	path := cfg.Path()
	db, err := sql.Open(driverName, "file:"+path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection serializes writers; SQLite allows a single writer anyway.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: sqlite %s: %w", tripmerge.ErrConnectionFailed, path, err)
	}
	return &Warehouse{db: db, path: path}, nil
}

func (w *Warehouse) Dialect() string { return "sqlite" }

func (w *Warehouse) Capabilities() tripmerge.Capabilities {
	return tripmerge.Capabilities{SerializableTx: true}
}

// Path returns the database file.
func (w *Warehouse) Path() string { return w.path }

// DB exposes the handle for tests.
func (w *Warehouse) DB() *sql.DB { return w.db }

func (w *Warehouse) Close() error { return w.db.Close() }

// EnsureDataset is satisfied by opening the database file.
func (w *Warehouse) EnsureDataset(ctx context.Context) error {
	return w.db.PingContext(ctx)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func tableExists(ctx context.Context, q querier, name string) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (w *Warehouse) TableExists(ctx context.Context, name string) (bool, error) {
	return tableExists(ctx, w.db, name)
}

func (w *Warehouse) DropTable(ctx context.Context, name string) error {
	if _, err := w.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoteIdent(name)); err != nil {
		return fmt.Errorf("drop %s: %w", name, err)
	}
	return nil
}

type column struct {
	name     string
	declType string
}

func tableColumns(ctx context.Context, q querier, table string) ([]column, error) {
	rows, err := q.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(table)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var cols []column
	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notnull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return nil, err
		}
		cols = append(cols, column{name: name, declType: ctype})
	}
	return cols, rows.Err()
}

func (w *Warehouse) Load(ctx context.Context, req tripmerge.LoadRequest) (job tripmerge.LoadJob, retErr error) {
	rows, err := loadjob.Open(ctx, req)
	if err != nil {
		return tripmerge.LoadJob{}, err
	}
	defer rows.Close()

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return tripmerge.LoadJob{}, err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	target := rows.Names()
	exists, err := tableExists(ctx, tx, req.Table)
	if err != nil {
		return tripmerge.LoadJob{}, err
	}
	if req.Disposition == tripmerge.WriteAppend && exists {
		cols, err := tableColumns(ctx, tx, req.Table)
		if err != nil {
			return tripmerge.LoadJob{}, err
		}
		target = intersect(rows.Names(), cols)
	} else {
		if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoteIdent(req.Table)); err != nil {
			return tripmerge.LoadJob{}, fmt.Errorf("drop %s: %w", req.Table, err)
		}
		if _, err := tx.ExecContext(ctx, createTableSQL(req.Table, rows.Schema)); err != nil {
			return tripmerge.LoadJob{}, fmt.Errorf("create %s: %w", req.Table, err)
		}
	}

	positions := make([]int, len(target))
	for i, name := range target {
		positions[i] = rows.Schema.Index(name)
	}
	stmt, err := tx.PrepareContext(ctx, insertSQL(req.Table, target))
	if err != nil {
		return tripmerge.LoadJob{}, err
	}
	defer stmt.Close()

	var n int64
	args := make([]any, len(target))
	for {
		row, err := rows.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return tripmerge.LoadJob{}, fmt.Errorf("load %s: %w", req.Table, err)
		}
		for i, p := range positions {
			args[i] = toSQLite(row[p])
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return tripmerge.LoadJob{}, fmt.Errorf("load %s row %d: %w", req.Table, n+1, err)
		}
		n++
		if n%insertBatch == 0 {
			if err := ctx.Err(); err != nil {
				return tripmerge.LoadJob{}, err
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return tripmerge.LoadJob{}, err
	}
	return tripmerge.LoadJob{
		ID:           uuid.NewString(),
		Table:        req.Table,
		Rows:         n,
		Schema:       rows.Schema,
		SchemaSource: rows.SchemaSource,
	}, nil
}

func (w *Warehouse) DeriveIdentity(ctx context.Context, spec tripmerge.IdentitySpec) (n int64, retErr error) {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	cols, err := tableColumns(ctx, tx, spec.StagingTable)
	if err != nil {
		return 0, err
	}
	if len(cols) == 0 {
		return 0, fmt.Errorf("%s: %w", spec.StagingTable, tripmerge.ErrStagingMissing)
	}

	present := make(map[string]bool, len(cols))
	defs := []string{
		quoteIdent(tripmerge.IdentityColumn) + " TEXT NOT NULL",
		quoteIdent(tripmerge.SourceFilenameColumn) + " TEXT",
	}
	names := make([]string, len(cols))
	for i, c := range cols {
		present[c.name] = true
		defs = append(defs, strings.TrimSpace(quoteIdent(c.name)+" "+c.declType))
		names[i] = quoteIdent(c.name)
	}
	keys := make([]identity.KeyColumn, len(spec.KeyColumns))
	for i, name := range spec.KeyColumns {
		keys[i] = identity.KeyColumn{Name: name, Present: present[name]}
	}

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoteIdent(spec.TaggedTable)); err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(spec.TaggedTable), strings.Join(defs, ", "))); err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, fmt.Sprintf("INSERT INTO %s SELECT %s, ?, %s FROM %s",
		quoteIdent(spec.TaggedTable), identity.SQLiteExpression(keys), strings.Join(names, ", "), quoteIdent(spec.StagingTable)),
		spec.SourceFilename)
	if err != nil {
		return 0, fmt.Errorf("tag %s: %w", spec.StagingTable, err)
	}
	if n, err = res.RowsAffected(); err != nil {
		return 0, err
	}
	return n, tx.Commit()
}

func (w *Warehouse) EnsureMaster(ctx context.Context, master, template string) (retErr error) {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	exists, err := tableExists(ctx, tx, master)
	if err != nil {
		return err
	}
	if !exists {
		cols, err := tableColumns(ctx, tx, template)
		if err != nil {
			return err
		}
		if len(cols) == 0 {
			return fmt.Errorf("%s: %w", template, tripmerge.ErrStagingMissing)
		}
		defs := make([]string, len(cols))
		hasID := false
		for i, c := range cols {
			defs[i] = strings.TrimSpace(quoteIdent(c.name) + " " + c.declType)
			hasID = hasID || c.name == tripmerge.IdentityColumn
		}
		if !hasID {
			return fmt.Errorf("template %s has no %s column", template, tripmerge.IdentityColumn)
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(master), strings.Join(defs, ", "))); err != nil {
			return fmt.Errorf("create master %s: %w", master, err)
		}
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (%s)",
		quoteIdent(master+"_"+tripmerge.IdentityColumn+"_key"), quoteIdent(master), quoteIdent(tripmerge.IdentityColumn))); err != nil {
		return fmt.Errorf("index master %s: %w", master, err)
	}
	return tx.Commit()
}

func (w *Warehouse) MasterStats(ctx context.Context, master string) (tripmerge.MasterStats, error) {
	stats := tripmerge.MasterStats{Table: master}
	err := w.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*), COUNT(DISTINCT %s) FROM %s",
		quoteIdent(tripmerge.IdentityColumn), quoteIdent(master))).Scan(&stats.Rows, &stats.DistinctIdentities)
	if err != nil {
		return tripmerge.MasterStats{}, fmt.Errorf("stats %s: %w", master, err)
	}
	return stats, nil
}

func (w *Warehouse) Query(ctx context.Context, query string) (tripmerge.QueryResult, error) {
	rows, err := w.db.QueryContext(ctx, query)
	if err != nil {
		return tripmerge.QueryResult{}, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return tripmerge.QueryResult{}, err
	}
	result := tripmerge.QueryResult{Columns: cols}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return tripmerge.QueryResult{}, err
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		result.Rows = append(result.Rows, vals)
	}
	return result, rows.Err()
}

// InSerializableTx runs fn in one transaction. SQLite transactions are serializable.
func (w *Warehouse) InSerializableTx(ctx context.Context, fn func(ctx context.Context, tx tripmerge.MergeTx) error) (retErr error) {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	if err := fn(ctx, &mergeTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

type mergeTx struct {
	tx *sql.Tx
}

func (m *mergeTx) UnseenIdentities(ctx context.Context, master, source string) ([]string, error) {
	id := quoteIdent(tripmerge.IdentityColumn)
	rows, err := m.tx.QueryContext(ctx, fmt.Sprintf(
		"SELECT DISTINCT s.%[1]s FROM %[2]s s WHERE NOT EXISTS (SELECT 1 FROM %[3]s m WHERE m.%[1]s = s.%[1]s) ORDER BY 1",
		id, quoteIdent(source), quoteIdent(master)))
	if err != nil {
		return nil, fmt.Errorf("select unseen identities: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		ids = append(ids, v)
	}
	return ids, rows.Err()
}

// InsertIdentities copies the first source row (by rowid) of every listed identity.
func (m *mergeTx) InsertIdentities(ctx context.Context, master, source string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	masterCols, err := tableColumns(ctx, m.tx, master)
	if err != nil {
		return 0, err
	}
	sourceCols, err := tableColumns(ctx, m.tx, source)
	if err != nil {
		return 0, err
	}
	available := make(map[string]bool, len(sourceCols))
	for _, c := range sourceCols {
		available[c.name] = true
	}
	var names, exprs []string
	for _, c := range masterCols {
		if !available[c.name] {
			continue
		}
		names = append(names, quoteIdent(c.name))
		if c.declType == "" {
			exprs = append(exprs, quoteIdent(c.name))
		} else {
			exprs = append(exprs, fmt.Sprintf("CAST(%s AS %s)", quoteIdent(c.name), c.declType))
		}
	}

	list, err := json.Marshal(ids)
	if err != nil {
		return 0, err
	}
	id := quoteIdent(tripmerge.IdentityColumn)
	res, err := m.tx.ExecContext(ctx, fmt.Sprintf(
		"INSERT INTO %s (%s) SELECT %s FROM %s WHERE rowid IN (SELECT MIN(rowid) FROM %s WHERE %s IN (SELECT value FROM json_each(?)) GROUP BY %s)",
		quoteIdent(master), strings.Join(names, ", "), strings.Join(exprs, ", "), quoteIdent(source),
		quoteIdent(source), id, id), string(list))
	if err != nil {
		return 0, fmt.Errorf("insert into %s: %w", master, err)
	}
	return res.RowsAffected()
}

func sqliteType(t tripmerge.LogicalType) string {
	switch t {
	case tripmerge.TypeInteger:
		return "INTEGER"
	case tripmerge.TypeFloat:
		return "REAL"
	}
	// Decimals and timestamps are stored in their canonical text form.
	return "TEXT"
}

func createTableSQL(table string, cols tripmerge.ColumnSchema) string {
	defs := make([]string, len(cols))
	for i, c := range cols {
		defs[i] = quoteIdent(c.Name) + " " + sqliteType(c.Type)
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(table), strings.Join(defs, ", "))
}

func insertSQL(table string, names []string) string {
	quoted := make([]string, len(names))
	marks := make([]string, len(names))
	for i, n := range names {
		quoted[i] = quoteIdent(n)
		marks[i] = "?"
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", quoteIdent(table), strings.Join(quoted, ", "), strings.Join(marks, ", "))
}

func intersect(names []string, cols []column) []string {
	have := make(map[string]bool, len(cols))
	for _, c := range cols {
		have[c.name] = true
	}
	var out []string
	for _, n := range names {
		if have[n] {
			out = append(out, n)
		}
	}
	return out
}

func toSQLite(v any) any {
	switch x := v.(type) {
	case time.Time:
		return schema.FormatTimestamp(x)
	case decimal.Decimal:
		return x.String()
	case bool:
		if x {
			return int64(1)
		}
		return int64(0)
	}
	return v
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
