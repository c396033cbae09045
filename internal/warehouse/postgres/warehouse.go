// Package postgres is the PostgreSQL warehouse. A dataset is a schema; staging,
// tagged and master relations are tables inside it.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/vvka-141/tripmerge/internal/db"
	"github.com/vvka-141/tripmerge/internal/identity"
	"github.com/vvka-141/tripmerge/internal/loadjob"
	"github.com/vvka-141/tripmerge/pkg/tripmerge"
)

// maxIdentifierLen is PostgreSQL's NAMEDATALEN - 1.
const maxIdentifierLen = 63

// Config selects the server and the dataset schema.
type Config struct {
	Connection *db.ConnectionConfig
	Dataset    string
}

// Warehouse implements tripmerge.Warehouse on a pgx pool.
type Warehouse struct {
	pool    *pgxpool.Pool
	dataset string
	logger  tripmerge.Logger
}

var (
	_ tripmerge.Warehouse           = (*Warehouse)(nil)
	_ tripmerge.ConditionalMerger   = (*Warehouse)(nil)
	_ tripmerge.TransactionalMerger = (*Warehouse)(nil)
	_ tripmerge.Estimator           = (*Warehouse)(nil)
)

// Open connects to the server with the connector matching the configured auth method.
func Open(ctx context.Context, cfg Config, logger tripmerge.Logger) (*Warehouse, error) {
	if cfg.Connection == nil {
		return nil, fmt.Errorf("postgres connection is required: %w", tripmerge.ErrInvalidConfig)
	}
	if cfg.Dataset == "" {
		return nil, fmt.Errorf("postgres dataset (schema) name is required: %w", tripmerge.ErrInvalidConfig)
	}
	connector, err := db.NewConnector(cfg.Connection, logger)
	if err != nil {
		return nil, err
	}
	logger.Verbose("Connecting to %s", cfg.Connection)
	pool, err := connector.Connect(ctx)
	if err != nil {
		return nil, err
	}
	return New(pool, cfg.Dataset, logger), nil
}

// New wraps an existing pool. The warehouse takes ownership of the pool.
func New(pool *pgxpool.Pool, dataset string, logger tripmerge.Logger) *Warehouse {
	if pool == nil {
		panic("pool cannot be nil")
	}
	if logger == nil {
		panic("logger cannot be nil")
	}
	return &Warehouse{pool: pool, dataset: dataset, logger: logger}
}

func (w *Warehouse) Dialect() string { return "postgres" }

func (w *Warehouse) Capabilities() tripmerge.Capabilities {
	return tripmerge.Capabilities{ConditionalInsert: true, SerializableTx: true, Estimate: true}
}

// Pool exposes the connection pool for reports and tests.
func (w *Warehouse) Pool() *pgxpool.Pool { return w.pool }

func (w *Warehouse) Close() error {
	w.pool.Close()
	return nil
}

func (w *Warehouse) ident(table string) string {
	return pgx.Identifier{w.dataset, table}.Sanitize()
}

func (w *Warehouse) EnsureDataset(ctx context.Context) error {
	if _, err := w.pool.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+pgx.Identifier{w.dataset}.Sanitize()); err != nil {
		return fmt.Errorf("create dataset %s: %w", w.dataset, err)
	}
	return nil
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (w *Warehouse) tableExists(ctx context.Context, q querier, table string) (bool, error) {
	var exists bool
	err := q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = $1 AND table_name = $2)`,
		w.dataset, table).Scan(&exists)
	return exists, err
}

func (w *Warehouse) TableExists(ctx context.Context, table string) (bool, error) {
	return w.tableExists(ctx, w.pool, table)
}

func (w *Warehouse) DropTable(ctx context.Context, table string) error {
	if _, err := w.pool.Exec(ctx, "DROP TABLE IF EXISTS "+w.ident(table)); err != nil {
		return fmt.Errorf("drop %s: %w", table, err)
	}
	return nil
}

type column struct {
	name     string
	dataType string
}

func (w *Warehouse) columns(ctx context.Context, q querier, table string) ([]column, error) {
	rows, err := q.Query(ctx,
		`SELECT column_name, data_type FROM information_schema.columns
		 WHERE table_schema = $1 AND table_name = $2 ORDER BY ordinal_position`,
		w.dataset, table)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (column, error) {
		var c column
		err := row.Scan(&c.name, &c.dataType)
		return c, err
	})
}

func (w *Warehouse) Load(ctx context.Context, req tripmerge.LoadRequest) (tripmerge.LoadJob, error) {
	rows, err := loadjob.Open(ctx, req)
	if err != nil {
		return tripmerge.LoadJob{}, err
	}
	defer rows.Close()

	var n int64
	err = pgx.BeginFunc(ctx, w.pool, func(tx pgx.Tx) error {
		target := rows.Names()
		exists, err := w.tableExists(ctx, tx, req.Table)
		if err != nil {
			return err
		}
		if req.Disposition == tripmerge.WriteAppend && exists {
			cols, err := w.columns(ctx, tx, req.Table)
			if err != nil {
				return err
			}
			target = intersect(target, cols)
		} else {
			if _, err := tx.Exec(ctx, "DROP TABLE IF EXISTS "+w.ident(req.Table)); err != nil {
				return fmt.Errorf("drop %s: %w", req.Table, err)
			}
			if _, err := tx.Exec(ctx, w.createTableSQL(req.Table, rows.Schema)); err != nil {
				return fmt.Errorf("create %s: %w", req.Table, err)
			}
		}

		src := &copySource{rows: rows, positions: make([]int, len(target))}
		for i, name := range target {
			src.positions[i] = rows.Schema.Index(name)
		}
		n, err = tx.CopyFrom(ctx, pgx.Identifier{w.dataset, req.Table}, target, src)
		if err != nil {
			return fmt.Errorf("load %s: %w", req.Table, err)
		}
		return nil
	})
	if err != nil {
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

// copySource adapts loadjob rows to pgx.CopyFromSource.
type copySource struct {
	rows      *loadjob.Rows
	positions []int
	values    []any
	err       error
}

func (s *copySource) Next() bool {
	row, err := s.rows.Next()
	if err != nil {
		if err != io.EOF {
			s.err = err
		}
		return false
	}
	s.values = make([]any, len(s.positions))
	for i, p := range s.positions {
		s.values[i] = toPostgres(row[p])
	}
	return true
}

func (s *copySource) Values() ([]any, error) { return s.values, nil }

func (s *copySource) Err() error { return s.err }

func toPostgres(v any) any {
	if d, ok := v.(decimal.Decimal); ok {
		return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
	}
	return v
}

func postgresType(t tripmerge.LogicalType) string {
	switch t {
	case tripmerge.TypeInteger:
		return "BIGINT"
	case tripmerge.TypeFloat:
		return "DOUBLE PRECISION"
	case tripmerge.TypeDecimal:
		return "NUMERIC"
	case tripmerge.TypeTimestamp:
		return "TIMESTAMP"
	}
	return "TEXT"
}

func logicalType(dataType string) tripmerge.LogicalType {
	switch dataType {
	case "bigint", "integer", "smallint":
		return tripmerge.TypeInteger
	case "double precision", "real":
		return tripmerge.TypeFloat
	case "numeric":
		return tripmerge.TypeDecimal
	case "timestamp without time zone", "timestamp with time zone":
		return tripmerge.TypeTimestamp
	}
	return tripmerge.TypeString
}

func (w *Warehouse) createTableSQL(table string, cols tripmerge.ColumnSchema) string {
	defs := make([]string, len(cols))
	for i, c := range cols {
		defs[i] = pgx.Identifier{c.Name}.Sanitize() + " " + postgresType(c.Type)
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", w.ident(table), strings.Join(defs, ", "))
}

func (w *Warehouse) DeriveIdentity(ctx context.Context, spec tripmerge.IdentitySpec) (int64, error) {
	var n int64
	err := pgx.BeginFunc(ctx, w.pool, func(tx pgx.Tx) error {
		cols, err := w.columns(ctx, tx, spec.StagingTable)
		if err != nil {
			return err
		}
		if len(cols) == 0 {
			return fmt.Errorf("%s: %w", spec.StagingTable, tripmerge.ErrStagingMissing)
		}
		types := make(map[string]tripmerge.LogicalType, len(cols))
		for _, c := range cols {
			types[c.name] = logicalType(c.dataType)
		}
		keys := make([]identity.KeyColumn, len(spec.KeyColumns))
		for i, name := range spec.KeyColumns {
			t, ok := types[name]
			keys[i] = identity.KeyColumn{Name: name, Type: t, Present: ok}
		}

		if _, err := tx.Exec(ctx, "DROP TABLE IF EXISTS "+w.ident(spec.TaggedTable)); err != nil {
			return err
		}
		// CREATE TABLE AS takes no bind parameters.
		tag, err := tx.Exec(ctx, fmt.Sprintf("CREATE TABLE %s AS SELECT %s AS %s, %s::text AS %s, * FROM %s",
			w.ident(spec.TaggedTable),
			identity.PostgresExpression(keys), pgx.Identifier{tripmerge.IdentityColumn}.Sanitize(),
			quoteLiteral(spec.SourceFilename), pgx.Identifier{tripmerge.SourceFilenameColumn}.Sanitize(),
			w.ident(spec.StagingTable)))
		if err != nil {
			return fmt.Errorf("tag %s: %w", spec.StagingTable, err)
		}
		n = tag.RowsAffected()
		return nil
	})
	return n, err
}

func (w *Warehouse) EnsureMaster(ctx context.Context, master, template string) error {
	return pgx.BeginFunc(ctx, w.pool, func(tx pgx.Tx) error {
		// Concurrent first merges of a source type race to create the master.
		if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", w.dataset+"."+master); err != nil {
			return err
		}
		exists, err := w.tableExists(ctx, tx, master)
		if err != nil {
			return err
		}
		if !exists {
			cols, err := w.columns(ctx, tx, template)
			if err != nil {
				return err
			}
			if len(cols) == 0 {
				return fmt.Errorf("%s: %w", template, tripmerge.ErrStagingMissing)
			}
			if !hasColumn(cols, tripmerge.IdentityColumn) {
				return fmt.Errorf("template %s has no %s column", template, tripmerge.IdentityColumn)
			}
			if _, err := tx.Exec(ctx, fmt.Sprintf("CREATE TABLE %s (LIKE %s INCLUDING DEFAULTS)", w.ident(master), w.ident(template))); err != nil {
				return fmt.Errorf("create master %s: %w", master, err)
			}
			w.logger.Verbose("Created master relation %s.%s", w.dataset, master)
		}
		if _, err := tx.Exec(ctx, fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (%s)",
			pgx.Identifier{indexName(master)}.Sanitize(), w.ident(master), pgx.Identifier{tripmerge.IdentityColumn}.Sanitize())); err != nil {
			return fmt.Errorf("index master %s: %w", master, err)
		}
		return nil
	})
}

func (w *Warehouse) MasterStats(ctx context.Context, master string) (tripmerge.MasterStats, error) {
	stats := tripmerge.MasterStats{Table: master}
	id := pgx.Identifier{tripmerge.IdentityColumn}.Sanitize()
	err := w.pool.QueryRow(ctx, fmt.Sprintf("SELECT count(*), count(DISTINCT %s) FROM %s", id, w.ident(master))).
		Scan(&stats.Rows, &stats.DistinctIdentities)
	if err != nil {
		return tripmerge.MasterStats{}, fmt.Errorf("stats %s: %w", master, err)
	}
	return stats, nil
}

func (w *Warehouse) Query(ctx context.Context, sql string) (tripmerge.QueryResult, error) {
	rows, err := w.pool.Query(ctx, sql)
	if err != nil {
		return tripmerge.QueryResult{}, err
	}
	defer rows.Close()

	var result tripmerge.QueryResult
	for _, fd := range rows.FieldDescriptions() {
		result.Columns = append(result.Columns, fd.Name)
	}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return tripmerge.QueryResult{}, err
		}
		for i, v := range values {
			if n, ok := v.(pgtype.Numeric); ok && n.Valid && n.Int != nil {
				values[i] = decimal.NewFromBigInt(n.Int, n.Exp)
			}
		}
		result.Rows = append(result.Rows, values)
	}
	return result, rows.Err()
}

type explainPlan struct {
	Plan struct {
		Rows  float64 `json:"Plan Rows"`
		Width int64   `json:"Plan Width"`
	} `json:"Plan"`
}

// Estimate asks the planner for the row count and width without executing sql.
func (w *Warehouse) Estimate(ctx context.Context, sql string) (tripmerge.QueryEstimate, error) {
	var plans []explainPlan
	if err := w.pool.QueryRow(ctx, "EXPLAIN (FORMAT JSON) "+sql).Scan(&plans); err != nil {
		return tripmerge.QueryEstimate{}, fmt.Errorf("estimate: %w", err)
	}
	if len(plans) == 0 {
		return tripmerge.QueryEstimate{}, errors.New("estimate: empty plan")
	}
	rows := int64(plans[0].Plan.Rows)
	return tripmerge.QueryEstimate{Rows: rows, Bytes: rows * plans[0].Plan.Width}, nil
}

// MergeInsertOnly inserts one row per unseen identity of source in a single statement.
// The unique index on the identity column makes concurrent merges safe.
func (w *Warehouse) MergeInsertOnly(ctx context.Context, master, source string) (int64, error) {
	names, exprs, err := w.mergeColumns(ctx, w.pool, master, source)
	if err != nil {
		return 0, err
	}
	id := pgx.Identifier{tripmerge.IdentityColumn}.Sanitize()
	tag, err := w.pool.Exec(ctx, fmt.Sprintf(
		"INSERT INTO %s (%s) SELECT DISTINCT ON (%s) %s FROM %s ORDER BY %s, ctid ON CONFLICT (%s) DO NOTHING",
		w.ident(master), strings.Join(names, ", "), id, strings.Join(exprs, ", "), w.ident(source), id, id))
	if err != nil {
		return 0, fmt.Errorf("merge into %s: %w", master, err)
	}
	return tag.RowsAffected(), nil
}

// mergeColumns lists the master columns present in source with casts to the master types.
func (w *Warehouse) mergeColumns(ctx context.Context, q querier, master, source string) ([]string, []string, error) {
	masterCols, err := w.columns(ctx, q, master)
	if err != nil {
		return nil, nil, err
	}
	sourceCols, err := w.columns(ctx, q, source)
	if err != nil {
		return nil, nil, err
	}
	if len(sourceCols) == 0 {
		return nil, nil, fmt.Errorf("%s: %w", source, tripmerge.ErrStagingMissing)
	}
	var names, exprs []string
	for _, c := range masterCols {
		if !hasColumn(sourceCols, c.name) {
			continue
		}
		col := pgx.Identifier{c.name}.Sanitize()
		names = append(names, col)
		exprs = append(exprs, fmt.Sprintf("CAST(%s AS %s)", col, c.dataType))
	}
	return names, exprs, nil
}

func (w *Warehouse) InSerializableTx(ctx context.Context, fn func(ctx context.Context, tx tripmerge.MergeTx) error) error {
	started := time.Now()
	err := pgx.BeginTxFunc(ctx, w.pool, pgx.TxOptions{IsoLevel: pgx.Serializable}, func(tx pgx.Tx) error {
		return fn(ctx, &mergeTx{w: w, tx: tx})
	})
	w.logger.Verbose("serializable merge transaction finished in %v", time.Since(started).Round(time.Millisecond))
	return err
}

type mergeTx struct {
	w  *Warehouse
	tx pgx.Tx
}

func (m *mergeTx) UnseenIdentities(ctx context.Context, master, source string) ([]string, error) {
	id := pgx.Identifier{tripmerge.IdentityColumn}.Sanitize()
	rows, err := m.tx.Query(ctx, fmt.Sprintf(
		"SELECT DISTINCT s.%[1]s FROM %[2]s s WHERE NOT EXISTS (SELECT 1 FROM %[3]s m WHERE m.%[1]s = s.%[1]s) ORDER BY 1",
		id, m.w.ident(source), m.w.ident(master)))
	if err != nil {
		return nil, fmt.Errorf("select unseen identities: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (m *mergeTx) InsertIdentities(ctx context.Context, master, source string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	names, exprs, err := m.w.mergeColumns(ctx, m.tx, master, source)
	if err != nil {
		return 0, err
	}
	id := pgx.Identifier{tripmerge.IdentityColumn}.Sanitize()
	tag, err := m.tx.Exec(ctx, fmt.Sprintf(
		"INSERT INTO %s (%s) SELECT DISTINCT ON (%s) %s FROM %s WHERE %s = ANY($1) ORDER BY %s, ctid",
		m.w.ident(master), strings.Join(names, ", "), id, strings.Join(exprs, ", "), m.w.ident(source), id, id), ids)
	if err != nil {
		return 0, fmt.Errorf("insert into %s: %w", master, err)
	}
	return tag.RowsAffected(), nil
}

func hasColumn(cols []column, name string) bool {
	for _, c := range cols {
		if c.name == name {
			return true
		}
	}
	return false
}

func intersect(names []string, cols []column) []string {
	var out []string
	for _, n := range names {
		if hasColumn(cols, n) {
			out = append(out, n)
		}
	}
	return out
}

func indexName(master string) string {
	name := master + "_" + tripmerge.IdentityColumn + "_key"
	if len(name) > maxIdentifierLen {
		name = name[:maxIdentifierLen]
	}
	return name
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
