// Package memory is an in-process warehouse for tests and dry runs.
//
// It honors the same relation semantics as the SQL stores: replace loads are
// atomic, master relations carry a unique identity, and merges are insert-only.
package memory

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/vvka-141/tripmerge/internal/identity"
	"github.com/vvka-141/tripmerge/internal/loadjob"
	"github.com/vvka-141/tripmerge/internal/schema"
	"github.com/vvka-141/tripmerge/pkg/tripmerge"
)

type table struct {
	schema tripmerge.ColumnSchema
	rows   [][]any
	// ids indexes the identity column of master relations.
	ids map[string]struct{}
}

func (t *table) clone() *table {
	c := &table{schema: t.schema, rows: append([][]any(nil), t.rows...)}
	if t.ids != nil {
		c.ids = make(map[string]struct{}, len(t.ids))
		for id := range t.ids {
			c.ids[id] = struct{}{}
		}
	}
	return c
}

// Warehouse implements tripmerge.Warehouse in memory.
type Warehouse struct {
	mu     sync.RWMutex
	tables map[string]*table

	// txMu serializes merges into master relations.
	txMu sync.Mutex

	conditional bool
	failLoad    map[string]error
	loads       int
}

// Option configures a Warehouse.
type Option func(*Warehouse)

// WithoutConditionalInsert hides the single-statement merge so callers take the
// transactional path.
func WithoutConditionalInsert() Option {
	return func(w *Warehouse) { w.conditional = false }
}

// New returns an empty warehouse.
func New(opts ...Option) *Warehouse {
	w := &Warehouse{
		tables:      make(map[string]*table),
		conditional: true,
		failLoad:    make(map[string]error),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

var (
	_ tripmerge.Warehouse           = (*Warehouse)(nil)
	_ tripmerge.ConditionalMerger   = (*Warehouse)(nil)
	_ tripmerge.TransactionalMerger = (*Warehouse)(nil)
)

func (w *Warehouse) Dialect() string { return "memory" }

func (w *Warehouse) Capabilities() tripmerge.Capabilities {
	return tripmerge.Capabilities{ConditionalInsert: w.conditional, SerializableTx: true}
}

func (w *Warehouse) EnsureDataset(context.Context) error { return nil }

func (w *Warehouse) Close() error { return nil }

// FailLoad makes loads into table fail with err until cleared with a nil error.
func (w *Warehouse) FailLoad(table string, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err == nil {
		delete(w.failLoad, table)
		return
	}
	w.failLoad[table] = err
}

// Loads returns the number of load jobs that completed.
func (w *Warehouse) Loads() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.loads
}

func (w *Warehouse) TableExists(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	_, ok := w.tables[name]
	return ok, nil
}

func (w *Warehouse) DropTable(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.tables, name)
	return nil
}

// Rows returns a copy of a table's rows keyed by column name.
func (w *Warehouse) Rows(name string) ([]map[string]any, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	t, ok := w.tables[name]
	if !ok {
		return nil, fmt.Errorf("table %s does not exist", name)
	}
	out := make([]map[string]any, len(t.rows))
	for i, row := range t.rows {
		m := make(map[string]any, len(row))
		for c, col := range t.schema {
			m[col.Name] = row[c]
		}
		out[i] = m
	}
	return out, nil
}

// Schema returns the schema of a table.
func (w *Warehouse) Schema(name string) (tripmerge.ColumnSchema, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	t, ok := w.tables[name]
	if !ok {
		return nil, false
	}
	return t.schema, true
}

func (w *Warehouse) Load(ctx context.Context, req tripmerge.LoadRequest) (tripmerge.LoadJob, error) {
	w.mu.RLock()
	ferr := w.failLoad[req.Table]
	w.mu.RUnlock()
	if ferr != nil {
		return tripmerge.LoadJob{}, ferr
	}

	rows, err := loadjob.Open(ctx, req)
	if err != nil {
		return tripmerge.LoadJob{}, err
	}
	defer rows.Close()

	staged := &table{schema: rows.Schema}
	for {
		if err := ctx.Err(); err != nil {
			return tripmerge.LoadJob{}, err
		}
		row, err := rows.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return tripmerge.LoadJob{}, fmt.Errorf("load %s: %w", req.Table, err)
		}
		staged.rows = append(staged.rows, row)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	existing, ok := w.tables[req.Table]
	if req.Disposition == tripmerge.WriteAppend && ok {
		next := existing.clone()
		for _, row := range staged.rows {
			mapped, err := project(row, staged.schema, next.schema)
			if err != nil {
				return tripmerge.LoadJob{}, fmt.Errorf("load %s: %w", req.Table, err)
			}
			next.rows = append(next.rows, mapped)
		}
		w.tables[req.Table] = next
	} else {
		w.tables[req.Table] = staged
	}
	w.loads++

	return tripmerge.LoadJob{
		ID:           uuid.NewString(),
		Table:        req.Table,
		Rows:         int64(len(staged.rows)),
		Schema:       staged.schema,
		SchemaSource: rows.SchemaSource,
	}, nil
}

func (w *Warehouse) DeriveIdentity(ctx context.Context, spec tripmerge.IdentitySpec) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	staging, ok := w.tables[spec.StagingTable]
	if !ok {
		return 0, fmt.Errorf("%s: %w", spec.StagingTable, tripmerge.ErrStagingMissing)
	}

	keyIdx := make([]int, len(spec.KeyColumns))
	for i, name := range spec.KeyColumns {
		keyIdx[i] = staging.schema.Index(schema.NormalizeName(name))
	}

	tagged := &table{schema: append(tripmerge.ColumnSchema{
		{Name: tripmerge.IdentityColumn, Type: tripmerge.TypeString},
		{Name: tripmerge.SourceFilenameColumn, Type: tripmerge.TypeString},
	}, staging.schema...)}
	tagged.rows = make([][]any, len(staging.rows))

	keys := make([]any, len(keyIdx))
	for r, row := range staging.rows {
		for i, idx := range keyIdx {
			keys[i] = nil
			if idx >= 0 {
				keys[i] = row[idx]
			}
		}
		out := make([]any, 0, len(row)+2)
		out = append(out, identity.Derive(keys...), spec.SourceFilename)
		tagged.rows[r] = append(out, row...)
	}
	w.tables[spec.TaggedTable] = tagged
	return int64(len(tagged.rows)), nil
}

func (w *Warehouse) EnsureMaster(ctx context.Context, master, template string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.tables[master]; ok {
		return nil
	}
	tmpl, ok := w.tables[template]
	if !ok {
		return fmt.Errorf("%s: %w", template, tripmerge.ErrStagingMissing)
	}
	if tmpl.schema.Index(tripmerge.IdentityColumn) < 0 {
		return fmt.Errorf("template %s has no %s column", template, tripmerge.IdentityColumn)
	}
	w.tables[master] = &table{schema: tmpl.schema, ids: make(map[string]struct{})}
	return nil
}

func (w *Warehouse) MasterStats(ctx context.Context, master string) (tripmerge.MasterStats, error) {
	if err := ctx.Err(); err != nil {
		return tripmerge.MasterStats{}, err
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	t, ok := w.tables[master]
	if !ok {
		return tripmerge.MasterStats{}, fmt.Errorf("master relation %s does not exist", master)
	}
	idx := t.schema.Index(tripmerge.IdentityColumn)
	distinct := make(map[any]struct{}, len(t.rows))
	for _, row := range t.rows {
		distinct[row[idx]] = struct{}{}
	}
	return tripmerge.MasterStats{Table: master, Rows: int64(len(t.rows)), DistinctIdentities: int64(len(distinct))}, nil
}

// Query is not available on the in-memory store.
func (w *Warehouse) Query(context.Context, string) (tripmerge.QueryResult, error) {
	return tripmerge.QueryResult{}, fmt.Errorf("memory warehouse queries: %w", tripmerge.ErrUnsupported)
}

func (w *Warehouse) MergeInsertOnly(ctx context.Context, master, source string) (int64, error) {
	if !w.conditional {
		return 0, fmt.Errorf("conditional insert: %w", tripmerge.ErrUnsupported)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	w.txMu.Lock()
	defer w.txMu.Unlock()
	w.mu.Lock()
	defer w.mu.Unlock()

	dst, src, err := w.mergePair(master, source)
	if err != nil {
		return 0, err
	}
	next := dst.clone()
	inserted, err := insertUnseen(next, src, nil)
	if err != nil {
		return 0, err
	}
	w.tables[master] = next
	return inserted, nil
}

func (w *Warehouse) InSerializableTx(ctx context.Context, fn func(ctx context.Context, tx tripmerge.MergeTx) error) error {
	w.txMu.Lock()
	defer w.txMu.Unlock()

	tx := &memTx{w: w, pending: make(map[string]*table)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for name, t := range tx.pending {
		w.tables[name] = t
	}
	return nil
}

func (w *Warehouse) mergePair(master, source string) (*table, *table, error) {
	dst, ok := w.tables[master]
	if !ok || dst.ids == nil {
		return nil, nil, fmt.Errorf("master relation %s does not exist", master)
	}
	src, ok := w.tables[source]
	if !ok {
		return nil, nil, fmt.Errorf("%s: %w", source, tripmerge.ErrStagingMissing)
	}
	if src.schema.Index(tripmerge.IdentityColumn) < 0 {
		return nil, nil, fmt.Errorf("%s has no %s column", source, tripmerge.IdentityColumn)
	}
	return dst, src, nil
}

// insertUnseen appends to dst the first src row of every identity dst lacks.
// When only is non-nil, identities outside it are skipped.
func insertUnseen(dst, src *table, only map[string]struct{}) (int64, error) {
	idx := src.schema.Index(tripmerge.IdentityColumn)
	var inserted int64
	for _, row := range src.rows {
		id, _ := row[idx].(string)
		if _, seen := dst.ids[id]; seen {
			continue
		}
		if only != nil {
			if _, ok := only[id]; !ok {
				continue
			}
		}
		mapped, err := project(row, src.schema, dst.schema)
		if err != nil {
			return 0, err
		}
		dst.rows = append(dst.rows, mapped)
		dst.ids[id] = struct{}{}
		inserted++
	}
	return inserted, nil
}

// project maps a row between schemas by column name, casting to the target types.
// Target columns absent from the source are NULL.
func project(row []any, from, to tripmerge.ColumnSchema) ([]any, error) {
	out := make([]any, len(to))
	for i, col := range to {
		j := from.Index(col.Name)
		if j < 0 {
			continue
		}
		v, err := schema.Coerce(row[j], col.Type)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", col.Name, err)
		}
		out[i] = v
	}
	return out, nil
}

type memTx struct {
	w       *Warehouse
	pending map[string]*table
}

func (tx *memTx) view(name string) (*table, bool) {
	if t, ok := tx.pending[name]; ok {
		return t, true
	}
	tx.w.mu.RLock()
	defer tx.w.mu.RUnlock()
	t, ok := tx.w.tables[name]
	return t, ok
}

func (tx *memTx) UnseenIdentities(ctx context.Context, master, source string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dst, ok := tx.view(master)
	if !ok || dst.ids == nil {
		return nil, fmt.Errorf("master relation %s does not exist", master)
	}
	src, ok := tx.view(source)
	if !ok {
		return nil, fmt.Errorf("%s: %w", source, tripmerge.ErrStagingMissing)
	}
	idx := src.schema.Index(tripmerge.IdentityColumn)
	if idx < 0 {
		return nil, fmt.Errorf("%s has no %s column", source, tripmerge.IdentityColumn)
	}
	set := make(map[string]struct{})
	for _, row := range src.rows {
		id, _ := row[idx].(string)
		if _, seen := dst.ids[id]; !seen {
			set[id] = struct{}{}
		}
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (tx *memTx) InsertIdentities(ctx context.Context, master, source string, ids []string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	dst, ok := tx.view(master)
	if !ok || dst.ids == nil {
		return 0, fmt.Errorf("master relation %s does not exist", master)
	}
	src, ok := tx.view(source)
	if !ok {
		return 0, fmt.Errorf("%s: %w", source, tripmerge.ErrStagingMissing)
	}
	only := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		only[id] = struct{}{}
	}
	next := dst.clone()
	inserted, err := insertUnseen(next, src, only)
	if err != nil {
		return 0, err
	}
	tx.pending[master] = next
	return inserted, nil
}
