// Package loadjob turns a warehouse load request into a stream of typed rows.
//
// Every warehouse driver reads its load source through this package so that the
// column naming, schema autodetection and value coercion rules are identical
// across stores.
package loadjob

import (
	"context"
	"fmt"

	"github.com/vvka-141/tripmerge/internal/rowsource"
	"github.com/vvka-141/tripmerge/internal/schema"
	"github.com/vvka-141/tripmerge/pkg/tripmerge"
)

// Rows streams the typed rows of one load source.
type Rows struct {
	Schema       tripmerge.ColumnSchema
	SchemaSource tripmerge.SchemaSource

	rd       rowsource.Reader
	buffered [][]any
	line     int64
}

// Open starts reading the request's source. With no explicit schema, the first
// tripmerge.AutodetectSampleRows rows are sampled to infer one.
func Open(ctx context.Context, req tripmerge.LoadRequest) (*Rows, error) {
	if req.Source == nil {
		return nil, fmt.Errorf("load %s: no source", req.Table)
	}
	body, err := req.Source.Open(ctx)
	if err != nil {
		return nil, err
	}
	rd, err := rowsource.Open(req.Format, body)
	if err != nil {
		_ = body.Close()
		return nil, fmt.Errorf("decode %s: %w", req.Source.URI(), err)
	}

	r := &Rows{rd: rd}
	header := rd.Header()

	if req.Schema != nil {
		if len(req.Schema) != len(header) {
			r.Close()
			return nil, fmt.Errorf("decode %s: schema has %d columns, file has %d", req.Source.URI(), len(req.Schema), len(header))
		}
		r.Schema = req.Schema
		r.SchemaSource = tripmerge.SchemaExplicit
		return r, nil
	}

	sample, err := rowsource.Sample(rd, tripmerge.AutodetectSampleRows)
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("sample %s: %w", req.Source.URI(), err)
	}
	r.Schema = schema.Infer(header, sample)
	r.SchemaSource = tripmerge.SchemaAutodetect
	r.buffered = sample
	return r, nil
}

// Next returns the next row coerced to Schema, or io.EOF.
func (r *Rows) Next() ([]any, error) {
	var row []any
	if len(r.buffered) > 0 {
		row, r.buffered = r.buffered[0], r.buffered[1:]
	} else {
		var err error
		row, err = r.rd.Next()
		if err != nil {
			return nil, err
		}
	}
	r.line++
	if err := schema.CoerceRow(row, r.Schema); err != nil {
		return nil, fmt.Errorf("row %d: %w", r.line, err)
	}
	return row, nil
}

// Names returns the column names of Schema.
func (r *Rows) Names() []string {
	return r.Schema.Names()
}

// Close releases the decoder together with the object stream it owns.
func (r *Rows) Close() error {
	return r.rd.Close()
}
