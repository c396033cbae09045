package rowsource

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/apache/arrow/go/v17/parquet/file"
	"github.com/apache/arrow/go/v17/parquet/pqarrow"
	"github.com/shopspring/decimal"
)

const parquetBatchSize = 8192

type parquetReader struct {
	header  []string
	pf      *file.Reader
	records pqarrow.RecordReader
	current arrow.Record
	row     int64
	closer  io.Closer
}

// newParquetReader buffers the whole file in memory: the footer sits at the end
// of the file, so object-store streams cannot be decoded incrementally.
func newParquetReader(r io.Reader) (*parquetReader, error) {
	var closer io.Closer
	if c, ok := r.(io.Closer); ok {
		closer = c
	}
	data, err := io.ReadAll(r)
	if closer != nil {
		closer.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read parquet file: %w", err)
	}

	pf, err := file.NewParquetReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file: %w", err)
	}

	fr, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{BatchSize: parquetBatchSize}, memory.DefaultAllocator)
	if err != nil {
		pf.Close()
		return nil, fmt.Errorf("failed to create arrow reader: %w", err)
	}

	schema, err := fr.Schema()
	if err != nil {
		pf.Close()
		return nil, fmt.Errorf("failed to read parquet schema: %w", err)
	}
	header := make([]string, schema.NumFields())
	for i, f := range schema.Fields() {
		header[i] = f.Name
	}

	records, err := fr.GetRecordReader(context.Background(), nil, nil)
	if err != nil {
		pf.Close()
		return nil, fmt.Errorf("failed to read parquet row groups: %w", err)
	}

	return &parquetReader{header: header, pf: pf, records: records}, nil
}

func (r *parquetReader) Header() []string {
	return r.header
}

func (r *parquetReader) Next() ([]any, error) {
	for r.current == nil || r.row >= r.current.NumRows() {
		if !r.records.Next() {
			if err := r.records.Err(); err != nil && err != io.EOF {
				return nil, fmt.Errorf("failed to read parquet records: %w", err)
			}
			return nil, io.EOF
		}
		r.current = r.records.Record()
		r.row = 0
	}

	row := make([]any, r.current.NumCols())
	for c := range row {
		row[c] = arrowValue(r.current.Column(c), int(r.row))
	}
	r.row++
	return row, nil
}

func (r *parquetReader) Close() error {
	if r.records != nil {
		r.records.Release()
		r.records = nil
	}
	if r.pf != nil {
		err := r.pf.Close()
		r.pf = nil
		return err
	}
	return nil
}

// arrowValue converts one cell to a plain Go value.
func arrowValue(arr arrow.Array, i int) any {
	if arr.IsNull(i) {
		return nil
	}
	switch a := arr.(type) {
	case *array.Int8:
		return int64(a.Value(i))
	case *array.Int16:
		return int64(a.Value(i))
	case *array.Int32:
		return int64(a.Value(i))
	case *array.Int64:
		return a.Value(i)
	case *array.Uint8:
		return int64(a.Value(i))
	case *array.Uint16:
		return int64(a.Value(i))
	case *array.Uint32:
		return int64(a.Value(i))
	case *array.Uint64:
		return int64(a.Value(i))
	case *array.Float32:
		return float64(a.Value(i))
	case *array.Float64:
		return a.Value(i)
	case *array.Boolean:
		return a.Value(i)
	case *array.String:
		return a.Value(i)
	case *array.LargeString:
		return a.Value(i)
	case *array.Timestamp:
		unit := a.DataType().(*arrow.TimestampType).Unit
		return a.Value(i).ToTime(unit).UTC()
	case *array.Date32:
		return a.Value(i).ToTime().UTC()
	case *array.Date64:
		return a.Value(i).ToTime().UTC()
	case *array.Decimal128:
		scale := a.DataType().(*arrow.Decimal128Type).Scale
		return decimal.NewFromBigInt(a.Value(i).BigInt(), -scale)
	}
	return arr.ValueStr(i)
}
