// Package rowsource decodes batch files (CSV, gzip CSV and Parquet) into rows of Go values.
//
// CSV cells are returned as strings, with empty cells as nil. Parquet cells keep
// their physical type (int64, float64, string, time.Time, decimal.Decimal, bool)
// and nulls are nil. Callers coerce values to a column's logical type.
package rowsource

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/vvka-141/tripmerge/pkg/tripmerge"
)

// Reader streams the rows of a batch file.
type Reader interface {
	// Header returns the column names in file order, as written in the file.
	Header() []string

	// Next returns the next row. It returns io.EOF after the last row.
	Next() ([]any, error)

	Close() error
}

// Open decodes r according to format. The reader takes ownership of r when it is an io.Closer.
func Open(format tripmerge.FileFormat, r io.Reader) (Reader, error) {
	switch format {
	case tripmerge.FormatCSV:
		return newCSVReader(r, false)
	case tripmerge.FormatCSVGzip:
		return newCSVReader(r, true)
	case tripmerge.FormatParquet:
		return newParquetReader(r)
	}
	return nil, fmt.Errorf("unsupported batch format %q", format)
}

// OpenFile opens a batch file on local disk, deriving the format from its name.
func OpenFile(path string) (Reader, error) {
	format, err := tripmerge.FormatFromName(filepath.Base(path))
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	rd, err := Open(format, f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return rd, nil
}

// Sample reads up to n rows from the reader.
func Sample(rd Reader, n int) ([][]any, error) {
	rows := make([][]any, 0, n)
	for len(rows) < n {
		row, err := rd.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}
