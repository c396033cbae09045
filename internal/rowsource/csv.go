package rowsource

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
)

type csvReader struct {
	csv     *csv.Reader
	header  []string
	closers []io.Closer
	line    int
}

func newCSVReader(r io.Reader, gzipped bool) (*csvReader, error) {
	cr := &csvReader{}
	if c, ok := r.(io.Closer); ok {
		cr.closers = append(cr.closers, c)
	}

	src := r
	if gzipped {
		gz, err := gzip.NewReader(bufio.NewReader(r))
		if err != nil {
			cr.Close()
			return nil, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		cr.closers = append(cr.closers, gz)
		src = gz
	}

	cr.csv = csv.NewReader(bufio.NewReaderSize(src, 1<<20))
	cr.csv.ReuseRecord = false

	header, err := cr.csv.Read()
	if errors.Is(err, io.EOF) {
		cr.Close()
		return nil, errors.New("empty file: no header row")
	}
	if err != nil {
		cr.Close()
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	cr.header = header
	cr.line = 1
	return cr, nil
}

func (r *csvReader) Header() []string {
	return r.header
}

func (r *csvReader) Next() ([]any, error) {
	record, err := r.csv.Read()
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, fmt.Errorf("line %d: %w", r.line+1, err)
	}
	r.line++

	row := make([]any, len(record))
	for i, cell := range record {
		if cell == "" {
			continue
		}
		row[i] = cell
	}
	return row, nil
}

func (r *csvReader) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}
