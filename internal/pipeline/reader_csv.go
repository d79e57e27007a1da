package pipeline

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/fileloader-io/fileloader/internal/sourceconfig"
)

// csvReader implements Reader over encoding/csv, honoring the SourceConfig's delimiter,
// header-skip, and declared schema as the set of required columns.
type csvReader struct {
	r           *csv.Reader
	closer      io.Closer
	columnIndex map[string]int
	batchSize   int
	nextRow     int64
	sawDataRow  bool
	done        bool
	sourceName  string
}

// NewCSVReader implements ReaderFactory for sourceconfig.FileTypeCSV.
func NewCSVReader(src io.Reader, cfg *sourceconfig.SourceConfig) (Reader, error) {
	r := csv.NewReader(src)
	r.FieldsPerRecord = -1

	if cfg.CSV.Delimiter != "" {
		runes := []rune(cfg.CSV.Delimiter)
		r.Comma = runes[0]
	}

	for i := 0; i < cfg.CSV.HeaderSkip; i++ {
		if _, err := r.Read(); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, NewError(FailureMissingHeader, cfg.Name, "", ErrMissingHeader)
			}

			return nil, fmt.Errorf("skipping header rows: %w", err)
		}
	}

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, NewError(FailureMissingHeader, cfg.Name, "", ErrMissingHeader)
		}

		return nil, fmt.Errorf("reading header: %w", err)
	}

	if len(header) == 0 || (len(header) == 1 && header[0] == "") {
		return nil, NewError(FailureMissingHeader, cfg.Name, "", ErrMissingHeader)
	}

	columnIndex := make(map[string]int, len(header))
	for i, name := range header {
		columnIndex[name] = i
	}

	for _, f := range cfg.Schema {
		if _, ok := columnIndex[f.Name]; !ok {
			return nil, NewError(FailureMissingColumns, cfg.Name, "", fmt.Errorf("%w: %s", ErrMissingColumns, f.Name))
		}
	}

	closer, _ := src.(io.Closer)

	return &csvReader{
		r:           r,
		closer:      closer,
		columnIndex: columnIndex,
		batchSize:   batchSizeFor(cfg),
		nextRow:     1,
		sourceName:  cfg.Name,
	}, nil
}

// Next implements Reader.
func (c *csvReader) Next(ctx context.Context) (*Batch, error) {
	if c.done {
		return nil, io.EOF
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	batch := &Batch{StartRowNumber: c.nextRow}

	for len(batch.Records) < c.batchSize {
		row, err := c.r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				c.done = true

				break
			}

			return nil, fmt.Errorf("reading csv row %d: %w", c.nextRow, err)
		}

		c.sawDataRow = true

		values := make(map[string]any, len(c.columnIndex))
		for name, idx := range c.columnIndex {
			if idx < len(row) {
				values[name] = row[idx]
			} else {
				values[name] = ""
			}
		}

		batch.Records = append(batch.Records, Record{SourceRowNumber: c.nextRow, Values: values})
		c.nextRow++
	}

	if len(batch.Records) == 0 {
		if !c.sawDataRow {
			return nil, NewError(FailureNoDataInFile, c.sourceName, "", ErrNoDataInFile)
		}

		return nil, io.EOF
	}

	return batch, nil
}

// Close implements Reader.
func (c *csvReader) Close() error {
	if c.closer != nil {
		return c.closer.Close()
	}

	return nil
}
