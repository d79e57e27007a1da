package pipeline

import (
	"context"
	"fmt"
	"io"
	"reflect"

	"github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go/reader"

	"github.com/fileloader-io/fileloader/internal/sourceconfig"
)

// parquetReaderConcurrency is the number of goroutines xitongsys/parquet-go uses internally
// to decode column chunks. Parquet files in this domain are file drops, not the
// many-gigabyte exports the library is built for, so a small fixed concurrency is enough.
const parquetReaderConcurrency = 4

// parquetReader implements Reader over xitongsys/parquet-go's schema-less reader, which
// derives row structs from the file's own footer rather than a compiled Go type — the file
// drop's shape isn't known until the SourceConfig's schema is matched at runtime.
type parquetReader struct {
	closer    io.Closer
	pr        *reader.ParquetReader
	batchSize int
	nextRow   int64
	numRows   int64
	read      int64
}

// NewParquetReader implements ReaderFactory for sourceconfig.FileTypeParquet.
func NewParquetReader(src io.Reader, cfg *sourceconfig.SourceConfig) (Reader, error) {
	data, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("buffering parquet file: %w", err)
	}

	pFile := buffer.NewBufferFileFromBytes(data)

	pr, err := reader.NewParquetReader(pFile, nil, parquetReaderConcurrency)
	if err != nil {
		return nil, fmt.Errorf("reading parquet footer: %w", err)
	}

	numRows := pr.GetNumRows()
	if numRows == 0 {
		pr.ReadStop()
		return nil, NewError(FailureNoDataInFile, cfg.Name, "", ErrNoDataInFile)
	}

	closer, _ := src.(io.Closer)

	return &parquetReader{
		closer:    closer,
		pr:        pr,
		batchSize: batchSizeFor(cfg),
		nextRow:   1,
		numRows:   numRows,
	}, nil
}

// Next implements Reader.
func (p *parquetReader) Next(ctx context.Context) (*Batch, error) {
	if p.read >= p.numRows {
		return nil, io.EOF
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	remaining := p.numRows - p.read

	n := int64(p.batchSize)
	if remaining < n {
		n = remaining
	}

	rows, err := p.pr.ReadByNumber(int(n))
	if err != nil {
		return nil, fmt.Errorf("reading parquet rows: %w", err)
	}

	batch := &Batch{StartRowNumber: p.nextRow}

	for _, row := range rows {
		batch.Records = append(batch.Records, Record{SourceRowNumber: p.nextRow, Values: structToMap(row)})
		p.nextRow++
	}

	p.read += int64(len(rows))

	return batch, nil
}

// Close implements Reader.
func (p *parquetReader) Close() error {
	if p.pr != nil {
		p.pr.ReadStop()
	}

	if p.closer != nil {
		return p.closer.Close()
	}

	return nil
}

// structToMap flattens a parquet-go dynamically generated row struct into a plain map
// keyed by field name, so downstream validator/writer stages never see the library's
// reflect-generated row type.
func structToMap(row interface{}) map[string]any {
	out := map[string]any{}

	v := reflect.ValueOf(row)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}

	if v.Kind() != reflect.Struct {
		return out
	}

	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fv := v.Field(i)

		if fv.Kind() == reflect.Ptr {
			if fv.IsNil() {
				out[field.Name] = nil
				continue
			}

			fv = fv.Elem()
		}

		out[field.Name] = fv.Interface()
	}

	return out
}
