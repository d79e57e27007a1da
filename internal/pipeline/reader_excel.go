package pipeline

import (
	"context"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/fileloader-io/fileloader/internal/sourceconfig"
)

// excelReader implements Reader over a fully-parsed excelize.File. Like jsonReader, this
// trades streaming for simplicity: excelize itself buffers the sheet's rows in memory, so
// there is no streaming win to preserve by deferring row extraction.
type excelReader struct {
	closer      io.Closer
	file        *excelize.File
	columnIndex map[string]int
	rows        [][]string
	batchSize   int
	offset      int
	nextRow     int64
	sawDataRow  bool
	sourceName  string
}

// NewExcelReader implements ReaderFactory for sourceconfig.FileTypeExcel.
func NewExcelReader(src io.Reader, cfg *sourceconfig.SourceConfig) (Reader, error) {
	f, err := excelize.OpenReader(src)
	if err != nil {
		return nil, fmt.Errorf("opening excel workbook: %w", err)
	}

	sheet := cfg.Excel.Sheet
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}

	allRows, err := f.GetRows(sheet)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("reading sheet %q: %w", sheet, err)
	}

	skip := cfg.Excel.HeaderSkip
	if skip >= len(allRows) {
		_ = f.Close()
		return nil, NewError(FailureMissingHeader, cfg.Name, "", ErrMissingHeader)
	}

	header := allRows[skip]
	if len(header) == 0 {
		_ = f.Close()
		return nil, NewError(FailureMissingHeader, cfg.Name, "", ErrMissingHeader)
	}

	columnIndex := make(map[string]int, len(header))
	for i, name := range header {
		columnIndex[name] = i
	}

	for _, field := range cfg.Schema {
		if _, ok := columnIndex[field.Name]; !ok {
			_ = f.Close()
			return nil, NewError(FailureMissingColumns, cfg.Name, "", fmt.Errorf("%w: %s", ErrMissingColumns, field.Name))
		}
	}

	dataRows := allRows[skip+1:]

	closer, _ := src.(io.Closer)

	return &excelReader{
		closer:      closer,
		file:        f,
		columnIndex: columnIndex,
		rows:        dataRows,
		batchSize:   batchSizeFor(cfg),
		nextRow:     1,
		sourceName:  cfg.Name,
	}, nil
}

// Next implements Reader.
func (e *excelReader) Next(ctx context.Context) (*Batch, error) {
	if e.offset >= len(e.rows) {
		if !e.sawDataRow {
			return nil, NewError(FailureNoDataInFile, e.sourceName, "", ErrNoDataInFile)
		}

		return nil, io.EOF
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	end := e.offset + e.batchSize
	if end > len(e.rows) {
		end = len(e.rows)
	}

	batch := &Batch{StartRowNumber: e.nextRow}

	for _, row := range e.rows[e.offset:end] {
		e.sawDataRow = true

		values := make(map[string]any, len(e.columnIndex))
		for name, idx := range e.columnIndex {
			if idx < len(row) {
				values[name] = row[idx]
			} else {
				values[name] = ""
			}
		}

		batch.Records = append(batch.Records, Record{SourceRowNumber: e.nextRow, Values: values})
		e.nextRow++
	}

	e.offset = end

	return batch, nil
}

// Close implements Reader.
func (e *excelReader) Close() error {
	if e.file != nil {
		_ = e.file.Close()
	}

	if e.closer != nil {
		return e.closer.Close()
	}

	return nil
}
