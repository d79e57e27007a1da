package pipeline

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/goccy/go-json"

	"github.com/fileloader-io/fileloader/internal/sourceconfig"
)

// jsonReader implements Reader by decoding the entire document once, then re-batching the
// resolved record array. JSON documents are not naturally streamable at arbitrary record
// paths, so this reader trades streaming for simplicity — acceptable since JSON sources in
// this domain are file drops, not multi-gigabyte exports (those use Parquet).
type jsonReader struct {
	closer    io.Closer
	records   []map[string]any
	batchSize int
	offset    int
	nextRow   int64
}

// NewJSONReader implements ReaderFactory for sourceconfig.FileTypeJSON.
func NewJSONReader(src io.Reader, cfg *sourceconfig.SourceConfig) (Reader, error) {
	var doc any
	if err := json.NewDecoder(src).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding json document: %w", err)
	}

	node := doc

	if cfg.JSON.RecordPath != "" {
		for _, segment := range strings.Split(cfg.JSON.RecordPath, ".") {
			obj, ok := node.(map[string]any)
			if !ok {
				return nil, NewError(FailureMissingHeader, cfg.Name, "", fmt.Errorf("%w: record_path segment %q is not an object", ErrMissingHeader, segment))
			}

			node, ok = obj[segment]
			if !ok {
				return nil, NewError(FailureMissingHeader, cfg.Name, "", fmt.Errorf("%w: record_path segment %q not found", ErrMissingHeader, segment))
			}
		}
	}

	rawRecords, ok := node.([]any)
	if !ok {
		return nil, NewError(FailureMissingHeader, cfg.Name, "", fmt.Errorf("%w: resolved record_path is not an array", ErrMissingHeader))
	}

	if len(rawRecords) == 0 {
		return nil, NewError(FailureNoDataInFile, cfg.Name, "", ErrNoDataInFile)
	}

	records := make([]map[string]any, 0, len(rawRecords))

	for _, r := range rawRecords {
		obj, ok := r.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("json record is not an object: %v", r)
		}

		records = append(records, obj)
	}

	closer, _ := src.(io.Closer)

	return &jsonReader{
		closer:    closer,
		records:   records,
		batchSize: batchSizeFor(cfg),
		nextRow:   1,
	}, nil
}

// Next implements Reader.
func (j *jsonReader) Next(ctx context.Context) (*Batch, error) {
	if j.offset >= len(j.records) {
		return nil, io.EOF
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	end := j.offset + j.batchSize
	if end > len(j.records) {
		end = len(j.records)
	}

	batch := &Batch{StartRowNumber: j.nextRow}

	for _, rec := range j.records[j.offset:end] {
		values := make(map[string]any, len(rec))
		for k, v := range rec {
			values[k] = v
		}

		batch.Records = append(batch.Records, Record{SourceRowNumber: j.nextRow, Values: values})
		j.nextRow++
	}

	j.offset = end

	return batch, nil
}

// Close implements Reader.
func (j *jsonReader) Close() error {
	if j.closer != nil {
		return j.closer.Close()
	}

	return nil
}
