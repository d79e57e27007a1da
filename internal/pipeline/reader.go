package pipeline

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/fileloader-io/fileloader/internal/sourceconfig"
)

// DefaultBatchSize is the batch size (spec.md §3's B) used when a SourceConfig doesn't
// override it.
const DefaultBatchSize = 100_000

// Reader streams a file's records as a lazy, finite sequence of Batches. One Reader
// instance is scoped to exactly one file; Next is called until it returns io.EOF.
type Reader interface {
	// Next returns the next Batch, or io.EOF once the stream is exhausted. Implementations
	// must honor ctx cancellation between batches.
	Next(ctx context.Context) (*Batch, error)

	// Close releases any resources (open file handles, decoders) held by the Reader.
	Close() error
}

// ReaderFactory constructs a Reader for an open byte stream, given the SourceConfig that
// matched the file. Registered per sourceconfig.FileType in the static registry below —
// spec.md §9's "plugin registration without runtime reflection" pattern.
type ReaderFactory func(src io.Reader, cfg *sourceconfig.SourceConfig) (Reader, error)

var readerFactories = map[sourceconfig.FileType]ReaderFactory{
	sourceconfig.FileTypeCSV:     NewCSVReader,
	sourceconfig.FileTypeExcel:   NewExcelReader,
	sourceconfig.FileTypeJSON:    NewJSONReader,
	sourceconfig.FileTypeParquet: NewParquetReader,
}

// NewReader looks up the registered ReaderFactory for cfg.FileType and constructs a
// Reader over src. If cfg declares gzip, or filename ends in ".gz", src is transparently
// decompressed first — every ReaderFactory sees a plain byte stream, never a compressed
// one. Returns an error if the file type has no registered factory — this should never happen for a validated SourceConfig, since
// sourceconfig.SourceConfig.Validate already rejects unknown file types.
func NewReader(src io.Reader, cfg *sourceconfig.SourceConfig, filename string) (Reader, error) {
	factory, ok := readerFactories[cfg.FileType]
	if !ok {
		return nil, fmt.Errorf("no reader registered for file type %s", cfg.FileType)
	}

	if cfg.Gzip || strings.HasSuffix(filename, ".gz") {
		gz, err := gzip.NewReader(src)
		if err != nil {
			return nil, fmt.Errorf("opening gzip stream: %w", err)
		}

		src = gz
	}

	return factory(src, cfg)
}

// batchSizeFor returns the configured batch size for cfg, or DefaultBatchSize. Only
// Parquet sources expose a per-source override today (row-group sizes vary widely across
// producers); other formats always batch at DefaultBatchSize.
func batchSizeFor(cfg *sourceconfig.SourceConfig) int {
	if cfg.FileType == sourceconfig.FileTypeParquet && cfg.Parquet.BatchSize > 0 {
		return cfg.Parquet.BatchSize
	}

	return DefaultBatchSize
}
