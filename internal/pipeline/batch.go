package pipeline

// Record is a mapping from field name to raw value (pre-validation) or typed value
// (post-validation), carrying its 1-based source row number for error attribution.
type Record struct {
	SourceRowNumber int64
	Values          map[string]any
	Valid           bool
	FailedFields    []string
	Reasons         []string
}

// Batch is an in-memory ordered sequence of Records with a stable monotone starting row
// number. Batches are produced by the Reader, refined by the Validator, and drained by
// the Writer; they are never persisted outside memory.
type Batch struct {
	// StartRowNumber is the source row number of Records[0].
	StartRowNumber int64
	Records        []Record
}

// Len returns the number of records in the batch.
func (b *Batch) Len() int {
	if b == nil {
		return 0
	}

	return len(b.Records)
}

// ValidationFailure is a DLQ row: a record that failed validation.
type ValidationFailure struct {
	FileLoadID        int64
	SourceName        string
	SourceRowNumber   int64
	GrainKey          string
	FailedFields      []string
	Reasons           []string
	OriginalRowJSON   string
}
