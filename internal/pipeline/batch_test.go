package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBatch_LenOnNil(t *testing.T) {
	var b *Batch
	assert.Equal(t, 0, b.Len())
}

func TestBatch_LenCountsRecords(t *testing.T) {
	b := &Batch{
		StartRowNumber: 1,
		Records: []Record{
			{SourceRowNumber: 1, Values: map[string]any{"id": 1}, Valid: true},
			{SourceRowNumber: 2, Values: map[string]any{"id": 2}, Valid: false, FailedFields: []string{"id"}, Reasons: []string{"duplicate grain"}},
		},
	}

	assert.Equal(t, 2, b.Len())
	assert.False(t, b.Records[1].Valid)
	assert.Equal(t, []string{"id"}, b.Records[1].FailedFields)
}
