package pipeline

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fileloader-io/fileloader/internal/sourceconfig"
)

func csvTestConfig() *sourceconfig.SourceConfig {
	return &sourceconfig.SourceConfig{
		Name: "customers",
		Schema: []sourceconfig.Field{
			{Name: "customer_id", Type: sourceconfig.FieldTypeInt},
			{Name: "name", Type: sourceconfig.FieldTypeString},
		},
	}
}

func TestNewCSVReader_MissingHeaderRowFails(t *testing.T) {
	_, err := NewCSVReader(strings.NewReader(""), csvTestConfig())

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingHeader)
}

func TestNewCSVReader_MissingSchemaColumnFails(t *testing.T) {
	_, err := NewCSVReader(strings.NewReader("customer_id\n1\n"), csvTestConfig())

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingColumns)
}

func TestNewCSVReader_CustomDelimiterAndHeaderSkip(t *testing.T) {
	cfg := csvTestConfig()
	cfg.CSV.Delimiter = ";"
	cfg.CSV.HeaderSkip = 1

	content := "# generated report\ncustomer_id;name\n1;Ada\n"

	r, err := NewCSVReader(strings.NewReader(content), cfg)
	require.NoError(t, err)

	batch, err := r.Next(context.Background())
	require.NoError(t, err)
	require.Len(t, batch.Records, 1)
	assert.Equal(t, "1", batch.Records[0].Values["customer_id"])
	assert.Equal(t, "Ada", batch.Records[0].Values["name"])
}

func TestCSVReader_Next_BatchesAcrossMultipleCallsThenEOF(t *testing.T) {
	cfg := csvTestConfig()

	r, err := NewCSVReader(strings.NewReader("customer_id,name\n1,Ada\n2,Grace\n"), cfg)
	require.NoError(t, err)

	rdr := r.(*csvReader)
	rdr.batchSize = 1

	first, err := r.Next(context.Background())
	require.NoError(t, err)
	require.Len(t, first.Records, 1)
	assert.Equal(t, int64(1), first.StartRowNumber)
	assert.Equal(t, "1", first.Records[0].Values["customer_id"])

	second, err := r.Next(context.Background())
	require.NoError(t, err)
	require.Len(t, second.Records, 1)
	assert.Equal(t, int64(2), second.StartRowNumber)
	assert.Equal(t, "2", second.Records[0].Values["customer_id"])

	_, err = r.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestCSVReader_Next_EmptyFileReturnsNoDataInFile(t *testing.T) {
	cfg := csvTestConfig()

	r, err := NewCSVReader(strings.NewReader("customer_id,name\n"), cfg)
	require.NoError(t, err)

	_, err = r.Next(context.Background())
	require.ErrorIs(t, err, ErrNoDataInFile)

	var pipelineErr *Error
	require.ErrorAs(t, err, &pipelineErr)
	assert.Equal(t, FailureNoDataInFile, pipelineErr.Kind)
}

func TestCSVReader_Next_ShortRowFillsMissingColumnsAsEmptyString(t *testing.T) {
	cfg := csvTestConfig()

	r, err := NewCSVReader(strings.NewReader("customer_id,name\n1\n"), cfg)
	require.NoError(t, err)

	batch, err := r.Next(context.Background())
	require.NoError(t, err)
	require.Len(t, batch.Records, 1)
	assert.Equal(t, "", batch.Records[0].Values["name"])
}

func TestCSVReader_Next_RespectsContextCancellation(t *testing.T) {
	cfg := csvTestConfig()

	r, err := NewCSVReader(strings.NewReader("customer_id,name\n1,Ada\n"), cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = r.Next(ctx)
	assert.Error(t, err)
}

func TestCSVReader_Close_NoopWithoutUnderlyingCloser(t *testing.T) {
	cfg := csvTestConfig()

	r, err := NewCSVReader(strings.NewReader("customer_id,name\n1,Ada\n"), cfg)
	require.NoError(t, err)

	assert.NoError(t, r.Close())
}
