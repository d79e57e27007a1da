package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fileloader-io/fileloader/internal/sourceconfig"
)

func testSourceConfig() *sourceconfig.SourceConfig {
	return &sourceconfig.SourceConfig{
		Name:      "customers",
		Threshold: 0,
		Grain:     []string{"customer_id"},
		Schema: []sourceconfig.Field{
			{Name: "customer_id", Type: sourceconfig.FieldTypeInt},
			{Name: "name", Type: sourceconfig.FieldTypeString, Rules: []string{"nonempty"}},
			{Name: "balance", Type: sourceconfig.FieldTypeFloat, Rules: []string{"min:0"}},
			{Name: "region", Type: sourceconfig.FieldTypeString, Nullable: true},
		},
	}
}

func TestValidateBatch_AllValidRecordsCoerceTypes(t *testing.T) {
	v := NewValidator(testSourceConfig())

	batch := &Batch{Records: []Record{
		{SourceRowNumber: 1, Values: map[string]any{"customer_id": "1", "name": "Ada", "balance": "10.5"}},
		{SourceRowNumber: 2, Values: map[string]any{"customer_id": "2", "name": "Grace", "balance": "20"}},
	}}

	invalid := v.ValidateBatch(batch)

	require.Equal(t, 0, invalid)
	assert.True(t, batch.Records[0].Valid)
	assert.Equal(t, int64(1), batch.Records[0].Values["customer_id"])
	assert.Equal(t, 10.5, batch.Records[0].Values["balance"])
	assert.Nil(t, batch.Records[0].Values["region"])
	assert.Equal(t, 0, v.InvalidCount())
	assert.False(t, v.ThresholdExceeded())
}

func TestValidateBatch_MissingRequiredFieldFails(t *testing.T) {
	v := NewValidator(testSourceConfig())

	batch := &Batch{Records: []Record{
		{SourceRowNumber: 1, Values: map[string]any{"customer_id": "1", "balance": "10"}},
	}}

	invalid := v.ValidateBatch(batch)

	require.Equal(t, 1, invalid)
	rec := batch.Records[0]
	assert.False(t, rec.Valid)
	assert.Contains(t, rec.FailedFields, "name")
}

func TestValidateBatch_RuleViolationFails(t *testing.T) {
	v := NewValidator(testSourceConfig())

	batch := &Batch{Records: []Record{
		{SourceRowNumber: 1, Values: map[string]any{"customer_id": "1", "name": "Ada", "balance": "-5"}},
	}}

	v.ValidateBatch(batch)

	rec := batch.Records[0]
	assert.False(t, rec.Valid)
	assert.Contains(t, rec.FailedFields, "balance")
}

func TestValidateBatch_DuplicateGrainMarksSecondOccurrence(t *testing.T) {
	v := NewValidator(testSourceConfig())

	batch := &Batch{Records: []Record{
		{SourceRowNumber: 1, Values: map[string]any{"customer_id": "1", "name": "Ada", "balance": "10"}},
		{SourceRowNumber: 2, Values: map[string]any{"customer_id": "1", "name": "Ada Two", "balance": "11"}},
	}}

	invalid := v.ValidateBatch(batch)

	require.Equal(t, 1, invalid)
	assert.True(t, batch.Records[0].Valid)
	assert.False(t, batch.Records[1].Valid)
	assert.Contains(t, batch.Records[1].Reasons, ReasonDuplicateGrain)
}

func TestValidateBatch_DuplicateGrainDetectedAcrossBatches(t *testing.T) {
	v := NewValidator(testSourceConfig())

	first := &Batch{Records: []Record{
		{SourceRowNumber: 1, Values: map[string]any{"customer_id": "1", "name": "Ada", "balance": "10"}},
	}}
	second := &Batch{Records: []Record{
		{SourceRowNumber: 2, Values: map[string]any{"customer_id": "1", "name": "Ada Two", "balance": "11"}},
	}}

	v.ValidateBatch(first)
	invalid := v.ValidateBatch(second)

	require.Equal(t, 1, invalid)
	assert.False(t, second.Records[0].Valid)
}

func TestThresholdExceeded_ContinuesCountingPastThreshold(t *testing.T) {
	cfg := testSourceConfig()
	cfg.Threshold = 1
	v := NewValidator(cfg)

	batch := &Batch{Records: []Record{
		{SourceRowNumber: 1, Values: map[string]any{"customer_id": "1", "balance": "10"}},
		{SourceRowNumber: 2, Values: map[string]any{"customer_id": "2", "balance": "10"}},
		{SourceRowNumber: 3, Values: map[string]any{"customer_id": "3", "balance": "10"}},
	}}

	v.ValidateBatch(batch)

	assert.Equal(t, 3, v.InvalidCount())
	assert.True(t, v.ThresholdExceeded())
}

func TestApplyRules_EnumRejectsUnknownValue(t *testing.T) {
	err := applyRules("gold", []string{"enum:silver,bronze"})
	require.Error(t, err)
}

func TestApplyRules_EnumAcceptsKnownValue(t *testing.T) {
	err := applyRules("silver", []string{"enum:silver,bronze"})
	require.NoError(t, err)
}

func TestApplyRules_ExpressionRuleWithFieldNamePrefixPasses(t *testing.T) {
	err := applyRules(int64(0), []string{"age >= 0"})
	require.NoError(t, err)
}

func TestApplyRules_ExpressionRuleWithFieldNamePrefixFails(t *testing.T) {
	err := applyRules(int64(-1), []string{"age >= 0"})
	require.Error(t, err)
}

func TestApplyRules_BareExpressionRulePasses(t *testing.T) {
	err := applyRules(5.0, []string{"> 0"})
	require.NoError(t, err)
}

func TestApplyRules_UnrecognizedTokenStillFails(t *testing.T) {
	err := applyRules("x", []string{"totally bogus rule"})
	require.Error(t, err)
}

func TestValidateBatch_ExpressionRuleViolationMatchesDocumentedFormat(t *testing.T) {
	cfg := testSourceConfig()
	cfg.Schema = append(cfg.Schema, sourceconfig.Field{
		Name: "age", Type: sourceconfig.FieldTypeInt, Nullable: true, Rules: []string{"age >= 0"},
	})

	v := NewValidator(cfg)

	batch := &Batch{Records: []Record{
		{SourceRowNumber: 1, Values: map[string]any{"customer_id": "1", "name": "Ada", "balance": "10", "age": "-1"}},
	}}

	invalid := v.ValidateBatch(batch)

	require.Equal(t, 1, invalid)
	rec := batch.Records[0]
	assert.False(t, rec.Valid)
	assert.Contains(t, rec.FailedFields, "age")
}

func TestCoerce_InvalidIntReturnsError(t *testing.T) {
	_, err := coerce("not-a-number", sourceconfig.FieldTypeInt)
	require.Error(t, err)
}

func TestCoerce_DateLayout(t *testing.T) {
	v, err := coerce("2026-07-29", sourceconfig.FieldTypeDate)
	require.NoError(t, err)
	assert.Equal(t, "2026-07-29", v.(time.Time).Format(dateLayout))
}
