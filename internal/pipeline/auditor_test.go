package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fileloader-io/fileloader/internal/sourceconfig"
)

func TestAuditor_PassesWhenGrainUniqueAndNoAudits(t *testing.T) {
	adapter := &fakeAdapter{scalarResults: []any{int64(0)}}
	a := NewAuditor(adapter, "stg_customers_1", testSourceConfig())

	err := a.Audit(context.Background())

	require.NoError(t, err)
}

func TestAuditor_FailsOnDuplicateGrain(t *testing.T) {
	adapter := &fakeAdapter{scalarResults: []any{int64(2)}}
	a := NewAuditor(adapter, "stg_customers_1", testSourceConfig())

	err := a.Audit(context.Background())

	require.Error(t, err)

	var pipelineErr *Error
	require.ErrorAs(t, err, &pipelineErr)
	assert.Equal(t, FailureGrainValidationError, pipelineErr.Kind)
	assert.ErrorIs(t, err, ErrGrainValidation)
}

func TestAuditor_RunsUserAuditsInOrderAndStopsAtFirstFailure(t *testing.T) {
	cfg := testSourceConfig()
	cfg.Audits = []sourceconfig.Audit{
		{Name: "no_negative_balances", SQL: "SELECT COUNT(*) FROM stg WHERE balance < 0", Predicate: "= 0"},
		{Name: "has_rows", SQL: "SELECT COUNT(*) FROM stg", Predicate: "!= 0"},
	}

	adapter := &fakeAdapter{scalarResults: []any{int64(0), int64(3)}}
	a := NewAuditor(adapter, "stg_customers_1", cfg)

	err := a.Audit(context.Background())

	require.Error(t, err)

	var pipelineErr *Error
	require.ErrorAs(t, err, &pipelineErr)
	assert.Equal(t, FailureAuditFailedError, pipelineErr.Kind)
}

func TestAuditor_UnknownPredicateFails(t *testing.T) {
	cfg := testSourceConfig()
	cfg.Audits = []sourceconfig.Audit{
		{Name: "weird", SQL: "SELECT 1", Predicate: "odd"},
	}

	adapter := &fakeAdapter{scalarResults: []any{int64(0), int64(1)}}
	a := NewAuditor(adapter, "stg_customers_1", cfg)

	err := a.Audit(context.Background())

	require.Error(t, err)
}

func TestAuditor_ComparisonPredicatePasses(t *testing.T) {
	cfg := testSourceConfig()
	cfg.Audits = []sourceconfig.Audit{
		{Name: "has_rows", SQL: "SELECT COUNT(*) FROM stg", Predicate: "> 0"},
	}

	adapter := &fakeAdapter{scalarResults: []any{int64(0), int64(5)}}
	a := NewAuditor(adapter, "stg_customers_1", cfg)

	err := a.Audit(context.Background())

	require.NoError(t, err)
}

func TestAuditor_ComparisonPredicateFails(t *testing.T) {
	cfg := testSourceConfig()
	cfg.Audits = []sourceconfig.Audit{
		{Name: "has_rows", SQL: "SELECT COUNT(*) FROM stg", Predicate: "> 0"},
	}

	adapter := &fakeAdapter{scalarResults: []any{int64(0), int64(0)}}
	a := NewAuditor(adapter, "stg_customers_1", cfg)

	err := a.Audit(context.Background())

	require.Error(t, err)

	var pipelineErr *Error
	require.ErrorAs(t, err, &pipelineErr)
	assert.Equal(t, FailureAuditFailedError, pipelineErr.Kind)
}

func TestAuditor_GrainCheckQueryErrorWrapsAsAuditFailed(t *testing.T) {
	adapter := &fakeAdapter{scalarErr: errors.New("relation does not exist")}
	a := NewAuditor(adapter, "stg_customers_1", testSourceConfig())

	err := a.Audit(context.Background())

	require.Error(t, err)

	var pipelineErr *Error
	require.ErrorAs(t, err, &pipelineErr)
	assert.Equal(t, FailureAuditFailedError, pipelineErr.Kind)
}
