package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTracer_NilProviderFallsBackToNoop(t *testing.T) {
	tr := NewTracer(nil)
	require.NotNil(t, tr)

	_, span := tr.StartFileStage(context.Background(), "validate", "customers_csv", "customers.csv")
	require.NotNil(t, span)
	span.End()
}

func TestEndWithError_RecordsErrorWithoutPanicking(t *testing.T) {
	tr := NewDefaultTracer()
	_, span := tr.StartFileStage(context.Background(), "write", "orders_json", "orders.json")

	assert.NotPanics(t, func() {
		EndWithError(span, errors.New("bulk insert failed"))
	})
}

func TestEndWithError_SuccessDoesNotPanic(t *testing.T) {
	tr := NewDefaultTracer()
	_, span := tr.StartFileStage(context.Background(), "publish", "orders_json", "orders.json")

	assert.NotPanics(t, func() {
		EndWithError(span, nil)
	})
}
