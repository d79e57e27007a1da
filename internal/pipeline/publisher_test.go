package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublisher_PublishMergesAndSelfHealsDLQ(t *testing.T) {
	adapter := &fakeAdapter{mergeRows: 2}
	dlq := &fakeDLQCleaner{}
	p := NewPublisher(adapter, dlq, "stg_customers_1", testSourceConfig())

	published, err := p.Publish(context.Background(), []string{"1", "2"})

	require.NoError(t, err)
	assert.Equal(t, int64(2), published)
	assert.Equal(t, "customers", dlq.deletedSource)
	assert.Equal(t, []string{"1", "2"}, dlq.deletedKeys)
}

func TestPublisher_PublishSkipsDLQCleanupWhenNoGrainKeys(t *testing.T) {
	adapter := &fakeAdapter{mergeRows: 0}
	dlq := &fakeDLQCleaner{}
	p := NewPublisher(adapter, dlq, "stg_customers_1", testSourceConfig())

	_, err := p.Publish(context.Background(), nil)

	require.NoError(t, err)
	assert.Empty(t, dlq.deletedKeys)
}

func TestPublisher_MergeFailureWrapsAsPublishFailed(t *testing.T) {
	adapter := &fakeAdapter{mergeErr: errors.New("deadlock detected")}
	p := NewPublisher(adapter, nil, "stg_customers_1", testSourceConfig())

	_, err := p.Publish(context.Background(), []string{"1"})

	require.Error(t, err)

	var pipelineErr *Error
	require.ErrorAs(t, err, &pipelineErr)
	assert.Equal(t, FailurePublishFailed, pipelineErr.Kind)
}

func TestPublisher_DLQCleanupFailureIsReturnedButPublishCountStands(t *testing.T) {
	adapter := &fakeAdapter{mergeRows: 5}
	dlq := &fakeDLQCleaner{err: errors.New("connection reset")}
	p := NewPublisher(adapter, dlq, "stg_customers_1", testSourceConfig())

	published, err := p.Publish(context.Background(), []string{"1"})

	require.Error(t, err)
	assert.Equal(t, int64(5), published)
}
