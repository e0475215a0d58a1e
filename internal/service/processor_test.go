package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/raphaelgruber/urdufact-go/internal/metrics"
	"github.com/raphaelgruber/urdufact-go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newItem(t *testing.T, id string, fields ...models.Field) models.WorkItem {
	t.Helper()
	item, err := models.NewWorkItem(id, fields...)
	require.NoError(t, err)
	return item
}

// failingUntil fails every call before the n-th and tags the enrichment with
// the attempt number that succeeded. n <= 0 never succeeds.
func failingUntil(n int, calls *atomic.Int32) TransformerFunc {
	return func(_ context.Context, item models.WorkItem) (models.Enrichment, error) {
		c := int(calls.Add(1))
		if n <= 0 || c < n {
			return nil, fmt.Errorf("rate limited on call %d", c)
		}
		return models.Enrichment{
			{Name: models.FieldQuestionUrdu, Value: fmt.Sprintf("attempt-%d", c)},
		}, nil
	}
}

func TestProcessAlwaysFailing(t *testing.T) {
	var calls atomic.Int32
	p := NewProcessor(ProcessorConfig{})

	_, err := p.Process(context.Background(), newItem(t, "1"), failingUntil(0, &calls))
	require.Error(t, err)

	assert.Equal(t, int32(5), calls.Load())
	assert.True(t, errors.Is(err, ErrRetryExhausted))

	var rerr *RetryExhaustedError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "1", rerr.ID)
	assert.Equal(t, 5, rerr.Attempts)
	require.NotNil(t, rerr.Last)
	assert.Equal(t, 5, rerr.Last.Attempt)

	var tf *TransformerFailure
	require.ErrorAs(t, err, &tf)
	assert.Contains(t, tf.Error(), "rate limited on call 5")
}

func TestProcessShortCircuitsOnFirstSuccess(t *testing.T) {
	var calls atomic.Int32
	p := NewProcessor(ProcessorConfig{})

	item := newItem(t, "q1",
		models.Field{Name: models.FieldQuestion, Value: "What is the capital of Pakistan?"},
		models.Field{Name: models.FieldQuestionUrdu, Value: "stale"},
	)
	out, err := p.Process(context.Background(), item, failingUntil(3, &calls))
	require.NoError(t, err)

	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, "attempt-3", out.Text(models.FieldQuestionUrdu))
	assert.Equal(t, "What is the capital of Pakistan?", out.Text(models.FieldQuestion))
	assert.Equal(t, "stale", item.Text(models.FieldQuestionUrdu), "input item is not modified")
}

func TestProcessCustomAttempts(t *testing.T) {
	var calls atomic.Int32
	p := NewProcessor(ProcessorConfig{MaxAttempts: 2, Delay: time.Millisecond})

	_, err := p.Process(context.Background(), newItem(t, "1"), failingUntil(0, &calls))
	assert.ErrorIs(t, err, ErrRetryExhausted)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 2, p.MaxAttempts())
}

func TestProcessAttemptTimeout(t *testing.T) {
	var calls atomic.Int32
	p := NewProcessor(ProcessorConfig{MaxAttempts: 2, Timeout: 10 * time.Millisecond})

	slow := TransformerFunc(func(ctx context.Context, _ models.WorkItem) (models.Enrichment, error) {
		calls.Add(1)
		<-ctx.Done()
		return nil, ctx.Err()
	})

	_, err := p.Process(context.Background(), newItem(t, "slow"), slow)
	assert.ErrorIs(t, err, ErrRetryExhausted)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(2), calls.Load())
}

func TestProcessParentCancelStops(t *testing.T) {
	var calls atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())

	tr := TransformerFunc(func(context.Context, models.WorkItem) (models.Enrichment, error) {
		calls.Add(1)
		cancel()
		return nil, errors.New("boom")
	})

	_, err := NewProcessor(ProcessorConfig{}).Process(ctx, newItem(t, "1"), tr)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, errors.Is(err, ErrRetryExhausted))
	assert.Equal(t, int32(1), calls.Load())
}

func TestProcessRecoversPanics(t *testing.T) {
	var calls atomic.Int32
	tr := TransformerFunc(func(context.Context, models.WorkItem) (models.Enrichment, error) {
		if calls.Add(1) == 1 {
			panic("nil map")
		}
		return models.Enrichment{{Name: models.FieldResponse, Value: true}}, nil
	})

	c := metrics.NewCollector()
	out, err := NewProcessor(ProcessorConfig{Metrics: c}).Process(context.Background(), newItem(t, "1"), tr)
	require.NoError(t, err)

	v, ok := out.Bool(models.FieldResponse)
	assert.True(t, ok)
	assert.True(t, v)
	assert.Equal(t, int64(2), c.Snapshot().Transform.Count)
}
