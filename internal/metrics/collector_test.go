package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorTiming(t *testing.T) {
	c := NewCollector()
	c.RecordTiming(OpPersist, 10*time.Millisecond)
	c.RecordTiming(OpPersist, 30*time.Millisecond)

	snap := c.Snapshot()
	require.NotNil(t, snap.Persist)
	assert.Equal(t, int64(2), snap.Persist.Count)
	assert.Equal(t, int64(0), snap.Persist.Failures)
	assert.Equal(t, int64(40), snap.Persist.TotalTimeMs)
	assert.Equal(t, 20.0, snap.Persist.AvgTimeMs)
	assert.Equal(t, int64(10), snap.Persist.MinTimeMs)
	assert.Equal(t, int64(30), snap.Persist.MaxTimeMs)
	assert.Nil(t, snap.Persist.Tokens)
	assert.Nil(t, snap.Search)
}

func TestCollectorObserveFailures(t *testing.T) {
	c := NewCollector()
	c.Observe(OpTransform, 5*time.Millisecond, errors.New("timeout"))
	c.Observe(OpTransform, 2*time.Millisecond, nil)

	snap := c.Snapshot().Transform
	require.NotNil(t, snap)
	assert.Equal(t, int64(2), snap.Count)
	assert.Equal(t, int64(1), snap.Failures)
	assert.Equal(t, int64(2), snap.MinTimeMs)
	assert.Equal(t, int64(5), snap.MaxTimeMs)
}

func TestCollectorLLMUsage(t *testing.T) {
	c := NewCollector()

	var wg sync.WaitGroup
	for i := 1; i <= 10; i++ {
		wg.Add(1)
		go func(n int64) {
			defer wg.Done()
			c.RecordLLMUsage(OpLLMGenerate, time.Millisecond, n*100, n)
		}(int64(i))
	}
	wg.Wait()

	snap := c.Snapshot()
	require.NotNil(t, snap.LLMGenerate)
	require.NotNil(t, snap.LLMGenerate.Tokens)
	assert.Equal(t, int64(10), snap.LLMGenerate.Count)
	assert.Equal(t, int64(5500), snap.LLMGenerate.Tokens.Input)
	assert.Equal(t, int64(55), snap.LLMGenerate.Tokens.Output)
	assert.Equal(t, 550.0, snap.LLMGenerate.Tokens.AvgInput)
	assert.Equal(t, int64(1000), snap.LLMGenerate.Tokens.MaxInput)
	assert.Equal(t, int64(10), snap.LLMGenerate.Tokens.MaxOutput)

	ops := c.Operations()
	assert.Len(t, ops, 1)
	assert.Contains(t, ops, OpLLMGenerate)
}
