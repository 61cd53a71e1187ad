package concurrency

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunBounded_AllTasksRunOnce(t *testing.T) {
	const n = 1000
	var calls [n]atomic.Int32

	results := RunBounded(context.Background(), 16, n, func(_ context.Context, i int) (int, error) {
		calls[i].Add(1)
		return i * 2, nil
	})

	require.Len(t, results, n)
	for i, r := range results {
		assert.Equal(t, i, r.Index)
		assert.Equal(t, i*2, r.Value)
		assert.NoError(t, r.Err)
		assert.Equal(t, int32(1), calls[i].Load(), "task %d", i)
	}
}

func TestRunBounded_RespectsWorkerLimit(t *testing.T) {
	const workers = 4
	var inFlight, peak atomic.Int32

	RunBounded(context.Background(), workers, 64, func(_ context.Context, _ int) (struct{}, error) {
		cur := inFlight.Add(1)
		for {
			p := peak.Load()
			if cur <= p || peak.CompareAndSwap(p, cur) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		inFlight.Add(-1)
		return struct{}{}, nil
	})

	assert.LessOrEqual(t, peak.Load(), int32(workers))
	assert.Greater(t, peak.Load(), int32(0))
}

func TestRunBounded_FailureDoesNotShortCircuit(t *testing.T) {
	var ran atomic.Int32
	boom := errors.New("boom")

	results := RunBounded(context.Background(), 2, 10, func(_ context.Context, i int) (int, error) {
		ran.Add(1)
		if i%3 == 0 {
			return 0, boom
		}
		return i, nil
	})

	assert.Equal(t, int32(10), ran.Load())
	failed := Failed(results)
	require.Len(t, failed, 4)
	for k, idx := range []int{0, 3, 6, 9} {
		assert.Equal(t, idx, failed[k].Index)
		assert.ErrorIs(t, failed[k].Err, boom)
	}
}

func TestRunBounded_EdgeCases(t *testing.T) {
	assert.Nil(t, RunBounded(context.Background(), 4, 0, func(context.Context, int) (int, error) {
		t.Fatal("fn must not be called")
		return 0, nil
	}))

	// workers < 1 behaves as a single worker
	results := RunBounded(context.Background(), 0, 3, func(_ context.Context, i int) (int, error) { return i, nil })
	require.Len(t, results, 3)
	assert.Equal(t, 2, results[2].Value)
}
