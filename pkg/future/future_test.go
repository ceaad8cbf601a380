package future_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PorkStudios/PorkLib-sub015/pkg/future"
)

func TestPromiseCompletesOnce(t *testing.T) {
	p := future.NewPromise[int]()
	assert.Equal(t, future.Pending, p.State())

	assert.True(t, p.Complete(1))
	assert.False(t, p.Complete(2))
	assert.False(t, p.Fail(errors.New("late")))
	assert.False(t, p.Cancel())

	v, err := p.Result()
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.Equal(t, future.Success, p.State())
}

func TestPromiseResultPending(t *testing.T) {
	p := future.NewPromise[string]()
	_, err := p.Result()
	assert.ErrorIs(t, err, future.ErrPending)
	_, _, done := p.Peek()
	assert.False(t, done)
}

func TestPromiseCancel(t *testing.T) {
	p := future.NewPromise[int]()
	require.True(t, p.Cancel())
	assert.Equal(t, future.Cancelled, p.State())
	_, err := p.Await(context.Background())
	assert.ErrorIs(t, err, future.ErrCancelled)
}

func TestPromiseFailNil(t *testing.T) {
	p := future.NewPromise[int]()
	p.Fail(nil)
	_, err := p.Result()
	assert.ErrorIs(t, err, future.ErrNilFailure)
}

func TestPromiseAwaitContext(t *testing.T) {
	p := future.NewPromise[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := p.Await(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPromiseListeners(t *testing.T) {
	p := future.NewPromise[int]()
	var before, after atomic.Int32
	p.OnComplete(func(v int, err error) { before.Store(int32(v)) })
	p.Complete(5)
	p.OnComplete(func(v int, err error) { after.Store(int32(v)) })
	assert.Equal(t, int32(5), before.Load())
	assert.Equal(t, int32(5), after.Load())
}

func TestPromiseConcurrentCompletion(t *testing.T) {
	for i := 0; i < 100; i++ {
		p := future.NewPromise[int]()
		var wins atomic.Int32
		var calls atomic.Int32
		p.OnComplete(func(int, error) { calls.Add(1) })

		var wg sync.WaitGroup
		for g := 0; g < 8; g++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				if p.Complete(n) {
					wins.Add(1)
				}
			}(g)
		}
		wg.Wait()
		assert.Equal(t, int32(1), wins.Load())
		assert.Equal(t, int32(1), calls.Load())
	}
}

func TestRunRecoversPanic(t *testing.T) {
	f := future.Run(future.Inline, func() (int, error) {
		panic("boom")
	})
	_, err := f.Result()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestRunExecutorRejects(t *testing.T) {
	reject := future.ExecutorFunc(func(func()) error { return future.ErrExecutorClosed })
	f := future.Run(reject, func() (int, error) { return 1, nil })
	_, err := f.Result()
	assert.ErrorIs(t, err, future.ErrExecutorClosed)
}
