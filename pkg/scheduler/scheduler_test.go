package scheduler_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PorkStudios/PorkLib-sub015/pkg/future"
	"github.com/PorkStudios/PorkLib-sub015/pkg/scheduler"
)

func newScheduler(t *testing.T) *scheduler.Scheduler {
	t.Helper()
	s := scheduler.New(scheduler.Config{})
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func awaitDone[T any](t *testing.T, f future.Future[T]) (T, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return f.Await(ctx)
}

func TestSubmit(t *testing.T) {
	s := newScheduler(t)
	var ran atomic.Bool
	_, err := awaitDone(t, s.Submit(func() error {
		ran.Store(true)
		return nil
	}))
	require.NoError(t, err)
	assert.True(t, ran.Load())
}

func TestScheduleInPropagatesError(t *testing.T) {
	s := newScheduler(t)
	cause := errors.New("task failed")
	_, err := awaitDone(t, s.ScheduleIn(func() error { return cause }, 5*time.Millisecond))
	assert.ErrorIs(t, err, cause)
}

func TestScheduleAt(t *testing.T) {
	s := newScheduler(t)
	start := time.Now()
	_, err := awaitDone(t, s.Schedule(func() error { return nil }, start.Add(20*time.Millisecond)))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestCallReturnsValue(t *testing.T) {
	s := newScheduler(t)
	v, err := awaitDone(t, scheduler.Call(s, time.Millisecond, func() (string, error) {
		return "done", nil
	}))
	require.NoError(t, err)
	assert.Equal(t, "done", v)
}

func TestCancelBeforeDue(t *testing.T) {
	s := newScheduler(t)
	var ran atomic.Bool
	f := s.ScheduleIn(func() error {
		ran.Store(true)
		return nil
	}, 50*time.Millisecond)

	require.True(t, f.Cancel())
	time.Sleep(100 * time.Millisecond)
	assert.False(t, ran.Load())
	assert.Equal(t, future.Cancelled, f.State())
}

func TestCloseCancelsPending(t *testing.T) {
	s := scheduler.New(scheduler.Config{})
	f := s.ScheduleIn(func() error { return nil }, time.Hour)
	require.NoError(t, s.Close())
	assert.Equal(t, future.Cancelled, f.State())

	_, err := s.Submit(func() error { return nil }).Result()
	assert.ErrorIs(t, err, scheduler.ErrSchedulerClosed)
	_, err = s.ScheduleRepeating(func() bool { return true }, time.Now(), time.Second)
	assert.ErrorIs(t, err, scheduler.ErrSchedulerClosed)
}

func TestScheduleRepeatingStopsWhenTaskReturnsFalse(t *testing.T) {
	s := newScheduler(t)
	var count atomic.Int32
	r, err := s.ScheduleRepeating(func() bool {
		return count.Add(1) < 3
	}, time.Now(), 5*time.Millisecond)
	require.NoError(t, err)

	select {
	case <-r.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("repeating task did not finish")
	}
	assert.Equal(t, int32(3), count.Load())
	assert.Equal(t, uint64(3), r.Runs())
	assert.False(t, r.Stop())
}

func TestScheduleRepeatingNeverOverlaps(t *testing.T) {
	s := newScheduler(t)
	var active, maxActive, runs atomic.Int32

	r, err := s.ScheduleRepeating(func() bool {
		n := active.Add(1)
		for {
			m := maxActive.Load()
			if n <= m || maxActive.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(15 * time.Millisecond) // longer than the interval
		active.Add(-1)
		return runs.Add(1) < 6
	}, time.Now(), 2*time.Millisecond)
	require.NoError(t, err)

	select {
	case <-r.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("repeating task did not finish")
	}
	assert.Equal(t, int32(1), maxActive.Load())
	assert.Equal(t, int32(6), runs.Load())
}

func TestScheduleRepeatingStop(t *testing.T) {
	s := newScheduler(t)
	var count atomic.Int32
	r, err := s.ScheduleRepeating(func() bool {
		count.Add(1)
		return true
	}, time.Now(), 5*time.Millisecond)
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)
	require.True(t, r.Stop())
	<-r.Done()
	seen := count.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, seen, count.Load())
}

func TestScheduleRepeatingPanicEnds(t *testing.T) {
	s := newScheduler(t)
	r, err := s.ScheduleRepeating(func() bool { panic("tick") }, time.Now(), time.Millisecond)
	require.NoError(t, err)
	select {
	case <-r.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("panicking task kept repeating")
	}
}

func TestScheduleRepeatingRejectsInterval(t *testing.T) {
	s := newScheduler(t)
	_, err := s.ScheduleRepeating(func() bool { return false }, time.Now(), 0)
	assert.Error(t, err)
}
