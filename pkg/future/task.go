package future

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// CompletionTask is a Future computed from one or two dependency futures.
// The computation runs at most once no matter how many dependency
// notifications race to trigger it.
type CompletionTask[T any] struct {
	*Promise[T]

	executor Executor
	fork     bool
	claimed  atomic.Bool
}

func newTask[T any](executor Executor, fork bool) *CompletionTask[T] {
	if executor == nil {
		executor = Inline
	}
	return &CompletionTask[T]{
		Promise:  NewPromise[T](),
		executor: executor,
		fork:     fork,
	}
}

// NewCompletionTask returns a task that computes fn from dep's value once
// dep succeeds. A failed or cancelled dep fails or cancels the task with the
// same cause. With fork set, fn runs on executor rather than on the
// goroutine that completed dep.
func NewCompletionTask[D, T any](executor Executor, dep Future[D], fork bool, fn func(D) (T, error)) *CompletionTask[T] {
	t := newTask[T](executor, fork)
	dep.OnComplete(func(v D, err error) {
		if err != nil {
			t.propagate(err)
			return
		}
		t.schedule(func() (T, error) { return fn(v) })
	})
	return t
}

// Then is NewCompletionTask running inline.
func Then[D, T any](dep Future[D], fn func(D) (T, error)) *CompletionTask[T] {
	return NewCompletionTask(Inline, dep, false, fn)
}

// Both returns a task that computes fn once both dependencies succeed. It
// fails or is cancelled as soon as either dependency does; when both have
// already failed the primary cause wins.
func Both[A, B, T any](executor Executor, primary Future[A], secondary Future[B], fork bool, fn func(A, B) (T, error)) *CompletionTask[T] {
	t := newTask[T](executor, fork)
	check := func() {
		pv, perr, pdone := primary.Peek()
		sv, serr, sdone := secondary.Peek()
		switch {
		case pdone && perr != nil:
			t.propagate(perr)
		case sdone && serr != nil:
			t.propagate(serr)
		case pdone && sdone:
			t.schedule(func() (T, error) { return fn(pv, sv) })
		}
	}
	primary.OnComplete(func(A, error) { check() })
	secondary.OnComplete(func(B, error) { check() })
	return t
}

// Either returns a task that computes fn from the first dependency to
// succeed. It fails only once both dependencies have failed, with the
// primary cause unless the primary was merely cancelled.
func Either[T, R any](executor Executor, primary, secondary Future[T], fork bool, fn func(T) (R, error)) *CompletionTask[R] {
	t := newTask[R](executor, fork)
	check := func() {
		pv, perr, pdone := primary.Peek()
		sv, serr, sdone := secondary.Peek()
		switch {
		case pdone && perr == nil:
			t.schedule(func() (R, error) { return fn(pv) })
		case sdone && serr == nil:
			t.schedule(func() (R, error) { return fn(sv) })
		case pdone && sdone:
			if !errors.Is(perr, ErrCancelled) {
				t.propagate(perr)
			} else {
				t.propagate(serr)
			}
		}
	}
	primary.OnComplete(func(T, error) { check() })
	secondary.OnComplete(func(T, error) { check() })
	return t
}

// claim is the single-writer guard. Exactly one caller ever gets true.
func (t *CompletionTask[T]) claim() bool {
	return t.claimed.CompareAndSwap(false, true)
}

// propagate resolves the task with a dependency's failure or cancellation.
func (t *CompletionTask[T]) propagate(err error) {
	if !t.claim() {
		return
	}
	if errors.Is(err, ErrCancelled) {
		t.Promise.Cancel()
		return
	}
	t.Promise.Fail(err)
}

// schedule claims the task and runs compute inline or on the executor.
func (t *CompletionTask[T]) schedule(compute func() (T, error)) {
	if !t.claim() {
		return
	}
	if !t.fork {
		t.run(compute)
		return
	}
	if err := t.executor.Execute(func() { t.run(compute) }); err != nil {
		t.Promise.Fail(fmt.Errorf("submit completion task: %w", err))
	}
}

func (t *CompletionTask[T]) run(compute func() (T, error)) {
	// A cancel may have landed while the task was queued.
	if t.Promise.IsDone() {
		return
	}
	v, err := call(compute)
	if err != nil {
		t.Promise.Fail(err)
		return
	}
	t.Promise.Complete(v)
}

// Cancel cancels the task. If the computation has not been claimed yet it
// never runs; otherwise its eventual result is discarded.
func (t *CompletionTask[T]) Cancel() bool {
	t.claim()
	return t.Promise.Cancel()
}

// Claimed reports whether the computation or a propagated outcome has been
// claimed.
func (t *CompletionTask[T]) Claimed() bool {
	return t.claimed.Load()
}

// call runs fn and converts a panic into an error.
func call[T any](fn func() (T, error)) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("future: task panicked: %v", r)
		}
	}()
	return fn()
}

// Compile-time interface satisfaction check.
var _ Future[struct{}] = (*CompletionTask[struct{}])(nil)
