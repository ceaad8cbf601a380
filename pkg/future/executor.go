package future

import "errors"

// ErrExecutorClosed is returned by executors that no longer accept work.
var ErrExecutorClosed = errors.New("executor closed")

// Executor runs submitted work, possibly on another goroutine.
type Executor interface {
	// Execute schedules task. An error means task will never run.
	Execute(task func()) error
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(task func()) error

// Execute calls f(task).
func (f ExecutorFunc) Execute(task func()) error {
	return f(task)
}

// Inline runs every task synchronously on the submitting goroutine.
var Inline Executor = ExecutorFunc(func(task func()) error {
	task()
	return nil
})

// Goroutine runs every task on a fresh goroutine.
var Goroutine Executor = ExecutorFunc(func(task func()) error {
	go task()
	return nil
})

// Run executes fn on executor and returns a future of its result.
func Run[T any](executor Executor, fn func() (T, error)) Future[T] {
	p := NewPromise[T]()
	if err := executor.Execute(func() {
		if p.IsDone() {
			return
		}
		v, err := call(fn)
		p.Resolve(v, err)
	}); err != nil {
		p.Fail(err)
	}
	return p
}
