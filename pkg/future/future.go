package future

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// State is the lifecycle state of a Future.
type State int32

const (
	// Pending indicates the future has not completed yet.
	Pending State = iota

	// Success indicates the future completed with a value.
	Success

	// Failure indicates the future completed with an error.
	Failure

	// Cancelled indicates the future was cancelled before completing.
	Cancelled

	// completing is the transient state held by the single writer while it
	// stores the result. Readers observe it as Pending.
	completing
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Pending, completing:
		return "PENDING"
	case Success:
		return "SUCCESS"
	case Failure:
		return "FAILURE"
	case Cancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

// Future errors.
var (
	// ErrCancelled is the error observed by waiters of a cancelled future.
	ErrCancelled = errors.New("future cancelled")

	// ErrPending is returned by Result on a future that has not completed.
	ErrPending = errors.New("future pending")

	// ErrNilFailure replaces a nil error passed to Fail.
	ErrNilFailure = errors.New("future failed without cause")
)

// Future is the read side of an asynchronous result.
type Future[T any] interface {
	// State returns the current state.
	State() State

	// IsDone reports whether the future reached a terminal state.
	IsDone() bool

	// Done returns a channel closed once the future is terminal.
	Done() <-chan struct{}

	// Await blocks until the future completes or ctx is done.
	Await(ctx context.Context) (T, error)

	// Result returns the outcome without blocking, or ErrPending.
	Result() (T, error)

	// Peek returns the outcome and whether the future is terminal.
	Peek() (value T, err error, done bool)

	// OnComplete registers fn to run once the future is terminal. If it
	// already is, fn runs immediately on the calling goroutine; otherwise it
	// runs on the goroutine that completes the future.
	OnComplete(fn func(T, error))

	// Cancel moves a pending future to Cancelled. It reports whether this
	// call performed the transition.
	Cancel() bool
}

// Promise is a Future completed explicitly by its owner.
// The zero value is not usable; create one with NewPromise.
type Promise[T any] struct {
	state atomic.Int32
	value T
	err   error
	done  chan struct{}

	mu        sync.Mutex
	fired     bool
	listeners []func(T, error)
}

// NewPromise returns a pending promise.
func NewPromise[T any]() *Promise[T] {
	return &Promise[T]{done: make(chan struct{})}
}

// Succeeded returns a future already completed with v.
func Succeeded[T any](v T) Future[T] {
	p := NewPromise[T]()
	p.Complete(v)
	return p
}

// Failed returns a future already failed with err.
func Failed[T any](err error) Future[T] {
	p := NewPromise[T]()
	p.Fail(err)
	return p
}

// Complete resolves the promise with v. It reports whether this call
// performed the transition.
func (p *Promise[T]) Complete(v T) bool {
	return p.finish(Success, v, nil)
}

// Fail resolves the promise with err. It reports whether this call
// performed the transition.
func (p *Promise[T]) Fail(err error) bool {
	if err == nil {
		err = ErrNilFailure
	}
	var zero T
	return p.finish(Failure, zero, err)
}

// Cancel implements Future.
func (p *Promise[T]) Cancel() bool {
	var zero T
	return p.finish(Cancelled, zero, ErrCancelled)
}

// Resolve completes the promise with v when err is nil and fails it
// otherwise. Errors matching ErrCancelled cancel the promise.
func (p *Promise[T]) Resolve(v T, err error) bool {
	switch {
	case err == nil:
		return p.Complete(v)
	case errors.Is(err, ErrCancelled):
		return p.Cancel()
	default:
		return p.Fail(err)
	}
}

func (p *Promise[T]) finish(state State, v T, err error) bool {
	if !p.state.CompareAndSwap(int32(Pending), int32(completing)) {
		return false
	}
	p.value = v
	p.err = err
	p.state.Store(int32(state))
	close(p.done)

	p.mu.Lock()
	p.fired = true
	listeners := p.listeners
	p.listeners = nil
	p.mu.Unlock()

	for _, fn := range listeners {
		fn(v, err)
	}
	return true
}

// State implements Future.
func (p *Promise[T]) State() State {
	s := State(p.state.Load())
	if s == completing {
		return Pending
	}
	return s
}

// IsDone implements Future.
func (p *Promise[T]) IsDone() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Done implements Future.
func (p *Promise[T]) Done() <-chan struct{} {
	return p.done
}

// Await implements Future.
func (p *Promise[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-p.done:
		return p.value, p.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Result implements Future.
func (p *Promise[T]) Result() (T, error) {
	v, err, done := p.Peek()
	if !done {
		return v, ErrPending
	}
	return v, err
}

// Peek implements Future.
func (p *Promise[T]) Peek() (T, error, bool) {
	if !p.IsDone() {
		var zero T
		return zero, nil, false
	}
	return p.value, p.err, true
}

// OnComplete implements Future.
func (p *Promise[T]) OnComplete(fn func(T, error)) {
	p.mu.Lock()
	if !p.fired {
		p.listeners = append(p.listeners, fn)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	fn(p.value, p.err)
}

// Compile-time interface satisfaction check.
var _ Future[struct{}] = (*Promise[struct{}])(nil)
