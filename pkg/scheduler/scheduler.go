package scheduler

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/PorkStudios/PorkLib-sub015/pkg/future"
)

// ErrSchedulerClosed is returned for work scheduled after Close.
var ErrSchedulerClosed = errors.New("scheduler closed")

// Config configures a Scheduler.
type Config struct {
	// Executor runs due tasks. Defaults to future.Goroutine.
	Executor future.Executor

	// Logger receives task failures. Defaults to slog.Default().
	Logger *slog.Logger
}

// Scheduler runs tasks at a later time or repeatedly.
type Scheduler struct {
	exec   future.Executor
	logger *slog.Logger

	mu      sync.Mutex
	closed  bool
	pending map[*time.Timer]func()
	repeats map[*Repeating]struct{}
}

// New creates a scheduler.
func New(cfg Config) *Scheduler {
	if cfg.Executor == nil {
		cfg.Executor = future.Goroutine
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Scheduler{
		exec:    cfg.Executor,
		logger:  cfg.Logger,
		pending: make(map[*time.Timer]func()),
		repeats: make(map[*Repeating]struct{}),
	}
}

// Executor returns the executor due tasks run on.
func (s *Scheduler) Executor() future.Executor {
	return s.exec
}

// Submit runs task as soon as the executor allows.
func (s *Scheduler) Submit(task func() error) future.Future[struct{}] {
	return s.ScheduleIn(task, 0)
}

// Schedule runs task at the given time.
func (s *Scheduler) Schedule(task func() error, at time.Time) future.Future[struct{}] {
	return s.ScheduleIn(task, time.Until(at))
}

// ScheduleIn runs task after delay.
func (s *Scheduler) ScheduleIn(task func() error, delay time.Duration) future.Future[struct{}] {
	return Call(s, delay, func() (struct{}, error) {
		return struct{}{}, task()
	})
}

// Call runs fn on s after delay and returns a future of its result.
// Cancelling the future before fn is due stops the timer.
func Call[T any](s *Scheduler, delay time.Duration, fn func() (T, error)) future.Future[T] {
	p := future.NewPromise[T]()

	run := func() {
		if p.IsDone() {
			return
		}
		if err := s.exec.Execute(func() {
			if p.IsDone() {
				return
			}
			v, err := fn()
			p.Resolve(v, err)
		}); err != nil {
			p.Fail(fmt.Errorf("submit task: %w", err))
		}
	}

	if delay <= 0 {
		s.mu.Lock()
		closed := s.closed
		s.mu.Unlock()
		if closed {
			p.Fail(ErrSchedulerClosed)
			return p
		}
		run()
		return p
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		p.Fail(ErrSchedulerClosed)
		return p
	}
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.pending, timer)
		s.mu.Unlock()
		run()
	})
	s.pending[timer] = func() { p.Cancel() }
	s.mu.Unlock()

	p.OnComplete(func(_ T, err error) {
		if errors.Is(err, future.ErrCancelled) {
			s.mu.Lock()
			if timer.Stop() {
				delete(s.pending, timer)
			}
			s.mu.Unlock()
		}
	})
	return p
}

// ScheduleRepeating runs task first at start and then every interval for as
// long as it returns true. Runs never overlap. A run that returns false, or
// panics, ends the repetition.
func (s *Scheduler) ScheduleRepeating(task func() bool, start time.Time, interval time.Duration) (*Repeating, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("scheduler: non-positive interval %s", interval)
	}

	r := &Repeating{
		s:        s,
		task:     task,
		interval: interval,
		next:     start,
		done:     make(chan struct{}),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSchedulerClosed
	}
	s.repeats[r] = struct{}{}
	s.mu.Unlock()

	r.mu.Lock()
	r.arm(time.Until(start))
	r.mu.Unlock()
	return r, nil
}

func (s *Scheduler) forget(r *Repeating) {
	s.mu.Lock()
	delete(s.repeats, r)
	s.mu.Unlock()
}

// Close stops all timers. Pending one-shot tasks are cancelled and
// repeating tasks are stopped; runs already in progress finish normally.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	pending := s.pending
	repeats := s.repeats
	s.pending = make(map[*time.Timer]func())
	s.repeats = make(map[*Repeating]struct{})
	s.mu.Unlock()

	for timer, cancel := range pending {
		timer.Stop()
		cancel()
	}
	for r := range repeats {
		r.Stop()
	}
	return nil
}
