package scheduler

import (
	"sync"
	"sync/atomic"
	"time"
)

// Repeating is a handle to a task started with ScheduleRepeating.
type Repeating struct {
	s        *Scheduler
	task     func() bool
	interval time.Duration

	mu       sync.Mutex
	timer    *time.Timer
	next     time.Time
	running  bool
	stopped  bool
	doneOnce sync.Once
	done     chan struct{}

	runs atomic.Uint64
}

// arm schedules the next firing. Caller holds r.mu.
func (r *Repeating) arm(delay time.Duration) {
	if delay < 0 {
		delay = 0
	}
	r.timer = time.AfterFunc(delay, r.fire)
}

func (r *Repeating) fire() {
	r.mu.Lock()
	if r.stopped || r.running {
		r.mu.Unlock()
		return
	}
	r.running = true
	r.mu.Unlock()

	if err := r.s.exec.Execute(r.run); err != nil {
		r.s.logger.Warn("repeating task rejected by executor", "error", err)
		r.mu.Lock()
		r.running = false
		r.stopped = true
		r.mu.Unlock()
		r.finish()
	}
}

func (r *Repeating) run() {
	again := r.call()
	r.runs.Add(1)

	r.mu.Lock()
	r.running = false
	if r.stopped || !again {
		r.stopped = true
		r.mu.Unlock()
		r.finish()
		return
	}
	// Fixed rate while the task keeps up; a late run delays the next one.
	r.next = r.next.Add(r.interval)
	if now := time.Now(); r.next.Before(now) {
		r.next = now
	}
	r.arm(time.Until(r.next))
	r.mu.Unlock()
}

func (r *Repeating) call() (again bool) {
	defer func() {
		if p := recover(); p != nil {
			r.s.logger.Error("repeating task panicked", "panic", p)
			again = false
		}
	}()
	return r.task()
}

func (r *Repeating) finish() {
	r.doneOnce.Do(func() {
		close(r.done)
		r.s.forget(r)
	})
}

// Stop ends the repetition. A run in progress completes, but no further run
// starts. Stop reports whether this call stopped the task.
func (r *Repeating) Stop() bool {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return false
	}
	r.stopped = true
	if r.timer != nil {
		r.timer.Stop()
	}
	running := r.running
	r.mu.Unlock()

	if !running {
		r.finish()
	}
	return true
}

// Done is closed once the repetition ended and no run is in progress.
func (r *Repeating) Done() <-chan struct{} {
	return r.done
}

// Runs returns the number of completed runs.
func (r *Repeating) Runs() uint64 {
	return r.runs.Load()
}
