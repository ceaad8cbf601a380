package scheduler

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/sourcegraph/conc/pool"

	"github.com/PorkStudios/PorkLib-sub015/pkg/future"
)

// ErrQueueFull is returned by QueuedPool when its queue has no room.
var ErrQueueFull = errors.New("task queue full")

// QueuedPool runs tasks on a fixed number of workers fed by a bounded
// queue. Execute never blocks.
type QueuedPool struct {
	logger *slog.Logger
	tasks  chan func()
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewQueuedPool starts workers goroutines sharing a queue of the given
// capacity.
func NewQueuedPool(workers, queue int, logger *slog.Logger) *QueuedPool {
	if workers < 1 {
		workers = 1
	}
	if queue < 0 {
		queue = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &QueuedPool{
		logger: logger,
		tasks:  make(chan func(), queue),
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *QueuedPool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		runSafely(p.logger, task)
	}
}

// Execute queues task, failing with ErrQueueFull when no slot is free.
func (p *QueuedPool) Execute(task func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return future.ErrExecutorClosed
	}
	select {
	case p.tasks <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting tasks and waits for queued ones to finish.
func (p *QueuedPool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()

	p.wg.Wait()
	return nil
}

// BlockingPool bounds the number of concurrently running tasks. Execute
// blocks until a slot is free.
type BlockingPool struct {
	logger *slog.Logger
	pool   *pool.Pool

	mu         sync.RWMutex
	closed     bool
	submitting sync.WaitGroup
}

// NewBlockingPool creates a pool running at most size tasks at once.
func NewBlockingPool(size int, logger *slog.Logger) *BlockingPool {
	if size < 1 {
		size = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BlockingPool{
		logger: logger,
		pool:   pool.New().WithMaxGoroutines(size),
	}
}

// Execute runs task once a slot is free. The wait for a slot happens
// without holding the pool lock, so tasks may submit further tasks while
// Close is pending.
func (p *BlockingPool) Execute(task func()) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return future.ErrExecutorClosed
	}
	p.submitting.Add(1)
	p.mu.RUnlock()

	defer p.submitting.Done()
	p.pool.Go(func() { runSafely(p.logger, task) })
	return nil
}

// Close stops accepting tasks and waits for running ones, including tasks
// that were still waiting for a slot.
func (p *BlockingPool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.submitting.Wait()
	p.pool.Wait()
	return nil
}

func runSafely(logger *slog.Logger, task func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("pooled task panicked", "panic", r)
		}
	}()
	task()
}

// Compile-time interface satisfaction checks.
var (
	_ future.Executor = (*QueuedPool)(nil)
	_ future.Executor = (*BlockingPool)(nil)
)
