package transport

import (
	"sync"
)

// DefaultWriteQueueDepth is the default number of queued writes per connection.
const DefaultWriteQueueDepth = 256

// Sink is the output a WriteQueue drains into.
type Sink interface {
	// WriteFrame writes one framed message.
	WriteFrame(data []byte) error

	// Flush pushes buffered output to the network.
	Flush() error
}

type writeItem struct {
	data  []byte
	done  func(error)
	flush bool
}

// WriteQueue serialises writes to a Sink on a single goroutine.
type WriteQueue struct {
	sink    Sink
	onError func(error)
	items   chan writeItem
	exited  chan struct{}

	mu      sync.RWMutex
	closing bool
	aborted bool
}

// NewWriteQueue starts a writer draining into sink. onError is called once
// with the first write failure; the queue discards everything after it.
func NewWriteQueue(sink Sink, depth int, onError func(error)) *WriteQueue {
	if depth <= 0 {
		depth = DefaultWriteQueueDepth
	}
	q := &WriteQueue{
		sink:    sink,
		onError: onError,
		items:   make(chan writeItem, depth),
		exited:  make(chan struct{}),
	}
	go q.run()
	return q
}

// Enqueue queues data without blocking.
func (q *WriteQueue) Enqueue(data []byte, done func(error)) error {
	return q.push(writeItem{data: data, done: done})
}

// RequestFlush queues a flush marker.
func (q *WriteQueue) RequestFlush() error {
	return q.push(writeItem{flush: true})
}

func (q *WriteQueue) push(it writeItem) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closing {
		return ErrTransportClosed
	}
	select {
	case q.items <- it:
		return nil
	default:
		return ErrWriteBufferFull
	}
}

// Open reports whether the queue accepts writes.
func (q *WriteQueue) Open() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return !q.closing
}

// Close stops accepting writes. Queued writes are still written. The
// returned channel is closed when the writer has exited.
func (q *WriteQueue) Close() <-chan struct{} {
	q.mu.Lock()
	if !q.closing {
		q.closing = true
		close(q.items)
	}
	q.mu.Unlock()
	return q.exited
}

// Abort stops accepting writes and discards queued ones.
func (q *WriteQueue) Abort() <-chan struct{} {
	q.mu.Lock()
	q.aborted = true
	if !q.closing {
		q.closing = true
		close(q.items)
	}
	q.mu.Unlock()
	return q.exited
}

// Done is closed when the writer has exited.
func (q *WriteQueue) Done() <-chan struct{} {
	return q.exited
}

func (q *WriteQueue) isAborted() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.aborted
}

func (q *WriteQueue) run() {
	defer close(q.exited)

	var failed error
	for it := range q.items {
		if failed != nil || q.isAborted() {
			finish(it, ErrTransportClosed)
			continue
		}

		var err error
		if it.flush {
			err = q.sink.Flush()
		} else {
			err = q.sink.WriteFrame(it.data)
			if err == nil && len(q.items) == 0 {
				err = q.sink.Flush()
			}
		}
		finish(it, err)

		if err != nil {
			failed = err
			if q.onError != nil {
				q.onError(err)
			}
		}
	}

	if failed == nil && !q.isAborted() {
		if err := q.sink.Flush(); err != nil && q.onError != nil {
			q.onError(err)
		}
	}
}

func finish(it writeItem, err error) {
	if it.done != nil {
		it.done(err)
	}
}
