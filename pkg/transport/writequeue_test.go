package transport

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type recordingSink struct {
	mu      sync.Mutex
	frames  [][]byte
	flushes int
	failAt  int
	block   chan struct{}
}

func (s *recordingSink) WriteFrame(data []byte) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAt > 0 && len(s.frames)+1 == s.failAt {
		return errors.New("sink failure")
	}
	s.frames = append(s.frames, append([]byte(nil), data...))
	return nil
}

func (s *recordingSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushes++
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func waitClosed(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("writer did not exit")
	}
}

func TestWriteQueueWritesInOrder(t *testing.T) {
	sink := &recordingSink{}
	q := NewWriteQueue(sink, 16, nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		if err := q.Enqueue([]byte{byte(i)}, func(err error) {
			if err != nil {
				t.Errorf("write failed: %v", err)
			}
			wg.Done()
		}); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}
	wg.Wait()
	waitClosed(t, q.Close())

	if sink.count() != 10 {
		t.Fatalf("wrote %d frames, want 10", sink.count())
	}
	for i, f := range sink.frames {
		if f[0] != byte(i) {
			t.Errorf("frame %d = %d", i, f[0])
		}
	}
	if sink.flushes == 0 {
		t.Error("queue never flushed")
	}
	if err := q.Enqueue([]byte{1}, nil); !errors.Is(err, ErrTransportClosed) {
		t.Errorf("Enqueue after close: got %v", err)
	}
}

func TestWriteQueueFull(t *testing.T) {
	sink := &recordingSink{block: make(chan struct{})}
	q := NewWriteQueue(sink, 1, nil)

	// The writer takes the first item and blocks in the sink.
	if err := q.Enqueue([]byte{1}, nil); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	deadline := time.Now().Add(time.Second)
	for len(q.items) != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if err := q.Enqueue([]byte{2}, nil); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if err := q.Enqueue([]byte{3}, nil); !errors.Is(err, ErrWriteBufferFull) {
		t.Fatalf("got %v, want ErrWriteBufferFull", err)
	}
	close(sink.block)
	waitClosed(t, q.Close())
	if sink.count() != 2 {
		t.Errorf("wrote %d frames, want 2", sink.count())
	}
}

func TestWriteQueueCloseDrains(t *testing.T) {
	sink := &recordingSink{block: make(chan struct{})}
	q := NewWriteQueue(sink, 8, nil)
	for i := 0; i < 5; i++ {
		if err := q.Enqueue([]byte{byte(i)}, nil); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}
	done := q.Close()
	close(sink.block)
	waitClosed(t, done)
	if sink.count() != 5 {
		t.Errorf("graceful close wrote %d frames, want 5", sink.count())
	}
}

func TestWriteQueueAbortDiscards(t *testing.T) {
	sink := &recordingSink{block: make(chan struct{})}
	q := NewWriteQueue(sink, 8, nil)

	var mu sync.Mutex
	var discarded int
	for i := 0; i < 5; i++ {
		_ = q.Enqueue([]byte{byte(i)}, func(err error) {
			if errors.Is(err, ErrTransportClosed) {
				mu.Lock()
				discarded++
				mu.Unlock()
			}
		})
	}
	done := q.Abort()
	close(sink.block)
	waitClosed(t, done)

	if sink.count() > 1 {
		t.Errorf("abort wrote %d frames, want at most the one in flight", sink.count())
	}
	if discarded < 4 {
		t.Errorf("discarded %d writes, want at least 4", discarded)
	}
}

func TestWriteQueueError(t *testing.T) {
	sink := &recordingSink{failAt: 2}
	errCh := make(chan error, 1)
	q := NewWriteQueue(sink, 8, func(err error) { errCh <- err })

	_ = q.Enqueue([]byte{1}, nil)
	var secondErr error
	var wg sync.WaitGroup
	wg.Add(1)
	_ = q.Enqueue([]byte{2}, func(err error) { secondErr = err; wg.Done() })
	wg.Wait()

	if secondErr == nil {
		t.Error("failing write reported success")
	}
	select {
	case <-errCh:
	case <-time.After(time.Second):
		t.Fatal("onError not called")
	}
	waitClosed(t, q.Close())
}
