package transport

import (
	"bytes"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"
)

type collector struct {
	mu           sync.Mutex
	data         bytes.Buffer
	disconnected chan error
}

func newCollector() *collector {
	return &collector{disconnected: make(chan error, 1)}
}

func (c *collector) OnData(data []byte) {
	c.mu.Lock()
	c.data.Write(data)
	c.mu.Unlock()
}

func (c *collector) OnDisconnect(err error) {
	c.disconnected <- err
}

func (c *collector) bytes() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.data.Bytes()...)
}

func TestStreamConnWriteAndPeerClose(t *testing.T) {
	a, b := net.Pipe()
	ca := NewStreamConn(a, StreamOptions{})
	cb := NewStreamConn(b, StreamOptions{})

	recv := newCollector()
	if err := cb.Start(recv); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := cb.Start(recv); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start: got %v", err)
	}

	for _, chunk := range []string{"hello ", "stream"} {
		if err := ca.Write([]byte(chunk), nil); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}
	if err := ca.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if ca.IsOpen() {
		t.Error("closed conn reports open")
	}

	select {
	case err := <-recv.disconnected:
		if !errors.Is(err, io.EOF) {
			t.Errorf("peer disconnect = %v, want EOF", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("peer not disconnected")
	}
	if got := string(recv.bytes()); got != "hello stream" {
		t.Errorf("received %q", got)
	}
}

func TestStreamConnLocalAbort(t *testing.T) {
	a, b := net.Pipe()
	defer b.Close()
	ca := NewStreamConn(a, StreamOptions{})

	recv := newCollector()
	if err := ca.Start(recv); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := ca.Abort(); err != nil {
		t.Fatalf("Abort failed: %v", err)
	}
	select {
	case err := <-recv.disconnected:
		if err != nil {
			t.Errorf("local abort disconnect = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("not disconnected")
	}
	if err := ca.Write([]byte("x"), nil); !errors.Is(err, ErrTransportClosed) {
		t.Errorf("Write after abort: got %v", err)
	}
}

func TestStreamConnAbortCutsDrainShort(t *testing.T) {
	a, b := net.Pipe()
	defer b.Close()
	// Nobody reads b, so the queued write never drains.
	ca := NewStreamConn(a, StreamOptions{DrainTimeout: 2 * time.Second})
	if err := ca.Write([]byte("stuck"), nil); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	closed := make(chan error, 1)
	go func() { closed <- ca.Close() }()
	time.Sleep(20 * time.Millisecond)

	start := time.Now()
	if err := ca.Abort(); err != nil {
		t.Errorf("Abort failed: %v", err)
	}
	if d := time.Since(start); d > 500*time.Millisecond {
		t.Errorf("Abort blocked %v behind the drain", d)
	}
	select {
	case err := <-closed:
		if err != nil {
			t.Errorf("Close = %v", err)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("Close still draining after Abort")
	}
}
