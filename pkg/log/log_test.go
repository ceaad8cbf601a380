package log

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/PorkStudios/PorkLib-sub015/pkg/wire"
)

func sampleEvents(base time.Time) []Event {
	return []Event{
		{
			Timestamp: base,
			SessionID: "sess-1",
			Direction: DirectionOut,
			Layer:     LayerTransport,
			Category:  CategoryMessage,
			Transport: "tcp",
			Channel:   ChannelRef(7),
			Frame:     &FrameEvent{Size: 10, Data: []byte("ping")},
		},
		{
			Timestamp: base.Add(time.Millisecond),
			SessionID: "sess-1",
			Direction: DirectionIn,
			Layer:     LayerSession,
			Category:  CategoryControl,
			Channel:   ChannelRef(7),
			Control: NewControlEvent(wire.ControlMessage{
				Type:        wire.ControlChannelOpen,
				Channel:     7,
				Reliability: wire.Reliable,
			}),
		},
		{
			Timestamp: base.Add(2 * time.Millisecond),
			SessionID: "sess-2",
			Direction: DirectionIn,
			Layer:     LayerSession,
			Category:  CategoryState,
			StateChange: &StateChangeEvent{
				Entity:   StateEntityChannel,
				OldState: "OPENING",
				NewState: "OPEN",
			},
		},
		{
			Timestamp: base.Add(3 * time.Millisecond),
			SessionID: "sess-2",
			Layer:     LayerProtocol,
			Category:  CategoryError,
			Error:     &ErrorEvent{Layer: LayerProtocol, Message: "unknown packet", Context: "decode"},
		},
	}
}

func TestEncodeDecodeEvent(t *testing.T) {
	for _, ev := range sampleEvents(time.Now()) {
		data, err := EncodeEvent(ev)
		if err != nil {
			t.Fatalf("EncodeEvent failed: %v", err)
		}
		got, err := DecodeEvent(data)
		if err != nil {
			t.Fatalf("DecodeEvent failed: %v", err)
		}
		if !got.Timestamp.Equal(ev.Timestamp) {
			t.Errorf("Timestamp: got %v, want %v", got.Timestamp, ev.Timestamp)
		}
		if got.SessionID != ev.SessionID || got.Category != ev.Category || got.Layer != ev.Layer {
			t.Errorf("header mismatch: got %+v, want %+v", got, ev)
		}
		if (ev.Channel == nil) != (got.Channel == nil) {
			t.Errorf("Channel presence mismatch")
		}
	}
}

func TestControlEventReliability(t *testing.T) {
	ev := NewControlEvent(wire.ControlMessage{Type: wire.ControlChannelOpen, Channel: 1, Reliability: wire.Unreliable})
	if ev.Reliability == nil || *ev.Reliability != wire.Unreliable {
		t.Fatalf("open reliability not captured: %+v", ev)
	}
	ev = NewControlEvent(wire.ControlMessage{Type: wire.ControlPing, Sequence: 4})
	if ev.Reliability != nil {
		t.Errorf("ping should not carry reliability")
	}
	if ev.Sequence != 4 {
		t.Errorf("Sequence: got %d, want 4", ev.Sequence)
	}
}

func TestFileLoggerRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.plog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	events := sampleEvents(time.Now())
	for _, ev := range events {
		logger.Log(ev)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
	logger.Log(events[0]) // ignored after close

	r, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer r.Close()

	got, err := r.All()
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	if len(got) != len(events) {
		t.Fatalf("read %d events, want %d", len(got), len(events))
	}
	if got[1].Control == nil || got[1].Control.Type != wire.ControlChannelOpen {
		t.Errorf("control event not preserved: %+v", got[1].Control)
	}
	if got[0].Frame == nil || !bytes.Equal(got[0].Frame.Data, []byte("ping")) {
		t.Errorf("frame data not preserved: %+v", got[0].Frame)
	}
}

func TestFileLoggerAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.plog")
	events := sampleEvents(time.Now())

	for i := 0; i < 2; i++ {
		logger, err := NewFileLogger(path)
		if err != nil {
			t.Fatalf("NewFileLogger failed: %v", err)
		}
		logger.Log(events[i])
		logger.Close()
	}

	r, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer r.Close()
	got, err := r.All()
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("got %d events, want 2", len(got))
	}
}

func TestFileLoggerConcurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.plog")
	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				logger.Log(Event{Timestamp: time.Now(), SessionID: "s", Category: CategoryMessage})
			}
		}()
	}
	wg.Wait()
	logger.Close()

	r, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer r.Close()
	got, err := r.All()
	if err != nil {
		t.Fatalf("interleaved writes corrupted the capture: %v", err)
	}
	if len(got) != 200 {
		t.Errorf("got %d events, want 200", len(got))
	}
}

func TestReaderFilter(t *testing.T) {
	base := time.Now()
	var buf bytes.Buffer
	enc := capture.NewEncoder(&buf)
	for _, ev := range sampleEvents(base) {
		if err := enc.Encode(ev); err != nil {
			t.Fatalf("Encode failed: %v", err)
		}
	}
	data := buf.Bytes()

	in := DirectionIn
	control := CategoryControl
	start := base.Add(time.Millisecond)

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"all", Filter{}, 4},
		{"session", Filter{SessionID: "sess-2"}, 2},
		{"channel", Filter{Channel: ChannelRef(7)}, 2},
		{"direction", Filter{Direction: &in}, 3},
		{"category", Filter{Category: &control}, 1},
		{"time start", Filter{TimeStart: &start}, 3},
		{"combined", Filter{SessionID: "sess-1", Direction: &in}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewStreamReader(io.NopCloser(bytes.NewReader(data)), tt.filter)
			got, err := r.All()
			if err != nil {
				t.Fatalf("All failed: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("got %d events, want %d", len(got), tt.want)
			}
		})
	}
}

func TestReaderMissingFile(t *testing.T) {
	if _, err := NewReader(filepath.Join(t.TempDir(), "missing.plog")); !os.IsNotExist(err) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}

func TestMultiLogger(t *testing.T) {
	var a, b []Event
	m := NewMultiLogger(
		LoggerFunc(func(ev Event) { a = append(a, ev) }),
		nil,
		LoggerFunc(func(ev Event) { b = append(b, ev) }),
	)
	m.Log(Event{SessionID: "x"})
	if len(a) != 1 || len(b) != 1 {
		t.Errorf("fan-out failed: a=%d b=%d", len(a), len(b))
	}
	NoopLogger{}.Log(Event{})
}

func TestSlogAdapter(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	adapter := NewSlogAdapter(slog.New(handler))

	adapter.Log(sampleEvents(time.Now())[1])

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log output: %v", err)
	}
	checks := map[string]any{
		"session_id":  "sess-1",
		"direction":   "IN",
		"category":    "CONTROL",
		"ctrl_type":   "channel-open",
		"reliability": "RELIABLE",
		"channel":     float64(7),
	}
	for k, want := range checks {
		if entry[k] != want {
			t.Errorf("%s: got %v, want %v", k, entry[k], want)
		}
	}
}
