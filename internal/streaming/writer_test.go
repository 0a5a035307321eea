package streaming

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type plainWriter struct {
	header http.Header
}

func (p *plainWriter) Header() http.Header         { return p.header }
func (p *plainWriter) Write(b []byte) (int, error) { return len(b), nil }
func (p *plainWriter) WriteHeader(int)             {}

func TestNewEventWriterHeaders(t *testing.T) {
	w := httptest.NewRecorder()
	if _, err := NewEventWriter(w, DefaultConfig()); err != nil {
		t.Fatalf("Failed to create writer: %v", err)
	}

	if got := w.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("Expected event-stream content type, got %q", got)
	}
	if got := w.Header().Get("Cache-Control"); got != "no-cache" {
		t.Errorf("Expected no-cache, got %q", got)
	}
	if !w.Flushed {
		t.Error("Expected headers to be flushed")
	}
	if got := w.Body.String(); got != "retry: 3000\n\n" {
		t.Errorf("Expected retry hint, got %q", got)
	}
}

func TestNewEventWriterRequiresFlusher(t *testing.T) {
	_, err := NewEventWriter(&plainWriter{header: http.Header{}}, DefaultConfig())
	if !errors.Is(err, ErrNotStreamable) {
		t.Errorf("Expected ErrNotStreamable, got %v", err)
	}
}

func TestSendFraming(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		want string
	}{
		{"data only", Message{Data: []byte(`{"a":1}`)}, "data: {\"a\":1}\n\n"},
		{"with id and event", Message{ID: "7", Event: "progress", Data: []byte("x")}, "id: 7\nevent: progress\ndata: x\n\n"},
		{"multiline", Message{Data: []byte("one\r\ntwo")}, "data: one\ndata: two\n\n"},
		{"newline in event", Message{Event: "bad\nname", Data: []byte("x")}, "event: bad name\ndata: x\n\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			ew, err := NewEventWriter(w, Config{})
			if err != nil {
				t.Fatalf("Failed to create writer: %v", err)
			}
			if err := ew.Send(tt.msg); err != nil {
				t.Fatalf("Failed to send: %v", err)
			}
			if got := w.Body.String(); got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestPumpDrainsUntilClosed(t *testing.T) {
	w := httptest.NewRecorder()
	ew, err := NewEventWriter(w, Config{})
	if err != nil {
		t.Fatalf("Failed to create writer: %v", err)
	}

	items := make(chan int, 3)
	items <- 1
	items <- 2
	items <- 3
	close(items)

	err = Pump(context.Background(), ew, items, func(i int) (Message, error) {
		return Message{Data: []byte(strings.Repeat("x", i))}, nil
	})
	if err != nil {
		t.Fatalf("Pump failed: %v", err)
	}
	if got := w.Body.String(); got != "data: x\n\ndata: xx\n\ndata: xxx\n\n" {
		t.Errorf("Unexpected body %q", got)
	}
	if n, _, _ := ew.Stats(); n != 3 {
		t.Errorf("Expected 3 events, got %d", n)
	}
}

func TestPumpHeartbeatAndClientGone(t *testing.T) {
	w := httptest.NewRecorder()
	ew, err := NewEventWriter(w, Config{Heartbeat: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("Failed to create writer: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	err = Pump(ctx, ew, make(chan int), func(int) (Message, error) { return Message{}, nil })
	if !errors.Is(err, ErrClientGone) {
		t.Errorf("Expected ErrClientGone, got %v", err)
	}
	if !strings.Contains(w.Body.String(), ": keep-alive\n\n") {
		t.Errorf("Expected a heartbeat, got %q", w.Body.String())
	}
}

func TestPumpEncodeError(t *testing.T) {
	ew, err := NewEventWriter(httptest.NewRecorder(), Config{})
	if err != nil {
		t.Fatalf("Failed to create writer: %v", err)
	}
	items := make(chan int, 1)
	items <- 1
	boom := errors.New("boom")
	err = Pump(context.Background(), ew, items, func(int) (Message, error) { return Message{}, boom })
	if !errors.Is(err, boom) {
		t.Errorf("Expected encode error, got %v", err)
	}
}
