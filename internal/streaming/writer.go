package streaming

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"photo-indexer/internal/logging"
)

var (
	// ErrNotStreamable means the response cannot be flushed incrementally.
	ErrNotStreamable = errors.New("response writer does not support flushing")

	// ErrClientGone means the request context ended before the stream did.
	ErrClientGone = errors.New("client disconnected")
)

// Config tunes an EventWriter.
type Config struct {
	// WriteTimeout bounds each frame write.
	WriteTimeout time.Duration
	// Heartbeat is the quiet period after which Pump sends a comment.
	Heartbeat time.Duration
	// Retry is advertised to clients as the reconnect delay; 0 omits it.
	Retry time.Duration
}

// DefaultConfig returns settings suited to scan progress streams.
func DefaultConfig() Config {
	return Config{
		WriteTimeout: 10 * time.Second,
		Heartbeat:    15 * time.Second,
		Retry:        3 * time.Second,
	}
}

// Message is one event frame.
type Message struct {
	ID    string
	Event string
	Data  []byte
}

// EventWriter frames and flushes Server-Sent Events.
type EventWriter struct {
	w      http.ResponseWriter
	rc     *http.ResponseController
	config Config

	mu      sync.Mutex
	start   time.Time
	written int64
	sent    int
}

// NewEventWriter prepares w for streaming and sends the response headers.
func NewEventWriter(w http.ResponseWriter, config Config) (*EventWriter, error) {
	if _, ok := w.(http.Flusher); !ok {
		return nil, ErrNotStreamable
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	ew := &EventWriter{w: w, rc: http.NewResponseController(w), config: config, start: time.Now()}
	if config.Retry > 0 {
		if err := ew.write(fmt.Appendf(nil, "retry: %d\n\n", config.Retry.Milliseconds())); err != nil {
			return nil, err
		}
	} else if err := ew.flush(); err != nil {
		return nil, err
	}
	return ew, nil
}

// Send writes one event. Data may span lines.
func (ew *EventWriter) Send(m Message) error {
	var b bytes.Buffer
	if m.ID != "" {
		fmt.Fprintf(&b, "id: %s\n", oneLine(m.ID))
	}
	if m.Event != "" {
		fmt.Fprintf(&b, "event: %s\n", oneLine(m.Event))
	}
	for _, line := range bytes.Split(m.Data, []byte("\n")) {
		b.WriteString("data: ")
		b.Write(bytes.TrimSuffix(line, []byte("\r")))
		b.WriteByte('\n')
	}
	b.WriteByte('\n')

	if err := ew.write(b.Bytes()); err != nil {
		return err
	}
	ew.mu.Lock()
	ew.sent++
	ew.mu.Unlock()
	return nil
}

// Comment writes a comment line, which clients ignore.
func (ew *EventWriter) Comment(text string) error {
	return ew.write([]byte(": " + oneLine(text) + "\n\n"))
}

func (ew *EventWriter) write(p []byte) error {
	ew.mu.Lock()
	defer ew.mu.Unlock()

	if ew.config.WriteTimeout > 0 {
		err := ew.rc.SetWriteDeadline(time.Now().Add(ew.config.WriteTimeout))
		if err != nil && !errors.Is(err, http.ErrNotSupported) {
			return err
		}
	}
	n, err := ew.w.Write(p)
	ew.written += int64(n)
	if err != nil {
		return err
	}
	return ew.flushLocked()
}

func (ew *EventWriter) flush() error {
	ew.mu.Lock()
	defer ew.mu.Unlock()
	return ew.flushLocked()
}

func (ew *EventWriter) flushLocked() error {
	err := ew.rc.Flush()
	if errors.Is(err, http.ErrNotSupported) {
		ew.w.(http.Flusher).Flush()
		return nil
	}
	return err
}

// Stats returns the events and bytes written and the stream's age.
func (ew *EventWriter) Stats() (events int, bytes int64, age time.Duration) {
	ew.mu.Lock()
	defer ew.mu.Unlock()
	return ew.sent, ew.written, time.Since(ew.start)
}

func oneLine(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}

// Pump sends every item of items through encode until items closes. A
// heartbeat comment goes out whenever nothing was sent for the configured
// interval. It returns ErrClientGone when ctx ends first.
func Pump[T any](ctx context.Context, ew *EventWriter, items <-chan T, encode func(T) (Message, error)) error {
	var tick <-chan time.Time
	if ew.config.Heartbeat > 0 {
		t := time.NewTicker(ew.config.Heartbeat)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case item, ok := <-items:
			if !ok {
				n, size, age := ew.Stats()
				logging.Debug("Event stream finished: %d events, %d bytes in %v", n, size, age)
				return nil
			}
			m, err := encode(item)
			if err != nil {
				return err
			}
			if err := ew.Send(m); err != nil {
				return err
			}
		case <-tick:
			if err := ew.Comment("keep-alive"); err != nil {
				return err
			}
		case <-ctx.Done():
			return ErrClientGone
		}
	}
}
