package events

import (
	"fmt"
	"sync"
	"time"

	"photo-indexer/internal/errdefs"
	"photo-indexer/internal/logging"
	"photo-indexer/internal/metrics"
)

// Kind classifies an event.
type Kind string

const (
	KindProgress  Kind = "progress"
	KindCompleted Kind = "completed"
	KindFailed    Kind = "failed"
)

// Event is one progress notification for a scan.
type Event struct {
	Token   string  `json:"correlation_token"`
	Kind    Kind    `json:"kind"`
	Percent float64 `json:"percent"`
	// Indeterminate is set while the total amount of work is unknown.
	Indeterminate bool      `json:"indeterminate,omitempty"`
	Message       string    `json:"message"`
	Error         string    `json:"error,omitempty"`
	Time          time.Time `json:"time"`
}

// Terminal reports whether e ends its topic.
func (e Event) Terminal() bool {
	return e.Kind == KindCompleted || e.Kind == KindFailed
}

// Sink forwards events outside the process. Send must not block.
type Sink interface {
	Send(Event)
	Close() error
}

// DefaultRetention is how long a finished topic stays available for late
// subscribers.
const DefaultRetention = time.Minute

type topic struct {
	last  *Event
	done  bool
	subs  map[*Subscription]struct{}
	timer *time.Timer
}

// Broker routes events by token.
type Broker struct {
	retention time.Duration
	log       *logging.Logger

	mu     sync.Mutex
	topics map[string]*topic
	sinks  []Sink
	closed bool
}

// NewBroker creates a Broker. A zero retention uses DefaultRetention.
func NewBroker(retention time.Duration, sinks ...Sink) *Broker {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Broker{
		retention: retention,
		log:       logging.For("events"),
		topics:    make(map[string]*topic),
		sinks:     sinks,
	}
}

// Open registers a topic for token so that subscribers may join before the
// first event. Opening a live topic is a no-op; opening a finished one
// replaces it with a fresh topic.
func (b *Broker) Open(token string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	t, ok := b.topics[token]
	if ok && !t.done {
		return
	}
	if ok {
		if t.timer != nil {
			t.timer.Stop()
		}
		for s := range t.subs {
			s.finish()
		}
	}
	b.topics[token] = &topic{subs: map[*Subscription]struct{}{}}
}

// Publish delivers ev to the subscribers of ev.Token without blocking.
// Progress never goes backwards: a percent below the previous event's is
// raised to it. Events after a topic's terminal event are dropped.
func (b *Broker) Publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	t, ok := b.topics[ev.Token]
	if !ok {
		t = &topic{subs: map[*Subscription]struct{}{}}
		b.topics[ev.Token] = t
	}
	if t.done {
		b.mu.Unlock()
		b.log.Debug("Dropping %s event for finished scan %s", ev.Kind, ev.Token)
		return
	}
	if t.last != nil && ev.Percent < t.last.Percent {
		ev.Percent = t.last.Percent
	}
	t.last = &ev

	for s := range t.subs {
		s.push(ev)
	}
	if ev.Terminal() {
		t.done = true
		for s := range t.subs {
			s.finish()
		}
		token := ev.Token
		t.timer = time.AfterFunc(b.retention, func() { b.drop(token, t) })
	}
	sinks := b.sinks
	b.mu.Unlock()

	metrics.EventsPublishedTotal.WithLabelValues(string(ev.Kind)).Inc()
	for _, s := range sinks {
		s.Send(ev)
	}
}

func (b *Broker) drop(token string, t *topic) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.topics[token] == t {
		delete(b.topics, token)
	}
}

// Subscribe joins the topic for token. The most recent event, if any, is
// delivered first. Unknown tokens fail with errdefs.ErrNotFound.
func (b *Broker) Subscribe(token string) (*Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[token]
	if b.closed || !ok {
		return nil, fmt.Errorf("event topic %s: %w", token, errdefs.ErrNotFound)
	}

	s := newSubscription(b, token)
	if t.last != nil {
		s.push(*t.last)
	}
	if t.done {
		s.finish()
	} else {
		t.subs[s] = struct{}{}
	}
	return s, nil
}

// Latest returns the most recent event for token.
func (b *Broker) Latest(token string) (Event, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.topics[token]
	if !ok || t.last == nil {
		return Event{}, false
	}
	return *t.last, true
}

func (b *Broker) unsubscribe(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.topics[s.token]; ok {
		delete(t.subs, s)
	}
}

// Close ends every subscription after its queued events are delivered and
// closes the sinks. Later calls to Publish are ignored.
func (b *Broker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	for token, t := range b.topics {
		if t.timer != nil {
			t.timer.Stop()
		}
		for s := range t.subs {
			s.finish()
		}
		delete(b.topics, token)
	}
	sinks := b.sinks
	b.sinks = nil
	b.mu.Unlock()

	var firstErr error
	for _, s := range sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Subscription receives the events of one topic.
type Subscription struct {
	token  string
	broker *Broker
	out    chan Event
	stop   chan struct{}

	mu        sync.Mutex
	cond      *sync.Cond
	queue     []Event
	ending    bool
	closed    bool
	closeOnce sync.Once
}

func newSubscription(b *Broker, token string) *Subscription {
	s := &Subscription{
		token:  token,
		broker: b,
		out:    make(chan Event),
		stop:   make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	metrics.EventSubscribers.Inc()
	go s.pump()
	return s
}

// Events returns the delivery channel. It closes after the terminal event,
// on Close, or when the broker shuts down.
func (s *Subscription) Events() <-chan Event {
	return s.out
}

// Token returns the scan token this subscription follows.
func (s *Subscription) Token() string {
	return s.token
}

// Close stops delivery and discards queued events. The publisher is not
// affected.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.queue = nil
		s.mu.Unlock()
		s.cond.Broadcast()
		close(s.stop)
		s.broker.unsubscribe(s)
	})
}

func (s *Subscription) push(ev Event) {
	s.mu.Lock()
	if !s.closed && !s.ending {
		s.queue = append(s.queue, ev)
	}
	s.mu.Unlock()
	s.cond.Signal()
}

// finish closes the channel once the queue drains.
func (s *Subscription) finish() {
	s.mu.Lock()
	s.ending = true
	s.mu.Unlock()
	s.cond.Signal()
}

func (s *Subscription) pump() {
	defer func() {
		close(s.out)
		metrics.EventSubscribers.Dec()
	}()

	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.ending && !s.closed {
			s.cond.Wait()
		}
		if s.closed || len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		ev := s.queue[0]
		s.queue[0] = Event{}
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- ev:
		case <-s.stop:
			return
		}
	}
}
