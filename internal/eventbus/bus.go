// Package eventbus implements the daemon's process-wide lossy broadcast of
// DaemonEvent values: AppServer events forwarded from a workspace session's
// child, terminal output/exit notices, and synthetic LagNotice events for
// subscribers that fall behind.
package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
)

// DefaultCapacity is the suggested per-subscriber ring capacity.
const DefaultCapacity = 2048

// Kind tags the variant of a DaemonEvent.
type Kind string

const (
	KindAppServer      Kind = "app_server"
	KindTerminalOutput Kind = "terminal_output"
	KindTerminalExit   Kind = "terminal_exit"
	KindLagNotice      Kind = "lag_notice"
)

// Message is the forwarded JSON-RPC-shaped payload of an AppServer event.
// RequestWorkspaceID and RequestIDEcho are injected by the session reader
// only for child-initiated requests (§4D's binding echo); they are absent
// on plain notifications.
type Message struct {
	ID                 json.RawMessage `json:"id,omitempty"`
	Method             string          `json:"method,omitempty"`
	Params             json.RawMessage `json:"params,omitempty"`
	RequestWorkspaceID string          `json:"requestWorkspaceId,omitempty"`
	RequestIDEcho      json.RawMessage `json:"requestIdEcho,omitempty"`
}

// Event is the tagged union broadcast on the bus. Exactly one of the
// payload fields is meaningful, selected by Kind.
type Event struct {
	Kind        Kind
	WorkspaceID string
	Message     Message         // KindAppServer
	Terminal    TerminalPayload // KindTerminalOutput / KindTerminalExit
	Dropped     uint64          // KindLagNotice
}

// TerminalPayload carries terminal pass-through data.
type TerminalPayload struct {
	TerminalID string          `json:"terminalId,omitempty"`
	Chunk      string          `json:"chunk,omitempty"`
	ExitCode   *int            `json:"exitCode,omitempty"`
	Raw        json.RawMessage `json:"raw,omitempty"`
}

// Valid reports whether e is a well-formed event per the contract in §3:
// WorkspaceID non-empty, Message.Method non-empty when the message is
// present, and Message.ID (if present) a number or non-empty string.
func (e Event) Valid() bool {
	if e.Kind == KindLagNotice {
		return true
	}
	if e.WorkspaceID == "" {
		return false
	}
	if e.Kind == KindAppServer {
		if e.Message.Method == "" {
			return false
		}
		if len(e.Message.ID) > 0 {
			var s string
			if err := json.Unmarshal(e.Message.ID, &s); err == nil {
				return s != ""
			}
			var n json.Number
			if err := json.Unmarshal(e.Message.ID, &n); err == nil {
				return true
			}
			return false
		}
	}
	return true
}

// ErrClosed is returned by Recv once the bus has been closed and the
// subscriber's backlog has been fully drained.
var ErrClosed = errors.New("eventbus: closed")

// Bus is a process-wide, lock-protected lossy broadcast channel. Publish
// never blocks and never fails; a subscriber that cannot keep up keeps the
// events already in its ring, loses the ones that do not fit, and is told
// how many it lost by a single Lag notice.
type Bus struct {
	capacity int

	mu          sync.Mutex
	subscribers map[*Subscriber]struct{}
	closed      bool
}

// New creates a Bus with the given per-subscriber ring capacity. A
// non-positive capacity falls back to DefaultCapacity.
func New(capacity int) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Bus{
		capacity:    capacity,
		subscribers: make(map[*Subscriber]struct{}),
	}
}

// Publish delivers event to every current subscriber. It never blocks: a
// subscriber whose ring is full has the event counted as dropped instead of
// delivered, and will observe a single synthetic Lag event the next time it
// reads past the drop.
func (b *Bus) Publish(event Event) {
	if !event.Valid() {
		return
	}
	b.mu.Lock()
	subs := make([]*Subscriber, 0, len(b.subscribers))
	for s := range b.subscribers {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		s.deliver(event)
	}
}

// Subscribe allocates a new Subscriber whose first read position is the
// current head of the bus (it will not replay events published before the
// call to Subscribe).
func (b *Bus) Subscribe() *Subscriber {
	s := &Subscriber{
		bus: b,
		ch:  make(chan Event, b.capacity),
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		s.closed = true
		close(s.ch)
		return s
	}
	b.subscribers[s] = struct{}{}
	return s
}

// Close shuts down the bus; every subscriber's Recv returns ErrClosed once
// its backlog (if any) has drained.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for s := range b.subscribers {
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
	}
	b.subscribers = make(map[*Subscriber]struct{})
}

// Subscriber is a single consumer's bounded view of the bus.
type Subscriber struct {
	bus *Bus
	ch  chan Event

	mu      sync.Mutex
	dropped uint64
	closed  bool
}

// deliver attempts a non-blocking send; on a full ring it counts the drop
// instead of blocking the publisher or other subscribers. A pending drop
// count is queued as one lag notice directly ahead of the next event that
// fits, so the notice sits between the events that bracket the drop. It is
// a no-op once the subscriber has unsubscribed, since the channel may
// already be closed.
func (s *Subscriber) deliver(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.dropped > 0 {
		// Only Recv takes from s.ch, so the free space seen here cannot
		// shrink while s.mu is held.
		if cap(s.ch)-len(s.ch) < 2 {
			s.dropped++
			return
		}
		s.ch <- Event{Kind: KindLagNotice, Dropped: s.dropped}
		s.dropped = 0
	}
	select {
	case s.ch <- event:
	default:
		s.dropped++
	}
}

// Recv blocks until an event is available, ctx is cancelled, or the bus is
// closed. Buffered events already sitting in the ring are always delivered
// first, in order; a dropped count surfaces as a single synthetic
// KindLagNotice event after that backlog and before any event published
// after the drop: deliver queues it ahead of the next event that fits, and
// Recv reports a count still pending once the ring is empty (§8 scenario 6: earlier events, then one
// lag notice, then normal events — not the lag notice ahead of backlog
// still waiting to be read).
func (s *Subscriber) Recv(ctx context.Context) (Event, error) {
	select {
	case ev, ok := <-s.ch:
		if !ok {
			return Event{}, ErrClosed
		}
		return ev, nil
	default:
	}

	s.mu.Lock()
	if s.dropped > 0 {
		n := s.dropped
		s.dropped = 0
		s.mu.Unlock()
		return Event{Kind: KindLagNotice, Dropped: n}, nil
	}
	s.mu.Unlock()

	select {
	case ev, ok := <-s.ch:
		if !ok {
			return Event{}, ErrClosed
		}
		return ev, nil
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

// Unsubscribe removes s from the bus. Safe to call more than once.
func (s *Subscriber) Unsubscribe() {
	s.bus.mu.Lock()
	_, ok := s.bus.subscribers[s]
	delete(s.bus.subscribers, s)
	s.bus.mu.Unlock()
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}
