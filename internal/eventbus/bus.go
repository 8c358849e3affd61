package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// DefaultCapacity is the number of events retained for slow subscribers
const DefaultCapacity = 64

// ErrClosed is returned by Recv once the bus is closed and drained.
var ErrClosed = errors.New("event bus closed")

// LaggedError reports that a subscriber fell more than the bus capacity behind.
// The subscriber has been moved to the oldest retained event; receiving again
// continues in order from there.
type LaggedError struct {
	Missed uint64
}

func (e *LaggedError) Error() string {
	return fmt.Sprintf("subscriber lagged, missed %d events", e.Missed)
}

// Bus is a multicast channel with a bounded ring of retained events.
// Every subscriber observes publishes in the same global order.
type Bus struct {
	mu   sync.Mutex
	ring []Event
	head uint64 // sequence number of the next publish

	subs map[*Subscription]struct{}

	// notify is closed and replaced on every publish, waking all waiters
	notify chan struct{}

	closed    bool
	closeOnce sync.Once
}

// New creates a new event bus with default capacity
func New() *Bus {
	return NewWithCapacity(DefaultCapacity)
}

// NewWithCapacity creates a new event bus retaining up to capacity events
func NewWithCapacity(capacity int) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	log.Debug().Int("capacity", capacity).Msg("Event bus created")
	return &Bus{
		ring:   make([]Event, capacity),
		subs:   make(map[*Subscription]struct{}),
		notify: make(chan struct{}),
	}
}

// Subscribe registers a new subscriber that receives events published from now on.
func (b *Bus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := &Subscription{bus: b, next: b.head}
	if !b.closed {
		b.subs[s] = struct{}{}
	}
	return s
}

// Publish appends an event to the ring and wakes subscribers.
// Never blocks. Without subscribers, or after Close, the event is dropped.
func (b *Bus) Publish(event Event) {
	b.mu.Lock()
	if b.closed || len(b.subs) == 0 {
		b.mu.Unlock()
		return
	}

	b.ring[b.head%uint64(len(b.ring))] = event
	b.head++

	wake := b.notify
	b.notify = make(chan struct{})
	b.mu.Unlock()

	close(wake)
}

// Close stops accepting publishes. Subscribers drain what is retained, then get ErrClosed.
func (b *Bus) Close() {
	b.closeOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		wake := b.notify
		b.notify = make(chan struct{})
		b.mu.Unlock()

		close(wake)
		log.Debug().Msg("Event bus closed")
	})
}

// SubscriberCount returns the number of active subscriptions
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// closedChan is always ready; returned by Ready when no wait is needed
var closedChan = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// Subscription is a single reader's cursor into the bus.
// A Subscription must be used from one goroutine at a time.
type Subscription struct {
	bus  *Bus
	next uint64
	done bool
}

// Ready returns a channel that is closed once TryRecv has something to report:
// an event, a lag notification, or closure.
func (s *Subscription) Ready() <-chan struct{} {
	b := s.bus
	b.mu.Lock()
	defer b.mu.Unlock()

	if s.done || b.closed || s.next < b.head {
		return closedChan
	}
	return b.notify
}

// TryRecv returns the next event without waiting.
// ok is false when nothing is pending. A *LaggedError is returned once per gap.
func (s *Subscription) TryRecv() (event Event, ok bool, err error) {
	b := s.bus
	b.mu.Lock()
	defer b.mu.Unlock()

	if s.done {
		return nil, false, ErrClosed
	}

	capacity := uint64(len(b.ring))
	if b.head-s.next > capacity {
		oldest := b.head - capacity
		missed := oldest - s.next
		s.next = oldest
		return nil, false, &LaggedError{Missed: missed}
	}

	if s.next < b.head {
		event = b.ring[s.next%capacity]
		s.next++
		return event, true, nil
	}

	if b.closed {
		return nil, false, ErrClosed
	}
	return nil, false, nil
}

// Recv blocks until an event is available, the bus is closed, or ctx is done.
func (s *Subscription) Recv(ctx context.Context) (Event, error) {
	for {
		event, ok, err := s.TryRecv()
		if err != nil {
			return nil, err
		}
		if ok {
			return event, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.Ready():
		}
	}
}

// Close unregisters the subscriber. Further receives return ErrClosed.
func (s *Subscription) Close() {
	b := s.bus
	b.mu.Lock()
	defer b.mu.Unlock()

	s.done = true
	delete(b.subs, s)
}
