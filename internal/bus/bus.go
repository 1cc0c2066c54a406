// Package bus carries per-task status events from workers to observers
// (console, HTTP event stream, notifiers). Publishing never blocks: a
// subscriber that falls behind loses events instead of stalling a worker.
package bus

import (
	"sync"
	"time"
)

// EventKind classifies a status event.
type EventKind string

const (
	KindStatus  EventKind = "status"  // per-tick status string
	KindClicked EventKind = "clicked" // a click was injected
	KindError   EventKind = "error"   // recoverable failure, retried
	KindLog     EventKind = "log"     // free-form log line
)

// Event is one status update, self-describing and UI-independent.
type Event struct {
	TaskID  string    `json:"task_id,omitempty"`
	Kind    EventKind `json:"kind"`
	Message string    `json:"message"`
	Score   float64   `json:"score,omitempty"`
	Clicks  int       `json:"clicks,omitempty"`
	At      time.Time `json:"at"`
}

// Bus fans events out to subscribers.
type Bus struct {
	mu   sync.RWMutex
	subs map[*Subscription]struct{}
}

// Subscription is one observer's event feed. Read from C; Close when
// done. Dropped counts events lost to a full buffer.
type Subscription struct {
	C chan Event

	bus  *Bus
	once sync.Once

	dropMu  sync.Mutex
	dropped int
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[*Subscription]struct{})}
}

// Subscribe registers an observer with the given buffer size.
func (b *Bus) Subscribe(buffer int) *Subscription {
	if buffer < 1 {
		buffer = 1
	}
	sub := &Subscription{C: make(chan Event, buffer), bus: b}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

// Publish delivers the event to every subscriber without blocking. The
// event timestamp is filled in when unset.
func (b *Bus) Publish(e Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs {
		select {
		case sub.C <- e:
		default:
			sub.dropMu.Lock()
			sub.dropped++
			sub.dropMu.Unlock()
		}
	}
}

// SubscriberCount reports the number of live subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped reports how many events this subscriber lost.
func (s *Subscription) Dropped() int {
	s.dropMu.Lock()
	defer s.dropMu.Unlock()
	return s.dropped
}

// Close unregisters the subscription and closes its channel.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs, s)
		s.bus.mu.Unlock()
		close(s.C)
	})
}
