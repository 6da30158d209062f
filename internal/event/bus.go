package event

import (
	"sync"
	"sync/atomic"
	"time"
)

// DefaultCapacity is the per-subscriber bound on queued droppable events.
const DefaultCapacity = 256

// Bus fans events from one producer out to any number of subscribers.
// Emit never waits on a consumer: each subscriber has its own bounded queue
// where droppable progress events are discarded oldest-first on overflow,
// and critical events (errors, duplicates, completion) are always kept.
type Bus struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[*Subscription]struct{})}
}

// Emit stamps e if needed and queues it for every subscriber.
func (b *Bus) Emit(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for s := range b.subs {
		s.push(e)
	}
}

// Subscribe attaches a consumer. capacity bounds queued droppable events;
// values <= 0 use DefaultCapacity.
func (b *Bus) Subscribe(capacity int) *Subscription {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	s := &Subscription{
		capacity: capacity,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
		out:      make(chan Event),
	}
	go s.pump()

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		s.finish()
		return s
	}
	b.subs[s] = struct{}{}
	return s
}

// Unsubscribe detaches s. Its channel closes without delivering the rest
// of its queue. Detaching never affects the producer.
func (b *Bus) Unsubscribe(s *Subscription) {
	b.mu.Lock()
	delete(b.subs, s)
	b.mu.Unlock()
	s.stop()
}

// Close stops accepting events. Each subscriber's channel closes after its
// queue has been delivered.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for s := range b.subs {
		s.finish()
	}
	b.subs = nil
}

// Subscription is one consumer's view of a Bus.
type Subscription struct {
	wake      chan struct{}
	done      chan struct{}
	out       chan Event
	queue     []Event
	capacity  int
	droppable int
	dropped   atomic.Int64
	mu        sync.Mutex
	closing   bool
	stopOnce  sync.Once
}

// C returns the delivery channel. It closes when the bus closes or the
// subscription is removed.
func (s *Subscription) C() <-chan Event { return s.out }

// Dropped returns how many droppable events were discarded for this
// subscriber.
func (s *Subscription) Dropped() int64 { return s.dropped.Load() }

func (s *Subscription) push(e Event) {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return
	}
	if e.Droppable() {
		if s.droppable >= s.capacity {
			s.dropOldestLocked()
		}
		s.droppable++
	}
	s.queue = append(s.queue, e)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription) dropOldestLocked() {
	for i, q := range s.queue {
		if q.Droppable() {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			s.droppable--
			s.dropped.Add(1)
			return
		}
	}
}

func (s *Subscription) finish() {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription) stop() {
	s.stopOnce.Do(func() { close(s.done) })
	s.finish()
}

func (s *Subscription) pump() {
	defer close(s.out)
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			closing := s.closing
			s.mu.Unlock()
			if closing {
				return
			}
			select {
			case <-s.wake:
			case <-s.done:
				return
			}
			continue
		}
		e := s.queue[0]
		s.queue[0] = Event{}
		s.queue = s.queue[1:]
		if e.Droppable() {
			s.droppable--
		}
		s.mu.Unlock()

		select {
		case s.out <- e:
		case <-s.done:
			return
		}
	}
}
