// Package bus delivers structured events from pipeline worker threads to the
// single consuming context.
//
// Two delivery paths with different concurrency contracts:
//
//  1. Asynchronous queue: any goroutine may Post; a single consumer Pops in
//     FIFO order. Ordering is guaranteed per producer, best-effort across
//     producers. Control events are never dropped under load; the queue grows
//     instead.
//  2. Synchronous interception: every posted event first passes through the
//     sync handler on the producer's goroutine. The handler may consume the
//     event (surface handoff) so it never reaches the queue. It must be fast,
//     non-blocking, and must never wait on the consuming context.
//
// Closing the bus discards queued events that were not yet dispatched.
package bus

import (
	"context"
	"sync"
	"sync/atomic"
)

// SyncReply is the sync handler's verdict on an event.
type SyncReply int

const (
	// SyncPass forwards the event to the asynchronous queue.
	SyncPass SyncReply = iota
	// SyncDrop consumes the event; it is not queued.
	SyncDrop
)

// SyncHandler inspects an event on the producing goroutine before it is
// queued.
type SyncHandler func(Event) SyncReply

// Stats is a snapshot of bus counters.
type Stats struct {
	Posted      uint64
	Dispatched  uint64
	Intercepted uint64
	Discarded   uint64
}

// Bus is a multi-producer single-consumer event queue.
type Bus struct {
	mu     sync.Mutex
	queue  []Event
	closed bool
	notify chan struct{}

	syncHandler atomic.Pointer[SyncHandler]

	posted      atomic.Uint64
	dispatched  atomic.Uint64
	intercepted atomic.Uint64
	discarded   atomic.Uint64
}

// New creates an empty open bus.
func New() *Bus {
	return &Bus{
		notify: make(chan struct{}, 1),
	}
}

// SetSyncHandler installs the synchronous interception handler. Install it
// before pipeline activation: requests posted earlier pass straight through
// to the queue.
func (b *Bus) SetSyncHandler(h SyncHandler) {
	if h == nil {
		b.syncHandler.Store(nil)
		return
	}
	b.syncHandler.Store(&h)
}

// Post delivers an event. It first runs the sync handler on the calling
// goroutine; if the event survives it is appended to the FIFO queue. Posting
// to a closed bus discards the event.
func (b *Bus) Post(ev Event) {
	b.posted.Add(1)

	if h := b.syncHandler.Load(); h != nil {
		if (*h)(ev) == SyncDrop {
			b.intercepted.Add(1)
			return
		}
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		b.discarded.Add(1)
		return
	}
	b.queue = append(b.queue, ev)
	b.mu.Unlock()

	select {
	case b.notify <- struct{}{}:
	default:
	}
}

// Pop removes and returns the oldest queued event, blocking until one is
// available. Returns ok=false when the bus is closed or ctx is cancelled.
// Only one goroutine may call Pop.
func (b *Bus) Pop(ctx context.Context) (Event, bool) {
	for {
		b.mu.Lock()
		if len(b.queue) > 0 {
			ev := b.queue[0]
			b.queue[0] = nil
			b.queue = b.queue[1:]
			b.mu.Unlock()
			b.dispatched.Add(1)
			return ev, true
		}
		if b.closed {
			b.mu.Unlock()
			return nil, false
		}
		b.mu.Unlock()

		select {
		case <-b.notify:
		case <-ctx.Done():
			return nil, false
		}
	}
}

// TryPop removes and returns the oldest queued event without blocking.
func (b *Bus) TryPop() (Event, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.queue) == 0 {
		return nil, false
	}
	ev := b.queue[0]
	b.queue[0] = nil
	b.queue = b.queue[1:]
	b.dispatched.Add(1)
	return ev, true
}

// Close shuts the bus down and discards queued events that were not yet
// dispatched. Idempotent. A blocked Pop returns ok=false.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.discarded.Add(uint64(len(b.queue)))
	b.queue = nil
	b.mu.Unlock()

	select {
	case b.notify <- struct{}{}:
	default:
	}
}

// Stats returns a snapshot of bus counters.
func (b *Bus) Stats() Stats {
	return Stats{
		Posted:      b.posted.Load(),
		Dispatched:  b.dispatched.Load(),
		Intercepted: b.intercepted.Load(),
		Discarded:   b.discarded.Load(),
	}
}

// Len returns the number of queued, undispatched events.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}
