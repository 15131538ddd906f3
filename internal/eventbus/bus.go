package eventbus

import (
	"context"
	"errors"
	"sync"
)

// ErrBusClosed is returned by Publish after Close.
var ErrBusClosed = errors.New("event bus is closed")

// Handler receives events on the dispatcher goroutine.
type Handler[E any] func(E)

type subscription[E any] struct {
	id uint64
	fn Handler[E]
}

// Bus delivers events to subscribers in publish order on a single
// goroutine. Publish never blocks; the queue is unbounded.
type Bus[E any] struct {
	mu      sync.Mutex
	closed  bool
	queue   []E
	pending int
	idle    chan struct{}
	subs    []subscription[E]
	nextID  uint64

	wake chan struct{}
	done chan struct{}
}

// New starts a bus. Close must be called to stop its goroutine.
func New[E any]() *Bus[E] {
	idle := make(chan struct{})
	close(idle)

	b := &Bus[E]{
		idle: idle,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go b.run()
	return b
}

// Publish queues event for delivery. It returns ErrBusClosed after Close.
func (b *Bus[E]) Publish(event E) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBusClosed
	}

	b.queue = append(b.queue, event)
	b.pending++
	if b.pending == 1 {
		b.idle = make(chan struct{})
	}
	b.signal()
	return nil
}

// Subscribe registers fn for every event published afterwards.
// The returned function removes the subscription; it is safe to call twice.
func (b *Bus[E]) Subscribe(fn Handler[E]) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID

	// Copy on write so run can iterate a snapshot without holding the lock.
	subs := make([]subscription[E], 0, len(b.subs)+1)
	subs = append(subs, b.subs...)
	b.subs = append(subs, subscription[E]{id: id, fn: fn})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		kept := make([]subscription[E], 0, len(b.subs))
		for _, s := range b.subs {
			if s.id != id {
				kept = append(kept, s)
			}
		}
		b.subs = kept
	}
}

// Flush waits until every queued event has been delivered.
func (b *Bus[E]) Flush(ctx context.Context) error {
	b.mu.Lock()
	idle := b.idle
	b.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting events, delivers the ones already queued and waits
// for the dispatcher to exit. It must not be called from a handler.
func (b *Bus[E]) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		<-b.done
		return
	}
	b.closed = true
	b.signal()
	b.mu.Unlock()

	<-b.done
}

func (b *Bus[E]) signal() {
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

func (b *Bus[E]) run() {
	defer close(b.done)

	for {
		b.mu.Lock()
		if len(b.queue) == 0 {
			closed := b.closed
			b.mu.Unlock()
			if closed {
				return
			}
			<-b.wake
			continue
		}

		event := b.queue[0]
		var zero E
		b.queue[0] = zero
		b.queue = b.queue[1:]
		subs := b.subs
		b.mu.Unlock()

		for _, s := range subs {
			s.fn(event)
		}

		b.mu.Lock()
		b.pending--
		if b.pending == 0 {
			close(b.idle)
		}
		b.mu.Unlock()
	}
}
