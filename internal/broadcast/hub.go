// Package broadcast fans values out to subscriber channels without ever
// blocking the publisher. A Hub built with New coalesces: each subscriber
// holds a small buffer and, when it is full, the oldest pending value is
// dropped so readers converge on the newest value. A Hub built with
// NewQueue delivers every value in order, queueing for slow readers.
package broadcast

import "sync"

const defaultBuffer = 8

type subscriber[T any] struct {
	ch chan T

	// queue mode only
	pending []T
	wake    chan struct{}
	done    chan struct{}
}

type Hub[T any] struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]*subscriber[T]
	buffer int
	queue  bool
	closed bool
}

func New[T any](buffer int) *Hub[T] {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Hub[T]{
		subs:   make(map[int]*subscriber[T]),
		buffer: buffer,
	}
}

// NewQueue returns a hub that never drops a value. Each subscriber gets its
// own unbounded queue drained by a goroutine.
func NewQueue[T any]() *Hub[T] {
	h := New[T](0)
	h.queue = true
	return h
}

// Subscribe registers a new receiver. initial, when non-nil, is delivered
// before any later publication. The returned func unsubscribes and closes the
// channel; it is safe to call more than once.
func (h *Hub[T]) Subscribe(initial *T) (<-chan T, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub := &subscriber[T]{ch: make(chan T, h.buffer)}
	if h.closed {
		close(sub.ch)
		return sub.ch, func() {}
	}

	if h.queue {
		sub.wake = make(chan struct{}, 1)
		sub.done = make(chan struct{})
		go h.pump(sub)
	}
	if initial != nil {
		h.deliver(sub, *initial)
	}

	id := h.nextID
	h.nextID++
	h.subs[id] = sub

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if s, ok := h.subs[id]; ok {
				delete(h.subs, id)
				h.release(s)
			}
		})
	}
}

// Publish delivers v to every subscriber without blocking.
func (h *Hub[T]) Publish(v T) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, sub := range h.subs {
		h.deliver(sub, v)
	}
}

// Close releases every subscriber; later subscriptions receive a closed channel.
func (h *Hub[T]) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, sub := range h.subs {
		delete(h.subs, id)
		h.release(sub)
	}
}

// deliver must be called with h.mu held.
func (h *Hub[T]) deliver(sub *subscriber[T], v T) {
	if h.queue {
		sub.pending = append(sub.pending, v)
		select {
		case sub.wake <- struct{}{}:
		default:
		}
		return
	}

	select {
	case sub.ch <- v:
	default:
		// full: drop the oldest and retry; only deliver sends, under h.mu
		select {
		case <-sub.ch:
		default:
		}
		sub.ch <- v
	}
}

// release must be called with h.mu held.
func (h *Hub[T]) release(sub *subscriber[T]) {
	if h.queue {
		close(sub.done) // pump closes the channel
		return
	}
	close(sub.ch)
}

func (h *Hub[T]) pump(sub *subscriber[T]) {
	defer close(sub.ch)
	for {
		select {
		case <-sub.wake:
		case <-sub.done:
			return
		}
		for {
			h.mu.Lock()
			if len(sub.pending) == 0 {
				h.mu.Unlock()
				break
			}
			v := sub.pending[0]
			sub.pending = sub.pending[1:]
			h.mu.Unlock()

			select {
			case sub.ch <- v:
			case <-sub.done:
				return
			}
		}
	}
}
