// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package event

import (
	"sync"
	"sync/atomic"
)

// DefaultBufferSize is the number of values a subscription can hold before new values are dropped for it.
const DefaultBufferSize = 64

// Feed is a live stream of values of type T.
type Feed[T any] interface {
	// C returns the channel delivering the values. It is closed once the feed ends.
	C() <-chan T
	// Cancel stops the delivery and releases the underlying subscription. It is safe to call it more than once.
	Cancel()
	// Dropped returns how many values were discarded because the subscriber was not keeping up.
	Dropped() uint64
}

// Emitter delivers every emitted value to the subscriptions whose filter accepts it.
// Emit never blocks on a slow subscriber.
type Emitter[T any] struct {
	mu     sync.RWMutex
	subs   map[*subscription[T]]struct{}
	buffer int
	closed bool
}

// NewEmitter returns an emitter whose subscriptions buffer up to buffer values.
// A non positive buffer selects DefaultBufferSize.
func NewEmitter[T any](buffer int) *Emitter[T] {
	if buffer <= 0 {
		buffer = DefaultBufferSize
	}

	return &Emitter[T]{
		subs:   make(map[*subscription[T]]struct{}),
		buffer: buffer,
	}
}

// Subscribe returns a new feed receiving the values accepted by filter. A nil filter accepts everything.
// Subscribing to a closed emitter returns an already ended feed.
func (e *Emitter[T]) Subscribe(filter func(T) bool) Feed[T] {
	sub := &subscription[T]{
		emitter: e,
		filter:  filter,
		ch:      make(chan T, e.buffer),
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		sub.closed = true
		close(sub.ch)
		return sub
	}

	e.subs[sub] = struct{}{}
	return sub
}

// Emit delivers value to the interested subscriptions.
func (e *Emitter[T]) Emit(value T) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for sub := range e.subs {
		if sub.filter != nil && !sub.filter(value) {
			continue
		}

		select {
		case sub.ch <- value:
		default:
			sub.dropped.Add(1)
		}
	}
}

// Len returns the number of live subscriptions.
func (e *Emitter[T]) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.subs)
}

// Close ends every live subscription. Later subscriptions end immediately.
func (e *Emitter[T]) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.closed = true
	for sub := range e.subs {
		sub.closed = true
		close(sub.ch)
		delete(e.subs, sub)
	}
}

func (e *Emitter[T]) remove(sub *subscription[T]) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if sub.closed {
		return
	}

	sub.closed = true
	close(sub.ch)
	delete(e.subs, sub)
}

var _ Feed[any] = &subscription[any]{}

// subscription is guarded by the emitter lock for its closed flag.
type subscription[T any] struct {
	emitter *Emitter[T]
	filter  func(T) bool
	ch      chan T
	closed  bool
	dropped atomic.Uint64
}

func (s *subscription[T]) C() <-chan T {
	return s.ch
}

func (s *subscription[T]) Cancel() {
	s.emitter.remove(s)
}

func (s *subscription[T]) Dropped() uint64 {
	return s.dropped.Load()
}

var _ Feed[any] = &mappedFeed[any, any]{}

// mappedFeed relays the values of a source feed through a conversion function.
type mappedFeed[T, U any] struct {
	source Feed[T]
	out    chan U
	done   chan struct{}
	once   sync.Once
}

// Map returns a feed delivering fn applied to every value of source.
// Cancelling the returned feed cancels source as well.
func Map[T, U any](source Feed[T], fn func(T) U) Feed[U] {
	feed := &mappedFeed[T, U]{
		source: source,
		out:    make(chan U),
		done:   make(chan struct{}),
	}

	go feed.relay(fn)
	return feed
}

func (m *mappedFeed[T, U]) relay(fn func(T) U) {
	defer close(m.out)

	for {
		select {
		case <-m.done:
			return
		case value, ok := <-m.source.C():
			if !ok {
				return
			}

			select {
			case m.out <- fn(value):
			case <-m.done:
				return
			}
		}
	}
}

func (m *mappedFeed[T, U]) C() <-chan U {
	return m.out
}

func (m *mappedFeed[T, U]) Cancel() {
	m.once.Do(func() {
		close(m.done)
		m.source.Cancel()
	})
}

func (m *mappedFeed[T, U]) Dropped() uint64 {
	return m.source.Dropped()
}
