package stream

import (
	"context"
	"sync"
)

// Broadcaster fans out values from one source to N listeners.
type Broadcaster[T any] struct {
	mu        sync.RWMutex
	listeners map[*Listener[T]]struct{}
	buffer    int
}

// Listener receives values from the broadcaster.
type Listener[T any] struct {
	C    chan T
	done chan struct{}
}

// Done is closed once the listener is unsubscribed.
func (l *Listener[T]) Done() <-chan struct{} { return l.done }

// NewBroadcaster creates a broadcaster whose listeners buffer up to buffer values.
func NewBroadcaster[T any](buffer int) *Broadcaster[T] {
	if buffer < 1 {
		buffer = 1
	}
	return &Broadcaster[T]{
		listeners: make(map[*Listener[T]]struct{}),
		buffer:    buffer,
	}
}

// Subscribe registers a new listener.
func (b *Broadcaster[T]) Subscribe() *Listener[T] {
	l := &Listener[T]{
		C:    make(chan T, b.buffer),
		done: make(chan struct{}),
	}
	b.mu.Lock()
	b.listeners[l] = struct{}{}
	b.mu.Unlock()
	return l
}

// Unsubscribe removes a listener and signals it to stop.
func (b *Broadcaster[T]) Unsubscribe(l *Listener[T]) {
	b.mu.Lock()
	_, ok := b.listeners[l]
	delete(b.listeners, l)
	b.mu.Unlock()
	if ok {
		close(l.done)
	}
}

// ListenerCount returns the number of active listeners.
func (b *Broadcaster[T]) ListenerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

// Publish delivers v to every listener.
// Slow listeners get the value dropped rather than blocking the broadcast.
func (b *Broadcaster[T]) Publish(v T) {
	b.mu.RLock()
	for l := range b.listeners {
		select {
		case l.C <- v:
		default:
		}
	}
	b.mu.RUnlock()
}

// Run reads values from source and fans out to all listeners.
func (b *Broadcaster[T]) Run(ctx context.Context, source <-chan T) {
	for {
		select {
		case <-ctx.Done():
			return
		case v, ok := <-source:
			if !ok {
				return
			}
			b.Publish(v)
		}
	}
}
