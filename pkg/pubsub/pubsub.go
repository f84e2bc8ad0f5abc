// Package pubsub fans values out to any number of subscribers without letting
// a slow subscriber block the publisher.
package pubsub

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Broadcaster delivers every published value to each live subscriber.
// A subscriber whose buffer is full misses that value.
type Broadcaster[T any] struct {
	mu     sync.RWMutex
	subs   map[int]chan T
	nextID int
	closed bool
	name   string
}

// NewBroadcaster func
func NewBroadcaster[T any](name string) *Broadcaster[T] {
	return &Broadcaster[T]{subs: make(map[int]chan T), name: name}
}

// Subscribe registers a subscriber. The returned cancel func unregisters it
// and closes the channel; it is safe to call more than once.
func (b *Broadcaster[T]) Subscribe(buffer int) (<-chan T, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan T, buffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
}

// Publish sends v to every subscriber without blocking
func (b *Broadcaster[T]) Publish(v T) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for id, ch := range b.subs {
		select {
		case ch <- v:
		default:
			logrus.WithFields(logrus.Fields{"broadcaster": b.name, "subscriber": id}).
				Debug("subscriber buffer full, dropping value")
		}
	}
}

// Len returns the number of live subscribers
func (b *Broadcaster[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close closes every subscriber channel; later Publish calls are ignored
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
