package events

import (
	"sync"
	"sync/atomic"
)

// Bus is an in-process pub/sub broker. Publishing never blocks: a payload
// is dropped for any subscriber whose buffer is full.
type Bus struct {
	mu      sync.RWMutex
	subs    map[Event][]chan any
	dropped atomic.Uint64
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[Event][]chan any)}
}

// Subscribe registers a listener for e and returns its channel and an
// unsubscribe function that closes the channel.
func (b *Bus) Subscribe(e Event, buffer int) (<-chan any, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan any, buffer)
	b.subs[e] = append(b.subs[e], ch)

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			subs := b.subs[e]
			for i, c := range subs {
				if c == ch {
					close(c)
					b.subs[e] = append(subs[:i], subs[i+1:]...)
					break
				}
			}
		})
	}
	return ch, unsub
}

// Publish fans payload out to every subscriber of e and returns how many
// received it.
func (b *Bus) Publish(e Event, payload any) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	delivered := 0
	for _, ch := range b.subs[e] {
		select {
		case ch <- payload:
			delivered++
		default:
			b.dropped.Add(1)
		}
	}
	return delivered
}

// Dropped is the number of payloads discarded for slow subscribers.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}
