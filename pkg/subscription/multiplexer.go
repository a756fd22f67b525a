// Package subscription provides ref-counted shared subscriptions. N
// consumers asking for the same logical feed share one upstream registration
// and one cached snapshot, instead of opening N duplicate feeds against the
// store.
package subscription

import (
	"slices"
	"sync"
)

// OpenFunc starts a live feed for one logical key. It receives a broadcast
// function to call for every upstream value and returns a stop function that
// tears the feed down.
type OpenFunc[T any] func(broadcast func(T)) (stop func())

type entry[T any] struct {
	consumers map[uint64]func(T)
	nextToken uint64
	lastValue T
	hasValue  bool
	stop      func()
}

// Multiplexer shares feeds between consumers, keyed by logical name. Each
// instance owns its own registry, so independent multiplexers never
// cross-contaminate.
type Multiplexer[T any] struct {
	mu      sync.Mutex
	entries map[string]*entry[T]
}

func NewMultiplexer[T any]() *Multiplexer[T] {
	return &Multiplexer[T]{
		entries: make(map[string]*entry[T]),
	}
}

// Subscribe registers onData under key. The first consumer for a key invokes
// open; later consumers share the running feed and receive the cached last
// value synchronously, so they see current data without waiting for the next
// upstream event. The returned unsubscribe is idempotent; when the last
// consumer leaves, the feed is stopped and the cache cleared.
func (m *Multiplexer[T]) Subscribe(key string, open OpenFunc[T], onData func(T)) (unsubscribe func()) {
	m.mu.Lock()

	e, running := m.entries[key]
	if !running {
		e = &entry[T]{consumers: make(map[uint64]func(T))}
		m.entries[key] = e
	}

	token := e.nextToken
	e.nextToken++
	e.consumers[token] = onData

	deliverCached := e.hasValue
	cached := e.lastValue
	m.mu.Unlock()

	if deliverCached {
		onData(cached)
	}

	if !running {
		stop := open(func(value T) { m.broadcast(key, e, value) })

		m.mu.Lock()
		if m.entries[key] == e && len(e.consumers) > 0 {
			e.stop = stop
			m.mu.Unlock()
		} else {
			// Every consumer left while the feed was being opened; close it
			// right away.
			m.mu.Unlock()

			if stop != nil {
				stop()
			}
		}
	}

	var once sync.Once

	return func() {
		once.Do(func() { m.remove(key, e, token) })
	}
}

// Active reports whether a feed is currently running for key.
func (m *Multiplexer[T]) Active(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.entries[key]

	return ok
}

func (m *Multiplexer[T]) remove(key string, e *entry[T], token uint64) {
	m.mu.Lock()

	if m.entries[key] != e {
		m.mu.Unlock()
		return
	}

	delete(e.consumers, token)

	if len(e.consumers) > 0 {
		m.mu.Unlock()
		return
	}

	delete(m.entries, key)
	stop := e.stop
	m.mu.Unlock()

	if stop != nil {
		stop()
	}
}

// broadcast caches value and fans it out in subscription order. Membership is
// re-checked before each delivery, so a consumer that unsubscribes while the
// fan-out is in progress receives nothing further.
func (m *Multiplexer[T]) broadcast(key string, e *entry[T], value T) {
	m.mu.Lock()

	if m.entries[key] != e {
		m.mu.Unlock()
		return
	}

	e.lastValue = value
	e.hasValue = true

	tokens := make([]uint64, 0, len(e.consumers))
	for token := range e.consumers {
		tokens = append(tokens, token)
	}

	m.mu.Unlock()

	slices.Sort(tokens)

	for _, token := range tokens {
		m.mu.Lock()
		onData, live := e.consumers[token]
		m.mu.Unlock()

		if live {
			onData(value)
		}
	}
}
