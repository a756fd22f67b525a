package subscription

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFeed stands in for an upstream change feed: it counts opens and stops
// and lets tests push values through the broadcast it was opened with.
type fakeFeed struct {
	opens atomic.Int32
	stops atomic.Int32

	mu        sync.Mutex
	broadcast func(int)
}

func (f *fakeFeed) open(broadcast func(int)) func() {
	f.opens.Add(1)

	f.mu.Lock()
	f.broadcast = broadcast
	f.mu.Unlock()

	return func() { f.stops.Add(1) }
}

func (f *fakeFeed) emit(value int) {
	f.mu.Lock()
	broadcast := f.broadcast
	f.mu.Unlock()

	if broadcast != nil {
		broadcast(value)
	}
}

func TestFirstSubscriberOpensFeedOnce(t *testing.T) {
	m := NewMultiplexer[int]()
	feed := &fakeFeed{}

	unsubA := m.Subscribe("onboardings", feed.open, func(int) {})
	defer unsubA()

	unsubB := m.Subscribe("onboardings", feed.open, func(int) {})
	defer unsubB()

	assert.Equal(t, int32(1), feed.opens.Load())
	assert.True(t, m.Active("onboardings"))
}

func TestBroadcastReachesEveryConsumer(t *testing.T) {
	m := NewMultiplexer[int]()
	feed := &fakeFeed{}

	var gotA, gotB []int

	unsubA := m.Subscribe("templates", feed.open, func(v int) { gotA = append(gotA, v) })
	defer unsubA()

	unsubB := m.Subscribe("templates", feed.open, func(v int) { gotB = append(gotB, v) })
	defer unsubB()

	feed.emit(1)
	feed.emit(2)

	assert.Equal(t, []int{1, 2}, gotA)
	assert.Equal(t, []int{1, 2}, gotB)
}

func TestLateSubscriberGetsCachedValueSynchronously(t *testing.T) {
	m := NewMultiplexer[int]()
	feed := &fakeFeed{}

	unsubA := m.Subscribe("templates", feed.open, func(int) {})
	defer unsubA()

	feed.emit(42)

	var got []int

	unsubB := m.Subscribe("templates", feed.open, func(v int) { got = append(got, v) })
	defer unsubB()

	// Delivered during Subscribe, before any further upstream event.
	require.Equal(t, []int{42}, got)
	assert.Equal(t, int32(1), feed.opens.Load())
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	m := NewMultiplexer[int]()
	feed := &fakeFeed{}

	unsubA := m.Subscribe("templates", feed.open, func(int) {})
	unsubB := m.Subscribe("templates", feed.open, func(int) {})

	// Double-unsubscribe must not steal B's reference.
	unsubA()
	unsubA()

	assert.True(t, m.Active("templates"))
	assert.Equal(t, int32(0), feed.stops.Load())

	unsubB()

	assert.False(t, m.Active("templates"))
	assert.Equal(t, int32(1), feed.stops.Load())
}

func TestLastUnsubscribeStopsFeedAndClearsCache(t *testing.T) {
	m := NewMultiplexer[int]()
	feed := &fakeFeed{}

	unsub := m.Subscribe("templates", feed.open, func(int) {})
	feed.emit(7)
	unsub()

	require.Equal(t, int32(1), feed.stops.Load())

	// A fresh subscriber starts a fresh feed and sees no stale cache.
	var got []int

	unsub = m.Subscribe("templates", feed.open, func(v int) { got = append(got, v) })
	defer unsub()

	assert.Empty(t, got)
	assert.Equal(t, int32(2), feed.opens.Load())
}

func TestNoDeliveryAfterUnsubscribe(t *testing.T) {
	m := NewMultiplexer[int]()
	feed := &fakeFeed{}

	var got []int

	unsub := m.Subscribe("templates", feed.open, func(v int) { got = append(got, v) })

	keepAlive := m.Subscribe("templates", feed.open, func(int) {})
	defer keepAlive()

	feed.emit(1)
	unsub()
	feed.emit(2)

	assert.Equal(t, []int{1}, got)
}

func TestUnsubscribeDuringBroadcastSuppressesDelivery(t *testing.T) {
	m := NewMultiplexer[int]()
	feed := &fakeFeed{}

	var unsubB func()

	var gotB []int

	// A subscribes first, so its callback runs first during fan-out and
	// removes B before B's turn.
	m.Subscribe("templates", feed.open, func(int) { unsubB() })

	unsubB = m.Subscribe("templates", feed.open, func(v int) { gotB = append(gotB, v) })

	feed.emit(1)

	assert.Empty(t, gotB)
}

func TestKeysAreIndependent(t *testing.T) {
	m := NewMultiplexer[int]()
	feedA := &fakeFeed{}
	feedB := &fakeFeed{}

	var gotA, gotB []int

	unsubA := m.Subscribe("templates", feedA.open, func(v int) { gotA = append(gotA, v) })
	defer unsubA()

	unsubB := m.Subscribe("onboardings", feedB.open, func(v int) { gotB = append(gotB, v) })
	defer unsubB()

	feedA.emit(1)
	feedB.emit(2)

	assert.Equal(t, []int{1}, gotA)
	assert.Equal(t, []int{2}, gotB)
	assert.Equal(t, int32(1), feedA.opens.Load())
	assert.Equal(t, int32(1), feedB.opens.Load())
}

func TestConcurrentSubscribersShareOneFeed(t *testing.T) {
	m := NewMultiplexer[int]()
	feed := &fakeFeed{}

	var wg sync.WaitGroup

	unsubs := make([]func(), 32)

	for i := range unsubs {
		wg.Add(1)

		go func() {
			defer wg.Done()

			unsubs[i] = m.Subscribe("templates", feed.open, func(int) {})
		}()
	}

	wg.Wait()

	assert.Equal(t, int32(1), feed.opens.Load())

	for _, unsub := range unsubs {
		unsub()
	}

	assert.Equal(t, int32(1), feed.stops.Load())
	assert.False(t, m.Active("templates"))
}
