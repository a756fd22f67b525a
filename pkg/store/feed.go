package store

import "sync"

// feedBuffer is the event buffer per feed. Events are wake-up signals, so a
// full buffer already holds a pending wake-up and further deliveries can be
// dropped without losing information.
const feedBuffer = 16

// FeedStream is a Feed driven by adapter code: the producing goroutine calls
// Deliver for each upstream event and Finish when the upstream source drains;
// consumers call Close to tear the upstream registration down.
type FeedStream struct {
	events    chan ChangeEvent
	stop      func()
	closeOnce sync.Once
	doneOnce  sync.Once
}

// NewFeedStream creates a feed whose Close invokes stop (closing the upstream
// registration). stop may be nil.
func NewFeedStream(stop func()) *FeedStream {
	return &FeedStream{
		events: make(chan ChangeEvent, feedBuffer),
		stop:   stop,
	}
}

// Events implements Feed.
func (s *FeedStream) Events() <-chan ChangeEvent {
	return s.events
}

// Deliver hands an event to the consumer without blocking. When the buffer is
// full the event is dropped: the consumer already has a wake-up pending and
// will re-fetch past this change anyway. Only the producing goroutine may
// call Deliver, and never after Finish.
func (s *FeedStream) Deliver(event ChangeEvent) bool {
	select {
	case s.events <- event:
		return true
	default:
		return false
	}
}

// Finish closes the event channel. The producing goroutine calls it exactly
// once, after its upstream source has drained.
func (s *FeedStream) Finish() {
	s.doneOnce.Do(func() {
		close(s.events)
	})
}

// Close implements Feed. It stops the upstream registration, which in turn
// makes the producer drain and Finish. Idempotent.
func (s *FeedStream) Close() error {
	s.closeOnce.Do(func() {
		if s.stop != nil {
			s.stop()
		}
	})

	return nil
}

// FilterFeed narrows inner to events matching filter. Events that carry no
// row payload pass through unfiltered — feeds are best-effort and a spurious
// wake-up only costs one re-fetch, whereas a suppressed one would lose data.
func FilterFeed(inner Feed, filter Filter) Feed {
	if len(filter) == 0 {
		return inner
	}

	out := NewFeedStream(func() {
		_ = inner.Close()
	})

	go func() {
		defer out.Finish()

		for event := range inner.Events() {
			if event.Row != nil && !filter.Matches(event.Row) {
				continue
			}

			out.Deliver(event)
		}
	}()

	return out
}
