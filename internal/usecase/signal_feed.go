package usecase

import (
	"sync"

	"SignalDesk/internal/domain/models"
)

// FeedEvent is one snapshot pushed to live viewers.
type FeedEvent struct {
	Seq      int64                  `json:"seq"`
	Snapshot models.SignalsResponse `json:"snapshot"`
	Initial  bool                   `json:"initial,omitempty"`
}

// SignalFeed fans saved snapshots out to subscribers. Sends never block:
// a subscriber whose buffer is full misses that event.
type SignalFeed struct {
	mu      sync.RWMutex
	subs    map[int64]chan FeedEvent
	nextID  int64
	seq     int64
	buffer  int
	dropped int64
	closed  bool
}

func NewSignalFeed(buffer int) *SignalFeed {
	if buffer <= 0 {
		buffer = 16
	}
	return &SignalFeed{subs: make(map[int64]chan FeedEvent), buffer: buffer}
}

// Subscribe registers a subscriber. The returned cancel func is idempotent
// and closes the channel.
func (f *SignalFeed) Subscribe() (<-chan FeedEvent, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ch := make(chan FeedEvent, f.buffer)
	if f.closed {
		close(ch)
		return ch, func() {}
	}
	f.nextID++
	id := f.nextID
	f.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			if c, ok := f.subs[id]; ok {
				delete(f.subs, id)
				close(c)
			}
		})
	}
}

// Publish delivers snap to every subscriber and returns its sequence number.
func (f *SignalFeed) Publish(snap models.SignalsResponse) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return f.seq
	}
	f.seq++
	ev := FeedEvent{Seq: f.seq, Snapshot: snap}
	for _, ch := range f.subs {
		select {
		case ch <- ev:
		default:
			f.dropped++
		}
	}
	return f.seq
}

// Subscribers returns the current subscriber count.
func (f *SignalFeed) Subscribers() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}

// Dropped returns how many deliveries were skipped for slow subscribers.
func (f *SignalFeed) Dropped() int64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}

// Close disconnects every subscriber.
func (f *SignalFeed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for id, ch := range f.subs {
		delete(f.subs, id)
		close(ch)
	}
}
