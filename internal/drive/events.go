package drive

import (
	"sync"
	"time"
)

// The three progress notification kinds: a total-size announcement
// when a job starts, byte counts for upload progress, and byte counts
// for archive bundling.
const (
	EventTotal  = "total"
	EventUpload = "upload"
	EventBundle = "bundle"
)

// Event is one progress notification. Bytes is an absolute count,
// never a delta, so consumers only need the latest value.
type Event struct {
	Kind      string `json:"kind"`
	JobID     string `json:"job_id"`
	Bytes     int64  `json:"bytes"`
	Timestamp int64  `json:"timestamp"`
}

// Broadcaster fans progress events out to subscribers.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[chan Event]struct{}),
	}
}

// Subscribe registers a new consumer channel. The caller must call
// Unsubscribe when done.
func (b *Broadcaster) Subscribe() chan Event {
	ch := make(chan Event, 64)
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broadcaster) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	delete(b.subscribers, ch)
	close(ch)
	b.mu.Unlock()
}

// Publish delivers an event to every subscriber without blocking.
// Slow consumers lose intermediate values; only the latest byte count
// matters to them.
func (b *Broadcaster) Publish(event Event) {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().Unix()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}

// Count returns the current number of subscribers.
func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
