// Package events fans capture lifecycle events out to SSE subscribers.
package events

import (
	"sync"
	"sync/atomic"
	"time"
)

const subscriberBufSize = 256

// Event kinds published by the capture pipeline.
const (
	KindCaptureStarted  = "capture_started"
	KindAttemptFailed   = "attempt_failed"
	KindCaptureComplete = "capture_complete"
	KindCaptureFailed   = "capture_failed"
	KindBrowserUp       = "browser_up"
	KindBrowserDown     = "browser_down"
)

// Event is one capture lifecycle notification.
type Event struct {
	Kind   string    `json:"kind"`
	Symbol string    `json:"symbol,omitempty"`
	Source string    `json:"source,omitempty"`
	Error  string    `json:"error,omitempty"`
	Bytes  int       `json:"bytes,omitempty"`
	At     time.Time `json:"at"`
}

// Broker fans out events to all subscribed SSE clients.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[int64]chan Event
	nextID      atomic.Int64
}

func NewBroker() *Broker {
	return &Broker{subscribers: make(map[int64]chan Event)}
}

// Subscribe registers a new client. Returns the subscriber ID and a channel
// to receive events on. The channel is buffered; slow consumers will have
// events dropped.
func (b *Broker) Subscribe() (int64, <-chan Event) {
	id := b.nextID.Add(1)
	ch := make(chan Event, subscriberBufSize)
	b.mu.Lock()
	b.subscribers[id] = ch
	b.mu.Unlock()
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broker) Unsubscribe(id int64) {
	b.mu.Lock()
	ch, ok := b.subscribers[id]
	if ok {
		delete(b.subscribers, id)
		close(ch)
	}
	b.mu.Unlock()
}

// Publish stamps evt with the current time when unset and sends it to all
// subscribers. Non-blocking: slow clients have events dropped.
func (b *Broker) Publish(evt Event) {
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- evt:
		default:
		}
	}
}

// ClientCount returns the number of active subscribers.
func (b *Broker) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
