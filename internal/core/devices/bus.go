package devices

import (
	"log/slog"
	"sync"
	"time"
)

// EventType identifies event categories on the bus.
type EventType string

const (
	// EventDevicesUpdated fires after every successful poll merge.
	EventDevicesUpdated EventType = "devices_updated"
	// EventSessionRefreshed fires after a re-authentication.
	EventSessionRefreshed EventType = "session_refreshed"
	// EventPollError fires when a poll cycle fails.
	EventPollError EventType = "poll_error"
)

// Event is one bus notification.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

// Bus is a simple publish/subscribe event bus. Subscribers with full
// buffers miss events rather than blocking the publisher.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[int]chan Event
	nextID      int
	log         *slog.Logger
}

// NewBus creates a new event bus.
func NewBus(log *slog.Logger) *Bus {
	return &Bus{
		subscribers: make(map[int]chan Event),
		log:         log,
	}
}

// Publish sends an event to all subscribers.
func (b *Bus) Publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subscribers {
		select {
		case ch <- evt:
		default:
			b.log.Warn("event bus: subscriber buffer full, dropping event", "subscriber_id", id, "event_type", evt.Type)
		}
	}
}

// Subscribe returns a channel of events and an unsubscribe function.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}

	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subscribers[id] = ch
	b.mu.Unlock()

	unsub := func() {
		b.mu.Lock()
		delete(b.subscribers, id)
		b.mu.Unlock()
		// drain anything buffered so the channel can be collected
		for {
			select {
			case <-ch:
			default:
				return
			}
		}
	}
	return ch, unsub
}
