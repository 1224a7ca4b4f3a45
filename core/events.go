package core

import "sync"

// EventType identifies a chain notification.
type EventType string

const (
	EventBlockProduced  EventType = "block_produced"
	EventBlockConnected EventType = "block_connected"
	EventChainError     EventType = "chain_error"
)

// Event is a typed chain notification delivered to subscribers.
type Event struct {
	Type        EventType `json:"type"`
	Height      uint64    `json:"height"`
	Hash        string    `json:"hash,omitempty"`
	ValidatorID string    `json:"validatorId,omitempty"`
	Message     string    `json:"message,omitempty"`
	Timestamp   int64     `json:"timestamp"`
}

// Bus fans chain events out to subscribers. Publish never blocks; a
// subscriber that falls behind misses events rather than stalling the
// producer.
type Bus struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe registers a new subscriber and returns its id and channel.
func (b *Bus) Subscribe() (int, <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	ch := make(chan Event, 16)
	b.subs[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

// Publish delivers an event to every subscriber that has buffer room.
func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}
