package events

import (
	"encoding/json"
	"sync"
	"time"
)

const (
	EventSyncPassCompleted    = "sync_pass_completed"
	EventMutationDeadLettered = "mutation_dead_lettered"
	EventConnectivityChanged  = "connectivity_changed"
)

// SyncPassPayload summarizes one completed sync pass for subscribers.
type SyncPassPayload struct {
	Trigger    string    `json:"trigger"`
	Succeeded  int       `json:"succeeded"`
	Terminal   int       `json:"terminal"`
	Retried    int       `json:"retried"`
	Deferred   int       `json:"deferred"`
	Refreshed  int       `json:"refreshed"`
	Skipped    int       `json:"skipped"`
	FinishedAt time.Time `json:"finished_at"`
}

// DeadLetterPayload tells the UI layer a mutation was permanently dropped.
// This is the one outcome that must reach a human.
type DeadLetterPayload struct {
	MutationID string `json:"mutation_id"`
	TargetURL  string `json:"target_url"`
	Method     string `json:"method"`
	Reason     string `json:"reason"`
	Attempts   int    `json:"attempts"`
}

// ConnectivityPayload reports an online/offline edge.
type ConnectivityPayload struct {
	Online bool `json:"online"`
}

// Event is a lightweight in-process notification.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// Handler reacts to an event.
type Handler func(event *Event) error

// Bus provides in-process pub/sub between the engine and its embedder.
type Bus struct {
	subscribers map[string][]Handler
	mu          sync.RWMutex
}

// NewBus constructs an empty bus.
func NewBus() *Bus {
	return &Bus{subscribers: make(map[string][]Handler)}
}

// Subscribe registers a handler for a given event type.
func (b *Bus) Subscribe(eventType string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type.
func (b *Bus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		_ = handler(event)
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *Bus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}
