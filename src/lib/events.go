package lib

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EVENT_BOOKING_CREATED   EventType = "booking.created"
	EVENT_BOOKING_CONFIRMED EventType = "booking.confirmed"
	EVENT_BOOKING_REJECTED  EventType = "booking.rejected"
	EVENT_BOOKING_CANCELLED EventType = "booking.cancelled"
	EVENT_BOOKING_EXPIRED   EventType = "booking.expired"
	EVENT_BOOKING_COMPLETED EventType = "booking.completed"
	EVENT_PAYMENT_SUCCEEDED EventType = "payment.succeeded"
	EVENT_PAYMENT_FAILED    EventType = "payment.failed"
	EVENT_PAYMENT_REFUNDED  EventType = "payment.refunded"
	EVENT_PAYOUT_REQUESTED  EventType = "payout.requested"
	EVENT_PAYOUT_APPROVED   EventType = "payout.approved"
	EVENT_PAYOUT_REJECTED   EventType = "payout.rejected"
)

// Event is a domain notification emitted after a commit. Delivery is at most once; consumers
// that need the truth read it back from the API.
type Event struct {
	ID         uuid.UUID      `json:"id"`
	Type       EventType      `json:"type"`
	Key        string         `json:"key"`
	Payload    map[string]any `json:"payload"`
	OccurredAt time.Time      `json:"occurred_at"`
}

func NewEvent(t EventType, key string, payload map[string]any) Event {
	return Event{
		ID:         uuid.New(),
		Type:       t,
		Key:        key,
		Payload:    payload,
		OccurredAt: time.Now().UTC(),
	}
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Emit publishes e and only logs failures; a lost notification never undoes a committed change.
func Emit(ctx context.Context, p Publisher, e Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, e); err != nil {
		log.Printf("[events] Failed to publish %s (%s): %s\n", e.Type, e.Key, err.Error())
	}
}

// LogPublisher writes events to the application log.
type LogPublisher struct{}

func (LogPublisher) Publish(ctx context.Context, e Event) error {
	value, err := json.Marshal(e)
	if err != nil {
		return err
	}
	log.Printf("[events] %s\n", value)
	return nil
}

// MemoryPublisher keeps published events in memory.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (m *MemoryPublisher) Publish(ctx context.Context, e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func (m *MemoryPublisher) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

// Types lists the event types published so far, in order.
func (m *MemoryPublisher) Types() []EventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EventType, len(m.events))
	for i, e := range m.events {
		out[i] = e.Type
	}
	return out
}
