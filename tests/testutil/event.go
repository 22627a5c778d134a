package testutil

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/municipal/backoffice/internal/domain/shared"
)

// EventRecorder captures domain events. It can be subscribed to a bus as a
// handler or passed directly to a service as its publisher.
type EventRecorder struct {
	mu         sync.Mutex
	eventTypes []string
	events     []shared.DomainEvent
	err        error
}

// NewEventRecorder creates a recorder; without eventTypes it receives every event
func NewEventRecorder(eventTypes ...string) *EventRecorder {
	return &EventRecorder{eventTypes: eventTypes}
}

// EventTypes implements shared.EventHandler
func (r *EventRecorder) EventTypes() []string {
	return r.eventTypes
}

// Handle implements shared.EventHandler
func (r *EventRecorder) Handle(_ context.Context, event shared.DomainEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return r.err
}

// Publish implements shared.EventPublisher
func (r *EventRecorder) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	for _, e := range events {
		if err := r.Handle(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

// Fail makes every following Handle and Publish return err
func (r *EventRecorder) Fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// Events returns a copy of the recorded events
func (r *EventRecorder) Events() []shared.DomainEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]shared.DomainEvent(nil), r.events...)
}

// Types returns the recorded event types in order
func (r *EventRecorder) Types() []string {
	events := r.Events()
	types := make([]string, len(events))
	for i, e := range events {
		types[i] = e.EventType()
	}
	return types
}

// Count returns how many events were recorded
func (r *EventRecorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// ForAggregate returns the events raised by one aggregate
func (r *EventRecorder) ForAggregate(id uuid.UUID) []shared.DomainEvent {
	var out []shared.DomainEvent
	for _, e := range r.Events() {
		if e.AggregateID() == id {
			out = append(out, e)
		}
	}
	return out
}

// StubEvent is a bare domain event for bus tests
type StubEvent struct {
	shared.BaseDomainEvent
}

// NewStubEvent creates an event of eventType for a new aggregate
func NewStubEvent(eventType string) *StubEvent {
	return &StubEvent{BaseDomainEvent: shared.NewBaseDomainEvent(eventType, "Stub", uuid.New())}
}
