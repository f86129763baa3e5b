package mocks

import (
	"context"
	"sync"

	"github.com/metinatakli/cinex-booking/internal/domain"
)

// MockEventPublisher records published events for assertions.
type MockEventPublisher struct {
	mu     sync.RWMutex
	events []domain.BookingEvent
}

func (m *MockEventPublisher) Publish(ctx context.Context, event domain.BookingEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.events = append(m.events, event)

	return nil
}

// Events returns a copy of all published events.
func (m *MockEventPublisher) Events() []domain.BookingEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]domain.BookingEvent, len(m.events))
	copy(events, m.events)
	return events
}

// Types returns the published event types in order.
func (m *MockEventPublisher) Types() []domain.BookingEventType {
	m.mu.RLock()
	defer m.mu.RUnlock()

	types := make([]domain.BookingEventType, len(m.events))
	for i, e := range m.events {
		types[i] = e.Type
	}
	return types
}
