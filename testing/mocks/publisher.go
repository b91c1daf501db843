// Package mocks provides testify-based mocks of the service's interfaces.
package mocks

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/nephrolytics/practice-api/messaging"
)

// MockPublisher provides a testify-based mock implementation of messaging.Publisher.
// Published events are also recorded for inspection.
//
// Example usage:
//
//	pub := mocks.NewMockPublisher()
//	pub.On("Publish", mock.Anything, mock.Anything).Return(nil)
//	...
//	assert.Equal(t, "patient.created", pub.Events()[0].Type)
type MockPublisher struct {
	mock.Mock

	mu     sync.Mutex
	events []messaging.Event
}

var _ messaging.Publisher = (*MockPublisher)(nil)

// NewMockPublisher creates a publisher mock.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

// Publish implements messaging.Publisher.
func (m *MockPublisher) Publish(ctx context.Context, event messaging.Event) error {
	m.mu.Lock()
	m.events = append(m.events, event)
	m.mu.Unlock()

	args := m.Called(ctx, event)
	return args.Error(0)
}

// Close implements messaging.Publisher.
func (m *MockPublisher) Close() error {
	args := m.Called()
	return args.Error(0)
}

// Events returns the events published so far.
func (m *MockPublisher) Events() []messaging.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]messaging.Event(nil), m.events...)
}

// EventTypes returns the types of the events published so far.
func (m *MockPublisher) EventTypes() []string {
	events := m.Events()
	types := make([]string, len(events))
	for i, e := range events {
		types[i] = e.Type
	}
	return types
}
