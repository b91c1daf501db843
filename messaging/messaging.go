// Package messaging publishes domain events about tenant-owned records.
package messaging

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nephrolytics/practice-api/logger"
)

// Event actions
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
)

// Event describes a change to a tenant-owned record. It carries identifiers
// only; record contents stay in the database.
type Event struct {
	ID         uuid.UUID `json:"id"`
	Type       string    `json:"type"`
	AccountID  int64     `json:"account_id"`
	EntityID   int64     `json:"entity_id"`
	ActorID    int64     `json:"actor_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewEvent builds an event of type "<entity>.<action>".
func NewEvent(entity, action string, accountID, entityID, actorID int64) Event {
	return Event{
		ID:         uuid.New(),
		Type:       entity + "." + action,
		AccountID:  accountID,
		EntityID:   entityID,
		ActorID:    actorID,
		OccurredAt: time.Now().UTC(),
	}
}

// Publisher delivers events to a broker.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// NopPublisher drops every event. It is used when no broker is configured.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, Event) error { return nil }

// Close implements Publisher.
func (NopPublisher) Close() error { return nil }

// Emitter publishes events on behalf of request handlers. Failures are logged
// and never surface to the caller.
type Emitter struct {
	publisher Publisher
	log       logger.Logger
}

// NewEmitter wraps publisher. A nil publisher behaves like NopPublisher.
func NewEmitter(publisher Publisher, log logger.Logger) *Emitter {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Emitter{publisher: publisher, log: log}
}

// Emit publishes event and logs any failure.
func (e *Emitter) Emit(ctx context.Context, event Event) {
	if e == nil {
		return
	}
	if err := e.publisher.Publish(ctx, event); err != nil {
		e.log.WithContext(ctx).Warn().
			Err(err).
			Str("event_type", event.Type).
			Int64("account_id", event.AccountID).
			Int64("entity_id", event.EntityID).
			Msg("Failed to publish domain event")
	}
}
