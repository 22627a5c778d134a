package payroll

import (
	"time"

	"github.com/google/uuid"
	"github.com/municipal/backoffice/internal/domain/shared"
)

// ActivityLog is one entry of the payroll dashboard's recent activity feed
type ActivityLog struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Type      string     `gorm:"size:50;not null" json:"type"`
	Message   string     `gorm:"size:500;not null" json:"message"`
	EntityID  uuid.UUID  `gorm:"type:uuid;not null;index" json:"entity_id"`
	ActorID   *uuid.UUID `gorm:"type:uuid" json:"actor_id,omitempty"`
	CreatedAt time.Time  `gorm:"not null;index" json:"created_at"`
}

// TableName returns the table name for GORM
func (ActivityLog) TableName() string {
	return "payroll_activity_logs"
}

// NewActivityFromEvent converts a domain event into an activity entry
func NewActivityFromEvent(event shared.DomainEvent) *ActivityLog {
	message := event.EventType()
	if d, ok := event.(shared.Describable); ok {
		message = d.Describe()
	}
	entry := &ActivityLog{
		ID:        uuid.New(),
		Type:      event.EventType(),
		Message:   message,
		EntityID:  event.AggregateID(),
		CreatedAt: event.OccurredAt(),
	}
	if a, ok := event.(Attributed); ok && a.Actor() != uuid.Nil {
		id := a.Actor()
		entry.ActorID = &id
	}
	return entry
}
