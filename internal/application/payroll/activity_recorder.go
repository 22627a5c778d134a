package payroll

import (
	"context"

	"github.com/municipal/backoffice/internal/domain/payroll"
	"github.com/municipal/backoffice/internal/domain/shared"
)

// ActivityRecorder subscribes to payroll events and appends them to the
// dashboard activity feed
type ActivityRecorder struct {
	activities payroll.ActivityRepository
}

// NewActivityRecorder creates a new activity recorder
func NewActivityRecorder(activities payroll.ActivityRepository) *ActivityRecorder {
	return &ActivityRecorder{activities: activities}
}

// Handle stores the event as an activity entry
func (r *ActivityRecorder) Handle(ctx context.Context, event shared.DomainEvent) error {
	return r.activities.Create(ctx, payroll.NewActivityFromEvent(event))
}

// EventTypes returns the payroll event types
func (r *ActivityRecorder) EventTypes() []string {
	return payroll.ActivityEventTypes
}

var _ shared.EventHandler = (*ActivityRecorder)(nil)
