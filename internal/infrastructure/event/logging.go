package event

import (
	"context"

	"github.com/municipal/backoffice/internal/domain/shared"
	"go.uber.org/zap"
)

// LoggingHandler writes every published event to the log
type LoggingHandler struct {
	logger *zap.Logger
}

// NewLoggingHandler creates a handler subscribed to all events
func NewLoggingHandler(logger *zap.Logger) *LoggingHandler {
	return &LoggingHandler{logger: logger}
}

func (h *LoggingHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	fields := []zap.Field{
		zap.String("event_type", event.EventType()),
		zap.String("aggregate_type", event.AggregateType()),
		zap.String("aggregate_id", event.AggregateID().String()),
	}
	if d, ok := event.(shared.Describable); ok {
		fields = append(fields, zap.String("description", d.Describe()))
	}
	h.logger.Info("domain event", fields...)
	return nil
}

// EventTypes returns nil so the handler receives every event
func (h *LoggingHandler) EventTypes() []string {
	return nil
}
