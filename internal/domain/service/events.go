package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/goalforge/entitlement/internal/domain/valueobject"
)

// EventType identifies an entitlement lifecycle event
type EventType string

const (
	EventTrialStarted     EventType = "trial_started"
	EventTrialExpired     EventType = "trial_expired"
	EventPurchaseComplete EventType = "purchase_succeeded"
	EventRestoreComplete  EventType = "restore_succeeded"
	EventStatusChanged    EventType = "status_changed"
)

// Event is an analytics-worthy entitlement lifecycle event.
type Event struct {
	ID         string                         `json:"id"`
	Type       EventType                      `json:"type"`
	Status     valueobject.SubscriptionStatus `json:"status"`
	ProductID  string                         `json:"product_id,omitempty"`
	Source     string                         `json:"source,omitempty"`
	OccurredAt time.Time                      `json:"occurred_at"`
}

// NewEvent creates an event stamped with a fresh ID and the given time
func NewEvent(t EventType, status valueobject.SubscriptionStatus, now time.Time) Event {
	return Event{
		ID:         uuid.New().String(),
		Type:       t,
		Status:     status,
		OccurredAt: now,
	}
}

// EventSink receives lifecycle events. Delivery is fire-and-forget: sinks
// swallow their own failures and must never block the reconciler.
type EventSink interface {
	Emit(ctx context.Context, ev Event)
}

// LogSink is the fallback sink when no queue broker is configured.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a sink that only logs events
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Emit(_ context.Context, ev Event) {
	s.logger.Info("entitlement event",
		zap.String("event_id", ev.ID),
		zap.String("type", string(ev.Type)),
		zap.String("status", ev.Status.String()),
		zap.String("product_id", ev.ProductID),
	)
}
