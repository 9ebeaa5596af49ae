package tasks

import (
	"context"
	"encoding/json"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/goalforge/entitlement/internal/domain/service"
)

// EventEnqueuer queues lifecycle events for the worker to forward. It
// implements service.EventSink; enqueue failures are logged and swallowed so
// analytics can never stall a status transition.
type EventEnqueuer struct {
	client *asynq.Client
	logger *zap.Logger
}

// NewEventEnqueuer creates a queue-backed event sink
func NewEventEnqueuer(client *asynq.Client, logger *zap.Logger) *EventEnqueuer {
	return &EventEnqueuer{client: client, logger: logger}
}

func (e *EventEnqueuer) Emit(ctx context.Context, ev service.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		e.logger.Error("failed to encode event", zap.Error(err))
		return
	}

	task := asynq.NewTask(TypeForwardEvent, payload)
	if _, err := e.client.EnqueueContext(ctx, task, asynq.MaxRetry(5), asynq.Queue("default")); err != nil {
		e.logger.Warn("failed to enqueue event",
			zap.String("event_id", ev.ID),
			zap.String("type", string(ev.Type)),
			zap.Error(err),
		)
	}
}
