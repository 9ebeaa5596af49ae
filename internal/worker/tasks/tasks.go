package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/goalforge/entitlement/internal/domain/service"
	"github.com/goalforge/entitlement/internal/infrastructure/external/analytics"
	"github.com/goalforge/entitlement/internal/infrastructure/logging"
)

// Task names
const (
	TypeForwardEvent = "forward:event"
	TypeDailyRollup  = "compute:event_rollup"
)

const rollupKeyPrefix = "events:rollup:"

// rollupRetention keeps daily counters around long enough for backfills.
const rollupRetention = 7 * 24 * time.Hour

// TaskHandlers holds dependencies for all task handlers.
type TaskHandlers struct {
	analytics *analytics.Client
	redis     *redis.Client
	logger    *zap.Logger
}

// NewTaskHandlers creates task handlers
func NewTaskHandlers(analyticsClient *analytics.Client, redisClient *redis.Client) *TaskHandlers {
	return &TaskHandlers{
		analytics: analyticsClient,
		redis:     redisClient,
		logger:    logging.Logger,
	}
}

// RegisterHandlers registers all task handlers with the server mux.
func RegisterHandlers(mux *asynq.ServeMux, h *TaskHandlers) {
	mux.HandleFunc(TypeForwardEvent, h.HandleForwardEvent)
	mux.HandleFunc(TypeDailyRollup, h.HandleDailyRollup)
}

// RegisterScheduledTasks registers all scheduled (cron) tasks
func RegisterScheduledTasks(scheduler *asynq.Scheduler) {
	// Roll up yesterday's event counters shortly after midnight
	_, err := scheduler.Register("10 0 * * *", asynq.NewTask(TypeDailyRollup, nil))
	if err != nil {
		logging.Logger.Error("Failed to schedule daily rollup", zap.Error(err))
	}
}

// HandleForwardEvent delivers one lifecycle event to the analytics collector
// and counts it toward the daily rollup.
func (h *TaskHandlers) HandleForwardEvent(ctx context.Context, t *asynq.Task) error {
	var ev service.Event
	if err := json.Unmarshal(t.Payload(), &ev); err != nil {
		return fmt.Errorf("invalid event payload: %w", err)
	}

	if err := h.analytics.TrackEvent(ctx, ev); err != nil {
		return fmt.Errorf("failed to forward event %s: %w", ev.ID, err)
	}

	h.countEvent(ctx, ev)

	h.logger.Debug("event forwarded",
		zap.String("event_id", ev.ID),
		zap.String("type", string(ev.Type)),
	)
	return nil
}

// HandleDailyRollup summarizes yesterday's event counters.
func (h *TaskHandlers) HandleDailyRollup(ctx context.Context, t *asynq.Task) error {
	var payload struct {
		Date string `json:"date"` // YYYY-MM-DD
	}
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return err
		}
	}

	date := time.Now().UTC().AddDate(0, 0, -1).Format("2006-01-02")
	if payload.Date != "" {
		date = payload.Date
	}

	counts, err := h.redis.HGetAll(ctx, rollupKeyPrefix+date).Result()
	if err != nil {
		return fmt.Errorf("failed to read rollup counters: %w", err)
	}

	fields := make([]zap.Field, 0, len(counts)+1)
	fields = append(fields, zap.String("date", date))
	for eventType, count := range counts {
		fields = append(fields, zap.String(eventType, count))
	}
	h.logger.Info("daily event rollup", fields...)
	return nil
}

// countEvent increments the per-day counter for the event type. Best-effort;
// a counter miss never fails the delivery.
func (h *TaskHandlers) countEvent(ctx context.Context, ev service.Event) {
	if h.redis == nil {
		return
	}
	key := rollupKeyPrefix + ev.OccurredAt.UTC().Format("2006-01-02")
	pipe := h.redis.Pipeline()
	pipe.HIncrBy(ctx, key, string(ev.Type), 1)
	pipe.Expire(ctx, key, rollupRetention)
	if _, err := pipe.Exec(ctx); err != nil {
		h.logger.Warn("failed to count event", zap.Error(err))
	}
}
