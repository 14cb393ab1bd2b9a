package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"consultbook/internal/notifications"
	remindererrors "consultbook/internal/reminders/errors"
	"consultbook/pkg/config"
	"consultbook/pkg/logger"
	"consultbook/pkg/model"

	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
)

const redisMonitorInterval = 10 * time.Second

// ReminderSender is the part of the dispatcher the worker drives.
type ReminderSender interface {
	SendReminder(ctx context.Context, id string) (*model.Reminder, error)
	RetryReminder(ctx context.Context, id string) (*model.Reminder, error)
}

// Worker enforces the bounded retry policy: a failed dispatch is re-armed
// with RetryReminder and handed back to asynq until the attempts run out.
type Worker struct {
	sender ReminderSender
	log    *logger.Logger
}

func NewWorker(sender ReminderSender, log *logger.Logger) *Worker {
	return &Worker{sender: sender, log: log}
}

func (w *Worker) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeSendReminder, w.HandleSendReminder)
	return mux
}

func (w *Worker) HandleSendReminder(ctx context.Context, task *asynq.Task) error {
	var p SendReminderPayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		w.log.Error("Invalid reminder task payload", "error", err)
		return fmt.Errorf("invalid payload: %v: %w", err, asynq.SkipRetry)
	}

	_, err := w.sender.SendReminder(ctx, p.ReminderID)
	switch {
	case err == nil:
		return nil

	case errors.Is(err, remindererrors.ReminderNotFound),
		errors.Is(err, remindererrors.ReminderAlreadySent),
		errors.Is(err, remindererrors.ReminderBookingInactive):
		w.log.Info("Reminder task dropped", "reminder_id", p.ReminderID, "reason", err)
		return nil

	case errors.Is(err, notifications.NotificationDispatchFailed):
		if _, retryErr := w.sender.RetryReminder(ctx, p.ReminderID); retryErr != nil {
			if errors.Is(retryErr, remindererrors.ReminderRetryExhausted) {
				w.log.Error("Reminder retries exhausted", "reminder_id", p.ReminderID, "booking_id", p.BookingID, "error", err)
				return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
			}
			w.log.Error("Failed to re-arm reminder", "reminder_id", p.ReminderID, "error", retryErr)
			return retryErr
		}
		return err

	default:
		return err
	}
}

func NewServer(cfg *config.Config) *asynq.Server {
	return asynq.NewServer(RedisOpt(cfg), asynq.Config{
		Concurrency: cfg.ReminderWorkerConcurrency,
		Queues: map[string]int{
			QueueReminders: 1,
		},
		Logger:   asynqLogger{cfg.Log},
		LogLevel: asynq.WarnLevel,
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			cfg.Log.Warn("Reminder task failed", "type", task.Type(), "retried", retried, "max_retry", maxRetry, "error", err)
		}),
	})
}

// MonitorRedis pings Redis until ctx is done and logs lost connectivity.
func MonitorRedis(ctx context.Context, rdb *redis.Client, log *logger.Logger) {
	ticker := time.NewTicker(redisMonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := rdb.Ping(ctx).Err(); err != nil && ctx.Err() == nil {
				log.Warn("Redis connection lost", "error", err)
			}
		}
	}
}

type asynqLogger struct {
	log *logger.Logger
}

func (l asynqLogger) Debug(args ...any) { l.log.Debug(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...any)  { l.log.Info(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...any)  { l.log.Warn(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...any) { l.log.Error(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...any) { l.log.Fatal(fmt.Sprint(args...)) }
