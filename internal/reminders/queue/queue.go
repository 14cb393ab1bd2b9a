// Package queue moves reminders through Redis with asynq: the enqueuer
// schedules one task per reminder at its fire time and the worker turns each
// task into a dispatch attempt.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"consultbook/pkg/config"
	"consultbook/pkg/model"

	"github.com/hibiken/asynq"
)

const (
	TypeSendReminder = "reminder:send"
	QueueReminders   = "reminders"
)

type SendReminderPayload struct {
	ReminderID string `json:"reminder_id"`
	BookingID  string `json:"booking_id"`
}

func RedisOpt(cfg *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisReminderDB,
	}
}

// NewReminderTask builds the task for reminder. The task id is the reminder
// id, so a reminder is never queued twice.
func NewReminderTask(reminder *model.Reminder) (*asynq.Task, []asynq.Option, error) {
	b, err := json.Marshal(SendReminderPayload{ReminderID: reminder.ID, BookingID: reminder.BookingID})
	if err != nil {
		return nil, nil, err
	}
	task := asynq.NewTask(TypeSendReminder, b)
	opts := []asynq.Option{
		asynq.ProcessAt(reminder.ScheduledAt),
		asynq.TaskID(reminder.ID),
		asynq.Queue(QueueReminders),
		asynq.MaxRetry(model.MaxRetryAttempts),
	}
	return task, opts, nil
}

type Enqueuer struct {
	client    *asynq.Client
	inspector *asynq.Inspector
}

func NewEnqueuer(opt asynq.RedisClientOpt) *Enqueuer {
	return &Enqueuer{
		client:    asynq.NewClient(opt),
		inspector: asynq.NewInspector(opt),
	}
}

func (e *Enqueuer) Enqueue(ctx context.Context, reminder *model.Reminder) error {
	task, opts, err := NewReminderTask(reminder)
	if err != nil {
		return fmt.Errorf("failed to build reminder task: %w", err)
	}

	if _, err := e.client.EnqueueContext(ctx, task, opts...); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return nil
		}
		return fmt.Errorf("failed to enqueue reminder %s: %w", reminder.ID, err)
	}
	return nil
}

// Cancel deletes a queued reminder task. A task that already ran or was never
// queued is not an error.
func (e *Enqueuer) Cancel(ctx context.Context, reminderID string) error {
	err := e.inspector.DeleteTask(QueueReminders, reminderID)
	if err != nil && !errors.Is(err, asynq.ErrTaskNotFound) && !errors.Is(err, asynq.ErrQueueNotFound) {
		return fmt.Errorf("failed to delete reminder task %s: %w", reminderID, err)
	}
	return nil
}

func (e *Enqueuer) Close() error {
	return errors.Join(e.client.Close(), e.inspector.Close())
}
