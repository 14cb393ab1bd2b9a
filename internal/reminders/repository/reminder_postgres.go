package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	remindererrors "consultbook/internal/reminders/errors"
	"consultbook/pkg/config"
	"consultbook/pkg/db/postgres"
	"consultbook/pkg/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type postgresReminderRepository struct {
	cfg *config.Config
	db  *gorm.DB
}

func NewPostgresReminderRepository(cfg *config.Config) ReminderRepository {
	return &postgresReminderRepository{
		cfg: cfg,
		db:  cfg.Client.Postgres,
	}
}

func (r *postgresReminderRepository) Create(ctx context.Context, reminder *model.Reminder) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Millisecond)
	reminder.CreatedAt = now
	reminder.UpdatedAt = now

	if err := postgres.Conn(ctx, r.db).Create(reminder).Error; err != nil {
		return fmt.Errorf("failed to create reminder: %w", err)
	}
	return nil
}

func (r *postgresReminderRepository) FindByID(ctx context.Context, id string) (*model.Reminder, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var reminder model.Reminder
	err := postgres.Conn(ctx, r.db).First(&reminder, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, remindererrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find reminder: %w", err)
	}
	return &reminder, nil
}

func (r *postgresReminderRepository) FindByBooking(ctx context.Context, bookingID string) ([]*model.Reminder, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var reminders []*model.Reminder
	err := postgres.Conn(ctx, r.db).
		Where("booking_id = ?", bookingID).
		Order("scheduled_at").
		Find(&reminders).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find reminders: %w", err)
	}
	return reminders, nil
}

func (r *postgresReminderRepository) Transition(ctx context.Context, id string, t Transition) (*model.Reminder, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	conn := postgres.Conn(ctx, r.db)

	var reminder model.Reminder
	q := conn.Model(&reminder).
		Clauses(clause.Returning{}).
		Where("id = ? AND status IN ?", id, t.From)
	if t.RetryBelow > 0 {
		q = q.Where("retry_count < ?", t.RetryBelow)
	}

	fields := transitionFields(t)
	if t.IncrementRetry {
		fields["retry_count"] = gorm.Expr("retry_count + 1")
	}

	res := q.Updates(fields)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to update reminder: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		return &reminder, nil
	}

	var current model.Reminder
	if err := conn.First(&current, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, remindererrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find reminder: %w", err)
	}
	return nil, &remindererrors.StatusConflictError{ReminderID: id, Current: current.Status, RetryCount: current.RetryCount}
}

func (r *postgresReminderRepository) CancelPendingForBooking(ctx context.Context, bookingID string, at time.Time) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	var cancelled []model.Reminder
	err := postgres.Conn(ctx, r.db).
		Model(&cancelled).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: "id"}}}).
		Where("booking_id = ? AND status IN ?", bookingID, Cancellable).
		Updates(map[string]any{
			"status":     model.ReminderCancelled,
			"updated_at": at.UTC().Truncate(time.Millisecond),
		}).Error
	if err != nil {
		return nil, fmt.Errorf("failed to cancel pending reminders: %w", err)
	}

	ids := make([]string, 0, len(cancelled))
	for _, c := range cancelled {
		ids = append(ids, c.ID)
	}
	return ids, nil
}
