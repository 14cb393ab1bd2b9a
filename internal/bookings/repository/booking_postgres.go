package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	bookingserrors "consultbook/internal/bookings/errors"
	"consultbook/pkg/config"
	"consultbook/pkg/db/postgres"
	"consultbook/pkg/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type postgresBookingRepository struct {
	cfg *config.Config
	db  *gorm.DB
}

func NewPostgresBookingRepository(cfg *config.Config) BookingRepository {
	return &postgresBookingRepository{
		cfg: cfg,
		db:  cfg.Client.Postgres,
	}
}

func (r *postgresBookingRepository) Create(ctx context.Context, booking *model.Booking) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Millisecond)
	booking.CreatedAt = now
	booking.UpdatedAt = now

	if err := postgres.Conn(ctx, r.db).Create(booking).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: %s", bookingserrors.ErrSlotTaken, booking.SlotID)
		}
		return fmt.Errorf("failed to create booking: %w", err)
	}
	return nil
}

func (r *postgresBookingRepository) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var booking model.Booking
	err := postgres.Conn(ctx, r.db).First(&booking, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, bookingserrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find booking: %w", err)
	}
	return &booking, nil
}

func (r *postgresBookingRepository) List(ctx context.Context, filter ListFilter, limit int, offset int64) ([]*model.Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var bookings []*model.Booking
	err := r.scoped(ctx, filter).
		Order("created_at DESC").
		Order("id").
		Limit(limit).
		Offset(int(offset)).
		Find(&bookings).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find bookings: %w", err)
	}
	return bookings, nil
}

func (r *postgresBookingRepository) Count(ctx context.Context, filter ListFilter) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var count int64
	if err := r.scoped(ctx, filter).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count bookings: %w", err)
	}
	return count, nil
}

func (r *postgresBookingRepository) TransitionStatus(ctx context.Context, id string, change model.StatusChange) (*model.Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	conn := postgres.Conn(ctx, r.db)

	var booking model.Booking
	res := conn.Model(&booking).
		Clauses(clause.Returning{}).
		Where("id = ? AND status IN ?", id, change.From).
		Updates(transitionFields(change))
	if res.Error != nil {
		return nil, fmt.Errorf("failed to update booking status: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		return &booking, nil
	}

	var current model.Booking
	if err := conn.Select("status").First(&current, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, bookingserrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find booking: %w", err)
	}
	return nil, &bookingserrors.StatusConflictError{BookingID: id, Current: current.Status}
}

func (r *postgresBookingRepository) scoped(ctx context.Context, filter ListFilter) *gorm.DB {
	q := postgres.Conn(ctx, r.db).Model(&model.Booking{})
	if filter.CustomerID != "" {
		q = q.Where("customer_id = ?", filter.CustomerID)
	}
	return q
}
