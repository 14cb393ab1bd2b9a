package repository

import (
	"context"
	"errors"
	"fmt"

	slotserrors "consultbook/internal/slots/errors"
	"consultbook/pkg/config"
	"consultbook/pkg/db/postgres"
	"consultbook/pkg/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type postgresSlotStore struct {
	cfg *config.Config
	db  *gorm.DB
}

func NewPostgresSlotStore(cfg *config.Config) SlotStore {
	return &postgresSlotStore{
		cfg: cfg,
		db:  cfg.Client.Postgres,
	}
}

func (r *postgresSlotStore) FindByID(ctx context.Context, id string) (*model.Slot, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var slot model.Slot
	err := postgres.Conn(ctx, r.db).First(&slot, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, slotserrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find slot: %w", err)
	}
	return &slot, nil
}

// Reserve issues UPDATE ... WHERE id = ? AND status = 'AVAILABLE' RETURNING *
// and succeeds only when exactly one row was affected.
func (r *postgresSlotStore) Reserve(ctx context.Context, slotID, bookingID string) (*model.Slot, error) {
	slot, affected, err := r.update(ctx,
		"id = ? AND status = ?", []any{slotID, model.SlotAvailable},
		map[string]any{
			"status":     model.SlotBooked,
			"booking_id": bookingID,
			"updated_at": now(),
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to reserve slot %s: %w", slotID, err)
	}
	if affected != 1 {
		return nil, fmt.Errorf("%w: %s", slotserrors.ErrSlotUnavailable, slotID)
	}
	return slot, nil
}

func (r *postgresSlotStore) Release(ctx context.Context, slotID string) (*model.Slot, error) {
	slot, affected, err := r.update(ctx, "id = ?", []any{slotID}, releaseColumns())
	if err != nil {
		return nil, fmt.Errorf("failed to release slot %s: %w", slotID, err)
	}
	if affected == 0 {
		return nil, slotserrors.ErrNotFound
	}
	return slot, nil
}

func (r *postgresSlotStore) ReleaseFor(ctx context.Context, slotID, bookingID string) (*model.Slot, error) {
	slot, affected, err := r.update(ctx,
		"id = ? AND status = ? AND booking_id = ?", []any{slotID, model.SlotBooked, bookingID},
		releaseColumns(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to release slot %s: %w", slotID, err)
	}
	if affected != 1 {
		return nil, fmt.Errorf("%w: slot %s booking %s", slotserrors.ErrNotHeld, slotID, bookingID)
	}
	return slot, nil
}

func (r *postgresSlotStore) update(ctx context.Context, where string, args []any, columns map[string]any) (*model.Slot, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	var slot model.Slot
	res := postgres.Conn(ctx, r.db).
		Model(&slot).
		Clauses(clause.Returning{}).
		Where(where, args...).
		Updates(columns)
	if res.Error != nil {
		return nil, 0, res.Error
	}
	return &slot, res.RowsAffected, nil
}

func releaseColumns() map[string]any {
	return map[string]any{
		"status":     model.SlotAvailable,
		"booking_id": gorm.Expr("NULL"),
		"updated_at": now(),
	}
}
