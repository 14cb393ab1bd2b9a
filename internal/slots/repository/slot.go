package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	slotserrors "consultbook/internal/slots/errors"
	"consultbook/pkg/config"
	mongotx "consultbook/pkg/db/mongo"
	"consultbook/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	CollectionName = "Slots"
)

// SlotStore is the only writer of slot state. Every transition is a single
// guarded write; none is a read followed by a write.
type SlotStore interface {
	FindByID(ctx context.Context, id string) (*model.Slot, error)

	// Reserve moves an AVAILABLE slot to BOOKED for bookingID. Returns
	// ErrSlotUnavailable when the slot is missing or not AVAILABLE.
	Reserve(ctx context.Context, slotID, bookingID string) (*model.Slot, error)

	// Release makes the slot AVAILABLE whatever its state. Releasing an
	// available slot succeeds. Returns ErrNotFound for an unknown slot.
	Release(ctx context.Context, slotID string) (*model.Slot, error)

	// ReleaseFor releases the slot only while it is still held by bookingID.
	ReleaseFor(ctx context.Context, slotID, bookingID string) (*model.Slot, error)
}

type mongoSlotStore struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoSlotStore(cfg *config.Config) SlotStore {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoSlotStore{
		cfg:        cfg,
		collection: db.Collection(CollectionName),
	}
}

func (r *mongoSlotStore) FindByID(ctx context.Context, id string) (*model.Slot, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var slot model.Slot
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&slot)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, slotserrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find slot: %w", err)
	}

	return &slot, nil
}

func (r *mongoSlotStore) Reserve(ctx context.Context, slotID, bookingID string) (*model.Slot, error) {
	filter := bson.M{
		"_id":    slotID,
		"status": model.SlotAvailable,
	}
	update := bson.M{
		"$set": bson.M{
			"status":     model.SlotBooked,
			"booking_id": bookingID,
			"updated_at": now(),
		},
	}

	slot, err := r.findOneAndUpdate(ctx, filter, update)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: %s", slotserrors.ErrSlotUnavailable, slotID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to reserve slot %s: %w", slotID, err)
	}
	return slot, nil
}

func (r *mongoSlotStore) Release(ctx context.Context, slotID string) (*model.Slot, error) {
	slot, err := r.findOneAndUpdate(ctx, bson.M{"_id": slotID}, releaseUpdate())
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, slotserrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to release slot %s: %w", slotID, err)
	}
	return slot, nil
}

func (r *mongoSlotStore) ReleaseFor(ctx context.Context, slotID, bookingID string) (*model.Slot, error) {
	filter := bson.M{
		"_id":        slotID,
		"status":     model.SlotBooked,
		"booking_id": bookingID,
	}

	slot, err := r.findOneAndUpdate(ctx, filter, releaseUpdate())
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: slot %s booking %s", slotserrors.ErrNotHeld, slotID, bookingID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to release slot %s: %w", slotID, err)
	}
	return slot, nil
}

func (r *mongoSlotStore) findOneAndUpdate(ctx context.Context, filter, update bson.M) (*model.Slot, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var slot model.Slot
	if err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&slot); err != nil {
		return nil, err
	}
	return &slot, nil
}

func releaseUpdate() bson.M {
	return bson.M{
		"$set": bson.M{
			"status":     model.SlotAvailable,
			"booking_id": nil,
			"updated_at": now(),
		},
	}
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
