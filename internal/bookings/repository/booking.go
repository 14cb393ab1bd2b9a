package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	bookingserrors "consultbook/internal/bookings/errors"
	"consultbook/pkg/config"
	mongotx "consultbook/pkg/db/mongo"
	"consultbook/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	CollectionName = "Bookings"
)

// ListFilter narrows List and Count. An empty CustomerID matches every
// customer.
type ListFilter struct {
	CustomerID string
}

type BookingRepository interface {
	Create(ctx context.Context, booking *model.Booking) error
	FindByID(ctx context.Context, id string) (*model.Booking, error)
	List(ctx context.Context, filter ListFilter, limit int, offset int64) ([]*model.Booking, error)
	Count(ctx context.Context, filter ListFilter) (int64, error)

	// TransitionStatus applies change only while the stored status is one of
	// change.From. A mismatch returns a *StatusConflictError carrying the
	// status that was found.
	TransitionStatus(ctx context.Context, id string, change model.StatusChange) (*model.Booking, error)
}

type mongoBookingRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoBookingRepository(cfg *config.Config) BookingRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoBookingRepository{
		cfg:        cfg,
		collection: db.Collection(CollectionName),
	}
}

func (r *mongoBookingRepository) Create(ctx context.Context, booking *model.Booking) error {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Millisecond)
	booking.CreatedAt = now
	booking.UpdatedAt = now

	if _, err := r.collection.InsertOne(ctx, booking); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s", bookingserrors.ErrSlotTaken, booking.SlotID)
		}
		return fmt.Errorf("failed to create booking: %w", err)
	}
	return nil
}

func (r *mongoBookingRepository) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()
	return r.findOne(ctx, id)
}

func (r *mongoBookingRepository) findOne(ctx context.Context, id string) (*model.Booking, error) {
	var booking model.Booking
	switch err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&booking); {
	case err == nil:
		return &booking, nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return nil, bookingserrors.ErrNotFound
	default:
		return nil, fmt.Errorf("failed to find booking %s: %w", id, err)
	}
}

func (r *mongoBookingRepository) List(ctx context.Context, filter ListFilter, limit int, offset int64) ([]*model.Booking, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(limit)).
		SetSkip(offset)

	cursor, err := r.collection.Find(ctx, buildListFilter(filter), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find bookings: %w", err)
	}
	defer cursor.Close(ctx)

	var bookings []*model.Booking
	if err = cursor.All(ctx, &bookings); err != nil {
		return nil, fmt.Errorf("failed to decode bookings: %w", err)
	}

	return bookings, nil
}

func (r *mongoBookingRepository) Count(ctx context.Context, filter ListFilter) (int64, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, buildListFilter(filter))
	if err != nil {
		return 0, fmt.Errorf("failed to count bookings: %w", err)
	}
	return count, nil
}

func (r *mongoBookingRepository) TransitionStatus(ctx context.Context, id string, change model.StatusChange) (*model.Booking, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	filter := bson.M{
		"_id":    id,
		"status": bson.M{"$in": change.From},
	}
	update := bson.M{"$set": transitionFields(change)}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var booking model.Booking
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&booking)
	if err == nil {
		return &booking, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("failed to update booking status: %w", err)
	}

	// the guard missed: either the booking is gone or its status moved on
	current, err := r.findOne(ctx, id)
	if err != nil {
		return nil, err
	}
	return nil, &bookingserrors.StatusConflictError{BookingID: id, Current: current.Status}
}

func buildListFilter(filter ListFilter) bson.M {
	query := bson.M{}
	if filter.CustomerID != "" {
		query["customer_id"] = filter.CustomerID
	}
	return query
}

// transitionFields lists the columns a status change writes. Field names are
// shared by the bson and gorm backends.
func transitionFields(change model.StatusChange) map[string]any {
	at := change.At.UTC().Truncate(time.Millisecond)
	fields := map[string]any{
		"status":     change.To,
		"updated_at": at,
	}
	if change.To == model.BookingCancelled {
		fields["cancellation_reason"] = change.CancellationReason
		fields["cancelled_by"] = change.CancelledBy
		fields["cancelled_at"] = at
	}
	return fields
}
