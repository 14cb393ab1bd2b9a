package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	remindererrors "consultbook/internal/reminders/errors"
	"consultbook/pkg/config"
	mongotx "consultbook/pkg/db/mongo"
	"consultbook/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	CollectionName = "Reminders"
)

// Cancellable are the statuses CancelPendingForBooking moves to CANCELLED.
var Cancellable = []model.ReminderStatus{model.ReminderPending, model.ReminderFailed}

// Transition is a guarded reminder update. It applies only while the stored
// status is one of From and, when RetryBelow is positive, retry_count is
// below it.
type Transition struct {
	From           []model.ReminderStatus
	To             model.ReminderStatus
	At             time.Time
	FailureReason  string
	IncrementRetry bool
	RetryBelow     int
}

type ReminderRepository interface {
	Create(ctx context.Context, reminder *model.Reminder) error
	FindByID(ctx context.Context, id string) (*model.Reminder, error)
	FindByBooking(ctx context.Context, bookingID string) ([]*model.Reminder, error)

	// Transition returns a *StatusConflictError when the guard does not match.
	Transition(ctx context.Context, id string, t Transition) (*model.Reminder, error)

	// CancelPendingForBooking cancels every reminder of the booking that has
	// not been sent and returns their ids.
	CancelPendingForBooking(ctx context.Context, bookingID string, at time.Time) ([]string, error)
}

type mongoReminderRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoReminderRepository(cfg *config.Config) ReminderRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoReminderRepository{
		cfg:        cfg,
		collection: db.Collection(CollectionName),
	}
}

func (r *mongoReminderRepository) Create(ctx context.Context, reminder *model.Reminder) error {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Millisecond)
	reminder.CreatedAt = now
	reminder.UpdatedAt = now

	if _, err := r.collection.InsertOne(ctx, reminder); err != nil {
		return fmt.Errorf("failed to create reminder: %w", err)
	}
	return nil
}

func (r *mongoReminderRepository) FindByID(ctx context.Context, id string) (*model.Reminder, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var reminder model.Reminder
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&reminder)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, remindererrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find reminder: %w", err)
	}
	return &reminder, nil
}

func (r *mongoReminderRepository) FindByBooking(ctx context.Context, bookingID string) ([]*model.Reminder, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "scheduled_at", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{"booking_id": bookingID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find reminders: %w", err)
	}
	defer cursor.Close(ctx)

	var reminders []*model.Reminder
	if err = cursor.All(ctx, &reminders); err != nil {
		return nil, fmt.Errorf("failed to decode reminders: %w", err)
	}
	return reminders, nil
}

func (r *mongoReminderRepository) Transition(ctx context.Context, id string, t Transition) (*model.Reminder, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	filter := bson.M{
		"_id":    id,
		"status": bson.M{"$in": t.From},
	}
	if t.RetryBelow > 0 {
		filter["retry_count"] = bson.M{"$lt": t.RetryBelow}
	}

	update := bson.M{"$set": transitionFields(t)}
	if t.IncrementRetry {
		update["$inc"] = bson.M{"retry_count": 1}
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var reminder model.Reminder
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&reminder)
	if err == nil {
		return &reminder, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("failed to update reminder: %w", err)
	}

	var current model.Reminder
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&current); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, remindererrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find reminder: %w", err)
	}
	return nil, &remindererrors.StatusConflictError{ReminderID: id, Current: current.Status, RetryCount: current.RetryCount}
}

func (r *mongoReminderRepository) CancelPendingForBooking(ctx context.Context, bookingID string, at time.Time) ([]string, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	filter := bson.M{
		"booking_id": bookingID,
		"status":     bson.M{"$in": Cancellable},
	}

	cursor, err := r.collection.Find(ctx, filter, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, fmt.Errorf("failed to find pending reminders: %w", err)
	}
	var docs []struct {
		ID string `bson:"_id"`
	}
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode pending reminders: %w", err)
	}
	if len(docs) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}

	filter["_id"] = bson.M{"$in": ids}
	update := bson.M{"$set": bson.M{
		"status":     model.ReminderCancelled,
		"updated_at": at.UTC().Truncate(time.Millisecond),
	}}
	if _, err := r.collection.UpdateMany(ctx, filter, update); err != nil {
		return nil, fmt.Errorf("failed to cancel pending reminders: %w", err)
	}
	return ids, nil
}

// transitionFields lists the columns a reminder transition writes. Field names
// are shared by the bson and gorm backends.
func transitionFields(t Transition) map[string]any {
	at := t.At.UTC().Truncate(time.Millisecond)
	fields := map[string]any{
		"status":     t.To,
		"updated_at": at,
	}
	switch t.To {
	case model.ReminderSent:
		fields["sent_at"] = at
	case model.ReminderDelivered:
		fields["delivered_at"] = at
	case model.ReminderFailed:
		fields["failed_at"] = at
		fields["failure_reason"] = t.FailureReason
	}
	return fields
}
