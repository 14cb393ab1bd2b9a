package mongo

import (
	"context"
	"fmt"

	bookingsrepo "consultbook/internal/bookings/repository"
	consultantsrepo "consultbook/internal/consultants/repository"
	"consultbook/internal/migrations/mongo/validators"
	remindersrepo "consultbook/internal/reminders/repository"
	slotsrepo "consultbook/internal/slots/repository"
	"consultbook/pkg/logger"
	"consultbook/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	// ActiveSlotIndex lets at most one PENDING or CONFIRMED booking reference
	// a slot. Inserts that break it surface as ErrSlotTaken.
	ActiveSlotIndex = mongo.IndexModel{
		Keys: bson.D{{Key: "slot_id", Value: 1}},
		Options: options.Index().
			SetName("bookings_active_slot").
			SetUnique(true).
			SetPartialFilterExpression(bson.M{
				"status": bson.M{"$in": statusStrings(model.ActiveBookingStatuses)},
			}),
	}

	BookingsIndexes = []mongo.IndexModel{
		ActiveSlotIndex,
		{Keys: bson.D{{Key: "customer_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "rescheduled_from_id", Value: 1}}, Options: options.Index().SetSparse(true)},
	}

	SlotsIndexes = []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "consultant_id", Value: 1}, {Key: "date", Value: 1}, {Key: "start_time", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "date", Value: 1}}},
	}

	ConsultantsIndexes = []mongo.IndexModel{
		{Keys: bson.D{{Key: "is_active", Value: 1}, {Key: "specialisation", Value: 1}}},
	}

	RemindersIndexes = []mongo.IndexModel{
		{Keys: bson.D{{Key: "booking_id", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "scheduled_at", Value: 1}}},
	}
)

type collectionDef struct {
	Indexes   []mongo.IndexModel
	Validator bson.M
}

// Collections lists every collection the services read or write.
func Collections() map[string]collectionDef {
	return map[string]collectionDef{
		bookingsrepo.CollectionName: {
			Indexes:   BookingsIndexes,
			Validator: validators.BookingValidator,
		},
		slotsrepo.CollectionName: {
			Indexes:   SlotsIndexes,
			Validator: validators.SlotValidator,
		},
		consultantsrepo.CollectionName: {
			Indexes:   ConsultantsIndexes,
			Validator: validators.ConsultantValidator,
		},
		remindersrepo.CollectionName: {
			Indexes:   RemindersIndexes,
			Validator: validators.ReminderValidator,
		},
	}
}

func RunMigration(ctx context.Context, client *mongo.Client, dbName string, log *logger.Logger) error {
	db := client.Database(dbName)
	log.Info("Running Mongo migrations", "database", dbName)

	for name, def := range Collections() {
		if err := ensureCollection(ctx, db, name, def.Validator, log); err != nil {
			return fmt.Errorf("failed to ensure collection %s: %w", name, err)
		}
		if err := ensureIndexes(ctx, db, name, def.Indexes, log); err != nil {
			return fmt.Errorf("failed to ensure indexes for %s: %w", name, err)
		}
	}

	log.Info("All Mongo migrations applied")
	return nil
}

func ensureCollection(ctx context.Context, db *mongo.Database, name string, validator bson.M, log *logger.Logger) error {
	existing, err := db.ListCollectionNames(ctx, bson.D{{Key: "name", Value: name}})
	if err != nil {
		return err
	}

	if len(existing) == 0 {
		log.Info("Creating collection", "collection", name)
		opts := options.CreateCollection().SetValidator(validator)
		if err := db.CreateCollection(ctx, name, opts); err != nil {
			return fmt.Errorf("failed creating %s: %w", name, err)
		}
		return nil
	}

	log.Info("Collection already exists, updating validator", "collection", name)
	command := bson.D{
		{Key: "collMod", Value: name},
		{Key: "validator", Value: validator},
	}
	if err := db.RunCommand(ctx, command).Err(); err != nil {
		log.Warn("Failed updating validator", "collection", name, "error", err)
	}
	return nil
}

func ensureIndexes(ctx context.Context, db *mongo.Database, name string, models []mongo.IndexModel, log *logger.Logger) error {
	if _, err := db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
		return err
	}
	log.Info("Ensured indexes", "collection", name, "count", len(models))
	return nil
}

func statusStrings(statuses []model.BookingStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
