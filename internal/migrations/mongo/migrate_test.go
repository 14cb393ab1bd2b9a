package mongo

import (
	"slices"
	"testing"

	bookingsrepo "consultbook/internal/bookings/repository"

	"go.mongodb.org/mongo-driver/bson"
)

func TestCollections_CoverEveryStore(t *testing.T) {
	cols := Collections()
	for _, name := range []string{"Bookings", "Slots", "Consultants", "Reminders"} {
		def, ok := cols[name]
		if !ok {
			t.Errorf("collection %s not migrated", name)
			continue
		}
		if len(def.Indexes) == 0 || def.Validator == nil {
			t.Errorf("collection %s has no indexes or validator", name)
		}
	}
}

func TestActiveSlotIndex(t *testing.T) {
	if _, ok := Collections()[bookingsrepo.CollectionName]; !ok {
		t.Fatal("bookings collection missing")
	}

	opts := ActiveSlotIndex.Options
	if opts == nil || opts.Unique == nil || !*opts.Unique {
		t.Fatal("active slot index is not unique")
	}
	filter, ok := opts.PartialFilterExpression.(bson.M)
	if !ok {
		t.Fatalf("partial filter = %T", opts.PartialFilterExpression)
	}
	in := filter["status"].(bson.M)["$in"].([]string)
	if !slices.Equal(in, []string{"PENDING", "CONFIRMED"}) {
		t.Errorf("partial filter statuses = %v", in)
	}
}
