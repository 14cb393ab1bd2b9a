package service

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"testing"
	"time"

	bookingserrors "consultbook/internal/bookings/errors"
	"consultbook/internal/events"
	"consultbook/internal/storetest"
	"consultbook/pkg/model"
)

type mockEnqueuer struct {
	enqueueFunc func(ctx context.Context, reminder *model.Reminder) error
	enqueued    []string
	cancelled   []string
}

func (m *mockEnqueuer) Enqueue(ctx context.Context, reminder *model.Reminder) error {
	if m.enqueueFunc != nil {
		if err := m.enqueueFunc(ctx, reminder); err != nil {
			return err
		}
	}
	m.enqueued = append(m.enqueued, reminder.ID)
	return nil
}

func (m *mockEnqueuer) Cancel(ctx context.Context, reminderID string) error {
	m.cancelled = append(m.cancelled, reminderID)
	return nil
}

func newTestScheduler(store *storetest.Store, enqueuer Enqueuer) *Scheduler {
	s := NewScheduler(store.Reminders(), store.Bookings(), store.Slots(), enqueuer, testConfig())
	s.now = func() time.Time { return testNow }
	return s
}

func scheduledTypes(reminders []model.Reminder) map[model.ReminderType]time.Time {
	out := make(map[model.ReminderType]time.Time)
	for _, r := range reminders {
		out[r.ReminderType] = r.ScheduledAt
	}
	return out
}

func TestScheduler_ScheduleForBooking(t *testing.T) {
	tests := []struct {
		name      string
		phone     string
		startTime string
		date      string
		wantCount int
		wantTypes []model.ReminderType
	}{
		{
			name:      "email only",
			date:      "2030-04-10",
			startTime: "09:00",
			wantCount: 3,
			wantTypes: []model.ReminderType{model.ReminderAppointmentConfirmation, model.ReminderAppointment24h, model.ReminderAppointment1h},
		},
		{
			name:      "email and sms",
			phone:     "+447700900123",
			date:      "2030-04-10",
			startTime: "09:00",
			wantCount: 6,
			wantTypes: []model.ReminderType{model.ReminderAppointmentConfirmation, model.ReminderAppointment24h, model.ReminderAppointment1h},
		},
		{
			name:      "same day skips 24h",
			date:      "2030-04-01",
			startTime: "20:00",
			wantCount: 2,
			wantTypes: []model.ReminderType{model.ReminderAppointmentConfirmation, model.ReminderAppointment1h},
		},
		{
			name:      "within the hour only notice",
			date:      "2030-04-01",
			startTime: "10:30",
			wantCount: 1,
			wantTypes: []model.ReminderType{model.ReminderAppointmentConfirmation},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := storetest.New()
			enqueuer := &mockEnqueuer{}
			booking := &model.Booking{ID: "B1", CustomerID: "cust-1", CustomerEmail: "ada@example.com", CustomerPhone: tt.phone, SlotID: "S1", Status: model.BookingConfirmed}
			slot := &model.Slot{ID: "S1", Date: tt.date, StartTime: tt.startTime, EndTime: "23:00"}

			created, err := newTestScheduler(store, enqueuer).ScheduleForBooking(context.Background(), booking, slot, model.ReminderAppointmentConfirmation)
			if err != nil {
				t.Fatalf("ScheduleForBooking() error = %v", err)
			}
			if len(created) != tt.wantCount {
				t.Fatalf("created %d reminders, want %d", len(created), tt.wantCount)
			}
			if len(enqueuer.enqueued) != tt.wantCount {
				t.Errorf("enqueued %d reminders, want %d", len(enqueuer.enqueued), tt.wantCount)
			}

			stored := store.RemindersOf("B1")
			types := scheduledTypes(stored)
			if len(types) != len(tt.wantTypes) {
				t.Errorf("reminder types = %v, want %v", types, tt.wantTypes)
			}
			for _, want := range tt.wantTypes {
				if _, ok := types[want]; !ok {
					t.Errorf("missing reminder %s", want)
				}
			}
			for _, r := range stored {
				if r.Status != model.ReminderPending || r.TemplateID == "" {
					t.Errorf("reminder %s = %s template %q", r.ID, r.Status, r.TemplateID)
				}
			}
		})
	}
}

func TestScheduler_ScheduleForBooking_Offsets(t *testing.T) {
	store := storetest.New()
	booking := &model.Booking{ID: "B1", CustomerID: "cust-1", CustomerEmail: "ada@example.com", SlotID: "S1"}
	slot := &model.Slot{ID: "S1", Date: "2030-04-10", StartTime: "09:00", EndTime: "10:00"}

	if _, err := newTestScheduler(store, &mockEnqueuer{}).ScheduleForBooking(context.Background(), booking, slot, model.ReminderAppointmentConfirmation); err != nil {
		t.Fatalf("ScheduleForBooking() error = %v", err)
	}

	types := scheduledTypes(store.RemindersOf("B1"))
	want := map[model.ReminderType]time.Time{
		model.ReminderAppointmentConfirmation: testNow,
		model.ReminderAppointment24h:          time.Date(2030, 4, 9, 9, 0, 0, 0, time.UTC),
		model.ReminderAppointment1h:           time.Date(2030, 4, 10, 8, 0, 0, 0, time.UTC),
	}
	for rt, at := range want {
		if !types[rt].Equal(at) {
			t.Errorf("%s scheduled at %v, want %v", rt, types[rt], at)
		}
	}
}

func TestScheduler_EnqueueFailureIsReported(t *testing.T) {
	store := storetest.New()
	enqueuer := &mockEnqueuer{
		enqueueFunc: func(ctx context.Context, r *model.Reminder) error {
			if r.ReminderType == model.ReminderAppointment1h {
				return errors.New("redis down")
			}
			return nil
		},
	}
	booking := &model.Booking{ID: "B1", CustomerID: "cust-1", CustomerEmail: "ada@example.com", SlotID: "S1"}
	slot := &model.Slot{ID: "S1", Date: "2030-04-10", StartTime: "09:00", EndTime: "10:00"}

	created, err := newTestScheduler(store, enqueuer).ScheduleForBooking(context.Background(), booking, slot, model.ReminderAppointmentConfirmation)
	if err == nil {
		t.Fatal("expected enqueue error")
	}
	if len(created) != 3 || len(store.RemindersOf("B1")) != 3 {
		t.Errorf("created %d, stored %d, want 3 persisted", len(created), len(store.RemindersOf("B1")))
	}
	if len(enqueuer.enqueued) != 2 {
		t.Errorf("enqueued = %v, want the other two", enqueuer.enqueued)
	}
}

func TestScheduler_BookingEvents(t *testing.T) {
	store := storetest.New()
	seedBooking(store, model.BookingCancelled)
	cancelled := pendingReminder("R1", model.ReminderAppointment24h)
	cancelled.Status = model.ReminderCancelled
	store.PutReminder(cancelled)

	enqueuer := &mockEnqueuer{}
	router := events.NewRouter()
	newTestScheduler(store, enqueuer).Subscribe(router)

	payload, _ := json.Marshal(events.BookingEvent{BookingID: "B1", SlotID: "S1"})
	if err := router.Dispatch(context.Background(), events.TopicBookingCancelled, payload); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	if !slices.Equal(enqueuer.cancelled, []string{"R1"}) {
		t.Errorf("dequeued = %v, want [R1]", enqueuer.cancelled)
	}
	types := scheduledTypes(store.RemindersOf("B1"))
	if _, ok := types[model.ReminderAppointmentCancellation]; !ok {
		t.Errorf("cancellation notice not created: %v", types)
	}
	if len(enqueuer.enqueued) != 1 {
		t.Errorf("enqueued = %v, want the notice only", enqueuer.enqueued)
	}
}

func TestScheduler_RescheduledEvent(t *testing.T) {
	store := storetest.New()
	seedBooking(store, model.BookingRescheduled)
	old := pendingReminder("R1", model.ReminderAppointment1h)
	old.Status = model.ReminderCancelled
	store.PutReminder(old)

	from := "B1"
	store.PutSlot(model.Slot{ID: "S2", Date: "2030-04-12", StartTime: "14:00", EndTime: "15:00", Status: model.SlotBooked})
	store.PutBooking(model.Booking{ID: "B2", CustomerID: "cust-1", CustomerEmail: "ada@example.com", SlotID: "S2", Status: model.BookingConfirmed, RescheduledFromID: &from})

	enqueuer := &mockEnqueuer{}
	router := events.NewRouter()
	newTestScheduler(store, enqueuer).Subscribe(router)

	payload, _ := json.Marshal(events.BookingRescheduledEvent{OriginalBookingID: "B1", NewBookingID: "B2", OldSlotID: "S1", NewSlotID: "S2"})
	if err := router.Dispatch(context.Background(), events.TopicBookingRescheduled, payload); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	if !slices.Equal(enqueuer.cancelled, []string{"R1"}) {
		t.Errorf("dequeued = %v, want [R1]", enqueuer.cancelled)
	}
	types := scheduledTypes(store.RemindersOf("B2"))
	for _, want := range []model.ReminderType{model.ReminderAppointmentRescheduled, model.ReminderAppointment24h, model.ReminderAppointment1h} {
		if _, ok := types[want]; !ok {
			t.Errorf("missing %s for replacement booking", want)
		}
	}
}

func TestScheduler_MalformedEvent(t *testing.T) {
	router := events.NewRouter()
	newTestScheduler(storetest.New(), &mockEnqueuer{}).Subscribe(router)

	if err := router.Dispatch(context.Background(), events.TopicBookingCreated, []byte("{not json")); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestScheduler_CancelPendingForBooking(t *testing.T) {
	store := storetest.New()
	seedBooking(store, model.BookingConfirmed)
	store.PutReminder(pendingReminder("R1", model.ReminderAppointment24h))
	failed := pendingReminder("R2", model.ReminderAppointment1h)
	failed.Status = model.ReminderFailed
	store.PutReminder(failed)
	sent := pendingReminder("R3", model.ReminderAppointmentConfirmation)
	sent.Status = model.ReminderSent
	store.PutReminder(sent)

	ids, err := newTestScheduler(store, &mockEnqueuer{}).CancelPendingForBooking(context.Background(), "B1")
	if err != nil {
		t.Fatalf("CancelPendingForBooking() error = %v", err)
	}
	if !slices.Equal(ids, []string{"R1", "R2"}) {
		t.Errorf("cancelled = %v, want [R1 R2]", ids)
	}
	for _, r := range store.RemindersOf("B1") {
		if r.ID == "R3" && r.Status != model.ReminderSent {
			t.Errorf("sent reminder changed to %s", r.Status)
		}
	}
}

func TestScheduler_ScheduleReminder(t *testing.T) {
	store := storetest.New()
	seedBooking(store, model.BookingConfirmed)
	enqueuer := &mockEnqueuer{}
	at := time.Date(2030, 4, 10, 7, 30, 0, 0, time.UTC)

	reminder, err := newTestScheduler(store, enqueuer).ScheduleReminder(context.Background(), "B1", model.ReminderAppointment1h, model.ChannelSMS, at)
	if err != nil {
		t.Fatalf("ScheduleReminder() error = %v", err)
	}
	if reminder.Status != model.ReminderPending || !reminder.ScheduledAt.Equal(at) {
		t.Errorf("reminder = %s at %v, want PENDING at %v", reminder.Status, reminder.ScheduledAt, at)
	}
	if reminder.CustomerID != "cust-1" || reminder.TemplateID == "" {
		t.Errorf("customer %q template %q", reminder.CustomerID, reminder.TemplateID)
	}
	if len(enqueuer.enqueued) != 0 {
		t.Errorf("enqueued = %v, want nothing", enqueuer.enqueued)
	}
	if stored := store.RemindersOf("B1"); len(stored) != 1 || stored[0].ID != reminder.ID {
		t.Errorf("stored = %+v", stored)
	}
}

func TestScheduler_ScheduleReminder_UnknownBooking(t *testing.T) {
	store := storetest.New()
	enqueuer := &mockEnqueuer{}

	_, err := newTestScheduler(store, enqueuer).ScheduleReminder(context.Background(), "missing", model.ReminderAppointment24h, model.ChannelEmail, testNow)
	if !errors.Is(err, bookingserrors.BookingNotFound) {
		t.Fatalf("error = %v, want BOOKING_NOT_FOUND", err)
	}
	if len(store.RemindersOf("missing")) != 0 || len(enqueuer.enqueued) != 0 {
		t.Error("nothing should be stored or enqueued")
	}
}

func TestScheduler_CreatedEventForInactiveBooking(t *testing.T) {
	store := storetest.New()
	seedBooking(store, model.BookingCancelled)
	enqueuer := &mockEnqueuer{}
	router := events.NewRouter()
	newTestScheduler(store, enqueuer).Subscribe(router)

	payload, _ := json.Marshal(events.BookingEvent{BookingID: "B1", SlotID: "S1"})
	if err := router.Dispatch(context.Background(), events.TopicBookingCreated, payload); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if got := store.RemindersOf("B1"); len(got) != 0 {
		t.Errorf("reminders = %+v, want none for a cancelled booking", got)
	}
	if len(enqueuer.enqueued) != 0 {
		t.Errorf("enqueued = %v, want nothing", enqueuer.enqueued)
	}
}
