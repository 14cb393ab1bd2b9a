package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	bookingserrors "consultbook/internal/bookings/errors"
	"consultbook/internal/bookings/validator"
	consultantserrors "consultbook/internal/consultants/errors"
	slotserrors "consultbook/internal/slots/errors"
	"consultbook/internal/storetest"
	"consultbook/pkg/config"
	apperrors "consultbook/pkg/errors"
	"consultbook/pkg/logger"
	"consultbook/pkg/model"
)

var testNow = time.Date(2030, 4, 1, 10, 0, 0, 0, time.UTC)

type published struct {
	topic   string
	key     string
	payload any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, topic, key string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{topic, key, payload})
	return p.err
}

func (p *recordingPublisher) topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		out = append(out, e.topic)
	}
	return out
}

type storeCanceller struct{ store *storetest.Store }

func (c storeCanceller) CancelPendingForBooking(ctx context.Context, bookingID string) ([]string, error) {
	return c.store.Reminders().CancelPendingForBooking(ctx, bookingID, testNow)
}

type fixture struct {
	store  *storetest.Store
	svc    BookingService
	events *recordingPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := storetest.New()
	store.PutConsultant(model.Consultant{ID: "C1", Specialisation: model.SpecialisationKitchen, IsActive: true})
	store.PutConsultant(model.Consultant{ID: "C2", Specialisation: model.SpecialisationBedroom, IsActive: true})
	store.PutConsultant(model.Consultant{ID: "C3", Specialisation: model.SpecialisationBoth, IsActive: false})
	store.PutSlot(model.Slot{ID: "S1", ConsultantID: "C1", Date: "2030-04-10", StartTime: "09:00", EndTime: "10:00", Status: model.SlotAvailable})
	store.PutSlot(model.Slot{ID: "S2", ConsultantID: "C2", Date: "2030-04-10", StartTime: "11:00", EndTime: "12:00", Status: model.SlotAvailable})
	store.PutSlot(model.Slot{ID: "S3", ConsultantID: "C3", Date: "2030-04-11", StartTime: "09:00", EndTime: "10:00", Status: model.SlotAvailable})
	store.PutSlot(model.Slot{ID: "S4", ConsultantID: "C1", Date: "2030-04-12", StartTime: "09:00", EndTime: "10:00", Status: model.SlotBlocked})
	store.PutSlot(model.Slot{ID: "S5", ConsultantID: "C1", Date: "2030-04-01", StartTime: "09:00", EndTime: "10:00", Status: model.SlotAvailable})

	cfg := &config.Config{
		Log:          logger.Discard(),
		Location:     time.UTC,
		PhoneRegions: []string{"GB"},
	}
	guards := NewGuards(store.Consultants(), time.UTC, 90)
	guards.now = func() time.Time { return testNow }

	events := &recordingPublisher{}
	svc := NewBookingService(Dependencies{
		Repo:      store.Bookings(),
		Slots:     store.Slots(),
		Guards:    guards,
		Policy:    NewInitialStatusPolicy([]model.AppointmentType{model.AppointmentHomeMeasurement}),
		Reminders: storeCanceller{store},
		Tx:        store.Tx(),
		Events:    events,
		Validator: validator.NewBookingValidator(logger.Discard()),
	}, cfg)

	return &fixture{store: store, svc: svc, events: events}
}

func strPtr(s string) *string { return &s }

func validInput() *model.CreateAppointmentInput {
	return &model.CreateAppointmentInput{
		CustomerID:      "cust-1",
		CustomerName:    "Ada Lovelace",
		CustomerEmail:   "ada@example.com",
		CustomerPhone:   "+447700900123",
		AppointmentType: model.AppointmentOnline,
		IsKitchen:       true,
		Date:            "2030-04-10",
		SlotID:          "S1",
		ConsultantID:    strPtr("C1"),
	}
}

var (
	customer = model.Actor{ID: "cust-1", Role: model.RoleCustomer}
	stranger = model.Actor{ID: "cust-2", Role: model.RoleCustomer}
	staff    = model.Actor{ID: "staff-1", Role: model.RoleStaff}
)

func (f *fixture) book(t *testing.T) *model.Booking {
	t.Helper()
	booking, err := f.svc.CreateAppointment(context.Background(), validInput(), customer)
	if err != nil {
		t.Fatalf("CreateAppointment() error = %v", err)
	}
	return booking
}

func TestCreateAppointment_KitchenConsultantScenario(t *testing.T) {
	f := newFixture(t)

	booking := f.book(t)

	if booking.Status != model.BookingConfirmed {
		t.Errorf("status = %s, want CONFIRMED for an online appointment", booking.Status)
	}
	if booking.SlotID != "S1" || booking.ConsultantID == nil || *booking.ConsultantID != "C1" {
		t.Errorf("booking = %+v", booking)
	}
	slot, _ := f.store.Slot("S1")
	if slot.Status != model.SlotBooked || slot.BookingID == nil || *slot.BookingID != booking.ID {
		t.Errorf("slot = %+v, want BOOKED by %s", slot, booking.ID)
	}
	if got := f.events.topics(); len(got) != 1 || got[0] != "booking.created" {
		t.Errorf("events = %v", got)
	}
}

func TestCreateAppointment_PolicyPending(t *testing.T) {
	f := newFixture(t)
	input := validInput()
	input.AppointmentType = model.AppointmentHomeMeasurement
	input.Postcode = "sw1a1aa"

	booking, err := f.svc.CreateAppointment(context.Background(), input, customer)
	if err != nil {
		t.Fatalf("CreateAppointment() error = %v", err)
	}
	if booking.Status != model.BookingPending {
		t.Errorf("status = %s, want PENDING", booking.Status)
	}
}

func TestCreateAppointment_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(in *model.CreateAppointmentInput)
		actor   model.Actor
		wantErr *apperrors.AppError
	}{
		{
			name:    "past date",
			mutate:  func(in *model.CreateAppointmentInput) { in.Date = "2030-03-31" },
			wantErr: bookingserrors.PastDateBooking,
		},
		{
			name:    "slot already started today",
			mutate:  func(in *model.CreateAppointmentInput) { in.Date = "2030-04-01"; in.SlotID = "S5" },
			wantErr: bookingserrors.PastDateBooking,
		},
		{
			name:    "beyond booking window",
			mutate:  func(in *model.CreateAppointmentInput) { in.Date = "2030-07-01" },
			wantErr: bookingserrors.BookingWindowExceeded,
		},
		{
			name:    "unknown slot",
			mutate:  func(in *model.CreateAppointmentInput) { in.SlotID = "missing" },
			wantErr: slotserrors.SlotUnavailable,
		},
		{
			name:    "blocked slot",
			mutate:  func(in *model.CreateAppointmentInput) { in.SlotID = "S4"; in.Date = "2030-04-12" },
			wantErr: slotserrors.SlotUnavailable,
		},
		{
			name: "bedroom consultant on kitchen booking",
			mutate: func(in *model.CreateAppointmentInput) {
				in.SlotID = "S2"
				in.ConsultantID = strPtr("C2")
			},
			wantErr: consultantserrors.ConsultantSpecialisationMismatch,
		},
		{
			name: "inactive consultant",
			mutate: func(in *model.CreateAppointmentInput) {
				in.SlotID = "S3"
				in.Date = "2030-04-11"
				in.ConsultantID = strPtr("C3")
			},
			wantErr: consultantserrors.ConsultantNotActive,
		},
		{
			name:    "consultant does not own slot",
			mutate:  func(in *model.CreateAppointmentInput) { in.ConsultantID = strPtr("C2") },
			wantErr: apperrors.Validation(apperrors.CodeValidation, "", nil),
		},
		{
			name:    "date does not match slot",
			mutate:  func(in *model.CreateAppointmentInput) { in.Date = "2030-04-11" },
			wantErr: apperrors.Validation(apperrors.CodeValidation, "", nil),
		},
		{
			name:    "neither kitchen nor bedroom",
			mutate:  func(in *model.CreateAppointmentInput) { in.IsKitchen = false },
			wantErr: apperrors.Validation(apperrors.CodeValidation, "", nil),
		},
		{
			name:    "home measurement without postcode",
			mutate:  func(in *model.CreateAppointmentInput) { in.AppointmentType = model.AppointmentHomeMeasurement },
			wantErr: apperrors.Validation(apperrors.CodeValidation, "", nil),
		},
		{
			name:    "booking for another customer",
			mutate:  func(in *model.CreateAppointmentInput) {},
			actor:   stranger,
			wantErr: bookingserrors.UnauthorisedAppointmentAccess,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			input := validInput()
			tt.mutate(input)
			actor := tt.actor
			if actor.ID == "" {
				actor = customer
			}

			_, err := f.svc.CreateAppointment(context.Background(), input, actor)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %s", err, tt.wantErr.Code)
			}
			if n := f.store.BookingCount(); n != 0 {
				t.Errorf("bookings persisted = %d, want 0", n)
			}
			if f.store.Calls(storetest.OpSlotReserve) != 0 {
				t.Errorf("slot reserved despite rejection")
			}
		})
	}
}

func TestCreateAppointment_ReserveFailureLeavesNoBooking(t *testing.T) {
	tests := []struct {
		name     string
		failure  error
		wantCode string
	}{
		{"lost race", fmt.Errorf("%w: S1", slotserrors.ErrSlotUnavailable), slotserrors.CodeSlotUnavailable},
		{"store failure", errors.New("connection reset"), apperrors.CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.store.FailOn(storetest.OpSlotReserve, tt.failure)

			_, err := f.svc.CreateAppointment(context.Background(), validInput(), customer)
			if apperrors.CodeOf(err) != tt.wantCode {
				t.Fatalf("error = %v, want %s", err, tt.wantCode)
			}
			if n := f.store.BookingCount(); n != 0 {
				t.Errorf("orphan bookings = %d, want 0", n)
			}
			if len(f.events.topics()) != 0 {
				t.Errorf("event published for failed create")
			}
		})
	}
}

func TestCreateAppointment_ConcurrentSlotExclusivity(t *testing.T) {
	f := newFixture(t)
	const callers = 25

	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			input := validInput()
			input.CustomerID = fmt.Sprintf("cust-%d", i)
			_, errs[i] = f.svc.CreateAppointment(context.Background(), input, staff)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case !errors.Is(err, slotserrors.SlotUnavailable):
			t.Errorf("unexpected error = %v", err)
		}
	}
	if succeeded != 1 {
		t.Errorf("successful reservations = %d, want 1", succeeded)
	}
	if n := f.store.BookingCount(); n != 1 {
		t.Errorf("bookings = %d, want 1", n)
	}
}

func TestCreateAppointment_PublishFailureDoesNotFail(t *testing.T) {
	f := newFixture(t)
	f.events.err = errors.New("broker down")

	if _, err := f.svc.CreateAppointment(context.Background(), validInput(), customer); err != nil {
		t.Fatalf("CreateAppointment() error = %v", err)
	}
}

func TestCancelBooking(t *testing.T) {
	f := newFixture(t)
	booking := f.book(t)
	f.store.PutReminder(model.Reminder{ID: "r-pending", BookingID: booking.ID, Status: model.ReminderPending})
	f.store.PutReminder(model.Reminder{ID: "r-sent", BookingID: booking.ID, Status: model.ReminderSent})

	cancelled, err := f.svc.CancelBooking(context.Background(), booking.ID, &model.CancelBookingInput{Reason: "moving house"}, customer)
	if err != nil {
		t.Fatalf("CancelBooking() error = %v", err)
	}

	if cancelled.Status != model.BookingCancelled || cancelled.CancelledBy != customer.ID || cancelled.CancelledAt == nil {
		t.Errorf("cancelled = %+v", cancelled)
	}
	if slot, _ := f.store.Slot("S1"); slot.Status != model.SlotAvailable || slot.BookingID != nil {
		t.Errorf("slot = %+v, want AVAILABLE", slot)
	}
	for _, r := range f.store.RemindersOf(booking.ID) {
		want := model.ReminderCancelled
		if r.ID == "r-sent" {
			want = model.ReminderSent
		}
		if r.Status != want {
			t.Errorf("reminder %s status = %s, want %s", r.ID, r.Status, want)
		}
	}

	_, err = f.svc.CancelBooking(context.Background(), booking.ID, &model.CancelBookingInput{Reason: "again"}, customer)
	if !errors.Is(err, bookingserrors.BookingAlreadyCancelled) {
		t.Errorf("second cancel error = %v, want BOOKING_ALREADY_CANCELLED", err)
	}
}

func TestCancelBooking_StatusUpdateFailureKeepsSlotBooked(t *testing.T) {
	f := newFixture(t)
	booking := f.book(t)
	f.store.FailOn(storetest.OpBookingTransition, errors.New("write conflict"))

	_, err := f.svc.CancelBooking(context.Background(), booking.ID, &model.CancelBookingInput{Reason: "moving house"}, customer)
	if err == nil {
		t.Fatal("expected error")
	}
	if n := f.store.Calls(storetest.OpSlotRelease); n != 0 {
		t.Errorf("slot release invoked %d times", n)
	}
	if slot, _ := f.store.Slot("S1"); slot.Status != model.SlotBooked {
		t.Errorf("slot status = %s, want BOOKED", slot.Status)
	}
}

func TestCancelBooking_ReleaseFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	booking := f.book(t)
	f.store.FailOn(storetest.OpSlotRelease, errors.New("timeout"))

	if _, err := f.svc.CancelBooking(context.Background(), booking.ID, &model.CancelBookingInput{Reason: "moving house"}, customer); err == nil {
		t.Fatal("expected error")
	}
	if b, _ := f.store.Booking(booking.ID); b.Status != booking.Status {
		t.Errorf("booking status = %s, want %s after rollback", b.Status, booking.Status)
	}
}

func TestCancelBooking_ConcurrentCancels(t *testing.T) {
	f := newFixture(t)
	booking := f.book(t)
	const callers = 10

	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.CancelBooking(context.Background(), booking.ID, &model.CancelBookingInput{Reason: "changed mind"}, customer)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case !errors.Is(err, bookingserrors.BookingAlreadyCancelled):
			t.Errorf("unexpected error = %v", err)
		}
	}
	if succeeded != 1 {
		t.Errorf("successful cancels = %d, want 1", succeeded)
	}
}

func TestCancelBooking_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		status  model.BookingStatus
		actor   model.Actor
		reason  string
		wantErr *apperrors.AppError
	}{
		{"other customer", model.BookingConfirmed, stranger, "not mine", bookingserrors.UnauthorisedAppointmentAccess},
		{"completed booking", model.BookingCompleted, staff, "too late", bookingserrors.BookingStateConflict},
		{"rescheduled booking", model.BookingRescheduled, customer, "moved", bookingserrors.BookingStateConflict},
		{"missing reason", model.BookingConfirmed, customer, "", apperrors.Validation(apperrors.CodeValidation, "", nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.store.PutBooking(model.Booking{ID: "B1", CustomerID: "cust-1", SlotID: "S1", Status: tt.status})

			_, err := f.svc.CancelBooking(context.Background(), "B1", &model.CancelBookingInput{Reason: tt.reason}, tt.actor)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %s", err, tt.wantErr.Code)
			}
			if f.store.Calls(storetest.OpSlotRelease) != 0 {
				t.Errorf("slot released despite rejection")
			}
		})
	}

	f := newFixture(t)
	_, err := f.svc.CancelBooking(context.Background(), "nope", &model.CancelBookingInput{Reason: "gone"}, customer)
	if !errors.Is(err, bookingserrors.BookingNotFound) {
		t.Errorf("error = %v, want BOOKING_NOT_FOUND", err)
	}
}

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		name    string
		status  model.BookingStatus
		actor   model.Actor
		call    func(s BookingService, ctx context.Context, id string, a model.Actor) (*model.Booking, error)
		want    model.BookingStatus
		wantErr *apperrors.AppError
	}{
		{"confirm pending", model.BookingPending, staff, BookingService.ConfirmBooking, model.BookingConfirmed, nil},
		{"confirm confirmed", model.BookingConfirmed, staff, BookingService.ConfirmBooking, "", bookingserrors.BookingAlreadyConfirmed},
		{"confirm cancelled", model.BookingCancelled, staff, BookingService.ConfirmBooking, "", bookingserrors.BookingAlreadyCancelled},
		{"complete confirmed", model.BookingConfirmed, staff, BookingService.CompleteBooking, model.BookingCompleted, nil},
		{"complete pending", model.BookingPending, staff, BookingService.CompleteBooking, "", bookingserrors.BookingStateConflict},
		{"no-show confirmed", model.BookingConfirmed, staff, BookingService.MarkNoShow, model.BookingNoShow, nil},
		{"customer cannot confirm", model.BookingPending, customer, BookingService.ConfirmBooking, "", bookingserrors.UnauthorisedAppointmentAccess},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.store.PutBooking(model.Booking{ID: "B1", CustomerID: "cust-1", SlotID: "S1", Status: tt.status})

			got, err := tt.call(f.svc, context.Background(), "B1", tt.actor)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %s", err, tt.wantErr.Code)
				}
				return
			}
			if err != nil {
				t.Fatalf("error = %v", err)
			}
			if got.Status != tt.want {
				t.Errorf("status = %s, want %s", got.Status, tt.want)
			}
			if topics := f.events.topics(); len(topics) != 1 || topics[0] != "booking.status_changed" {
				t.Errorf("events = %v", topics)
			}
		})
	}
}

func TestGetAndListBookings(t *testing.T) {
	f := newFixture(t)
	booking := f.book(t)
	f.store.PutBooking(model.Booking{ID: "other", CustomerID: "cust-2", SlotID: "S2", Status: model.BookingConfirmed})

	if _, err := f.svc.GetBookingByID(context.Background(), booking.ID, stranger); !errors.Is(err, bookingserrors.UnauthorisedAppointmentAccess) {
		t.Errorf("stranger get error = %v", err)
	}
	if got, err := f.svc.GetBookingByID(context.Background(), booking.ID, staff); err != nil || got.ID != booking.ID {
		t.Errorf("staff get = %v, %v", got, err)
	}

	own, total, err := f.svc.ListBookings(context.Background(), "", 0, 0, customer)
	if err != nil {
		t.Fatalf("ListBookings() error = %v", err)
	}
	if total != 1 || len(own) != 1 || own[0].ID != booking.ID {
		t.Errorf("customer list = %d items, total %d", len(own), total)
	}

	if _, _, err := f.svc.ListBookings(context.Background(), "cust-2", 10, 0, customer); !errors.Is(err, bookingserrors.UnauthorisedAppointmentAccess) {
		t.Errorf("cross-customer list error = %v", err)
	}

	all, total, err := f.svc.ListBookings(context.Background(), "", 10, 0, staff)
	if err != nil || total != 2 || len(all) != 2 {
		t.Errorf("staff list = %d items, total %d, err %v", len(all), total, err)
	}
}
