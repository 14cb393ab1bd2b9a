package service

import (
	"context"
	"errors"
	"testing"
	"time"

	bookingserrors "consultbook/internal/bookings/errors"
	consultantserrors "consultbook/internal/consultants/errors"
	slotserrors "consultbook/internal/slots/errors"
	"consultbook/internal/storetest"
	apperrors "consultbook/pkg/errors"
	"consultbook/pkg/model"
)

func newTestGuards(t *testing.T) *Guards {
	t.Helper()
	loc, err := time.LoadLocation("Europe/London")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}

	store := storetest.New()
	store.PutConsultant(model.Consultant{ID: "kitchen", Specialisation: model.SpecialisationKitchen, IsActive: true})
	store.PutConsultant(model.Consultant{ID: "bedroom", Specialisation: model.SpecialisationBedroom, IsActive: true})
	store.PutConsultant(model.Consultant{ID: "retired", Specialisation: model.SpecialisationBoth, IsActive: false})

	g := NewGuards(store.Consultants(), loc, 90)
	// 23:30 UTC on 31 May is already 1 June in London.
	g.now = func() time.Time { return time.Date(2030, 5, 31, 23, 30, 0, 0, time.UTC) }
	return g
}

func TestGuards_CheckDate(t *testing.T) {
	g := newTestGuards(t)

	tests := []struct {
		date    string
		wantErr *apperrors.AppError
	}{
		{"2030-06-01", nil},
		{"2030-08-30", nil},
		{"2030-08-31", bookingserrors.BookingWindowExceeded},
		{"2030-05-31", bookingserrors.PastDateBooking},
		{"01/06/2030", apperrors.Validation(apperrors.CodeValidation, "", nil)},
	}

	for _, tt := range tests {
		t.Run(tt.date, func(t *testing.T) {
			err := g.CheckDate(tt.date)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("CheckDate(%s) error = %v", tt.date, err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("CheckDate(%s) = %v, want %s", tt.date, err, tt.wantErr.Code)
			}
		})
	}
}

func TestGuards_CheckSlot(t *testing.T) {
	g := newTestGuards(t)

	tests := []struct {
		name    string
		slot    model.Slot
		wantErr *apperrors.AppError
	}{
		{"available later today", model.Slot{ID: "a", Date: "2030-06-01", StartTime: "09:00", Status: model.SlotAvailable}, nil},
		{"already started", model.Slot{ID: "b", Date: "2030-06-01", StartTime: "00:15", Status: model.SlotAvailable}, bookingserrors.PastDateBooking},
		{"booked", model.Slot{ID: "c", Date: "2030-06-02", StartTime: "09:00", Status: model.SlotBooked}, slotserrors.SlotUnavailable},
		{"blocked", model.Slot{ID: "d", Date: "2030-06-02", StartTime: "09:00", Status: model.SlotBlocked}, slotserrors.SlotUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := g.CheckSlot(&tt.slot)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("CheckSlot() error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("CheckSlot() = %v, want %s", err, tt.wantErr.Code)
			}
		})
	}
}

func TestGuards_CheckConsultant(t *testing.T) {
	g := newTestGuards(t)

	tests := []struct {
		name      string
		id        string
		isKitchen bool
		isBedroom bool
		wantErr   *apperrors.AppError
	}{
		{"kitchen covers kitchen", "kitchen", true, false, nil},
		{"bedroom only rejects kitchen", "bedroom", true, false, consultantserrors.ConsultantSpecialisationMismatch},
		{"kitchen rejects combined", "kitchen", true, true, consultantserrors.ConsultantSpecialisationMismatch},
		{"inactive", "retired", true, false, consultantserrors.ConsultantNotActive},
		{"missing", "ghost", true, false, consultantserrors.ConsultantNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := g.CheckConsultant(context.Background(), tt.id, tt.isKitchen, tt.isBedroom)
			if tt.wantErr == nil {
				if err != nil || c.ID != tt.id {
					t.Errorf("CheckConsultant() = %v, %v", c, err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("CheckConsultant() = %v, want %s", err, tt.wantErr.Code)
			}
		})
	}
}

func TestInitialStatusPolicy(t *testing.T) {
	p := NewInitialStatusPolicy([]model.AppointmentType{model.AppointmentHomeMeasurement})

	if got := p.InitialStatus(model.AppointmentHomeMeasurement); got != model.BookingPending {
		t.Errorf("home measurement = %s, want PENDING", got)
	}
	if got := p.InitialStatus(model.AppointmentShowroom); got != model.BookingConfirmed {
		t.Errorf("showroom = %s, want CONFIRMED", got)
	}
	if got := NewInitialStatusPolicy(nil).InitialStatus(model.AppointmentHomeMeasurement); got != model.BookingConfirmed {
		t.Errorf("empty policy = %s, want CONFIRMED", got)
	}
}
