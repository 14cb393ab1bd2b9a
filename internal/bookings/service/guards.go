package service

import (
	"context"
	"errors"
	"time"

	bookingserrors "consultbook/internal/bookings/errors"
	consultantserrors "consultbook/internal/consultants/errors"
	consultantsrepo "consultbook/internal/consultants/repository"
	slotserrors "consultbook/internal/slots/errors"
	apperrors "consultbook/pkg/errors"
	"consultbook/pkg/model"
)

// Guards holds the read-only checks run before any booking write. They are
// shared by creation and rescheduling.
type Guards struct {
	consultants consultantsrepo.ConsultantRepository
	loc         *time.Location
	windowDays  int
	now         func() time.Time
}

func NewGuards(consultants consultantsrepo.ConsultantRepository, loc *time.Location, windowDays int) *Guards {
	if loc == nil {
		loc = time.UTC
	}
	return &Guards{
		consultants: consultants,
		loc:         loc,
		windowDays:  windowDays,
		now:         time.Now,
	}
}

// WithClock replaces the time source.
func (g *Guards) WithClock(now func() time.Time) *Guards {
	g.now = now
	return g
}

// CheckDate rejects dates before today or after today plus the booking window,
// both taken in the retailer's time zone.
func (g *Guards) CheckDate(date string) error {
	day, err := time.ParseInLocation(model.DateLayout, date, g.loc)
	if err != nil {
		return apperrors.Validation(apperrors.CodeValidation, "Invalid appointment date", map[string]any{"date": date})
	}

	now := g.now().In(g.loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, g.loc)

	if day.Before(today) {
		return bookingserrors.NewPastDateBooking(date)
	}
	if day.After(today.AddDate(0, 0, g.windowDays)) {
		return bookingserrors.NewBookingWindowExceeded(date, g.windowDays)
	}
	return nil
}

// CheckSlot requires slot to be AVAILABLE and not yet started.
func (g *Guards) CheckSlot(slot *model.Slot) error {
	if slot.Status != model.SlotAvailable {
		return slotserrors.NewSlotUnavailable(slot.ID)
	}

	startsAt, err := slot.StartsAt(g.loc)
	if err != nil {
		return apperrors.Internal("Slot has an invalid start time", err)
	}
	if !startsAt.After(g.now()) {
		return bookingserrors.NewPastDateBooking(slot.Date)
	}
	return nil
}

// CheckConsultant loads the consultant and requires it to be active and to
// cover the kitchen/bedroom flags.
func (g *Guards) CheckConsultant(ctx context.Context, id string, isKitchen, isBedroom bool) (*model.Consultant, error) {
	consultant, err := g.consultants.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, consultantserrors.ErrNotFound) {
			return nil, consultantserrors.NewConsultantNotFound(id)
		}
		return nil, apperrors.Internal("Failed to retrieve consultant", err)
	}

	if !consultant.IsActive {
		return nil, consultantserrors.NewConsultantNotActive(id)
	}
	if !consultant.Specialisation.Covers(isKitchen, isBedroom) {
		return nil, consultantserrors.NewSpecialisationMismatch(id, string(consultant.Specialisation), isKitchen, isBedroom)
	}
	return consultant, nil
}
