package service

import (
	"context"
	"errors"
	"strings"
	"time"

	bookingserrors "consultbook/internal/bookings/errors"
	bookingsrepo "consultbook/internal/bookings/repository"
	bookingsservice "consultbook/internal/bookings/service"
	"consultbook/internal/bookings/validator"
	"consultbook/internal/events"
	slotserrors "consultbook/internal/slots/errors"
	slotsrepo "consultbook/internal/slots/repository"
	"consultbook/pkg/config"
	"consultbook/pkg/db"
	apperrors "consultbook/pkg/errors"
	"consultbook/pkg/model"
	"consultbook/pkg/obs"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "consultbook/reschedule"

type RescheduleService interface {
	RescheduleBooking(ctx context.Context, id string, input *model.RescheduleBookingInput, actor model.Actor) (*model.Booking, error)
}

type Dependencies struct {
	Bookings  bookingsservice.BookingService
	Repo      bookingsrepo.BookingRepository
	Slots     slotsrepo.SlotStore
	Guards    *bookingsservice.Guards
	Policy    bookingsservice.InitialStatusPolicy
	Reminders bookingsservice.ReminderCanceller
	Tx        db.TransactionManager
	Events    events.Publisher
	Validator *validator.BookingValidator
}

type rescheduleService struct {
	bookings  bookingsservice.BookingService
	repo      bookingsrepo.BookingRepository
	slots     slotsrepo.SlotStore
	guards    *bookingsservice.Guards
	policy    bookingsservice.InitialStatusPolicy
	reminders bookingsservice.ReminderCanceller
	tx        db.TransactionManager
	events    events.Publisher
	validator *validator.BookingValidator
	cfg       *config.Config
	tracer    trace.Tracer
}

func NewRescheduleService(deps Dependencies, cfg *config.Config) RescheduleService {
	return &rescheduleService{
		bookings:  deps.Bookings,
		repo:      deps.Repo,
		slots:     deps.Slots,
		guards:    deps.Guards,
		policy:    deps.Policy,
		reminders: deps.Reminders,
		tx:        deps.Tx,
		events:    deps.Events,
		validator: deps.Validator,
		cfg:       cfg,
		tracer:    obs.Tracer(tracerName),
	}
}

// RescheduleBooking moves a booking onto another slot. The replacement booking
// keeps the customer and appointment details and points back at the original
// through RescheduledFromID; the original ends RESCHEDULED.
func (s *rescheduleService) RescheduleBooking(ctx context.Context, id string, input *model.RescheduleBookingInput, actor model.Actor) (replacement *model.Booking, err error) {
	ctx, span := s.tracer.Start(ctx, "reschedule.RescheduleBooking",
		trace.WithAttributes(
			attribute.String("booking_id", id),
			attribute.String("new_slot_id", input.NewSlotID),
		))
	defer func() { obs.End(span, err) }()

	input.NewSlotID = strings.TrimSpace(input.NewSlotID)
	if err := s.validator.ValidateReschedule(input); err != nil {
		return nil, bookingsservice.ValidationError("Invalid reschedule input", err)
	}

	original, err := s.bookings.GetBookingByID(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	if input.NewSlotID == original.SlotID {
		return nil, bookingserrors.NewSameSlotReschedule(input.NewSlotID)
	}
	if !original.Status.IsActive() {
		return nil, bookingserrors.NewBookingStateConflict(id, original.Status, "reschedule")
	}

	newSlot, err := s.findSlot(ctx, input.NewSlotID)
	if err != nil {
		return nil, err
	}
	if err := s.guards.CheckSlot(newSlot); err != nil {
		s.cfg.Log.Warn("Reschedule slot rejected", "booking_id", id, "slot_id", newSlot.ID, "error", err)
		return nil, err
	}
	if err := s.guards.CheckDate(newSlot.Date); err != nil {
		return nil, err
	}
	if original.ConsultantID != nil {
		if _, err := s.guards.CheckConsultant(ctx, newSlot.ConsultantID, original.IsKitchen, original.IsBedroom); err != nil {
			s.cfg.Log.Warn("Reschedule consultant rejected", "booking_id", id, "consultant_id", newSlot.ConsultantID, "error", err)
			return nil, err
		}
	}

	replacement = s.newBooking(original, newSlot)
	span.SetAttributes(attribute.String("new_booking_id", replacement.ID))

	var moved *model.Booking
	reserved := false
	err = s.tx.ExecuteTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.slots.Reserve(ctx, newSlot.ID, replacement.ID); err != nil {
			return bookingsservice.ReserveError(newSlot.ID, err)
		}
		reserved = true

		if err := s.repo.Create(ctx, replacement); err != nil {
			if errors.Is(err, bookingserrors.ErrSlotTaken) {
				return slotserrors.NewSlotUnavailable(newSlot.ID)
			}
			return apperrors.Internal("Failed to create replacement booking", err)
		}

		updated, err := s.repo.TransitionStatus(ctx, original.ID, model.StatusChange{
			From: model.ActiveBookingStatuses,
			To:   model.BookingRescheduled,
			At:   time.Now(),
		})
		if err != nil {
			return transitionError(original.ID, err)
		}

		if _, err := s.slots.Release(ctx, original.SlotID); err != nil {
			return apperrors.Internal("Failed to release original slot", err)
		}
		if _, err := s.reminders.CancelPendingForBooking(ctx, original.ID); err != nil {
			return apperrors.Internal("Failed to cancel pending reminders", err)
		}

		moved = updated
		return nil
	})
	if err != nil {
		if reserved {
			s.compensate(ctx, newSlot.ID, replacement.ID)
		}
		s.logFailure("Failed to reschedule booking", err, "booking_id", id, "new_slot_id", newSlot.ID)
		return nil, err
	}

	s.cfg.Log.Info("Booking rescheduled successfully",
		"booking_id", original.ID,
		"new_booking_id", replacement.ID,
		"old_slot_id", original.SlotID,
		"new_slot_id", replacement.SlotID,
		"status", replacement.Status,
	)

	if err := s.events.Publish(ctx, events.TopicBookingRescheduled, replacement.ID,
		events.NewBookingRescheduledEvent(moved, replacement, actor)); err != nil {
		s.cfg.Log.Error("Failed to publish event", "topic", events.TopicBookingRescheduled, "booking_id", replacement.ID, "error", err)
	}
	return replacement, nil
}

// compensate frees the new slot when the reschedule did not commit. A store
// that rolled the reservation back reports the slot as not held.
func (s *rescheduleService) compensate(ctx context.Context, slotID, bookingID string) {
	ctx = context.WithoutCancel(ctx)
	if _, err := s.slots.ReleaseFor(ctx, slotID, bookingID); err != nil {
		if errors.Is(err, slotserrors.ErrNotHeld) {
			return
		}
		s.cfg.Log.Error("Failed to release reserved slot after reschedule failure",
			"slot_id", slotID,
			"booking_id", bookingID,
			"error", err,
		)
		return
	}
	s.cfg.Log.Warn("Released reserved slot after reschedule failure", "slot_id", slotID, "booking_id", bookingID)
}

func (s *rescheduleService) findSlot(ctx context.Context, id string) (*model.Slot, error) {
	slot, err := s.slots.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, slotserrors.ErrNotFound) {
			return nil, slotserrors.NewSlotUnavailable(id)
		}
		return nil, apperrors.Internal("Failed to retrieve slot", err)
	}
	return slot, nil
}

func (s *rescheduleService) newBooking(original *model.Booking, slot *model.Slot) *model.Booking {
	var consultantID *string
	if original.ConsultantID != nil {
		id := slot.ConsultantID
		consultantID = &id
	}
	showroomID := original.ShowroomID
	if showroomID == nil {
		showroomID = slot.ShowroomID
	}
	from := original.ID

	return &model.Booking{
		ID:                uuid.NewString(),
		CustomerID:        original.CustomerID,
		CustomerName:      original.CustomerName,
		CustomerEmail:     original.CustomerEmail,
		CustomerPhone:     original.CustomerPhone,
		CustomerPushToken: original.CustomerPushToken,
		Postcode:          original.Postcode,
		AppointmentType:   original.AppointmentType,
		IsKitchen:         original.IsKitchen,
		IsBedroom:         original.IsBedroom,
		SlotID:            slot.ID,
		ConsultantID:      consultantID,
		ShowroomID:        showroomID,
		Status:            s.policy.InitialStatus(original.AppointmentType),
		RescheduledFromID: &from,
		Notes:             original.Notes,
	}
}

func (s *rescheduleService) logFailure(msg string, err error, args ...any) {
	args = append(args, "error", err)
	if apperrors.AsAppError(err).Operational() {
		s.cfg.Log.Warn(msg, args...)
		return
	}
	s.cfg.Log.Error(msg, args...)
}

// transitionError reports any lost race on the original booking as a
// generic state conflict.
func transitionError(id string, err error) error {
	var conflict *bookingserrors.StatusConflictError
	if errors.As(err, &conflict) {
		return bookingserrors.NewBookingStateConflict(id, conflict.Current, "reschedule")
	}
	if errors.Is(err, bookingserrors.ErrNotFound) {
		return bookingserrors.NewBookingNotFound(id)
	}
	return apperrors.Internal("Failed to update booking status", err)
}
