package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	bookingserrors "consultbook/internal/bookings/errors"
	"consultbook/internal/bookings/repository"
	"consultbook/internal/bookings/validator"
	"consultbook/internal/events"
	slotserrors "consultbook/internal/slots/errors"
	slotsrepo "consultbook/internal/slots/repository"
	"consultbook/pkg/config"
	"consultbook/pkg/db"
	apperrors "consultbook/pkg/errors"
	"consultbook/pkg/model"
	"consultbook/pkg/obs"
	"consultbook/pkg/sanitizer"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "consultbook/bookings"

// ReminderCanceller cancels the not yet sent reminders of a booking. It is
// called inside the cancel transaction.
type ReminderCanceller interface {
	CancelPendingForBooking(ctx context.Context, bookingID string) ([]string, error)
}

type BookingService interface {
	CreateAppointment(ctx context.Context, input *model.CreateAppointmentInput, actor model.Actor) (*model.Booking, error)
	GetBookingByID(ctx context.Context, id string, actor model.Actor) (*model.Booking, error)
	ListBookings(ctx context.Context, customerID string, limit int, offset int64, actor model.Actor) ([]*model.Booking, int64, error)
	CancelBooking(ctx context.Context, id string, input *model.CancelBookingInput, actor model.Actor) (*model.Booking, error)
	ConfirmBooking(ctx context.Context, id string, actor model.Actor) (*model.Booking, error)
	CompleteBooking(ctx context.Context, id string, actor model.Actor) (*model.Booking, error)
	MarkNoShow(ctx context.Context, id string, actor model.Actor) (*model.Booking, error)
}

type Dependencies struct {
	Repo      repository.BookingRepository
	Slots     slotsrepo.SlotStore
	Guards    *Guards
	Policy    InitialStatusPolicy
	Reminders ReminderCanceller
	Tx        db.TransactionManager
	Events    events.Publisher
	Validator *validator.BookingValidator
}

type bookingService struct {
	repo      repository.BookingRepository
	slots     slotsrepo.SlotStore
	guards    *Guards
	policy    InitialStatusPolicy
	reminders ReminderCanceller
	tx        db.TransactionManager
	events    events.Publisher
	validator *validator.BookingValidator
	cfg       *config.Config
	tracer    trace.Tracer
}

func NewBookingService(deps Dependencies, cfg *config.Config) BookingService {
	return &bookingService{
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

func (s *bookingService) CreateAppointment(ctx context.Context, input *model.CreateAppointmentInput, actor model.Actor) (booking *model.Booking, err error) {
	ctx, span := s.tracer.Start(ctx, "bookings.CreateAppointment",
		trace.WithAttributes(attribute.String("slot_id", input.SlotID)))
	defer func() { obs.End(span, err) }()

	s.sanitize(input)
	if err := s.validator.ValidateCreate(input); err != nil {
		s.cfg.Log.Warn("Appointment validation failed", "slot_id", input.SlotID, "error", err)
		return nil, ValidationError("Invalid appointment input", err)
	}
	if !actor.CanAccess(input.CustomerID) {
		return nil, bookingserrors.UnauthorisedAppointmentAccess
	}

	if err := s.guards.CheckDate(input.Date); err != nil {
		s.cfg.Log.Warn("Appointment date rejected", "date", input.Date, "error", err)
		return nil, err
	}

	slot, err := s.findSlot(ctx, input.SlotID)
	if err != nil {
		return nil, err
	}
	if err := s.guards.CheckSlot(slot); err != nil {
		s.cfg.Log.Warn("Slot rejected", "slot_id", slot.ID, "status", slot.Status, "error", err)
		return nil, err
	}
	if slot.Date != input.Date {
		return nil, apperrors.Validation(apperrors.CodeValidation, "Appointment date does not match the slot", map[string]any{
			"date":      input.Date,
			"slot_date": slot.Date,
		})
	}

	if input.ConsultantID != nil {
		if *input.ConsultantID != slot.ConsultantID {
			return nil, apperrors.Validation(apperrors.CodeValidation, "Slot belongs to another consultant", map[string]any{
				"consultant_id":      *input.ConsultantID,
				"slot_consultant_id": slot.ConsultantID,
			})
		}
		if _, err := s.guards.CheckConsultant(ctx, *input.ConsultantID, input.IsKitchen, input.IsBedroom); err != nil {
			s.cfg.Log.Warn("Consultant rejected", "consultant_id", *input.ConsultantID, "error", err)
			return nil, err
		}
	}

	booking = s.newBooking(input, slot)
	span.SetAttributes(attribute.String("booking_id", booking.ID))

	err = s.tx.ExecuteTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, booking); err != nil {
			if errors.Is(err, bookingserrors.ErrSlotTaken) {
				return slotserrors.NewSlotUnavailable(slot.ID)
			}
			return apperrors.Internal("Failed to create booking", err)
		}
		if _, err := s.slots.Reserve(ctx, slot.ID, booking.ID); err != nil {
			return ReserveError(slot.ID, err)
		}
		return nil
	})
	if err != nil {
		s.logFailure("Failed to create appointment", err, "booking_id", booking.ID, "slot_id", slot.ID)
		return nil, err
	}

	s.cfg.Log.Info("Appointment created successfully",
		"booking_id", booking.ID,
		"slot_id", booking.SlotID,
		"customer_id", booking.CustomerID,
		"status", booking.Status,
	)

	s.publish(ctx, events.TopicBookingCreated, booking.ID, events.NewBookingEvent(booking, "", actor))
	return booking, nil
}

func (s *bookingService) GetBookingByID(ctx context.Context, id string, actor model.Actor) (*model.Booking, error) {
	booking, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanAccess(booking.CustomerID) {
		return nil, bookingserrors.NewUnauthorisedAccess(id)
	}
	return booking, nil
}

func (s *bookingService) ListBookings(ctx context.Context, customerID string, limit int, offset int64, actor model.Actor) ([]*model.Booking, int64, error) {
	if !actor.IsPrivileged() {
		if customerID == "" {
			customerID = actor.ID
		}
		if !actor.CanAccess(customerID) {
			return nil, 0, bookingserrors.UnauthorisedAppointmentAccess
		}
	}

	filter := repository.ListFilter{CustomerID: customerID}
	limit = config.NormalizePaginationLimit(limit)
	offset = config.NormalizeOffset(offset)

	var count int64
	var bookings []*model.Booking
	var errCount, errFind error
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		count, errCount = s.repo.Count(ctx, filter)
		if errCount != nil {
			s.cfg.Log.Error("Failed to count bookings", "customer_id", customerID, "error", errCount)
			errCount = apperrors.Internal("Failed to count bookings", errCount)
		}
	}()

	go func() {
		defer wg.Done()
		bookings, errFind = s.repo.List(ctx, filter, limit, offset)
		if errFind != nil {
			s.cfg.Log.Error("Failed to list bookings", "customer_id", customerID, "error", errFind)
			errFind = apperrors.Internal("Failed to retrieve bookings", errFind)
		}
	}()

	wg.Wait()
	if errCount != nil {
		return nil, 0, errCount
	}
	if errFind != nil {
		return nil, 0, errFind
	}

	return bookings, count, nil
}

func (s *bookingService) CancelBooking(ctx context.Context, id string, input *model.CancelBookingInput, actor model.Actor) (cancelled *model.Booking, err error) {
	ctx, span := s.tracer.Start(ctx, "bookings.CancelBooking",
		trace.WithAttributes(attribute.String("booking_id", id)))
	defer func() { obs.End(span, err) }()

	input.Reason = sanitizer.CleanText(input.Reason)
	if err := s.validator.ValidateCancel(input); err != nil {
		return nil, ValidationError("Invalid cancellation input", err)
	}

	booking, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if booking.Status == model.BookingCancelled {
		return nil, bookingserrors.NewBookingAlreadyCancelled(id)
	}
	if !actor.CanAccess(booking.CustomerID) {
		s.cfg.Log.Warn("Cancellation refused", "booking_id", id, "actor_id", actor.ID)
		return nil, bookingserrors.NewUnauthorisedAccess(id)
	}
	if !booking.Status.IsActive() {
		return nil, bookingserrors.NewBookingStateConflict(id, booking.Status, "cancel")
	}

	// The status update must commit before the slot is released: a failed
	// update leaves the slot reserved.
	err = s.tx.ExecuteTransaction(ctx, func(ctx context.Context) error {
		updated, err := s.repo.TransitionStatus(ctx, id, model.StatusChange{
			From:               model.ActiveBookingStatuses,
			To:                 model.BookingCancelled,
			CancellationReason: input.Reason,
			CancelledBy:        actor.ID,
			At:                 time.Now(),
		})
		if err != nil {
			return TransitionError(id, "cancel", err)
		}

		if _, err := s.slots.Release(ctx, updated.SlotID); err != nil {
			return apperrors.Internal("Failed to release slot", err)
		}
		if _, err := s.reminders.CancelPendingForBooking(ctx, id); err != nil {
			return apperrors.Internal("Failed to cancel pending reminders", err)
		}

		cancelled = updated
		return nil
	})
	if err != nil {
		s.logFailure("Failed to cancel booking", err, "booking_id", id)
		return nil, err
	}

	s.cfg.Log.Info("Booking cancelled successfully",
		"booking_id", id,
		"slot_id", cancelled.SlotID,
		"cancelled_by", actor.ID,
	)

	s.publish(ctx, events.TopicBookingCancelled, id, events.NewBookingEvent(cancelled, booking.Status, actor))
	return cancelled, nil
}

func (s *bookingService) ConfirmBooking(ctx context.Context, id string, actor model.Actor) (*model.Booking, error) {
	return s.changeStatus(ctx, id, actor, "confirm", model.BookingPending, model.BookingConfirmed)
}

func (s *bookingService) CompleteBooking(ctx context.Context, id string, actor model.Actor) (*model.Booking, error) {
	return s.changeStatus(ctx, id, actor, "complete", model.BookingConfirmed, model.BookingCompleted)
}

func (s *bookingService) MarkNoShow(ctx context.Context, id string, actor model.Actor) (*model.Booking, error) {
	return s.changeStatus(ctx, id, actor, "no-show", model.BookingConfirmed, model.BookingNoShow)
}

// changeStatus runs a staff-only single-step transition from -> to.
func (s *bookingService) changeStatus(ctx context.Context, id string, actor model.Actor, op string, from, to model.BookingStatus) (*model.Booking, error) {
	if !actor.IsPrivileged() {
		return nil, bookingserrors.NewUnauthorisedAccess(id)
	}

	booking, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if booking.Status != from {
		return nil, statusError(id, booking.Status, op)
	}

	updated, err := s.repo.TransitionStatus(ctx, id, model.StatusChange{
		From: []model.BookingStatus{from},
		To:   to,
		At:   time.Now(),
	})
	if err != nil {
		err = TransitionError(id, op, err)
		s.logFailure("Failed to change booking status", err, "booking_id", id, "to", to)
		return nil, err
	}

	s.cfg.Log.Info("Booking status changed", "booking_id", id, "from", from, "to", to, "actor_id", actor.ID)
	s.publish(ctx, events.TopicBookingStatusChanged, id, events.NewBookingEvent(updated, from, actor))
	return updated, nil
}

func (s *bookingService) find(ctx context.Context, id string) (*model.Booking, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperrors.InvalidInput("Booking ID cannot be empty")
	}

	booking, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, bookingserrors.ErrNotFound) {
			return nil, bookingserrors.NewBookingNotFound(id)
		}
		return nil, apperrors.Internal("Failed to retrieve booking", err)
	}
	return booking, nil
}

// findSlot treats a missing slot as unavailable.
func (s *bookingService) findSlot(ctx context.Context, id string) (*model.Slot, error) {
	slot, err := s.slots.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, slotserrors.ErrNotFound) {
			return nil, slotserrors.NewSlotUnavailable(id)
		}
		return nil, apperrors.Internal("Failed to retrieve slot", err)
	}
	return slot, nil
}

func (s *bookingService) newBooking(input *model.CreateAppointmentInput, slot *model.Slot) *model.Booking {
	showroomID := input.ShowroomID
	if showroomID == nil {
		showroomID = slot.ShowroomID
	}

	return &model.Booking{
		ID:                uuid.NewString(),
		CustomerID:        input.CustomerID,
		CustomerName:      input.CustomerName,
		CustomerEmail:     input.CustomerEmail,
		CustomerPhone:     input.CustomerPhone,
		CustomerPushToken: input.CustomerPushToken,
		Postcode:          input.Postcode,
		AppointmentType:   input.AppointmentType,
		IsKitchen:         input.IsKitchen,
		IsBedroom:         input.IsBedroom,
		SlotID:            slot.ID,
		ConsultantID:      input.ConsultantID,
		ShowroomID:        showroomID,
		Status:            s.policy.InitialStatus(input.AppointmentType),
		Notes:             input.Notes,
	}
}

func (s *bookingService) sanitize(input *model.CreateAppointmentInput) {
	input.CustomerID = strings.TrimSpace(input.CustomerID)
	input.CustomerName = sanitizer.NormalizeName(input.CustomerName)
	input.CustomerEmail = sanitizer.NormalizeEmail(input.CustomerEmail)
	if phone := sanitizer.NormalizePhone(input.CustomerPhone, s.cfg.PhoneRegions); phone != "" {
		input.CustomerPhone = phone
	}
	input.Postcode = sanitizer.NormalizePostcode(input.Postcode)
	input.SlotID = strings.TrimSpace(input.SlotID)
	input.Date = strings.TrimSpace(input.Date)
	input.Notes = sanitizer.CleanText(input.Notes)
}

// publish emits a post-commit event. A publish failure is logged and never
// turns the committed operation into a failure.
func (s *bookingService) publish(ctx context.Context, topic, key string, payload any) {
	if err := s.events.Publish(ctx, topic, key, payload); err != nil {
		s.cfg.Log.Error("Failed to publish event", "topic", topic, "booking_id", key, "error", err)
	}
}

func (s *bookingService) logFailure(msg string, err error, args ...any) {
	args = append(args, "error", err)
	if apperrors.AsAppError(err).Operational() {
		s.cfg.Log.Warn(msg, args...)
		return
	}
	s.cfg.Log.Error(msg, args...)
}

// ValidationError converts validator output into a VALIDATION_ERROR.
func ValidationError(msg string, err error) error {
	var errs validator.ValidationErrors
	if errors.As(err, &errs) {
		return apperrors.Validation(apperrors.CodeValidation, msg, errs.Details())
	}
	return apperrors.Validation(apperrors.CodeValidation, msg, map[string]any{"error": err.Error()})
}

func ReserveError(slotID string, err error) error {
	if errors.Is(err, slotserrors.ErrSlotUnavailable) {
		return slotserrors.NewSlotUnavailable(slotID)
	}
	return apperrors.Internal("Failed to reserve slot", err)
}

// TransitionError maps a guarded transition failure to the catalogue.
func TransitionError(id, op string, err error) error {
	var conflict *bookingserrors.StatusConflictError
	if errors.As(err, &conflict) {
		return statusError(id, conflict.Current, op)
	}
	if errors.Is(err, bookingserrors.ErrNotFound) {
		return bookingserrors.NewBookingNotFound(id)
	}
	return apperrors.Internal("Failed to update booking status", err)
}

func statusError(id string, current model.BookingStatus, op string) error {
	switch current {
	case model.BookingCancelled:
		return bookingserrors.NewBookingAlreadyCancelled(id)
	case model.BookingConfirmed:
		if op == "confirm" {
			return bookingserrors.NewBookingAlreadyConfirmed(id)
		}
	}
	return bookingserrors.NewBookingStateConflict(id, current, op)
}
