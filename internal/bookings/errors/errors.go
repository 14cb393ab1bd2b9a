package errors

import (
	"errors"
	"fmt"

	apperrors "consultbook/pkg/errors"
	"consultbook/pkg/model"
)

const (
	CodeBookingNotFound               = "BOOKING_NOT_FOUND"
	CodeBookingAlreadyCancelled       = "BOOKING_ALREADY_CANCELLED"
	CodeBookingAlreadyConfirmed       = "BOOKING_ALREADY_CONFIRMED"
	CodeBookingStateConflict          = "BOOKING_STATE_CONFLICT"
	CodePastDateBooking               = "PAST_DATE_BOOKING"
	CodeBookingWindowExceeded         = "BOOKING_WINDOW_EXCEEDED"
	CodeSameSlotReschedule            = "SAME_SLOT_RESCHEDULE"
	CodeUnauthorisedAppointmentAccess = "UNAUTHORISED_APPOINTMENT_ACCESS"
)

var (
	ErrNotFound = errors.New("booking not found")

	// ErrStatusConflict is returned when a guarded transition finds the
	// booking in a status outside the expected set.
	ErrStatusConflict = errors.New("booking status precondition failed")

	// ErrSlotTaken is returned on insert when another active booking already
	// references the slot.
	ErrSlotTaken = errors.New("slot already referenced by an active booking")
)

// StatusConflictError carries the status found by a failed guarded
// transition. It matches ErrStatusConflict.
type StatusConflictError struct {
	BookingID string
	Current   model.BookingStatus
}

func (e *StatusConflictError) Error() string {
	return fmt.Sprintf("booking %s is %s: %v", e.BookingID, e.Current, ErrStatusConflict)
}

func (e *StatusConflictError) Is(target error) bool {
	return target == ErrStatusConflict
}

var (
	BookingNotFound               = apperrors.NotFound(CodeBookingNotFound, "booking not found")
	BookingAlreadyCancelled       = apperrors.Conflict(CodeBookingAlreadyCancelled, "booking is already cancelled")
	BookingAlreadyConfirmed       = apperrors.Conflict(CodeBookingAlreadyConfirmed, "booking is already confirmed")
	BookingStateConflict          = apperrors.Conflict(CodeBookingStateConflict, "booking status does not allow this operation")
	PastDateBooking               = apperrors.Validation(CodePastDateBooking, "appointment date is in the past", nil)
	BookingWindowExceeded         = apperrors.Validation(CodeBookingWindowExceeded, "appointment date is beyond the booking window", nil)
	SameSlotReschedule            = apperrors.Validation(CodeSameSlotReschedule, "booking already uses this slot", nil)
	UnauthorisedAppointmentAccess = apperrors.Forbidden(CodeUnauthorisedAppointmentAccess, "not allowed to access this appointment")
)

func NewBookingNotFound(id string) *apperrors.AppError {
	return apperrors.NotFoundWithID(CodeBookingNotFound, "booking", id)
}

func NewBookingAlreadyCancelled(id string) *apperrors.AppError {
	return BookingAlreadyCancelled.WithDetails(map[string]any{"booking_id": id})
}

func NewBookingAlreadyConfirmed(id string) *apperrors.AppError {
	return BookingAlreadyConfirmed.WithDetails(map[string]any{"booking_id": id})
}

func NewBookingStateConflict(id string, current model.BookingStatus, op string) *apperrors.AppError {
	return BookingStateConflict.WithDetails(map[string]any{
		"booking_id": id,
		"status":     current,
		"operation":  op,
	})
}

func NewPastDateBooking(date string) *apperrors.AppError {
	return PastDateBooking.WithDetails(map[string]any{"date": date})
}

func NewBookingWindowExceeded(date string, windowDays int) *apperrors.AppError {
	return BookingWindowExceeded.WithDetails(map[string]any{
		"date":        date,
		"window_days": windowDays,
	})
}

func NewSameSlotReschedule(slotID string) *apperrors.AppError {
	return SameSlotReschedule.WithDetails(map[string]any{"slot_id": slotID})
}

func NewUnauthorisedAccess(bookingID string) *apperrors.AppError {
	return UnauthorisedAppointmentAccess.WithDetails(map[string]any{"booking_id": bookingID})
}
