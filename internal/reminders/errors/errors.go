package errors

import (
	"errors"
	"fmt"

	apperrors "consultbook/pkg/errors"
	"consultbook/pkg/model"
)

const (
	CodeReminderNotFound        = "REMINDER_NOT_FOUND"
	CodeReminderAlreadySent     = "REMINDER_ALREADY_SENT"
	CodeReminderNotSent         = "REMINDER_NOT_SENT"
	CodeReminderRetryExhausted  = "REMINDER_RETRY_EXHAUSTED"
	CodeReminderBookingInactive = "REMINDER_BOOKING_INACTIVE"
)

var (
	ErrNotFound = errors.New("reminder not found")

	ErrStatusConflict = errors.New("reminder status precondition failed")
)

// StatusConflictError carries the reminder found by a failed guarded
// transition. It matches ErrStatusConflict.
type StatusConflictError struct {
	ReminderID string
	Current    model.ReminderStatus
	RetryCount int
}

func (e *StatusConflictError) Error() string {
	return fmt.Sprintf("reminder %s is %s (retries %d): %v", e.ReminderID, e.Current, e.RetryCount, ErrStatusConflict)
}

func (e *StatusConflictError) Is(target error) bool {
	return target == ErrStatusConflict
}

var (
	ReminderNotFound        = apperrors.NotFound(CodeReminderNotFound, "reminder not found")
	ReminderAlreadySent     = apperrors.Conflict(CodeReminderAlreadySent, "reminder is no longer pending")
	ReminderNotSent         = apperrors.Conflict(CodeReminderNotSent, "reminder has not been sent")
	ReminderRetryExhausted  = apperrors.Conflict(CodeReminderRetryExhausted, "reminder retry attempts exhausted")
	ReminderBookingInactive = apperrors.Conflict(CodeReminderBookingInactive, "reminder booking is no longer active")
)

func NewReminderNotFound(id string) *apperrors.AppError {
	return apperrors.NotFoundWithID(CodeReminderNotFound, "reminder", id)
}

func NewReminderAlreadySent(id string, status model.ReminderStatus) *apperrors.AppError {
	return ReminderAlreadySent.WithDetails(map[string]any{"reminder_id": id, "status": status})
}

func NewReminderNotSent(id string, status model.ReminderStatus) *apperrors.AppError {
	return ReminderNotSent.WithDetails(map[string]any{"reminder_id": id, "status": status})
}

func NewReminderRetryExhausted(id string, retryCount int) *apperrors.AppError {
	return ReminderRetryExhausted.WithDetails(map[string]any{
		"reminder_id": id,
		"retry_count": retryCount,
		"max_retries": model.MaxRetryAttempts,
	})
}

func NewReminderBookingInactive(id, bookingID string, status model.BookingStatus) *apperrors.AppError {
	return ReminderBookingInactive.WithDetails(map[string]any{
		"reminder_id":    id,
		"booking_id":     bookingID,
		"booking_status": status,
	})
}
