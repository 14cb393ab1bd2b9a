package errors

import (
	"errors"

	apperrors "consultbook/pkg/errors"
)

const (
	CodeSlotNotFound    = "SLOT_NOT_FOUND"
	CodeSlotUnavailable = "SLOT_UNAVAILABLE"
)

var (
	ErrNotFound = errors.New("slot not found")

	// ErrSlotUnavailable is returned by a reserve whose guard did not match: the
	// slot is missing, already booked or blocked.
	ErrSlotUnavailable = errors.New("slot unavailable")

	// ErrNotHeld is returned by a conditional release when the slot is no
	// longer held by the given booking.
	ErrNotHeld = errors.New("slot not held by booking")
)

var (
	SlotNotFound    = apperrors.NotFound(CodeSlotNotFound, "slot not found")
	SlotUnavailable = apperrors.Conflict(CodeSlotUnavailable, "slot is no longer available")
)

func NewSlotNotFound(id string) *apperrors.AppError {
	return apperrors.NotFoundWithID(CodeSlotNotFound, "slot", id)
}

func NewSlotUnavailable(id string) *apperrors.AppError {
	return SlotUnavailable.WithDetails(map[string]any{"slot_id": id})
}
