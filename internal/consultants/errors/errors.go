package errors

import (
	"errors"

	apperrors "consultbook/pkg/errors"
)

const (
	CodeConsultantNotFound               = "CONSULTANT_NOT_FOUND"
	CodeConsultantNotActive              = "CONSULTANT_NOT_ACTIVE"
	CodeConsultantSpecialisationMismatch = "CONSULTANT_SPECIALISATION_MISMATCH"
)

var ErrNotFound = errors.New("consultant not found")

var (
	ConsultantNotFound               = apperrors.NotFound(CodeConsultantNotFound, "consultant not found")
	ConsultantNotActive              = apperrors.Validation(CodeConsultantNotActive, "consultant is not active", nil)
	ConsultantSpecialisationMismatch = apperrors.Validation(CodeConsultantSpecialisationMismatch, "consultant does not cover the requested appointment", nil)
)

func NewConsultantNotFound(id string) *apperrors.AppError {
	return apperrors.NotFoundWithID(CodeConsultantNotFound, "consultant", id)
}

func NewConsultantNotActive(id string) *apperrors.AppError {
	return ConsultantNotActive.WithDetails(map[string]any{"consultant_id": id})
}

func NewSpecialisationMismatch(id, specialisation string, isKitchen, isBedroom bool) *apperrors.AppError {
	return ConsultantSpecialisationMismatch.WithDetails(map[string]any{
		"consultant_id":  id,
		"specialisation": specialisation,
		"is_kitchen":     isKitchen,
		"is_bedroom":     isBedroom,
	})
}
