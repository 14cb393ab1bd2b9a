package validator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"consultbook/pkg/logger"
	"consultbook/pkg/model"

	"github.com/go-playground/validator/v10"
)

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	parts := make([]string, len(v))
	for i, err := range v {
		parts[i] = err.Error()
	}
	return fmt.Sprintf("validation failed: %d error(s): [%s]", len(v), strings.Join(parts, "; "))
}

// Details renders the errors as a field -> message map for error responses.
func (v ValidationErrors) Details() map[string]any {
	details := make(map[string]any, len(v))
	for _, err := range v {
		details[err.Field] = err.Message
	}
	return details
}

type BookingValidator struct {
	validate *validator.Validate
	logger   *logger.Logger
}

func NewBookingValidator(log *logger.Logger) *BookingValidator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterStructValidation(validateAppointmentSubject, model.CreateAppointmentInput{})

	log.Info("Booking validator initialized successfully")

	return &BookingValidator{
		validate: v,
		logger:   log,
	}
}

// validateAppointmentSubject requires the appointment to cover a kitchen, a
// bedroom or both.
func validateAppointmentSubject(sl validator.StructLevel) {
	input := sl.Current().Interface().(model.CreateAppointmentInput)
	if !input.IsKitchen && !input.IsBedroom {
		sl.ReportError(input.IsKitchen, "is_kitchen", "IsKitchen", "kitchen_or_bedroom", "")
	}
}

func (v *BookingValidator) ValidateCreate(input *model.CreateAppointmentInput) error {
	return v.check(input)
}

func (v *BookingValidator) ValidateCancel(input *model.CancelBookingInput) error {
	return v.check(input)
}

func (v *BookingValidator) ValidateReschedule(input *model.RescheduleBookingInput) error {
	return v.check(input)
}

func (v *BookingValidator) check(input any) error {
	err := v.validate.Struct(input)
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	out := make(ValidationErrors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, ValidationError{Field: fe.Field(), Message: messageFor(fe)})
	}
	return out
}

// tagMessages holds the client facing text per validation tag. %[1]s is the
// field and %[2]s the tag parameter.
var tagMessages = map[string]string{
	"required":           "%[1]s is required",
	"required_if":        "%[1]s is required for this appointment type",
	"min":                "%[1]s must be at least %[2]s",
	"max":                "%[1]s must be at most %[2]s",
	"email":              "%[1]s must be a valid email address",
	"e164":               "%[1]s must be in E.164 format (e.g., +447700900123)",
	"oneof":              "%[1]s must be one of: %[2]s",
	"datetime":           "%[1]s must be a date formatted as YYYY-MM-DD",
	"kitchen_or_bedroom": "at least one of is_kitchen or is_bedroom must be true",
}

func messageFor(fe validator.FieldError) string {
	format, ok := tagMessages[fe.Tag()]
	if !ok {
		return fe.Error()
	}
	if !strings.Contains(format, "%") {
		return format
	}
	return fmt.Sprintf(format, fe.Field(), fe.Param())
}
