package notifications

import (
	"fmt"
	"strings"

	"consultbook/pkg/model"
)

// Template data keys.
const (
	KeyTemplateID      = "template_id"
	KeyBookingID       = "booking_id"
	KeyCustomerName    = "customer_name"
	KeyAppointmentType = "appointment_type"
	KeyDate            = "date"
	KeyStartTime       = "start_time"
	KeyTitle           = "title"
	KeyBody            = "body"
)

// TemplateID names the gateway template for a reminder type.
func TemplateID(t model.ReminderType) string {
	return strings.ReplaceAll(strings.ToLower(string(t)), "_", "-")
}

// TemplateData renders the variables shared by every channel.
func TemplateData(t model.ReminderType, booking *model.Booking, slot *model.Slot) map[string]string {
	kind := strings.ToLower(strings.ReplaceAll(string(booking.AppointmentType), "_", " "))

	var title, body string
	switch t {
	case model.ReminderAppointment24h:
		title = "Your appointment is tomorrow"
		body = fmt.Sprintf("Your %s appointment is on %s at %s.", kind, slot.Date, slot.StartTime)
	case model.ReminderAppointment1h:
		title = "Your appointment starts soon"
		body = fmt.Sprintf("Your %s appointment starts at %s.", kind, slot.StartTime)
	case model.ReminderAppointmentConfirmation:
		title = "Appointment booked"
		body = fmt.Sprintf("Your %s appointment is booked for %s at %s.", kind, slot.Date, slot.StartTime)
	case model.ReminderAppointmentCancellation:
		title = "Appointment cancelled"
		body = fmt.Sprintf("Your %s appointment on %s at %s has been cancelled.", kind, slot.Date, slot.StartTime)
	case model.ReminderAppointmentRescheduled:
		title = "Appointment moved"
		body = fmt.Sprintf("Your %s appointment has moved to %s at %s.", kind, slot.Date, slot.StartTime)
	}

	return map[string]string{
		KeyBookingID:       booking.ID,
		KeyCustomerName:    booking.CustomerName,
		KeyAppointmentType: string(booking.AppointmentType),
		KeyDate:            slot.Date,
		KeyStartTime:       slot.StartTime,
		KeyTitle:           title,
		KeyBody:            body,
	}
}

// Recipient returns the booking's address for channel, or "" when the
// customer gave none.
func Recipient(channel model.Channel, booking *model.Booking) string {
	switch channel {
	case model.ChannelEmail:
		return booking.CustomerEmail
	case model.ChannelSMS:
		return booking.CustomerPhone
	case model.ChannelPush:
		return booking.CustomerPushToken
	}
	return ""
}
