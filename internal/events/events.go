// Package events defines the booking domain events and the bus they travel
// on. Publishing happens after the owning transaction commits; subscribers
// run notification and calendar work in their own failure domain.
package events

import (
	"context"
	"time"

	"consultbook/pkg/model"

	"github.com/google/uuid"
)

const (
	TopicBookingCreated       = "booking.created"
	TopicBookingCancelled     = "booking.cancelled"
	TopicBookingRescheduled   = "booking.rescheduled"
	TopicBookingStatusChanged = "booking.status_changed"
	TopicReminderSent         = "reminder.sent"
)

// BookingTopics are consumed by the calendar syncer.
var BookingTopics = []string{
	TopicBookingCreated,
	TopicBookingCancelled,
	TopicBookingRescheduled,
	TopicBookingStatusChanged,
}

// Publisher is the outbound event port. Key orders events of one aggregate.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, payload any) error
}

// Handler receives the JSON payload of one event.
type Handler func(ctx context.Context, topic string, payload []byte) error

type BookingEvent struct {
	EventID            string                `json:"event_id"`
	BookingID          string                `json:"booking_id"`
	CustomerID         string                `json:"customer_id"`
	SlotID             string                `json:"slot_id"`
	ConsultantID       *string               `json:"consultant_id,omitempty"`
	AppointmentType    model.AppointmentType `json:"appointment_type"`
	Status             model.BookingStatus   `json:"status"`
	PreviousStatus     model.BookingStatus   `json:"previous_status,omitempty"`
	CancellationReason string                `json:"cancellation_reason,omitempty"`
	ActorID            string                `json:"actor_id,omitempty"`
	OccurredAt         time.Time             `json:"occurred_at"`
}

func NewBookingEvent(booking *model.Booking, previous model.BookingStatus, actor model.Actor) BookingEvent {
	return BookingEvent{
		EventID:            uuid.NewString(),
		BookingID:          booking.ID,
		CustomerID:         booking.CustomerID,
		SlotID:             booking.SlotID,
		ConsultantID:       booking.ConsultantID,
		AppointmentType:    booking.AppointmentType,
		Status:             booking.Status,
		PreviousStatus:     previous,
		CancellationReason: booking.CancellationReason,
		ActorID:            actor.ID,
		OccurredAt:         time.Now().UTC(),
	}
}

type BookingRescheduledEvent struct {
	EventID           string              `json:"event_id"`
	OriginalBookingID string              `json:"original_booking_id"`
	NewBookingID      string              `json:"new_booking_id"`
	OldSlotID         string              `json:"old_slot_id"`
	NewSlotID         string              `json:"new_slot_id"`
	CustomerID        string              `json:"customer_id"`
	Status            model.BookingStatus `json:"status"`
	ActorID           string              `json:"actor_id,omitempty"`
	OccurredAt        time.Time           `json:"occurred_at"`
}

func NewBookingRescheduledEvent(original, replacement *model.Booking, actor model.Actor) BookingRescheduledEvent {
	return BookingRescheduledEvent{
		EventID:           uuid.NewString(),
		OriginalBookingID: original.ID,
		NewBookingID:      replacement.ID,
		OldSlotID:         original.SlotID,
		NewSlotID:         replacement.SlotID,
		CustomerID:        replacement.CustomerID,
		Status:            replacement.Status,
		ActorID:           actor.ID,
		OccurredAt:        time.Now().UTC(),
	}
}

type ReminderSentEvent struct {
	EventID      string             `json:"event_id"`
	ReminderID   string             `json:"reminder_id"`
	BookingID    string             `json:"booking_id"`
	CustomerID   string             `json:"customer_id"`
	ReminderType model.ReminderType `json:"reminder_type"`
	Channel      model.Channel      `json:"channel"`
	SentAt       time.Time          `json:"sent_at"`
}

func NewReminderSentEvent(reminder *model.Reminder) ReminderSentEvent {
	sentAt := time.Now().UTC()
	if reminder.SentAt != nil {
		sentAt = *reminder.SentAt
	}
	return ReminderSentEvent{
		EventID:      uuid.NewString(),
		ReminderID:   reminder.ID,
		BookingID:    reminder.BookingID,
		CustomerID:   reminder.CustomerID,
		ReminderType: reminder.ReminderType,
		Channel:      reminder.Channel,
		SentAt:       sentAt,
	}
}
