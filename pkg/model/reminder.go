package model

import "time"

type ReminderType string

const (
	ReminderAppointment24h          ReminderType = "APPOINTMENT_24H"
	ReminderAppointment1h           ReminderType = "APPOINTMENT_1H"
	ReminderAppointmentConfirmation ReminderType = "APPOINTMENT_CONFIRMATION"
	ReminderAppointmentCancellation ReminderType = "APPOINTMENT_CANCELLATION"
	ReminderAppointmentRescheduled  ReminderType = "APPOINTMENT_RESCHEDULED"
)

// Offset returns how long before the appointment start a timed reminder
// fires. Notices have no offset and are dispatched immediately.
func (t ReminderType) Offset() (time.Duration, bool) {
	switch t {
	case ReminderAppointment24h:
		return 24 * time.Hour, true
	case ReminderAppointment1h:
		return time.Hour, true
	default:
		return 0, false
	}
}

// NeedsActiveBooking is false for the notices that report a booking leaving
// the active states. Everything else is dropped once the booking is
// cancelled, completed or moved.
func (t ReminderType) NeedsActiveBooking() bool {
	return t != ReminderAppointmentCancellation && t != ReminderAppointmentRescheduled
}

type Channel string

const (
	ChannelEmail Channel = "EMAIL"
	ChannelSMS   Channel = "SMS"
	ChannelPush  Channel = "PUSH"
)

type ReminderStatus string

const (
	ReminderPending   ReminderStatus = "PENDING"
	ReminderSent      ReminderStatus = "SENT"
	ReminderDelivered ReminderStatus = "DELIVERED"
	ReminderFailed    ReminderStatus = "FAILED"
	ReminderCancelled ReminderStatus = "CANCELLED"
)

// MaxRetryAttempts bounds how many times a failed reminder may be re-queued.
const MaxRetryAttempts = 3

type Reminder struct {
	ID            string         `json:"id" bson:"_id" gorm:"primaryKey;type:varchar(64)"`
	BookingID     string         `json:"booking_id" bson:"booking_id" gorm:"type:varchar(64);not null;index"`
	CustomerID    string         `json:"customer_id" bson:"customer_id" gorm:"type:varchar(64);not null"`
	ReminderType  ReminderType   `json:"reminder_type" bson:"reminder_type" gorm:"type:varchar(32);not null"`
	Channel       Channel        `json:"channel" bson:"channel" gorm:"type:varchar(8);not null"`
	Status        ReminderStatus `json:"status" bson:"status" gorm:"type:varchar(16);not null;index"`
	TemplateID    string         `json:"template_id" bson:"template_id" gorm:"type:varchar(64);not null"`
	ScheduledAt   time.Time      `json:"scheduled_at" bson:"scheduled_at" gorm:"not null;index"`
	SentAt        *time.Time     `json:"sent_at,omitempty" bson:"sent_at,omitempty"`
	DeliveredAt   *time.Time     `json:"delivered_at,omitempty" bson:"delivered_at,omitempty"`
	FailedAt      *time.Time     `json:"failed_at,omitempty" bson:"failed_at,omitempty"`
	FailureReason string         `json:"failure_reason,omitempty" bson:"failure_reason,omitempty" gorm:"type:text"`
	RetryCount    int            `json:"retry_count" bson:"retry_count" gorm:"not null;default:0"`
	CreatedAt     time.Time      `json:"created_at" bson:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at" bson:"updated_at"`
}

func (Reminder) TableName() string { return "reminders" }
