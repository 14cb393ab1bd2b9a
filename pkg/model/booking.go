package model

import (
	"time"
)

type AppointmentType string

const (
	AppointmentHomeMeasurement AppointmentType = "HOME_MEASUREMENT"
	AppointmentOnline          AppointmentType = "ONLINE"
	AppointmentShowroom        AppointmentType = "SHOWROOM"
)

type BookingStatus string

const (
	BookingPending     BookingStatus = "PENDING"
	BookingConfirmed   BookingStatus = "CONFIRMED"
	BookingCancelled   BookingStatus = "CANCELLED"
	BookingCompleted   BookingStatus = "COMPLETED"
	BookingNoShow      BookingStatus = "NO_SHOW"
	BookingRescheduled BookingStatus = "RESCHEDULED"
)

// ActiveBookingStatuses are the statuses that hold a slot.
var ActiveBookingStatuses = []BookingStatus{BookingPending, BookingConfirmed}

func (s BookingStatus) IsActive() bool {
	return s == BookingPending || s == BookingConfirmed
}

type Booking struct {
	ID                 string          `json:"id" bson:"_id" gorm:"primaryKey;type:varchar(64)"`
	CustomerID         string          `json:"customer_id" bson:"customer_id" gorm:"type:varchar(64);not null;index"`
	CustomerName       string          `json:"customer_name" bson:"customer_name" gorm:"type:varchar(120);not null"`
	CustomerEmail      string          `json:"customer_email" bson:"customer_email" gorm:"type:varchar(254);not null"`
	CustomerPhone      string          `json:"customer_phone,omitempty" bson:"customer_phone,omitempty" gorm:"type:varchar(20)"`
	CustomerPushToken  string          `json:"-" bson:"customer_push_token,omitempty" gorm:"type:text"`
	Postcode           string          `json:"postcode,omitempty" bson:"postcode,omitempty" gorm:"type:varchar(10)"`
	AppointmentType    AppointmentType `json:"appointment_type" bson:"appointment_type" gorm:"type:varchar(24);not null"`
	IsKitchen          bool            `json:"is_kitchen" bson:"is_kitchen"`
	IsBedroom          bool            `json:"is_bedroom" bson:"is_bedroom"`
	SlotID             string          `json:"slot_id" bson:"slot_id" gorm:"type:varchar(64);not null;index"`
	ConsultantID       *string         `json:"consultant_id,omitempty" bson:"consultant_id,omitempty" gorm:"type:varchar(64)"`
	ShowroomID         *string         `json:"showroom_id,omitempty" bson:"showroom_id,omitempty" gorm:"type:varchar(64)"`
	Status             BookingStatus   `json:"status" bson:"status" gorm:"type:varchar(16);not null;index"`
	CancellationReason string          `json:"cancellation_reason,omitempty" bson:"cancellation_reason,omitempty" gorm:"type:text"`
	CancelledBy        string          `json:"cancelled_by,omitempty" bson:"cancelled_by,omitempty" gorm:"type:varchar(64)"`
	CancelledAt        *time.Time      `json:"cancelled_at,omitempty" bson:"cancelled_at,omitempty"`
	RescheduledFromID  *string         `json:"rescheduled_from_id,omitempty" bson:"rescheduled_from_id,omitempty" gorm:"type:varchar(64)"`
	Notes              string          `json:"notes,omitempty" bson:"notes,omitempty" gorm:"type:text"`
	CreatedAt          time.Time       `json:"created_at" bson:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at" bson:"updated_at"`
}

func (Booking) TableName() string { return "bookings" }

// StatusChange describes a guarded booking transition: the update applies only
// while the stored status is one of From.
type StatusChange struct {
	From               []BookingStatus
	To                 BookingStatus
	CancellationReason string
	CancelledBy        string
	At                 time.Time
}

type CreateAppointmentInput struct {
	CustomerID        string          `json:"customer_id" validate:"required,max=64"`
	CustomerName      string          `json:"customer_name" validate:"required,min=2,max=120"`
	CustomerEmail     string          `json:"customer_email" validate:"required,email,max=254"`
	CustomerPhone     string          `json:"customer_phone,omitempty" validate:"omitempty,e164"`
	CustomerPushToken string          `json:"customer_push_token,omitempty" validate:"omitempty,max=4096"`
	Postcode          string          `json:"postcode,omitempty" validate:"required_if=AppointmentType HOME_MEASUREMENT,max=10"`
	AppointmentType   AppointmentType `json:"appointment_type" validate:"required,oneof=HOME_MEASUREMENT ONLINE SHOWROOM"`
	IsKitchen         bool            `json:"is_kitchen"`
	IsBedroom         bool            `json:"is_bedroom"`
	Date              string          `json:"date" validate:"required,datetime=2006-01-02"`
	SlotID            string          `json:"slot_id" validate:"required,max=64"`
	ConsultantID      *string         `json:"consultant_id,omitempty" validate:"omitempty,min=1,max=64"`
	ShowroomID        *string         `json:"showroom_id,omitempty" validate:"omitempty,min=1,max=64"`
	Notes             string          `json:"notes,omitempty" validate:"max=2000"`
}

type CancelBookingInput struct {
	Reason string `json:"reason" validate:"required,min=2,max=500"`
}

type RescheduleBookingInput struct {
	NewSlotID string `json:"new_slot_id" validate:"required,max=64"`
}
