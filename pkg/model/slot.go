package model

import (
	"fmt"
	"time"
)

type SlotStatus string

const (
	SlotAvailable SlotStatus = "AVAILABLE"
	SlotBooked    SlotStatus = "BOOKED"
	SlotBlocked   SlotStatus = "BLOCKED"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// Slot is a bookable consultant time window. Slots are generated by the
// availability process; this service only moves them between AVAILABLE and
// BOOKED through the slot store.
type Slot struct {
	ID           string     `json:"id" bson:"_id" gorm:"primaryKey;type:varchar(64)"`
	ConsultantID string     `json:"consultant_id" bson:"consultant_id" gorm:"type:varchar(64);not null;index"`
	Date         string     `json:"date" bson:"date" gorm:"type:char(10);not null;index"`
	StartTime    string     `json:"start_time" bson:"start_time" gorm:"type:char(5);not null"`
	EndTime      string     `json:"end_time" bson:"end_time" gorm:"type:char(5);not null"`
	Status       SlotStatus `json:"status" bson:"status" gorm:"type:varchar(16);not null;index"`
	BookingID    *string    `json:"booking_id,omitempty" bson:"booking_id" gorm:"type:varchar(64)"`
	ShowroomID   *string    `json:"showroom_id,omitempty" bson:"showroom_id,omitempty" gorm:"type:varchar(64)"`
	CreatedAt    time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" bson:"updated_at"`
}

func (Slot) TableName() string { return "slots" }

// StartsAt resolves the slot's date and start time in loc.
func (s *Slot) StartsAt(loc *time.Location) (time.Time, error) {
	return combine(s.Date, s.StartTime, loc)
}

func (s *Slot) EndsAt(loc *time.Location) (time.Time, error) {
	return combine(s.Date, s.EndTime, loc)
}

func combine(date, clock string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout+" "+TimeLayout, date+" "+clock, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid slot time %q %q: %w", date, clock, err)
	}
	return t, nil
}
