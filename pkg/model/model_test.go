package model

import (
	"testing"
	"time"
)

func TestSpecialisation_Covers(t *testing.T) {
	tests := []struct {
		name           string
		specialisation Specialisation
		isKitchen      bool
		isBedroom      bool
		want           bool
	}{
		{"both covers kitchen and bedroom", SpecialisationBoth, true, true, true},
		{"kitchen covers kitchen", SpecialisationKitchen, true, false, true},
		{"kitchen rejects bedroom", SpecialisationKitchen, false, true, false},
		{"kitchen rejects combined", SpecialisationKitchen, true, true, false},
		{"bedroom covers bedroom", SpecialisationBedroom, false, true, true},
		{"bedroom rejects kitchen", SpecialisationBedroom, true, false, false},
		{"unknown covers nothing", Specialisation("GARDEN"), true, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.specialisation.Covers(tt.isKitchen, tt.isBedroom); got != tt.want {
				t.Errorf("Covers(%v, %v) = %v, want %v", tt.isKitchen, tt.isBedroom, got, tt.want)
			}
		})
	}
}

func TestSlot_StartsAt(t *testing.T) {
	loc, err := time.LoadLocation("Europe/London")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	s := &Slot{Date: "2026-07-01", StartTime: "09:30", EndTime: "10:30"}

	start, err := s.StartsAt(loc)
	if err != nil {
		t.Fatalf("StartsAt() error = %v", err)
	}
	if start.UTC().Hour() != 8 || start.Minute() != 30 {
		t.Errorf("StartsAt() = %v, want 08:30 UTC (BST)", start.UTC())
	}

	bad := &Slot{Date: "2026-07-01", StartTime: "9am"}
	if _, err := bad.StartsAt(loc); err == nil {
		t.Errorf("expected error for malformed start time")
	}
}

func TestReminderType_Offset(t *testing.T) {
	if d, ok := ReminderAppointment24h.Offset(); !ok || d != 24*time.Hour {
		t.Errorf("24h offset = %v, %v", d, ok)
	}
	if d, ok := ReminderAppointment1h.Offset(); !ok || d != time.Hour {
		t.Errorf("1h offset = %v, %v", d, ok)
	}
	for _, notice := range []ReminderType{ReminderAppointmentConfirmation, ReminderAppointmentCancellation, ReminderAppointmentRescheduled} {
		if _, ok := notice.Offset(); ok {
			t.Errorf("%s should have no offset", notice)
		}
	}
}

func TestReminderType_NeedsActiveBooking(t *testing.T) {
	tests := []struct {
		reminderType ReminderType
		want         bool
	}{
		{ReminderAppointment24h, true},
		{ReminderAppointment1h, true},
		{ReminderAppointmentConfirmation, true},
		{ReminderAppointmentCancellation, false},
		{ReminderAppointmentRescheduled, false},
	}
	for _, tt := range tests {
		if got := tt.reminderType.NeedsActiveBooking(); got != tt.want {
			t.Errorf("%s.NeedsActiveBooking() = %v, want %v", tt.reminderType, got, tt.want)
		}
	}
}

func TestActor_CanAccess(t *testing.T) {
	if !(Actor{ID: "c-1", Role: RoleCustomer}).CanAccess("c-1") {
		t.Errorf("customer should access own booking")
	}
	if (Actor{ID: "c-2", Role: RoleCustomer}).CanAccess("c-1") {
		t.Errorf("customer must not access another customer's booking")
	}
	if (Actor{Role: RoleCustomer}).CanAccess("") {
		t.Errorf("anonymous customer must not match empty owner")
	}
	if !(Actor{ID: "s-1", Role: RoleStaff}).CanAccess("c-1") {
		t.Errorf("staff should access any booking")
	}
}
