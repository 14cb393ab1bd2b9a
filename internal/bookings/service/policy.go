package service

import "consultbook/pkg/model"

// InitialStatusPolicy decides the status a new booking starts in. Types that
// need manual confirmation start PENDING; everything else starts CONFIRMED.
type InitialStatusPolicy struct {
	confirmationRequired map[model.AppointmentType]bool
}

func NewInitialStatusPolicy(confirmationRequired []model.AppointmentType) InitialStatusPolicy {
	p := InitialStatusPolicy{confirmationRequired: make(map[model.AppointmentType]bool, len(confirmationRequired))}
	for _, t := range confirmationRequired {
		p.confirmationRequired[t] = true
	}
	return p
}

func (p InitialStatusPolicy) InitialStatus(t model.AppointmentType) model.BookingStatus {
	if p.confirmationRequired[t] {
		return model.BookingPending
	}
	return model.BookingConfirmed
}
