package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"consultbook/pkg/model"

	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// GoogleProvider writes one Google Calendar event per booking. The event id
// is derived from the booking id, so repeated creates and deletes are safe.
type GoogleProvider struct {
	events     *gcal.EventsService
	calendarID string
	loc        *time.Location
}

func NewGoogleProvider(ctx context.Context, calendarID string, loc *time.Location, opts ...option.ClientOption) (*GoogleProvider, error) {
	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	return &GoogleProvider{
		events:     svc.Events,
		calendarID: calendarID,
		loc:        loc,
	}, nil
}

// EventID maps a booking id onto the base32hex alphabet calendar ids allow.
func EventID(bookingID string) string {
	return strings.ToLower(strings.ReplaceAll(bookingID, "-", ""))
}

func (p *GoogleProvider) CreateEvent(ctx context.Context, booking *model.Booking, slot *model.Slot) (string, error) {
	event, err := p.event(booking, slot)
	if err != nil {
		return "", err
	}

	created, err := p.events.Insert(p.calendarID, event).Context(ctx).Do()
	if isStatus(err, http.StatusConflict) {
		return p.update(ctx, event)
	}
	if err != nil {
		return "", fmt.Errorf("failed to insert calendar event: %w", err)
	}
	return created.Id, nil
}

func (p *GoogleProvider) UpdateEvent(ctx context.Context, booking *model.Booking, slot *model.Slot) (string, error) {
	event, err := p.event(booking, slot)
	if err != nil {
		return "", err
	}

	id, err := p.update(ctx, event)
	if isStatus(err, http.StatusNotFound) {
		created, err := p.events.Insert(p.calendarID, event).Context(ctx).Do()
		if err != nil {
			return "", fmt.Errorf("failed to insert calendar event: %w", err)
		}
		return created.Id, nil
	}
	return id, err
}

// DeleteEvent treats an event that is already gone as deleted.
func (p *GoogleProvider) DeleteEvent(ctx context.Context, booking *model.Booking) (string, error) {
	id := EventID(booking.ID)
	err := p.events.Delete(p.calendarID, id).Context(ctx).Do()
	if err != nil && !isStatus(err, http.StatusNotFound) && !isStatus(err, http.StatusGone) {
		return "", fmt.Errorf("failed to delete calendar event: %w", err)
	}
	return id, nil
}

func (p *GoogleProvider) update(ctx context.Context, event *gcal.Event) (string, error) {
	updated, err := p.events.Update(p.calendarID, event.Id, event).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to update calendar event: %w", err)
	}
	return updated.Id, nil
}

func (p *GoogleProvider) event(booking *model.Booking, slot *model.Slot) (*gcal.Event, error) {
	start, err := slot.StartsAt(p.loc)
	if err != nil {
		return nil, err
	}
	end, err := slot.EndsAt(p.loc)
	if err != nil {
		return nil, err
	}

	event := &gcal.Event{
		Id:          EventID(booking.ID),
		Summary:     summary(booking),
		Description: description(booking),
		Status:      eventStatus(booking.Status),
		Start:       &gcal.EventDateTime{DateTime: start.Format(time.RFC3339), TimeZone: p.loc.String()},
		End:         &gcal.EventDateTime{DateTime: end.Format(time.RFC3339), TimeZone: p.loc.String()},
	}
	if booking.AppointmentType == model.AppointmentHomeMeasurement {
		event.Location = booking.Postcode
	}
	return event, nil
}

func summary(booking *model.Booking) string {
	kind := strings.ToLower(strings.ReplaceAll(string(booking.AppointmentType), "_", " "))
	return fmt.Sprintf("%s: %s", kind, booking.CustomerName)
}

func description(booking *model.Booking) string {
	var rooms []string
	if booking.IsKitchen {
		rooms = append(rooms, "kitchen")
	}
	if booking.IsBedroom {
		rooms = append(rooms, "bedroom")
	}

	lines := []string{
		"Booking " + booking.ID,
		"Status " + string(booking.Status),
		"Rooms " + strings.Join(rooms, ", "),
	}
	if booking.Notes != "" {
		lines = append(lines, booking.Notes)
	}
	return strings.Join(lines, "\n")
}

func eventStatus(status model.BookingStatus) string {
	switch status {
	case model.BookingPending:
		return "tentative"
	case model.BookingCancelled, model.BookingRescheduled:
		return "cancelled"
	default:
		return "confirmed"
	}
}

func isStatus(err error, code int) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == code
}
