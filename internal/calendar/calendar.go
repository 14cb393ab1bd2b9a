// Package calendar mirrors bookings into an external calendar. Sync runs
// after the booking transaction has committed, from booking events, and a
// failure never touches booking state.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"

	bookingsrepo "consultbook/internal/bookings/repository"
	"consultbook/internal/events"
	slotsrepo "consultbook/internal/slots/repository"
	"consultbook/pkg/config"
	apperrors "consultbook/pkg/errors"
	"consultbook/pkg/model"
)

const CodeCalendarSyncFailed = "CALENDAR_SYNC_FAILED"

var CalendarSyncFailed = apperrors.Upstream(CodeCalendarSyncFailed, "Calendar sync failed", nil)

func NewCalendarSyncFailed(bookingID, op string, err error) *apperrors.AppError {
	return CalendarSyncFailed.WithCause(err).WithDetails(map[string]any{
		"booking_id": bookingID,
		"operation":  op,
	})
}

// Port is the calendar provider. Every call returns the provider's event id.
type Port interface {
	CreateEvent(ctx context.Context, booking *model.Booking, slot *model.Slot) (string, error)
	UpdateEvent(ctx context.Context, booking *model.Booking, slot *model.Slot) (string, error)
	DeleteEvent(ctx context.Context, booking *model.Booking) (string, error)
}

// Syncer applies booking events to the calendar with a bounded retry.
type Syncer struct {
	port     Port
	bookings bookingsrepo.BookingRepository
	slots    slotsrepo.SlotStore
	cfg      *config.Config
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewSyncer(port Port, bookings bookingsrepo.BookingRepository, slots slotsrepo.SlotStore, cfg *config.Config) *Syncer {
	return &Syncer{
		port:     port,
		bookings: bookings,
		slots:    slots,
		cfg:      cfg,
		sleep:    sleepCtx,
	}
}

// Subscribe registers the booking handlers. In the API process sub should
// be an events.Detached so provider latency stays off the request path.
func (s *Syncer) Subscribe(sub events.Subscriber) {
	sub.Subscribe(events.TopicBookingCreated, s.onBookingCreated)
	sub.Subscribe(events.TopicBookingCancelled, s.onBookingCancelled)
	sub.Subscribe(events.TopicBookingRescheduled, s.onBookingRescheduled)
	sub.Subscribe(events.TopicBookingStatusChanged, s.onStatusChanged)
}

func (s *Syncer) onBookingCreated(ctx context.Context, topic string, payload []byte) error {
	var event events.BookingEvent
	if err := events.Decode(payload, &event); err != nil {
		return err
	}
	return s.upsert(ctx, event.BookingID, "create", s.port.CreateEvent)
}

func (s *Syncer) onStatusChanged(ctx context.Context, topic string, payload []byte) error {
	var event events.BookingEvent
	if err := events.Decode(payload, &event); err != nil {
		return err
	}
	return s.upsert(ctx, event.BookingID, "update", s.port.UpdateEvent)
}

func (s *Syncer) onBookingCancelled(ctx context.Context, topic string, payload []byte) error {
	var event events.BookingEvent
	if err := events.Decode(payload, &event); err != nil {
		return err
	}
	return s.remove(ctx, event.BookingID)
}

// onBookingRescheduled moves the event: the original booking's entry is
// removed and the replacement gets its own.
func (s *Syncer) onBookingRescheduled(ctx context.Context, topic string, payload []byte) error {
	var event events.BookingRescheduledEvent
	if err := events.Decode(payload, &event); err != nil {
		return err
	}
	return errors.Join(
		s.remove(ctx, event.OriginalBookingID),
		s.upsert(ctx, event.NewBookingID, "create", s.port.CreateEvent),
	)
}

func (s *Syncer) upsert(ctx context.Context, bookingID, op string, call func(context.Context, *model.Booking, *model.Slot) (string, error)) error {
	booking, err := s.bookings.FindByID(ctx, bookingID)
	if err != nil {
		return fmt.Errorf("failed to load booking %s: %w", bookingID, err)
	}
	slot, err := s.slots.FindByID(ctx, booking.SlotID)
	if err != nil {
		return fmt.Errorf("failed to load slot %s: %w", booking.SlotID, err)
	}

	eventID, err := s.withRetry(ctx, booking.ID, op, func(ctx context.Context) (string, error) {
		return call(ctx, booking, slot)
	})
	if err != nil {
		return err
	}

	s.cfg.Log.Info("Calendar event synced", "booking_id", booking.ID, "operation", op, "event_id", eventID)
	return nil
}

func (s *Syncer) remove(ctx context.Context, bookingID string) error {
	booking, err := s.bookings.FindByID(ctx, bookingID)
	if err != nil {
		return fmt.Errorf("failed to load booking %s: %w", bookingID, err)
	}

	eventID, err := s.withRetry(ctx, booking.ID, "delete", func(ctx context.Context) (string, error) {
		return s.port.DeleteEvent(ctx, booking)
	})
	if err != nil {
		return err
	}

	s.cfg.Log.Info("Calendar event removed", "booking_id", booking.ID, "event_id", eventID)
	return nil
}

// withRetry runs fn up to CalendarSyncAttempts times with a linear backoff.
func (s *Syncer) withRetry(ctx context.Context, bookingID, op string, fn func(context.Context) (string, error)) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= s.cfg.CalendarSyncAttempts; attempt++ {
		eventID, err := fn(ctx)
		if err == nil {
			return eventID, nil
		}
		lastErr = err

		s.cfg.Log.Warn("Calendar sync attempt failed",
			"booking_id", bookingID,
			"operation", op,
			"attempt", attempt,
			"max_attempts", s.cfg.CalendarSyncAttempts,
			"error", err,
		)
		if attempt == s.cfg.CalendarSyncAttempts {
			break
		}
		if err := s.sleep(ctx, s.cfg.CalendarSyncBackoff*time.Duration(attempt)); err != nil {
			lastErr = err
			break
		}
	}

	s.cfg.Log.Error("Calendar sync failed", "booking_id", bookingID, "operation", op, "error", lastErr)
	return "", NewCalendarSyncFailed(bookingID, op, lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
