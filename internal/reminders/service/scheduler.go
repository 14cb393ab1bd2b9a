package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	bookingserrors "consultbook/internal/bookings/errors"
	bookingsrepo "consultbook/internal/bookings/repository"
	"consultbook/internal/events"
	"consultbook/internal/notifications"
	"consultbook/internal/reminders/repository"
	slotsrepo "consultbook/internal/slots/repository"
	"consultbook/pkg/config"
	apperrors "consultbook/pkg/errors"
	"consultbook/pkg/model"

	"github.com/google/uuid"
)

// Enqueuer hands persisted reminders to the delivery queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, reminder *model.Reminder) error
	Cancel(ctx context.Context, reminderID string) error
}

// TimedReminders are the pre-appointment reminders created for every active
// booking.
var TimedReminders = []model.ReminderType{model.ReminderAppointment24h, model.ReminderAppointment1h}

type Scheduler struct {
	repo     repository.ReminderRepository
	bookings bookingsrepo.BookingRepository
	slots    slotsrepo.SlotStore
	enqueuer Enqueuer
	cfg      *config.Config
	now      func() time.Time
}

func NewScheduler(
	repo repository.ReminderRepository,
	bookings bookingsrepo.BookingRepository,
	slots slotsrepo.SlotStore,
	enqueuer Enqueuer,
	cfg *config.Config,
) *Scheduler {
	return &Scheduler{
		repo:     repo,
		bookings: bookings,
		slots:    slots,
		enqueuer: enqueuer,
		cfg:      cfg,
		now:      time.Now,
	}
}

// ScheduleReminder persists a PENDING reminder. It does not enqueue it.
func (s *Scheduler) ScheduleReminder(ctx context.Context, bookingID string, reminderType model.ReminderType, channel model.Channel, scheduledAt time.Time) (*model.Reminder, error) {
	booking, err := s.bookings.FindByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, bookingserrors.ErrNotFound) {
			return nil, bookingserrors.NewBookingNotFound(bookingID)
		}
		return nil, apperrors.Internal("Failed to retrieve booking", err)
	}
	return s.create(ctx, booking, reminderType, channel, scheduledAt)
}

// ScheduleForBooking creates the notice plus the 24h and 1h reminders on every
// configured channel the customer can be reached on, and enqueues them.
// Offsets already in the past are skipped.
func (s *Scheduler) ScheduleForBooking(ctx context.Context, booking *model.Booking, slot *model.Slot, notice model.ReminderType) ([]*model.Reminder, error) {
	startsAt, err := slot.StartsAt(s.cfg.Location)
	if err != nil {
		return nil, apperrors.Internal("Slot has an invalid start time", err)
	}

	type planned struct {
		reminderType model.ReminderType
		at           time.Time
	}

	now := s.now()
	plan := []planned{{notice, now}}
	for _, t := range TimedReminders {
		offset, _ := t.Offset()
		if at := startsAt.Add(-offset); at.After(now) {
			plan = append(plan, planned{t, at})
		}
	}

	var created []*model.Reminder
	for _, channel := range s.cfg.ReminderChannels {
		if notifications.Recipient(channel, booking) == "" {
			continue
		}
		for _, p := range plan {
			reminder, err := s.create(ctx, booking, p.reminderType, channel, p.at)
			if err != nil {
				return created, errors.Join(err, s.enqueue(ctx, created))
			}
			created = append(created, reminder)
		}
	}

	return created, s.enqueue(ctx, created)
}

// ScheduleNotice creates and enqueues an immediate notice on every reachable
// channel.
func (s *Scheduler) ScheduleNotice(ctx context.Context, booking *model.Booking, notice model.ReminderType) ([]*model.Reminder, error) {
	var created []*model.Reminder
	for _, channel := range s.cfg.ReminderChannels {
		if notifications.Recipient(channel, booking) == "" {
			continue
		}
		reminder, err := s.create(ctx, booking, notice, channel, s.now())
		if err != nil {
			return created, errors.Join(err, s.enqueue(ctx, created))
		}
		created = append(created, reminder)
	}
	return created, s.enqueue(ctx, created)
}

// CancelPendingForBooking moves every PENDING or FAILED reminder of the
// booking to CANCELLED. It joins the caller's transaction.
func (s *Scheduler) CancelPendingForBooking(ctx context.Context, bookingID string) ([]string, error) {
	ids, err := s.repo.CancelPendingForBooking(ctx, bookingID, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to cancel reminders of booking %s: %w", bookingID, err)
	}
	if len(ids) > 0 {
		s.cfg.Log.Info("Pending reminders cancelled", "booking_id", bookingID, "count", len(ids))
	}
	return ids, nil
}

// Subscribe registers the scheduler's booking event handlers.
func (s *Scheduler) Subscribe(router *events.Router) {
	router.Subscribe(events.TopicBookingCreated, s.onBookingCreated)
	router.Subscribe(events.TopicBookingCancelled, s.onBookingCancelled)
	router.Subscribe(events.TopicBookingRescheduled, s.onBookingRescheduled)
}

func (s *Scheduler) onBookingCreated(ctx context.Context, topic string, payload []byte) error {
	var event events.BookingEvent
	if err := events.Decode(payload, &event); err != nil {
		return err
	}

	booking, slot, err := s.load(ctx, event.BookingID)
	if err != nil {
		return err
	}
	if !booking.Status.IsActive() {
		s.cfg.Log.Info("Booking no longer active, reminders not scheduled", "booking_id", booking.ID, "booking_status", booking.Status)
		return nil
	}
	reminders, err := s.ScheduleForBooking(ctx, booking, slot, model.ReminderAppointmentConfirmation)
	if err != nil {
		return err
	}

	s.cfg.Log.Info("Reminders scheduled", "booking_id", booking.ID, "count", len(reminders))
	return nil
}

func (s *Scheduler) onBookingCancelled(ctx context.Context, topic string, payload []byte) error {
	var event events.BookingEvent
	if err := events.Decode(payload, &event); err != nil {
		return err
	}

	s.dequeueCancelled(ctx, event.BookingID)

	booking, err := s.bookings.FindByID(ctx, event.BookingID)
	if err != nil {
		return fmt.Errorf("failed to load booking %s: %w", event.BookingID, err)
	}
	_, err = s.ScheduleNotice(ctx, booking, model.ReminderAppointmentCancellation)
	return err
}

func (s *Scheduler) onBookingRescheduled(ctx context.Context, topic string, payload []byte) error {
	var event events.BookingRescheduledEvent
	if err := events.Decode(payload, &event); err != nil {
		return err
	}

	s.dequeueCancelled(ctx, event.OriginalBookingID)

	booking, slot, err := s.load(ctx, event.NewBookingID)
	if err != nil {
		return err
	}
	reminders, err := s.ScheduleForBooking(ctx, booking, slot, model.ReminderAppointmentRescheduled)
	if err != nil {
		return err
	}

	s.cfg.Log.Info("Reminders scheduled for rescheduled booking",
		"booking_id", booking.ID,
		"rescheduled_from_id", event.OriginalBookingID,
		"count", len(reminders),
	)
	return nil
}

// dequeueCancelled removes queued tasks of reminders already cancelled in the
// store. The dispatcher skips them anyway; this only saves the queue work.
func (s *Scheduler) dequeueCancelled(ctx context.Context, bookingID string) {
	reminders, err := s.repo.FindByBooking(ctx, bookingID)
	if err != nil {
		s.cfg.Log.Warn("Failed to list reminders for dequeue", "booking_id", bookingID, "error", err)
		return
	}
	for _, r := range reminders {
		if r.Status != model.ReminderCancelled {
			continue
		}
		if err := s.enqueuer.Cancel(ctx, r.ID); err != nil {
			s.cfg.Log.Warn("Failed to dequeue reminder", "reminder_id", r.ID, "error", err)
		}
	}
}

func (s *Scheduler) load(ctx context.Context, bookingID string) (*model.Booking, *model.Slot, error) {
	booking, err := s.bookings.FindByID(ctx, bookingID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load booking %s: %w", bookingID, err)
	}
	slot, err := s.slots.FindByID(ctx, booking.SlotID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load slot %s: %w", booking.SlotID, err)
	}
	return booking, slot, nil
}

func (s *Scheduler) create(ctx context.Context, booking *model.Booking, reminderType model.ReminderType, channel model.Channel, scheduledAt time.Time) (*model.Reminder, error) {
	reminder := &model.Reminder{
		ID:           uuid.NewString(),
		BookingID:    booking.ID,
		CustomerID:   booking.CustomerID,
		ReminderType: reminderType,
		Channel:      channel,
		Status:       model.ReminderPending,
		TemplateID:   notifications.TemplateID(reminderType),
		ScheduledAt:  scheduledAt.UTC().Truncate(time.Millisecond),
	}

	if err := s.repo.Create(ctx, reminder); err != nil {
		s.cfg.Log.Error("Failed to create reminder", "booking_id", booking.ID, "reminder_type", reminderType, "error", err)
		return nil, apperrors.Internal("Failed to create reminder", err)
	}
	return reminder, nil
}

func (s *Scheduler) enqueue(ctx context.Context, reminders []*model.Reminder) error {
	var errs []error
	for _, r := range reminders {
		if err := s.enqueuer.Enqueue(ctx, r); err != nil {
			s.cfg.Log.Error("Failed to enqueue reminder", "reminder_id", r.ID, "booking_id", r.BookingID, "error", err)
			errs = append(errs, fmt.Errorf("reminder %s: %w", r.ID, err))
		}
	}
	return errors.Join(errs...)
}
