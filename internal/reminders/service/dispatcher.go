package service

import (
	"context"
	"errors"
	"time"

	bookingserrors "consultbook/internal/bookings/errors"
	bookingsrepo "consultbook/internal/bookings/repository"
	"consultbook/internal/events"
	"consultbook/internal/notifications"
	remindererrors "consultbook/internal/reminders/errors"
	"consultbook/internal/reminders/repository"
	slotsrepo "consultbook/internal/slots/repository"
	"consultbook/pkg/config"
	apperrors "consultbook/pkg/errors"
	"consultbook/pkg/model"
	"consultbook/pkg/obs"
	"consultbook/pkg/sanitizer"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName = "consultbook/reminders"

	maxFailureReason = 500
)

// Dispatcher is the only writer of reminder status after creation.
type Dispatcher struct {
	repo     repository.ReminderRepository
	bookings bookingsrepo.BookingRepository
	slots    slotsrepo.SlotStore
	notifier notifications.Notifier
	events   events.Publisher
	cfg      *config.Config
	tracer   trace.Tracer
	now      func() time.Time
}

func NewDispatcher(
	repo repository.ReminderRepository,
	bookings bookingsrepo.BookingRepository,
	slots slotsrepo.SlotStore,
	notifier notifications.Notifier,
	publisher events.Publisher,
	cfg *config.Config,
) *Dispatcher {
	return &Dispatcher{
		repo:     repo,
		bookings: bookings,
		slots:    slots,
		notifier: notifier,
		events:   publisher,
		cfg:      cfg,
		tracer:   obs.Tracer(tracerName),
		now:      time.Now,
	}
}

// SendReminder delivers a PENDING reminder. A delivery failure is recorded on
// the reminder (FAILED, retry count incremented) and still returned.
func (d *Dispatcher) SendReminder(ctx context.Context, id string) (sent *model.Reminder, err error) {
	ctx, span := d.tracer.Start(ctx, "reminders.SendReminder",
		trace.WithAttributes(attribute.String("reminder_id", id)))
	defer func() { obs.End(span, err) }()

	reminder, err := d.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if reminder.Status != model.ReminderPending {
		return nil, remindererrors.NewReminderAlreadySent(id, reminder.Status)
	}
	span.SetAttributes(
		attribute.String("booking_id", reminder.BookingID),
		attribute.String("channel", string(reminder.Channel)),
	)

	booking, err := d.bookings.FindByID(ctx, reminder.BookingID)
	if err != nil {
		if errors.Is(err, bookingserrors.ErrNotFound) {
			return nil, bookingserrors.NewBookingNotFound(reminder.BookingID)
		}
		return nil, apperrors.Internal("Failed to retrieve booking", err)
	}

	if reminder.ReminderType.NeedsActiveBooking() && !booking.Status.IsActive() {
		return nil, d.skipInactive(ctx, reminder, booking)
	}

	slot, err := d.slots.FindByID(ctx, booking.SlotID)
	if err != nil {
		return nil, apperrors.Internal("Failed to retrieve slot", err)
	}

	send, ok := notifications.ChannelSender(d.notifier, reminder.Channel)
	if !ok {
		return nil, apperrors.Internal("Unknown reminder channel", errors.New(string(reminder.Channel)))
	}

	data := notifications.TemplateData(reminder.ReminderType, booking, slot)
	if sendErr := send(ctx, reminder.TemplateID, notifications.Recipient(reminder.Channel, booking), data); sendErr != nil {
		d.markFailed(ctx, reminder, sendErr)
		return nil, sendErr
	}

	sent, err = d.repo.Transition(ctx, id, repository.Transition{
		From: []model.ReminderStatus{model.ReminderPending},
		To:   model.ReminderSent,
		At:   d.now(),
	})
	if err != nil {
		return nil, d.transitionError(id, err)
	}

	d.cfg.Log.Info("Reminder sent",
		"reminder_id", id,
		"booking_id", sent.BookingID,
		"reminder_type", sent.ReminderType,
		"channel", sent.Channel,
	)

	if err := d.events.Publish(ctx, events.TopicReminderSent, sent.BookingID, events.NewReminderSentEvent(sent)); err != nil {
		d.cfg.Log.Error("Failed to publish event", "topic", events.TopicReminderSent, "reminder_id", id, "error", err)
	}
	return sent, nil
}

// MarkDelivered records a delivery receipt. Repeated receipts succeed.
func (d *Dispatcher) MarkDelivered(ctx context.Context, id string) (*model.Reminder, error) {
	reminder, err := d.find(ctx, id)
	if err != nil {
		return nil, err
	}

	switch reminder.Status {
	case model.ReminderDelivered:
		return reminder, nil
	case model.ReminderSent:
	default:
		return nil, remindererrors.NewReminderNotSent(id, reminder.Status)
	}

	delivered, err := d.repo.Transition(ctx, id, repository.Transition{
		From: []model.ReminderStatus{model.ReminderSent},
		To:   model.ReminderDelivered,
		At:   d.now(),
	})
	if err != nil {
		var conflict *remindererrors.StatusConflictError
		if errors.As(err, &conflict) && conflict.Current == model.ReminderDelivered {
			return d.find(ctx, id)
		}
		return nil, d.transitionError(id, err)
	}

	d.cfg.Log.Info("Reminder delivered", "reminder_id", id, "booking_id", delivered.BookingID)
	return delivered, nil
}

// RetryReminder re-arms a FAILED reminder while it has attempts left.
func (d *Dispatcher) RetryReminder(ctx context.Context, id string) (*model.Reminder, error) {
	reminder, err := d.find(ctx, id)
	if err != nil {
		return nil, err
	}

	switch reminder.Status {
	case model.ReminderPending:
		return reminder, nil
	case model.ReminderFailed:
	default:
		return nil, remindererrors.NewReminderAlreadySent(id, reminder.Status)
	}
	if reminder.RetryCount >= model.MaxRetryAttempts {
		return nil, remindererrors.NewReminderRetryExhausted(id, reminder.RetryCount)
	}

	requeued, err := d.repo.Transition(ctx, id, repository.Transition{
		From:       []model.ReminderStatus{model.ReminderFailed},
		To:         model.ReminderPending,
		At:         d.now(),
		RetryBelow: model.MaxRetryAttempts,
	})
	if err != nil {
		var conflict *remindererrors.StatusConflictError
		if errors.As(err, &conflict) && conflict.Current == model.ReminderFailed {
			return nil, remindererrors.NewReminderRetryExhausted(id, conflict.RetryCount)
		}
		return nil, d.transitionError(id, err)
	}

	d.cfg.Log.Info("Reminder re-queued", "reminder_id", id, "retry_count", requeued.RetryCount)
	return requeued, nil
}

// skipInactive cancels a timed reminder whose booking was cancelled or
// rescheduled away.
func (d *Dispatcher) skipInactive(ctx context.Context, reminder *model.Reminder, booking *model.Booking) error {
	_, err := d.repo.Transition(ctx, reminder.ID, repository.Transition{
		From: repository.Cancellable,
		To:   model.ReminderCancelled,
		At:   d.now(),
	})
	if err != nil && !errors.Is(err, remindererrors.ErrStatusConflict) {
		d.cfg.Log.Error("Failed to cancel reminder of inactive booking", "reminder_id", reminder.ID, "error", err)
	}

	d.cfg.Log.Warn("Reminder skipped, booking no longer active",
		"reminder_id", reminder.ID,
		"booking_id", booking.ID,
		"booking_status", booking.Status,
	)
	return remindererrors.NewReminderBookingInactive(reminder.ID, booking.ID, booking.Status)
}

func (d *Dispatcher) markFailed(ctx context.Context, reminder *model.Reminder, sendErr error) {
	reason := sanitizer.Truncate(sendErr.Error(), maxFailureReason)

	failed, err := d.repo.Transition(ctx, reminder.ID, repository.Transition{
		From:           []model.ReminderStatus{model.ReminderPending},
		To:             model.ReminderFailed,
		At:             d.now(),
		FailureReason:  reason,
		IncrementRetry: true,
	})
	if err != nil {
		d.cfg.Log.Error("Failed to record reminder failure", "reminder_id", reminder.ID, "error", err)
		return
	}

	d.cfg.Log.Warn("Reminder dispatch failed",
		"reminder_id", reminder.ID,
		"booking_id", reminder.BookingID,
		"channel", reminder.Channel,
		"retry_count", failed.RetryCount,
		"error", sendErr,
	)
}

func (d *Dispatcher) find(ctx context.Context, id string) (*model.Reminder, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Reminder ID cannot be empty")
	}

	reminder, err := d.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, remindererrors.ErrNotFound) {
			return nil, remindererrors.NewReminderNotFound(id)
		}
		return nil, apperrors.Internal("Failed to retrieve reminder", err)
	}
	return reminder, nil
}

func (d *Dispatcher) transitionError(id string, err error) error {
	var conflict *remindererrors.StatusConflictError
	if errors.As(err, &conflict) {
		return remindererrors.NewReminderAlreadySent(id, conflict.Current)
	}
	if errors.Is(err, remindererrors.ErrNotFound) {
		return remindererrors.NewReminderNotFound(id)
	}
	return apperrors.Internal("Failed to update reminder", err)
}
