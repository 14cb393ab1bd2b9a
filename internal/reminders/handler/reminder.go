package handler

import (
	"context"
	"net/http"
	"slices"
	"time"

	apperrors "consultbook/pkg/errors"
	httputil "consultbook/pkg/http"
	"consultbook/pkg/logger"
	"consultbook/pkg/middleware"
	"consultbook/pkg/model"

	"github.com/julienschmidt/httprouter"
)

const CodeReminderAccessDenied = "REMINDER_ACCESS_DENIED"

// ReminderDispatcher is the subset of the dispatcher exposed over HTTP.
type ReminderDispatcher interface {
	SendReminder(ctx context.Context, id string) (*model.Reminder, error)
	MarkDelivered(ctx context.Context, id string) (*model.Reminder, error)
}

// ReminderScheduler persists reminders without queueing them.
type ReminderScheduler interface {
	ScheduleReminder(ctx context.Context, bookingID string, reminderType model.ReminderType, channel model.Channel, scheduledAt time.Time) (*model.Reminder, error)
}

type ReminderHandler struct {
	dispatcher ReminderDispatcher
	scheduler  ReminderScheduler
	log        *logger.Logger
}

func NewReminderHandler(dispatcher ReminderDispatcher, scheduler ReminderScheduler, log *logger.Logger) *ReminderHandler {
	return &ReminderHandler{
		dispatcher: dispatcher,
		scheduler:  scheduler,
		log:        log,
	}
}

type scheduleReminderRequest struct {
	ReminderType model.ReminderType `json:"reminder_type"`
	Channel      model.Channel      `json:"channel"`
	ScheduledAt  time.Time          `json:"scheduled_at"`
}

var (
	reminderTypes = []model.ReminderType{
		model.ReminderAppointment24h,
		model.ReminderAppointment1h,
		model.ReminderAppointmentConfirmation,
		model.ReminderAppointmentCancellation,
		model.ReminderAppointmentRescheduled,
	}
	channels = []model.Channel{model.ChannelEmail, model.ChannelSMS, model.ChannelPush}
)

func (req scheduleReminderRequest) validate() error {
	details := map[string]any{}
	if !slices.Contains(reminderTypes, req.ReminderType) {
		details["reminder_type"] = "reminder_type is not a known reminder type"
	}
	if !slices.Contains(channels, req.Channel) {
		details["channel"] = "channel must be one of: EMAIL SMS PUSH"
	}
	if req.ScheduledAt.IsZero() {
		details["scheduled_at"] = "scheduled_at is required"
	}
	if len(details) > 0 {
		return apperrors.Validation(apperrors.CodeValidation, "Invalid reminder", details)
	}
	return nil
}

// Schedule stores a PENDING reminder for the booking without queueing it.
// Staff deliver it through Send.
func (h *ReminderHandler) Schedule(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if !middleware.ActorFrom(r.Context()).IsPrivileged() {
		httputil.WriteError(w, apperrors.Forbidden(CodeReminderAccessDenied, "Only staff can schedule reminders"))
		return
	}

	var req scheduleReminderRequest
	if err := httputil.DecodeJSON(r, &req, false); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := req.validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}

	reminder, err := h.scheduler.ScheduleReminder(r.Context(), ps.ByName("id"), req.ReminderType, req.Channel, req.ScheduledAt)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.log.Info("Reminder scheduled by hand", "reminder_id", reminder.ID, "booking_id", reminder.BookingID)
	httputil.WriteCreated(w, reminder)
}

// Send triggers a dispatch by hand. Only staff may do this.
func (h *ReminderHandler) Send(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if !middleware.ActorFrom(r.Context()).IsPrivileged() {
		httputil.WriteError(w, apperrors.Forbidden(CodeReminderAccessDenied, "Only staff can trigger reminders"))
		return
	}

	reminder, err := h.dispatcher.SendReminder(r.Context(), ps.ByName("id"))
	if err != nil {
		h.log.Warn("Manual reminder dispatch failed", "reminder_id", ps.ByName("id"), "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, reminder)
}

// Delivered records a delivery receipt posted by a channel gateway.
func (h *ReminderHandler) Delivered(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	reminder, err := h.dispatcher.MarkDelivered(r.Context(), ps.ByName("id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, reminder)
}

func (h *ReminderHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/reminders/:id/send", h.Send)
	router.POST("/api/v1/reminders/:id/delivered", h.Delivered)
	router.POST("/api/v1/appointments/:id/reminders", h.Schedule)
}
