package handler

import (
	"context"
	"net/http"

	"consultbook/internal/bookings/service"
	httputil "consultbook/pkg/http"
	"consultbook/pkg/logger"
	"consultbook/pkg/middleware"
	"consultbook/pkg/model"

	"github.com/julienschmidt/httprouter"
)

// Rescheduler moves a booking onto another slot.
type Rescheduler interface {
	RescheduleBooking(ctx context.Context, id string, input *model.RescheduleBookingInput, actor model.Actor) (*model.Booking, error)
}

type BookingHandler struct {
	service     service.BookingService
	rescheduler Rescheduler
	log         *logger.Logger
}

func NewBookingHandler(service service.BookingService, rescheduler Rescheduler, log *logger.Logger) *BookingHandler {
	return &BookingHandler{
		service:     service,
		rescheduler: rescheduler,
		log:         log,
	}
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var input model.CreateAppointmentInput
	if err := httputil.DecodeJSON(r, &input, false); err != nil {
		httputil.WriteError(w, err)
		return
	}

	booking, err := h.service.CreateAppointment(r.Context(), &input, middleware.ActorFrom(r.Context()))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteCreated(w, booking)
}

func (h *BookingHandler) GetByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	booking, err := h.service.GetBookingByID(r.Context(), ps.ByName("id"), middleware.ActorFrom(r.Context()))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, booking)
}

func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	customerID := r.URL.Query().Get("customer_id")
	bookings, total, err := h.service.ListBookings(r.Context(), customerID, limit, offset, middleware.ActorFrom(r.Context()))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WritePaginated(w, bookings, total, limit, offset)
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var input model.CancelBookingInput
	if err := httputil.DecodeJSON(r, &input, false); err != nil {
		httputil.WriteError(w, err)
		return
	}

	booking, err := h.service.CancelBooking(r.Context(), ps.ByName("id"), &input, middleware.ActorFrom(r.Context()))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, booking)
}

func (h *BookingHandler) Reschedule(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var input model.RescheduleBookingInput
	if err := httputil.DecodeJSON(r, &input, false); err != nil {
		httputil.WriteError(w, err)
		return
	}

	booking, err := h.rescheduler.RescheduleBooking(r.Context(), ps.ByName("id"), &input, middleware.ActorFrom(r.Context()))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteCreated(w, booking)
}

type transitionFunc func(ctx context.Context, id string, actor model.Actor) (*model.Booking, error)

// transition adapts a status change operation to a route.
func (h *BookingHandler) transition(name string, fn transitionFunc) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		booking, err := fn(r.Context(), ps.ByName("id"), middleware.ActorFrom(r.Context()))
		if err != nil {
			h.log.Debug("Status change rejected", "operation", name, "booking_id", ps.ByName("id"), "error", err)
			httputil.WriteError(w, err)
			return
		}
		httputil.WriteSuccess(w, booking)
	}
}

func (h *BookingHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/appointments", h.Create)
	router.GET("/api/v1/appointments", h.List)
	router.GET("/api/v1/appointments/:id", h.GetByID)
	router.POST("/api/v1/appointments/:id/cancel", h.Cancel)
	router.POST("/api/v1/appointments/:id/reschedule", h.Reschedule)
	router.POST("/api/v1/appointments/:id/confirm", h.transition("confirm", h.service.ConfirmBooking))
	router.POST("/api/v1/appointments/:id/complete", h.transition("complete", h.service.CompleteBooking))
	router.POST("/api/v1/appointments/:id/no-show", h.transition("no-show", h.service.MarkNoShow))
}
