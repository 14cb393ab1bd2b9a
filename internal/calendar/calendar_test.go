package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"consultbook/internal/events"
	"consultbook/internal/storetest"
	"consultbook/pkg/config"
	apperrors "consultbook/pkg/errors"
	"consultbook/pkg/kafka"
	"consultbook/pkg/logger"
	"consultbook/pkg/model"

	"google.golang.org/api/option"
)

type mockPort struct {
	mu        sync.Mutex
	calls     []string
	createErr []error
}

func (m *mockPort) record(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
}

func (m *mockPort) CreateEvent(ctx context.Context, booking *model.Booking, slot *model.Slot) (string, error) {
	m.record("create:" + booking.ID + ":" + slot.ID)
	m.mu.Lock()
	if len(m.createErr) > 0 {
		err := m.createErr[0]
		m.createErr = m.createErr[1:]
		m.mu.Unlock()
		if err != nil {
			return "", err
		}
	} else {
		m.mu.Unlock()
	}
	return EventID(booking.ID), nil
}

func (m *mockPort) UpdateEvent(ctx context.Context, booking *model.Booking, slot *model.Slot) (string, error) {
	m.record("update:" + booking.ID)
	return EventID(booking.ID), nil
}

func (m *mockPort) DeleteEvent(ctx context.Context, booking *model.Booking) (string, error) {
	m.record("delete:" + booking.ID)
	return EventID(booking.ID), nil
}

func testConfig() *config.Config {
	return &config.Config{
		Log:                  logger.Discard(),
		Location:             time.UTC,
		CalendarSyncAttempts: 3,
		CalendarSyncBackoff:  time.Millisecond,
	}
}

func seed(store *storetest.Store) {
	store.PutSlot(model.Slot{ID: "s-1", ConsultantID: "c-1", Date: "2030-05-01", StartTime: "09:00", EndTime: "10:00", Status: model.SlotAvailable})
	store.PutSlot(model.Slot{ID: "s-2", ConsultantID: "c-1", Date: "2030-05-02", StartTime: "11:00", EndTime: "12:00", Status: model.SlotBooked})
	store.PutBooking(model.Booking{ID: "b-1", CustomerID: "cust-1", SlotID: "s-1", Status: model.BookingRescheduled})
	store.PutBooking(model.Booking{ID: "b-2", CustomerID: "cust-1", SlotID: "s-2", Status: model.BookingConfirmed})
}

func newTestSyncer(port Port) (*Syncer, *events.Router, *int) {
	store := storetest.New()
	seed(store)

	syncer := NewSyncer(port, store.Bookings(), store.Slots(), testConfig())
	sleeps := 0
	syncer.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps++
		return nil
	}

	router := events.NewRouter()
	syncer.Subscribe(router)
	return syncer, router, &sleeps
}

func payload(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func TestSyncer_Events(t *testing.T) {
	tests := []struct {
		name      string
		topic     string
		event     any
		wantCalls []string
	}{
		{
			name:      "created",
			topic:     events.TopicBookingCreated,
			event:     events.BookingEvent{BookingID: "b-2"},
			wantCalls: []string{"create:b-2:s-2"},
		},
		{
			name:      "status changed",
			topic:     events.TopicBookingStatusChanged,
			event:     events.BookingEvent{BookingID: "b-2"},
			wantCalls: []string{"update:b-2"},
		},
		{
			name:      "cancelled",
			topic:     events.TopicBookingCancelled,
			event:     events.BookingEvent{BookingID: "b-2"},
			wantCalls: []string{"delete:b-2"},
		},
		{
			name:      "rescheduled moves the event",
			topic:     events.TopicBookingRescheduled,
			event:     events.BookingRescheduledEvent{OriginalBookingID: "b-1", NewBookingID: "b-2"},
			wantCalls: []string{"delete:b-1", "create:b-2:s-2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			port := &mockPort{}
			_, router, _ := newTestSyncer(port)

			if err := router.Dispatch(context.Background(), tt.topic, payload(t, tt.event)); err != nil {
				t.Fatalf("Dispatch() error = %v", err)
			}
			if strings.Join(port.calls, ",") != strings.Join(tt.wantCalls, ",") {
				t.Errorf("calls = %v, want %v", port.calls, tt.wantCalls)
			}
		})
	}
}

func TestSyncer_RetriesThenSucceeds(t *testing.T) {
	port := &mockPort{createErr: []error{errors.New("503 backend"), errors.New("503 backend")}}
	_, router, sleeps := newTestSyncer(port)

	err := router.Dispatch(context.Background(), events.TopicBookingCreated, payload(t, events.BookingEvent{BookingID: "b-2"}))
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if len(port.calls) != 3 {
		t.Errorf("attempts = %d, want 3", len(port.calls))
	}
	if *sleeps != 2 {
		t.Errorf("sleeps = %d, want 2", *sleeps)
	}
}

func TestSyncer_ExhaustedIsUpstreamFailure(t *testing.T) {
	boom := errors.New("calendar down")
	port := &mockPort{createErr: []error{boom, boom, boom, boom}}
	_, router, _ := newTestSyncer(port)

	err := router.Dispatch(context.Background(), events.TopicBookingCreated, payload(t, events.BookingEvent{BookingID: "b-2"}))
	if !errors.Is(err, CalendarSyncFailed) {
		t.Fatalf("error = %v, want CALENDAR_SYNC_FAILED", err)
	}
	if !errors.Is(err, boom) {
		t.Errorf("cause not preserved: %v", err)
	}
	if appErr := apperrors.AsAppError(err); appErr.StatusCode() != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", appErr.StatusCode())
	}
	if kafka.ClassifyError(err) != kafka.ErrorTypeTransient {
		t.Errorf("sync failure should be retried by the consumer")
	}
	if len(port.calls) != 3 {
		t.Errorf("attempts = %d, want 3", len(port.calls))
	}
}

func TestSyncer_MalformedPayload(t *testing.T) {
	_, router, _ := newTestSyncer(&mockPort{})

	err := router.Dispatch(context.Background(), events.TopicBookingCreated, []byte("{"))
	if kafka.ClassifyError(err) != kafka.ErrorTypePermanent {
		t.Errorf("ClassifyError() = %v, want permanent", kafka.ClassifyError(err))
	}
}

func TestSleepCtx_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepCtx(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("sleepCtx() = %v, want context.Canceled", err)
	}
}

func TestEventID(t *testing.T) {
	got := EventID("3F2504E0-4F89-11D3-9A0C-0305E82C3301")
	if got != "3f2504e04f8911d39a0c0305e82c3301" {
		t.Errorf("EventID() = %q", got)
	}
}

type apiCall struct {
	method string
	path   string
}

func newGoogleServer(t *testing.T, respond func(call apiCall) int) (*GoogleProvider, *[]apiCall) {
	t.Helper()
	var mu sync.Mutex
	var calls []apiCall

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		call := apiCall{method: r.Method, path: r.URL.Path}
		mu.Lock()
		calls = append(calls, call)
		mu.Unlock()

		status := respond(call)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status >= 400 {
			_, _ = w.Write([]byte(`{"error":{"code":` + strconv.Itoa(status) + `,"message":"nope"}}`))
			return
		}
		if r.Method == http.MethodDelete {
			return
		}
		parts := strings.Split(r.URL.Path, "/")
		id := "new"
		if r.Method == http.MethodPut {
			id = parts[len(parts)-1]
		}
		_, _ = w.Write([]byte(`{"id":"` + id + `"}`))
	}))
	t.Cleanup(srv.Close)

	p, err := NewGoogleProvider(context.Background(), "primary", time.UTC,
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	if err != nil {
		t.Fatalf("NewGoogleProvider() error = %v", err)
	}
	return p, &calls
}

func TestGoogleProvider(t *testing.T) {
	booking := &model.Booking{
		ID:              "0b4e6f1c-2d3a-4b5c-8d9e-0f1a2b3c4d5e",
		CustomerName:    "Ada Lovelace",
		AppointmentType: model.AppointmentHomeMeasurement,
		Postcode:        "SW1A 1AA",
		IsKitchen:       true,
		Status:          model.BookingConfirmed,
	}
	slot := &model.Slot{ID: "s-1", Date: "2030-05-01", StartTime: "09:00", EndTime: "10:00"}
	eventPath := "/calendars/primary/events/" + EventID(booking.ID)

	t.Run("create falls back to update on conflict", func(t *testing.T) {
		p, calls := newGoogleServer(t, func(c apiCall) int {
			if c.method == http.MethodPost {
				return http.StatusConflict
			}
			return http.StatusOK
		})

		id, err := p.CreateEvent(context.Background(), booking, slot)
		if err != nil {
			t.Fatalf("CreateEvent() error = %v", err)
		}
		if id != EventID(booking.ID) {
			t.Errorf("id = %q", id)
		}
		if len(*calls) != 2 || (*calls)[1].method != http.MethodPut || (*calls)[1].path != eventPath {
			t.Errorf("calls = %+v", *calls)
		}
	})

	t.Run("delete of missing event succeeds", func(t *testing.T) {
		p, calls := newGoogleServer(t, func(c apiCall) int { return http.StatusGone })

		id, err := p.DeleteEvent(context.Background(), booking)
		if err != nil {
			t.Fatalf("DeleteEvent() error = %v", err)
		}
		if id != EventID(booking.ID) || (*calls)[0].path != eventPath {
			t.Errorf("id = %q, calls = %+v", id, *calls)
		}
	})

	t.Run("api error surfaces", func(t *testing.T) {
		p, _ := newGoogleServer(t, func(c apiCall) int { return http.StatusBadRequest })

		if _, err := p.UpdateEvent(context.Background(), booking, slot); err == nil {
			t.Errorf("expected error")
		}
	})
}

func TestEventShape(t *testing.T) {
	p := &GoogleProvider{calendarID: "primary", loc: time.UTC}
	booking := &model.Booking{
		ID:              "b-1",
		CustomerName:    "Ada",
		AppointmentType: model.AppointmentHomeMeasurement,
		Postcode:        "SW1A 1AA",
		IsBedroom:       true,
		Status:          model.BookingPending,
	}

	event, err := p.event(booking, &model.Slot{Date: "2030-05-01", StartTime: "09:00", EndTime: "10:30"})
	if err != nil {
		t.Fatalf("event() error = %v", err)
	}
	if event.Start.DateTime != "2030-05-01T09:00:00Z" || event.End.DateTime != "2030-05-01T10:30:00Z" {
		t.Errorf("times = %s - %s", event.Start.DateTime, event.End.DateTime)
	}
	if event.Status != "tentative" || event.Location != "SW1A 1AA" {
		t.Errorf("status, location = %q, %q", event.Status, event.Location)
	}
	if event.Summary != "home measurement: Ada" {
		t.Errorf("summary = %q", event.Summary)
	}
}

func TestSyncer_DetachedKeepsProviderOffThePublisher(t *testing.T) {
	store := storetest.New()
	seed(store)
	cfg := testConfig()
	cfg.CalendarSyncBackoff = 50 * time.Millisecond

	boom := errors.New("calendar down")
	port := &mockPort{createErr: []error{boom, boom, boom}}
	router := events.NewRouter()
	detached := events.NewDetached(router, 1, 8, time.Second, cfg.Log)
	NewSyncer(port, store.Bookings(), store.Slots(), cfg).Subscribe(detached)

	var laterErr error
	router.Subscribe(events.TopicBookingCreated, func(ctx context.Context, topic string, payload []byte) error {
		laterErr = ctx.Err()
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	started := time.Now()
	bus := events.NewLocalBus(router, cfg.Log)
	if err := bus.Publish(ctx, events.TopicBookingCreated, "b-2", events.BookingEvent{BookingID: "b-2"}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if took := time.Since(started); took > 50*time.Millisecond {
		t.Errorf("Publish() blocked for %s while the provider was failing", took)
	}
	if laterErr != nil {
		t.Errorf("later subscriber ctx error = %v, want nil", laterErr)
	}

	if err := detached.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	port.mu.Lock()
	defer port.mu.Unlock()
	if len(port.calls) != 3 {
		t.Errorf("attempts = %d, want 3", len(port.calls))
	}
}
