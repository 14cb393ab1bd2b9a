package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"consultbook/internal/notifications"
	remindererrors "consultbook/internal/reminders/errors"
	"consultbook/pkg/logger"
	"consultbook/pkg/model"

	"github.com/hibiken/asynq"
)

type mockSender struct {
	sendErr    error
	retryErr   error
	retryCalls int
}

func (m *mockSender) SendReminder(ctx context.Context, id string) (*model.Reminder, error) {
	if m.sendErr != nil {
		return nil, m.sendErr
	}
	return &model.Reminder{ID: id, Status: model.ReminderSent}, nil
}

func (m *mockSender) RetryReminder(ctx context.Context, id string) (*model.Reminder, error) {
	m.retryCalls++
	if m.retryErr != nil {
		return nil, m.retryErr
	}
	return &model.Reminder{ID: id, Status: model.ReminderPending}, nil
}

func task(t *testing.T, id string) *asynq.Task {
	t.Helper()
	b, err := json.Marshal(SendReminderPayload{ReminderID: id, BookingID: "b-1"})
	if err != nil {
		t.Fatal(err)
	}
	return asynq.NewTask(TypeSendReminder, b)
}

func TestNewReminderTask(t *testing.T) {
	reminder := &model.Reminder{ID: "r-1", BookingID: "b-1", ScheduledAt: time.Now().Add(time.Hour)}
	tk, opts, err := NewReminderTask(reminder)
	if err != nil {
		t.Fatalf("NewReminderTask() error = %v", err)
	}
	if tk.Type() != TypeSendReminder {
		t.Errorf("Type() = %q", tk.Type())
	}
	var p SendReminderPayload
	if err := json.Unmarshal(tk.Payload(), &p); err != nil || p.ReminderID != "r-1" {
		t.Errorf("payload = %+v, err = %v", p, err)
	}
	if len(opts) != 4 {
		t.Errorf("len(opts) = %d, want 4", len(opts))
	}
}

func TestWorker_HandleSendReminder(t *testing.T) {
	dispatchErr := notifications.NewDispatchFailed(model.ChannelEmail, errors.New("gateway down"))

	tests := []struct {
		name          string
		sender        *mockSender
		wantErr       bool
		wantSkipRetry bool
		wantRetries   int
	}{
		{name: "sent", sender: &mockSender{}},
		{
			name:   "already sent is dropped",
			sender: &mockSender{sendErr: remindererrors.NewReminderAlreadySent("r-1", model.ReminderSent)},
		},
		{
			name:   "inactive booking is dropped",
			sender: &mockSender{sendErr: remindererrors.NewReminderBookingInactive("r-1", "b-1", model.BookingCancelled)},
		},
		{
			name:        "dispatch failure is re-armed and retried",
			sender:      &mockSender{sendErr: dispatchErr},
			wantErr:     true,
			wantRetries: 1,
		},
		{
			name:          "exhausted retries stop",
			sender:        &mockSender{sendErr: dispatchErr, retryErr: remindererrors.NewReminderRetryExhausted("r-1", 3)},
			wantErr:       true,
			wantSkipRetry: true,
			wantRetries:   1,
		},
		{
			name:    "store failure is retried",
			sender:  &mockSender{sendErr: errors.New("mongo timeout")},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewWorker(tt.sender, logger.Discard())
			err := w.HandleSendReminder(context.Background(), task(t, "r-1"))

			if (err != nil) != tt.wantErr {
				t.Fatalf("HandleSendReminder() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got := errors.Is(err, asynq.SkipRetry); got != tt.wantSkipRetry {
				t.Errorf("SkipRetry = %v, want %v", got, tt.wantSkipRetry)
			}
			if tt.sender.retryCalls != tt.wantRetries {
				t.Errorf("RetryReminder calls = %d, want %d", tt.sender.retryCalls, tt.wantRetries)
			}
		})
	}
}

func TestWorker_InvalidPayloadSkipsRetry(t *testing.T) {
	w := NewWorker(&mockSender{}, logger.Discard())
	err := w.HandleSendReminder(context.Background(), asynq.NewTask(TypeSendReminder, []byte("{")))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Errorf("error = %v, want SkipRetry", err)
	}
}
