package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	apperrors "consultbook/pkg/errors"
	"consultbook/pkg/logger"

	"github.com/segmentio/kafka-go"
)

func TestNewMessage(t *testing.T) {
	msg, err := NewMessage("booking.created", "b-1", map[string]string{"booking_id": "b-1"},
		WithEventType("booking.created"),
		WithSource("bookings"),
		WithCorrelationID(""),
	)
	if err != nil {
		t.Fatalf("NewMessage() error = %v", err)
	}
	if msg.EventID() == "" {
		t.Errorf("NewMessage() should assign an event id")
	}
	if msg.Headers[HeaderTimestamp] == "" {
		t.Errorf("NewMessage() should stamp a timestamp header")
	}
	if _, ok := msg.Headers[HeaderCorrelationID]; ok {
		t.Errorf("empty correlation id should not be set")
	}

	var payload map[string]string
	if err := msg.Decode(&payload); err != nil || payload["booking_id"] != "b-1" {
		t.Errorf("Decode() = %v, %v", payload, err)
	}
}

func TestNewMessage_KeepsSuppliedEventID(t *testing.T) {
	msg, err := NewMessage("t", "k", struct{}{}, WithEventID("evt-1"))
	if err != nil {
		t.Fatalf("NewMessage() error = %v", err)
	}
	if msg.EventID() != "evt-1" {
		t.Errorf("EventID() = %q, want evt-1", msg.EventID())
	}
}

func TestNewMessage_EncodingError(t *testing.T) {
	if _, err := NewMessage("t", "k", make(chan int)); err == nil {
		t.Fatalf("expected encoding error")
	}
}

func TestMessage_Retries(t *testing.T) {
	var msg Message
	for i := 0; i < 12; i++ {
		msg.markRetry()
	}
	if got := msg.Retries(); got != 12 {
		t.Errorf("Retries() = %d, want 12", got)
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorType
	}{
		{"nil", nil, ErrorTypeUnknown},
		{"kafka transient", NewTransientError("x", nil), ErrorTypeTransient},
		{"network", errors.New("dial tcp: connection refused"), ErrorTypeTransient},
		{"deadline", fmt.Errorf("sync: %w", context.DeadlineExceeded), ErrorTypeTransient},
		{"upstream app error", apperrors.Upstream("CALENDAR_SYNC_FAILED", "calendar down", nil), ErrorTypeTransient},
		{"not found app error", apperrors.NotFound("BOOKING_NOT_FOUND", "gone"), ErrorTypeBusiness},
		{"unknown", errors.New("schema mismatch"), ErrorTypePermanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyError(tt.err); got != tt.want {
				t.Errorf("ClassifyError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConsumer_ProcessMessageRetriesTransient(t *testing.T) {
	calls := 0
	c := &Consumer{
		maxRetries: 3,
		log:        logger.Discard(),
		handler: func(ctx context.Context, msg Message) error {
			calls++
			if calls < 3 {
				return NewTransientError("flaky", nil)
			}
			return nil
		},
	}

	if err := c.processMessage(context.Background(), Message{Headers: map[string]string{}}); err != nil {
		t.Fatalf("processMessage() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("handler calls = %d, want 3", calls)
	}
}

func TestConsumer_ProcessMessageStopsOnPermanent(t *testing.T) {
	calls := 0
	c := &Consumer{
		maxRetries: 3,
		log:        logger.Discard(),
		handler: func(ctx context.Context, msg Message) error {
			calls++
			return NewPermanentError("bad payload", nil)
		},
	}

	if err := c.processMessage(context.Background(), Message{Headers: map[string]string{}}); err == nil {
		t.Fatalf("expected permanent error")
	}
	if calls != 1 {
		t.Errorf("handler calls = %d, want 1", calls)
	}
}

func TestConsumer_ProcessMessageGivesUpAfterMaxRetries(t *testing.T) {
	calls := 0
	c := &Consumer{
		maxRetries: 2,
		log:        logger.Discard(),
		handler: func(ctx context.Context, msg Message) error {
			calls++
			return NewTransientError("still down", nil)
		},
	}

	if err := c.processMessage(context.Background(), Message{Headers: map[string]string{}}); err == nil {
		t.Fatalf("expected error after retries")
	}
	if calls != 3 {
		t.Errorf("handler calls = %d, want 3 (1 + 2 retries)", calls)
	}
}

func TestConsumer_ProcessMessageSkipsBusinessErrors(t *testing.T) {
	calls := 0
	c := &Consumer{
		maxRetries: 3,
		log:        logger.Discard(),
		handler: func(ctx context.Context, msg Message) error {
			calls++
			return apperrors.NotFound("BOOKING_NOT_FOUND", "booking is gone")
		},
	}

	if err := c.processMessage(context.Background(), Message{Headers: map[string]string{}}); err != nil {
		t.Fatalf("processMessage() error = %v, want nil", err)
	}
	if calls != 1 {
		t.Errorf("handler calls = %d, want 1", calls)
	}
}

func TestDeadLetter(t *testing.T) {
	msg := Message{Topic: "booking.created", Key: "b-1", Value: []byte(`{}`), Headers: map[string]string{HeaderEventID: "evt-1"}}
	letter := deadLetter(msg, errors.New("calendar down"), map[string]string{"dlq-error-type": "transient"})

	if letter.Topic != "" {
		t.Errorf("dead letter topic = %q, want empty", letter.Topic)
	}
	got := map[string]string{}
	for _, h := range letter.Headers {
		got[h.Key] = string(h.Value)
	}
	for key, want := range map[string]string{
		HeaderEventID:       "evt-1",
		HeaderOriginalTopic: "booking.created",
		"dlq-error":         "calendar down",
		"dlq-error-type":    "transient",
	} {
		if got[key] != want {
			t.Errorf("header %s = %q, want %q", key, got[key], want)
		}
	}
	if _, ok := msg.Headers[HeaderOriginalTopic]; ok {
		t.Errorf("deadLetter must not modify the original headers")
	}
}

func TestWrap_RunsMiddlewareInOrder(t *testing.T) {
	var order []string
	tag := func(name string) ConsumerMiddleware {
		return func(ctx context.Context, msg Message, next MessageHandler) error {
			order = append(order, name)
			return next(ctx, msg)
		}
	}
	h := wrap(func(ctx context.Context, msg Message) error {
		order = append(order, "handler")
		return nil
	}, []ConsumerMiddleware{tag("outer"), tag("inner")})

	if err := h(context.Background(), Message{}); err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if fmt.Sprint(order) != "[outer inner handler]" {
		t.Errorf("order = %v", order)
	}
}

type mockWriter struct {
	writeFunc func(ctx context.Context, msgs ...kafka.Message) error
	mu        sync.Mutex
	writes    int
}

func (m *mockWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	m.mu.Lock()
	m.writes++
	m.mu.Unlock()
	return m.writeFunc(ctx, msgs...)
}

func (m *mockWriter) Close() error { return nil }

type mockReader struct {
	fetchFunc func(ctx context.Context) (kafka.Message, error)
	mu        sync.Mutex
	committed []int64
}

func (m *mockReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	return m.fetchFunc(ctx)
}

func (m *mockReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range msgs {
		m.committed = append(m.committed, msg.Offset)
	}
	return nil
}

func (m *mockReader) Close() error { return nil }

func (m *mockReader) Stats() kafka.ReaderStats { return kafka.ReaderStats{} }

// oneMessage yields a single message, then blocks until ctx ends.
func oneMessage(offset int64) func(ctx context.Context) (kafka.Message, error) {
	var once sync.Once
	return func(ctx context.Context) (kafka.Message, error) {
		var msg *kafka.Message
		once.Do(func() { msg = &kafka.Message{Topic: "booking.created", Key: []byte("b-1"), Value: []byte(`{}`), Offset: offset} })
		if msg != nil {
			return *msg, nil
		}
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
}

func failingHandler(ctx context.Context, msg Message) error {
	return NewPermanentError("bad payload", nil)
}

func TestConsumer_ProcessMessageRetriesParking(t *testing.T) {
	dlq := &mockWriter{}
	dlq.writeFunc = func(ctx context.Context, msgs ...kafka.Message) error {
		if dlq.writes < 3 {
			return errors.New("broker unavailable")
		}
		return nil
	}
	c := &Consumer{
		dlqWriter:    dlq,
		retryBackoff: time.Millisecond,
		log:          logger.Discard(),
		handler:      failingHandler,
	}

	err := c.processMessage(context.Background(), Message{Headers: map[string]string{}})
	if err == nil || errors.Is(err, errNotParked) {
		t.Fatalf("processMessage() error = %v, want the handler error", err)
	}
	if dlq.writes != 3 {
		t.Errorf("dlq writes = %d, want 3", dlq.writes)
	}
}

func TestConsumer_StartLeavesOffsetWhenParkingFails(t *testing.T) {
	reader := &mockReader{fetchFunc: oneMessage(7)}
	dlq := &mockWriter{writeFunc: func(ctx context.Context, msgs ...kafka.Message) error {
		return errors.New("broker unavailable")
	}}
	c := &Consumer{
		reader:       reader,
		dlqWriter:    dlq,
		retryBackoff: 5 * time.Millisecond,
		log:          logger.Discard(),
		handler:      failingHandler,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	if err := c.Start(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Start() error = %v, want deadline exceeded", err)
	}

	if len(reader.committed) != 0 {
		t.Errorf("committed offsets = %v, want none", reader.committed)
	}
	dlq.mu.Lock()
	defer dlq.mu.Unlock()
	if dlq.writes < 2 {
		t.Errorf("dlq writes = %d, want repeated attempts", dlq.writes)
	}
}

func TestConsumer_StartCommitsSettledMessages(t *testing.T) {
	tests := []struct {
		name    string
		handler MessageHandler
		dlq     messageWriter
	}{
		{"handled", func(ctx context.Context, msg Message) error { return nil }, nil},
		{"parked", failingHandler, &mockWriter{writeFunc: func(ctx context.Context, msgs ...kafka.Message) error { return nil }}},
		{"dropped without dlq", failingHandler, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := &mockReader{fetchFunc: oneMessage(3)}
			c := &Consumer{
				reader:    reader,
				dlqWriter: tt.dlq,
				log:       logger.Discard(),
				handler:   tt.handler,
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
			defer cancel()
			_ = c.Start(ctx)

			reader.mu.Lock()
			defer reader.mu.Unlock()
			if fmt.Sprint(reader.committed) != "[3]" {
				t.Errorf("committed offsets = %v, want [3]", reader.committed)
			}
		})
	}
}
