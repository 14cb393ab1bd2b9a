package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Message is the broker independent form of a record. Partition and Offset
// are only set on consumed messages.
type Message struct {
	Topic     string
	Key       string
	Value     []byte
	Headers   map[string]string
	Partition int
	Offset    int64
	Timestamp time.Time
}

const (
	HeaderEventID       = "event-id"
	HeaderEventType     = "event-type"
	HeaderCorrelationID = "correlation-id"
	HeaderSchemaVersion = "schema-version"
	HeaderSource        = "source"
	HeaderTimestamp     = "timestamp"
	HeaderRetryCount    = "retry-count"
	HeaderOriginalTopic = "original-topic"
)

// MessageHandler processes one consumed message. A nil return commits it.
type MessageHandler func(ctx context.Context, msg Message) error

// MessageOption sets a header on a message under construction. Empty values
// are ignored.
type MessageOption func(headers map[string]string)

func header(name, value string) MessageOption {
	return func(headers map[string]string) {
		if value != "" {
			headers[name] = value
		}
	}
}

func WithEventID(id string) MessageOption          { return header(HeaderEventID, id) }
func WithEventType(eventType string) MessageOption { return header(HeaderEventType, eventType) }
func WithCorrelationID(id string) MessageOption    { return header(HeaderCorrelationID, id) }
func WithSchemaVersion(v string) MessageOption     { return header(HeaderSchemaVersion, v) }
func WithSource(source string) MessageOption       { return header(HeaderSource, source) }

// NewMessage JSON encodes payload into a message for topic. Every message
// gets an event id and a timestamp header, generated when not supplied.
func NewMessage(topic, key string, payload any, opts ...MessageOption) (Message, error) {
	value, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("failed to encode %s payload: %w", topic, err)
	}

	now := time.Now().UTC()
	msg := Message{
		Topic:     topic,
		Key:       key,
		Value:     value,
		Headers:   map[string]string{},
		Timestamp: now,
	}
	for _, opt := range opts {
		opt(msg.Headers)
	}
	if msg.Headers[HeaderEventID] == "" {
		msg.Headers[HeaderEventID] = uuid.NewString()
	}
	msg.Headers[HeaderTimestamp] = now.Format(time.RFC3339)
	return msg, nil
}

func (m Message) Decode(v any) error {
	return json.Unmarshal(m.Value, v)
}

func (m Message) EventID() string       { return m.Headers[HeaderEventID] }
func (m Message) EventType() string     { return m.Headers[HeaderEventType] }
func (m Message) CorrelationID() string { return m.Headers[HeaderCorrelationID] }

// Retries is the number of redeliveries recorded on the message.
func (m Message) Retries() int {
	n, err := strconv.Atoi(m.Headers[HeaderRetryCount])
	if err != nil {
		return 0
	}
	return n
}

func (m *Message) markRetry() {
	if m.Headers == nil {
		m.Headers = map[string]string{}
	}
	m.Headers[HeaderRetryCount] = strconv.Itoa(m.Retries() + 1)
}
