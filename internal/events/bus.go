package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"consultbook/pkg/kafka"
	"consultbook/pkg/logger"
	"consultbook/pkg/middleware"
)

const SchemaVersion = "1"

// KafkaBus publishes events to one Kafka topic per event topic, keyed by the
// aggregate id.
type KafkaBus struct {
	producer *kafka.Producer
	source   string
}

func NewKafkaBus(producer *kafka.Producer, source string) *KafkaBus {
	return &KafkaBus{producer: producer, source: source}
}

func (b *KafkaBus) Publish(ctx context.Context, topic, key string, payload any) error {
	msg, err := kafka.NewMessage(topic, key, payload,
		kafka.WithEventID(eventID(payload)),
		kafka.WithEventType(topic),
		kafka.WithSchemaVersion(SchemaVersion),
		kafka.WithSource(b.source),
		kafka.WithCorrelationID(middleware.RequestIDFrom(ctx)),
	)
	if err != nil {
		return fmt.Errorf("failed to build %s event: %w", topic, err)
	}
	return b.producer.Publish(ctx, msg)
}

// Router dispatches events to the handlers subscribed to their topic. It is
// the delivery side of LocalBus and the message handler of Kafka consumers.
type Router struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

func NewRouter() *Router {
	return &Router{handlers: make(map[string][]Handler)}
}

func (r *Router) Subscribe(topic string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[topic] = append(r.handlers[topic], handler)
}

// Topics lists every topic with at least one subscriber.
func (r *Router) Topics() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	topics := make([]string, 0, len(r.handlers))
	for topic := range r.handlers {
		topics = append(topics, topic)
	}
	return topics
}

// Dispatch runs every handler of topic and joins their errors.
func (r *Router) Dispatch(ctx context.Context, topic string, payload []byte) error {
	r.mu.RLock()
	handlers := r.handlers[topic]
	r.mu.RUnlock()

	var errs []error
	for _, h := range handlers {
		if err := h(ctx, topic, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// HandleMessage adapts the router to a kafka.MessageHandler.
func (r *Router) HandleMessage(ctx context.Context, msg kafka.Message) error {
	return r.Dispatch(ctx, msg.Topic, msg.Value)
}

// LocalBus delivers events synchronously to in-process subscribers. Handler
// failures are logged and never reach the publisher.
type LocalBus struct {
	router *Router
	log    *logger.Logger
}

func NewLocalBus(router *Router, log *logger.Logger) *LocalBus {
	return &LocalBus{router: router, log: log}
}

func (b *LocalBus) Publish(ctx context.Context, topic, key string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", topic, err)
	}
	if err := b.router.Dispatch(ctx, topic, data); err != nil {
		b.log.Error("Event subscriber failed", "topic", topic, "key", key, "error", err)
	}
	return nil
}

// Fanout publishes to every publisher in order and joins their errors.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, topic, key string, payload any) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, topic, key, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func eventID(payload any) string {
	switch e := payload.(type) {
	case BookingEvent:
		return e.EventID
	case BookingRescheduledEvent:
		return e.EventID
	case ReminderSentEvent:
		return e.EventID
	}
	return ""
}

// Decode unmarshals an event payload, marking malformed input as permanent
// so consumers do not retry it.
func Decode(payload []byte, v any) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return kafka.NewPermanentError("malformed event payload", err)
	}
	return nil
}
