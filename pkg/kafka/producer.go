package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"

	kafka_config "consultbook/pkg/kafka/config"
	"consultbook/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// Producer wraps a kafka-go writer with no fixed topic, so one producer
// serves every domain topic. Messages hash by key, keeping a booking's
// events in order.
type Producer struct {
	writer    *kafka.Writer
	dlqWriter *kafka.Writer
	log       *logger.Logger

	mu         sync.RWMutex
	middleware []ProducerMiddleware
	closed     bool
}

type ProducerMiddleware func(ctx context.Context, msg Message, next MessageHandler) error

func NewProducer(cfg *kafka_config.Config, log *logger.Logger) (*Producer, error) {
	if cfg == nil {
		return nil, errors.New("kafka producer: config cannot be nil")
	}
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka producer: at least one broker is required")
	}

	return &Producer{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           requiredAcks(cfg.ProducerRequireAcks),
			Compression:            compressionCodec(cfg.ProducerCompression),
			MaxAttempts:            cfg.ProducerMaxAttempts,
			BatchTimeout:           cfg.ProducerBatchTimeout,
			Async:                  cfg.ProducerAsync,
			AllowAutoTopicCreation: cfg.AllowAutoTopicCreation,
			Logger:                 quietLogger,
			ErrorLogger:            errorLogger(log),
		},
		dlqWriter: newDLQWriter(cfg, log),
		log:       log,
	}, nil
}

func (p *Producer) Use(mw ProducerMiddleware) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.middleware = append(p.middleware, mw)
}

// Publish validates msg and writes it through the middleware chain.
func (p *Producer) Publish(ctx context.Context, msg Message) error {
	p.mu.RLock()
	closed, chain := p.closed, p.middleware
	p.mu.RUnlock()

	switch {
	case closed:
		return ErrProducerClosed
	case msg.Topic == "":
		return ErrEmptyTopic
	case msg.Key == "":
		return ErrEmptyKey
	case len(msg.Value) == 0:
		return ErrEmptyValue
	}

	return wrap(p.write, chain)(ctx, msg)
}

// write parks a message the broker refused on the DLQ when one is set up.
// The publish error is returned either way.
func (p *Producer) write(ctx context.Context, msg Message) error {
	err := p.writer.WriteMessages(ctx, toKafkaMessage(msg, msg.Topic))
	if err == nil || p.dlqWriter == nil {
		return err
	}
	if dlqErr := p.dlqWriter.WriteMessages(ctx, deadLetter(msg, err, nil)); dlqErr != nil {
		return fmt.Errorf("publish to %s failed and DLQ write failed (%v): %w", msg.Topic, dlqErr, err)
	}
	p.log.Warn("Undeliverable kafka message parked on DLQ", "topic", msg.Topic, "key", msg.Key, "error", err)
	return err
}

func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	errs := []error{p.writer.Close()}
	if p.dlqWriter != nil {
		errs = append(errs, p.dlqWriter.Close())
	}
	return errors.Join(errs...)
}

func (p *Producer) Stats() kafka.WriterStats {
	return p.writer.Stats()
}
