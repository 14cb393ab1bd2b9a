package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	kafka_config "consultbook/pkg/kafka/config"
	"consultbook/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// Consumer reads one or more topics as a consumer group. A handler error is
// retried in place with backoff while it classifies as transient, then the
// message is parked on the DLQ. The offset is committed once the message is
// handled, skipped or parked. A message that could not be parked keeps its
// offset uncommitted and is fetched again after a restart.
type Consumer struct {
	reader       messageReader
	dlqWriter    messageWriter
	topics       []string
	groupID      string
	maxRetries   int
	retryBackoff time.Duration
	handler      MessageHandler
	log          *logger.Logger

	mu         sync.RWMutex
	middleware []ConsumerMiddleware
	closed     bool
	running    sync.WaitGroup
}

const maxParkBackoff = 30 * time.Second

var errNotParked = errors.New("kafka message not parked")

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
	Stats() kafka.ReaderStats
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type ConsumerMiddleware func(ctx context.Context, msg Message, next MessageHandler) error

func NewConsumer(cfg *kafka_config.Config, topics []string, handler MessageHandler, log *logger.Logger) (*Consumer, error) {
	switch {
	case cfg == nil:
		return nil, errors.New("kafka consumer: config cannot be nil")
	case len(cfg.Brokers) == 0:
		return nil, errors.New("kafka consumer: at least one broker is required")
	case len(topics) == 0:
		return nil, errors.New("kafka consumer: at least one topic is required")
	case cfg.ConsumerGroupID == "":
		return nil, errors.New("kafka consumer: group id cannot be empty")
	case handler == nil:
		return nil, errors.New("kafka consumer: message handler cannot be nil")
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:           cfg.Brokers,
		GroupTopics:       topics,
		GroupID:           cfg.ConsumerGroupID,
		MinBytes:          cfg.ConsumerMinBytes,
		MaxBytes:          cfg.ConsumerMaxBytes,
		MaxWait:           cfg.ConsumerMaxWait,
		CommitInterval:    cfg.ConsumerCommitInterval,
		HeartbeatInterval: cfg.ConsumerHeartbeatInterval,
		SessionTimeout:    cfg.ConsumerSessionTimeout,
		RebalanceTimeout:  cfg.ConsumerRebalanceTimeout,
		StartOffset:       cfg.ConsumerStartOffset,
		Logger:            quietLogger,
		ErrorLogger:       errorLogger(log),
	})

	c := &Consumer{
		reader:       reader,
		topics:       topics,
		groupID:      cfg.ConsumerGroupID,
		maxRetries:   cfg.ConsumerMaxRetries,
		retryBackoff: cfg.ConsumerRetryBackoff,
		handler:      handler,
		log:          log,
	}
	// a nil *kafka.Writer must not become a non-nil interface
	if w := newDLQWriter(cfg, log); w != nil {
		c.dlqWriter = w
	}
	return c, nil
}

func (c *Consumer) Use(mw ConsumerMiddleware) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.middleware = append(c.middleware, mw)
}

// Start blocks consuming messages until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return ErrConsumerClosed
	}

	c.running.Add(1)
	defer c.running.Done()

	c.log.Info("Kafka consumer started", "topics", c.topics, "group_id", c.groupID)

	for {
		raw, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Error("Failed to fetch kafka message", "error", err)
			if !sleepCtx(ctx, time.Second) {
				return ctx.Err()
			}
			continue
		}

		// interrupted retries and failed parking leave the offset for redelivery
		if err := c.processMessage(ctx, fromKafkaMessage(raw)); err != nil && ctx.Err() != nil {
			c.log.Warn("Stopping with kafka offset uncommitted",
				"topic", raw.Topic,
				"partition", raw.Partition,
				"offset", raw.Offset,
				"error", err,
			)
			return ctx.Err()
		}

		if err := c.reader.CommitMessages(ctx, raw); err != nil {
			c.log.Error("Failed to commit kafka offset",
				"topic", raw.Topic,
				"partition", raw.Partition,
				"offset", raw.Offset,
				"error", err,
			)
		}
	}
}

func (c *Consumer) processMessage(ctx context.Context, msg Message) error {
	c.mu.RLock()
	handle := wrap(c.handler, c.middleware)
	c.mu.RUnlock()

	err := handle(ctx, msg)
	for err != nil && ShouldRetry(err, msg.Retries(), c.maxRetries) {
		attempt := msg.Retries() + 1
		c.log.Warn("Retrying kafka message",
			"topic", msg.Topic,
			"key", msg.Key,
			"attempt", attempt,
			"max_retries", c.maxRetries,
			"error", err,
		)
		if !sleepCtx(ctx, c.retryBackoff*time.Duration(attempt)) {
			return ctx.Err()
		}
		msg.markRetry()
		err = handle(ctx, msg)
	}
	if err == nil {
		return nil
	}

	errType := ClassifyError(err)
	if errType == ErrorTypeBusiness {
		c.log.Info("Kafka message rejected by handler, skipping",
			"topic", msg.Topic,
			"key", msg.Key,
			"event_id", msg.EventID(),
			"error", err,
		)
		return nil
	}

	// the partition waits until the dead letter is written or ctx ends
	for attempt := 1; ; attempt++ {
		parkErr := c.park(ctx, msg, err, errType)
		if parkErr == nil {
			return err
		}
		c.log.Error("Failed to send message to DLQ", "attempt", attempt, "error", parkErr, "original_error", err)
		if !sleepCtx(ctx, c.parkBackoff(attempt)) {
			return fmt.Errorf("%w: %w", errNotParked, parkErr)
		}
	}
}

// park writes msg to the DLQ. Without a DLQ the message is dropped, which
// counts as parked.
func (c *Consumer) park(ctx context.Context, msg Message, cause error, errType ErrorType) error {
	if c.dlqWriter == nil {
		c.log.Error("Dropping kafka message after failure", "topic", msg.Topic, "key", msg.Key, "error", cause)
		return nil
	}
	letter := deadLetter(msg, cause, map[string]string{
		"dlq-error-type":     errType.String(),
		"dlq-consumer-group": c.groupID,
	})
	if err := c.dlqWriter.WriteMessages(ctx, letter); err != nil {
		return err
	}
	c.log.Warn("Message sent to DLQ", "topic", msg.Topic, "key", msg.Key, "retries", msg.Retries(), "error", cause)
	return nil
}

func (c *Consumer) parkBackoff(attempt int) time.Duration {
	d := c.retryBackoff * time.Duration(attempt)
	if d <= 0 {
		d = time.Second
	}
	return min(d, maxParkBackoff)
}

// Close stops the reader, waits for Start to return and closes the DLQ
// writer.
func (c *Consumer) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	var errs []error
	if c.reader != nil {
		errs = append(errs, c.reader.Close())
	}
	c.running.Wait()
	if c.dlqWriter != nil {
		errs = append(errs, c.dlqWriter.Close())
	}
	return errors.Join(errs...)
}

func (c *Consumer) Stats() kafka.ReaderStats {
	return c.reader.Stats()
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
