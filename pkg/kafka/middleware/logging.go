package kafka_middleware

import (
	"context"
	"time"

	"consultbook/pkg/kafka"
	"consultbook/pkg/logger"
)

func messageAttrs(msg kafka.Message, took time.Duration) []any {
	return []any{
		"topic", msg.Topic,
		"key", msg.Key,
		"event_id", msg.EventID(),
		"event_type", msg.EventType(),
		"correlation_id", msg.CorrelationID(),
		"duration", took,
	}
}

// LoggingProducerMiddleware logs failed publishes at error level and the
// rest at debug.
func LoggingProducerMiddleware(log *logger.Logger) kafka.ProducerMiddleware {
	return func(ctx context.Context, msg kafka.Message, next kafka.MessageHandler) error {
		started := time.Now()
		err := next(ctx, msg)

		attrs := messageAttrs(msg, time.Since(started))
		if err != nil {
			log.Error("Failed to publish kafka message", append(attrs, "error", err)...)
			return err
		}
		log.Debug("Published kafka message", attrs...)
		return nil
	}
}

// LoggingConsumerMiddleware logs every handled message with its position.
// The consumer retries, so a failure is only a warning here.
func LoggingConsumerMiddleware(log *logger.Logger) kafka.ConsumerMiddleware {
	return func(ctx context.Context, msg kafka.Message, next kafka.MessageHandler) error {
		started := time.Now()
		err := next(ctx, msg)

		attrs := append(messageAttrs(msg, time.Since(started)),
			"partition", msg.Partition,
			"offset", msg.Offset,
			"retries", msg.Retries(),
		)
		if err != nil {
			log.Warn("Failed to process kafka message", append(attrs, "error", err)...)
			return err
		}
		log.Info("Processed kafka message", attrs...)
		return nil
	}
}
