package kafka

import (
	"context"
	"fmt"
	"time"

	kafka_config "consultbook/pkg/kafka/config"
	"consultbook/pkg/logger"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"
)

const dlqMaxAttempts = 3

// newDLQWriter returns nil when no DLQ topic is configured. Dead letters
// always wait for every in-sync replica.
func newDLQWriter(cfg *kafka_config.Config, log *logger.Logger) *kafka.Writer {
	if cfg.DLQTopic == "" {
		return nil
	}
	return &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.DLQTopic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		Compression:            compressionCodec(cfg.ProducerCompression),
		MaxAttempts:            dlqMaxAttempts,
		AllowAutoTopicCreation: cfg.AllowAutoTopicCreation,
		Logger:                 quietLogger,
		ErrorLogger:            errorLogger(log),
	}
}

// deadLetter copies msg for the DLQ with the failure recorded in headers.
// The topic is left empty since the DLQ writer has a fixed one.
func deadLetter(msg Message, cause error, extra map[string]string) kafka.Message {
	headers := make(map[string]string, len(msg.Headers)+len(extra)+3)
	for k, v := range msg.Headers {
		headers[k] = v
	}
	for k, v := range extra {
		headers[k] = v
	}
	headers[HeaderOriginalTopic] = msg.Topic
	headers["dlq-error"] = cause.Error()
	headers["dlq-timestamp"] = time.Now().UTC().Format(time.RFC3339)

	msg.Headers = headers
	msg.Timestamp = time.Now()
	return toKafkaMessage(msg, "")
}

func toKafkaMessage(msg Message, topic string) kafka.Message {
	out := kafka.Message{
		Topic:   topic,
		Key:     []byte(msg.Key),
		Value:   msg.Value,
		Time:    msg.Timestamp,
		Headers: make([]kafka.Header, 0, len(msg.Headers)),
	}
	for k, v := range msg.Headers {
		out.Headers = append(out.Headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	return out
}

func fromKafkaMessage(in kafka.Message) Message {
	msg := Message{
		Topic:     in.Topic,
		Key:       string(in.Key),
		Value:     in.Value,
		Headers:   make(map[string]string, len(in.Headers)),
		Partition: in.Partition,
		Offset:    in.Offset,
		Timestamp: in.Time,
	}
	for _, h := range in.Headers {
		msg.Headers[h.Key] = string(h.Value)
	}
	return msg
}

// wrap applies chain around h so chain[0] runs first.
func wrap[M ~func(context.Context, Message, MessageHandler) error](h MessageHandler, chain []M) MessageHandler {
	for i := len(chain) - 1; i >= 0; i-- {
		mw, next := chain[i], h
		h = func(ctx context.Context, msg Message) error {
			return mw(ctx, msg, next)
		}
	}
	return h
}

func requiredAcks(n int) kafka.RequiredAcks {
	switch n {
	case 0:
		return kafka.RequireNone
	case 1:
		return kafka.RequireOne
	default:
		return kafka.RequireAll
	}
}

func compressionCodec(name string) compress.Compression {
	switch name {
	case "none":
		return compress.None
	case "gzip":
		return compress.Gzip
	case "lz4":
		return compress.Lz4
	case "zstd":
		return compress.Zstd
	default:
		return compress.Snappy
	}
}

var quietLogger = kafka.LoggerFunc(func(string, ...any) {})

func errorLogger(log *logger.Logger) kafka.Logger {
	return kafka.LoggerFunc(func(msg string, args ...any) {
		log.Error("kafka client error", "detail", fmt.Sprintf(msg, args...))
	})
}
